package log

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerLogrusAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.InfoLevel)
	adapter := NewBadgerLogrusAdapter(logrus.NewEntry(logger))

	adapter.Infof("compaction %d", 1)
	adapter.Debugf("table %s", "x")
	assert.Empty(t, buf.String(), "badger info/debug chatter is demoted below info")

	adapter.Warningf("warning %d", 42)
	assert.Contains(t, buf.String(), "warning 42")

	adapter.Errorf("error %s", "test")
	assert.Contains(t, buf.String(), "error test")
}

func TestNew(t *testing.T) {
	logger, err := New("debug", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger, err = New("loud", io.Discard)
	assert.Error(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
