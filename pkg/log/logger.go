package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New builds the run's logger. An unparsable level falls back to info and is
// reported through the returned error so the caller can warn about it.
func New(level string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	logger.SetLevel(logrus.InfoLevel)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logger, err
	}
	logger.SetLevel(parsed)
	return logger, nil
}
