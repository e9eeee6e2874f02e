package fetch

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestRateLimiter(delay time.Duration) *RateLimiter {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRateLimiter(delay, logrus.NewEntry(log))
}

func TestWait_NoDelayOnFirstRequest(t *testing.T) {
	rl := newTestRateLimiter(5 * time.Second)

	start := time.Now()
	rl.Wait(context.Background())
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestWait_SleepsForExpectedDuration(t *testing.T) {
	rl := newTestRateLimiter(100 * time.Millisecond)
	rl.Mark()

	start := time.Now()
	rl.Wait(context.Background())
	elapsed := time.Since(start)

	// Allow for jitter (+/- 10%) and timer imprecision
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestWait_RespectsContextCancellation(t *testing.T) {
	rl := newTestRateLimiter(5 * time.Second)
	rl.Mark()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	rl.Wait(ctx)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWait_ZeroDelayDisabled(t *testing.T) {
	rl := newTestRateLimiter(0)
	rl.Mark()

	start := time.Now()
	rl.Wait(context.Background())
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
