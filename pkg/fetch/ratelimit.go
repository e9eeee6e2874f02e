package fetch

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces consecutive requests to the site. The crawl is sequential,
// so one timestamp is enough; there is no per-host map.
type RateLimiter struct {
	delay       time.Duration
	lastRequest time.Time
	log         *logrus.Entry
}

// NewRateLimiter creates a RateLimiter; a zero delay disables pacing.
func NewRateLimiter(delay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{delay: delay, log: log}
}

// Wait sleeps until delay (+/- 10% jitter) has passed since the previous request,
// returning early if ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) {
	if rl.delay <= 0 || rl.lastRequest.IsZero() {
		return
	}
	elapsed := time.Since(rl.lastRequest)
	if elapsed >= rl.delay {
		return
	}

	sleep := rl.delay - elapsed
	if jitterRange := int64(sleep) / 5; jitterRange > 0 {
		sleep += time.Duration(rand.Int63n(jitterRange)) - sleep/10
	}
	if sleep <= 0 {
		return
	}

	rl.log.WithFields(logrus.Fields{"sleep": sleep, "required_delay": rl.delay, "elapsed": elapsed}).Debug("Rate limit applying sleep")
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Mark records a request attempt. Call after every attempt, successful or not.
func (rl *RateLimiter) Mark() {
	rl.lastRequest = time.Now()
}
