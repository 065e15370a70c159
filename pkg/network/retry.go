package network

import (
	"context"
	"time"
)

const retry = 5 * time.Second

type Retry struct {
	t    time.Duration
	base time.Duration
	max  time.Duration
	fail bool
}

func NewRetry() Retry { return NewRetryAfter(retry) }

// NewRetryAfter makes a retry that waits t after each failure.
func NewRetryAfter(t time.Duration) Retry {
	if t <= 0 {
		t = retry
	}
	return Retry{t: t, base: t, max: t}
}

// Fail waits the current retry time or until ctx is done.
// Returns false when the context is done.
func (r *Retry) Fail(ctx context.Context) bool {
	r.fail = true
	timer := time.NewTimer(r.t)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	if r.t*2 <= r.max {
		r.t *= 2
	}
	return true
}

// Backoff allows the wait to grow twice per failure up to the max.
func (r *Retry) Backoff(max time.Duration) *Retry {
	if max > r.base {
		r.max = max
	}
	return r
}

func (r *Retry) Failed() bool        { return r.fail }
func (r *Retry) Success()            { r.t = r.base; r.fail = false }
func (r *Retry) Time() time.Duration { return r.t }
