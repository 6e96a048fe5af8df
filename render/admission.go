package render

import (
	"context"

	"golang.org/x/time/rate"
)

// Admission bounds both the rate of new renders accepted and the number
// in flight at once (spec §5: "bounded concurrency"). A token-bucket
// rate limiter smooths bursts of incoming requests; a buffered channel
// used as a semaphore caps concurrent compiles regardless of arrival
// rate.
type Admission struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// NewAdmission constructs an Admission limiter. maxConcurrent bounds
// in-flight renders; ratePerSecond bounds the sustained admission rate,
// with bursts up to maxConcurrent tokens. maxConcurrent <= 0 disables
// the concurrency cap; ratePerSecond <= 0 disables the rate limit.
func NewAdmission(maxConcurrent int, ratePerSecond float64) *Admission {
	a := &Admission{}
	if ratePerSecond > 0 {
		burst := maxConcurrent
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	if maxConcurrent > 0 {
		a.sem = make(chan struct{}, maxConcurrent)
	}
	return a
}

// Acquire blocks until a slot is available, ctx is done, or the rate
// limiter's reservation cannot be honored within ctx's deadline. On
// success, the caller MUST call the returned release func exactly once.
func (a *Admission) Acquire(ctx context.Context) (release func(), err error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if a.sem == nil {
		return func() {}, nil
	}

	select {
	case a.sem <- struct{}{}:
		return func() { <-a.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
