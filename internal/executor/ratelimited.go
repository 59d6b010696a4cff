package executor

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/nodalcore/container/internal/svcname"
)

// RateLimited wraps another Executor with a token-bucket limiter bounding
// how many tasks begin per second — for hosts installing a large batch
// who want to throttle the thundering herd of independent roots starting
// all at once, without changing the dependency-ordering guarantees next
// already provides.
type RateLimited struct {
	next    Executor
	limiter *rate.Limiter
}

// NewRateLimited wraps next, admitting at most ratePerSecond task starts
// per second with a burst of burst.
func NewRateLimited(next Executor, ratePerSecond float64, burst int) *RateLimited {
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Submit blocks until the limiter admits this task, then forwards to next.
// The blocking happens on the caller's goroutine (the controller
// transition that triggered the schedule), matching spec.md's note that
// Submit scheduling itself is not expected to be instantaneous under load.
func (r *RateLimited) Submit(name svcname.Name, fn func()) {
	_ = r.limiter.Wait(context.Background())
	r.next.Submit(name, fn)
}
