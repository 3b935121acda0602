package runner

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled limits how often the wrapped runner may start a process
type Throttled struct {
	next    Runner
	limiter *rate.Limiter
}

// NewThrottled wraps next with a limiter allowing perSecond starts with the given burst.
// A non-positive rate returns next unchanged.
func NewThrottled(next Runner, perSecond float64, burst int) Runner {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Run waits for the limiter and then delegates
func (t *Throttled) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}
	return t.next.Run(ctx, name, args...)
}
