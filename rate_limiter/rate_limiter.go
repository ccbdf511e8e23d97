package rate_limiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// APILimiter paces calls to a single API. A nil APILimiter, or one built from a
// definition with a zero fill rate, never blocks
type APILimiter struct {
	Name string

	// underlying rate limiter
	limiter *rate.Limiter
}

func NewAPILimiter(l *Definition) *APILimiter {
	res := &APILimiter{
		Name: l.Name,
	}
	if l.FillRate != 0 {
		res.limiter = rate.NewLimiter(l.FillRate, l.BucketSize)
	}
	return res
}

func (l *APILimiter) String() string {
	if l == nil || l.limiter == nil {
		return "unlimited"
	}
	return fmt.Sprintf("Limit(/s): %v, Burst: %d", l.limiter.Limit(), l.limiter.Burst())
}

func (l *APILimiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
