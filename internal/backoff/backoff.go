package backoff

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrRetriesExhausted is returned when the maximum number of retries has been reached.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy computes the interval to wait before retry attempt n (0-based).
// It returns ErrRetriesExhausted when no further attempt should be made.
type Policy interface {
	NextInterval(retryCount int) (time.Duration, error)
}

// ExponentialPolicy is an exponential backoff policy with a cap on both the
// interval and the attempt count.
type ExponentialPolicy struct {
	InitialInterval time.Duration
	Factor          float64
	MaxInterval     time.Duration
	MaxRetries      int
}

// NewExponentialPolicy returns a policy starting at initial, doubling each
// attempt, capped at 10x the initial interval and maxRetries attempts.
func NewExponentialPolicy(initial time.Duration, maxRetries int) *ExponentialPolicy {
	return &ExponentialPolicy{
		InitialInterval: initial,
		Factor:          2.0,
		MaxInterval:     10 * initial,
		MaxRetries:      maxRetries,
	}
}

func (p *ExponentialPolicy) NextInterval(retryCount int) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	interval := time.Duration(float64(p.InitialInterval) * math.Pow(p.Factor, float64(retryCount)))
	if interval > p.MaxInterval {
		interval = p.MaxInterval
	}
	return interval, nil
}

// Retry runs op until it succeeds, the policy is exhausted, or ctx is
// canceled. The last operation error is returned on exhaustion.
func Retry(ctx context.Context, policy Policy, op func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		interval, err := policy.NextInterval(attempt)
		if err != nil {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
