package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy maps a failed attempt number (1-based) to the pause before
// the next attempt
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the pause by Multiplier per attempt, capped at
// MaxDelay, with up to ±JitterFactor of random spread
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff is used for transient upstream failures:
// 1s, 2s, 4s ... up to 30s
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	d := math.Min(float64(b.BaseDelay)*math.Pow(b.Multiplier, float64(attempt-1)), float64(b.MaxDelay))
	if b.JitterFactor > 0 {
		d *= 1 + b.JitterFactor*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, 0))
}

// ConstantBackoff pauses for Delay after every failed attempt. Rate limit
// cool-downs use it.
type ConstantBackoff struct {
	Delay time.Duration
}

func (b *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return b.Delay
}

// Wait sleeps for d and returns early with the context error on cancellation
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
