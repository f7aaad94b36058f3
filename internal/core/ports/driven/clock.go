package driven

import (
	"context"
	"time"
)

// Clock abstracts time so retry backoff and staleness checks are
// deterministic under test.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the duration or until the context is cancelled,
	// returning the context error in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock implements Clock with real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
