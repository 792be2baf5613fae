// Package pacing provides the artificial delays the site uses to make quiz
// scoring and form submission feel like real processing.
package pacing

import (
	"context"
	"time"
)

// Delayer waits before a simulated operation completes
type Delayer interface {
	Wait(ctx context.Context) error
}

// Fixed returns a Delayer that waits d, or returns early when ctx is done.
// A non-positive d behaves like None.
func Fixed(d time.Duration) Delayer {
	if d <= 0 {
		return None()
	}
	return fixed{d: d}
}

// None returns a Delayer that never waits
func None() Delayer {
	return none{}
}

type fixed struct {
	d time.Duration
}

func (f fixed) Wait(ctx context.Context) error {
	timer := time.NewTimer(f.d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type none struct{}

func (none) Wait(context.Context) error { return nil }
