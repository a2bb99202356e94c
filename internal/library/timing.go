package library

import (
	"context"
	"time"
)

// Timings are the fixed pauses the page needs between interactions.
type Timings struct {
	Navigation time.Duration // after a navigation settles
	Idle       time.Duration // login pass with nothing to act on
	Menu       time.Duration // after opening a menu or dismissing a dialog
	Action     time.Duration // after selecting an action
	Settle     time.Duration // before watching for in-progress downloads
	Poll       time.Duration // between in-progress download checks
}

func DefaultTimings() Timings {
	return Timings{
		Navigation: 200 * time.Millisecond,
		Idle:       time.Second,
		Menu:       500 * time.Millisecond,
		Action:     time.Second,
		Settle:     2 * time.Second,
		Poll:       500 * time.Millisecond,
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
