package registry

import (
	"context"
	"time"
)

// DefaultPairingWindow is how long a freshly powered receiver listens for a
// new id.
const DefaultPairingWindow = 5 * time.Second

// Pairer runs the pairing procedure for a new device. send transmits one
// "on" frame; Pair decides how often and for how long to call it.
type Pairer interface {
	Pair(ctx context.Context, send func(context.Context) error) error
}

// WindowPairer repeats send until Window has elapsed. send is always called
// at least once.
type WindowPairer struct {
	Window   time.Duration // defaults to DefaultPairingWindow
	Interval time.Duration // pause between transmissions, zero for back-to-back

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Pair implements Pairer.
func (p *WindowPairer) Pair(ctx context.Context, send func(context.Context) error) error {
	window := p.Window
	if window <= 0 {
		window = DefaultPairingWindow
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	deadline := now().Add(window)
	for {
		if err := send(ctx); err != nil {
			return err
		}
		if !now().Before(deadline) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.Interval > 0 {
			if err := sleep(ctx, p.Interval); err != nil {
				return err
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
