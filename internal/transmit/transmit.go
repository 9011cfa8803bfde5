// Package transmit drives the RF transmitter that switches receivers on and
// off. Each Transmit call emits one frame for one device id.
package transmit

import (
	"context"
	"fmt"
)

// Transmitter sends an on/off command for a device id.
type Transmitter interface {
	Transmit(ctx context.Context, id uint32, on bool) error
}

// Func adapts an ordinary function to a Transmitter.
type Func func(ctx context.Context, id uint32, on bool) error

// Transmit calls f(ctx, id, on).
func (f Func) Transmit(ctx context.Context, id uint32, on bool) error {
	return f(ctx, id, on)
}

// FormatID renders a device id the way the transmitter expects it: upper-case
// hex, at least two digits.
func FormatID(id uint32) string {
	return fmt.Sprintf("%02X", id)
}
