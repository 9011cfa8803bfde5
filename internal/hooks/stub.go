//go:build no_hooks

package hooks

import (
	"log/slog"
	"time"

	"pidom/internal/events"
)

// DefaultTimeout bounds a single callback invocation.
const DefaultTimeout = 5 * time.Second

// Reader is the read-only registry view exposed to scripts.
type Reader interface {
	State(name string) (bool, error)
	Devices() []string
	Groups() []string
}

// Engine is a no-op stub when hooks are disabled.
type Engine struct{}

// NewEngine returns a no-op engine.
func NewEngine(_ Reader, _ *slog.Logger, _ time.Duration) *Engine { return &Engine{} }

// LoadDir is a no-op.
func (e *Engine) LoadDir(_ string) error { return nil }

// LoadString is a no-op.
func (e *Engine) LoadString(_, _ string) error { return nil }

// Len returns 0.
func (e *Engine) Len() int { return 0 }

// Start is a no-op.
func (e *Engine) Start(_ *events.Bus) {}

// Stop is a no-op.
func (e *Engine) Stop() {}
