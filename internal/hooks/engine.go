//go:build !no_hooks

// Package hooks runs user Lua scripts as observers of registry events.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

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

// luaHandler is a callback registered with pidom.on.
type luaHandler struct {
	eventType string // "*" matches every event
	name      string // filter: only this device/group (empty = any)
	fn        *lua.LFunction
}

// script is a loaded Lua VM.
type script struct {
	name     string
	state    *lua.LState
	handlers []luaHandler
}

// Engine loads scripts and dispatches bus events to their callbacks. Calls
// happen synchronously on the publisher's goroutine.
type Engine struct {
	reg     Reader
	logger  *slog.Logger
	timeout time.Duration

	scripts []*script
	sub     *events.Subscription
}

// NewEngine creates an engine with no scripts loaded. A zero timeout means
// DefaultTimeout.
func NewEngine(reg Reader, logger *slog.Logger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		reg:     reg,
		logger:  logger.With("component", "hooks"),
		timeout: timeout,
	}
}

// LoadDir loads every *.lua file in dir, in name order. A missing
// directory loads nothing.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Debug("hooks dir not found", "dir", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read hooks dir: %w", err)
	}
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".lua") {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		code, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read hook: %w", err)
		}
		if err := e.LoadString(strings.TrimSuffix(ent.Name(), ".lua"), string(code)); err != nil {
			return err
		}
	}
	return nil
}

// LoadString runs code in a new sandboxed VM. Top-level code is expected to
// register callbacks with pidom.on.
func (e *Engine) LoadString(name, code string) error {
	L := lua.NewState()

	// Sandbox: remove dangerous libs and functions
	for _, g := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(g, lua.LNil)
	}

	s := &script{name: name, state: L}
	registerPidomModule(L, s, e)

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	L.SetContext(ctx)
	err := L.DoString(code)
	L.RemoveContext()
	if err != nil {
		L.Close()
		return fmt.Errorf("load hook %s: %w", name, err)
	}

	e.scripts = append(e.scripts, s)
	e.logger.Info("hook loaded", "name", name, "handlers", len(s.handlers))
	return nil
}

// Len returns the number of loaded scripts.
func (e *Engine) Len() int { return len(e.scripts) }

// Start subscribes the engine to every event on bus.
func (e *Engine) Start(bus *events.Bus) {
	if e.sub != nil {
		e.sub.Unsubscribe()
	}
	e.sub = bus.SubscribeAll(e.dispatch)
}

// Stop unsubscribes and closes every VM.
func (e *Engine) Stop() {
	e.sub.Unsubscribe()
	e.sub = nil
	for _, s := range e.scripts {
		s.state.Close()
	}
	e.scripts = nil
}

// dispatch calls every matching callback. The first callback error is
// returned to the bus.
func (e *Engine) dispatch(ev events.Event) error {
	for _, s := range e.scripts {
		for _, h := range s.handlers {
			if !matches(h, ev) {
				continue
			}
			if err := e.call(s, h.fn, ev); err != nil {
				return fmt.Errorf("hook %s: %w", s.name, err)
			}
		}
	}
	return nil
}

func matches(h luaHandler, ev events.Event) bool {
	if h.eventType != "*" && h.eventType != ev.Type {
		return false
	}
	return h.name == "" || h.name == ev.Name
}

func (e *Engine) call(s *script, fn *lua.LFunction, ev events.Event) error {
	L := s.state
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	return L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, eventTable(L, ev))
}

// eventTable converts an event to {type, name, on, id, old_name}.
func eventTable(L *lua.LState, ev events.Event) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("type", lua.LString(ev.Type))
	t.RawSetString("name", lua.LString(ev.Name))
	t.RawSetString("on", lua.LBool(ev.On))
	if ev.ID != 0 {
		t.RawSetString("id", lua.LNumber(ev.ID))
	}
	if ev.OldName != "" {
		t.RawSetString("old_name", lua.LString(ev.OldName))
	}
	return t
}
