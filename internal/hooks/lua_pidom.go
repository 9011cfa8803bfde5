//go:build !no_hooks

package hooks

import (
	lua "github.com/yuin/gopher-lua"

	"pidom/internal/transmit"
)

// registerPidomModule registers the `pidom` global table in a Lua state.
func registerPidomModule(L *lua.LState, s *script, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return pidomOn(L, s)
	}))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return pidomLog(L, s, e)
	}))
	mod.RawSetString("state", L.NewFunction(func(L *lua.LState) int {
		return pidomState(L, e)
	}))
	mod.RawSetString("devices", L.NewFunction(func(L *lua.LState) int {
		return stringList(L, e.reg.Devices())
	}))
	mod.RawSetString("groups", L.NewFunction(func(L *lua.LState) int {
		return stringList(L, e.reg.Groups())
	}))
	mod.RawSetString("format_id", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(transmit.FormatID(uint32(L.CheckNumber(1)))))
		return 1
	}))

	L.SetGlobal("pidom", mod)
}

// pidom.on(event, fn) or pidom.on(event, name, fn)
func pidomOn(L *lua.LState, s *script) int {
	eventType := L.CheckString(1)
	h := luaHandler{eventType: eventType}
	if L.GetTop() >= 3 {
		h.name = L.CheckString(2)
		h.fn = L.CheckFunction(3)
	} else {
		h.fn = L.CheckFunction(2)
	}
	s.handlers = append(s.handlers, h)
	return 0
}

// pidom.log(msg) or pidom.log(level, msg)
func pidomLog(L *lua.LState, s *script, e *Engine) int {
	level, msg := "info", ""
	if L.GetTop() >= 2 {
		level = L.CheckString(1)
		msg = L.CheckString(2)
	} else {
		msg = L.CheckString(1)
	}

	logger := e.logger.With("script", s.name)
	switch level {
	case "debug":
		logger.Debug("script log", "msg", msg)
	case "warn":
		logger.Warn("script log", "msg", msg)
	case "error":
		logger.Error("script log", "msg", msg)
	default:
		logger.Info("script log", "msg", msg)
	}
	return 0
}

// pidom.state(name) returns the device state, or nil and an error message.
func pidomState(L *lua.LState, e *Engine) int {
	on, err := e.reg.State(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LBool(on))
	return 1
}

func stringList(L *lua.LState, items []string) int {
	t := L.NewTable()
	for i, s := range items {
		t.RawSetInt(i+1, lua.LString(s))
	}
	L.Push(t)
	return 1
}
