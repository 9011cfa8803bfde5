//go:build !no_hooks

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHooksRunOnCommands(t *testing.T) {
	env := newTestEnv(t, "bolt")
	// Pairing switches the device on, so pair before the lock is installed.
	env.mustRun(t, "sync", "lamp")

	hooksDir := filepath.Join(env.dir, "hooks")
	if err := os.Mkdir(hooksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	script := `pidom.on("device.updated", "lamp", function(ev) if ev.on then error("lamp is locked") end end)`
	if err := os.WriteFile(filepath.Join(hooksDir, "lock.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := env.run(t, "on", "lamp")
	if err == nil || !strings.Contains(err.Error(), "lamp is locked") {
		t.Errorf("err = %v, want hook error", err)
	}
	if got := env.mustRun(t, "off", "lamp"); got != "" {
		t.Errorf("off output = %q, want empty", got)
	}
}
