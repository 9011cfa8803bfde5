package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCorrupt is returned when the persisted registry cannot be decoded.
var ErrCorrupt = errors.New("store: corrupt")

// Store defines the persistence interface. Save replaces the persisted
// registry with snap atomically; Load returns an empty snapshot when nothing
// was ever saved.
type Store interface {
	Save(snap *Snapshot) error
	Load() (*Snapshot, error)
}

// ExpandHome resolves a leading "~/" against the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
