package store

import (
	"fmt"
	"slices"
)

// SchemaVersion is the current snapshot layout version.
const SchemaVersion = 1

// Snapshot is the persisted form of the registry. Devices and Groups are in
// insertion order.
type Snapshot struct {
	Version int      `json:"version" yaml:"version"`
	Devices []Device `json:"devices" yaml:"devices"`
	Groups  []Group  `json:"groups" yaml:"groups"`
}

// Device is a persisted device entry.
type Device struct {
	Name   string   `json:"name" yaml:"name"`
	ID     uint32   `json:"id" yaml:"id"`
	On     bool     `json:"on" yaml:"on"`
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Group is a persisted group entry.
type Group struct {
	Name    string   `json:"name" yaml:"name"`
	Members []string `json:"members,omitempty" yaml:"members,omitempty"`
}

// NewSnapshot returns an empty snapshot at the current schema version.
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: SchemaVersion, Devices: []Device{}, Groups: []Group{}}
}

// Validate checks that names and ids are unique and that group membership
// is recorded consistently on both sides.
func (s *Snapshot) Validate() error {
	if s.Version != SchemaVersion {
		return fmt.Errorf("schema version %d, want %d: %w", s.Version, SchemaVersion, ErrCorrupt)
	}

	devices := make(map[string]*Device, len(s.Devices))
	ids := make(map[uint32]string, len(s.Devices))
	for i := range s.Devices {
		d := &s.Devices[i]
		if d.Name == "" {
			return fmt.Errorf("device #%d has no name: %w", i, ErrCorrupt)
		}
		if _, dup := devices[d.Name]; dup {
			return fmt.Errorf("duplicate device %q: %w", d.Name, ErrCorrupt)
		}
		if other, dup := ids[d.ID]; dup {
			return fmt.Errorf("devices %q and %q share id 0x%08X: %w", other, d.Name, d.ID, ErrCorrupt)
		}
		devices[d.Name] = d
		ids[d.ID] = d.Name
	}

	groups := make(map[string]*Group, len(s.Groups))
	for i := range s.Groups {
		g := &s.Groups[i]
		if g.Name == "" {
			return fmt.Errorf("group #%d has no name: %w", i, ErrCorrupt)
		}
		if _, dup := groups[g.Name]; dup {
			return fmt.Errorf("duplicate group %q: %w", g.Name, ErrCorrupt)
		}
		groups[g.Name] = g
		for _, m := range g.Members {
			d, ok := devices[m]
			if !ok {
				return fmt.Errorf("group %q references unknown device %q: %w", g.Name, m, ErrCorrupt)
			}
			if !slices.Contains(d.Groups, g.Name) {
				return fmt.Errorf("device %q missing back reference to group %q: %w", m, g.Name, ErrCorrupt)
			}
		}
	}

	for _, d := range s.Devices {
		for _, name := range d.Groups {
			g, ok := groups[name]
			if !ok {
				return fmt.Errorf("device %q references unknown group %q: %w", d.Name, name, ErrCorrupt)
			}
			if !slices.Contains(g.Members, d.Name) {
				return fmt.Errorf("group %q missing member %q: %w", name, d.Name, ErrCorrupt)
			}
		}
	}
	return nil
}
