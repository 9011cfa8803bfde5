// Package registry keeps the name to id mapping, on/off state and groups of
// RF power switches, and drives the transmitter on every state change.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"pidom/internal/events"
	"pidom/internal/idpool"
	"pidom/internal/store"
	"pidom/internal/transmit"
)

// Default id range, matching the receivers' factory addressing.
const (
	DefaultBaseID uint32 = 0x00A0A400
	DefaultPoolSize      = 10
)

// Options configures a Registry. Transmitter is required.
type Options struct {
	Pool        *idpool.Pool
	Transmitter transmit.Transmitter
	Bus         *events.Bus
	Store       store.Store
	Pairer      Pairer
	Logger      *slog.Logger

	// TolerateUnreachable lets Unsynchronize remove a device whose final
	// "off" frame could not be sent.
	TolerateUnreachable bool
}

// Device is a read-only copy of a registered device.
type Device struct {
	Name   string
	ID     uint32
	On     bool
	Groups []string
}

type device struct {
	id     uint32
	on     bool
	groups map[string]struct{}
}

type group struct {
	members map[string]struct{}
}

// Registry owns devices and groups. It is not safe for concurrent use.
type Registry struct {
	pool     *idpool.Pool
	tx       transmit.Transmitter
	bus      *events.Bus
	store    store.Store
	pairer   Pairer
	logger   *slog.Logger
	tolerate bool
	devices  map[string]*device
	devOrder []string
	groups   map[string]*group
	grpOrder []string
}

// New creates an empty registry.
func New(opts Options) (*Registry, error) {
	if opts.Transmitter == nil {
		return nil, errors.New("registry: transmitter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool := opts.Pool
	if pool == nil {
		var err error
		if pool, err = idpool.New(DefaultBaseID, DefaultPoolSize); err != nil {
			return nil, err
		}
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	pairer := opts.Pairer
	if pairer == nil {
		pairer = &WindowPairer{}
	}
	return &Registry{
		pool:     pool,
		tx:       opts.Transmitter,
		bus:      bus,
		store:    opts.Store,
		pairer:   pairer,
		logger:   logger.With("component", "registry"),
		tolerate: opts.TolerateUnreachable,
		devices:  make(map[string]*device),
		groups:   make(map[string]*group),
	}, nil
}

// Bus returns the event bus the registry publishes to.
func (r *Registry) Bus() *events.Bus { return r.bus }

// FreeIDs returns the ids not assigned to any device, ascending.
func (r *Registry) FreeIDs() []uint32 { return r.pool.Available() }

// Resolve expands t into device names. Names are not checked for
// registration; the operation using them does that.
func (r *Registry) Resolve(t Target) ([]string, error) {
	if t.kind != kindNames && len(t.names) == 0 {
		return nil, ErrEmptyName
	}
	switch t.kind {
	case kindNames:
		return slices.Clone(t.names), nil
	case kindGroup:
		return r.Members(t.names[0])
	case kindDevice:
		return []string{t.names[0]}, nil
	default:
		if g, ok := r.groups[t.names[0]]; ok {
			return sortedKeys(g.members), nil
		}
		return []string{t.names[0]}, nil
	}
}

// SwitchOn turns every device of t on. It stops at the first failure;
// devices already switched stay switched.
func (r *Registry) SwitchOn(ctx context.Context, t Target) error {
	return r.apply(ctx, t, func(bool) bool { return true })
}

// SwitchOff turns every device of t off.
func (r *Registry) SwitchOff(ctx context.Context, t Target) error {
	return r.apply(ctx, t, func(bool) bool { return false })
}

// Toggle inverts the state of every device of t.
func (r *Registry) Toggle(ctx context.Context, t Target) error {
	return r.apply(ctx, t, func(on bool) bool { return !on })
}

func (r *Registry) apply(ctx context.Context, t Target, next func(bool) bool) error {
	names, err := r.Resolve(t)
	if err != nil {
		return err
	}
	for _, name := range names {
		d, ok := r.devices[name]
		if !ok {
			return fmt.Errorf("device %q: %w", name, ErrUnknownDevice)
		}
		if err := r.setDeviceState(ctx, name, next(d.on)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) setDeviceState(ctx context.Context, name string, on bool) error {
	d, ok := r.devices[name]
	if !ok {
		return fmt.Errorf("device %q: %w", name, ErrUnknownDevice)
	}
	if err := r.tx.Transmit(ctx, d.id, on); err != nil {
		return fmt.Errorf("%w: device %q: %w", ErrTransmit, name, err)
	}
	d.on = on
	r.logger.Debug("state changed", "name", name, "on", on)
	return r.bus.Publish(events.Event{Type: events.DeviceUpdated, Name: name, On: on, ID: d.id})
}

// Synchronize registers name under a fresh id and pairs it: the pairer
// repeats "on" for the pairing window, then one "off" follows. If pairing
// fails the device is removed again and its id released.
func (r *Registry) Synchronize(ctx context.Context, name string) (uint32, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	if _, ok := r.devices[name]; ok {
		return 0, fmt.Errorf("device %q: %w", name, ErrNameRegistered)
	}
	id, err := r.pool.Allocate()
	if err != nil {
		return 0, fmt.Errorf("synchronize %q: %w", name, err)
	}
	r.devices[name] = &device{id: id, groups: make(map[string]struct{})}
	r.devOrder = append(r.devOrder, name)
	r.logger.Info("pairing", "name", name, "id", transmit.FormatID(id))

	target := DeviceName(name)
	err = r.pairer.Pair(ctx, func(ctx context.Context) error {
		return r.SwitchOn(ctx, target)
	})
	if err == nil {
		err = r.SwitchOff(ctx, target)
	}
	if err != nil {
		r.dropDevice(name)
		if rerr := r.pool.Release(id); rerr != nil {
			r.logger.Error("release id after failed pairing", "name", name, "err", rerr)
		}
		if perr := r.bus.Publish(events.Event{Type: events.DeviceDeleted, Name: name, ID: id}); perr != nil {
			r.logger.Warn("publish rollback", "name", name, "err", perr)
		}
		return 0, fmt.Errorf("synchronize %q: %w", name, err)
	}

	r.logger.Info("device synchronized", "name", name, "id", transmit.FormatID(id))
	return id, r.bus.Publish(events.Event{Type: events.DeviceSynchronized, Name: name, ID: id})
}

// Unsynchronize switches name off, removes it from its groups, releases its
// id and deletes it.
func (r *Registry) Unsynchronize(ctx context.Context, name string) error {
	d, ok := r.devices[name]
	if !ok {
		return fmt.Errorf("device %q: %w", name, ErrUnknownDevice)
	}
	if err := r.setDeviceState(ctx, name, false); err != nil {
		if !r.tolerate || !errors.Is(err, ErrTransmit) {
			return fmt.Errorf("unsynchronize %q: %w", name, err)
		}
		r.logger.Warn("device unreachable, removing anyway", "name", name, "err", err)
	}
	for g := range d.groups {
		if grp, ok := r.groups[g]; ok {
			delete(grp.members, name)
		}
	}
	if err := r.pool.Release(d.id); err != nil {
		return fmt.Errorf("unsynchronize %q: %w", name, err)
	}
	r.dropDevice(name)
	r.logger.Info("device removed", "name", name, "id", transmit.FormatID(d.id))
	return r.bus.Publish(events.Event{Type: events.DeviceDeleted, Name: name, ID: d.id})
}

// Clear unsynchronizes every device.
func (r *Registry) Clear(ctx context.Context) error {
	for _, name := range r.Devices() {
		if err := r.Unsynchronize(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Reset switches every device off.
func (r *Registry) Reset(ctx context.Context) error {
	return r.SwitchOff(ctx, Names(r.devOrder...))
}

// State reports whether name is on.
func (r *Registry) State(name string) (bool, error) {
	d, ok := r.devices[name]
	if !ok {
		return false, fmt.Errorf("device %q: %w", name, ErrUnknownDevice)
	}
	return d.on, nil
}

// Device returns a copy of the named device.
func (r *Registry) Device(name string) (Device, error) {
	d, ok := r.devices[name]
	if !ok {
		return Device{}, fmt.Errorf("device %q: %w", name, ErrUnknownDevice)
	}
	return Device{Name: name, ID: d.id, On: d.on, Groups: sortedKeys(d.groups)}, nil
}

// Members returns the device names of group g, sorted.
func (r *Registry) Members(g string) ([]string, error) {
	grp, ok := r.groups[g]
	if !ok {
		return nil, fmt.Errorf("group %q: %w", g, ErrUnknownGroup)
	}
	return sortedKeys(grp.members), nil
}

// Devices returns the registered device names in insertion order.
func (r *Registry) Devices() []string { return slices.Clone(r.devOrder) }

// Groups returns the group names in insertion order.
func (r *Registry) Groups() []string { return slices.Clone(r.grpOrder) }

// NewGroup creates group g from names. Each registered device is switched
// off and added; names that are not registered devices are skipped.
func (r *Registry) NewGroup(ctx context.Context, g string, names []string) error {
	if g == "" {
		return ErrEmptyName
	}
	if _, ok := r.groups[g]; ok {
		return fmt.Errorf("group %q: %w", g, ErrGroupExists)
	}
	grp := &group{members: make(map[string]struct{})}
	r.groups[g] = grp
	r.grpOrder = append(r.grpOrder, g)

	for _, name := range names {
		d, ok := r.devices[name]
		if !ok {
			r.logger.Debug("skipping unregistered group member", "group", g, "name", name)
			continue
		}
		if err := r.setDeviceState(ctx, name, false); err != nil {
			return fmt.Errorf("new group %q: %w", g, err)
		}
		grp.members[name] = struct{}{}
		d.groups[g] = struct{}{}
	}
	return r.bus.Publish(events.Event{Type: events.GroupCreated, Name: g})
}

// RmGroup switches group g off and deletes it. Member devices stay
// registered.
func (r *Registry) RmGroup(ctx context.Context, g string) error {
	grp, ok := r.groups[g]
	if !ok {
		return fmt.Errorf("group %q: %w", g, ErrUnknownGroup)
	}
	if err := r.SwitchOff(ctx, GroupName(g)); err != nil {
		return fmt.Errorf("remove group %q: %w", g, err)
	}
	for name := range grp.members {
		if d, ok := r.devices[name]; ok {
			delete(d.groups, g)
		}
	}
	delete(r.groups, g)
	r.grpOrder = slices.DeleteFunc(r.grpOrder, func(s string) bool { return s == g })
	return r.bus.Publish(events.Event{Type: events.GroupRemoved, Name: g})
}

// Rename moves device oldName to newName, keeping its id, state, groups and
// position.
func (r *Registry) Rename(oldName, newName string) error {
	d, ok := r.devices[oldName]
	if !ok {
		return fmt.Errorf("device %q: %w", oldName, ErrUnknownDevice)
	}
	if newName == "" {
		return ErrEmptyName
	}
	if _, taken := r.devices[newName]; taken {
		return fmt.Errorf("device %q: %w", newName, ErrNameRegistered)
	}
	delete(r.devices, oldName)
	r.devices[newName] = d
	r.devOrder[slices.Index(r.devOrder, oldName)] = newName
	for g := range d.groups {
		if grp, ok := r.groups[g]; ok {
			delete(grp.members, oldName)
			grp.members[newName] = struct{}{}
		}
	}
	return r.bus.Publish(events.Event{Type: events.DeviceRenamed, Name: newName, OldName: oldName, On: d.on, ID: d.id})
}

// RenameGroup moves group oldName to newName, keeping its members.
func (r *Registry) RenameGroup(oldName, newName string) error {
	grp, ok := r.groups[oldName]
	if !ok {
		return fmt.Errorf("group %q: %w", oldName, ErrUnknownGroup)
	}
	if newName == "" {
		return ErrEmptyName
	}
	if _, taken := r.groups[newName]; taken {
		return fmt.Errorf("group %q: %w", newName, ErrGroupExists)
	}
	delete(r.groups, oldName)
	r.groups[newName] = grp
	r.grpOrder[slices.Index(r.grpOrder, oldName)] = newName
	for name := range grp.members {
		if d, ok := r.devices[name]; ok {
			delete(d.groups, oldName)
			d.groups[newName] = struct{}{}
		}
	}
	return r.bus.Publish(events.Event{Type: events.GroupRenamed, Name: newName, OldName: oldName})
}

// Snapshot returns the persisted form of the current state.
func (r *Registry) Snapshot() *store.Snapshot {
	snap := store.NewSnapshot()
	for _, name := range r.devOrder {
		d := r.devices[name]
		var groups []string
		if len(d.groups) > 0 {
			groups = sortedKeys(d.groups)
		}
		snap.Devices = append(snap.Devices, store.Device{Name: name, ID: d.id, On: d.on, Groups: groups})
	}
	for _, name := range r.grpOrder {
		var members []string
		if g := r.groups[name]; len(g.members) > 0 {
			members = sortedKeys(g.members)
		}
		snap.Groups = append(snap.Groups, store.Group{Name: name, Members: members})
	}
	return snap
}

// Backup saves the current state to the store.
func (r *Registry) Backup() error {
	if r.store == nil {
		return ErrNoStore
	}
	if err := r.store.Save(r.Snapshot()); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	r.logger.Debug("backup saved", "devices", len(r.devOrder), "groups", len(r.grpOrder))
	return nil
}

// Restore replaces the in-memory state with the store's contents and
// rebuilds the id pool from the restored devices.
func (r *Registry) Restore() error {
	if r.store == nil {
		return ErrNoStore
	}
	snap, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := r.load(snap); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	r.logger.Debug("backup restored", "devices", len(r.devOrder), "groups", len(r.grpOrder))
	return nil
}

func (r *Registry) load(snap *store.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	pool, err := idpool.New(r.pool.Base(), r.pool.Size())
	if err != nil {
		return err
	}
	devices := make(map[string]*device, len(snap.Devices))
	devOrder := make([]string, 0, len(snap.Devices))
	for _, sd := range snap.Devices {
		if err := pool.Reserve(sd.ID); err != nil {
			return fmt.Errorf("device %q: %v: %w", sd.Name, err, store.ErrCorrupt)
		}
		d := &device{id: sd.ID, on: sd.On, groups: make(map[string]struct{}, len(sd.Groups))}
		for _, g := range sd.Groups {
			d.groups[g] = struct{}{}
		}
		devices[sd.Name] = d
		devOrder = append(devOrder, sd.Name)
	}
	groups := make(map[string]*group, len(snap.Groups))
	grpOrder := make([]string, 0, len(snap.Groups))
	for _, sg := range snap.Groups {
		g := &group{members: make(map[string]struct{}, len(sg.Members))}
		for _, m := range sg.Members {
			g.members[m] = struct{}{}
		}
		groups[sg.Name] = g
		grpOrder = append(grpOrder, sg.Name)
	}

	r.pool = pool
	r.devices, r.devOrder = devices, devOrder
	r.groups, r.grpOrder = groups, grpOrder
	return nil
}

func (r *Registry) dropDevice(name string) {
	delete(r.devices, name)
	r.devOrder = slices.DeleteFunc(r.devOrder, func(s string) bool { return s == name })
}

func sortedKeys(m map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(m))
}
