package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pidom/internal/events"
	"pidom/internal/idpool"
	"pidom/internal/store"
)

type call struct {
	id uint32
	on bool
}

// fakeTransmitter records frames and fails for ids in failIDs.
type fakeTransmitter struct {
	calls   []call
	failIDs map[uint32]bool
}

var errRadio = errors.New("radio unavailable")

func (f *fakeTransmitter) Transmit(_ context.Context, id uint32, on bool) error {
	if f.failIDs[id] {
		return errRadio
	}
	f.calls = append(f.calls, call{id, on})
	return nil
}

func (f *fakeTransmitter) fail(id uint32) {
	if f.failIDs == nil {
		f.failIDs = make(map[uint32]bool)
	}
	f.failIDs[id] = true
}

// countPairer calls send a fixed number of times.
type countPairer struct {
	n   int
	err error
}

func (p countPairer) Pair(ctx context.Context, send func(context.Context) error) error {
	for i := 0; i < p.n; i++ {
		if err := send(ctx); err != nil {
			return err
		}
	}
	return p.err
}

type recorder struct {
	events []events.Event
}

func (r *recorder) handle(e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(typ string) []events.Event {
	var out []events.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRegistry(t *testing.T, opts Options) (*Registry, *fakeTransmitter, *recorder) {
	t.Helper()
	tx := &fakeTransmitter{}
	if opts.Transmitter == nil {
		opts.Transmitter = tx
	}
	if opts.Pairer == nil {
		opts.Pairer = countPairer{n: 3}
	}
	opts.Logger = newTestLogger()
	r, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	r.Bus().SubscribeAll(rec.handle)
	return r, tx, rec
}

func mustSync(t *testing.T, r *Registry, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := r.Synchronize(context.Background(), name); err != nil {
			t.Fatalf("Synchronize(%q): %v", name, err)
		}
	}
}

func mustState(t *testing.T, r *Registry, name string) bool {
	t.Helper()
	on, err := r.State(name)
	if err != nil {
		t.Fatalf("State(%q): %v", name, err)
	}
	return on
}

func TestNewRegistryIsEmpty(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})

	if got := r.Devices(); len(got) != 0 {
		t.Errorf("devices = %v, want empty", got)
	}
	if got := r.Groups(); len(got) != 0 {
		t.Errorf("groups = %v, want empty", got)
	}
	free := r.FreeIDs()
	if len(free) != DefaultPoolSize {
		t.Fatalf("free ids = %d, want %d", len(free), DefaultPoolSize)
	}
	for i, id := range free {
		if want := DefaultBaseID + uint32(i); id != want {
			t.Errorf("free[%d] = 0x%X, want 0x%X", i, id, want)
		}
	}
}

func TestNewRequiresTransmitter(t *testing.T) {
	if _, err := New(Options{Logger: newTestLogger()}); err == nil {
		t.Error("expected error without transmitter")
	}
}

func TestSynchronize(t *testing.T) {
	r, tx, rec := newTestRegistry(t, Options{})

	id, err := r.Synchronize(context.Background(), "lamp")
	if err != nil {
		t.Fatal(err)
	}
	if id != DefaultBaseID {
		t.Errorf("id = 0x%X, want 0x%X", id, DefaultBaseID)
	}
	if mustState(t, r, "lamp") {
		t.Error("state after synchronize = on, want off")
	}

	want := []call{{id, true}, {id, true}, {id, true}, {id, false}}
	if !reflect.DeepEqual(tx.calls, want) {
		t.Errorf("calls = %v, want %v", tx.calls, want)
	}
	if got := rec.ofType(events.DeviceSynchronized); len(got) != 1 || got[0].ID != id {
		t.Errorf("synchronized events = %+v, want one with id 0x%X", got, id)
	}
	if got := r.FreeIDs(); len(got) != DefaultPoolSize-1 {
		t.Errorf("free ids = %d, want %d", len(got), DefaultPoolSize-1)
	}
}

func TestSynchronizeDuplicate(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	mustSync(t, r, "lamp")

	_, err := r.Synchronize(context.Background(), "lamp")
	if !errors.Is(err, ErrNameRegistered) {
		t.Errorf("err = %v, want %v", err, ErrNameRegistered)
	}
	if got := r.FreeIDs(); len(got) != DefaultPoolSize-1 {
		t.Errorf("free ids = %d, want %d", len(got), DefaultPoolSize-1)
	}
}

func TestSynchronizePoolExhausted(t *testing.T) {
	pool, err := idpool.New(0x10, 2)
	if err != nil {
		t.Fatal(err)
	}
	r, _, _ := newTestRegistry(t, Options{Pool: pool})
	mustSync(t, r, "a", "b")

	_, err = r.Synchronize(context.Background(), "c")
	if !errors.Is(err, idpool.ErrPoolExhausted) {
		t.Errorf("err = %v, want %v", err, idpool.ErrPoolExhausted)
	}
	if _, err := r.State("c"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("c registered after exhaustion: %v", err)
	}
}

func TestSynchronizeRollsBackOnPairingFailure(t *testing.T) {
	errPair := errors.New("pairing interrupted")
	r, _, rec := newTestRegistry(t, Options{Pairer: countPairer{n: 1, err: errPair}})

	_, err := r.Synchronize(context.Background(), "lamp")
	if !errors.Is(err, errPair) {
		t.Fatalf("err = %v, want %v", err, errPair)
	}
	if got := r.Devices(); len(got) != 0 {
		t.Errorf("devices = %v, want empty", got)
	}
	if got := r.FreeIDs(); len(got) != DefaultPoolSize {
		t.Errorf("free ids = %d, want %d", len(got), DefaultPoolSize)
	}
	if got := rec.ofType(events.DeviceDeleted); len(got) != 1 {
		t.Errorf("deleted events = %d, want 1", len(got))
	}
}

func TestSynchronizeTransmitFailure(t *testing.T) {
	r, tx, _ := newTestRegistry(t, Options{})
	tx.fail(DefaultBaseID)

	_, err := r.Synchronize(context.Background(), "lamp")
	if !errors.Is(err, ErrTransmit) || !errors.Is(err, errRadio) {
		t.Errorf("err = %v, want %v wrapping %v", err, ErrTransmit, errRadio)
	}
	if got := r.FreeIDs(); len(got) != DefaultPoolSize {
		t.Errorf("free ids = %d, want %d", len(got), DefaultPoolSize)
	}
}

func TestSyncThenUnsync(t *testing.T) {
	r, _, rec := newTestRegistry(t, Options{})
	mustSync(t, r, "lamp")
	id := DefaultBaseID

	if err := r.Unsynchronize(context.Background(), "lamp"); err != nil {
		t.Fatal(err)
	}
	if got := r.Devices(); len(got) != 0 {
		t.Errorf("devices = %v, want empty", got)
	}
	free := r.FreeIDs()
	if len(free) != DefaultPoolSize || free[0] != id {
		t.Errorf("free ids = %v, want full range", free)
	}
	deleted := rec.ofType(events.DeviceDeleted)
	if len(deleted) != 1 || deleted[0].Name != "lamp" {
		t.Errorf("deleted events = %+v, want one for lamp", deleted)
	}
}

func TestUnsynchronizeUnknown(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	if err := r.Unsynchronize(context.Background(), "ghost"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("err = %v, want %v", err, ErrUnknownDevice)
	}
}

func TestUnsynchronizeUnreachable(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		r, tx, _ := newTestRegistry(t, Options{})
		mustSync(t, r, "lamp")
		tx.fail(DefaultBaseID)

		err := r.Unsynchronize(context.Background(), "lamp")
		if !errors.Is(err, ErrTransmit) {
			t.Fatalf("err = %v, want %v", err, ErrTransmit)
		}
		if got := r.Devices(); len(got) != 1 {
			t.Errorf("devices = %v, want lamp kept", got)
		}
	})

	t.Run("tolerant", func(t *testing.T) {
		r, tx, rec := newTestRegistry(t, Options{TolerateUnreachable: true})
		mustSync(t, r, "lamp")
		tx.fail(DefaultBaseID)

		if err := r.Unsynchronize(context.Background(), "lamp"); err != nil {
			t.Fatal(err)
		}
		if got := r.Devices(); len(got) != 0 {
			t.Errorf("devices = %v, want empty", got)
		}
		if got := rec.ofType(events.DeviceDeleted); len(got) != 1 {
			t.Errorf("deleted events = %d, want 1", len(got))
		}
	})
}

func TestToggleTwice(t *testing.T) {
	r, _, rec := newTestRegistry(t, Options{})
	mustSync(t, r, "lamp")
	rec.events = nil

	if err := r.Toggle(context.Background(), Name("lamp")); err != nil {
		t.Fatal(err)
	}
	if !mustState(t, r, "lamp") {
		t.Error("state after first toggle = off, want on")
	}
	updated := rec.ofType(events.DeviceUpdated)
	if len(updated) != 1 || updated[0].Name != "lamp" || !updated[0].On {
		t.Errorf("updated events = %+v, want one lamp on", updated)
	}

	if err := r.Toggle(context.Background(), Name("lamp")); err != nil {
		t.Fatal(err)
	}
	if mustState(t, r, "lamp") {
		t.Error("state after second toggle = on, want off")
	}
}

func TestSwitchUnknownDevice(t *testing.T) {
	r, tx, _ := newTestRegistry(t, Options{})
	if err := r.SwitchOn(context.Background(), Name("ghost")); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("err = %v, want %v", err, ErrUnknownDevice)
	}
	if len(tx.calls) != 0 {
		t.Errorf("transmitted %d frames, want 0", len(tx.calls))
	}
}

func TestTransmitFailureKeepsState(t *testing.T) {
	r, tx, rec := newTestRegistry(t, Options{})
	mustSync(t, r, "lamp")
	rec.events = nil
	tx.fail(DefaultBaseID)

	err := r.SwitchOn(context.Background(), Name("lamp"))
	if !errors.Is(err, ErrTransmit) {
		t.Fatalf("err = %v, want %v", err, ErrTransmit)
	}
	if mustState(t, r, "lamp") {
		t.Error("state changed despite transmit failure")
	}
	if len(rec.events) != 0 {
		t.Errorf("events = %+v, want none", rec.events)
	}
}

func TestBulkFailureStopsBatch(t *testing.T) {
	r, tx, _ := newTestRegistry(t, Options{})
	mustSync(t, r, "a", "b", "c")
	tx.fail(DefaultBaseID + 1) // b

	err := r.SwitchOn(context.Background(), Names("a", "b", "c"))
	if !errors.Is(err, ErrTransmit) {
		t.Fatalf("err = %v, want %v", err, ErrTransmit)
	}
	if !mustState(t, r, "a") {
		t.Error("a = off, want on (no rollback)")
	}
	if mustState(t, r, "c") {
		t.Error("c = on, want off (batch aborted)")
	}
}

func TestReset(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	mustSync(t, r, "a", "b")
	if err := r.SwitchOn(context.Background(), Names("a", "b")); err != nil {
		t.Fatal(err)
	}

	if err := r.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b"} {
		if mustState(t, r, name) {
			t.Errorf("%s = on after reset", name)
		}
	}
	if got, want := r.Devices(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("devices = %v, want %v", got, want)
	}
}

func TestClear(t *testing.T) {
	r, _, rec := newTestRegistry(t, Options{})
	mustSync(t, r, "a", "b", "c")
	if err := r.NewGroup(context.Background(), "all", []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}

	if err := r.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.Devices(); len(got) != 0 {
		t.Errorf("devices = %v, want empty", got)
	}
	if got := r.FreeIDs(); len(got) != DefaultPoolSize {
		t.Errorf("free ids = %d, want %d", len(got), DefaultPoolSize)
	}
	if got := rec.ofType(events.DeviceDeleted); len(got) != 3 {
		t.Errorf("deleted events = %d, want 3", len(got))
	}
	members, err := r.Members("all")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 0 {
		t.Errorf("members = %v, want empty", members)
	}
}

func TestStateUnknown(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	if _, err := r.State("ghost"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("err = %v, want %v", err, ErrUnknownDevice)
	}
}

func TestGroupLifecycle(t *testing.T) {
	r, _, rec := newTestRegistry(t, Options{})
	mustSync(t, r, "a", "b", "c")
	ctx := context.Background()

	if err := r.NewGroup(ctx, "g", []string{"a", "b", "ghost"}); err != nil {
		t.Fatal(err)
	}
	members, _ := r.Members("g")
	if want := []string{"a", "b"}; !reflect.DeepEqual(members, want) {
		t.Errorf("members = %v, want %v", members, want)
	}
	if got := rec.ofType(events.GroupCreated); len(got) != 1 {
		t.Errorf("group created events = %d, want 1", len(got))
	}

	if err := r.SwitchOn(ctx, Name("g")); err != nil {
		t.Fatal(err)
	}
	if !mustState(t, r, "a") || !mustState(t, r, "b") {
		t.Error("group members not switched on")
	}
	if mustState(t, r, "c") {
		t.Error("non-member c switched on")
	}

	if err := r.RmGroup(ctx, "g"); err != nil {
		t.Fatal(err)
	}
	if got := r.Groups(); len(got) != 0 {
		t.Errorf("groups = %v, want empty", got)
	}
	for _, name := range []string{"a", "b"} {
		d, err := r.Device(name)
		if err != nil {
			t.Fatal(err)
		}
		if len(d.Groups) != 0 {
			t.Errorf("%s groups = %v, want empty", name, d.Groups)
		}
		if d.On {
			t.Errorf("%s = on after group removal, want off", name)
		}
	}
	if got := r.Devices(); len(got) != 3 {
		t.Errorf("devices = %v, want all three kept", got)
	}
}

func TestNewGroupSwitchesMembersOff(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	mustSync(t, r, "a")
	ctx := context.Background()
	if err := r.SwitchOn(ctx, Name("a")); err != nil {
		t.Fatal(err)
	}

	if err := r.NewGroup(ctx, "g", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if mustState(t, r, "a") {
		t.Error("a = on after joining group, want off")
	}
}

func TestGroupErrors(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	ctx := context.Background()
	if err := r.NewGroup(ctx, "g", nil); err != nil {
		t.Fatal(err)
	}

	if err := r.NewGroup(ctx, "g", nil); !errors.Is(err, ErrGroupExists) {
		t.Errorf("NewGroup dup err = %v, want %v", err, ErrGroupExists)
	}
	if err := r.RmGroup(ctx, "nope"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("RmGroup err = %v, want %v", err, ErrUnknownGroup)
	}
	if err := r.SwitchOn(ctx, GroupName("nope")); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("SwitchOn(GroupName) err = %v, want %v", err, ErrUnknownGroup)
	}
}

func TestResolve(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	mustSync(t, r, "a", "b", "shared")
	ctx := context.Background()
	if err := r.NewGroup(ctx, "shared", []string{"b", "a"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target Target
		want   []string
	}{
		{"device", Name("a"), []string{"a"}},
		{"group wins for plain name", Name("shared"), []string{"a", "b"}},
		{"forced device", DeviceName("shared"), []string{"shared"}},
		{"group", GroupName("shared"), []string{"a", "b"}},
		{"names", Names("b", "a"), []string{"b", "a"}},
		{"unknown name", Name("ghost"), []string{"ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.target)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZeroTarget(t *testing.T) {
	r, tx, _ := newTestRegistry(t, Options{})
	mustSync(t, r, "a")
	tx.calls = nil

	if _, err := r.Resolve(Target{}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Resolve err = %v, want %v", err, ErrEmptyName)
	}
	if err := r.SwitchOn(context.Background(), Target{}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("SwitchOn err = %v, want %v", err, ErrEmptyName)
	}
	if err := r.SwitchOn(context.Background(), Names()); err != nil {
		t.Errorf("SwitchOn(Names()) err = %v, want nil", err)
	}
	if len(tx.calls) != 0 {
		t.Errorf("transmitted %v, want nothing", tx.calls)
	}
}

func TestRename(t *testing.T) {
	r, _, rec := newTestRegistry(t, Options{})
	mustSync(t, r, "a", "b")
	ctx := context.Background()
	if err := r.NewGroup(ctx, "g", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.SwitchOn(ctx, Name("a")); err != nil {
		t.Fatal(err)
	}
	before, _ := r.Device("a")

	if err := r.Rename("a", "lamp"); err != nil {
		t.Fatal(err)
	}
	after, err := r.Device("lamp")
	if err != nil {
		t.Fatal(err)
	}
	if after.ID != before.ID || after.On != before.On || !reflect.DeepEqual(after.Groups, before.Groups) {
		t.Errorf("after = %+v, want attributes of %+v", after, before)
	}
	if _, err := r.State("a"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("old name still present: %v", err)
	}
	if got, want := r.Devices(), []string{"lamp", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("devices = %v, want %v", got, want)
	}
	members, _ := r.Members("g")
	if want := []string{"lamp"}; !reflect.DeepEqual(members, want) {
		t.Errorf("members = %v, want %v", members, want)
	}
	renamed := rec.ofType(events.DeviceRenamed)
	if len(renamed) != 1 || renamed[0].OldName != "a" || renamed[0].Name != "lamp" {
		t.Errorf("renamed events = %+v", renamed)
	}

	if err := r.Rename("ghost", "x"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("unknown source err = %v, want %v", err, ErrUnknownDevice)
	}
	if err := r.Rename("lamp", "b"); !errors.Is(err, ErrNameRegistered) {
		t.Errorf("taken target err = %v, want %v", err, ErrNameRegistered)
	}
}

func TestRenameGroup(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	mustSync(t, r, "a")
	ctx := context.Background()
	for _, g := range []string{"g", "h"} {
		if err := r.NewGroup(ctx, g, []string{"a"}); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.RenameGroup("g", "living"); err != nil {
		t.Fatal(err)
	}
	if got, want := r.Groups(), []string{"living", "h"}; !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
	d, _ := r.Device("a")
	if want := []string{"h", "living"}; !reflect.DeepEqual(d.Groups, want) {
		t.Errorf("a groups = %v, want %v", d.Groups, want)
	}

	if err := r.RenameGroup("g", "x"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("unknown source err = %v, want %v", err, ErrUnknownGroup)
	}
	if err := r.RenameGroup("living", "h"); !errors.Is(err, ErrGroupExists) {
		t.Errorf("taken target err = %v, want %v", err, ErrGroupExists)
	}
}

func TestEventHandlerErrorSurfaces(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	mustSync(t, r, "lamp")
	errHook := errors.New("hook failed")
	r.Bus().Subscribe(events.DeviceUpdated, func(events.Event) error { return errHook })

	err := r.SwitchOn(context.Background(), Name("lamp"))
	if !errors.Is(err, errHook) {
		t.Errorf("err = %v, want %v", err, errHook)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		st   func(dir string) store.Store
	}{
		{"bolt", func(dir string) store.Store { return store.NewBoltStore(filepath.Join(dir, "pidom.db")) }},
		{"yaml", func(dir string) store.Store { return store.NewFileStore(filepath.Join(dir, "pidom.yaml")) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			st := tc.st(t.TempDir())
			r, _, _ := newTestRegistry(t, Options{Store: st})
			ctx := context.Background()
			mustSync(t, r, "lamp", "fan", "heater")
			if err := r.NewGroup(ctx, "living", []string{"lamp", "heater"}); err != nil {
				t.Fatal(err)
			}
			if err := r.SwitchOn(ctx, Name("fan")); err != nil {
				t.Fatal(err)
			}
			if err := r.Unsynchronize(ctx, "lamp"); err != nil {
				t.Fatal(err)
			}
			mustSync(t, r, "lamp2")
			if err := r.Backup(); err != nil {
				t.Fatal(err)
			}

			fresh, _, _ := newTestRegistry(t, Options{Store: st})
			if err := fresh.Restore(); err != nil {
				t.Fatal(err)
			}
			if got, want := fresh.Snapshot(), r.Snapshot(); !reflect.DeepEqual(got, want) {
				t.Errorf("restored snapshot = %+v, want %+v", got, want)
			}
			if got, want := fresh.FreeIDs(), r.FreeIDs(); !reflect.DeepEqual(got, want) {
				t.Errorf("free ids = %v, want %v", got, want)
			}
			if got, want := fresh.Devices(), []string{"fan", "heater", "lamp2"}; !reflect.DeepEqual(got, want) {
				t.Errorf("devices = %v, want %v", got, want)
			}
		})
	}
}

// memStore holds one snapshot in memory.
type memStore struct {
	snap *store.Snapshot
}

func (m *memStore) Save(s *store.Snapshot) error { m.snap = s; return nil }
func (m *memStore) Load() (*store.Snapshot, error) {
	if m.snap == nil {
		return store.NewSnapshot(), nil
	}
	return m.snap, nil
}

func TestRestoreRejectsBadIDs(t *testing.T) {
	tests := []struct {
		name    string
		devices []store.Device
	}{
		{"out of range", []store.Device{{Name: "a", ID: 0x1}}},
		{"duplicate", []store.Device{{Name: "a", ID: DefaultBaseID}, {Name: "b", ID: DefaultBaseID}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := store.NewSnapshot()
			snap.Devices = tt.devices
			r, _, _ := newTestRegistry(t, Options{Store: &memStore{snap: snap}})

			if err := r.Restore(); !errors.Is(err, store.ErrCorrupt) {
				t.Errorf("err = %v, want %v", err, store.ErrCorrupt)
			}
			if got := r.FreeIDs(); len(got) != DefaultPoolSize {
				t.Errorf("pool changed after failed restore: %d free", len(got))
			}
		})
	}
}

func TestBackupWithoutStore(t *testing.T) {
	r, _, _ := newTestRegistry(t, Options{})
	if err := r.Backup(); !errors.Is(err, ErrNoStore) {
		t.Errorf("Backup err = %v, want %v", err, ErrNoStore)
	}
	if err := r.Restore(); !errors.Is(err, ErrNoStore) {
		t.Errorf("Restore err = %v, want %v", err, ErrNoStore)
	}
}
