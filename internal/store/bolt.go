package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

var (
	bucketDevices = []byte("devices")
	bucketGroups  = []byte("groups")
	bucketMeta    = []byte("meta")
	keyVersion    = []byte("version")
)

// deviceRecord is the value stored under a device name. Seq keeps insertion
// order, since bolt iterates keys sorted.
type deviceRecord struct {
	Seq    int      `json:"seq"`
	ID     uint32   `json:"id"`
	On     bool     `json:"on"`
	Groups []string `json:"groups,omitempty"`
}

type groupRecord struct {
	Seq     int      `json:"seq"`
	Members []string `json:"members,omitempty"`
}

// BoltStore implements Store using a single BoltDB file. The database is
// opened for the duration of each Save or Load and closed afterwards.
type BoltStore struct {
	path    string
	timeout time.Duration
}

// NewBoltStore returns a store backed by the BoltDB file at path. The file is
// created on the first Save.
func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path, timeout: 5 * time.Second}
}

// Path returns the database file path.
func (s *BoltStore) Path() string { return s.path }

// Save rewrites every bucket from snap in a single transaction.
func (s *BoltStore) Save(snap *Snapshot) (err error) {
	if err := ensureDir(s.path); err != nil {
		return err
	}
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return s.openError(err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close bolt db: %w", cerr)
		}
	}()

	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDevices, bucketGroups, bucketMeta} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("reset bucket %q: %w", name, err)
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyVersion, []byte(strconv.Itoa(SchemaVersion))); err != nil {
			return err
		}

		devices := tx.Bucket(bucketDevices)
		for i, d := range snap.Devices {
			data, err := json.Marshal(deviceRecord{Seq: i, ID: d.ID, On: d.On, Groups: d.Groups})
			if err != nil {
				return err
			}
			if err := devices.Put([]byte(d.Name), data); err != nil {
				return fmt.Errorf("put device %q: %w", d.Name, err)
			}
		}

		groups := tx.Bucket(bucketGroups)
		for i, g := range snap.Groups {
			data, err := json.Marshal(groupRecord{Seq: i, Members: g.Members})
			if err != nil {
				return err
			}
			if err := groups.Put([]byte(g.Name), data); err != nil {
				return fmt.Errorf("put group %q: %w", g.Name, err)
			}
		}
		return nil
	})
}

// Load reads the snapshot. A missing file yields an empty snapshot.
func (s *BoltStore) Load() (snap *Snapshot, err error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s is empty: %w", s.path, ErrCorrupt)
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{ReadOnly: true, Timeout: s.timeout})
	if err != nil {
		return nil, s.openError(err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close bolt db: %w", cerr)
		}
	}()

	type seqDevice struct {
		seq int
		dev Device
	}
	type seqGroup struct {
		seq   int
		group Group
	}
	var devices []seqDevice
	var groups []seqGroup
	version := 0

	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return fmt.Errorf("bucket %q not found: %w", bucketMeta, ErrCorrupt)
		}
		v, err := strconv.Atoi(string(meta.Get(keyVersion)))
		if err != nil {
			return fmt.Errorf("schema version: %v: %w", err, ErrCorrupt)
		}
		version = v

		if b := tx.Bucket(bucketDevices); b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				var rec deviceRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("device %q: %v: %w", k, err, ErrCorrupt)
				}
				devices = append(devices, seqDevice{seq: rec.Seq, dev: Device{
					Name:   string(k),
					ID:     rec.ID,
					On:     rec.On,
					Groups: rec.Groups,
				}})
				return nil
			}); err != nil {
				return err
			}
		}

		if b := tx.Bucket(bucketGroups); b != nil {
			return b.ForEach(func(k, v []byte) error {
				var rec groupRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("group %q: %v: %w", k, err, ErrCorrupt)
				}
				groups = append(groups, seqGroup{seq: rec.Seq, group: Group{
					Name:    string(k),
					Members: rec.Members,
				}})
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(devices, func(i, j int) bool { return devices[i].seq < devices[j].seq })
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].seq < groups[j].seq })

	snap = NewSnapshot()
	snap.Version = version
	for _, d := range devices {
		snap.Devices = append(snap.Devices, d.dev)
	}
	for _, g := range groups {
		snap.Groups = append(snap.Groups, g.group)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return snap, nil
}

// openError classifies a bolt.Open failure. Lock timeouts and permission
// problems are reported as-is; anything else means the file is not a
// readable database.
func (s *BoltStore) openError(err error) error {
	if errors.Is(err, berrors.ErrTimeout) || errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("open bolt db %s: %w", s.path, err)
	}
	return fmt.Errorf("open bolt db %s: %v: %w", s.path, err, ErrCorrupt)
}
