package idpool

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrPoolExhausted is returned by Allocate when every id is assigned.
	ErrPoolExhausted = errors.New("idpool: exhausted")

	// ErrInvalidRelease is returned when releasing an id that is outside the
	// range or not currently assigned.
	ErrInvalidRelease = errors.New("idpool: invalid release")

	// ErrInvalidReserve is returned when reserving an id that is outside the
	// range or already assigned.
	ErrInvalidReserve = errors.New("idpool: invalid reserve")
)

// Pool hands out device identifiers from the fixed range [base, base+size).
// Every id in the range is either available or assigned, never both.
type Pool struct {
	base      uint32
	size      int
	available map[uint32]struct{}
}

// New creates a pool with every id in [base, base+size) available.
func New(base uint32, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("idpool: size must be positive, got %d", size)
	}
	if uint64(base)+uint64(size)-1 > math.MaxUint32 {
		return nil, fmt.Errorf("idpool: range 0x%08X+%d overflows uint32", base, size)
	}
	p := &Pool{
		base:      base,
		size:      size,
		available: make(map[uint32]struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.available[base+uint32(i)] = struct{}{}
	}
	return p, nil
}

// Base returns the first id of the range.
func (p *Pool) Base() uint32 { return p.base }

// Size returns the number of ids in the range.
func (p *Pool) Size() int { return p.size }

// Len returns the number of available ids.
func (p *Pool) Len() int { return len(p.available) }

// Contains reports whether id belongs to the range, assigned or not.
func (p *Pool) Contains(id uint32) bool {
	return id >= p.base && uint64(id) < uint64(p.base)+uint64(p.size)
}

// IsAvailable reports whether id is in the range and not assigned.
func (p *Pool) IsAvailable(id uint32) bool {
	_, ok := p.available[id]
	return ok
}

// Allocate removes and returns the lowest available id.
func (p *Pool) Allocate() (uint32, error) {
	if len(p.available) == 0 {
		return 0, fmt.Errorf("allocate from %d ids: %w", p.size, ErrPoolExhausted)
	}
	for i := 0; i < p.size; i++ {
		id := p.base + uint32(i)
		if _, ok := p.available[id]; ok {
			delete(p.available, id)
			return id, nil
		}
	}
	// Unreachable while the available set only holds in-range ids.
	return 0, ErrPoolExhausted
}

// Release returns an assigned id to the available set.
func (p *Pool) Release(id uint32) error {
	if !p.Contains(id) {
		return fmt.Errorf("release 0x%08X: out of range: %w", id, ErrInvalidRelease)
	}
	if _, ok := p.available[id]; ok {
		return fmt.Errorf("release 0x%08X: already available: %w", id, ErrInvalidRelease)
	}
	p.available[id] = struct{}{}
	return nil
}

// Reserve marks a specific id as assigned. Used when rebuilding the pool
// from persisted devices.
func (p *Pool) Reserve(id uint32) error {
	if !p.Contains(id) {
		return fmt.Errorf("reserve 0x%08X: out of range: %w", id, ErrInvalidReserve)
	}
	if _, ok := p.available[id]; !ok {
		return fmt.Errorf("reserve 0x%08X: already assigned: %w", id, ErrInvalidReserve)
	}
	delete(p.available, id)
	return nil
}

// Available returns the available ids in ascending order.
func (p *Pool) Available() []uint32 {
	ids := make([]uint32, 0, len(p.available))
	for id := range p.available {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
