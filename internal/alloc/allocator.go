// Package alloc hands out file space to the HDF5 writer and accounts for
// what each byte was spent on.
package alloc

import (
	"fmt"
	"sync"
)

// Kind classifies an allocation for storage accounting.
type Kind uint8

const (
	// Meta covers object headers, chunk indexes and other structure.
	Meta Kind = iota
	// Raw covers stored chunk payloads.
	Raw
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Meta:
		return "meta"
	case Raw:
		return "raw"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Allocator is an append-only allocator. Released blocks are not reused;
// they are counted so that the cost of rewriting headers stays visible.
type Allocator struct {
	mu       sync.Mutex
	base     uint64
	eof      uint64
	stats    Stats
	released []Block
}

// Block is a released range of the file.
type Block struct {
	Addr uint64
	Size uint64
}

// Stats summarizes allocations by kind.
type Stats struct {
	Allocations uint64
	Bytes       [numKinds]uint64
	Released    uint64
	Largest     uint64
}

// Total returns the bytes allocated across all kinds.
func (s Stats) Total() uint64 {
	var n uint64
	for _, b := range s.Bytes {
		n += b
	}
	return n
}

// New returns an allocator whose first block starts at base.
func New(base uint64) *Allocator {
	return &Allocator{base: base, eof: base}
}

// Alloc reserves size bytes at the end of the file.
func (a *Allocator) Alloc(size uint64, kind Kind) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocLocked(size, kind)
}

// AllocAligned reserves size bytes starting on a multiple of align. The
// skipped bytes are accounted as metadata.
func (a *Allocator) AllocAligned(size, align uint64, kind Kind) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if align > 1 {
		if rem := a.eof % align; rem != 0 {
			a.stats.Bytes[Meta] += align - rem
			a.eof += align - rem
		}
	}
	return a.allocLocked(size, kind)
}

func (a *Allocator) allocLocked(size uint64, kind Kind) uint64 {
	addr := a.eof
	if size == 0 {
		return addr
	}
	a.eof += size
	a.stats.Allocations++
	a.stats.Bytes[kind] += size
	a.stats.Largest = max(a.stats.Largest, size)
	return addr
}

// Release records that a block is no longer referenced.
func (a *Allocator) Release(addr, size uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if addr < a.base || addr+size > a.eof {
		return fmt.Errorf("release of [%d, %d) outside allocated range [%d, %d)", addr, addr+size, a.base, a.eof)
	}
	a.released = append(a.released, Block{Addr: addr, Size: size})
	a.stats.Released += size
	return nil
}

// EOF returns the address one past the last allocated byte.
func (a *Allocator) EOF() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}

// Stats returns a snapshot of the allocation counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Released returns the blocks released so far.
func (a *Allocator) Released() []Block {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Block(nil), a.released...)
}
