// Package heap reads the local heaps that hold member names of old-style
// groups.
package heap

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// LocalHeap is a decoded local heap with its data segment loaded.
type LocalHeap struct {
	DataSize    uint64
	FreeOffset  uint64
	DataAddress uint64
	data        []byte
}

// ReadLocal reads the local heap at addr.
func ReadLocal(r *binary.Reader, addr uint64) (*LocalHeap, error) {
	s := r.Sizes()
	c, err := r.CursorAt(addr, 8+2*s.Length+s.Offset)
	if err != nil {
		return nil, fmt.Errorf("local heap at %d: %w", addr, err)
	}
	if sig := string(c.Bytes(4)); sig != "HEAP" {
		return nil, fmt.Errorf("local heap at %d: bad signature %q", addr, sig)
	}
	if v := c.U8(); v != 0 {
		return nil, fmt.Errorf("local heap at %d: unsupported version %d", addr, v)
	}
	c.Skip(3)
	h := &LocalHeap{DataSize: c.Length(), FreeOffset: c.Length(), DataAddress: c.Offset()}

	h.data, err = r.ReadAt(h.DataAddress, int(h.DataSize))
	if err != nil {
		return nil, fmt.Errorf("local heap data: %w", err)
	}
	return h, nil
}

// String returns the NUL-terminated string at off.
func (h *LocalHeap) String(off uint64) (string, error) {
	if off >= uint64(len(h.data)) {
		return "", fmt.Errorf("local heap offset %d outside %d-byte segment", off, len(h.data))
	}
	return binary.TrimNUL(h.data[off:]), nil
}
