package filter

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	hbin "github.com/robert-malhotra/tomochunk/internal/binary"
)

// Fletcher32 appends a checksum to each chunk and verifies it on read.
type Fletcher32 struct{}

func NewFletcher32() *Fletcher32 { return &Fletcher32{} }

func (f *Fletcher32) ID() uint16           { return IDFletcher32 }
func (f *Fletcher32) Name() string         { return "fletcher32" }
func (f *Fletcher32) ClientData() []uint32 { return nil }

func (f *Fletcher32) Encode(in []byte) ([]byte, error) {
	out := make([]byte, len(in), len(in)+4)
	copy(out, in)
	return binary.LittleEndian.AppendUint32(out, hbin.Fletcher32(in)), nil
}

// Decode strips the checksum. Files from HDF5 releases before 1.6.3 stored
// it byte swapped, so both orders are accepted.
func (f *Fletcher32) Decode(in []byte) ([]byte, error) {
	if len(in) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, no room for a checksum", ErrCorrupt, len(in))
	}
	data := in[:len(in)-4]
	stored := binary.LittleEndian.Uint32(in[len(in)-4:])
	sum := hbin.Fletcher32(data)
	if stored != sum && stored != bits.ReverseBytes32(sum) {
		return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksum, stored, sum)
	}
	return data, nil
}
