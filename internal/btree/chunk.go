package btree

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// Chunk locates one stored chunk of a dataset.
type Chunk struct {
	Offset     []uint64 // element offset of the chunk's first element
	Size       uint32   // stored bytes
	FilterMask uint32   // bit i set means filter i was skipped
	Address    uint64
}

// ReadChunks returns every chunk indexed by the version 1 B-tree at addr
// for a dataset of the given rank.
func ReadChunks(r *binary.Reader, addr uint64, rank int) ([]Chunk, error) {
	var out []Chunk
	err := walkChunks(r, addr, rank, 0, &out)
	return out, err
}

func walkChunks(r *binary.Reader, addr uint64, rank, depth int, out *[]Chunk) error {
	if depth > maxDepth {
		return fmt.Errorf("chunk B-tree deeper than %d levels", maxDepth)
	}
	h, prefix, err := readNodeHeader(r, addr, nodeChunk)
	if err != nil {
		return err
	}
	s := r.Sizes()
	keySize := 8 + 8*(rank+1)
	c, err := r.CursorAt(addr+uint64(prefix), h.entries*(keySize+s.Offset)+keySize)
	if err != nil {
		return err
	}
	for i := 0; i < h.entries; i++ {
		k := Chunk{Size: c.U32(), FilterMask: c.U32(), Offset: make([]uint64, rank)}
		for d := range k.Offset {
			k.Offset[d] = c.U64()
		}
		c.Skip(8) // element-size dimension, always zero
		k.Address = c.Offset()
		if c.Err() != nil {
			return c.Err()
		}
		if h.level > 0 {
			if err := walkChunks(r, k.Address, rank, depth+1, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, k)
	}
	return nil
}
