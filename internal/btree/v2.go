package btree

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// Version 2 B-tree record types that index dataset chunks.
const (
	TypeChunk         uint8 = 10
	TypeChunkFiltered uint8 = 11
)

// v2 node prefix: signature, version, type and the trailing checksum.
const v2Prefix = 4 + 1 + 1 + 4

type v2Header struct {
	typ      uint8
	nodeSize int
	recSize  int
	depth    int
	root     uint64
	rootRecs int
	total    uint64

	// Per-depth limits, as the library derives them from the node size.
	maxRecs    []int
	maxRecSize int // width of a child's record count
	cumSize    []int
}

// ReadChunksV2 returns every chunk indexed by the version 2 B-tree at addr
// for a dataset of the given rank and chunk shape. Records of unfiltered
// chunks carry no size; those chunks are returned with Size 0.
func ReadChunksV2(r *binary.Reader, addr uint64, chunk []uint64) ([]Chunk, error) {
	h, err := readV2Header(r, addr)
	if err != nil {
		return nil, err
	}
	if h.typ != TypeChunk && h.typ != TypeChunkFiltered {
		return nil, fmt.Errorf("B-tree v2 at %d: record type %d does not index chunks", addr, h.typ)
	}
	rank := len(chunk)
	minRec := r.Sizes().Offset + 8*rank
	if h.typ == TypeChunkFiltered {
		minRec += 1 + 4
	}
	if h.recSize < minRec {
		return nil, fmt.Errorf("B-tree v2 at %d: record size %d too small for rank %d", addr, h.recSize, rank)
	}
	if h.total == 0 || r.Sizes().IsUndefined(h.root) {
		return nil, nil
	}

	out := make([]Chunk, 0, h.total)
	w := v2Walker{r: r, h: h, chunk: chunk, out: &out}
	if err := w.node(h.root, h.rootRecs, h.depth); err != nil {
		return nil, err
	}
	return out, nil
}

func readV2Header(r *binary.Reader, addr uint64) (*v2Header, error) {
	s := r.Sizes()
	n := 4 + 1 + 1 + 4 + 2 + 2 + 1 + 1 + s.Offset + 2 + s.Length
	c, err := r.CursorAt(addr, n+4)
	if err != nil {
		return nil, fmt.Errorf("B-tree v2 header: %w", err)
	}
	if err := checkBlock(c, n, "BTHD"); err != nil {
		return nil, fmt.Errorf("B-tree v2 header at %d: %w", addr, err)
	}
	c.Seek(4)
	if v := c.U8(); v != 0 {
		return nil, fmt.Errorf("B-tree v2 header at %d: unsupported version %d", addr, v)
	}
	h := &v2Header{typ: c.U8()}
	h.nodeSize = int(c.U32())
	h.recSize = int(c.U16())
	h.depth = int(c.U16())
	c.Skip(2) // split and merge percentages
	h.root = c.Offset()
	h.rootRecs = int(c.U16())
	h.total = c.Length()
	if c.Err() != nil {
		return nil, c.Err()
	}
	if h.recSize == 0 || h.nodeSize <= v2Prefix {
		return nil, fmt.Errorf("B-tree v2 header at %d: node size %d, record size %d", addr, h.nodeSize, h.recSize)
	}
	if h.depth > maxDepth {
		return nil, fmt.Errorf("B-tree v2 header at %d: depth %d", addr, h.depth)
	}
	h.limits(s.Offset)
	return h, nil
}

// encSize is the bytes needed to store counts up to n.
func encSize(n int) int {
	return (bits.Len64(uint64(n))-1)/8 + 1
}

func (h *v2Header) limits(offsetSize int) {
	h.maxRecs = make([]int, h.depth+1)
	h.cumSize = make([]int, h.depth+1)
	cum := make([]int, h.depth+1)

	h.maxRecs[0] = (h.nodeSize - v2Prefix) / h.recSize
	cum[0] = h.maxRecs[0]
	h.maxRecSize = encSize(h.maxRecs[0])
	for d := 1; d <= h.depth; d++ {
		ptr := h.pointerSize(d, offsetSize)
		h.maxRecs[d] = (h.nodeSize - (v2Prefix + ptr)) / (h.recSize + ptr)
		cum[d] = (h.maxRecs[d]+1)*cum[d-1] + h.maxRecs[d]
		h.cumSize[d] = encSize(cum[d])
	}
}

// pointerSize is the width of a child pointer in a node at depth d.
func (h *v2Header) pointerSize(d, offsetSize int) int {
	n := offsetSize + h.maxRecSize
	if d > 1 {
		n += h.cumSize[d-1]
	}
	return n
}

type v2Walker struct {
	r     *binary.Reader
	h     *v2Header
	chunk []uint64
	out   *[]Chunk
}

// node collects the records of the node at addr and of its subtrees. An
// internal node stores all its records first, then nrecs+1 child pointers.
func (w *v2Walker) node(addr uint64, nrecs, depth int) error {
	if nrecs > w.h.maxRecs[depth] {
		return fmt.Errorf("B-tree v2 node at %d: %d records, at most %d fit", addr, nrecs, w.h.maxRecs[depth])
	}
	sig := "BTLF"
	n := 4 + 1 + 1 + nrecs*w.h.recSize
	var ptr int
	if depth > 0 {
		sig = "BTIN"
		ptr = w.h.pointerSize(depth, w.r.Sizes().Offset)
		n += (nrecs + 1) * ptr
	}
	c, err := w.r.CursorAt(addr, n+4)
	if err != nil {
		return fmt.Errorf("B-tree v2 node at %d: %w", addr, err)
	}
	if err := checkBlock(c, n, sig); err != nil {
		return fmt.Errorf("B-tree v2 node at %d: %w", addr, err)
	}
	c.Seek(4)
	if v := c.U8(); v != 0 {
		return fmt.Errorf("B-tree v2 node at %d: unsupported version %d", addr, v)
	}
	if typ := c.U8(); typ != w.h.typ {
		return fmt.Errorf("B-tree v2 node at %d: record type %d, header says %d", addr, typ, w.h.typ)
	}

	for i := 0; i < nrecs; i++ {
		rec := c.Bytes(w.h.recSize)
		if c.Err() != nil {
			return c.Err()
		}
		k, err := w.record(rec)
		if err != nil {
			return fmt.Errorf("B-tree v2 node at %d, record %d: %w", addr, i, err)
		}
		*w.out = append(*w.out, k)
	}
	if depth == 0 {
		return nil
	}

	for i := 0; i <= nrecs; i++ {
		child := c.Offset()
		childRecs := int(c.UintN(w.h.maxRecSize))
		if depth > 1 {
			c.Skip(w.h.cumSize[depth-1]) // records in the whole subtree
		}
		if c.Err() != nil {
			return c.Err()
		}
		if err := w.node(child, childRecs, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// record decodes one chunk record: the address, then for filtered chunks
// the stored size and filter mask, then the chunk's scaled coordinates.
func (w *v2Walker) record(rec []byte) (Chunk, error) {
	c := binary.NewCursor(rec, w.r.Sizes())
	rank := len(w.chunk)
	k := Chunk{Address: c.Offset(), Offset: make([]uint64, rank)}
	if w.h.typ == TypeChunkFiltered {
		width := len(rec) - w.r.Sizes().Offset - 4 - 8*rank
		size := c.UintN(width)
		if size > 1<<32-1 {
			return k, fmt.Errorf("chunk of %d bytes", size)
		}
		k.Size = uint32(size)
		k.FilterMask = c.U32()
	}
	for d := range k.Offset {
		k.Offset[d] = c.U64() * w.chunk[d]
	}
	return k, c.Err()
}

// checkBlock verifies the signature and the lookup3 checksum that follows
// the first n bytes.
func checkBlock(c *binary.Cursor, n int, sig string) error {
	body := c.Bytes(n)
	stored := c.U32()
	if c.Err() != nil {
		return c.Err()
	}
	if string(body[:4]) != sig {
		return fmt.Errorf("bad signature %q, want %q", body[:4], sig)
	}
	if binary.Lookup3Checksum(body) != stored {
		return fmt.Errorf("checksum mismatch")
	}
	return nil
}
