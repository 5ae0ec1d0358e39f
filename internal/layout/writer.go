package layout

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/robert-malhotra/tomochunk/internal/alloc"
	"github.com/robert-malhotra/tomochunk/internal/binary"
)

var (
	ErrChunkWritten = errors.New("chunk already written")
	ErrFinished     = errors.New("chunk index already written")
)

// ChunkWriter appends chunk payloads to a file and builds the fixed array
// index that locates them. Chunks may arrive in any order but each is
// written once.
type ChunkWriter struct {
	w        io.WriterAt
	a        *alloc.Allocator
	sizes    binary.Sizes
	grid     Grid
	elemSize int
	filtered bool

	mu       sync.Mutex
	entries  []Entry
	stored   uint64
	finished bool
}

// NewChunkWriter returns a writer for a dataset of the given shape. When
// filtered is false every payload must be exactly one chunk long.
func NewChunkWriter(w io.WriterAt, a *alloc.Allocator, sizes binary.Sizes, g Grid,
	elemSize int, filtered bool) *ChunkWriter {
	entries := make([]Entry, g.NumChunks())
	for i := range entries {
		entries[i].Address = sizes.Undefined()
	}
	return &ChunkWriter{w: w, a: a, sizes: sizes, grid: g, elemSize: elemSize,
		filtered: filtered, entries: entries}
}

// Grid returns the chunk grid being written.
func (cw *ChunkWriter) Grid() Grid { return cw.grid }

// ChunkBytes returns the unfiltered size of one chunk.
func (cw *ChunkWriter) ChunkBytes() uint64 {
	return cw.grid.ChunkElements() * uint64(cw.elemSize)
}

// WriteChunk stores payload as chunk idx. mask records the filters that
// were skipped while encoding it.
func (cw *ChunkWriter) WriteChunk(idx uint64, payload []byte, mask uint32) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.finished {
		return ErrFinished
	}
	if idx >= uint64(len(cw.entries)) {
		return fmt.Errorf("chunk %d outside grid of %d", idx, len(cw.entries))
	}
	if !cw.sizes.IsUndefined(cw.entries[idx].Address) {
		return fmt.Errorf("%w: %d", ErrChunkWritten, idx)
	}
	if !cw.filtered && uint64(len(payload)) != cw.ChunkBytes() {
		return fmt.Errorf("chunk %d is %d bytes, want %d", idx, len(payload), cw.ChunkBytes())
	}
	if cw.filtered && chunkSizeWidth(cw.ChunkBytes()) < 8 &&
		uint64(len(payload)) >= 1<<(8*chunkSizeWidth(cw.ChunkBytes())) {
		return fmt.Errorf("chunk %d: filtered size %d does not fit the index", idx, len(payload))
	}

	addr := cw.a.Alloc(uint64(len(payload)), alloc.Raw)
	if _, err := cw.w.WriteAt(payload, int64(addr)); err != nil {
		return fmt.Errorf("writing chunk %d: %w", idx, err)
	}
	cw.entries[idx] = Entry{Address: addr, Size: uint64(len(payload)), FilterMask: mask}
	cw.stored += uint64(len(payload))
	return nil
}

// StoredBytes returns the payload bytes written so far.
func (cw *ChunkWriter) StoredBytes() uint64 {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.stored
}

// Written returns how many chunks have been stored.
func (cw *ChunkWriter) Written() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	n := 0
	for _, e := range cw.entries {
		if !cw.sizes.IsUndefined(e.Address) {
			n++
		}
	}
	return n
}

// Finish writes the fixed array index and returns the address of its
// header. Chunks never written read back as the fill value.
func (cw *ChunkWriter) Finish() (uint64, error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.finished {
		return 0, ErrFinished
	}
	cw.finished = true

	hlen, dlen := FixedArrayLen(cw.sizes, uint64(len(cw.entries)), cw.filtered, cw.ChunkBytes())
	hdrAddr := cw.a.Alloc(uint64(hlen), alloc.Meta)
	dblkAddr := cw.a.Alloc(uint64(dlen), alloc.Meta)
	hdr, dblk := EncodeFixedArray(cw.sizes, hdrAddr, dblkAddr, cw.entries, cw.filtered, cw.ChunkBytes())
	if _, err := cw.w.WriteAt(hdr, int64(hdrAddr)); err != nil {
		return 0, fmt.Errorf("writing fixed array header: %w", err)
	}
	if _, err := cw.w.WriteAt(dblk, int64(dblkAddr)); err != nil {
		return 0, fmt.Errorf("writing fixed array data block: %w", err)
	}
	return hdrAddr, nil
}
