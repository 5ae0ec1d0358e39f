package layout

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/btree"
	"github.com/robert-malhotra/tomochunk/internal/message"
)

var (
	ErrUnsupportedIndex = errors.New("unsupported chunk index")
	ErrOutOfBounds      = errors.New("selection outside dataset")
	ErrNoDecoder        = errors.New("filtered chunk without a decoder")
)

// minCachedChunks is the fewest decoded chunks kept per dataset.
const minCachedChunks = 8

// ChunkDecoder reverses a dataset's filter pipeline. mask has bit i set
// when filter i was skipped for the chunk.
type ChunkDecoder interface {
	Decode(data []byte, mask uint32) ([]byte, error)
}

// Storage reads the raw bytes of one dataset.
type Storage struct {
	r        *binary.Reader
	msg      *message.DataLayout
	dims     []uint64
	maxDims  []uint64
	elemSize int
	dec      ChunkDecoder
	fill     []byte

	mu      sync.Mutex
	grid    Grid
	entries map[uint64]Entry
	cache   *lru.Cache
}

// Open prepares reads of a dataset with the given shape and element size.
// dec may be nil for unfiltered datasets; fill may be nil for zero fill.
func Open(r *binary.Reader, msg *message.DataLayout, dims []uint64, elemSize int,
	dec ChunkDecoder, fill []byte) (*Storage, error) {
	s := &Storage{r: r, msg: msg, dims: dims, elemSize: elemSize, dec: dec, fill: fill}
	if len(fill) != 0 && len(fill) != elemSize {
		return nil, fmt.Errorf("fill value is %d bytes, element is %d", len(fill), elemSize)
	}
	if msg.Class != message.LayoutChunked {
		return s, nil
	}
	if len(msg.ChunkDims) != len(dims) {
		return nil, fmt.Errorf("chunk rank %d does not match dataset rank %d", len(msg.ChunkDims), len(dims))
	}
	for _, c := range msg.ChunkDims {
		if c == 0 {
			return nil, fmt.Errorf("zero chunk dimension in %v", msg.ChunkDims)
		}
	}
	if int(msg.ElementSize) != elemSize {
		return nil, fmt.Errorf("layout element size %d does not match datatype size %d", msg.ElementSize, elemSize)
	}
	s.grid = Grid{Dims: dims, Chunk: msg.ChunkDims}
	s.cache = lru.New(cacheSize(s.grid))
	return s, nil
}

// cacheSize covers one row of chunks along the leading axis, so reading
// that row a slice at a time decodes each of its chunks once.
func cacheSize(g Grid) int {
	n := uint64(1)
	for _, c := range g.Counts()[1:] {
		n *= c
	}
	return int(max(n, minCachedChunks))
}

// SetMaxDims records the dataset's maximum dimensions. Only an extensible
// array index needs them, to number its chunks.
func (s *Storage) SetMaxDims(maxDims []uint64) {
	if len(maxDims) == len(s.dims) {
		s.maxDims = maxDims
	}
}

// Class returns the storage class.
func (s *Storage) Class() message.LayoutClass { return s.msg.Class }

// Chunk returns the chunk shape, or nil for unchunked storage.
func (s *Storage) Chunk() []uint64 {
	if s.msg.Class != message.LayoutChunked {
		return nil
	}
	return s.msg.ChunkDims
}

func (s *Storage) chunkBytes() uint64 {
	return s.grid.ChunkElements() * uint64(s.elemSize)
}

// index loads the chunk index on first use.
func (s *Storage) index() (map[uint64]Entry, error) {
	if s.entries != nil {
		return s.entries, nil
	}
	sizes := s.r.Sizes()
	entries := make(map[uint64]Entry)
	addr := s.msg.IndexAddress
	if sizes.IsUndefined(addr) {
		s.entries = entries
		return entries, nil
	}

	cb := s.chunkBytes()
	switch s.msg.Index {
	case message.IndexSingle:
		e := Entry{Address: addr, Size: cb}
		if s.msg.FilteredSize != 0 {
			e.Size, e.FilterMask = s.msg.FilteredSize, s.msg.FilterMask
		}
		entries[0] = e
	case message.IndexImplicit:
		for i := uint64(0); i < s.grid.NumChunks(); i++ {
			entries[i] = Entry{Address: addr + i*cb, Size: cb}
		}
	case message.IndexFixedArray:
		list, err := readFixedArray(s.r, addr, cb)
		if err != nil {
			return nil, err
		}
		for i, e := range list {
			if !sizes.IsUndefined(e.Address) {
				entries[uint64(i)] = e
			}
		}
	case message.IndexExtensible:
		list, err := readExtensibleArray(s.r, addr, cb)
		if err != nil {
			return nil, err
		}
		for i, e := range list {
			if sizes.IsUndefined(e.Address) {
				continue
			}
			if off, ok := s.extensibleOffset(uint64(i)); ok {
				entries[s.grid.Index(off)] = e
			}
		}
	case message.IndexBTreeV1, message.IndexBTreeV2:
		var chunks []btree.Chunk
		var err error
		if s.msg.Index == message.IndexBTreeV1 {
			chunks, err = btree.ReadChunks(s.r, addr, len(s.dims))
		} else {
			chunks, err = btree.ReadChunksV2(s.r, addr, s.msg.ChunkDims)
		}
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			if !s.grid.Contains(c.Offset) || sizes.IsUndefined(c.Address) {
				continue
			}
			e := Entry{Address: c.Address, Size: uint64(c.Size), FilterMask: c.FilterMask}
			if e.Size == 0 {
				e.Size = cb
			}
			entries[s.grid.Index(c.Offset)] = e
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIndex, s.msg.Index)
	}
	s.entries = entries
	return entries, nil
}

// extensibleOffset maps element i of an extensible array index to the
// element offset of its chunk. Chunks are numbered in row-major order with
// the unlimited axis moved first, over the chunk counts that the maximum
// dimensions allow on the other axes.
func (s *Storage) extensibleOffset(i uint64) ([]uint64, bool) {
	rank := len(s.dims)
	chunk := s.msg.ChunkDims
	unlim := 0
	counts := make([]uint64, rank)
	for d, n := range s.dims {
		if s.maxDims != nil {
			n = s.maxDims[d]
		}
		if n == message.Unlimited {
			unlim = d
			continue
		}
		counts[d] = (n + chunk[d] - 1) / chunk[d]
	}

	order := make([]int, 1, rank)
	order[0] = unlim
	for d := 0; d < rank; d++ {
		if d != unlim {
			order = append(order, d)
		}
	}
	off := make([]uint64, rank)
	for k := rank - 1; k >= 1; k-- {
		d := order[k]
		if counts[d] == 0 {
			return nil, false
		}
		off[d] = i % counts[d] * chunk[d]
		i /= counts[d]
	}
	off[unlim] = i * chunk[unlim]
	return off, s.grid.Contains(off)
}

// chunk returns the decoded bytes of chunk idx, or nil when it was never
// written.
func (s *Storage) chunk(idx uint64) ([]byte, error) {
	if v, ok := s.cache.Get(idx); ok {
		return v.([]byte), nil
	}
	entries, err := s.index()
	if err != nil {
		return nil, err
	}
	e, ok := entries[idx]
	if !ok {
		return nil, nil
	}
	raw, err := s.r.ReadAt(e.Address, int(e.Size))
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", idx, err)
	}
	if s.dec != nil {
		if raw, err = s.dec.Decode(raw, e.FilterMask); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", idx, err)
		}
	}
	if uint64(len(raw)) != s.chunkBytes() {
		if s.dec == nil {
			return nil, fmt.Errorf("chunk %d: %w", idx, ErrNoDecoder)
		}
		return nil, fmt.Errorf("chunk %d decoded to %d bytes, want %d", idx, len(raw), s.chunkBytes())
	}
	s.cache.Add(idx, raw)
	return raw, nil
}

// ReadSlice returns the box [start, start+count) in row-major order.
func (s *Storage) ReadSlice(start, count []uint64) ([]byte, error) {
	if len(start) != len(s.dims) || len(count) != len(s.dims) {
		return nil, fmt.Errorf("%w: selection rank %d/%d, dataset rank %d", ErrOutOfBounds, len(start), len(count), len(s.dims))
	}
	n := uint64(1)
	for i := range s.dims {
		if start[i]+count[i] > s.dims[i] {
			return nil, fmt.Errorf("%w: dim %d [%d, %d) of %d", ErrOutOfBounds, i, start[i], start[i]+count[i], s.dims[i])
		}
		n *= count[i]
	}
	out := make([]byte, int(n)*s.elemSize)
	s.fillBuffer(out)
	if n == 0 {
		return out, nil
	}

	dst := block{shape: count, start: make([]uint64, len(count))}
	switch s.msg.Class {
	case message.LayoutCompact:
		copyBox(out, dst, s.msg.CompactData, block{shape: s.dims, start: start}, count, s.elemSize)
		return out, nil
	case message.LayoutContiguous:
		return out, s.readContiguous(out, start, count)
	case message.LayoutChunked:
		s.mu.Lock()
		defer s.mu.Unlock()
		return out, s.readChunked(out, start, count)
	}
	return nil, fmt.Errorf("unsupported layout class %d", s.msg.Class)
}

func (s *Storage) fillBuffer(out []byte) {
	if len(s.fill) == 0 {
		return
	}
	for i := 0; i < len(out); i += s.elemSize {
		copy(out[i:], s.fill)
	}
}

func (s *Storage) readContiguous(out []byte, start, count []uint64) error {
	if s.r.Sizes().IsUndefined(s.msg.Address) {
		return nil
	}
	rank := len(s.dims)
	if rank == 0 {
		b, err := s.r.ReadAt(s.msg.Address, s.elemSize)
		copy(out, b)
		return err
	}
	// Read row by row along the last dimension.
	rowBytes := int(count[rank-1]) * s.elemSize
	rows := len(out) / max(rowBytes, 1)
	pos := make([]uint64, rank)
	copy(pos, start)
	for row := 0; row < rows; row++ {
		var lin uint64
		for i := 0; i < rank; i++ {
			lin = lin*s.dims[i] + pos[i]
		}
		b, err := s.r.ReadAt(s.msg.Address+lin*uint64(s.elemSize), rowBytes)
		if err != nil {
			return err
		}
		copy(out[row*rowBytes:], b)
		for i := rank - 2; i >= 0; i-- {
			pos[i]++
			if pos[i] < start[i]+count[i] {
				break
			}
			pos[i] = start[i]
		}
	}
	return nil
}

func (s *Storage) readChunked(out []byte, start, count []uint64) error {
	rank := len(s.dims)
	chunk := s.msg.ChunkDims
	first := make([]uint64, rank)
	last := make([]uint64, rank)
	for i := range s.dims {
		first[i] = start[i] / chunk[i]
		last[i] = (start[i] + count[i] - 1) / chunk[i]
	}

	cur := append([]uint64(nil), first...)
	for {
		off := make([]uint64, rank)
		srcStart := make([]uint64, rank)
		dstStart := make([]uint64, rank)
		extent := make([]uint64, rank)
		for i := range off {
			off[i] = cur[i] * chunk[i]
			lo := max(start[i], off[i])
			hi := min(start[i]+count[i], off[i]+chunk[i])
			srcStart[i] = lo - off[i]
			dstStart[i] = lo - start[i]
			extent[i] = hi - lo
		}
		data, err := s.chunk(s.grid.Index(off))
		if err != nil {
			return err
		}
		if data != nil {
			copyBox(out, block{shape: count, start: dstStart}, data, block{shape: chunk, start: srcStart}, extent, s.elemSize)
		}

		i := rank - 1
		for ; i >= 0; i-- {
			cur[i]++
			if cur[i] <= last[i] {
				break
			}
			cur[i] = first[i]
		}
		if i < 0 {
			return nil
		}
	}
}

// StoredBytes returns the bytes the dataset's raw data occupies in the
// file, excluding index structures.
func (s *Storage) StoredBytes() (uint64, error) {
	switch s.msg.Class {
	case message.LayoutCompact:
		return uint64(len(s.msg.CompactData)), nil
	case message.LayoutContiguous:
		if s.r.Sizes().IsUndefined(s.msg.Address) {
			return 0, nil
		}
		return s.msg.Size, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.index()
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, e := range entries {
		n += e.Size
	}
	return n, nil
}

// ChunkInfo describes one stored chunk.
type ChunkInfo struct {
	Offset []uint64
	Entry
}

// Chunks lists the stored chunks in index order.
func (s *Storage) Chunks() ([]ChunkInfo, error) {
	if s.msg.Class != message.LayoutChunked {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.index()
	if err != nil {
		return nil, err
	}
	keys := make([]uint64, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]ChunkInfo, len(keys))
	for i, k := range keys {
		out[i] = ChunkInfo{Offset: s.grid.Offset(k), Entry: entries[k]}
	}
	return out, nil
}
