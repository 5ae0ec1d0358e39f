package hdf5

import (
	"fmt"
	"sync"

	"github.com/robert-malhotra/tomochunk/internal/alloc"
	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/filter"
	"github.com/robert-malhotra/tomochunk/internal/layout"
	"github.com/robert-malhotra/tomochunk/internal/message"
	"github.com/robert-malhotra/tomochunk/internal/object"
)

// ChunkedWriter streams the chunks of one dataset into a file. The
// dataset header and its link are written by Close; until then the
// dataset is invisible to readers.
type ChunkedWriter struct {
	file     *File
	parent   *Group
	name     string
	dims     []uint64
	dtype    array.DType
	pipeline *filter.Pipeline
	attrs    []*message.Attribute
	cw       *layout.ChunkWriter

	mu     sync.Mutex
	closed bool
}

// CreateChunkedDataset starts a chunked dataset named name in g with
// element type t.
func (g *Group) CreateChunkedDataset(name string, dims []uint64, t array.DType, opts ...DatasetOption) (*ChunkedWriter, error) {
	if err := g.file.writableCheck(); err != nil {
		return nil, err
	}
	g.file.wmu.Lock()
	defer g.file.wmu.Unlock()
	if err := g.checkNewName(name); err != nil {
		return nil, err
	}
	path := JoinPath(g.path, name)

	if len(dims) == 0 {
		return nil, fmt.Errorf("%s: chunked datasets need at least one dimension", path)
	}
	for _, d := range dims {
		if d == 0 {
			return nil, fmt.Errorf("%s: zero dimension in %v", path, dims)
		}
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%s: %w: element type %s", path, ErrUnsupported, t)
	}

	cfg := datasetConfig{chunks: dims}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.chunks) != len(dims) {
		return nil, fmt.Errorf("%s: chunk rank %d does not match dataset rank %d", path, len(cfg.chunks), len(dims))
	}
	for i, c := range cfg.chunks {
		if c == 0 || c > dims[i] {
			return nil, fmt.Errorf("%s: chunk shape %v does not fit dataset shape %v", path, cfg.chunks, dims)
		}
	}
	if cfg.pipeline == nil {
		cfg.pipeline = filter.NewPipeline()
	}

	w := &ChunkedWriter{
		file:     g.file,
		parent:   g,
		name:     name,
		dims:     append([]uint64(nil), dims...),
		dtype:    t,
		pipeline: cfg.pipeline,
	}
	for _, a := range cfg.attrs {
		msg, err := newAttribute(a.name, a.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		w.attrs = append(w.attrs, msg)
	}

	grid := layout.Grid{Dims: w.dims, Chunk: append([]uint64(nil), cfg.chunks...)}
	w.cw = layout.NewChunkWriter(g.file.file, g.file.allocator, g.file.superblock.Sizes, grid, t.Size(), !cfg.pipeline.Empty())

	g.file.mu.Lock()
	g.file.writers = append(g.file.writers, w)
	g.file.mu.Unlock()
	return w, nil
}

// Path returns the absolute path the dataset will have.
func (w *ChunkedWriter) Path() string { return JoinPath(w.parent.path, w.name) }

// Shape returns the dataset dimensions.
func (w *ChunkedWriter) Shape() []uint64 { return append([]uint64(nil), w.dims...) }

// ChunkShape returns the chunk dimensions.
func (w *ChunkedWriter) ChunkShape() []uint64 { return append([]uint64(nil), w.cw.Grid().Chunk...) }

// ChunkBytes returns the size of one unfiltered chunk.
func (w *ChunkedWriter) ChunkBytes() int { return int(w.cw.ChunkBytes()) }

// Pipeline returns the filters applied by WriteChunk.
func (w *ChunkedWriter) Pipeline() *filter.Pipeline { return w.pipeline }

// StoredBytes returns the bytes of chunk data written so far.
func (w *ChunkedWriter) StoredBytes() uint64 { return w.cw.StoredBytes() }

// WriteChunk filters raw and stores it as the chunk at offset. raw holds
// a whole chunk in C order; edge chunks are padded by the caller.
func (w *ChunkedWriter) WriteChunk(offset []uint64, raw []byte) error {
	if len(raw) != w.ChunkBytes() {
		return fmt.Errorf("%s: chunk at %v is %d bytes, want %d", w.Path(), offset, len(raw), w.ChunkBytes())
	}
	payload, mask, err := w.pipeline.Encode(raw)
	if err != nil {
		return fmt.Errorf("%s: chunk at %v: %w", w.Path(), offset, err)
	}
	return w.WriteDirectChunk(offset, payload, mask)
}

// WriteDirectChunk stores an already filtered payload as the chunk at
// offset. mask marks the filters that were skipped.
func (w *ChunkedWriter) WriteDirectChunk(offset []uint64, payload []byte, mask uint32) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWriterClosed
	}

	grid := w.cw.Grid()
	if len(offset) != len(w.dims) {
		return fmt.Errorf("%s: offset %v: %w", w.Path(), offset, ErrChunkBounds)
	}
	for i, o := range offset {
		if o >= w.dims[i] || o%grid.Chunk[i] != 0 {
			return fmt.Errorf("%s: offset %v: %w", w.Path(), offset, ErrChunkBounds)
		}
	}
	if err := w.cw.WriteChunk(grid.Index(offset), payload, mask); err != nil {
		return fmt.Errorf("%s: chunk at %v: %w", w.Path(), offset, err)
	}
	return nil
}

// SetAttribute adds an attribute to the dataset header.
func (w *ChunkedWriter) SetAttribute(name string, value interface{}) error {
	msg, err := newAttribute(name, value)
	if err != nil {
		return fmt.Errorf("%s: %w", w.Path(), err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	for i, a := range w.attrs {
		if a.Name == name {
			w.attrs[i] = msg
			return nil
		}
	}
	w.attrs = append(w.attrs, msg)
	return nil
}

// Close writes the chunk index and dataset header and links the dataset
// into its group.
func (w *ChunkedWriter) Close() error {
	if err := w.file.check(); err != nil {
		return err
	}
	w.file.wmu.Lock()
	err := w.close()
	w.file.wmu.Unlock()

	w.file.mu.Lock()
	for i, other := range w.file.writers {
		if other == w {
			w.file.writers = append(w.file.writers[:i], w.file.writers[i+1:]...)
			break
		}
	}
	w.file.mu.Unlock()
	return err
}

func (w *ChunkedWriter) close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	w.closed = true
	attrs := w.attrs
	w.mu.Unlock()

	indexAddr, err := w.cw.Finish()
	if err != nil {
		return fmt.Errorf("%s: %w", w.Path(), err)
	}

	dt, err := Datatype(w.dtype)
	if err != nil {
		return err
	}
	grid := w.cw.Grid()
	lay := message.NewChunkedLayout(grid.Chunk, uint32(w.dtype.Size()), layout.PageBitsFor(grid.NumChunks()))
	lay.IndexAddress = indexAddr

	sizes := w.file.superblock.Sizes
	msgs := object.DatasetMessages(message.NewSimpleDataspace(w.dims...), dt, lay, w.pipeline.Message(), attrs)
	buf, err := object.Encode(sizes, msgs, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", w.Path(), err)
	}
	addr := w.file.allocator.Alloc(uint64(len(buf)), alloc.Meta)
	if _, err := w.file.file.WriteAt(buf, int64(addr)); err != nil {
		return fmt.Errorf("%s: writing dataset header: %w", w.Path(), err)
	}
	return w.parent.addLink(message.NewHardLink(w.name, addr))
}
