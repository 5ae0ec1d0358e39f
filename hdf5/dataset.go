package hdf5

import (
	"fmt"
	"sync"

	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/filter"
	"github.com/robert-malhotra/tomochunk/internal/layout"
	"github.com/robert-malhotra/tomochunk/internal/message"
	"github.com/robert-malhotra/tomochunk/internal/object"
)

// Dataset is a multidimensional array of fixed-size elements.
type Dataset struct {
	file      *File
	path      string
	header    *object.Header
	dataspace *message.Dataspace
	datatype  *message.Datatype
	layout    *message.DataLayout
	fill      []byte

	once     sync.Once
	storage  *layout.Storage
	pipeline *filter.Pipeline
	err      error
}

// ChunkInfo locates one stored chunk.
type ChunkInfo struct {
	Offset     []uint64
	Address    uint64
	Size       uint64
	FilterMask uint32
}

func newDataset(f *File, path string, hdr *object.Header) (*Dataset, error) {
	d := &Dataset{
		file:      f,
		path:      path,
		header:    hdr,
		dataspace: hdr.Dataspace(),
		datatype:  hdr.Datatype(),
		layout:    hdr.Layout(),
	}
	if d.dataspace == nil || d.datatype == nil || d.layout == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNotDataset)
	}
	if fv, ok := hdr.Message(message.TypeFillValue).(*message.FillValue); ok && fv.Defined &&
		len(fv.Value) == int(d.datatype.Size) {
		d.fill = fv.Value
	}
	return d, nil
}

// Name returns the last component of the dataset's path.
func (d *Dataset) Name() string { return baseName(d.path) }

// Path returns the absolute path of the dataset.
func (d *Dataset) Path() string { return d.path }

// Shape returns the current dimensions.
func (d *Dataset) Shape() []uint64 {
	return append([]uint64(nil), d.dataspace.Dims...)
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int { return len(d.dataspace.Dims) }

// NumElements returns the product of the dimensions.
func (d *Dataset) NumElements() uint64 { return d.dataspace.NumElements() }

// Datatype returns the raw datatype message.
func (d *Dataset) Datatype() *message.Datatype { return d.datatype }

// ElementSize returns the size of one element in bytes.
func (d *Dataset) ElementSize() int { return int(d.datatype.Size) }

// ElementType maps the datatype to a numeric element type.
func (d *Dataset) ElementType() (array.DType, error) {
	t, err := ElementType(d.datatype)
	if err != nil {
		return array.Invalid, fmt.Errorf("%s: %w", d.path, err)
	}
	return t, nil
}

// Layout returns the storage class.
func (d *Dataset) Layout() message.LayoutClass { return d.layout.Class }

// Chunks returns the chunk shape, or nil for unchunked datasets.
func (d *Dataset) Chunks() []uint64 {
	if d.layout.Class != message.LayoutChunked {
		return nil
	}
	return append([]uint64(nil), d.layout.ChunkDims...)
}

// Filters returns the dataset's filter pipeline. It fails when a filter
// is not registered.
func (d *Dataset) Filters() (*filter.Pipeline, error) {
	if err := d.open(); err != nil {
		return nil, err
	}
	return d.pipeline, nil
}

func (d *Dataset) open() error {
	d.once.Do(func() {
		var dec layout.ChunkDecoder
		if msg := d.header.Filters(); msg != nil {
			p, err := filter.FromMessage(msg)
			if err != nil {
				d.err = fmt.Errorf("%s: %w", d.path, err)
				return
			}
			d.pipeline = p
			if !p.Empty() {
				dec = p
			}
		}
		if d.pipeline == nil {
			d.pipeline = filter.NewPipeline()
		}
		s, err := layout.Open(d.file.reader, d.layout, d.dataspace.Dims, d.ElementSize(), dec, d.fill)
		if err != nil {
			d.err = fmt.Errorf("%s: %w", d.path, err)
			return
		}
		s.SetMaxDims(d.dataspace.MaxDims)
		d.storage = s
	})
	return d.err
}

// ReadSlice reads the hyperslab starting at start with extent count.
// The result is in C order and little endian.
func (d *Dataset) ReadSlice(start, count []uint64) ([]byte, error) {
	if err := d.file.check(); err != nil {
		return nil, err
	}
	if len(start) != d.Rank() || len(count) != d.Rank() {
		return nil, fmt.Errorf("%s: selection rank %d/%d, dataset rank %d", d.path, len(start), len(count), d.Rank())
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	data, err := d.storage.ReadSlice(start, count)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	if d.datatype.ByteOrder == message.OrderBE {
		array.SwapBytes(data, d.ElementSize())
	}
	return data, nil
}

// Read reads the whole dataset.
func (d *Dataset) Read() ([]byte, error) {
	return d.ReadSlice(make([]uint64, d.Rank()), d.dataspace.Dims)
}

// ReadBuffer reads a hyperslab into a typed buffer.
func (d *Dataset) ReadBuffer(start, count []uint64) (*array.Buffer, error) {
	t, err := d.ElementType()
	if err != nil {
		return nil, err
	}
	data, err := d.ReadSlice(start, count)
	if err != nil {
		return nil, err
	}
	shape := make([]int, len(count))
	for i, c := range count {
		shape[i] = int(c)
	}
	return array.Wrap(t, shape, data)
}

// StorageSize returns the bytes of raw data stored in the file.
func (d *Dataset) StorageSize() (uint64, error) {
	if err := d.open(); err != nil {
		return 0, err
	}
	return d.storage.StoredBytes()
}

// ChunkInfo lists the stored chunks in index order.
func (d *Dataset) ChunkInfo() ([]ChunkInfo, error) {
	if err := d.open(); err != nil {
		return nil, err
	}
	chunks, err := d.storage.Chunks()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	out := make([]ChunkInfo, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkInfo{Offset: c.Offset, Address: c.Address, Size: c.Size, FilterMask: c.FilterMask}
	}
	return out, nil
}

// Attrs returns the dataset's attributes.
func (d *Dataset) Attrs() []*Attribute { return wrapAttributes(d.header.Attributes()) }

// Attr returns the named attribute.
func (d *Dataset) Attr(name string) (*Attribute, error) {
	return findAttr(d.Attrs(), d.path, name)
}

// HasAttr reports whether the dataset has the named attribute.
func (d *Dataset) HasAttr(name string) bool {
	_, err := d.Attr(name)
	return err == nil
}
