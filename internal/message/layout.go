package message

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// LayoutClass is the storage class of a dataset.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndex identifies how a chunked dataset finds its chunks. Layout
// versions 1 to 3 always use a version 1 B-tree; version 4 names its index.
type ChunkIndex uint8

const (
	IndexBTreeV1    ChunkIndex = 0
	IndexSingle     ChunkIndex = 1
	IndexImplicit   ChunkIndex = 2
	IndexFixedArray ChunkIndex = 3
	IndexExtensible ChunkIndex = 4
	IndexBTreeV2    ChunkIndex = 5
)

const (
	singleFiltered  = 0x02 // chunk flag: the single chunk passed through filters
	defaultPageBits = 10
)

func (i ChunkIndex) String() string {
	switch i {
	case IndexBTreeV1:
		return "btree-v1"
	case IndexSingle:
		return "single"
	case IndexImplicit:
		return "implicit"
	case IndexFixedArray:
		return "fixed-array"
	case IndexExtensible:
		return "extensible-array"
	case IndexBTreeV2:
		return "btree-v2"
	}
	return fmt.Sprintf("index(%d)", uint8(i))
}

// DataLayout is the storage layout message.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	CompactData []byte

	// Contiguous storage.
	Address uint64
	Size    uint64

	// Chunked storage. ChunkDims has the dataset's rank; the element size
	// that the file stores as an extra trailing dimension is split out.
	ChunkDims    []uint64
	ElementSize  uint32
	Index        ChunkIndex
	IndexAddress uint64
	ChunkFlags   uint8

	// Fixed array page bits.
	PageBits uint8

	// Single-chunk index with filters.
	FilteredSize uint64
	FilterMask   uint32
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

// NewChunkedLayout returns a version 4 chunked layout indexed by a fixed
// array. The index address is filled in once the index is written.
func NewChunkedLayout(chunk []uint64, elemSize uint32, pageBits uint8) *DataLayout {
	return &DataLayout{
		Version:     4,
		Class:       LayoutChunked,
		ChunkDims:   append([]uint64(nil), chunk...),
		ElementSize: elemSize,
		Index:       IndexFixedArray,
		PageBits:    pageBits,
	}
}

// NewContiguousLayout returns a version 3 contiguous layout.
func NewContiguousLayout(addr, size uint64) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutContiguous, Address: addr, Size: size}
}

// NewCompactLayout returns a version 3 layout holding data in the header.
func NewCompactLayout(data []byte) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutCompact, CompactData: data}
}

func parseDataLayout(c *binary.Cursor) (*DataLayout, error) {
	l := &DataLayout{Version: c.U8()}
	switch l.Version {
	case 1, 2:
		return parseLayoutV1(c, l)
	case 3, 4:
	default:
		return nil, fmt.Errorf("unsupported layout version %d", l.Version)
	}

	l.Class = LayoutClass(c.U8())
	switch l.Class {
	case LayoutCompact:
		n := int(c.U16())
		l.CompactData = c.Bytes(n)
	case LayoutContiguous:
		l.Address = c.Offset()
		l.Size = c.Length()
	case LayoutChunked:
		if l.Version == 3 {
			ndims := int(c.U8())
			l.IndexAddress = c.Offset()
			l.splitDims(readDims(c, ndims, 4))
			l.Index = IndexBTreeV1
			break
		}
		l.ChunkFlags = c.U8()
		ndims := int(c.U8())
		width := int(c.U8())
		l.splitDims(readDims(c, ndims, width))
		l.Index = ChunkIndex(c.U8())
		switch l.Index {
		case IndexSingle:
			if l.ChunkFlags&singleFiltered != 0 {
				l.FilteredSize = c.Length()
				l.FilterMask = c.U32()
			}
		case IndexImplicit:
		case IndexFixedArray:
			l.PageBits = c.U8()
		case IndexExtensible:
			c.Skip(5)
		case IndexBTreeV2:
			c.Skip(6)
		default:
			return nil, fmt.Errorf("unknown chunk index type %d", l.Index)
		}
		l.IndexAddress = c.Offset()
	case LayoutVirtual:
		return nil, fmt.Errorf("virtual datasets are not supported")
	default:
		return nil, fmt.Errorf("unknown layout class %d", l.Class)
	}
	return l, nil
}

func parseLayoutV1(c *binary.Cursor, l *DataLayout) (*DataLayout, error) {
	ndims := int(c.U8())
	l.Class = LayoutClass(c.U8())
	c.Skip(5)
	if l.Class != LayoutCompact {
		l.Address = c.Offset()
	}
	dims := readDims(c, ndims, 4)
	switch l.Class {
	case LayoutChunked:
		l.IndexAddress = l.Address
		l.Address = 0
		l.splitDims(dims)
	case LayoutContiguous:
		l.Size = 1
		for _, d := range dims {
			l.Size *= d
		}
	case LayoutCompact:
		n := int(c.U32())
		l.CompactData = c.Bytes(n)
	}
	return l, nil
}

func readDims(c *binary.Cursor, n, width int) []uint64 {
	dims := make([]uint64, n)
	for i := range dims {
		dims[i] = c.UintN(width)
	}
	return dims
}

func (l *DataLayout) splitDims(dims []uint64) {
	if len(dims) == 0 {
		return
	}
	l.ChunkDims = dims[:len(dims)-1]
	l.ElementSize = uint32(dims[len(dims)-1])
}

// ChunkBytes returns the uncompressed size of one chunk.
func (m *DataLayout) ChunkBytes() uint64 {
	n := uint64(m.ElementSize)
	for _, d := range m.ChunkDims {
		n *= d
	}
	return n
}

// Encode writes layout version 3 for compact and contiguous storage and
// version 4 for chunked storage.
func (m *DataLayout) Encode(b *binary.Buffer) {
	switch m.Class {
	case LayoutCompact:
		b.PutU8(3)
		b.PutU8(uint8(m.Class))
		b.PutU16(uint16(len(m.CompactData)))
		b.PutBytes(m.CompactData)
	case LayoutContiguous:
		b.PutU8(3)
		b.PutU8(uint8(m.Class))
		b.PutOffset(m.Address)
		b.PutLength(m.Size)
	case LayoutChunked:
		dims := append(append([]uint64(nil), m.ChunkDims...), uint64(m.ElementSize))
		var largest uint64
		for _, d := range dims {
			largest = max(largest, d)
		}
		width := binary.SizeBytes(largest)

		b.PutU8(4)
		b.PutU8(uint8(m.Class))
		b.PutU8(m.ChunkFlags)
		b.PutU8(uint8(len(dims)))
		b.PutU8(uint8(width))
		for _, d := range dims {
			b.PutUintN(d, width)
		}
		b.PutU8(uint8(m.Index))
		switch m.Index {
		case IndexSingle:
			if m.ChunkFlags&singleFiltered != 0 {
				b.PutLength(m.FilteredSize)
				b.PutU32(m.FilterMask)
			}
		case IndexFixedArray:
			pageBits := m.PageBits
			if pageBits == 0 {
				pageBits = defaultPageBits
			}
			b.PutU8(pageBits)
		}
		b.PutOffset(m.IndexAddress)
	}
}
