package message

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// DataspaceType distinguishes scalar, simple and null dataspaces.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Unlimited is the maximum dimension of an axis that can grow without bound.
const Unlimited = ^uint64(0)

// Dataspace is the shape of a dataset or attribute.
type Dataspace struct {
	Version   uint8
	SpaceType DataspaceType
	Dims      []uint64
	MaxDims   []uint64 // nil when equal to Dims
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NewSimpleDataspace returns a fixed-size dataspace of the given shape.
func NewSimpleDataspace(dims ...uint64) *Dataspace {
	return &Dataspace{Version: 2, SpaceType: DataspaceSimple, Dims: append([]uint64(nil), dims...)}
}

// NewScalarDataspace returns a single-element dataspace.
func NewScalarDataspace() *Dataspace {
	return &Dataspace{Version: 2, SpaceType: DataspaceScalar}
}

// NumElements returns the element count of the dataspace.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceSimple:
		n := uint64(1)
		for _, d := range m.Dims {
			n *= d
		}
		return n
	}
	return 0
}

func parseDataspace(c *binary.Cursor) (*Dataspace, error) {
	ds := &Dataspace{Version: c.U8()}
	rank := int(c.U8())
	flags := c.U8()

	switch ds.Version {
	case 1:
		c.Skip(5) // reserved
		ds.SpaceType = DataspaceSimple
		if rank == 0 {
			ds.SpaceType = DataspaceScalar
		}
	case 2:
		ds.SpaceType = DataspaceType(c.U8())
	default:
		return nil, fmt.Errorf("unsupported dataspace version %d", ds.Version)
	}

	if ds.SpaceType != DataspaceSimple {
		return ds, nil
	}
	ds.Dims = make([]uint64, rank)
	for i := range ds.Dims {
		ds.Dims[i] = c.Length()
	}
	if flags&0x01 != 0 {
		ds.MaxDims = make([]uint64, rank)
		for i := range ds.MaxDims {
			ds.MaxDims[i] = c.Length()
		}
	}
	return ds, nil
}

// Encode writes a version 2 dataspace.
func (m *Dataspace) Encode(b *binary.Buffer) {
	var flags uint8
	if m.MaxDims != nil {
		flags |= 0x01
	}
	b.PutU8(2)
	b.PutU8(uint8(len(m.Dims)))
	b.PutU8(flags)
	b.PutU8(uint8(m.SpaceType))
	for _, d := range m.Dims {
		b.PutLength(d)
	}
	for _, d := range m.MaxDims {
		b.PutLength(d)
	}
}
