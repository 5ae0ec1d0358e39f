package message

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// Space allocation times.
const (
	AllocEarly       = 1
	AllocLate        = 2
	AllocIncremental = 3
)

// Fill write times.
const (
	FillOnAlloc = 0
	FillNever   = 1
	FillIfSet   = 2
)

// FillValue describes what unwritten elements read back as.
type FillValue struct {
	Version   uint8
	AllocTime uint8
	WriteTime uint8
	Defined   bool
	Value     []byte
}

func (m *FillValue) Type() Type { return TypeFillValue }

// NewChunkedFillValue is the fill value message the library writes for a
// chunked dataset with the default fill of zero.
func NewChunkedFillValue() *FillValue {
	return &FillValue{Version: 3, AllocTime: AllocIncremental, WriteTime: FillIfSet, Defined: true}
}

func parseFillValue(c *binary.Cursor) (*FillValue, error) {
	fv := &FillValue{Version: c.U8()}
	switch fv.Version {
	case 1, 2:
		fv.AllocTime = c.U8()
		fv.WriteTime = c.U8()
		fv.Defined = c.U8() != 0
		if fv.Version == 1 || fv.Defined {
			if n := int(c.U32()); n > 0 {
				fv.Value = c.Bytes(n)
			}
		}
	case 3:
		flags := c.U8()
		fv.AllocTime = flags & 0x03
		fv.WriteTime = flags >> 2 & 0x03
		fv.Defined = flags&0x10 == 0
		if flags&0x20 != 0 {
			fv.Value = c.Bytes(int(c.U32()))
		}
	default:
		return nil, fmt.Errorf("unsupported fill value version %d", fv.Version)
	}
	return fv, nil
}

// Encode writes a version 3 fill value message.
func (m *FillValue) Encode(b *binary.Buffer) {
	flags := m.AllocTime&0x03 | (m.WriteTime&0x03)<<2
	if !m.Defined {
		flags |= 0x10
	}
	if m.Value != nil {
		flags |= 0x20
	}
	b.PutU8(3)
	b.PutU8(flags)
	if m.Value != nil {
		b.PutU32(uint32(len(m.Value)))
		b.PutBytes(m.Value)
	}
}
