package message

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// DatatypeClass is the class nibble of a datatype message.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

func (c DatatypeClass) String() string {
	names := [...]string{"integer", "float", "time", "string", "bitfield", "opaque",
		"compound", "reference", "enum", "vlen", "array"}
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// ByteOrder of a numeric datatype.
type ByteOrder uint8

const (
	OrderLE ByteOrder = 0
	OrderBE ByteOrder = 1
)

// Datatype describes the element type of a dataset or attribute. Integer,
// float and fixed-length string types are decoded in full; other classes
// keep their property bytes in Raw.
type Datatype struct {
	Version   uint8
	Class     DatatypeClass
	ClassBits uint32
	Size      uint32

	ByteOrder ByteOrder
	Signed    bool
	BitOffset uint16
	Precision uint16

	// Floating point layout.
	ExpLocation  uint8
	ExpSize      uint8
	MantLocation uint8
	MantSize     uint8
	ExpBias      uint32

	// Strings.
	Padding uint8
	CharSet uint8

	VarLenString bool
	Raw          []byte
}

func (m *Datatype) Type() Type { return TypeDatatype }

// NewFixedPoint returns a little-endian integer type of size bytes.
func NewFixedPoint(size uint32, signed bool) *Datatype {
	dt := &Datatype{Version: 1, Class: ClassFixedPoint, Size: size, Signed: signed, Precision: uint16(size * 8)}
	if signed {
		dt.ClassBits = 0x08
	}
	return dt
}

// NewFloatingPoint returns an IEEE 754 little-endian type of 4 or 8 bytes.
func NewFloatingPoint(size uint32) *Datatype {
	dt := &Datatype{Version: 1, Class: ClassFloatPoint, Size: size, Precision: uint16(size * 8)}
	if size == 4 {
		dt.ClassBits = 31<<8 | 0x20
		dt.ExpLocation, dt.ExpSize, dt.MantSize, dt.ExpBias = 23, 8, 23, 127
	} else {
		dt.ClassBits = 63<<8 | 0x20
		dt.ExpLocation, dt.ExpSize, dt.MantSize, dt.ExpBias = 52, 11, 52, 1023
	}
	return dt
}

// NewString returns a null-terminated ASCII string type of size bytes.
func NewString(size uint32) *Datatype {
	return &Datatype{Version: 1, Class: ClassString, Size: size}
}

func parseDatatype(c *binary.Cursor) (*Datatype, error) {
	cv := c.U8()
	dt := &Datatype{Version: cv >> 4, Class: DatatypeClass(cv & 0x0F)}
	dt.ClassBits = uint32(c.U8()) | uint32(c.U8())<<8 | uint32(c.U8())<<16
	dt.Size = c.U32()

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.ByteOrder = ByteOrder(dt.ClassBits & 0x01)
		dt.Signed = dt.ClassBits&0x08 != 0
		dt.BitOffset = c.U16()
		dt.Precision = c.U16()
	case ClassFloatPoint:
		dt.ByteOrder = ByteOrder(dt.ClassBits & 0x01)
		if dt.ClassBits&0x40 != 0 {
			return nil, fmt.Errorf("VAX float order is not supported")
		}
		dt.BitOffset = c.U16()
		dt.Precision = c.U16()
		dt.ExpLocation = c.U8()
		dt.ExpSize = c.U8()
		dt.MantLocation = c.U8()
		dt.MantSize = c.U8()
		dt.ExpBias = c.U32()
	case ClassString:
		dt.Padding = uint8(dt.ClassBits & 0x0F)
		dt.CharSet = uint8(dt.ClassBits>>4) & 0x0F
	case ClassVarLen:
		dt.VarLenString = dt.ClassBits&0x0F == 1
		dt.Raw = c.Rest()
	default:
		dt.Raw = c.Rest()
	}
	return dt, nil
}

// Encode writes the datatype. Only the classes built by the constructors
// above are encodable; others are written back from Raw.
func (m *Datatype) Encode(b *binary.Buffer) {
	version := m.Version
	if version == 0 {
		version = 1
	}
	b.PutU8(version<<4 | uint8(m.Class))
	b.PutU8(uint8(m.ClassBits))
	b.PutU8(uint8(m.ClassBits >> 8))
	b.PutU8(uint8(m.ClassBits >> 16))
	b.PutU32(m.Size)

	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		b.PutU16(m.BitOffset)
		b.PutU16(m.Precision)
	case ClassFloatPoint:
		b.PutU16(m.BitOffset)
		b.PutU16(m.Precision)
		b.PutU8(m.ExpLocation)
		b.PutU8(m.ExpSize)
		b.PutU8(m.MantLocation)
		b.PutU8(m.MantSize)
		b.PutU32(m.ExpBias)
	case ClassString:
	default:
		b.PutBytes(m.Raw)
	}
}
