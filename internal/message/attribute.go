package message

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// Attribute is a small named value stored in an object header.
type Attribute struct {
	Version   uint8
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

func parseAttribute(c *binary.Cursor) (*Attribute, error) {
	a := &Attribute{Version: c.U8()}
	if a.Version < 1 || a.Version > 3 {
		return nil, fmt.Errorf("unsupported attribute version %d", a.Version)
	}
	flags := c.U8()
	if flags&0x03 != 0 {
		return nil, fmt.Errorf("attribute with shared datatype or dataspace is not supported")
	}
	nameLen := int(c.U16())
	dtLen := int(c.U16())
	dsLen := int(c.U16())
	if a.Version == 3 {
		c.Skip(1) // name character set
	}

	// Version 1 pads every field to eight bytes.
	field := func(n int) []byte {
		p := c.Bytes(n)
		if a.Version == 1 {
			c.Skip(pad8(n) - n)
		}
		return p
	}
	a.Name = binary.TrimNUL(field(nameLen))
	dtBytes := field(dtLen)
	dsBytes := field(dsLen)
	if c.Err() != nil {
		return nil, c.Err()
	}

	dt, err := parseDatatype(binary.NewCursor(dtBytes, c.Sizes()))
	if err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", a.Name, err)
	}
	ds, err := parseDataspace(binary.NewCursor(dsBytes, c.Sizes()))
	if err != nil {
		return nil, fmt.Errorf("attribute %q dataspace: %w", a.Name, err)
	}
	a.Datatype, a.Dataspace = dt, ds

	// The value may be shorter than the declared type for variable-length
	// data, so take whatever the message holds.
	n := int(ds.NumElements()) * int(dt.Size)
	if n > c.Len() {
		n = c.Len()
	}
	a.Data = append([]byte(nil), c.Bytes(n)...)
	return a, nil
}

// Encode writes a version 3 attribute.
func (m *Attribute) Encode(b *binary.Buffer) {
	dt := Bytes(m.Datatype, b.Sizes())
	ds := Bytes(m.Dataspace, b.Sizes())
	b.PutU8(3)
	b.PutU8(0)
	b.PutU16(uint16(len(m.Name) + 1))
	b.PutU16(uint16(len(dt)))
	b.PutU16(uint16(len(ds)))
	b.PutU8(0) // ASCII
	b.PutString(m.Name)
	b.PutU8(0)
	b.PutBytes(dt)
	b.PutBytes(ds)
	b.PutBytes(m.Data)
}
