package message

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// LinkType is the kind of a link message.
type LinkType uint8

const (
	LinkHard     LinkType = 0
	LinkSoft     LinkType = 1
	LinkExternal LinkType = 64
)

// Link names one member of a new-style group.
type Link struct {
	Version       uint8
	LinkType      LinkType
	CreationOrder uint64
	Name          string

	Address  uint64 // hard links
	Target   string // soft links
	File     string // external links
	FilePath string
}

func (m *Link) Type() Type { return TypeLink }

// NewHardLink returns a link from name to the object header at addr.
func NewHardLink(name string, addr uint64) *Link {
	return &Link{Version: 1, LinkType: LinkHard, Name: name, Address: addr}
}

func parseLink(c *binary.Cursor) (*Link, error) {
	l := &Link{Version: c.U8()}
	if l.Version != 1 {
		return nil, fmt.Errorf("unsupported link version %d", l.Version)
	}
	flags := c.U8()
	if flags&0x08 != 0 {
		l.LinkType = LinkType(c.U8())
	}
	if flags&0x04 != 0 {
		l.CreationOrder = c.U64()
	}
	if flags&0x10 != 0 {
		c.Skip(1)
	}
	n := int(c.UintN(1 << (flags & 0x03)))
	l.Name = string(c.Bytes(n))

	switch l.LinkType {
	case LinkHard:
		l.Address = c.Offset()
	case LinkSoft:
		l.Target = string(c.Bytes(int(c.U16())))
	case LinkExternal:
		v := binary.NewCursor(c.Bytes(int(c.U16())), c.Sizes())
		v.Skip(1)
		l.File = v.CString()
		l.FilePath = v.CString()
		if v.Err() != nil {
			return nil, fmt.Errorf("external link %q: %w", l.Name, v.Err())
		}
	default:
		return nil, fmt.Errorf("link %q: unknown link type %d", l.Name, l.LinkType)
	}
	return l, nil
}

// Encode writes a hard or soft link.
func (m *Link) Encode(b *binary.Buffer) {
	width := binary.SizeBytes(uint64(len(m.Name)))
	var flags uint8
	switch width {
	case 2:
		flags = 1
	case 4:
		flags = 2
	case 8:
		flags = 3
	}
	if m.LinkType != LinkHard {
		flags |= 0x08
	}
	b.PutU8(1)
	b.PutU8(flags)
	if m.LinkType != LinkHard {
		b.PutU8(uint8(m.LinkType))
	}
	b.PutUintN(uint64(len(m.Name)), width)
	b.PutString(m.Name)
	switch m.LinkType {
	case LinkHard:
		b.PutOffset(m.Address)
	case LinkSoft:
		b.PutU16(uint16(len(m.Target)))
		b.PutString(m.Target)
	}
}

// LinkInfo accompanies the links of a new-style group. Both addresses are
// undefined while the links are stored compactly in the header.
type LinkInfo struct {
	Flags            uint8
	MaxCreationIndex uint64
	HeapAddress      uint64
	NameIndex        uint64
	OrderIndex       uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

// NewLinkInfo returns link info for a group with compact link storage.
func NewLinkInfo(sizes binary.Sizes) *LinkInfo {
	u := sizes.Undefined()
	return &LinkInfo{HeapAddress: u, NameIndex: u, OrderIndex: u}
}

// Dense reports whether links live in a fractal heap instead of the header.
func (m *LinkInfo) Dense(sizes binary.Sizes) bool {
	return !sizes.IsUndefined(m.HeapAddress)
}

func parseLinkInfo(c *binary.Cursor) (*LinkInfo, error) {
	if v := c.U8(); v != 0 {
		return nil, fmt.Errorf("unsupported link info version %d", v)
	}
	m := &LinkInfo{Flags: c.U8(), OrderIndex: c.Sizes().Undefined()}
	if m.Flags&0x01 != 0 {
		m.MaxCreationIndex = c.U64()
	}
	m.HeapAddress = c.Offset()
	m.NameIndex = c.Offset()
	if m.Flags&0x02 != 0 {
		m.OrderIndex = c.Offset()
	}
	return m, nil
}

func (m *LinkInfo) Encode(b *binary.Buffer) {
	b.PutU8(0)
	b.PutU8(m.Flags)
	if m.Flags&0x01 != 0 {
		b.PutU64(m.MaxCreationIndex)
	}
	b.PutOffset(m.HeapAddress)
	b.PutOffset(m.NameIndex)
	if m.Flags&0x02 != 0 {
		b.PutOffset(m.OrderIndex)
	}
}

// GroupInfo carries a new-style group's storage thresholds. The writer
// leaves every value at the library default.
type GroupInfo struct {
	Flags        uint8
	MaxCompact   uint16
	MinDense     uint16
	EstEntries   uint16
	EstNameBytes uint16
}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func parseGroupInfo(c *binary.Cursor) (*GroupInfo, error) {
	if v := c.U8(); v != 0 {
		return nil, fmt.Errorf("unsupported group info version %d", v)
	}
	m := &GroupInfo{Flags: c.U8()}
	if m.Flags&0x01 != 0 {
		m.MaxCompact = c.U16()
		m.MinDense = c.U16()
	}
	if m.Flags&0x02 != 0 {
		m.EstEntries = c.U16()
		m.EstNameBytes = c.U16()
	}
	return m, nil
}

func (m *GroupInfo) Encode(b *binary.Buffer) {
	b.PutU8(0)
	b.PutU8(m.Flags)
	if m.Flags&0x01 != 0 {
		b.PutU16(m.MaxCompact)
		b.PutU16(m.MinDense)
	}
	if m.Flags&0x02 != 0 {
		b.PutU16(m.EstEntries)
		b.PutU16(m.EstNameBytes)
	}
}
