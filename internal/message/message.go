package message

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// Type is a header message type.
type Type uint16

const (
	TypeNIL            Type = 0x0000
	TypeDataspace      Type = 0x0001
	TypeLinkInfo       Type = 0x0002
	TypeDatatype       Type = 0x0003
	TypeFillValueOld   Type = 0x0004
	TypeFillValue      Type = 0x0005
	TypeLink           Type = 0x0006
	TypeExternalFiles  Type = 0x0007
	TypeDataLayout     Type = 0x0008
	TypeBogus          Type = 0x0009
	TypeGroupInfo      Type = 0x000A
	TypeFilterPipeline Type = 0x000B
	TypeAttribute      Type = 0x000C
	TypeComment        Type = 0x000D
	TypeModTimeOld     Type = 0x000E
	TypeSharedTable    Type = 0x000F
	TypeContinuation   Type = 0x0010
	TypeSymbolTable    Type = 0x0011
	TypeModTime        Type = 0x0012
	TypeBTreeK         Type = 0x0013
	TypeDriverInfo     Type = 0x0014
	TypeAttributeInfo  Type = 0x0015
	TypeRefCount       Type = 0x0016
)

// Message is implemented by every decoded header message.
type Message interface {
	Type() Type
}

// Encoder is a message this module knows how to write.
type Encoder interface {
	Message
	Encode(b *binary.Buffer)
}

// Bytes encodes m on its own.
func Bytes(m Encoder, sizes binary.Sizes) []byte {
	b := binary.NewBuffer(sizes)
	m.Encode(b)
	return b.Bytes()
}

// Parse decodes the body of a message of type typ. Types without a decoder
// come back as *Unknown so that callers can still see them.
func Parse(typ Type, data []byte, sizes binary.Sizes) (Message, error) {
	c := binary.NewCursor(data, sizes)
	var (
		m   Message
		err error
	)
	switch typ {
	case TypeDataspace:
		m, err = parseDataspace(c)
	case TypeDatatype:
		m, err = parseDatatype(c)
	case TypeDataLayout:
		m, err = parseDataLayout(c)
	case TypeFilterPipeline:
		m, err = parseFilterPipeline(c)
	case TypeFillValue:
		m, err = parseFillValue(c)
	case TypeAttribute:
		m, err = parseAttribute(c)
	case TypeLink:
		m, err = parseLink(c)
	case TypeLinkInfo:
		m, err = parseLinkInfo(c)
	case TypeGroupInfo:
		m, err = parseGroupInfo(c)
	case TypeSymbolTable:
		m, err = parseSymbolTable(c)
	case TypeContinuation:
		m, err = parseContinuation(c)
	default:
		return &Unknown{typ: typ, Data: data}, nil
	}
	if err == nil {
		err = c.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("message type 0x%04x: %w", uint16(typ), err)
	}
	return m, nil
}

// Unknown holds the raw body of a message type without a decoder.
type Unknown struct {
	typ  Type
	Data []byte
}

func (m *Unknown) Type() Type { return m.typ }

// Continuation points at the next block of header messages.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeContinuation }

func parseContinuation(c *binary.Cursor) (*Continuation, error) {
	return &Continuation{Offset: c.Offset(), Length: c.Length()}, nil
}

func (m *Continuation) Encode(b *binary.Buffer) {
	b.PutOffset(m.Offset)
	b.PutLength(m.Length)
}

// SymbolTable locates the B-tree and local heap of an old-style group.
type SymbolTable struct {
	BTreeAddress uint64
	HeapAddress  uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func parseSymbolTable(c *binary.Cursor) (*SymbolTable, error) {
	return &SymbolTable{BTreeAddress: c.Offset(), HeapAddress: c.Offset()}, nil
}

func (m *SymbolTable) Encode(b *binary.Buffer) {
	b.PutOffset(m.BTreeAddress)
	b.PutOffset(m.HeapAddress)
}

// pad8 rounds n up to a multiple of eight.
func pad8(n int) int { return (n + 7) &^ 7 }
