package message

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/binary"
)

// FilterOptional marks a filter whose failure leaves a chunk unfiltered
// instead of failing the write.
const FilterOptional = 0x0001

// FilterInfo is one stage of a filter pipeline as stored in the file.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

// Optional reports whether the filter may be skipped.
func (f FilterInfo) Optional() bool { return f.Flags&FilterOptional != 0 }

// FilterPipeline lists the filters applied to each chunk, in write order.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

// Has reports whether the pipeline contains filter id.
func (m *FilterPipeline) Has(id uint16) bool {
	for _, f := range m.Filters {
		if f.ID == id {
			return true
		}
	}
	return false
}

func parseFilterPipeline(c *binary.Cursor) (*FilterPipeline, error) {
	fp := &FilterPipeline{Version: c.U8()}
	n := int(c.U8())
	switch fp.Version {
	case 1:
		c.Skip(6)
	case 2:
	default:
		return nil, fmt.Errorf("unsupported filter pipeline version %d", fp.Version)
	}

	fp.Filters = make([]FilterInfo, n)
	for i := range fp.Filters {
		f := &fp.Filters[i]
		f.ID = c.U16()
		var nameLen int
		if fp.Version == 1 || f.ID >= 256 {
			nameLen = int(c.U16())
		}
		f.Flags = c.U16()
		ncd := int(c.U16())
		if nameLen > 0 {
			f.Name = binary.TrimNUL(c.Bytes(nameLen))
			if fp.Version == 1 {
				c.Skip(pad8(nameLen) - nameLen)
			}
		}
		f.ClientData = make([]uint32, ncd)
		for j := range f.ClientData {
			f.ClientData[j] = c.U32()
		}
		if fp.Version == 1 && ncd%2 == 1 {
			c.Skip(4)
		}
		if c.Err() != nil {
			return nil, fmt.Errorf("filter %d: %w", i, c.Err())
		}
	}
	return fp, nil
}

// Encode writes a version 2 pipeline. Names are only stored for filters
// outside the predefined range, as the library does.
func (m *FilterPipeline) Encode(b *binary.Buffer) {
	b.PutU8(2)
	b.PutU8(uint8(len(m.Filters)))
	for _, f := range m.Filters {
		b.PutU16(f.ID)
		named := f.ID >= 256
		if named {
			if f.Name == "" {
				b.PutU16(0)
			} else {
				b.PutU16(uint16(len(f.Name) + 1))
			}
		}
		b.PutU16(f.Flags)
		b.PutU16(uint16(len(f.ClientData)))
		if named && f.Name != "" {
			b.PutString(f.Name)
			b.PutU8(0)
		}
		for _, v := range f.ClientData {
			b.PutU32(v)
		}
	}
}
