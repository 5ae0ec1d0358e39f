package filter

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/tomochunk/internal/message"
)

// Pipeline applies filters to chunks in order on write and in reverse on
// read.
type Pipeline struct {
	filters  []Filter
	optional []bool
}

// NewPipeline returns a pipeline of mandatory filters.
func NewPipeline(filters ...Filter) *Pipeline {
	return &Pipeline{filters: filters, optional: make([]bool, len(filters))}
}

// AddOptional appends a filter whose encode failure leaves the chunk
// unfiltered by it instead of failing the write.
func (p *Pipeline) AddOptional(f Filter) {
	p.filters = append(p.filters, f)
	p.optional = append(p.optional, true)
}

// FromMessage builds a pipeline from a dataset's filter pipeline message.
// A nil message yields an empty pipeline.
func FromMessage(m *message.FilterPipeline) (*Pipeline, error) {
	p := &Pipeline{}
	if m == nil {
		return p, nil
	}
	for _, info := range m.Filters {
		f, err := FromInfo(info)
		if err != nil {
			return nil, err
		}
		p.filters = append(p.filters, f)
		p.optional = append(p.optional, info.Optional())
	}
	return p, nil
}

// Message returns the pipeline message describing p, or nil when p is
// empty.
func (p *Pipeline) Message() *message.FilterPipeline {
	if p.Empty() {
		return nil
	}
	m := &message.FilterPipeline{Version: 2}
	for i, f := range p.filters {
		info := message.FilterInfo{ID: f.ID(), ClientData: f.ClientData()}
		if p.optional[i] {
			info.Flags |= message.FilterOptional
		}
		if f.ID() >= 256 {
			info.Name = f.Name()
		}
		m.Filters = append(m.Filters, info)
	}
	return m
}

// Encode runs raw through every filter. The returned mask has bit i set
// for each optional filter that failed and was skipped.
func (p *Pipeline) Encode(raw []byte) ([]byte, uint32, error) {
	data := raw
	var mask uint32
	for i, f := range p.filters {
		out, err := f.Encode(data)
		if err != nil {
			if p.optional[i] {
				mask |= 1 << uint(i)
				continue
			}
			return nil, 0, fmt.Errorf("%s encode: %w", f.Name(), err)
		}
		data = out
	}
	return data, mask, nil
}

// Decode reverses Encode, skipping the filters set in mask.
func (p *Pipeline) Decode(data []byte, mask uint32) ([]byte, error) {
	for i := len(p.filters) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue
		}
		out, err := p.filters[i].Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s decode: %w", p.filters[i].Name(), err)
		}
		data = out
	}
	return data, nil
}

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool { return p == nil || len(p.filters) == 0 }

// Len returns the number of filters.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.filters)
}

// Filters returns the filters in write order.
func (p *Pipeline) Filters() []Filter { return p.filters }

// Lossy reports whether any filter may alter the data it restores.
func (p *Pipeline) Lossy() bool {
	if p == nil {
		return false
	}
	for _, f := range p.filters {
		if l, ok := f.(Lossy); ok && l.Lossy() {
			return true
		}
	}
	return false
}

// String lists the filter names, for example "shuffle|deflate".
func (p *Pipeline) String() string {
	if p.Empty() {
		return "none"
	}
	names := make([]string, len(p.filters))
	for i, f := range p.filters {
		names[i] = f.Name()
	}
	return strings.Join(names, "|")
}
