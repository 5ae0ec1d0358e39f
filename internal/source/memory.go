package source

import (
	"github.com/robert-malhotra/tomochunk/internal/array"
)

// Memory serves an in-memory buffer as a source.
type Memory struct {
	name   string
	buf    *array.Buffer
	chunks []int
}

// NewMemory wraps buf. chunks may be nil.
func NewMemory(name string, buf *array.Buffer, chunks []int) *Memory {
	return &Memory{name: name, buf: buf, chunks: chunks}
}

func (m *Memory) Name() string       { return m.name }
func (m *Memory) Shape() []int       { return append([]int(nil), m.buf.Shape...) }
func (m *Memory) DType() array.DType { return m.buf.DType }
func (m *Memory) Chunks() []int      { return m.chunks }
func (m *Memory) Close() error       { return nil }

func (m *Memory) ReadUnit(start, count int) (*array.Buffer, error) {
	if err := checkUnit(m.name, m.buf.Shape, start, count); err != nil {
		return nil, err
	}
	plane := array.NumElements(m.buf.Shape[1:]) * m.buf.DType.Size()
	data := append([]byte(nil), m.buf.Data[start*plane:(start+count)*plane]...)
	return array.Wrap(m.buf.DType, unitShape(m.buf.Shape, count), data)
}
