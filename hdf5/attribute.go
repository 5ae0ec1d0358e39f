package hdf5

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/robert-malhotra/tomochunk/internal/array"
	hbin "github.com/robert-malhotra/tomochunk/internal/binary"
	"github.com/robert-malhotra/tomochunk/internal/message"
)

// Attribute is a small named value attached to a group or dataset.
type Attribute struct {
	msg *message.Attribute
}

func wrapAttributes(msgs []*message.Attribute) []*Attribute {
	out := make([]*Attribute, len(msgs))
	for i, m := range msgs {
		out[i] = &Attribute{msg: m}
	}
	return out
}

func findAttr(attrs []*Attribute, owner, name string) (*Attribute, error) {
	for _, a := range attrs {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", JoinAttrPath(owner, name), ErrNotFound)
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.msg.Name }

// Shape returns the dimensions; scalars have none.
func (a *Attribute) Shape() []uint64 { return append([]uint64(nil), a.msg.Dataspace.Dims...) }

// NumElements returns the number of stored values.
func (a *Attribute) NumElements() int { return int(a.msg.Dataspace.NumElements()) }

// IsScalar reports whether the attribute holds a single value.
func (a *Attribute) IsScalar() bool { return a.msg.Dataspace.SpaceType == message.DataspaceScalar }

// Datatype returns the raw datatype message.
func (a *Attribute) Datatype() *message.Datatype { return a.msg.Datatype }

// Value decodes the attribute. Integers decode to int64 or uint64, floats
// to float64 and strings to string; non-scalar attributes give slices.
func (a *Attribute) Value() (interface{}, error) {
	dt := a.msg.Datatype
	n := a.NumElements()
	size := int(dt.Size)
	if size == 0 || len(a.msg.Data) < n*size {
		return nil, fmt.Errorf("attribute %q: %d bytes for %d elements of %d", a.Name(), len(a.msg.Data), n, size)
	}
	data := a.msg.Data[:n*size]
	if dt.ByteOrder == message.OrderBE && dt.Class != message.ClassString {
		data = append([]byte(nil), data...)
		array.SwapBytes(data, size)
	}

	var vals interface{}
	switch dt.Class {
	case message.ClassString:
		s := make([]string, n)
		for i := range s {
			s[i] = hbin.TrimNUL(data[i*size : (i+1)*size])
		}
		if a.IsScalar() {
			return s[0], nil
		}
		vals = s
	case message.ClassFixedPoint:
		if dt.Signed {
			v := make([]int64, n)
			shift := uint(64 - 8*size)
			for i := range v {
				v[i] = int64(hbin.DecodeUint(data[i*size:(i+1)*size])<<shift) >> shift
			}
			if a.IsScalar() {
				return v[0], nil
			}
			vals = v
		} else {
			v := make([]uint64, n)
			for i := range v {
				v[i] = hbin.DecodeUint(data[i*size : (i+1)*size])
			}
			if a.IsScalar() {
				return v[0], nil
			}
			vals = v
		}
	case message.ClassFloatPoint:
		v := make([]float64, n)
		for i := range v {
			switch size {
			case 4:
				v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
			case 8:
				v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
			default:
				return nil, fmt.Errorf("attribute %q: %w: %d-byte float", a.Name(), ErrUnsupported, size)
			}
		}
		if a.IsScalar() {
			return v[0], nil
		}
		vals = v
	default:
		return nil, fmt.Errorf("attribute %q: %w: %s datatype", a.Name(), ErrUnsupported, dt.Class)
	}
	return vals, nil
}

// Float64 returns a scalar numeric attribute as float64.
func (a *Attribute) Float64() (float64, error) {
	v, err := a.Value()
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("attribute %q is %T, not a numeric scalar", a.Name(), v)
}

// String returns a scalar string attribute.
func (a *Attribute) String() (string, error) {
	v, err := a.Value()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("attribute %q is %T, not a string", a.Name(), v)
	}
	return s, nil
}

// newAttribute encodes a Go value as an attribute message. Supported are
// strings, integers and floats, scalar or as slices.
func newAttribute(name string, value interface{}) (*message.Attribute, error) {
	attr := &message.Attribute{Version: 3, Name: name}
	scalar := message.NewScalarDataspace()
	vector := func(n int) *message.Dataspace { return message.NewSimpleDataspace(uint64(n)) }

	putInts := func(vs []int64, signed bool) {
		attr.Datatype = message.NewFixedPoint(8, signed)
		for _, v := range vs {
			attr.Data = binary.LittleEndian.AppendUint64(attr.Data, uint64(v))
		}
	}
	putFloats := func(vs []float64) {
		attr.Datatype = message.NewFloatingPoint(8)
		for _, v := range vs {
			attr.Data = binary.LittleEndian.AppendUint64(attr.Data, math.Float64bits(v))
		}
	}

	switch v := value.(type) {
	case string:
		attr.Datatype = message.NewString(uint32(len(v) + 1))
		attr.Dataspace = scalar
		attr.Data = append([]byte(v), 0)
	case []string:
		width := 1
		for _, s := range v {
			if len(s)+1 > width {
				width = len(s) + 1
			}
		}
		attr.Datatype = message.NewString(uint32(width))
		attr.Dataspace = vector(len(v))
		for _, s := range v {
			field := make([]byte, width)
			copy(field, s)
			attr.Data = append(attr.Data, field...)
		}
	case int:
		putInts([]int64{int64(v)}, true)
		attr.Dataspace = scalar
	case int64:
		putInts([]int64{v}, true)
		attr.Dataspace = scalar
	case uint64:
		putInts([]int64{int64(v)}, false)
		attr.Dataspace = scalar
	case float32:
		putFloats([]float64{float64(v)})
		attr.Dataspace = scalar
	case float64:
		putFloats([]float64{v})
		attr.Dataspace = scalar
	case []int:
		vs := make([]int64, len(v))
		for i, x := range v {
			vs[i] = int64(x)
		}
		putInts(vs, true)
		attr.Dataspace = vector(len(v))
	case []int64:
		putInts(v, true)
		attr.Dataspace = vector(len(v))
	case []uint64:
		vs := make([]int64, len(v))
		for i, x := range v {
			vs[i] = int64(x)
		}
		putInts(vs, false)
		attr.Dataspace = vector(len(v))
	case []float64:
		putFloats(v)
		attr.Dataspace = vector(len(v))
	default:
		return nil, fmt.Errorf("attribute %q: %w: value of type %T", name, ErrUnsupported, value)
	}
	return attr, nil
}
