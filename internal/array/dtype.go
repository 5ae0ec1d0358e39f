// Package array holds typed little-endian buffers and the element-wise
// operations applied to them while reconditioning: strided subsampling,
// numeric casts and plane extraction.
package array

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownDType is returned for element type names that cannot be parsed.
var ErrUnknownDType = errors.New("unknown element type")

// DType is a numeric element type.
type DType uint8

const (
	Invalid DType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

var dtypeNames = [...]string{
	Invalid: "invalid",
	Uint8:   "uint8",
	Int8:    "int8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Uint64:  "uint64",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

func (t DType) String() string {
	if int(t) < len(dtypeNames) {
		return dtypeNames[t]
	}
	return fmt.Sprintf("dtype(%d)", uint8(t))
}

// Size returns the element size in bytes.
func (t DType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	}
	return 0
}

// Signed reports whether t can hold negative values.
func (t DType) Signed() bool {
	switch t {
	case Int8, Int16, Int32, Int64, Float32, Float64:
		return true
	}
	return false
}

// Float reports whether t is a floating-point type.
func (t DType) Float() bool { return t == Float32 || t == Float64 }

// Valid reports whether t names a real type.
func (t DType) Valid() bool { return t > Invalid && t <= Float64 }

// Range returns the smallest and largest representable values.
func (t DType) Range() (lo, hi float64) {
	switch t {
	case Uint8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Uint64:
		return 0, math.MaxUint64
	case Int64:
		return math.MinInt64, math.MaxInt64
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	}
	return -math.MaxFloat64, math.MaxFloat64
}

// Integer returns the integer type of the given size and signedness.
func Integer(size int, signed bool) (DType, error) {
	var t DType
	switch size {
	case 1:
		t = Uint8
	case 2:
		t = Uint16
	case 4:
		t = Uint32
	case 8:
		t = Uint64
	default:
		return Invalid, fmt.Errorf("%w: %d-byte integer", ErrUnknownDType, size)
	}
	if signed {
		t++
	}
	return t, nil
}

// ParseDType accepts Go style names ("uint16", "float32") and numpy
// short codes ("u2", "f4", "<i2").
func ParseDType(s string) (DType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range dtypeNames {
		if n == name && DType(t) != Invalid {
			return DType(t), nil
		}
	}
	name = strings.TrimLeft(name, "<>|=")
	if len(name) == 2 {
		size := int(name[1] - '0')
		switch name[0] {
		case 'u':
			return Integer(size, false)
		case 'i':
			return Integer(size, true)
		case 'f':
			switch size {
			case 4:
				return Float32, nil
			case 8:
				return Float64, nil
			}
		}
	}
	return Invalid, fmt.Errorf("%w: %q", ErrUnknownDType, s)
}
