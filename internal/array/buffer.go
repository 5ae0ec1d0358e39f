package array

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer is a row-major array of little-endian elements.
type Buffer struct {
	DType DType
	Shape []int
	Data  []byte
}

// New returns a zeroed buffer.
func New(t DType, shape ...int) *Buffer {
	return &Buffer{DType: t, Shape: append([]int(nil), shape...), Data: make([]byte, NumElements(shape)*t.Size())}
}

// Wrap checks that data holds shape elements of t and returns it as a
// buffer without copying.
func Wrap(t DType, shape []int, data []byte) (*Buffer, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDType, t)
	}
	if want := NumElements(shape) * t.Size(); len(data) != want {
		return nil, fmt.Errorf("buffer of %d bytes for %v %s, want %d", len(data), shape, t, want)
	}
	return &Buffer{DType: t, Shape: append([]int(nil), shape...), Data: data}, nil
}

// NumElements returns the product of shape.
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (b *Buffer) Len() int { return NumElements(b.Shape) }

// At returns element i as a float64. 64-bit integers beyond 2^53 lose
// precision.
func (b *Buffer) At(i int) float64 {
	d := b.Data
	switch b.DType {
	case Uint8:
		return float64(d[i])
	case Int8:
		return float64(int8(d[i]))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(d[2*i:]))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(d[2*i:])))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(d[4*i:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(d[4*i:])))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(d[8*i:]))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(d[8*i:])))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(d[4*i:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(d[8*i:]))
	}
	return 0
}

// Set stores v as element i, rounding to nearest and saturating for
// integer types. NaN stores zero in integer types.
func (b *Buffer) Set(i int, v float64) {
	d := b.Data
	if !b.DType.Float() {
		if math.IsNaN(v) {
			v = 0
		}
		lo, hi := b.DType.Range()
		v = math.Round(math.Max(lo, math.Min(hi, v)))
	}
	switch b.DType {
	case Uint8:
		d[i] = uint8(v)
	case Int8:
		d[i] = uint8(int8(v))
	case Uint16:
		binary.LittleEndian.PutUint16(d[2*i:], uint16(v))
	case Int16:
		binary.LittleEndian.PutUint16(d[2*i:], uint16(int16(v)))
	case Uint32:
		binary.LittleEndian.PutUint32(d[4*i:], uint32(v))
	case Int32:
		binary.LittleEndian.PutUint32(d[4*i:], uint32(int32(v)))
	case Uint64:
		if v >= math.MaxUint64 {
			binary.LittleEndian.PutUint64(d[8*i:], math.MaxUint64)
			return
		}
		binary.LittleEndian.PutUint64(d[8*i:], uint64(v))
	case Int64:
		if v >= math.MaxInt64 {
			binary.LittleEndian.PutUint64(d[8*i:], math.MaxInt64)
			return
		}
		binary.LittleEndian.PutUint64(d[8*i:], uint64(int64(v)))
	case Float32:
		f := float32(math.Max(-math.MaxFloat32, math.Min(math.MaxFloat32, v)))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			f = float32(v)
		}
		binary.LittleEndian.PutUint32(d[4*i:], math.Float32bits(f))
	case Float64:
		binary.LittleEndian.PutUint64(d[8*i:], math.Float64bits(v))
	}
}

// Float64s returns every element as a float64.
func (b *Buffer) Float64s() []float64 {
	out := make([]float64, b.Len())
	for i := range out {
		out[i] = b.At(i)
	}
	return out
}

// Plane returns the 2-D plane i of a 3-D buffer as float64s.
func (b *Buffer) Plane(i int) ([]float64, error) {
	if len(b.Shape) != 3 {
		return nil, fmt.Errorf("plane of a rank %d buffer", len(b.Shape))
	}
	if i < 0 || i >= b.Shape[0] {
		return nil, fmt.Errorf("plane %d of %d", i, b.Shape[0])
	}
	n := b.Shape[1] * b.Shape[2]
	out := make([]float64, n)
	for j := range out {
		out[j] = b.At(i*n + j)
	}
	return out, nil
}

// Pad returns b extended with zero planes along the leading axis up to n.
func (b *Buffer) Pad(n int) *Buffer {
	if len(b.Shape) == 0 || b.Shape[0] >= n {
		return b
	}
	shape := append([]int{n}, b.Shape[1:]...)
	out := New(b.DType, shape...)
	copy(out.Data, b.Data)
	return out
}

// SwapBytes reverses the byte order of every size-byte element in place.
func SwapBytes(data []byte, size int) {
	if size <= 1 {
		return
	}
	for i := 0; i+size <= len(data); i += size {
		e := data[i : i+size]
		for l, r := 0, size-1; l < r; l, r = l+1, r-1 {
			e[l], e[r] = e[r], e[l]
		}
	}
}
