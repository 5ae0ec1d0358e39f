package array

import "fmt"

// Subsample keeps every k-th element along each trailing axis, starting at
// index 0, so a trailing extent d becomes ceil(d/k). The leading axis is
// untouched.
func Subsample(b *Buffer, k int) (*Buffer, error) {
	if k < 1 {
		return nil, fmt.Errorf("subsample factor %d", k)
	}
	if k == 1 || len(b.Shape) < 2 {
		return b, nil
	}
	rank := len(b.Shape)
	shape := make([]int, rank)
	shape[0] = b.Shape[0]
	for i := 1; i < rank; i++ {
		shape[i] = CeilDiv(b.Shape[i], k)
	}
	out := New(b.DType, shape...)
	es := b.DType.Size()

	// Strides of the source in elements.
	stride := make([]int, rank)
	stride[rank-1] = 1
	for i := rank - 2; i >= 0; i-- {
		stride[i] = stride[i+1] * b.Shape[i+1]
	}

	idx := make([]int, rank)
	for o := 0; o < out.Len(); o++ {
		src := idx[0] * stride[0]
		for i := 1; i < rank; i++ {
			src += idx[i] * k * stride[i]
		}
		copy(out.Data[o*es:(o+1)*es], b.Data[src*es:(src+1)*es])
		for i := rank - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}

// Cast converts b to t, rounding to nearest and saturating at the range
// of integer targets.
func Cast(b *Buffer, t DType) (*Buffer, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDType, t)
	}
	if t == b.DType {
		return b, nil
	}
	out := New(t, b.Shape...)
	for i := 0; i < b.Len(); i++ {
		out.Set(i, b.At(i))
	}
	return out, nil
}

// CeilDiv returns ceil(a/b) for positive b.
func CeilDiv(a, b int) int { return (a + b - 1) / b }

// CopyBox copies the box of the given extent at srcStart in src (of shape
// srcShape) to dstStart in dst (of shape dstShape). Both are row-major
// with elements of es bytes.
func CopyBox(dst []byte, dstShape, dstStart []int, src []byte, srcShape, srcStart []int, extent []int, es int) {
	rank := len(extent)
	if rank == 0 {
		copy(dst[:es], src[:es])
		return
	}
	for _, e := range extent {
		if e <= 0 {
			return
		}
	}
	stride := func(shape []int) []int {
		s := make([]int, rank)
		s[rank-1] = es
		for i := rank - 2; i >= 0; i-- {
			s[i] = s[i+1] * shape[i+1]
		}
		return s
	}
	ds, ss := stride(dstShape), stride(srcShape)
	row := extent[rank-1] * es

	idx := make([]int, rank-1)
	for {
		d, s := dstStart[rank-1]*es, srcStart[rank-1]*es
		for i := 0; i < rank-1; i++ {
			d += (dstStart[i] + idx[i]) * ds[i]
			s += (srcStart[i] + idx[i]) * ss[i]
		}
		copy(dst[d:d+row], src[s:s+row])

		i := rank - 2
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < extent[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}
