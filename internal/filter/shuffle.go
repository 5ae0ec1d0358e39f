package filter

import "fmt"

// Shuffle groups the bytes of each element by significance.
type Shuffle struct {
	elemSize int
}

// NewShuffle returns a byte shuffle for elements of elemSize bytes.
func NewShuffle(elemSize int) *Shuffle {
	return &Shuffle{elemSize: max(elemSize, 1)}
}

func shuffleFromClientData(cd []uint32) (*Shuffle, error) {
	if len(cd) == 0 || !elemSizeOK(cd[0]) {
		return nil, fmt.Errorf("%w: shuffle needs an element size, got %v", ErrClientData, cd)
	}
	return NewShuffle(int(cd[0])), nil
}

func (f *Shuffle) ID() uint16           { return IDShuffle }
func (f *Shuffle) Name() string         { return "shuffle" }
func (f *Shuffle) ClientData() []uint32 { return []uint32{uint32(f.elemSize)} }

// Encode writes byte j of every element, then byte j+1. Trailing bytes
// that do not form a whole element are copied as is.
func (f *Shuffle) Encode(in []byte) ([]byte, error) {
	n := len(in) / f.elemSize
	if f.elemSize == 1 || n < 2 {
		return in, nil
	}
	out := make([]byte, len(in))
	for i := 0; i < n; i++ {
		for j := 0; j < f.elemSize; j++ {
			out[j*n+i] = in[i*f.elemSize+j]
		}
	}
	copy(out[n*f.elemSize:], in[n*f.elemSize:])
	return out, nil
}

func (f *Shuffle) Decode(in []byte) ([]byte, error) {
	n := len(in) / f.elemSize
	if f.elemSize == 1 || n < 2 {
		return in, nil
	}
	out := make([]byte, len(in))
	for i := 0; i < n; i++ {
		for j := 0; j < f.elemSize; j++ {
			out[i*f.elemSize+j] = in[j*n+i]
		}
	}
	copy(out[n*f.elemSize:], in[n*f.elemSize:])
	return out, nil
}

// Bitshuffle bit-transposes blocks of elements, the layout of the HDF5
// bitshuffle filter without its embedded compressor.
type Bitshuffle struct {
	elemSize  int
	blockSize int // elements, a multiple of 8
}

const (
	bitshuffleTargetBytes = 8192
	bitshuffleMinBlock    = 128
	bitshuffleVersion     = 0
	bitshuffleMinor       = 4
)

// NewBitshuffle returns a bit shuffle over blocks of blockSize elements;
// zero picks the filter's default of about 8 KiB per block.
func NewBitshuffle(elemSize, blockSize int) (*Bitshuffle, error) {
	elemSize = max(elemSize, 1)
	if blockSize == 0 {
		blockSize = max(bitshuffleTargetBytes/elemSize/8*8, bitshuffleMinBlock)
	}
	if blockSize%8 != 0 || blockSize < 0 {
		return nil, fmt.Errorf("%w: bitshuffle block size %d is not a multiple of 8", ErrClientData, blockSize)
	}
	return &Bitshuffle{elemSize: elemSize, blockSize: blockSize}, nil
}

// Client data follows the registered filter: major and minor version,
// element size, block size and compressor (always none here).
func bitshuffleFromClientData(cd []uint32) (*Bitshuffle, error) {
	if len(cd) < 3 || !elemSizeOK(cd[2]) {
		return nil, fmt.Errorf("%w: bitshuffle client data %v", ErrClientData, cd)
	}
	if len(cd) > 4 && cd[4] != 0 {
		return nil, fmt.Errorf("%w: bitshuffle with embedded compressor %d", ErrUnsupportedFilter, cd[4])
	}
	var block int
	if len(cd) > 3 {
		block = int(cd[3])
	}
	return NewBitshuffle(int(cd[2]), block)
}

func (f *Bitshuffle) ID() uint16   { return IDBitshuffle }
func (f *Bitshuffle) Name() string { return "bitshuffle" }
func (f *Bitshuffle) ClientData() []uint32 {
	return []uint32{bitshuffleVersion, bitshuffleMinor, uint32(f.elemSize), uint32(f.blockSize), 0}
}

func (f *Bitshuffle) Encode(in []byte) ([]byte, error) { return f.apply(in, true), nil }
func (f *Bitshuffle) Decode(in []byte) ([]byte, error) { return f.apply(in, false), nil }

// apply walks full blocks, then the last partial block rounded down to a
// multiple of 8 elements; the remaining bytes are copied.
func (f *Bitshuffle) apply(in []byte, encode bool) []byte {
	out := make([]byte, len(in))
	elems := len(in) / f.elemSize
	pos := 0
	for elems-pos >= f.blockSize {
		f.block(out, in, pos, f.blockSize, encode)
		pos += f.blockSize
	}
	if last := (elems - pos) / 8 * 8; last > 0 {
		f.block(out, in, pos, last, encode)
		pos += last
	}
	copy(out[pos*f.elemSize:], in[pos*f.elemSize:])
	return out
}

// block transposes n elements starting at element start. In the shuffled
// form, row j*8+k holds bit k of byte j of each element, LSB first.
func (f *Bitshuffle) block(out, in []byte, start, n int, encode bool) {
	base := start * f.elemSize
	src := in[base : base+n*f.elemSize]
	dst := out[base : base+n*f.elemSize]
	clear(dst)
	rowBytes := n / 8
	for j := 0; j < f.elemSize; j++ {
		for k := 0; k < 8; k++ {
			row := (j*8 + k) * rowBytes
			for i := 0; i < n; i++ {
				if encode {
					bit := src[i*f.elemSize+j] >> k & 1
					dst[row+i/8] |= bit << (i % 8)
				} else {
					bit := src[row+i/8] >> (i % 8) & 1
					dst[i*f.elemSize+j] |= bit << k
				}
			}
		}
	}
}
