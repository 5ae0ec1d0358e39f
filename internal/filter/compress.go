package filter

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Zstd is the registered Zstandard filter. Chunks are single zstd frames.
type Zstd struct {
	level int

	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

// NewZstd returns a zstd filter at level 1-22.
func NewZstd(level int) (*Zstd, error) {
	if level < 1 || level > 22 {
		return nil, fmt.Errorf("%w: zstd level %d", ErrClientData, level)
	}
	return &Zstd{level: level}, nil
}

func zstdFromClientData(cd []uint32) (*Zstd, error) {
	level := 3
	if len(cd) > 0 && cd[0] != 0 {
		level = int(cd[0])
	}
	return NewZstd(level)
}

func (f *Zstd) ID() uint16           { return IDZstd }
func (f *Zstd) Name() string         { return "zstd" }
func (f *Zstd) ClientData() []uint32 { return []uint32{uint32(f.level)} }

func (f *Zstd) init() error {
	f.once.Do(func() {
		f.enc, f.err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(f.level)),
			zstd.WithEncoderConcurrency(1))
		if f.err != nil {
			return
		}
		f.dec, f.err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return f.err
}

func (f *Zstd) Encode(in []byte) ([]byte, error) {
	if err := f.init(); err != nil {
		return nil, err
	}
	return f.enc.EncodeAll(in, nil), nil
}

func (f *Zstd) Decode(in []byte) ([]byte, error) {
	if err := f.init(); err != nil {
		return nil, err
	}
	return f.dec.DecodeAll(in, nil)
}

// LZ4 is the registered LZ4 filter. A chunk is framed as the big-endian
// original size (8 bytes) and block size (4 bytes), then for each block a
// big-endian compressed size (4 bytes) and the LZ4 block. A block that
// does not shrink is stored raw with its own size.
type LZ4 struct {
	blockSize int
}

const lz4DefaultBlock = 1 << 30

// NewLZ4 returns an LZ4 filter; zero blockSize compresses each chunk as
// one block.
func NewLZ4(blockSize int) (*LZ4, error) {
	if blockSize < 0 || blockSize > lz4DefaultBlock {
		return nil, fmt.Errorf("%w: lz4 block size %d", ErrClientData, blockSize)
	}
	return &LZ4{blockSize: blockSize}, nil
}

func lz4FromClientData(cd []uint32) (*LZ4, error) {
	var block int
	if len(cd) > 0 {
		block = int(cd[0])
	}
	return NewLZ4(block)
}

func (f *LZ4) ID() uint16           { return IDLZ4 }
func (f *LZ4) Name() string         { return "lz4" }
func (f *LZ4) ClientData() []uint32 { return []uint32{uint32(f.blockSize)} }

func (f *LZ4) Encode(in []byte) ([]byte, error) {
	block := f.blockSize
	if block == 0 {
		block = lz4DefaultBlock
	}
	block = min(block, max(len(in), 1))

	out := make([]byte, 12, 12+lz4.CompressBlockBound(len(in))+4*(len(in)/block+1))
	binary.BigEndian.PutUint64(out[0:], uint64(len(in)))
	binary.BigEndian.PutUint32(out[8:], uint32(block))

	var c lz4.Compressor
	buf := make([]byte, lz4.CompressBlockBound(block))
	for pos := 0; pos < len(in); pos += block {
		src := in[pos:min(pos+block, len(in))]
		n, err := c.CompressBlock(src, buf)
		if err != nil {
			return nil, fmt.Errorf("lz4 block at %d: %w", pos, err)
		}
		if n == 0 || n >= len(src) {
			out = binary.BigEndian.AppendUint32(out, uint32(len(src)))
			out = append(out, src...)
			continue
		}
		out = binary.BigEndian.AppendUint32(out, uint32(n))
		out = append(out, buf[:n]...)
	}
	return out, nil
}

func (f *LZ4) Decode(in []byte) ([]byte, error) {
	if len(in) < 12 {
		return nil, fmt.Errorf("%w: lz4 header truncated", ErrCorrupt)
	}
	total := binary.BigEndian.Uint64(in[0:])
	block := uint64(binary.BigEndian.Uint32(in[8:]))
	if block == 0 && total != 0 {
		return nil, fmt.Errorf("%w: lz4 block size 0", ErrCorrupt)
	}
	out := make([]byte, total)
	pos, src := uint64(0), in[12:]
	for pos < total {
		if len(src) < 4 {
			return nil, fmt.Errorf("%w: lz4 block header truncated at %d", ErrCorrupt, pos)
		}
		n := uint64(binary.BigEndian.Uint32(src))
		src = src[4:]
		want := min(block, total-pos)
		if n > uint64(len(src)) {
			return nil, fmt.Errorf("%w: lz4 block of %d bytes, %d left", ErrCorrupt, n, len(src))
		}
		if n == want {
			copy(out[pos:], src[:n])
		} else {
			got, err := lz4.UncompressBlock(src[:n], out[pos:pos+want])
			if err != nil {
				return nil, fmt.Errorf("%w: lz4 block at %d: %v", ErrCorrupt, pos, err)
			}
			if uint64(got) != want {
				return nil, fmt.Errorf("%w: lz4 block at %d decoded %d of %d bytes", ErrCorrupt, pos, got, want)
			}
		}
		src = src[n:]
		pos += want
	}
	return out, nil
}

// Snappy is the registered snappy filter over the raw block format.
type Snappy struct{}

func NewSnappy() *Snappy { return &Snappy{} }

func (f *Snappy) ID() uint16           { return IDSnappy }
func (f *Snappy) Name() string         { return "snappy" }
func (f *Snappy) ClientData() []uint32 { return nil }

func (f *Snappy) Encode(in []byte) ([]byte, error) { return snappy.Encode(nil, in), nil }

func (f *Snappy) Decode(in []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}
