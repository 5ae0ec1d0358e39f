package recondition

import (
	"fmt"
	"math"
	"strings"

	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/filter"
)

// Codec names.
const (
	CodecNone     = "none"
	CodecDeflate  = "deflate"
	CodecZstd     = "zstd"
	CodecLZ4      = "lz4"
	CodecSnappy   = "snappy"
	CodecJ2K      = "j2k"
	CodecJ2KStack = "j2k-stack"
	CodecJPEGLS   = "jpegls"
)

// Codecs lists the known codec names.
var Codecs = []string{CodecNone, CodecDeflate, CodecZstd, CodecLZ4, CodecSnappy, CodecJ2K, CodecJ2KStack, CodecJPEGLS}

// Default levels used when a policy leaves Level at zero.
const (
	DefaultDeflateLevel = 4
	DefaultZstdLevel    = 3
)

// Shuffle selects the byte or bit transposition applied before the
// compressor.
type Shuffle int

const (
	NoShuffle Shuffle = iota
	ByteShuffle
	BitShuffle
)

func (s Shuffle) String() string {
	switch s {
	case NoShuffle:
		return "none"
	case ByteShuffle:
		return "byte"
	case BitShuffle:
		return "bit"
	}
	return fmt.Sprintf("Shuffle(%d)", int(s))
}

// ParseShuffle accepts "none", "byte" and "bit", and the filter names
// "shuffle" and "bitshuffle". The empty string is NoShuffle.
func ParseShuffle(s string) (Shuffle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "noshuffle":
		return NoShuffle, nil
	case "byte", "shuffle":
		return ByteShuffle, nil
	case "bit", "bitshuffle":
		return BitShuffle, nil
	}
	return NoShuffle, invalidPolicy("unknown shuffle %q", s)
}

// CompressionPolicy chooses the filters of the destination dataset.
//
// Level is the compressor level (deflate 0-9, zstd 1-22); zero selects
// the codec default and other codecs ignore it. BlockShape is the shape of
// the codec's internal block: its element count sizes lz4 and bitshuffle
// blocks, and its two trailing entries are the JPEG 2000 tile. Rate is the
// JPEG 2000 quality (1-100, zero for reversible) or the JPEG-LS NEAR bound
// (0-255).
type CompressionPolicy struct {
	Codec      string
	Level      int
	Shuffle    Shuffle
	BlockShape []int
	Rate       float64
	Fletcher32 bool
}

// ImageCodec reports whether the codec compresses 2-D planes of 8 or 16
// bit integers.
func (p CompressionPolicy) ImageCodec() bool {
	switch p.Codec {
	case CodecJ2K, CodecJ2KStack, CodecJPEGLS:
		return true
	}
	return false
}

// Lossy reports whether decoding may not restore the written data.
func (p CompressionPolicy) Lossy() bool { return p.ImageCodec() && p.Rate > 0 }

// StepMultiple is the number of slices a chunk's leading extent must be a
// multiple of.
func (p CompressionPolicy) StepMultiple() int {
	if p.Codec == CodecJ2KStack {
		return filter.StackDepth
	}
	return 1
}

func (p CompressionPolicy) String() string {
	var b strings.Builder
	b.WriteString(p.codec())
	if p.Level != 0 {
		fmt.Fprintf(&b, "-%d", p.Level)
	}
	switch p.Shuffle {
	case ByteShuffle:
		b.WriteString("-shuf")
	case BitShuffle:
		b.WriteString("-bshuf")
	}
	if p.ImageCodec() {
		fmt.Fprintf(&b, "-rate%g", p.Rate)
	}
	if p.Fletcher32 {
		b.WriteString("-fletcher32")
	}
	return b.String()
}

func (p CompressionPolicy) codec() string {
	if p.Codec == "" {
		return CodecNone
	}
	return p.Codec
}

// Validate checks the policy without reference to any data.
func (p CompressionPolicy) Validate() error {
	switch p.codec() {
	case CodecNone, CodecLZ4, CodecSnappy, CodecJ2K, CodecJ2KStack, CodecJPEGLS:
	case CodecDeflate:
		if p.Level < 0 || p.Level > 9 {
			return invalidPolicy("deflate level %d", p.Level)
		}
	case CodecZstd:
		if p.Level < 0 || p.Level > 22 {
			return invalidPolicy("zstd level %d", p.Level)
		}
	default:
		return invalidPolicy("unknown codec %q (known: %s)", p.Codec, strings.Join(Codecs, ", "))
	}
	if p.Shuffle < NoShuffle || p.Shuffle > BitShuffle {
		return invalidPolicy("shuffle %s", p.Shuffle)
	}
	for _, n := range p.BlockShape {
		if n < 1 {
			return invalidPolicy("block shape %v", p.BlockShape)
		}
	}
	if p.Rate < 0 || math.IsNaN(p.Rate) {
		return invalidPolicy("rate %g", p.Rate)
	}
	switch p.Codec {
	case CodecJ2K, CodecJ2KStack:
		if p.Rate > 100 {
			return invalidPolicy("JPEG 2000 quality %g is above 100", p.Rate)
		}
		// Quality rounds to an integer, and 0 is the reversible mode.
		if p.Rate > 0 && p.Rate < 1 {
			return invalidPolicy("JPEG 2000 quality %g is below 1", p.Rate)
		}
	case CodecJPEGLS:
		if p.Rate > 255 || p.Rate != math.Trunc(p.Rate) {
			return invalidPolicy("JPEG-LS NEAR %g is not an integer in 0-255", p.Rate)
		}
	}
	if p.ImageCodec() && p.Shuffle != NoShuffle {
		return invalidPolicy("%s does not take a shuffle", p.Codec)
	}
	return nil
}

// checkDType rejects element types the codec cannot store.
func (p CompressionPolicy) checkDType(t array.DType) error {
	if !p.ImageCodec() {
		return nil
	}
	if t.Float() || t.Size() > 2 {
		return fmt.Errorf("%w: %s stores 8 or 16 bit integers, not %s; add a cast", ErrUnsupportedDType, p.Codec, t)
	}
	if p.Codec == CodecJPEGLS && t.Signed() {
		return fmt.Errorf("%w: %s stores unsigned integers, not %s", ErrUnsupportedDType, p.Codec, t)
	}
	return nil
}

func (p CompressionPolicy) blockElements() int {
	if len(p.BlockShape) == 0 {
		return 0
	}
	return array.NumElements(p.BlockShape)
}

func (p CompressionPolicy) tile() (h, w int) {
	switch n := len(p.BlockShape); {
	case n >= 2:
		return p.BlockShape[n-2], p.BlockShape[n-1]
	case n == 1:
		return p.BlockShape[0], p.BlockShape[0]
	}
	return 0, 0
}

// Pipeline builds the filters for chunks of the given shape and element
// type. The chunk is (planes, height, width).
func (p CompressionPolicy) Pipeline(t array.DType, chunk []int) (*filter.Pipeline, error) {
	es := t.Size()
	var filters []filter.Filter

	switch p.Shuffle {
	case ByteShuffle:
		filters = append(filters, filter.NewShuffle(es))
	case BitShuffle:
		block := p.blockElements() / 8 * 8
		f, err := filter.NewBitshuffle(es, block)
		if err != nil {
			return nil, invalidPolicy("%v", err)
		}
		filters = append(filters, f)
	}

	var (
		f   filter.Filter
		err error
	)
	geom := filter.Geometry{Planes: chunk[0], Height: chunk[1], Width: chunk[2], ElemSize: es, Signed: t.Signed()}
	switch p.codec() {
	case CodecDeflate:
		level := p.Level
		if level == 0 {
			level = DefaultDeflateLevel
		}
		f, err = filter.NewDeflate(level)
	case CodecZstd:
		level := p.Level
		if level == 0 {
			level = DefaultZstdLevel
		}
		f, err = filter.NewZstd(level)
	case CodecLZ4:
		f, err = filter.NewLZ4(p.blockElements() * es)
	case CodecSnappy:
		f = filter.NewSnappy()
	case CodecJ2K, CodecJ2KStack:
		th, tw := p.tile()
		f, err = filter.NewJ2K(geom, p.Codec == CodecJ2KStack, int(math.Round(p.Rate)), tw, th)
	case CodecJPEGLS:
		f, err = filter.NewJPEGLS(geom, int(p.Rate))
	}
	if err != nil {
		return nil, invalidPolicy("%v", err)
	}
	if f != nil {
		filters = append(filters, f)
	}
	if p.Fletcher32 {
		filters = append(filters, filter.NewFletcher32())
	}
	return filter.NewPipeline(filters...), nil
}
