package filter

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/cocosip/go-dicom-codec/jpeg2000"
	"github.com/cocosip/go-dicom-codec/jpegls/nearlossless"
)

// Geometry describes a chunk as a stack of 2-D planes of little-endian
// integers, the input of the image codecs.
type Geometry struct {
	Width, Height int
	Planes        int
	ElemSize      int // 1 or 2
	Signed        bool
}

func (g Geometry) planeBytes() int { return g.Width * g.Height * g.ElemSize }

func (g Geometry) chunkBytes() int { return g.planeBytes() * g.Planes }

func (g Geometry) bitDepth() int { return g.ElemSize * 8 }

func (g Geometry) validate() error {
	if g.Width <= 0 || g.Height <= 0 || g.Planes <= 0 {
		return fmt.Errorf("%w: image geometry %dx%dx%d", ErrClientData, g.Planes, g.Height, g.Width)
	}
	if g.ElemSize != 1 && g.ElemSize != 2 {
		return fmt.Errorf("%w: image codecs take 8 or 16 bit integers, got %d-byte elements", ErrClientData, g.ElemSize)
	}
	return nil
}

func (g Geometry) clientData() []uint32 {
	var signed uint32
	if g.Signed {
		signed = 1
	}
	return []uint32{uint32(g.Width), uint32(g.Height), uint32(g.Planes), uint32(g.ElemSize), signed}
}

func geometryFromClientData(cd []uint32) (Geometry, []uint32, error) {
	if len(cd) < 5 {
		return Geometry{}, nil, fmt.Errorf("%w: image client data %v", ErrClientData, cd)
	}
	g := Geometry{
		Width:    int(cd[0]),
		Height:   int(cd[1]),
		Planes:   int(cd[2]),
		ElemSize: int(cd[3]),
		Signed:   cd[4] != 0,
	}
	return g, cd[5:], g.validate()
}

// toInt32 widens one plane.
func (g Geometry) toInt32(p []byte) []int32 {
	out := make([]int32, g.Width*g.Height)
	for i := range out {
		switch {
		case g.ElemSize == 1 && g.Signed:
			out[i] = int32(int8(p[i]))
		case g.ElemSize == 1:
			out[i] = int32(p[i])
		case g.Signed:
			out[i] = int32(int16(binary.LittleEndian.Uint16(p[2*i:])))
		default:
			out[i] = int32(binary.LittleEndian.Uint16(p[2*i:]))
		}
	}
	return out
}

// fromInt32 narrows one plane, saturating at the element range.
func (g Geometry) fromInt32(dst []byte, v []int32) {
	lo, hi := int32(0), int32(1)<<g.bitDepth()-1
	if g.Signed {
		lo, hi = -(int32(1) << (g.bitDepth() - 1)), int32(1)<<(g.bitDepth()-1)-1
	}
	for i, x := range v {
		x = min(max(x, lo), hi)
		if g.ElemSize == 1 {
			dst[i] = byte(x)
		} else {
			binary.LittleEndian.PutUint16(dst[2*i:], uint16(x))
		}
	}
}

// Codestreams are framed with a 4-byte big-endian length each.
func appendFrame(out, cs []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(cs)))
	return append(out, cs...)
}

func nextFrame(in []byte) (frame, rest []byte, err error) {
	if len(in) < 4 {
		return nil, nil, fmt.Errorf("%w: codestream length truncated", ErrCorrupt)
	}
	n := binary.BigEndian.Uint32(in)
	if uint64(n) > uint64(len(in)-4) {
		return nil, nil, fmt.Errorf("%w: codestream of %d bytes, %d left", ErrCorrupt, n, len(in)-4)
	}
	return in[4 : 4+n], in[4+n:], nil
}

// J2K encodes each plane as a JPEG 2000 codestream. The stack variant
// packs three consecutive planes as the components of one codestream so
// the encoder can decorrelate neighbouring slices.
type J2K struct {
	geom    Geometry
	stack   bool
	quality int // 0 is reversible, 1-100 irreversible
	tileW   int
	tileH   int
}

// StackDepth is the number of planes the stack variant packs together.
const StackDepth = 3

// NewJ2K returns a JPEG 2000 filter. quality 0 selects the reversible
// 5/3 wavelet; tiles of zero cover the whole plane.
func NewJ2K(g Geometry, stack bool, quality, tileW, tileH int) (*J2K, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	if stack && g.Planes%StackDepth != 0 {
		return nil, fmt.Errorf("%w: stacked JPEG 2000 needs a multiple of %d planes, got %d", ErrClientData, StackDepth, g.Planes)
	}
	if quality < 0 || quality > 100 {
		return nil, fmt.Errorf("%w: JPEG 2000 quality %d", ErrClientData, quality)
	}
	if tileW < 0 || tileH < 0 {
		return nil, fmt.Errorf("%w: JPEG 2000 tile %dx%d", ErrClientData, tileH, tileW)
	}
	return &J2K{geom: g, stack: stack, quality: quality, tileW: tileW, tileH: tileH}, nil
}

func j2kFromClientData(cd []uint32, stack bool) (*J2K, error) {
	g, rest, err := geometryFromClientData(cd)
	if err != nil {
		return nil, err
	}
	var q, tw, th int
	if len(rest) > 0 {
		q = int(rest[0])
	}
	if len(rest) > 2 {
		tw, th = int(rest[1]), int(rest[2])
	}
	return NewJ2K(g, stack, q, tw, th)
}

func (f *J2K) ID() uint16 {
	if f.stack {
		return IDJ2KStack
	}
	return IDJ2K
}

func (f *J2K) Name() string {
	if f.stack {
		return "j2k-stack"
	}
	return "j2k"
}

func (f *J2K) ClientData() []uint32 {
	return append(f.geom.clientData(), uint32(f.quality), uint32(f.tileW), uint32(f.tileH))
}

func (f *J2K) Lossy() bool { return f.quality != 0 }

func (f *J2K) components() int {
	if f.stack {
		return StackDepth
	}
	return 1
}

// levels keeps the coarsest wavelet band at least one pixel wide.
func (f *J2K) levels() int {
	w, h := f.geom.Width, f.geom.Height
	if f.tileW > 0 {
		w = min(w, f.tileW)
	}
	if f.tileH > 0 {
		h = min(h, f.tileH)
	}
	return min(5, bits.Len(uint(min(w, h)))-1)
}

func (f *J2K) Encode(in []byte) ([]byte, error) {
	g := f.geom
	if len(in) != g.chunkBytes() {
		return nil, fmt.Errorf("%w: chunk is %d bytes, geometry wants %d", ErrClientData, len(in), g.chunkBytes())
	}
	comps := f.components()
	pb := g.planeBytes()
	var out []byte
	for p := 0; p < g.Planes; p += comps {
		data := make([][]int32, comps)
		for c := range data {
			data[c] = g.toInt32(in[(p+c)*pb : (p+c+1)*pb])
		}
		params := jpeg2000.DefaultEncodeParams(g.Width, g.Height, comps, g.bitDepth(), g.Signed)
		params.NumLevels = f.levels()
		params.TileWidth, params.TileHeight = f.tileW, f.tileH
		if f.quality > 0 {
			params.Lossless = false
			params.Quality = f.quality
		}
		cs, err := jpeg2000.NewEncoder(params).EncodeComponents(data)
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", p, err)
		}
		out = appendFrame(out, cs)
	}
	return out, nil
}

func (f *J2K) Decode(in []byte) ([]byte, error) {
	g := f.geom
	comps := f.components()
	pb := g.planeBytes()
	out := make([]byte, g.chunkBytes())
	for p := 0; p < g.Planes; p += comps {
		cs, rest, err := nextFrame(in)
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", p, err)
		}
		in = rest
		dec := jpeg2000.NewDecoder()
		if err := dec.Decode(cs); err != nil {
			return nil, fmt.Errorf("%w: plane %d: %v", ErrCorrupt, p, err)
		}
		if dec.Width() != g.Width || dec.Height() != g.Height {
			return nil, fmt.Errorf("%w: plane %d is %dx%d, want %dx%d", ErrCorrupt, p, dec.Height(), dec.Width(), g.Height, g.Width)
		}
		data := dec.GetImageData()
		if len(data) != comps {
			return nil, fmt.Errorf("%w: plane %d has %d components, want %d", ErrCorrupt, p, len(data), comps)
		}
		for c, v := range data {
			if len(v) != g.Width*g.Height {
				return nil, fmt.Errorf("%w: plane %d component %d has %d samples", ErrCorrupt, p, c, len(v))
			}
			g.fromInt32(out[(p+c)*pb:(p+c+1)*pb], v)
		}
	}
	return out, nil
}

// JPEGLS encodes each plane with near-lossless JPEG-LS: every decoded
// sample is within near of the original.
type JPEGLS struct {
	geom Geometry
	near int
}

// NewJPEGLS returns a JPEG-LS filter. near 0 is lossless.
func NewJPEGLS(g Geometry, near int) (*JPEGLS, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	if g.Signed {
		return nil, fmt.Errorf("%w: JPEG-LS takes unsigned samples", ErrClientData)
	}
	if near < 0 || near > 255 {
		return nil, fmt.Errorf("%w: JPEG-LS NEAR %d", ErrClientData, near)
	}
	return &JPEGLS{geom: g, near: near}, nil
}

func jpeglsFromClientData(cd []uint32) (*JPEGLS, error) {
	g, rest, err := geometryFromClientData(cd)
	if err != nil {
		return nil, err
	}
	var near int
	if len(rest) > 0 {
		near = int(rest[0])
	}
	return NewJPEGLS(g, near)
}

func (f *JPEGLS) ID() uint16           { return IDJPEGLS }
func (f *JPEGLS) Name() string         { return "jpegls" }
func (f *JPEGLS) ClientData() []uint32 { return append(f.geom.clientData(), uint32(f.near)) }
func (f *JPEGLS) Lossy() bool          { return f.near != 0 }

func (f *JPEGLS) Encode(in []byte) ([]byte, error) {
	g := f.geom
	if len(in) != g.chunkBytes() {
		return nil, fmt.Errorf("%w: chunk is %d bytes, geometry wants %d", ErrClientData, len(in), g.chunkBytes())
	}
	pb := g.planeBytes()
	var out []byte
	for p := 0; p < g.Planes; p++ {
		cs, err := nearlossless.Encode(in[p*pb:(p+1)*pb], g.Width, g.Height, 1, g.bitDepth(), f.near)
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", p, err)
		}
		out = appendFrame(out, cs)
	}
	return out, nil
}

func (f *JPEGLS) Decode(in []byte) ([]byte, error) {
	g := f.geom
	pb := g.planeBytes()
	out := make([]byte, g.chunkBytes())
	for p := 0; p < g.Planes; p++ {
		cs, rest, err := nextFrame(in)
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", p, err)
		}
		in = rest
		pix, w, h, comps, _, _, err := nearlossless.Decode(cs)
		if err != nil {
			return nil, fmt.Errorf("%w: plane %d: %v", ErrCorrupt, p, err)
		}
		if w != g.Width || h != g.Height || comps != 1 || len(pix) < pb {
			return nil, fmt.Errorf("%w: plane %d decoded as %dx%dx%d (%d bytes)", ErrCorrupt, p, comps, h, w, len(pix))
		}
		copy(out[p*pb:], pix[:pb])
	}
	return out, nil
}
