package source

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	zarr "github.com/qri-io/zarr-go"

	"github.com/robert-malhotra/tomochunk/internal/array"
)

const zarrMetaKey = string(zarr.MTArray)

// zarrMeta is the .zarray document. Chunks is decoded here rather than
// through zarr.ArrayMeta, whose chunk field only holds two dimensions.
type zarrMeta struct {
	ZarrFormat         int                   `json:"zarr_format"`
	Shape              []int                 `json:"shape"`
	Chunks             []int                 `json:"chunks"`
	Dtype              zarr.Dtype            `json:"dtype"`
	Compressor         *zarr.CompressionMeta `json:"compressor"`
	FillValue          interface{}           `json:"fill_value"`
	Order              string                `json:"order"`
	Filters            []zarr.Filter         `json:"filters"`
	DimensionSeparator string                `json:"dimension_separator"`
}

// Zarr reads a Zarr v2 array from a local directory store.
type Zarr struct {
	dir   string
	store *zarr.LocalStore
	meta  zarrMeta
	dtype array.DType
	swap  bool
	fill  float64

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// OpenZarr opens the array stored in dir.
func OpenZarr(dir string) (*Zarr, error) {
	if _, err := os.Stat(filepath.Join(dir, zarrMetaKey)); err != nil {
		return nil, err
	}
	store, err := zarr.NewLocalStore(dir)
	if err != nil {
		return nil, err
	}
	rc, err := store.Get(zarrMetaKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	z := &Zarr{dir: dir, store: store}
	if err := json.NewDecoder(rc).Decode(&z.meta); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, zarrMetaKey), err)
	}
	if err := z.init(); err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	return z, nil
}

func (z *Zarr) init() error {
	m := &z.meta
	if m.ZarrFormat != 2 {
		return fmt.Errorf("%w: zarr format %d", ErrUnsupported, m.ZarrFormat)
	}
	if len(m.Chunks) != len(m.Shape) {
		return fmt.Errorf("chunk rank %d does not match array rank %d", len(m.Chunks), len(m.Shape))
	}
	for _, c := range m.Chunks {
		if c < 1 {
			return fmt.Errorf("invalid chunk shape %v", m.Chunks)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("%w: order %q", ErrUnsupported, m.Order)
	}
	if len(m.Filters) > 0 {
		return fmt.Errorf("%w: filters", ErrUnsupported)
	}
	switch m.DimensionSeparator {
	case "":
		m.DimensionSeparator = "."
	case ".", "/":
	default:
		return fmt.Errorf("%w: dimension separator %q", ErrUnsupported, m.DimensionSeparator)
	}
	if m.Compressor != nil {
		switch m.Compressor.ID {
		case "zlib", "gzip", "zstd", "lz4":
		default:
			return fmt.Errorf("%w: compressor %q", ErrUnsupported, m.Compressor.ID)
		}
	}

	var err error
	if z.dtype, err = zarrDType(m.Dtype); err != nil {
		return err
	}
	z.swap = m.Dtype.ByteOrder == zarr.BOBigEndian && z.dtype.Size() > 1
	z.fill, err = zarrFill(m.FillValue)
	return err
}

func zarrDType(dt zarr.Dtype) (array.DType, error) {
	switch dt.BasicType {
	case zarr.BTBoolean:
		if dt.ByteSize == 1 {
			return array.Uint8, nil
		}
	case zarr.BTInteger, zarr.BTUnsigned:
		t, err := array.Integer(dt.ByteSize, dt.BasicType == zarr.BTInteger)
		if err == nil {
			return t, nil
		}
	case zarr.BTFloatingPoint:
		switch dt.ByteSize {
		case 4:
			return array.Float32, nil
		case 8:
			return array.Float64, nil
		}
	}
	return array.Invalid, fmt.Errorf("%w: dtype %s", ErrUnsupported, dt)
}

func zarrFill(v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		switch x {
		case zarr.FillValueNaN:
			return math.NaN(), nil
		case zarr.FillValueInfinity:
			return math.Inf(1), nil
		case zarr.FillValueNegativeInfinity:
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("%w: fill value %v", ErrUnsupported, v)
}

func (z *Zarr) Name() string       { return z.dir }
func (z *Zarr) Shape() []int       { return append([]int(nil), z.meta.Shape...) }
func (z *Zarr) DType() array.DType { return z.dtype }
func (z *Zarr) Chunks() []int      { return append([]int(nil), z.meta.Chunks...) }

func (z *Zarr) Close() error {
	if z.dec != nil {
		z.dec.Close()
	}
	return nil
}

func (z *Zarr) ReadUnit(start, count int) (*array.Buffer, error) {
	shape := z.meta.Shape
	if err := checkUnit(z.dir, shape, start, count); err != nil {
		return nil, err
	}
	out := array.New(z.dtype, unitShape(shape, count)...)
	if z.fill != 0 {
		for i := 0; i < out.Len(); i++ {
			out.Set(i, z.fill)
		}
	}

	rank := len(shape)
	chunks := z.meta.Chunks
	es := z.dtype.Size()
	counts := make([]int, rank)
	for i := range counts {
		counts[i] = array.CeilDiv(shape[i], chunks[i])
	}

	// Walk every chunk overlapping the unit; only the leading axis is
	// restricted.
	idx := make([]int, rank)
	idx[0] = start / chunks[0]
	last := (start + count - 1) / chunks[0]
	for {
		data, err := z.chunk(idx)
		if err != nil {
			return nil, err
		}
		if data != nil {
			srcStart := make([]int, rank)
			dstStart := make([]int, rank)
			extent := make([]int, rank)
			for i := range idx {
				lo := idx[i] * chunks[i]
				hi := min(lo+chunks[i], shape[i])
				if i == 0 {
					lo, hi = max(lo, start), min(hi, start+count)
					dstStart[0] = lo - start
				} else {
					dstStart[i] = lo
				}
				srcStart[i] = lo - idx[i]*chunks[i]
				extent[i] = hi - lo
			}
			array.CopyBox(out.Data, out.Shape, dstStart, data, chunks, srcStart, extent, es)
		}

		i := rank - 1
		for ; i >= 0; i-- {
			idx[i]++
			if (i == 0 && idx[i] <= last) || (i > 0 && idx[i] < counts[i]) {
				break
			}
			if i > 0 {
				idx[i] = 0
			}
		}
		if i < 0 {
			return out, nil
		}
	}
}

func (z *Zarr) chunkKey(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, z.meta.DimensionSeparator)
}

// chunk returns the decoded chunk at idx, or nil when it was never
// written.
func (z *Zarr) chunk(idx []int) ([]byte, error) {
	key := z.chunkKey(idx)
	rc, err := z.store.Get(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := z.decompress(rc)
	if err != nil {
		return nil, fmt.Errorf("%s chunk %s: %w", z.dir, key, err)
	}
	want := array.NumElements(z.meta.Chunks) * z.dtype.Size()
	if len(data) != want {
		return nil, fmt.Errorf("%s chunk %s: %d bytes, want %d", z.dir, key, len(data), want)
	}
	if z.swap {
		array.SwapBytes(data, z.dtype.Size())
	}
	return data, nil
}

func (z *Zarr) decompress(rc io.ReadCloser) ([]byte, error) {
	if z.meta.Compressor == nil {
		return io.ReadAll(rc)
	}
	switch z.meta.Compressor.ID {
	case "gzip":
		r, err := z.meta.Compressor.Decompressor(rc)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "zlib":
		r, err := zlib.NewReader(rc)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "zstd":
		raw, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		z.decOnce.Do(func() {
			z.dec, z.decErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		})
		if z.decErr != nil {
			return nil, z.decErr
		}
		return z.dec.DecodeAll(raw, nil)
	case "lz4":
		// numcodecs prefixes the block with its decoded size.
		raw, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		if len(raw) < 4 {
			return nil, fmt.Errorf("lz4 chunk of %d bytes", len(raw))
		}
		n := binary.LittleEndian.Uint32(raw)
		out := make([]byte, n)
		got, err := lz4.UncompressBlock(raw[4:], out)
		if err != nil {
			return nil, err
		}
		return out[:got], nil
	}
	return nil, fmt.Errorf("%w: compressor %q", ErrUnsupported, z.meta.Compressor.ID)
}
