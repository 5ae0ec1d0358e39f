package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/robert-malhotra/tomochunk/hdf5"
	"github.com/robert-malhotra/tomochunk/internal/array"
)

// volume returns a uint16 volume whose values repeat in runs of ten along
// the last axis, so that every codec finds something to compress.
func volume(shape ...int) *array.Buffer {
	b := array.New(array.Uint16, shape...)
	i := 0
	for z := 0; z < shape[0]; z++ {
		for y := 0; y < shape[1]; y++ {
			for x := 0; x < shape[2]; x++ {
				b.Set(i, float64(1000*z+10*y+x/10))
				i++
			}
		}
	}
	return b
}

// unit returns the leading-axis slices [start, start+count) of b.
func unit(b *array.Buffer, start, count int) []byte {
	plane := array.NumElements(b.Shape[1:]) * b.DType.Size()
	return b.Data[start*plane : (start+count)*plane]
}

func TestMemory(t *testing.T) {
	vol := volume(4, 3, 20)
	m := NewMemory("mem", vol, []int{1, 3, 20})

	got, err := m.ReadUnit(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Shape, []int{2, 3, 20}) {
		t.Errorf("unit shape = %v", got.Shape)
	}
	if !bytes.Equal(got.Data, unit(vol, 1, 2)) {
		t.Error("unit data differs")
	}

	for _, tt := range []struct{ start, count int }{{-1, 1}, {0, 0}, {3, 2}, {4, 1}} {
		if _, err := m.ReadUnit(tt.start, tt.count); !errors.Is(err, ErrRange) {
			t.Errorf("ReadUnit(%d, %d) = %v, want ErrRange", tt.start, tt.count, err)
		}
	}
}

func TestHDF5Source(t *testing.T) {
	vol := volume(5, 4, 20)
	path := filepath.Join(t.TempDir(), "in.h5")

	f, err := hdf5.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	g, err := f.Root().RequireGroup("exchange")
	if err != nil {
		t.Fatal(err)
	}
	w, err := g.CreateChunkedDataset("data", []uint64{5, 4, 20}, array.Uint16, hdf5.WithChunks(1, 4, 20))
	if err != nil {
		t.Fatal(err)
	}
	for z := 0; z < 5; z++ {
		if err := w.WriteChunk([]uint64{uint64(z), 0, 0}, unit(vol, z, 1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	src, err := Open(path, "/exchange/data")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if !reflect.DeepEqual(src.Shape(), []int{5, 4, 20}) || src.DType() != array.Uint16 {
		t.Errorf("shape/dtype = %v/%s", src.Shape(), src.DType())
	}
	if !reflect.DeepEqual(src.Chunks(), []int{1, 4, 20}) {
		t.Errorf("Chunks = %v", src.Chunks())
	}
	got, err := src.ReadUnit(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data, unit(vol, 2, 3)) {
		t.Error("unit data differs")
	}

	if _, err := Open(path, "/exchange/missing"); !errors.Is(err, hdf5.ErrNotFound) {
		t.Errorf("missing dataset = %v, want ErrNotFound", err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "nope.h5"), "/data"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file = %v, want os.ErrNotExist", err)
	}
}

func compress(t *testing.T, id string, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch id {
	case "":
		return raw
	case "zlib":
		w := zlib.NewWriter(&buf)
		w.Write(raw)
		w.Close()
	case "gzip":
		w := gzip.NewWriter(&buf)
		w.Write(raw)
		w.Close()
	case "zstd":
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			t.Fatal(err)
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil)
	case "lz4":
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		var c lz4.Compressor
		n, err := c.CompressBlock(raw, dst)
		if err != nil || n == 0 {
			t.Fatalf("lz4 CompressBlock = %d, %v", n, err)
		}
		out := binary.LittleEndian.AppendUint32(nil, uint32(len(raw)))
		return append(out, dst[:n]...)
	default:
		t.Fatalf("unknown compressor %q", id)
	}
	return buf.Bytes()
}

// writeZarr stores vol as a Zarr v2 array in dir. Chunks listed in skip
// are left out.
func writeZarr(t *testing.T, dir string, vol *array.Buffer, chunks []int, compressor, sep string, bigEndian bool, fill string, skip map[string]bool) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	order := "<"
	if bigEndian {
		order = ">"
	}
	comp := "null"
	if compressor != "" {
		comp = fmt.Sprintf(`{"id": %q}`, compressor)
	}
	sepField := ""
	if sep != "" {
		sepField = fmt.Sprintf(`, "dimension_separator": %q`, sep)
	} else {
		sep = "."
	}
	meta := fmt.Sprintf(`{"zarr_format": 2, "shape": [%d, %d, %d], "chunks": [%d, %d, %d], "dtype": "%su2",
		"compressor": %s, "fill_value": %s, "order": "C", "filters": null%s}`,
		vol.Shape[0], vol.Shape[1], vol.Shape[2], chunks[0], chunks[1], chunks[2], order, comp, fill, sepField)
	if err := os.WriteFile(filepath.Join(dir, ".zarray"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}

	for cz := 0; cz*chunks[0] < vol.Shape[0]; cz++ {
		for cy := 0; cy*chunks[1] < vol.Shape[1]; cy++ {
			for cx := 0; cx*chunks[2] < vol.Shape[2]; cx++ {
				key := fmt.Sprintf("%d%s%d%s%d", cz, sep, cy, sep, cx)
				if skip[key] {
					continue
				}
				// Edge chunks are stored at full size.
				raw := make([]byte, array.NumElements(chunks)*2)
				lo := []int{cz * chunks[0], cy * chunks[1], cx * chunks[2]}
				ext := make([]int, 3)
				for i := range ext {
					ext[i] = min(chunks[i], vol.Shape[i]-lo[i])
				}
				array.CopyBox(raw, chunks, []int{0, 0, 0}, vol.Data, vol.Shape, lo, ext, 2)
				if bigEndian {
					array.SwapBytes(raw, 2)
				}
				path := filepath.Join(dir, filepath.FromSlash(key))
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, compress(t, compressor, raw), 0o644); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
}

func TestZarrSource(t *testing.T) {
	vol := volume(5, 7, 40)
	chunks := []int{2, 3, 20}

	tests := []struct {
		name       string
		compressor string
		sep        string
		bigEndian  bool
	}{
		{"raw", "", "", false},
		{"zlib", "zlib", "", false},
		{"gzip", "gzip", "", false},
		{"zstd", "zstd", "/", false},
		{"lz4", "lz4", "", false},
		{"big endian", "zlib", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "vol.zarr")
			writeZarr(t, dir, vol, chunks, tt.compressor, tt.sep, tt.bigEndian, "0", nil)

			src, err := Open(dir, "")
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer src.Close()
			if !reflect.DeepEqual(src.Shape(), vol.Shape) || src.DType() != array.Uint16 {
				t.Errorf("shape/dtype = %v/%s", src.Shape(), src.DType())
			}
			if !reflect.DeepEqual(src.Chunks(), chunks) {
				t.Errorf("Chunks = %v", src.Chunks())
			}

			for _, u := range []struct{ start, count int }{{0, 5}, {1, 1}, {1, 3}, {4, 1}} {
				got, err := src.ReadUnit(u.start, u.count)
				if err != nil {
					t.Fatalf("ReadUnit(%d, %d): %v", u.start, u.count, err)
				}
				if !bytes.Equal(got.Data, unit(vol, u.start, u.count)) {
					t.Errorf("ReadUnit(%d, %d) differs", u.start, u.count)
				}
			}
		})
	}
}

func TestZarrMissingChunksUseFill(t *testing.T) {
	vol := volume(2, 3, 20)
	root := t.TempDir()
	dir := filepath.Join(root, "exchange", "data")
	writeZarr(t, dir, vol, []int{1, 3, 20}, "", "", false, "7", map[string]bool{"1.0.0": true})

	// The array is found below the container directory by name.
	src, err := Open(root, "/exchange/data")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	got, err := src.ReadUnit(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(unit(got, 0, 1), unit(vol, 0, 1)) {
		t.Error("stored chunk differs")
	}
	for i := 60; i < got.Len(); i++ {
		if got.At(i) != 7 {
			t.Fatalf("element %d = %v, want fill 7", i, got.At(i))
		}
	}
}

func TestZarrRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name string
		meta string
	}{
		{"fortran order", `{"zarr_format": 2, "shape": [2], "chunks": [2], "dtype": "<u2", "compressor": null, "fill_value": 0, "order": "F", "filters": null}`},
		{"blosc", `{"zarr_format": 2, "shape": [2], "chunks": [2], "dtype": "<u2", "compressor": {"id": "blosc"}, "fill_value": 0, "order": "C", "filters": null}`},
		{"filters", `{"zarr_format": 2, "shape": [2], "chunks": [2], "dtype": "<u2", "compressor": null, "fill_value": 0, "order": "C", "filters": [{"ID": "delta"}]}`},
		{"complex", `{"zarr_format": 2, "shape": [2], "chunks": [2], "dtype": "<c8", "compressor": null, "fill_value": 0, "order": "C", "filters": null}`},
		{"version 3", `{"zarr_format": 3, "shape": [2], "chunks": [2], "dtype": "<u2", "compressor": null, "fill_value": 0, "order": "C", "filters": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ".zarray"), []byte(tt.meta), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := OpenZarr(dir); !errors.Is(err, ErrUnsupported) {
				t.Errorf("OpenZarr = %v, want ErrUnsupported", err)
			}
		})
	}

	if _, err := Open(t.TempDir(), "data"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("plain directory = %v, want ErrUnsupported", err)
	}
}
