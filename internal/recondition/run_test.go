package recondition

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/robert-malhotra/tomochunk/hdf5"
	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/source"
)

// volume returns a buffer of t whose values rise smoothly along every
// axis, the shape of a well exposed projection stack.
func volume(t array.DType, shape ...int) *array.Buffer {
	b := array.New(t, shape...)
	rows, cols := 1, 1
	if len(shape) >= 2 {
		rows = shape[len(shape)-2]
	}
	if len(shape) >= 1 {
		cols = shape[len(shape)-1]
	}
	for i := 0; i < b.Len(); i++ {
		x := i % cols
		y := i / cols % rows
		z := i / (cols * rows)
		b.Set(i, float64(40*x+30*y+7*z))
	}
	return b
}

// writeInput stores b as dataset name of a new HDF5 file.
func writeInput(t *testing.T, b *array.Buffer, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "input.h5")
	f, err := hdf5.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	dir, base := path.Split(name)
	g, err := f.Root().RequireGroup(dir)
	if err != nil {
		t.Fatal(err)
	}
	dims := make([]uint64, len(b.Shape))
	for i, d := range b.Shape {
		dims[i] = uint64(d)
	}
	w, err := g.CreateChunkedDataset(base, dims, b.DType)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteChunk(make([]uint64, len(dims)), b.Data); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

// readOutput returns the dataset name of the file at p.
func readOutput(t *testing.T, p, name string) *hdf5.Dataset {
	t.Helper()
	f, err := hdf5.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	ds, err := f.OpenDataset(name)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func outputPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "out.h5")
}

func TestRunDownsample(t *testing.T) {
	vol := volume(array.Uint16, 4, 10, 10)
	in := writeInput(t, vol, DefaultDataset)
	out := outputPath(t)

	rep, err := Run(context.Background(), Config{
		Input:       in,
		Output:      out,
		Transform:   Downsample{K: 2},
		Compression: CompressionPolicy{Codec: CodecZstd},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Units != 4 || rep.Elements != 100 || rep.LogicalBytes != 200 {
		t.Errorf("report: %d units, %d elements, %d bytes", rep.Units, rep.Elements, rep.LogicalBytes)
	}
	if rep.Dataset != DefaultDataset || len(rep.Lines()) < 5 {
		t.Errorf("report lines: %q", rep.Lines())
	}

	ds := readOutput(t, out, DefaultDataset)
	if got := ds.Shape(); !reflect.DeepEqual(got, []uint64{4, 5, 5}) {
		t.Errorf("Shape = %v, want [4 5 5]", got)
	}
	if got := ds.Chunks(); !reflect.DeepEqual(got, []uint64{1, 5, 5}) {
		t.Errorf("Chunks = %v, want [1 5 5]", got)
	}
	got, err := ds.Read()
	if err != nil {
		t.Fatal(err)
	}
	want, err := array.Subsample(vol, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want.Data) {
		t.Error("downsampled data differs")
	}

	stored, err := ds.StorageSize()
	if err != nil {
		t.Fatal(err)
	}
	if stored != rep.StoredBytes {
		t.Errorf("StorageSize = %d, report says %d", stored, rep.StoredBytes)
	}
	for name, want := range map[string]string{
		"source_file":    in,
		"source_dataset": DefaultDataset,
		"transform":      "downsample:2",
		"compression":    "zstd",
	} {
		a, err := ds.Attr(name)
		if err != nil {
			t.Errorf("Attr(%q): %v", name, err)
			continue
		}
		if got, err := a.String(); err != nil || got != want {
			t.Errorf("%s = %q, %v; want %q", name, got, err, want)
		}
	}
	if a, err := ds.Attr("units_written"); err != nil {
		t.Errorf("units_written: %v", err)
	} else if v, _ := a.Float64(); v != 4 {
		t.Errorf("units_written = %v", v)
	}
}

func TestRunLosslessRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		policy CompressionPolicy
		step   int
	}{
		{"none", CompressionPolicy{}, 1},
		{"deflate shuffle", CompressionPolicy{Codec: CodecDeflate, Shuffle: ByteShuffle}, 2},
		{"zstd bitshuffle fletcher32", CompressionPolicy{Codec: CodecZstd, Level: 5, Shuffle: BitShuffle, Fletcher32: true}, 1},
		{"lz4 blocks", CompressionPolicy{Codec: CodecLZ4, BlockShape: []int{1, 4, 16}}, 2},
		{"snappy", CompressionPolicy{Codec: CodecSnappy, Shuffle: ByteShuffle}, 1},
		{"j2k reversible", CompressionPolicy{Codec: CodecJ2K}, 1},
		{"j2k stack reversible", CompressionPolicy{Codec: CodecJ2KStack}, 3},
		{"jpegls lossless", CompressionPolicy{Codec: CodecJPEGLS}, 2},
	}
	vol := volume(array.Uint16, 5, 12, 16)
	src := source.NewMemory("/exchange/data", vol, nil)

	for _, tt := range tests {
		for _, direct := range []bool{false, true} {
			name := tt.name
			if direct {
				name += " direct"
			}
			t.Run(name, func(t *testing.T) {
				out := outputPath(t)
				rep, err := RunSource(context.Background(), src, Config{
					Input:            "memory",
					Output:           out,
					Step:             tt.step,
					Compression:      tt.policy,
					DirectChunkWrite: direct,
				})
				if err != nil {
					t.Fatal(err)
				}
				if want := (5 + tt.step - 1) / tt.step; rep.Units != want {
					t.Errorf("Units = %d, want %d", rep.Units, want)
				}
				ds := readOutput(t, out, DefaultDataset)
				got, err := ds.Read()
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(got, vol.Data) {
					t.Error("round trip is not exact")
				}
			})
		}
	}
}

func TestRunLossySimilarity(t *testing.T) {
	vol := volume(array.Uint16, 3, 64, 64)
	src := source.NewMemory("/exchange/data", vol, nil)

	for _, policy := range []CompressionPolicy{
		{Codec: CodecJPEGLS, Rate: 2},
		{Codec: CodecJ2K, Rate: 90},
		{Codec: CodecJ2KStack, Rate: 90},
	} {
		t.Run(policy.String(), func(t *testing.T) {
			out := outputPath(t)
			step := policy.StepMultiple()
			rep, err := RunSource(context.Background(), src, Config{
				Input:         "memory",
				Output:        out,
				Step:          step,
				Compression:   policy,
				Similarity:    true,
				MinSimilarity: 0.5,
			})
			if err != nil {
				t.Fatal(err)
			}
			if n := rep.Similarity.Count(); n != 3 {
				t.Fatalf("scored %d planes, want 3", n)
			}
			if m := rep.Similarity.Mean(); m <= 0.9 {
				t.Errorf("mean SSIM = %.3f, want > 0.9", m)
			}
			a, err := readOutput(t, out, DefaultDataset).Attr("ssim_mean")
			if err != nil {
				t.Fatal(err)
			}
			if v, err := a.Float64(); err != nil || v != rep.Similarity.Mean() {
				t.Errorf("ssim_mean = %v, %v; report %v", v, err, rep.Similarity.Mean())
			}
		})
	}
}

func TestRunCastBeforeLossyCodec(t *testing.T) {
	vol := volume(array.Float32, 2, 32, 32)
	src := source.NewMemory("/exchange/data", vol, nil)
	out := outputPath(t)

	rep, err := RunSource(context.Background(), src, Config{
		Input:       "memory",
		Output:      out,
		Transform:   Cast{To: array.Uint16},
		Compression: CompressionPolicy{Codec: CodecJPEGLS, Rate: 1},
		Similarity:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Similarity.Count() != 2 {
		t.Errorf("scored %d planes", rep.Similarity.Count())
	}
	ds := readOutput(t, out, DefaultDataset)
	if dt, err := ds.ElementType(); err != nil || dt != array.Uint16 {
		t.Errorf("ElementType = %s, %v", dt, err)
	}
}

func TestRunRankMismatchCreatesNoFile(t *testing.T) {
	in := writeInput(t, volume(array.Uint16, 10, 10), DefaultDataset)
	out := outputPath(t)

	_, err := Run(context.Background(), Config{Input: in, Output: out})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Run = %v, want ErrShapeMismatch", err)
	}
	if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("output exists after a shape mismatch: %v", err)
	}
}

func TestRunErrorsBeforeOutput(t *testing.T) {
	in := writeInput(t, volume(array.Uint16, 4, 8, 8), DefaultDataset)
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"no output", Config{Input: in}, ErrUsage},
		{"missing input", Config{Input: filepath.Join(t.TempDir(), "nope.h5")}, ErrIOFailure},
		{"missing dataset", Config{Input: in, SourceDataset: "/exchange/dark"}, ErrIOFailure},
		{"step", Config{Input: in, Step: 2, Compression: CompressionPolicy{Codec: CodecJ2KStack}}, ErrInvalidStepSize},
		{"policy", Config{Input: in, Compression: CompressionPolicy{Codec: "zfp"}}, ErrInvalidPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := outputPath(t)
			if tt.want != ErrUsage {
				tt.cfg.Output = out
			}
			if _, err := Run(context.Background(), tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("Run = %v, want %v", err, tt.want)
			}
			if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("output created: %v", err)
			}
		})
	}
}

func TestRunMissingInputKeepsCause(t *testing.T) {
	_, err := Run(context.Background(), Config{Input: filepath.Join(t.TempDir(), "nope.h5"), Output: outputPath(t)})
	if !errors.Is(err, ErrIOFailure) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Run = %v, want ErrIOFailure wrapping fs.ErrNotExist", err)
	}
	var pe *fs.PathError
	if !errors.As(err, &pe) {
		t.Errorf("cause %v is not reachable with errors.As", err)
	}
}

func TestRunLimitWritesPrefix(t *testing.T) {
	vol := volume(array.Uint16, 5, 6, 8)
	src := source.NewMemory("/exchange/data", vol, nil)
	out := outputPath(t)

	rep, err := RunSource(context.Background(), src, Config{
		Input:       "memory",
		Output:      out,
		DestDataset: "/exchange/sample",
		Limit:       2,
		Compression: CompressionPolicy{Codec: CodecDeflate},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Units != 2 {
		t.Errorf("Units = %d, want 2", rep.Units)
	}
	ds := readOutput(t, out, "/exchange/sample")
	if got := ds.Shape(); !reflect.DeepEqual(got, []uint64{5, 6, 8}) {
		t.Errorf("Shape = %v", got)
	}
	got, err := ds.Read()
	if err != nil {
		t.Fatal(err)
	}
	plane := 6 * 8 * 2
	if !bytes.Equal(got[:2*plane], vol.Data[:2*plane]) {
		t.Error("written prefix differs")
	}
	if !bytes.Equal(got[2*plane:], make([]byte, 3*plane)) {
		t.Error("unwritten slices do not read as fill")
	}
}

func TestRunStopsBetweenUnits(t *testing.T) {
	src := source.NewMemory("/exchange/data", volume(array.Uint16, 3, 4, 4), nil)
	out := outputPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunSource(ctx, src, Config{Input: "memory", Output: out})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunSource = %v, want context.Canceled", err)
	}
	// The output was created before the first unit and is left readable.
	f, err := hdf5.Open(out)
	if err != nil {
		t.Fatalf("partial output: %v", err)
	}
	f.Close()
}

func TestCompare(t *testing.T) {
	in := writeInput(t, volume(array.Uint16, 4, 32, 32), DefaultDataset)
	out := outputPath(t)

	c, err := Compare(context.Background(), Config{
		Input:            in,
		Output:           out,
		Compression:      CompressionPolicy{Codec: CodecJPEGLS, Rate: 4},
		DirectChunkWrite: true,
		Baseline:         &CompressionPolicy{Codec: CodecNone},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d := c.CratioDiff(); d <= 1 {
		t.Errorf("CratioDiff = %.3f, want > 1", d)
	}
	if c.Baseline.StoredBytes != c.Baseline.LogicalBytes {
		t.Errorf("uncompressed baseline stored %d of %d bytes", c.Baseline.StoredBytes, c.Baseline.LogicalBytes)
	}
	if _, err := os.Stat(BaselinePath(out)); err != nil {
		t.Errorf("baseline output: %v", err)
	}
	if lines := c.Lines(); len(lines) != 3 {
		t.Errorf("Lines = %q", lines)
	}

	if _, err := Compare(context.Background(), Config{Input: in, Output: outputPath(t)}); !errors.Is(err, ErrUsage) {
		t.Errorf("Compare without baseline = %v, want ErrUsage", err)
	}
}

func TestBaselinePath(t *testing.T) {
	for in, want := range map[string]string{
		"/d/tomo-zstd.h5": "/d/tomo-zstd-baseline.h5",
		"out":             "out-baseline",
	} {
		if got := BaselinePath(in); got != want {
			t.Errorf("BaselinePath(%q) = %q, want %q", in, got, want)
		}
	}
}
