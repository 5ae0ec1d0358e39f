package main

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/robert-malhotra/tomochunk/hdf5"
	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/recondition"
)

// writeTomo creates a (slices, rows, cols) uint16 dataset at
// /exchange/data and returns the file path.
func writeTomo(t *testing.T, shape ...int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tomo.h5")
	f, err := hdf5.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	g, err := f.Root().RequireGroup("exchange")
	if err != nil {
		t.Fatal(err)
	}
	b := array.New(array.Uint16, shape...)
	for i := 0; i < b.Len(); i++ {
		b.Set(i, float64(i%97*13))
	}
	dims := make([]uint64, len(shape))
	for i, d := range shape {
		dims[i] = uint64(d)
	}
	w, err := g.CreateChunkedDataset("data", dims, array.Uint16)
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

func execute(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestUsage(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.h5")
	for _, args := range [][]string{
		nil,
		{"only-input.h5"},
		{"-codec", "zstd", "in.h5"},
		{"in.h5", out, "extra"},
		{"-no-such-flag", "in.h5", out},
	} {
		code, _, stderr := execute(args...)
		if code != 2 {
			t.Errorf("%q: exit %d, want 2", args, code)
		}
		if stderr == "" {
			t.Errorf("%q: nothing written to stderr", args)
		}
	}
	if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("usage errors created %s", out)
	}

	code, _, stderr := execute()
	if !strings.Contains(stderr, "Usage: recondition") {
		t.Errorf("usage text missing, exit %d:\n%s", code, stderr)
	}
	if code, _, _ := execute("-h"); code != 0 {
		t.Errorf("-h exit %d, want 0", code)
	}
}

func TestRecondition(t *testing.T) {
	in := writeTomo(t, 4, 10, 10)
	out := filepath.Join(t.TempDir(), "small.h5")

	code, stdout, stderr := execute("-shrink", "2", "-codec", "zstd", "-shuffle", "bit", in, out)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"cratio:", "bitshuffle|zstd", "units written: 4"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output lacks %q:\n%s", want, stdout)
		}
	}

	f, err := hdf5.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ds, err := f.OpenDataset("/exchange/data")
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.Shape(); !reflect.DeepEqual(got, []uint64{4, 5, 5}) {
		t.Errorf("Shape = %v", got)
	}
	if got := ds.Chunks(); !reflect.DeepEqual(got, []uint64{1, 5, 5}) {
		t.Errorf("Chunks = %v", got)
	}
}

func TestRuntimeFailures(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.h5")

	code, _, stderr := execute(filepath.Join(dir, "missing.h5"), out)
	if code != 1 || !strings.Contains(stderr, recondition.ErrIOFailure.Error()) {
		t.Errorf("missing input: exit %d, %q", code, stderr)
	}

	flat := filepath.Join(dir, "flat.h5")
	in := writeTomo(t, 10, 10)
	if err := os.Rename(in, flat); err != nil {
		t.Fatal(err)
	}
	code, _, stderr = execute(flat, out)
	if code != 1 || !strings.Contains(stderr, recondition.ErrShapeMismatch.Error()) {
		t.Errorf("rank 2 input: exit %d, %q", code, stderr)
	}

	code, _, _ = execute("-codec", "zfp", writeTomo(t, 2, 4, 4), out)
	if code != 1 {
		t.Errorf("unknown codec: exit %d, want 1", code)
	}
	if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("failed runs created %s", out)
	}
}

func TestConfigFileWithOverrides(t *testing.T) {
	in := writeTomo(t, 6, 16, 16)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.toml")
	body := `
[reconditioner]
input = "` + filepath.ToSlash(in) + `"
output = "out.h5"
step = 3

[compression]
codec = "j2k-stack"
rate = 50
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	// The file alone names both paths; -codec and -ssim override it.
	code, stdout, stderr := execute("-config", cfgPath, "-codec", "jpegls", "-rate", "2", "-ssim")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "filters: jpegls") || !strings.Contains(stdout, "SSIM:") {
		t.Errorf("output:\n%s", stdout)
	}

	f, err := hdf5.Open(filepath.Join(dir, "out.h5"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ds, err := f.OpenDataset("/exchange/data")
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.Chunks(); !reflect.DeepEqual(got, []uint64{3, 16, 16}) {
		t.Errorf("Chunks = %v, want step 3 from the file", got)
	}
}

func TestBaselineComparison(t *testing.T) {
	in := writeTomo(t, 2, 32, 32)
	out := filepath.Join(t.TempDir(), "lossy.h5")

	code, stdout, stderr := execute("-codec", "jpegls", "-rate", "3", "-direct", "-baseline", "deflate:1", in, out)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"Diff in cratio:", "Time for writing with deflate-1:", "Time for writing with jpegls-rate3:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output lacks %q:\n%s", want, stdout)
		}
	}
	if _, err := os.Stat(recondition.BaselinePath(out)); err != nil {
		t.Errorf("baseline output: %v", err)
	}

	if code, _, _ := execute("-baseline", "jpegls", in, filepath.Join(t.TempDir(), "x.h5")); code != 1 {
		t.Errorf("lossy baseline: exit %d, want 1", code)
	}
}

func TestParseHelpers(t *testing.T) {
	b, err := parseInts("1, 256,256")
	if err != nil || !reflect.DeepEqual(b, []int{1, 256, 256}) {
		t.Errorf("parseInts = %v, %v", b, err)
	}
	if _, err := parseInts("1,x"); !errors.Is(err, recondition.ErrInvalidPolicy) {
		t.Errorf("parseInts bad = %v", err)
	}
	p, err := parseBaseline("zstd:7")
	if err != nil || p.Codec != "zstd" || p.Level != 7 {
		t.Errorf("parseBaseline = %+v, %v", p, err)
	}
	if _, err := parseBaseline("zstd:high"); !errors.Is(err, recondition.ErrInvalidPolicy) {
		t.Errorf("parseBaseline bad = %v", err)
	}
}

func TestFlagsExtendFileTransform(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "run.toml")
	body := `
[reconditioner]
transform = "cast:uint16"
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		o    options
		set  map[string]bool
		want string
	}{
		{"file only", options{}, nil, "cast:uint16"},
		{"shrink extends", options{shrink: 2}, map[string]bool{"shrink": true}, "cast:uint16,downsample:2"},
		{"transform replaces", options{transform: "downsample:3"}, map[string]bool{"transform": true}, "downsample:3"},
		{"transform then cast", options{transform: "downsample:3", cast: "uint8"},
			map[string]bool{"transform": true, "cast": true}, "downsample:3,cast:uint8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.o
			o.config = cfgPath
			set := map[string]bool{"config": true}
			for k := range tt.set {
				set[k] = true
			}
			cfg, _, err := o.load(set, []string{"in.h5", "out.h5"})
			if err != nil {
				t.Fatal(err)
			}
			if got := cfg.Transform.String(); got != tt.want {
				t.Errorf("Transform = %q, want %q", got, tt.want)
			}
		})
	}
}
