package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robert-malhotra/tomochunk/hdf5"
	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/filter"
)

func writeSample(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sample.h5")
	f, err := hdf5.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	g, err := f.Root().RequireGroup("/exchange")
	if err != nil {
		t.Fatal(err)
	}
	deflate, err := filter.NewDeflate(6)
	if err != nil {
		t.Fatal(err)
	}
	w, err := g.CreateChunkedDataset("data", []uint64{2, 8, 8}, array.Uint16,
		hdf5.WithChunks(1, 8, 8),
		hdf5.WithFilters(filter.NewPipeline(filter.NewShuffle(2), deflate)),
		hdf5.WithAttribute("compression", "deflate-shuf"))
	if err != nil {
		t.Fatal(err)
	}
	plane := make([]byte, 8*8*2)
	for i := 0; i < 2; i++ {
		if err := w.WriteChunk([]uint64{uint64(i), 0, 0}, plane); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDiagnose(t *testing.T) {
	p := writeSample(t)
	var out, errOut bytes.Buffer
	if code := run([]string{p}, &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	for _, want := range []string{
		`Group "/exchange": 1 members`,
		`Dataset "/exchange/data":`,
		"Shape: [2 8 8] uint16",
		"Chunks: [1 8 8]",
		"Filters: shuffle|deflate",
		"cratio",
		"@compression: deflate-shuf",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestDiagnoseAttribute(t *testing.T) {
	p := writeSample(t)
	var out, errOut bytes.Buffer
	if code := run([]string{p, "/exchange/data@compression"}, &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	if got := strings.TrimSpace(out.String()); got != "deflate-shuf" {
		t.Errorf("attribute = %q", got)
	}
	if code := run([]string{p, "/exchange/data@missing"}, &out, &errOut); code != 1 {
		t.Errorf("missing attribute: exit %d, want 1", code)
	}
}

func TestDiagnoseUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, &out, &errOut); code != 2 || !strings.Contains(errOut.String(), "Usage") {
		t.Errorf("exit %d, stderr %q", code, errOut.String())
	}
	if code := run([]string{filepath.Join(t.TempDir(), "none.h5")}, &out, &errOut); code != 1 {
		t.Errorf("missing file: exit %d, want 1", code)
	}
}
