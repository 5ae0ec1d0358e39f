package hdf5

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/robert-malhotra/tomochunk/internal/array"
)

func TestAttributeValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attrs.h5")
	f, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	dw, err := f.Root().CreateChunkedDataset("d", []uint64{2}, array.Float32)
	if err != nil {
		t.Fatal(err)
	}

	values := map[string]interface{}{
		"name":    "sample",
		"count":   42,
		"offset":  int64(-7),
		"size":    uint64(1 << 40),
		"pixel":   0.65,
		"factors": []int{2, 2, 2},
		"range":   []float64{-1.5, 2.25},
		"axes":    []string{"z", "y", "x"},
	}
	for name, v := range values {
		if err := dw.SetAttribute(name, v); err != nil {
			t.Fatalf("SetAttribute(%s): %v", name, err)
		}
	}
	if err := dw.SetAttribute("bad", struct{}{}); err == nil {
		t.Error("unsupported attribute value accepted")
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ds, err := f.OpenDataset("/d")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want interface{}
	}{
		{"name", "sample"},
		{"count", int64(42)},
		{"offset", int64(-7)},
		{"size", uint64(1 << 40)},
		{"pixel", 0.65},
		{"factors", []int64{2, 2, 2}},
		{"range", []float64{-1.5, 2.25}},
		{"axes", []string{"z", "y", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ds.Attr(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			got, err := a.Value()
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Value = %#v, want %#v", got, tt.want)
			}
		})
	}

	count, _ := ds.Attr("count")
	if v, err := count.Float64(); err != nil || v != 42 {
		t.Errorf("Float64 = %v, %v", v, err)
	}
	if ds.HasAttr("missing") {
		t.Error("HasAttr(missing) = true")
	}
}
