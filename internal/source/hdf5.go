package source

import (
	"github.com/robert-malhotra/tomochunk/hdf5"
	"github.com/robert-malhotra/tomochunk/internal/array"
)

// HDF5 reads one dataset of an HDF5 file.
type HDF5 struct {
	file  *hdf5.File
	ds    *hdf5.Dataset
	shape []int
	dtype array.DType
}

// OpenHDF5 opens dataset name in the file at path.
func OpenHDF5(path, name string) (*HDF5, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, err
	}
	ds, err := f.OpenDataset(name)
	if err != nil {
		f.Close()
		return nil, err
	}
	t, err := ds.ElementType()
	if err != nil {
		f.Close()
		return nil, err
	}
	dims := ds.Shape()
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}
	return &HDF5{file: f, ds: ds, shape: shape, dtype: t}, nil
}

func (h *HDF5) Name() string       { return h.ds.Path() }
func (h *HDF5) Shape() []int       { return append([]int(nil), h.shape...) }
func (h *HDF5) DType() array.DType { return h.dtype }

// Dataset exposes the underlying dataset for provenance queries.
func (h *HDF5) Dataset() *hdf5.Dataset { return h.ds }

func (h *HDF5) Chunks() []int {
	c := h.ds.Chunks()
	if c == nil {
		return nil
	}
	out := make([]int, len(c))
	for i, v := range c {
		out[i] = int(v)
	}
	return out
}

func (h *HDF5) ReadUnit(start, count int) (*array.Buffer, error) {
	if err := checkUnit(h.ds.Path(), h.shape, start, count); err != nil {
		return nil, err
	}
	s := make([]uint64, len(h.shape))
	c := make([]uint64, len(h.shape))
	s[0], c[0] = uint64(start), uint64(count)
	for i := 1; i < len(h.shape); i++ {
		c[i] = uint64(h.shape[i])
	}
	return h.ds.ReadBuffer(s, c)
}

func (h *HDF5) Close() error { return h.file.Close() }
