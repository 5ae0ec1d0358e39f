// Package source opens the arrays a reconditioning run reads from: HDF5
// datasets, Zarr v2 arrays on local disk and in-memory buffers. Every
// source is read in units of whole leading-axis slices.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/tomochunk/internal/array"
)

var (
	ErrUnsupported = errors.New("unsupported source")
	ErrRange       = errors.New("unit outside source")
)

// Array is a read-only source of slices along the leading axis.
type Array interface {
	// Name identifies the array within its container.
	Name() string
	Shape() []int
	DType() array.DType
	// Chunks is the storage chunk shape, or nil when unchunked.
	Chunks() []int
	// ReadUnit reads leading indices [start, start+count) at full
	// trailing extent.
	ReadUnit(start, count int) (*array.Buffer, error)
	Close() error
}

// Open opens the array name inside path. A directory holding .zarray, or
// holding name/.zarray, is read as Zarr; anything else as HDF5.
func Open(path, name string) (Array, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return OpenHDF5(path, name)
	}
	for _, dir := range []string{path, filepath.Join(path, strings.TrimPrefix(name, "/"))} {
		if _, err := os.Stat(filepath.Join(dir, zarrMetaKey)); err == nil {
			return OpenZarr(dir)
		}
	}
	return nil, fmt.Errorf("%w: %s is a directory without %s", ErrUnsupported, path, zarrMetaKey)
}

// checkUnit validates a unit request against the leading extent.
func checkUnit(name string, shape []int, start, count int) error {
	if len(shape) == 0 {
		return fmt.Errorf("%s: %w: scalar array has no units", name, ErrRange)
	}
	if start < 0 || count < 1 || start+count > shape[0] {
		return fmt.Errorf("%s: %w: [%d, %d) of %d", name, ErrRange, start, start+count, shape[0])
	}
	return nil
}

func unitShape(shape []int, count int) []int {
	out := append([]int(nil), shape...)
	out[0] = count
	return out
}
