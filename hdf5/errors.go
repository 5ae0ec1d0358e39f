// Package hdf5 reads and writes the subset of HDF5 used for chunked
// tomography stacks: nested groups, datasets with compact, contiguous or
// chunked storage, filter pipelines and small attributes.
package hdf5

import "errors"

var (
	ErrNotHDF5      = errors.New("not an HDF5 file")
	ErrNotFound     = errors.New("object not found")
	ErrNotDataset   = errors.New("object is not a dataset")
	ErrNotGroup     = errors.New("object is not a group")
	ErrUnsupported  = errors.New("unsupported feature")
	ErrInvalidPath  = errors.New("invalid path")
	ErrClosed       = errors.New("file is closed")
	ErrReadOnly     = errors.New("file is not writable")
	ErrExists       = errors.New("object already exists")
	ErrLinkDepth    = errors.New("maximum link depth exceeded")
	ErrChunkBounds  = errors.New("chunk offset outside dataset")
	ErrWriterClosed = errors.New("dataset writer is closed")
)

// MaxLinkDepth bounds the soft links followed while resolving one path.
const MaxLinkDepth = 100
