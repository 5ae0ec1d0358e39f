package hdf5

import "github.com/robert-malhotra/tomochunk/internal/filter"

// DatasetOption configures a dataset created with CreateChunkedDataset.
type DatasetOption func(*datasetConfig)

type datasetConfig struct {
	chunks   []uint64
	pipeline *filter.Pipeline
	attrs    []attrSpec
}

type attrSpec struct {
	name  string
	value interface{}
}

// WithChunks sets the chunk shape. The default is one chunk spanning the
// whole dataset.
func WithChunks(dims ...uint64) DatasetOption {
	return func(c *datasetConfig) {
		c.chunks = append([]uint64(nil), dims...)
	}
}

// WithFilters sets the filter pipeline every chunk passes through.
func WithFilters(p *filter.Pipeline) DatasetOption {
	return func(c *datasetConfig) {
		c.pipeline = p
	}
}

// WithAttribute attaches an attribute to the dataset header.
func WithAttribute(name string, value interface{}) DatasetOption {
	return func(c *datasetConfig) {
		c.attrs = append(c.attrs, attrSpec{name: name, value: value})
	}
}
