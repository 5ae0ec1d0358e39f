package recondition

import (
	"github.com/robert-malhotra/tomochunk/hdf5"
	"github.com/robert-malhotra/tomochunk/internal/config"
)

// DefaultDataset is the tomography data path of the Data Exchange layout.
const DefaultDataset = "/exchange/data"

// Config describes one reconditioning run.
type Config struct {
	Input  string
	Output string

	// SourceDataset is the array read from Input. DestDataset defaults to
	// the same path.
	SourceDataset string
	DestDataset   string

	Transform   Transform
	Step        int // slices per chunk
	Compression CompressionPolicy

	// Limit, when positive, writes only the first Limit units.
	Limit int

	// DirectChunkWrite encodes each chunk once here and hands the writer
	// the finished payload.
	DirectChunkWrite bool

	// Similarity decodes every written unit again and scores each plane
	// against the unit before encoding. A mean below MinSimilarity is
	// logged as a warning.
	Similarity    bool
	MinSimilarity float64

	// Baseline is the lossless policy Compare measures against.
	Baseline *CompressionPolicy
}

// withDefaults fills the fields a caller may leave at their zero value.
func (c Config) withDefaults() Config {
	if c.SourceDataset == "" {
		c.SourceDataset = DefaultDataset
	}
	c.SourceDataset = hdf5.CleanPath(c.SourceDataset)
	if c.DestDataset == "" {
		c.DestDataset = c.SourceDataset
	}
	c.DestDataset = hdf5.CleanPath(c.DestDataset)
	if c.Transform == nil {
		c.Transform = Identity{}
	}
	if c.Step == 0 {
		c.Step = 1
	}
	if c.Compression.Codec == "" {
		c.Compression.Codec = CodecNone
	}
	return c
}

// Validate checks the configuration without touching any file: first the
// paths (ErrUsage), then every policy field (ErrInvalidPolicy).
func (c Config) Validate() error {
	if c.Input == "" || c.Output == "" {
		return usageError("both an input and an output path are required")
	}
	if c.DestDataset != "" && len(hdf5.SplitPath(c.DestDataset)) == 0 {
		return usageError("destination dataset needs a name")
	}
	return c.validatePolicy()
}

func (c Config) validatePolicy() error {
	if c.Step < 1 {
		return invalidPolicy("step %d", c.Step)
	}
	if c.Limit < 0 {
		return invalidPolicy("limit %d", c.Limit)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return invalidPolicy("minimum SSIM %g is outside [0, 1]", c.MinSimilarity)
	}
	if err := checkTransform(c.Transform); err != nil {
		return err
	}
	if err := c.Compression.Validate(); err != nil {
		return err
	}
	if c.Baseline != nil {
		if err := c.Baseline.Validate(); err != nil {
			return err
		}
		if c.Baseline.ImageCodec() {
			return invalidPolicy("baseline codec %s is not a general purpose compressor", c.Baseline.Codec)
		}
	}
	return nil
}

// FromFile converts a decoded configuration file.
func FromFile(f *config.File) (Config, error) {
	r := f.Reconditioner
	cfg := Config{
		Input:            r.Input,
		Output:           r.Output,
		SourceDataset:    r.Dataset,
		DestDataset:      r.OutDataset,
		Step:             r.Step,
		Limit:            r.Limit,
		DirectChunkWrite: r.Direct,
		Similarity:       r.SSIM,
		MinSimilarity:    r.MinSSIM,
	}
	var err error
	if cfg.Transform, err = ParseTransform(r.Transform); err != nil {
		return Config{}, err
	}
	if cfg.Compression, err = PolicyFromFile(f.Compression); err != nil {
		return Config{}, err
	}
	if f.Baseline != nil {
		p, err := PolicyFromFile(*f.Baseline)
		if err != nil {
			return Config{}, err
		}
		cfg.Baseline = &p
	}
	return cfg, nil
}

// PolicyFromFile converts a [compression] or [baseline] section.
func PolicyFromFile(c config.Compression) (CompressionPolicy, error) {
	shuffle, err := ParseShuffle(c.Shuffle)
	if err != nil {
		return CompressionPolicy{}, err
	}
	return CompressionPolicy{
		Codec:      c.Codec,
		Level:      c.Level,
		Shuffle:    shuffle,
		BlockShape: append([]int(nil), c.Blocks...),
		Rate:       c.Rate,
		Fletcher32: c.Fletcher32,
	}, nil
}
