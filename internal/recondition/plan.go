package recondition

import (
	"fmt"

	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/filter"
	"github.com/robert-malhotra/tomochunk/internal/source"
)

// Plan is the destination layout of a run, fixed before the output file
// exists.
type Plan struct {
	SourceShape []int
	SourceDType array.DType

	Shape []int // destination
	DType array.DType
	Chunk []int // (step, Shape[1], Shape[2])

	// Units is the number of chunks written, each covering Step slices of
	// the leading axis. It is smaller than the chunk grid when a Limit is
	// set.
	Units int
	Step  int

	Pipeline *filter.Pipeline
}

// MakePlan checks that src can be written under cfg and computes the
// destination shape, element type, chunk shape and filter pipeline. It
// reads nothing but the source's shape and element type.
func MakePlan(src source.Array, cfg Config) (*Plan, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validatePolicy(); err != nil {
		return nil, err
	}
	shape := src.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: %s has rank %d, want 3 (slices, rows, columns)", ErrShapeMismatch, src.Name(), len(shape))
	}
	for _, d := range shape {
		if d < 1 {
			return nil, fmt.Errorf("%w: %s has shape %v", ErrShapeMismatch, src.Name(), shape)
		}
	}

	p := &Plan{
		SourceShape: shape,
		SourceDType: src.DType(),
		Shape:       cfg.Transform.Shape(shape),
		DType:       cfg.Transform.DType(src.DType()),
		Step:        cfg.Step,
	}
	if p.Shape[0] != shape[0] {
		return nil, fmt.Errorf("%w: transform %s changes the slice count", ErrShapeMismatch, cfg.Transform)
	}
	p.Chunk = []int{cfg.Step, p.Shape[1], p.Shape[2]}

	if cfg.Step > shape[0] {
		return nil, fmt.Errorf("%w: step %d exceeds the %d slices of %s", ErrInvalidStepSize, cfg.Step, shape[0], src.Name())
	}
	if m := cfg.Compression.StepMultiple(); cfg.Step%m != 0 {
		return nil, fmt.Errorf("%w: %s packs %d slices per codestream, step %d is not a multiple", ErrInvalidStepSize, cfg.Compression.Codec, m, cfg.Step)
	}
	if err := cfg.Compression.checkDType(p.DType); err != nil {
		return nil, err
	}

	p.Units = array.CeilDiv(shape[0], cfg.Step)
	if cfg.Limit > 0 && cfg.Limit < p.Units {
		p.Units = cfg.Limit
	}

	pipeline, err := cfg.Compression.Pipeline(p.DType, p.Chunk)
	if err != nil {
		return nil, err
	}
	p.Pipeline = pipeline
	return p, nil
}

// Slices returns the number of source slices the plan writes.
func (p *Plan) Slices() int {
	return min(p.Units*p.Step, p.SourceShape[0])
}

// ChunkBytes returns the size of one unfiltered chunk.
func (p *Plan) ChunkBytes() int {
	return array.NumElements(p.Chunk) * p.DType.Size()
}

func (p *Plan) dims() []uint64 { return toUint64(p.Shape) }

func (p *Plan) chunkDims() []uint64 { return toUint64(p.Chunk) }

func toUint64(v []int) []uint64 {
	out := make([]uint64, len(v))
	for i, x := range v {
		out[i] = uint64(x)
	}
	return out
}
