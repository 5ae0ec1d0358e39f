package recondition

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/robert-malhotra/tomochunk/hdf5"
	"github.com/robert-malhotra/tomochunk/internal/array"
	"github.com/robert-malhotra/tomochunk/internal/logging"
	"github.com/robert-malhotra/tomochunk/internal/metrics"
	"github.com/robert-malhotra/tomochunk/internal/source"
)

// Report describes a finished run.
type Report struct {
	metrics.Stats

	Input   string
	Output  string
	Dataset string
	Policy  CompressionPolicy
	Plan    *Plan
}

// Lines formats the report for a terminal.
func (r *Report) Lines() []string {
	p := r.Plan
	lines := []string{
		fmt.Sprintf("%s -> %s:%s", r.Input, r.Output, r.Dataset),
		fmt.Sprintf("shape: %v %s -> %v %s, chunks: %v", p.SourceShape, p.SourceDType, p.Shape, p.DType, p.Chunk),
		fmt.Sprintf("filters: %s (%s)", p.Pipeline, r.Policy),
	}
	return append(lines, r.Stats.Lines()...)
}

// Run reconditions cfg.Input into cfg.Output. The source is opened and
// the run planned before the output is created, so a source that cannot
// be written leaves no file behind. Once the output exists an error
// closes it and is returned; the chunks written so far stay on disk.
//
// ctx is checked between units only; a unit is never abandoned half
// written.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src, err := source.Open(cfg.Input, cfg.SourceDataset)
	if err != nil {
		return nil, ioFailure("open "+cfg.Input, err)
	}
	defer src.Close()
	return run(ctx, src, cfg)
}

// RunSource is Run over an already open source. cfg.Input only labels the
// output.
func RunSource(ctx context.Context, src source.Array, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return run(ctx, src, cfg)
}

func run(ctx context.Context, src source.Array, cfg Config) (*Report, error) {
	plan, err := MakePlan(src, cfg)
	if err != nil {
		return nil, err
	}
	tlog := logging.NewTimeLog()
	logging.Infof("Reconditioning %s:%s %v %s into %s:%s %v %s, chunks %v, filters %s",
		cfg.Input, src.Name(), plan.SourceShape, plan.SourceDType,
		cfg.Output, cfg.DestDataset, plan.Shape, plan.DType, plan.Chunk, plan.Pipeline)

	f, err := hdf5.Create(cfg.Output)
	if err != nil {
		return nil, ioFailure("create "+cfg.Output, err)
	}
	r := &runner{
		cfg:  cfg,
		src:  src,
		plan: plan,
		rep: &Report{
			Input:   cfg.Input,
			Output:  cfg.Output,
			Dataset: cfg.DestDataset,
			Policy:  cfg.Compression,
			Plan:    plan,
		},
	}
	err = r.write(ctx, f)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = ioFailure("close "+cfg.Output, cerr)
	}
	if err != nil {
		return nil, err
	}
	r.rep.Total = tlog.Elapsed()
	tlog.Infof("Wrote %d units, %s -> %s", r.rep.Units,
		humanize.Bytes(r.rep.LogicalBytes), humanize.Bytes(r.rep.StoredBytes))
	return r.rep, nil
}

type runner struct {
	cfg  Config
	src  source.Array
	plan *Plan
	w    *hdf5.ChunkedWriter
	rep  *Report
}

func (r *runner) write(ctx context.Context, f *hdf5.File) error {
	dir, name := path.Split(r.cfg.DestDataset)
	parent, err := f.Root().RequireGroup(dir)
	if err != nil {
		return ioFailure("create group "+dir, err)
	}
	r.w, err = parent.CreateChunkedDataset(name, r.plan.dims(), r.plan.DType,
		hdf5.WithChunks(r.plan.chunkDims()...),
		hdf5.WithFilters(r.plan.Pipeline),
		hdf5.WithAttribute("source_file", r.cfg.Input),
		hdf5.WithAttribute("source_dataset", r.src.Name()),
		hdf5.WithAttribute("source_shape", r.plan.SourceShape),
		hdf5.WithAttribute("source_dtype", r.plan.SourceDType.String()),
		hdf5.WithAttribute("transform", r.cfg.Transform.String()),
		hdf5.WithAttribute("compression", r.cfg.Compression.String()),
	)
	if err != nil {
		return ioFailure("create dataset "+r.cfg.DestDataset, err)
	}

	for u := 0; u < r.plan.Units; u++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stopped after %d of %d units: %w", u, r.plan.Units, err)
		}
		if err := r.unit(u); err != nil {
			return err
		}
	}
	r.rep.StoredBytes = r.w.StoredBytes()

	if err := r.w.SetAttribute("units_written", r.rep.Units); err != nil {
		return ioFailure("set attribute", err)
	}
	if sim := &r.rep.Similarity; sim.Count() > 0 {
		mean := sim.Mean()
		if err := r.w.SetAttribute("ssim_mean", mean); err != nil {
			return ioFailure("set attribute", err)
		}
		if mean < r.cfg.MinSimilarity {
			logging.Warningf("Mean SSIM %.3f of %s is below %.3f (min %.3f over %d planes)",
				mean, r.cfg.Output, r.cfg.MinSimilarity, sim.Min(), sim.Count())
		}
	}
	if err := r.w.Close(); err != nil {
		return ioFailure("close dataset "+r.cfg.DestDataset, err)
	}
	return nil
}

// unit writes chunk u, covering source slices [u*step, u*step+step). The
// last chunk is zero padded past the end of the source.
func (r *runner) unit(u int) error {
	start := u * r.plan.Step
	count := min(r.plan.Step, r.plan.SourceShape[0]-start)
	span := fmt.Sprintf("slices [%d, %d)", start, start+count)

	t := time.Now()
	b, err := r.src.ReadUnit(start, count)
	if err != nil {
		return ioFailure("read "+span, err)
	}
	r.rep.Read += time.Since(t)

	t = time.Now()
	if b, err = r.cfg.Transform.Apply(b); err != nil {
		return fmt.Errorf("transform %s: %w", span, err)
	}
	chunk := b.Pad(r.plan.Step)
	r.rep.Transform += time.Since(t)

	// A payload encoded here goes to the file as is, never through the
	// writer's pipeline a second time.
	var (
		payload []byte
		mask    uint32
		encoded = r.cfg.DirectChunkWrite || r.cfg.Similarity
	)
	if encoded {
		t = time.Now()
		if payload, mask, err = r.plan.Pipeline.Encode(chunk.Data); err != nil {
			return fmt.Errorf("encode %s: %w", span, err)
		}
		r.rep.Encode += time.Since(t)
	}

	t = time.Now()
	offset := []uint64{uint64(start), 0, 0}
	if encoded {
		err = r.w.WriteDirectChunk(offset, payload, mask)
	} else {
		err = r.w.WriteChunk(offset, chunk.Data)
	}
	if err != nil {
		return ioFailure("write "+span, err)
	}
	r.rep.Write += time.Since(t)

	if r.cfg.Similarity {
		r.score(b, payload, mask, span)
	}
	r.rep.Units++
	r.rep.Elements += uint64(b.Len())
	r.rep.LogicalBytes += uint64(len(b.Data))
	logging.Debugf("Unit %d/%d: %s, %s stored so far", u+1, r.plan.Units, span, humanize.Bytes(r.w.StoredBytes()))
	return nil
}

// score decodes payload and adds the SSIM of each real plane against the
// unit before encoding. Failures are logged; they never fail the run.
func (r *runner) score(want *array.Buffer, payload []byte, mask uint32, span string) {
	decoded, err := r.plan.Pipeline.Decode(payload, mask)
	if err != nil {
		logging.Warningf("SSIM of %s skipped: %v", span, err)
		return
	}
	if len(decoded) < len(want.Data) {
		logging.Warningf("SSIM of %s skipped: decoded %d bytes, want %d", span, len(decoded), len(want.Data))
		return
	}
	got, err := array.Wrap(want.DType, want.Shape, decoded[:len(want.Data)])
	if err != nil {
		logging.Warningf("SSIM of %s skipped: %v", span, err)
		return
	}
	scores, err := metrics.CompareUnits(want, got)
	if err != nil {
		logging.Warningf("SSIM of %s skipped: %v", span, err)
		return
	}
	r.rep.Similarity.Add(scores...)
}
