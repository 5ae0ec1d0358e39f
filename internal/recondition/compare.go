package recondition

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robert-malhotra/tomochunk/internal/metrics"
)

// Comparison pairs a run with a run of the baseline policy over the same
// source.
type Comparison struct {
	Run      *Report
	Baseline *Report
}

// CratioDiff is the baseline's stored size over the run's: how many times
// smaller the configured policy made the data.
func (c *Comparison) CratioDiff() float64 {
	return metrics.Ratio(c.Baseline.StoredBytes, c.Run.StoredBytes)
}

// Lines formats the comparison for a terminal.
func (c *Comparison) Lines() []string {
	lines := []string{fmt.Sprintf("Diff in cratio: %.3f", c.CratioDiff())}
	for _, r := range []*Report{c.Baseline, c.Run} {
		lines = append(lines, fmt.Sprintf("Time for writing with %s: %.3f s", r.Policy, writeTime(r).Seconds()))
	}
	return lines
}

func writeTime(r *Report) time.Duration { return r.Encode + r.Write }

// BaselinePath returns the output path of the baseline run for output.
func BaselinePath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "-baseline" + ext
}

// Compare runs cfg, then runs cfg.Baseline over the same source into
// BaselinePath(cfg.Output) through the ordinary dataset writer, without
// similarity scoring.
func Compare(ctx context.Context, cfg Config) (*Comparison, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Baseline == nil {
		return nil, usageError("no baseline policy to compare against")
	}

	run, err := Run(ctx, cfg)
	if err != nil {
		return nil, err
	}

	base := cfg
	base.Output = BaselinePath(cfg.Output)
	base.Compression = *cfg.Baseline
	base.Baseline = nil
	base.DirectChunkWrite = false
	base.Similarity = false
	baseline, err := Run(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", base.Compression, err)
	}
	return &Comparison{Run: run, Baseline: baseline}, nil
}
