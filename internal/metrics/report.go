package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Ratio is logical/stored, or 0 when nothing was stored.
func Ratio(logical, stored uint64) float64 {
	if stored == 0 {
		return 0
	}
	return float64(logical) / float64(stored)
}

// Similarity accumulates per-plane SSIM scores.
type Similarity struct {
	scores []float64
}

// Add records scores.
func (s *Similarity) Add(scores ...float64) { s.scores = append(s.scores, scores...) }

// Count returns the number of scores recorded.
func (s *Similarity) Count() int { return len(s.scores) }

// Mean returns the mean score, or NaN when none were recorded.
func (s *Similarity) Mean() float64 {
	if len(s.scores) == 0 {
		return math.NaN()
	}
	return stat.Mean(s.scores, nil)
}

// Min returns the lowest score, or NaN when none were recorded.
func (s *Similarity) Min() float64 {
	if len(s.scores) == 0 {
		return math.NaN()
	}
	return floats.Min(s.scores)
}

// Stats are the counters of one run.
type Stats struct {
	Units        int
	Elements     uint64
	LogicalBytes uint64
	StoredBytes  uint64

	Read      time.Duration
	Transform time.Duration
	Encode    time.Duration
	Write     time.Duration
	Total     time.Duration

	Similarity Similarity
}

// Ratio returns the compression ratio of the run.
func (s *Stats) Ratio() float64 { return Ratio(s.LogicalBytes, s.StoredBytes) }

// Lines formats the stats for a terminal report.
func (s *Stats) Lines() []string {
	lines := []string{
		fmt.Sprintf("units written: %s (%s elements)", humanize.Comma(int64(s.Units)), humanize.Comma(int64(s.Elements))),
		fmt.Sprintf("size: %s -> %s", humanize.Bytes(s.LogicalBytes), humanize.Bytes(s.StoredBytes)),
		fmt.Sprintf("cratio: %.3f", s.Ratio()),
		fmt.Sprintf("time: read %s, transform %s, encode %s, write %s, total %s",
			round(s.Read), round(s.Transform), round(s.Encode), round(s.Write), round(s.Total)),
	}
	if s.Total > 0 {
		rate := float64(s.LogicalBytes) / s.Total.Seconds()
		lines = append(lines, fmt.Sprintf("throughput: %s/s", humanize.Bytes(uint64(rate))))
	}
	if s.Similarity.Count() > 0 {
		lines = append(lines, fmt.Sprintf("SSIM: %.3f (min %.3f over %d planes)",
			s.Similarity.Mean(), s.Similarity.Min(), s.Similarity.Count()))
	}
	return lines
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
