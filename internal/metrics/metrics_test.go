package metrics

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/robert-malhotra/tomochunk/internal/array"
)

func ramp(w, h int) []float64 {
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = float64(10*x + 7*y)
		}
	}
	return out
}

func TestSSIM(t *testing.T) {
	const w, h = 32, 24
	a := ramp(w, h)

	same, err := SSIM(a, a, w, h, 400)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(same-1) > 1e-12 {
		t.Errorf("SSIM of identical images = %v, want 1", same)
	}

	// Alternating ±3 noise barely dents a smooth ramp; a flipped image
	// does not resemble it at all.
	noisy := make([]float64, len(a))
	flipped := make([]float64, len(a))
	for i, v := range a {
		noisy[i] = v + float64(3*(1-2*(i%2)))
		flipped[i] = a[len(a)-1-i]
	}
	n, err := SSIM(a, noisy, w, h, 400)
	if err != nil {
		t.Fatal(err)
	}
	if n < 0.9 || n >= 1 {
		t.Errorf("SSIM with small noise = %v, want in [0.9, 1)", n)
	}
	f, err := SSIM(a, flipped, w, h, 400)
	if err != nil {
		t.Fatal(err)
	}
	if f >= n {
		t.Errorf("flipped SSIM %v not below noisy SSIM %v", f, n)
	}

	if _, err := SSIM(a, a[:10], w, h, 1); !errors.Is(err, ErrSize) {
		t.Errorf("mismatched lengths = %v, want ErrSize", err)
	}
}

func TestSSIMSmallImages(t *testing.T) {
	// Smaller than the window: the window shrinks to fit.
	a := ramp(4, 3)
	s, err := SSIM(a, a, 4, 3, 100)
	if err != nil || math.Abs(s-1) > 1e-12 {
		t.Errorf("SSIM 4x3 = %v, %v", s, err)
	}
	// A single row degenerates to exact comparison.
	if s, _ := SSIM([]float64{1, 2}, []float64{1, 3}, 2, 1, 10); s != 0 {
		t.Errorf("SSIM of differing rows = %v, want 0", s)
	}
}

func TestDataRange(t *testing.T) {
	if got := DataRange([]float64{3, 9, 5}, array.Uint16); got != 6 {
		t.Errorf("DataRange = %v, want 6", got)
	}
	if got := DataRange([]float64{4, 4}, array.Uint8); got != 255 {
		t.Errorf("flat DataRange = %v, want 255", got)
	}
}

func TestCompareUnits(t *testing.T) {
	want := array.New(array.Uint16, 2, 8, 8)
	for i := 0; i < want.Len(); i++ {
		want.Set(i, float64(i*13%997))
	}
	got := array.New(array.Uint16, 2, 8, 8)
	copy(got.Data, want.Data)
	got.Set(70, 0)

	scores, err := CompareUnits(want, got)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores", len(scores))
	}
	if math.Abs(scores[0]-1) > 1e-9 || scores[1] >= 1 {
		t.Errorf("scores = %v, want [1, <1]", scores)
	}

	if _, err := CompareUnits(want, array.New(array.Uint16, 2, 8, 4)); !errors.Is(err, ErrSize) {
		t.Errorf("shape mismatch = %v, want ErrSize", err)
	}
}

func TestStats(t *testing.T) {
	if Ratio(100, 0) != 0 || Ratio(100, 25) != 4 {
		t.Error("Ratio")
	}

	var sim Similarity
	if !math.IsNaN(sim.Mean()) || !math.IsNaN(sim.Min()) {
		t.Error("empty similarity should be NaN")
	}
	sim.Add(0.9, 0.95, 1)
	if sim.Count() != 3 || sim.Min() != 0.9 || math.Abs(sim.Mean()-0.95) > 1e-12 {
		t.Errorf("similarity count=%d min=%v mean=%v", sim.Count(), sim.Min(), sim.Mean())
	}

	s := Stats{Units: 4, Elements: 400, LogicalBytes: 4000, StoredBytes: 1000, Total: time.Second, Similarity: sim}
	text := strings.Join(s.Lines(), "\n")
	for _, want := range []string{"cratio: 4.000", "4.0 kB -> 1.0 kB", "SSIM: 0.950", "throughput"} {
		if !strings.Contains(text, want) {
			t.Errorf("report lacks %q:\n%s", want, text)
		}
	}
}
