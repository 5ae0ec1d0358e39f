// Package metrics measures a reconditioning run: compression ratio,
// timing and the structural similarity of lossy output.
package metrics

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/robert-malhotra/tomochunk/internal/array"
)

// SSIM constants as used by scikit-image.
const (
	Window = 7
	K1     = 0.01
	K2     = 0.03
)

var ErrSize = errors.New("image size mismatch")

// SSIM returns the mean structural similarity of two width×height images
// over every full Window×Window window, using sample statistics. Images
// smaller than the window use a window of their smaller side.
func SSIM(a, b []float64, width, height int, dataRange float64) (float64, error) {
	n := width * height
	if len(a) != n || len(b) != n || n == 0 {
		return 0, fmt.Errorf("%w: %d and %d values for %dx%d", ErrSize, len(a), len(b), width, height)
	}
	win := min(Window, width, height)
	if win < 2 {
		if floats.Equal(a, b) {
			return 1, nil
		}
		return 0, nil
	}

	c1 := (K1 * dataRange) * (K1 * dataRange)
	c2 := (K2 * dataRange) * (K2 * dataRange)
	wa := make([]float64, win*win)
	wb := make([]float64, win*win)
	scores := make([]float64, 0, (width-win+1)*(height-win+1))

	for y := 0; y+win <= height; y++ {
		for x := 0; x+win <= width; x++ {
			for j := 0; j < win; j++ {
				row := (y+j)*width + x
				copy(wa[j*win:(j+1)*win], a[row:row+win])
				copy(wb[j*win:(j+1)*win], b[row:row+win])
			}
			muA, varA := stat.MeanVariance(wa, nil)
			muB, varB := stat.MeanVariance(wb, nil)
			cov := stat.Covariance(wa, wb, nil)

			num := (2*muA*muB + c1) * (2*cov + c2)
			den := (muA*muA + muB*muB + c1) * (varA + varB + c2)
			scores = append(scores, num/den)
		}
	}
	return stat.Mean(scores, nil), nil
}

// DataRange is the spread of plane, or the range of t when the plane is
// flat.
func DataRange(plane []float64, t array.DType) float64 {
	if len(plane) > 0 {
		if r := floats.Max(plane) - floats.Min(plane); r > 0 {
			return r
		}
	}
	lo, hi := t.Range()
	return hi - lo
}

// CompareUnits scores every plane of got against want and returns the
// per-plane SSIM. Both buffers must be 3-D with the same shape.
func CompareUnits(want, got *array.Buffer) ([]float64, error) {
	if len(want.Shape) != 3 || len(got.Shape) != 3 {
		return nil, fmt.Errorf("%w: shapes %v and %v", ErrSize, want.Shape, got.Shape)
	}
	for i := range want.Shape {
		if want.Shape[i] != got.Shape[i] {
			return nil, fmt.Errorf("%w: shapes %v and %v", ErrSize, want.Shape, got.Shape)
		}
	}
	h, w := want.Shape[1], want.Shape[2]
	out := make([]float64, want.Shape[0])
	for i := range out {
		pw, err := want.Plane(i)
		if err != nil {
			return nil, err
		}
		pg, err := got.Plane(i)
		if err != nil {
			return nil, err
		}
		// The range is taken from the decoded plane.
		s, err := SSIM(pw, pg, w, h, DataRange(pg, got.DType))
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
