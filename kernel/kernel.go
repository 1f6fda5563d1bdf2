// Package kernel builds symmetric Gaussian convolution windows and
// applies them to numeric sequences via valid (non-padded) convolution.
// It is the shared low-level primitive used by the envelope filter
// (package isolate) to smooth detection inter-arrival times.
//
// Coefficients are computed in float64 for picosecond-scale precision
// and bit-identical results across runs, and are peak-normalized (scaled
// so the centre tap equals the caller's peak value) rather than normalized
// to sum to one, since
// callers calibrate the kernel by its centre value rather than its
// integral.
package kernel

import (
	"errors"
	"fmt"
	"math"
)

// ErrConvolution is returned when the kernel is longer than the signal.
var ErrConvolution = errors.New("kernel: signal shorter than kernel")

// Gaussian evaluates G(sigma, x) = (1/sqrt(2*pi*sigma^2)) * exp(-x^2/(2*sigma^2)).
func Gaussian(sigma, x float64) float64 {
	variance := sigma * sigma
	norm := 1.0 / math.Sqrt(2*math.Pi*variance)
	return norm * math.Exp(-(x*x)/(2*variance))
}

// Window1D returns a 1-D symmetric Gaussian window of width w and
// standard deviation sigma, scaled so the true centre value equals peak.
//
// For odd w the middle element is the peak; for even w the peak sits at
// the half-integer offset between the two middle elements, so the two
// middle *samples* are equally close to it and both come out equal to
// peak (§8 Gaussian peak invariant) — the window is normalized against
// whichever sample(s) are nearest the centre, not against a fixed
// x=0 evaluation that may fall between samples.
func Window1D(sigma float64, w int, peak float64) []float64 {
	if w <= 0 {
		return nil
	}

	out := make([]float64, w)
	centre := float64(w-1) / 2.0

	maxRaw := math.Inf(-1)
	for i := 0; i < w; i++ {
		x := float64(i) - centre
		out[i] = Gaussian(sigma, x)
		if out[i] > maxRaw {
			maxRaw = out[i]
		}
	}

	scale := 1.0
	if maxRaw != 0 {
		scale = peak / maxRaw
	}
	for i := range out {
		out[i] *= scale
	}
	return out
}

// ConvolveValid applies kernel k to signal in, producing only the
// len(in)-len(k)+1 outputs where k fully overlaps in (§4.2).
func ConvolveValid(in, k []float64) ([]float64, error) {
	n, kk := len(in), len(k)
	if n < kk {
		return nil, fmt.Errorf("%w: len(in)=%d len(kernel)=%d", ErrConvolution, n, kk)
	}

	outLen := n - kk + 1
	out := make([]float64, outLen)
	for i := 0; i < outLen; i++ {
		var sum float64
		for j := 0; j < kk; j++ {
			sum += in[i+j] * k[j]
		}
		out[i] = sum
	}
	return out, nil
}
