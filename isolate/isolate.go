// Package isolate implements the envelope filter (C4): it locates the
// [start, end) range of detections bounding the actual transmission
// window inside a noisier detection stream, by looking for the region
// where inter-arrival times drop below a Gaussian-smoothed noise
// envelope.
package isolate

import (
	"errors"
	"fmt"

	"github.com/quantalign/photonalign/kernel"
	"github.com/quantalign/photonalign/qkd"
)

// ErrFilter is returned when there are too few detections to compute a
// stride difference, or when the underlying convolution fails.
var ErrFilter = errors.New("isolate: filter error")

// Config controls the envelope filter (§6 configuration surface).
type Config struct {
	Stride    int     // default 25
	Sigma     float64 // default 5.0
	Width     int     // default 5
	Threshold float64 // default 0.2
}

// DefaultConfig returns the documented default parameters.
func DefaultConfig() Config {
	return Config{Stride: 25, Sigma: 5.0, Width: 5, Threshold: 0.2}
}

// Isolate finds the sub-range of list bounding the transmission, per
// §4.3. It never copies detection data; the returned Range indexes list.
func Isolate(list qkd.DetectionReportList, cfg Config) (qkd.Range, error) {
	n := len(list)
	stride := cfg.Stride
	if stride <= 0 {
		stride = 1
	}
	if n <= stride {
		return qkd.Range{}, fmt.Errorf("%w: %d detections, stride %d", ErrFilter, n, stride)
	}

	numDiffs := (n - 1) / stride
	if numDiffs <= 0 {
		return qkd.Range{}, fmt.Errorf("%w: insufficient detections for stride %d", ErrFilter, stride)
	}
	diffs := make([]float64, numDiffs)
	for k := 0; k < numDiffs; k++ {
		diffs[k] = float64(list[(k+1)*stride].Time - list[k*stride].Time)
	}

	win := kernel.Window1D(cfg.Sigma, cfg.Width, 1.0)
	convolved, err := kernel.ConvolveValid(diffs, win)
	if err != nil {
		return qkd.Range{}, fmt.Errorf("%w: %v", ErrFilter, err)
	}
	if len(convolved) == 0 {
		return qkd.Range{}, fmt.Errorf("%w: convolution produced no output", ErrFilter)
	}

	minV, maxV := convolved[0], convolved[0]
	for _, v := range convolved {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	cutoff := (cfg.Threshold + minV) * maxV

	first := -1
	for i, v := range convolved {
		if v > cutoff {
			first = i
			break
		}
	}
	if first == -1 {
		return qkd.Range{}, fmt.Errorf("%w: no samples above cutoff", ErrFilter)
	}

	lastIdx := -1
	for i := len(convolved) - 1; i >= 0; i-- {
		if convolved[i] > cutoff {
			lastIdx = i
			break
		}
	}
	last := lastIdx + 1

	start := first * stride
	end := last * stride
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}

	return qkd.Range{Start: start, End: end}, nil
}

// FindThreshold binary-searches [start, end) for the first index i where
// pred(i) holds, assuming pred is false on a prefix and true on the
// remaining suffix (at most one transition in the range — behaviour is
// undefined otherwise, per §4.3). Returns end if pred never holds.
//
// This is the generic binary-search building block referenced by §4.3
// ("the binary search helper FindThreshold is also used elsewhere") —
// package drift uses it to locate sub-window time boundaries.
func FindThreshold(start, end int, pred func(i int) bool) int {
	lo, hi := start, end
	for lo < hi {
		mid := lo + (hi-lo)/2
		if pred(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
