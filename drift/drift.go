// Package drift estimates the linear clock-frequency drift between
// transmitter and receiver (C5): it histograms detection arrival phase
// within each slot over successive sub-windows, locates each
// sub-window's phase peak by a circularly-shifted weighted centroid, and
// derives a drift rate from how that peak moves across sub-windows.
package drift

import (
	"math"

	"github.com/quantalign/photonalign/internal/workpool"
	"github.com/quantalign/photonalign/isolate"
	"github.com/quantalign/photonalign/qkd"
)

// Config controls the drift estimator (§6 configuration surface).
type Config struct {
	SlotWidth       qkd.PicoSeconds // required
	TxJitter        qkd.PicoSeconds // required; numBins = SlotWidth/TxJitter
	DriftSampleTime qkd.PicoSeconds // default 100ms == 1e11 ps
}

// DefaultDriftSampleTime is 100 milliseconds expressed in picoseconds.
const DefaultDriftSampleTime qkd.PicoSeconds = 100_000_000_000

// NumBins returns slotWidth/txJitter, truncated.
func (c Config) NumBins() int {
	if c.TxJitter <= 0 {
		return 0
	}
	return int(c.SlotWidth / c.TxJitter)
}

// BinWidth returns slotWidth/NumBins, truncated.
func (c Config) BinWidth() qkd.PicoSeconds {
	n := c.NumBins()
	if n <= 0 {
		return 0
	}
	return c.SlotWidth / qkd.PicoSeconds(n)
}

func (c Config) sampleTime() qkd.PicoSeconds {
	if c.DriftSampleTime > 0 {
		return c.DriftSampleTime
	}
	return DefaultDriftSampleTime
}

// Result is the outcome of a drift estimation pass.
type Result struct {
	// Peaks holds one fractional bin index per sub-window that contained
	// at least one detection, in sub-window (i.e. time) order.
	Peaks []float64
	Drift qkd.Drift
}

// Estimate computes the drift rate over list[r.Start:r.End]. pool may be
// nil, in which case sub-window peaks are computed sequentially; when
// non-nil, per-sub-window peak computation is dispatched onto it
// (§5: "results are collected in sub-window order").
func Estimate(list qkd.DetectionReportList, r qkd.Range, cfg Config, pool *workpool.Pool) Result {
	numBins := cfg.NumBins()
	if numBins <= 0 || r.Len() == 0 {
		return Result{}
	}

	windows := splitWindows(list, r, cfg.sampleTime())
	if len(windows) == 0 {
		return Result{}
	}

	peakOf := func(i int) (float64, bool) {
		w := windows[i]
		return FindPeak(list, w, cfg.SlotWidth, cfg.BinWidth(), numBins)
	}

	var (
		rawPeaks []float64
		ok       []bool
	)
	if pool != nil {
		rawPeaks = make([]float64, len(windows))
		ok = make([]bool, len(windows))
		_ = pool.Execute(len(windows), func(start, end int) error {
			for i := start; i < end; i++ {
				p, good := peakOf(i)
				rawPeaks[i], ok[i] = p, good
			}
			return nil
		})
	} else {
		rawPeaks = make([]float64, len(windows))
		ok = make([]bool, len(windows))
		for i := range windows {
			rawPeaks[i], ok[i] = peakOf(i)
		}
	}

	peaks := make([]float64, 0, len(windows))
	for i, good := range ok {
		if good {
			peaks = append(peaks, rawPeaks[i])
		}
	}

	return Result{
		Peaks: peaks,
		Drift: rate(peaks, cfg.BinWidth(), cfg.sampleTime()),
	}
}

// splitWindows partitions list[r.Start:r.End] into consecutive
// driftSampleTime-wide sub-ranges, using isolate.FindThreshold to locate
// each boundary (detection times are monotonic, so each boundary search
// has exactly one transition).
func splitWindows(list qkd.DetectionReportList, r qkd.Range, sampleTime qkd.PicoSeconds) []qkd.Range {
	if r.Len() == 0 || sampleTime <= 0 {
		return nil
	}

	origin := list[r.Start].Time
	var windows []qkd.Range

	pos := r.Start
	for k := int64(1); pos < r.End; k++ {
		boundary := origin + k*sampleTime
		next := isolate.FindThreshold(pos, r.End, func(i int) bool {
			return list[i].Time >= boundary
		})
		if next > pos {
			windows = append(windows, qkd.Range{Start: pos, End: next})
		}
		pos = next
	}
	return windows
}

// FindPeak computes the fractional bin index of the phase peak within
// one sub-window, per §4.4 steps 1-4. ok is false for an empty window.
func FindPeak(list qkd.DetectionReportList, w qkd.Range, slotWidth qkd.PicoSeconds, binWidth qkd.PicoSeconds, numBins int) (float64, bool) {
	if w.Len() == 0 || binWidth <= 0 {
		return 0, false
	}

	counts := make([]int, numBins)
	for i := w.Start; i < w.End; i++ {
		local := list[i].Time % slotWidth
		bin := int(qkd.DivNearest(local, int64(binWidth)))
		bin = imod(bin, numBins)
		counts[bin]++
	}

	peakOffset := 0
	best := counts[0]
	for i := 1; i < numBins; i++ {
		if counts[i] > best {
			best = counts[i]
			peakOffset = i
		}
	}

	binsCentre := numBins / 2
	shift := binsCentre - peakOffset

	var weightedSum, totalWeights float64
	for i := 0; i < numBins; i++ {
		shiftedBin := float64(imod(numBins+i+shift, numBins) + 1)
		weightedSum += shiftedBin * float64(counts[i])
		totalWeights += float64(counts[i])
	}
	if totalWeights == 0 {
		return 0, false
	}

	average := weightedSum / totalWeights
	peak := floatMod(average+float64(numBins)-float64(shift)-1, float64(numBins))
	return peak, true
}

// rate derives the drift (s/s) from a sequence of sub-window peaks, per
// §4.4's "Drift rate" paragraph. maxPeak is the largest value actually
// observed among peaks (not numBins, which only bounds peaks from
// above and would make the wrap-around exclusion below too loose).
func rate(peaks []float64, binWidth qkd.PicoSeconds, sampleTime qkd.PicoSeconds) qkd.Drift {
	if len(peaks) < 2 {
		return 0
	}

	maxPeak := peaks[0]
	for _, p := range peaks[1:] {
		if p > maxPeak {
			maxPeak = p
		}
	}

	var slope float64
	var n int
	for i := 0; i+1 < len(peaks); i++ {
		d := peaks[i+1] - peaks[i]
		if math.Abs(d) < maxPeak/2 {
			slope += d
			n++
		}
	}
	if n == 0 {
		return 0
	}

	binTimeSeconds := float64(binWidth) * 1e-12
	sampleTimeSeconds := float64(sampleTime) * 1e-12
	if sampleTimeSeconds == 0 {
		return 0
	}
	return slope * binTimeSeconds / (float64(n) * sampleTimeSeconds)
}

func imod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

func floatMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}
