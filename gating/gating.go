// Package gating assigns individual detections to (bin, slot) cells of a
// per-slot-width histogram, selects an acceptance band of bins around the
// histogram's peak, and emits one qubit per accepted slot (C6).
//
// Ported from the source's Gating::CountDetections / Gating::GateResults,
// generalized from C++ iterators to qkd.Range and from a raw RNG pointer
// to an injected one-method interface (§9 "shared pointers for RNG"
// design note, realized here as plain dependency injection).
package gating

import (
	"math"
	"sort"
	"sync"

	"github.com/quantalign/photonalign/internal/workpool"
	"github.com/quantalign/photonalign/qkd"
)

// Config controls gating (§6 configuration surface).
type Config struct {
	SlotWidth       qkd.PicoSeconds
	TxJitter        qkd.PicoSeconds
	AcceptanceRatio float64 // default 0.2
}

// DefaultAcceptanceRatio is the documented default.
const DefaultAcceptanceRatio = 0.2

// NumBins returns slotWidth/txJitter, truncated.
func (c Config) NumBins() int {
	if c.TxJitter <= 0 {
		return 0
	}
	return int(c.SlotWidth / c.TxJitter)
}

// Rand is the single-method RNG dependency used to break ties among
// multiple qubits gated into the same slot. It is owned by a single
// frame's gating pass and need not be thread-safe (§5).
type Rand interface {
	// IntN returns a pseudo-random number in [0, n).
	IntN(n int) int
}

// Result is the outcome of one gating pass.
type Result struct {
	ValidSlots []qkd.SlotID // strictly ascending
	Qubits     qkd.QubitList
	PeakWidth  float64 // accepted-bin-count / numBins
}

// Gate assigns detections in list[r.Start:r.End] to (bin, slot) cells,
// selects the acceptance band, and emits one qubit per accepted slot.
// pool may be nil, in which case the left/right band expansion runs on
// two plain goroutines instead of the shared pool.
func Gate(list qkd.DetectionReportList, r qkd.Range, frameStart qkd.PicoSeconds, drift qkd.Drift, offsets qkd.ChannelOffsets, cfg Config, rnd Rand, pool *workpool.Pool) Result {
	numBins := cfg.NumBins()
	if numBins <= 0 {
		return Result{}
	}

	counts := make([]int, numBins)
	slotResults := make([]map[qkd.SlotID][]qkd.Qubit, numBins)
	for i := range slotResults {
		slotResults[i] = make(map[qkd.SlotID][]qkd.Qubit)
	}

	for i := r.Start; i < r.End; i++ {
		d := list[i]
		offset := int64(math.Round(drift * float64(d.Time)))

		adjustedTime := d.Time - frameStart
		if offset < 0 || adjustedTime > offset {
			adjustedTime += offsets[d.Value%qkd.NumQubitValues]
			adjustedTime -= offset
		}

		slot := qkd.DivNearest(adjustedTime, cfg.SlotWidth)
		fromSlotStart := emod(adjustedTime, cfg.SlotWidth)
		bin := imod(int(fromSlotStart/cfg.TxJitter), numBins)

		slotID := qkd.SlotID(slot)
		slotResults[bin][slotID] = append(slotResults[bin][slotID], d.Value)
		counts[bin]++
	}

	return gateCounts(counts, slotResults, numBins, cfg.AcceptanceRatio, rnd, pool)
}

func gateCounts(counts []int, slotResults []map[qkd.SlotID][]qkd.Qubit, numBins int, acceptanceRatio float64, rnd Rand, pool *workpool.Pool) Result {
	peakIndex := argmax(counts)
	minValue := counts[0]
	for _, c := range counts {
		if c < minValue {
			minValue = c
		}
	}
	cutoff := int(float64(minValue) + float64(counts[peakIndex]-minValue)*acceptanceRatio)

	walk := func(i int) int {
		if i == 0 {
			return expandLower(counts, numBins, peakIndex, cutoff)
		}
		return expandUpper(counts, numBins, peakIndex, cutoff)
	}

	var lower, upper int
	if pool != nil {
		bounds, err := workpool.Map(pool, 2, func(i int) (int, error) { return walk(i), nil })
		if err == nil {
			lower, upper = bounds[0], bounds[1]
		} else {
			lower, upper = walk(0), walk(1)
		}
	} else {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			lower = walk(0)
		}()
		go func() {
			defer wg.Done()
			upper = walk(1)
		}()
		wg.Wait()
	}

	qubitsBySlot := make(map[qkd.SlotID][]qkd.Qubit)
	var binCount uint64
	for binID := lower; binID != upper; binID = (binID + 1) % numBins {
		var slotOffset qkd.SlotID
		if upper < lower && binID < upper {
			slotOffset = 1
		}
		binCount++
		for slot, qubits := range slotResults[binID] {
			mySlot := slot + slotOffset
			qubitsBySlot[mySlot] = append(qubitsBySlot[mySlot], qubits...)
		}
	}

	slots := make([]qkd.SlotID, 0, len(qubitsBySlot))
	for slot := range qubitsBySlot {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	res := Result{
		ValidSlots: make([]qkd.SlotID, 0, len(slots)),
		Qubits:     make(qkd.QubitList, 0, len(slots)),
		PeakWidth:  float64(binCount) / float64(numBins),
	}
	for _, slot := range slots {
		candidates := qubitsBySlot[slot]
		if len(candidates) == 0 {
			continue
		}
		var chosen qkd.Qubit
		if len(candidates) == 1 {
			chosen = candidates[0]
		} else {
			chosen = candidates[rnd.IntN(len(candidates))]
		}
		res.ValidSlots = append(res.ValidSlots, slot)
		res.Qubits = append(res.Qubits, chosen)
	}
	return res
}

// expandLower walks the acceptance band left from peakIndex, following
// the source's lookahead-then-commit structure exactly.
func expandLower(counts []int, numBins, peakIndex, cutoff int) int {
	lower := peakIndex
	nextLower := lower
	stop := imod(peakIndex+1, numBins)
	for counts[nextLower] > cutoff && nextLower != stop {
		lower = nextLower
		nextLower = imod(nextLower-1, numBins)
	}
	return lower
}

// expandUpper walks the acceptance band right from peakIndex.
func expandUpper(counts []int, numBins, peakIndex, cutoff int) int {
	upper := peakIndex
	stop := imod(peakIndex-1, numBins)
	for counts[upper] > cutoff && upper != stop {
		upper = (upper + 1) % numBins
	}
	return upper
}

func argmax(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

func imod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// emod is the non-negative (Euclidean) remainder of a/d, d>0. The source
// uses C++'s truncating % here, which can return a negative remainder
// when adjustedTime is negative (detections landing just before
// frameStart); this would be an out-of-range bin index in Go, so the
// remainder is normalized into [0, d) instead — identical to the
// source's result whenever adjustedTime is non-negative, the common case.
func emod(a, d qkd.PicoSeconds) qkd.PicoSeconds {
	r := a % d
	if r < 0 {
		r += d
	}
	return r
}
