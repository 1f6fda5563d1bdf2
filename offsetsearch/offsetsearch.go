// Package offsetsearch finds the integer slot offset that best aligns the
// receiver's gated (validSlots, qubits) pair with a trusted source of
// ground truth, either a dense per-slot QubitList or a sparse marker map
// (C7).
package offsetsearch

import (
	"errors"
	"math"
	"sort"

	"github.com/quantalign/photonalign/internal/workpool"
	"github.com/quantalign/photonalign/qkd"
)

// ErrLowConfidence is returned by callers that enforce an acceptance
// threshold on the returned confidence; this package itself never raises
// it, it only computes the confidence (§7 "reportable, non-fatal").
var ErrLowConfidence = errors.New("offsetsearch: confidence below acceptance threshold")

// Result is the outcome of a search over a range of candidate offsets.
type Result struct {
	Offset     int
	Confidence float64
}

// Range is an inclusive-exclusive [From, To) range of candidate
// integer offsets.
type Range struct {
	From, To int
}

func (r Range) count() int {
	if r.To <= r.From {
		return 0
	}
	return r.To - r.From
}

// SparseMarkers searches r for the offset maximizing confidence against a
// sparse slot->qubit marker map (§4.6 "Sparse-markers variant"). samples
// caps the number of bases-matched markers consulted per offset (0 =
// unlimited); validSlots must be ascending.
func SparseMarkers(markers qkd.Markers, validSlots []qkd.SlotID, irregular qkd.QubitList, r Range, samples int, pool *workpool.Pool) Result {
	return search(r, pool, func(offset int) float64 {
		return sparseConfidence(markers, validSlots, irregular, offset, samples)
	})
}

// Dense searches r for the offset maximizing confidence against a dense,
// slot-indexed ground-truth QubitList (§4.6 "Dense variant"). samples
// controls the stride over irregular (step = max(1, len(irregular)/samples));
// samples <= 0 uses a step of 1 (every position sampled).
func Dense(truth qkd.QubitList, validSlots []qkd.SlotID, irregular qkd.QubitList, r Range, samples int, pool *workpool.Pool) Result {
	return search(r, pool, func(offset int) float64 {
		return denseConfidence(truth, validSlots, irregular, offset, samples)
	})
}

// search runs fn over every candidate offset in r, in parallel when pool
// is non-nil, and reduces to the highest-confidence offset with ties
// broken by smallest offset (workpool.Best already implements this tie
// break and treats NaN as never winning).
func search(r Range, pool *workpool.Pool, fn func(offset int) float64) Result {
	n := r.count()
	if n <= 0 {
		return Result{Confidence: math.NaN()}
	}

	score := func(i int) (int, float64) {
		offset := r.From + i
		return offset, fn(offset)
	}

	var (
		best    workpool.Candidate[int]
		haveOne bool
	)
	if pool != nil {
		best, haveOne = workpool.Best(pool, n, score)
	} else {
		for i := 0; i < n; i++ {
			offset, conf := score(i)
			if conf == conf && (!haveOne || betterThan(conf, offset, best.Score, best.Value)) {
				best = workpool.Candidate[int]{Index: i, Value: offset, Score: conf}
				haveOne = true
			}
		}
	}
	if !haveOne {
		return Result{Confidence: math.NaN()}
	}
	return Result{Offset: best.Value, Confidence: best.Score}
}

func betterThan(score float64, offset int, curScore float64, curOffset int) bool {
	if score != score {
		return false
	}
	if score > curScore {
		return true
	}
	if score == curScore && offset < curOffset {
		return true
	}
	return false
}

func sparseConfidence(markers qkd.Markers, validSlots []qkd.SlotID, irregular qkd.QubitList, offset int, samples int) float64 {
	slots := make([]qkd.SlotID, 0, len(markers))
	for slot := range markers {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	var basesMatched, validCount int
	for _, slot := range slots {
		if samples > 0 && basesMatched >= samples {
			break
		}
		truthQubit := markers[slot]
		adjusted := int64(slot) - int64(offset)
		if adjusted < 0 {
			continue
		}
		idx, ok := findSlot(validSlots, qkd.SlotID(adjusted))
		if !ok {
			continue
		}
		received := irregular[idx]
		if received.SameBasis(truthQubit) {
			basesMatched++
			if received.Equal(truthQubit) {
				validCount++
			}
		}
	}
	return confidence(validCount, basesMatched)
}

func denseConfidence(truth qkd.QubitList, validSlots []qkd.SlotID, irregular qkd.QubitList, offset int, samples int) float64 {
	n := len(irregular)
	if n == 0 {
		return math.NaN()
	}
	step := 1
	if samples > 0 {
		step = n / samples
		if step < 1 {
			step = 1
		}
	}

	var basesMatched, validCount int
	for i := 0; i < n; i += step {
		adjusted := int64(offset) + int64(validSlots[i])
		if adjusted < 0 || adjusted >= int64(len(truth)) {
			continue
		}
		truthQubit := truth[adjusted]
		received := irregular[i]
		if received.SameBasis(truthQubit) {
			basesMatched++
			if received.Equal(truthQubit) {
				validCount++
			}
		}
	}
	return confidence(validCount, basesMatched)
}

func confidence(validCount, basesMatched int) float64 {
	if basesMatched == 0 {
		return math.NaN()
	}
	return float64(validCount) / float64(basesMatched)
}

// findSlot binary-searches the ascending validSlots for target.
func findSlot(validSlots []qkd.SlotID, target qkd.SlotID) (int, bool) {
	i := sort.Search(len(validSlots), func(i int) bool { return validSlots[i] >= target })
	if i < len(validSlots) && validSlots[i] == target {
		return i, true
	}
	return 0, false
}
