package offsetsearch

import (
	"math"
	"testing"

	"github.com/quantalign/photonalign/internal/workpool"
	"github.com/quantalign/photonalign/qkd"
)

func TestDenseExactMatch(t *testing.T) {
	truth := qkd.QubitList{0, 1, 2, 3, 0, 1, 2, 3}
	validSlots := []qkd.SlotID{2, 3, 4, 5}
	irregular := qkd.QubitList{2, 3, 0, 1}

	res := Dense(truth, validSlots, irregular, Range{From: -5, To: 5}, 0, nil)
	if res.Offset != 0 {
		t.Errorf("offset = %d, want 0", res.Offset)
	}
	if math.Abs(res.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %v, want 1.0", res.Confidence)
	}
}

func TestDenseExactMatchWithPool(t *testing.T) {
	truth := qkd.QubitList{0, 1, 2, 3, 0, 1, 2, 3}
	validSlots := []qkd.SlotID{2, 3, 4, 5}
	irregular := qkd.QubitList{2, 3, 0, 1}

	pool := workpool.New()
	defer pool.Close()

	res := Dense(truth, validSlots, irregular, Range{From: -5, To: 5}, 0, pool)
	if res.Offset != 0 {
		t.Errorf("offset = %d, want 0", res.Offset)
	}
	if math.Abs(res.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %v, want 1.0", res.Confidence)
	}
}

func TestSparseMarkersExactMatch(t *testing.T) {
	markers := qkd.Markers{2: 2, 3: 3, 4: 0, 5: 1}
	validSlots := []qkd.SlotID{2, 3, 4, 5}
	irregular := qkd.QubitList{2, 3, 0, 1}

	res := SparseMarkers(markers, validSlots, irregular, Range{From: -5, To: 5}, 0, nil)
	if res.Offset != 0 {
		t.Errorf("offset = %d, want 0", res.Offset)
	}
	if math.Abs(res.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %v, want 1.0", res.Confidence)
	}
}

func TestConfidenceNaNWhenNoBasesMatched(t *testing.T) {
	if !math.IsNaN(confidence(0, 0)) {
		t.Errorf("confidence(0,0) should be NaN")
	}
}

func TestSearchEmptyRangeReturnsNaN(t *testing.T) {
	res := search(Range{From: 3, To: 3}, nil, func(int) float64 { return 1.0 })
	if !math.IsNaN(res.Confidence) {
		t.Errorf("confidence = %v, want NaN for empty range", res.Confidence)
	}
}

func TestSearchTieBreaksToSmallestOffset(t *testing.T) {
	res := search(Range{From: -2, To: 3}, nil, func(offset int) float64 { return 0.5 })
	if res.Offset != -2 {
		t.Errorf("offset = %d, want -2 (smallest offset among ties)", res.Offset)
	}
}
