package qkd

import "testing"

func TestQubitBasisAndBit(t *testing.T) {
	tests := []struct {
		q         Qubit
		wantBasis Qubit
		wantBit   Qubit
	}{
		{Zero, 0, 0},
		{One, 0, 1},
		{Pos, 2, 0},
		{Neg, 2, 1},
	}
	for _, tt := range tests {
		if got := tt.q.Basis(); got != tt.wantBasis {
			t.Errorf("Qubit(%d).Basis() = %d, want %d", tt.q, got, tt.wantBasis)
		}
		if got := tt.q.Bit(); got != tt.wantBit {
			t.Errorf("Qubit(%d).Bit() = %d, want %d", tt.q, got, tt.wantBit)
		}
	}
}

func TestQubitSameBasis(t *testing.T) {
	if !Zero.SameBasis(One) {
		t.Error("Zero and One share the rectilinear basis")
	}
	if Zero.SameBasis(Pos) {
		t.Error("Zero and Pos do not share a basis")
	}
	if !Pos.SameBasis(Neg) {
		t.Error("Pos and Neg share the diagonal basis")
	}
}

func TestRangeSliceAndLen(t *testing.T) {
	list := DetectionReportList{{Time: 1}, {Time: 2}, {Time: 3}, {Time: 4}}

	r := Range{Start: 1, End: 3}
	if got := r.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	sub := r.Slice(list)
	if len(sub) != 2 || sub[0].Time != 2 || sub[1].Time != 3 {
		t.Errorf("Slice() = %v, want [{2} {3}]", sub)
	}

	if got := (Range{Start: 2, End: 2}).Len(); got != 0 {
		t.Errorf("empty Len() = %d, want 0", got)
	}

	if got := Full(list); got != (Range{Start: 0, End: 4}) {
		t.Errorf("Full() = %v, want {0 4}", got)
	}
}

func TestDivNearest(t *testing.T) {
	tests := []struct {
		a, d, want int64
	}{
		{10, 3, 3},
		{11, 3, 4},
		{-10, 3, -3},
		{-11, 3, -4},
		{0, 5, 0},
		{6, 3, 2},
	}
	for _, tt := range tests {
		if got := DivNearest(tt.a, tt.d); got != tt.want {
			t.Errorf("DivNearest(%d, %d) = %d, want %d", tt.a, tt.d, got, tt.want)
		}
	}
}

func TestDivNearestRoundTrip(t *testing.T) {
	for d := int64(1); d <= 9; d++ {
		for a := int64(-50); a <= 50; a++ {
			if got := DivNearest(a*d, d); got != a {
				t.Fatalf("DivNearest(%d*%d, %d) = %d, want %d", a, d, d, got, a)
			}
		}
	}
}
