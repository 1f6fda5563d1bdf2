package gating

import (
	"testing"

	"github.com/quantalign/photonalign/qkd"
)

type fixedRand struct{ n int }

func (f fixedRand) IntN(n int) int { return f.n % n }

func TestGateSingleSlotSingleQubit(t *testing.T) {
	cfg := Config{SlotWidth: 100000, TxJitter: 25000, AcceptanceRatio: 0.2}
	list := qkd.DetectionReportList{{Time: 12500, Value: 1}}

	res := Gate(list, qkd.Range{Start: 0, End: 1}, 0, 0, qkd.ChannelOffsets{}, cfg, fixedRand{}, nil)

	if len(res.ValidSlots) != 1 || res.ValidSlots[0] != 0 {
		t.Fatalf("validSlots = %v, want [0]", res.ValidSlots)
	}
	if len(res.Qubits) != 1 || res.Qubits[0] != 1 {
		t.Fatalf("qubits = %v, want [1]", res.Qubits)
	}
}

func TestGateOutputLengthsMatch(t *testing.T) {
	cfg := Config{SlotWidth: 100000, TxJitter: 25000, AcceptanceRatio: 0.2}
	var list qkd.DetectionReportList
	for slot := int64(0); slot < 20; slot++ {
		list = append(list, qkd.DetectionReport{Time: slot*100000 + 12500, Value: qkd.Qubit(slot % 4)})
	}

	res := Gate(list, qkd.Full(list), 0, 0, qkd.ChannelOffsets{}, cfg, fixedRand{}, nil)

	if len(res.Qubits) != len(res.ValidSlots) {
		t.Fatalf("len(qubits)=%d != len(validSlots)=%d", len(res.Qubits), len(res.ValidSlots))
	}
	for i := 1; i < len(res.ValidSlots); i++ {
		if res.ValidSlots[i-1] >= res.ValidSlots[i] {
			t.Errorf("validSlots not strictly ascending at %d: %v", i, res.ValidSlots)
		}
	}
}

func TestGateEmptyRange(t *testing.T) {
	cfg := Config{SlotWidth: 100000, TxJitter: 25000, AcceptanceRatio: 0.2}
	res := Gate(nil, qkd.Range{}, 0, 0, qkd.ChannelOffsets{}, cfg, fixedRand{}, nil)
	if len(res.ValidSlots) != 0 || len(res.Qubits) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestGateMultipleQubitsPerSlotPicksOneDeterministically(t *testing.T) {
	cfg := Config{SlotWidth: 100000, TxJitter: 25000, AcceptanceRatio: 0.2}
	list := qkd.DetectionReportList{
		{Time: 12500, Value: 1},
		{Time: 12600, Value: 2},
	}
	res := Gate(list, qkd.Full(list), 0, 0, qkd.ChannelOffsets{}, cfg, fixedRand{n: 1}, nil)
	if len(res.ValidSlots) != 1 {
		t.Fatalf("validSlots = %v, want single slot", res.ValidSlots)
	}
	if len(res.Qubits) != 1 {
		t.Fatalf("qubits = %v, want single qubit", res.Qubits)
	}
	// fixedRand{n: 1} picks candidate index 1 of [1, 2].
	if res.Qubits[0] != 2 {
		t.Errorf("qubits[0] = %v, want 2 (candidate chosen by the injected Rand)", res.Qubits[0])
	}
}

func TestNumBinsZeroJitter(t *testing.T) {
	cfg := Config{SlotWidth: 100000, TxJitter: 0}
	if n := cfg.NumBins(); n != 0 {
		t.Errorf("NumBins = %d, want 0", n)
	}
}
