package align

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantalign/photonalign/drift"
	"github.com/quantalign/photonalign/gating"
	"github.com/quantalign/photonalign/isolate"
	"github.com/quantalign/photonalign/offsetsearch"
	"github.com/quantalign/photonalign/qkd"
)

func TestTrimSlotsDropsOutOfRange(t *testing.T) {
	slots := []qkd.SlotID{0, 1, 2, 3}
	qubits := qkd.QubitList{0, 1, 2, 3}

	outSlots, outQubits := TrimSlots(slots, qubits, -2)
	require.Len(t, outQubits, len(outSlots), "slots and qubits must stay parallel")
	// slot 0,1 shift to -2,-1 (dropped); slot 2,3 shift to 0,1 (kept)
	require.Equal(t, []qkd.SlotID{2, 3}, outSlots)
	require.Equal(t, qkd.QubitList{0, 1}, outQubits)
}

func TestTrimSlotsNoShift(t *testing.T) {
	slots := []qkd.SlotID{0, 1, 2}
	qubits := qkd.QubitList{5, 6, 7}
	outSlots, outQubits := TrimSlots(slots, qubits, 0)
	if len(outSlots) != 3 || len(outQubits) != 3 {
		t.Fatalf("expected all 3 entries retained, got %d/%d", len(outSlots), len(outQubits))
	}
}

type fixedSource struct {
	frames []qkd.DetectionReportList
	i      int
}

func (s *fixedSource) Next(ctx context.Context) (qkd.DetectionReportList, qkd.FrameID, bool, error) {
	if s.i >= len(s.frames) {
		return nil, 0, false, nil
	}
	list := s.frames[s.i]
	id := qkd.FrameID(s.i)
	s.i++
	return list, id, true, nil
}

type exactMarkers struct {
	markers qkd.Markers
}

func (m exactMarkers) FetchMarkers(ctx context.Context, req MarkerRequest) (MarkerResponse, error) {
	return MarkerResponse{Markers: m.markers}, nil
}
func (m exactMarkers) DiscardSlots(ctx context.Context, req DiscardRequest) error { return nil }

type failingMarkers struct{ err error }

func (m failingMarkers) FetchMarkers(ctx context.Context, req MarkerRequest) (MarkerResponse, error) {
	return MarkerResponse{}, m.err
}
func (m failingMarkers) DiscardSlots(ctx context.Context, req DiscardRequest) error { return nil }

type collectingSink struct {
	results []FrameResult
}

func (s *collectingSink) Observe(r FrameResult) { s.results = append(s.results, r) }

func buildBurstFrame() qkd.DetectionReportList {
	var list qkd.DetectionReportList
	t := int64(0)
	for i := 0; i < 40; i++ {
		t += 100000
		list = append(list, qkd.DetectionReport{Time: t})
	}
	for slot := int64(0); slot < 200; slot++ {
		list = append(list, qkd.DetectionReport{Time: t + slot*100000 + 12500, Value: qkd.Qubit(slot % 4)})
	}
	t += 200 * 100000
	for i := 0; i < 40; i++ {
		t += 100000
		list = append(list, qkd.DetectionReport{Time: t})
	}
	return list
}

func defaultConfig() Config {
	return Config{
		Isolate:              isolate.DefaultConfig(),
		Drift:                drift.Config{SlotWidth: 100000, TxJitter: 25000, DriftSampleTime: drift.DefaultDriftSampleTime},
		Gating:               gating.Config{SlotWidth: 100000, TxJitter: 25000, AcceptanceRatio: gating.DefaultAcceptanceRatio},
		OffsetRange:          offsetsearch.Range{From: -5, To: 5},
		AcceptanceConfidence: 0.8,
	}
}

func TestRunReportsMarkerFetchFailure(t *testing.T) {
	src := &fixedSource{frames: []qkd.DetectionReportList{buildBurstFrame()}}
	sink := &collectingSink{}
	o := New(defaultConfig(), src, failingMarkers{err: errors.New("rpc unavailable")}, WithSink(sink))

	require.NoError(t, o.Run(context.Background()))
	require.Len(t, sink.results, 1)

	got := sink.results[0]
	require.Equal(t, MarkerFetchFailed, got.Outcome)
	require.ErrorIs(t, got.Err, ErrMarkerFetch)
}

func TestRunEmptySourceProducesNoResults(t *testing.T) {
	src := &fixedSource{}
	sink := &collectingSink{}
	o := New(defaultConfig(), src, exactMarkers{}, WithSink(sink))

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(sink.results) != 0 {
		t.Errorf("expected no results, got %d", len(sink.results))
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fixedSource{frames: []qkd.DetectionReportList{buildBurstFrame()}}
	sink := &collectingSink{}
	o := New(defaultConfig(), src, exactMarkers{}, WithSink(sink))

	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(sink.results) != 0 {
		t.Errorf("expected no results after immediate cancellation, got %d", len(sink.results))
	}
}

func TestOutcomeStringCoversAllValues(t *testing.T) {
	for o := Success; o <= DecodeFailed; o++ {
		if o.String() == "unknown" {
			t.Errorf("Outcome %d has no String() mapping", o)
		}
	}
}
