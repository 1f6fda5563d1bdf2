// Package align implements the alignment orchestrator (C8): the
// per-frame state machine that drives isolate, drift, gating and
// offsetsearch to turn a raw detection stream into an emitted,
// marker-corrected (validSlots, qubits) pair.
package align

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/quantalign/photonalign/drift"
	"github.com/quantalign/photonalign/gating"
	"github.com/quantalign/photonalign/internal/workpool"
	"github.com/quantalign/photonalign/internal/xlog"
	"github.com/quantalign/photonalign/isolate"
	"github.com/quantalign/photonalign/offsetsearch"
	"github.com/quantalign/photonalign/qkd"
)

// Sentinel errors, classified by callers with errors.Is per §7's
// fatal/reportable table.
var (
	ErrMarkerFetch = errors.New("align: marker fetch failed")
	ErrCancelled   = errors.New("align: cancelled")
)

// Outcome classifies how a frame's processing ended, mirroring §7's
// error-kind table.
type Outcome int

const (
	Success Outcome = iota
	LowConfidence
	FilterFailed
	MarkerFetchFailed
	DecodeFailed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case LowConfidence:
		return "low_confidence"
	case FilterFailed:
		return "filter_failed"
	case MarkerFetchFailed:
		return "marker_fetch_failed"
	case DecodeFailed:
		return "decode_failed"
	default:
		return "unknown"
	}
}

// FrameResult is reported to stats.Sink at each frame boundary.
type FrameResult struct {
	Frame      qkd.FrameID
	Outcome    Outcome
	ValidSlots []qkd.SlotID
	Qubits     qkd.QubitList
	Confidence float64
	Drift      qkd.Drift
	Err        error
}

// DetectionSource supplies successive frames of detections. Next returns
// ok=false once the source is exhausted (clean end of stream, not an
// error).
type DetectionSource interface {
	Next(ctx context.Context) (list qkd.DetectionReportList, frame qkd.FrameID, ok bool, err error)
}

// MarkerRequest/MarkerResponse/DiscardRequest are the marker-exchange
// contract (§6) the orchestrator depends on. The RPC transport and wire
// encoding are out of scope; these are plain in-process structs.
type MarkerRequest struct {
	FrameID         qkd.FrameID
	NumberOfMarkers uint32
	SendAllBasis    bool
}

type MarkerResponse struct {
	Markers qkd.Markers
}

type DiscardRequest struct {
	FrameID qkd.FrameID
	SlotIDs []qkd.SlotID
}

// MarkerFetcher is the narrow trait-object dependency for the
// marker-exchange round trip with the transmitter.
type MarkerFetcher interface {
	FetchMarkers(ctx context.Context, req MarkerRequest) (MarkerResponse, error)
	DiscardSlots(ctx context.Context, req DiscardRequest) error
}

// Sink receives a FrameResult at each frame boundary. Implementations
// must not block the orchestrator's hot path (§9 "event-based statistics
// publishing") — see stats.AsyncSink.
type Sink interface {
	Observe(FrameResult)
}

// Rand is the injectable uniform-integer source threaded down into
// gating (§5 "Numeric determinism... must make that random source
// injectable so tests can seed it").
type Rand = gating.Rand

// goRand adapts math/rand/v2 to the Rand interface.
type goRand struct{ r *rand.Rand }

func (g goRand) IntN(n int) int { return g.r.IntN(n) }

// NewRand returns a Rand seeded deterministically from seed, for
// reproducible test runs.
func NewRand(seed uint64) Rand {
	return goRand{r: rand.New(rand.NewPCG(seed, seed))}
}

// Config is the orchestrator's run-time configuration surface (§6).
type Config struct {
	Isolate              isolate.Config
	Drift                drift.Config
	Gating               gating.Config
	OffsetRange          offsetsearch.Range
	OffsetSamples        int
	AcceptanceConfidence float64 // default 0.8
	MarkersRequested     uint32
}

func (c Config) acceptanceConfidence() float64 {
	if c.AcceptanceConfidence > 0 {
		return c.AcceptanceConfidence
	}
	return 0.8
}

// Orchestrator drives the per-frame state machine described in §4.7.
type Orchestrator struct {
	cfg     Config
	source  DetectionSource
	markers MarkerFetcher
	sink    Sink
	rnd     Rand
	pool    *workpool.Pool
	log     xlog.Logger
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

func WithSink(sink Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

func WithRand(r Rand) Option {
	return func(o *Orchestrator) { o.rnd = r }
}

func WithPool(p *workpool.Pool) Option {
	return func(o *Orchestrator) { o.pool = p }
}

func WithLogger(l xlog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New constructs an Orchestrator over the given source and marker
// collaborator.
func New(cfg Config, source DetectionSource, markers MarkerFetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		source:  source,
		markers: markers,
		sink:    noopSink{},
		rnd:     NewRand(1),
		log:     xlog.Noop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

type noopSink struct{}

func (noopSink) Observe(FrameResult) {}

// Run drives frames from source until it is exhausted, ctx is cancelled,
// or source.Next returns a fatal decode error. It returns nil on clean
// exhaustion or cancellation, matching §4.7's "Fatal: decode error".
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		list, frame, ok, err := o.source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			o.report(FrameResult{Frame: frame, Outcome: DecodeFailed, Err: err})
			return fmt.Errorf("align: decode frame %d: %w", frame, err)
		}
		if !ok {
			return nil
		}

		o.processFrame(ctx, frame, list)
	}
}

// processFrame runs one frame through Isolate -> EstimateDrift -> Gate ->
// RequestMarkers -> OffsetSearch -> {Fail | TrimSlots -> Emit}.
func (o *Orchestrator) processFrame(ctx context.Context, frame qkd.FrameID, list qkd.DetectionReportList) {
	r, err := isolate.Isolate(list, o.cfg.Isolate)
	if err != nil {
		o.log.Warnf("frame %d: isolate failed: %v", frame, err)
		o.report(FrameResult{Frame: frame, Outcome: FilterFailed, Err: err})
		return
	}

	driftResult := drift.Estimate(list, r, o.cfg.Drift, o.pool)
	if driftResult.Drift == 0 && r.Len() > 0 {
		o.log.Warnf("frame %d: zero drift estimated over %d detections", frame, r.Len())
	}

	frameStart := list[r.Start].Time
	gated := gating.Gate(list, r, frameStart, driftResult.Drift, qkd.ChannelOffsets{}, o.cfg.Gating, o.rnd, o.pool)

	resp, err := o.markers.FetchMarkers(ctx, MarkerRequest{
		FrameID:         frame,
		NumberOfMarkers: o.cfg.MarkersRequested,
	})
	if err != nil {
		o.log.Warnf("frame %d: marker fetch failed: %v", frame, err)
		o.report(FrameResult{Frame: frame, Outcome: MarkerFetchFailed, Drift: driftResult.Drift, Err: fmt.Errorf("%w: %v", ErrMarkerFetch, err)})
		return
	}

	search := offsetsearch.SparseMarkers(resp.Markers, gated.ValidSlots, gated.Qubits, o.cfg.OffsetRange, o.cfg.OffsetSamples, o.pool)

	if !(search.Confidence >= o.cfg.acceptanceConfidence()) { // false for NaN too
		o.log.Warnf("frame %d: low confidence %v (offset %d)", frame, search.Confidence, search.Offset)
		o.report(FrameResult{
			Frame: frame, Outcome: LowConfidence, Drift: driftResult.Drift,
			Confidence: search.Confidence, Err: offsetsearch.ErrLowConfidence,
		})
		return
	}

	validSlots, qubits := TrimSlots(gated.ValidSlots, gated.Qubits, search.Offset)

	if err := o.markers.DiscardSlots(ctx, DiscardRequest{FrameID: frame, SlotIDs: validSlots}); err != nil {
		o.log.Warnf("frame %d: discard notification failed: %v", frame, err)
	}

	o.report(FrameResult{
		Frame: frame, Outcome: Success, Drift: driftResult.Drift,
		Confidence: search.Confidence, ValidSlots: validSlots, Qubits: qubits,
	})
}

func (o *Orchestrator) report(res FrameResult) {
	o.sink.Observe(res)
}

// TrimSlots applies FilterDetections (§4.7): qubits'[i] = qubits[validSlots[i]+offset]
// for each valid slot index, dropping entries whose shifted index falls
// outside qubits. The returned slots and qubits are parallel arrays of
// equal length, restricted to the slots that survived the shift.
func TrimSlots(validSlots []qkd.SlotID, qubits qkd.QubitList, offset int) ([]qkd.SlotID, qkd.QubitList) {
	outSlots := make([]qkd.SlotID, 0, len(validSlots))
	outQubits := make(qkd.QubitList, 0, len(validSlots))
	for _, slot := range validSlots {
		shifted := int64(slot) + int64(offset)
		if shifted < 0 || shifted >= int64(len(qubits)) {
			continue
		}
		outSlots = append(outSlots, slot)
		outQubits = append(outQubits, qubits[shifted])
	}
	return outSlots, outQubits
}
