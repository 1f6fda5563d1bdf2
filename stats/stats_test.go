package stats

import (
	"testing"
	"time"

	"github.com/quantalign/photonalign/align"
)

func TestCountersAggregatesOutcomes(t *testing.T) {
	c := NewCounters()
	c.Observe(align.FrameResult{Outcome: align.Success, Drift: 1e-9})
	c.Observe(align.FrameResult{Outcome: align.LowConfidence})
	c.Observe(align.FrameResult{Outcome: align.MarkerFetchFailed})
	c.Observe(align.FrameResult{Outcome: align.Success, Drift: 3e-9})

	snap := c.Snapshot()
	if snap.Frames != 4 {
		t.Errorf("Frames = %d, want 4", snap.Frames)
	}
	if snap.LowConfidence != 1 {
		t.Errorf("LowConfidence = %d, want 1", snap.LowConfidence)
	}
	if snap.MarkerFetchFailed != 1 {
		t.Errorf("MarkerFetchFailed = %d, want 1", snap.MarkerFetchFailed)
	}
	if got, want := snap.AverageDrift, 2e-9; got < want-1e-12 || got > want+1e-12 {
		t.Errorf("AverageDrift = %v, want %v", got, want)
	}
}

func TestAsyncSinkForwardsObservations(t *testing.T) {
	inner := NewCounters()
	async := NewAsyncSink(inner, 8)

	for i := 0; i < 5; i++ {
		async.Observe(align.FrameResult{Outcome: align.Success})
	}
	async.Close()

	if snap := inner.Snapshot(); snap.Frames != 5 {
		t.Errorf("Frames = %d, want 5", snap.Frames)
	}
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	blocked := make(chan struct{})
	inner := blockingSink{release: blocked}
	async := NewAsyncSink(inner, 1)

	// first observation occupies the drain goroutine (blocked on release);
	// the next fills the buffer; further ones must be dropped, not block.
	for i := 0; i < 10; i++ {
		async.Observe(align.FrameResult{})
	}
	close(blocked)
	async.Close()

	if async.Dropped() == 0 {
		t.Errorf("expected some observations dropped under backpressure")
	}
}

type blockingSink struct{ release chan struct{} }

func (b blockingSink) Observe(align.FrameResult) {
	select {
	case <-b.release:
	case <-time.After(time.Second):
	}
}
