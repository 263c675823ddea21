package vizpath

import (
	"testing"
)

func TestTraceAggregateStatusSuccess(t *testing.T) {
	sink := &captureSink{}
	tr := newTestTrace("t", sink)

	tr.Span("a", SpanTool).End()
	tr.Span("b", SpanLLM).End()
	tr.End()

	if tr.Status() != StatusSuccess {
		t.Errorf("expected success, got %q", tr.Status())
	}
}

func TestTraceAggregateStatusError(t *testing.T) {
	sink := &captureSink{}
	tr := newTestTrace("t", sink)

	tr.Span("a", SpanTool).End()
	sp := tr.Span("b", SpanLLM)
	sp.SetError("boom")
	sp.End()
	tr.End()

	if tr.Status() != StatusError {
		t.Errorf("one failed span must fail the trace, got %q", tr.Status())
	}
}

func TestTraceExplicitStatusWins(t *testing.T) {
	sink := &captureSink{}
	tr := newTestTrace("t", sink)

	sp := tr.Span("a", SpanTool)
	sp.SetError("boom")
	sp.End()
	tr.EndWith(StatusSuccess)

	if tr.Status() != StatusSuccess {
		t.Errorf("explicit status must win, got %q", tr.Status())
	}
}

func TestTraceDoubleEndIsNoop(t *testing.T) {
	sink := &captureSink{}
	tr := newTestTrace("t", sink)

	tr.Span("a", SpanTool).End()
	tr.End()
	tr.EndWith(StatusError)

	if tr.Status() != StatusSuccess {
		t.Errorf("second End must not change status, got %q", tr.Status())
	}
}

func TestTraceSpansShareTraceID(t *testing.T) {
	sink := &captureSink{}
	tr := newTestTrace("t", sink)

	a := tr.Span("a", SpanTool)
	b := a.Child("b", SpanLLM)
	c := b.Child("c", SpanCustom)

	for _, sp := range []*Span{a, b, c} {
		if sp.TraceID() != tr.ID() {
			t.Errorf("span %s trace id %s != %s", sp.Name(), sp.TraceID(), tr.ID())
		}
	}
}

func TestTraceRootIsFirstRegistered(t *testing.T) {
	sink := &captureSink{}
	tr := newTestTrace("t", sink)

	first := tr.Span("first", SpanAgent)
	tr.Span("second", SpanTool)

	if tr.tc.root != first {
		t.Error("expected first registered span to be the root")
	}
}

func TestTraceStats(t *testing.T) {
	sink := &captureSink{}
	tr := newTestTrace("t", sink)

	tr.Span("ok", SpanTool).End()
	bad := tr.Span("bad", SpanTool)
	bad.SetError("boom")
	bad.End()
	tr.End()

	stats := tr.Stats()
	if stats.SpanCount != 2 {
		t.Errorf("expected 2 spans, got %d", stats.SpanCount)
	}
	if stats.ErrorCount != 1 {
		t.Errorf("expected 1 error, got %d", stats.ErrorCount)
	}
	if stats.EndTime.Before(stats.StartTime) {
		t.Error("end time before start time")
	}
}

// The end-to-end scenario: trace t1 with root tool span s1, child llm span s2
// carrying 42 tokens, ended inside-out.
func TestTraceEndToEndScenario(t *testing.T) {
	sink := &captureSink{}
	tr := newTestTrace("t1", sink)

	s1 := tr.Span("s1", SpanTool)
	s2 := s1.Child("s2", SpanLLM)
	s2.SetTokens(42)
	s2.End()
	s1.End()
	tr.End()

	snaps := sink.all()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}

	// Snapshots arrive in end order: s2 first, then s1.
	snap2, snap1 := snaps[0], snaps[1]
	if snap2.Name != "s2" || snap1.Name != "s1" {
		t.Fatalf("unexpected snapshot order: %q, %q", snaps[0].Name, snaps[1].Name)
	}
	if snap2.ParentID == nil || *snap2.ParentID != s1.ID() {
		t.Errorf("s2 parent_id = %v, want %s", snap2.ParentID, s1.ID())
	}
	if snap1.ParentID != nil {
		t.Errorf("s1 parent_id = %v, want nil", snap1.ParentID)
	}
	for _, snap := range snaps {
		if snap.TraceID != tr.ID() {
			t.Errorf("snapshot %s trace_id = %s, want %s", snap.Name, snap.TraceID, tr.ID())
		}
	}
	if tr.Status() != StatusSuccess {
		t.Errorf("expected aggregate success, got %q", tr.Status())
	}
	if snap2.Tokens == nil || *snap2.Tokens != 42 {
		t.Errorf("s2 tokens = %v, want 42", snap2.Tokens)
	}
}
