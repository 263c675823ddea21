package vizpath

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vizpath/vizpath-go/internal/wire"
)

// spanSink receives finished span snapshots for delivery. Satisfied by
// transport.Client; tests substitute an in-memory capture.
type spanSink interface {
	Send(wire.Snapshot)
}

// traceContext owns every span registered to one trace: an insertion-ordered
// list plus an id index, with parent/child links held as id references on the
// spans themselves.
type traceContext struct {
	traceID string
	name    string
	sink    spanSink
	log     *slog.Logger

	mu       sync.Mutex
	spans    []*Span
	byID     map[string]*Span
	root     *Span
	metadata map[string]any
	status   SpanStatus
	start    time.Time
	end      time.Time
	ended    bool
}

func newTraceContext(name string, sink spanSink, log *slog.Logger) *traceContext {
	return &traceContext{
		traceID:  uuid.NewString(),
		name:     name,
		sink:     sink,
		log:      log,
		byID:     make(map[string]*Span),
		metadata: make(map[string]any),
		status:   StatusRunning,
		start:    time.Now(),
	}
}

// register appends a span. The first registered span becomes the root.
func (tc *traceContext) register(s *Span) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.spans = append(tc.spans, s)
	tc.byID[s.id] = s
	if tc.root == nil {
		tc.root = s
	}
}

// onSpanEnd forwards the finished span's snapshot to the client. Called from
// Span.end without any trace lock held.
func (tc *traceContext) onSpanEnd(snap wire.Snapshot) {
	tc.sink.Send(snap)
}

func (tc *traceContext) setMetadata(m map[string]any) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for k, v := range m {
		tc.metadata[k] = v
	}
}

// finish resolves the aggregate status: an explicit override wins, otherwise
// error if any registered span ended in error, else success.
func (tc *traceContext) finish(status SpanStatus) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.ended {
		tc.log.Warn("trace already ended, ignoring End", "trace_id", tc.traceID)
		return
	}
	tc.ended = true
	tc.end = time.Now()

	switch {
	case status != "":
		tc.status = status
	case tc.errorCountLocked() > 0:
		tc.status = StatusError
	default:
		tc.status = StatusSuccess
	}
}

func (tc *traceContext) errorCountLocked() int {
	n := 0
	for _, s := range tc.spans {
		if s.Status() == StatusError {
			n++
		}
	}
	return n
}

// Trace is the public handle over one recorded execution. It is a thin
// wrapper around the trace context with no independent state.
type Trace struct {
	tc *traceContext
}

// ID returns the trace id.
func (t *Trace) ID() string { return t.tc.traceID }

// Name returns the trace name.
func (t *Trace) Name() string { return t.tc.name }

// Span creates a root-level span (no parent) registered to this trace.
func (t *Trace) Span(name string, typ SpanType) *Span {
	s := newSpan(name, t.tc, "", typ)
	t.tc.register(s)
	return s
}

// SetMetadata merges key/value pairs into the trace metadata. Metadata is
// informational for the caller and is not transmitted with span snapshots.
func (t *Trace) SetMetadata(m map[string]any) *Trace {
	t.tc.setMetadata(m)
	return t
}

// End finishes the trace, computing the aggregate status from its spans.
func (t *Trace) End() { t.tc.finish("") }

// EndWith finishes the trace with an explicit status.
func (t *Trace) EndWith(status SpanStatus) { t.tc.finish(status) }

// Status returns the trace status: StatusRunning until End, then the
// aggregate or overridden terminal status.
func (t *Trace) Status() SpanStatus {
	t.tc.mu.Lock()
	defer t.tc.mu.Unlock()
	return t.tc.status
}

// TraceStats is read-side bookkeeping about a trace.
type TraceStats struct {
	SpanCount  int
	ErrorCount int
	StartTime  time.Time
	EndTime    time.Time // zero until the trace ends
}

// Stats reports the trace's current span and error counts and timing.
func (t *Trace) Stats() TraceStats {
	t.tc.mu.Lock()
	defer t.tc.mu.Unlock()
	return TraceStats{
		SpanCount:  len(t.tc.spans),
		ErrorCount: t.tc.errorCountLocked(),
		StartTime:  t.tc.start,
		EndTime:    t.tc.end,
	}
}
