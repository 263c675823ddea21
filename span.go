package vizpath

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vizpath/vizpath-go/internal/wire"
)

// SpanType categorizes what kind of work a span measures.
type SpanType string

const (
	SpanLLM       SpanType = "llm"
	SpanTool      SpanType = "tool"
	SpanAgent     SpanType = "agent"
	SpanRetrieval SpanType = "retrieval"
	SpanChain     SpanType = "chain"
	SpanCustom    SpanType = "custom"
)

// SpanStatus is a span's execution status. It moves from StatusRunning to
// exactly one terminal value when the span ends.
type SpanStatus string

const (
	StatusRunning SpanStatus = "running"
	StatusSuccess SpanStatus = "success"
	StatusError   SpanStatus = "error"
)

// Span is a single timed unit of work within a trace. The owning trace
// context holds the span for its whole life; the parent link is an id
// reference only, so span trees never form ownership cycles.
//
// All methods are safe for concurrent use. Setters return the span for
// chaining. After End, mutations are ignored with a logged warning.
type Span struct {
	id       string
	parentID string
	tc       *traceContext

	mu         sync.Mutex
	name       string
	spanType   SpanType
	status     SpanStatus
	startTime  time.Time // wall clock; also carries Go's monotonic reading for duration
	endTime    time.Time
	durationMS float64
	ended      bool
	attributes map[string]any
	events     []wire.Event
	input      any
	output     any
	errMsg     string
	tokens     *int
	cost       *float64
}

func newSpan(name string, tc *traceContext, parentID string, typ SpanType) *Span {
	if typ == "" {
		typ = SpanCustom
	}
	return &Span{
		id:         uuid.NewString(),
		parentID:   parentID,
		tc:         tc,
		name:       name,
		spanType:   typ,
		status:     StatusRunning,
		startTime:  time.Now(),
		attributes: make(map[string]any),
	}
}

// ID returns the span's globally unique id.
func (s *Span) ID() string { return s.id }

// ParentID returns the parent span's id, or "" for a root-level span.
func (s *Span) ParentID() string { return s.parentID }

// TraceID returns the id of the trace this span belongs to.
func (s *Span) TraceID() string { return s.tc.traceID }

// Name returns the span name.
func (s *Span) Name() string { return s.name }

// Status returns the span's current status.
func (s *Span) Status() SpanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Child creates a new span nested under s and registers it with the owning
// trace.
func (s *Span) Child(name string, typ SpanType) *Span {
	child := newSpan(name, s.tc, s.id, typ)
	s.tc.register(child)
	return child
}

// mutate applies fn under the span lock unless the span has already ended.
func (s *Span) mutate(op string, fn func()) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.tc.log.Warn("span already ended, ignoring mutation", "op", op, "span_id", s.id)
		return s
	}
	fn()
	return s
}

// SetInput records the span's input payload.
func (s *Span) SetInput(v any) *Span {
	return s.mutate("SetInput", func() { s.input = v })
}

// SetOutput records the span's output payload.
func (s *Span) SetOutput(v any) *Span {
	return s.mutate("SetOutput", func() { s.output = v })
}

// SetAttributes merges key/value pairs into the span's attributes.
// Last write wins.
func (s *Span) SetAttributes(attrs map[string]any) *Span {
	return s.mutate("SetAttributes", func() {
		for k, v := range attrs {
			s.attributes[k] = v
		}
	})
}

// AddEvent appends a timestamped event. Events are never removed or
// reordered.
func (s *Span) AddEvent(name string, attrs map[string]any) *Span {
	return s.mutate("AddEvent", func() {
		s.events = append(s.events, wire.Event{
			Name:       name,
			Timestamp:  time.Now().UTC(),
			Attributes: cloneAttrs(attrs),
		})
	})
}

// SetTokens records the LLM token count for this span.
func (s *Span) SetTokens(count int) *Span {
	return s.mutate("SetTokens", func() { s.tokens = &count })
}

// SetCost records the monetary cost of this span.
func (s *Span) SetCost(cost float64) *Span {
	return s.mutate("SetCost", func() { s.cost = &cost })
}

// SetTokenUsage records a prompt/completion token split. The breakdown lands
// in attributes and the total becomes the span's token count.
func (s *Span) SetTokenUsage(prompt, completion int) *Span {
	return s.mutate("SetTokenUsage", func() {
		total := prompt + completion
		s.attributes["tokens.prompt"] = prompt
		s.attributes["tokens.completion"] = completion
		s.attributes["tokens.total"] = total
		s.tokens = &total
	})
}

// SetError marks the span failed and records the message. The span keeps
// running until End is called.
func (s *Span) SetError(msg string) *Span {
	return s.mutate("SetError", func() {
		s.errMsg = msg
		s.status = StatusError
	})
}

// End finishes the span: the duration comes from the monotonic clock reading
// carried by the start time, and the final status resolves to error if one
// was recorded, success otherwise. The immutable snapshot is handed to the
// owning trace for transmission. A second End is a no-op.
func (s *Span) End() { s.end("") }

// EndWith finishes the span with an explicit final status, overriding the
// recorded one.
func (s *Span) EndWith(status SpanStatus) { s.end(status) }

func (s *Span) end(status SpanStatus) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.tc.log.Warn("span already ended, ignoring End", "span_id", s.id)
		return
	}
	s.ended = true
	elapsed := time.Since(s.startTime)
	s.endTime = time.Now()
	s.durationMS = float64(elapsed.Nanoseconds()) / 1e6

	switch {
	case status != "":
		s.status = status
	case s.status == StatusRunning:
		s.status = StatusSuccess
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.tc.onSpanEnd(snap)
}

// snapshotLocked builds the wire form of the span. Caller holds s.mu.
func (s *Span) snapshotLocked() wire.Snapshot {
	snap := wire.Snapshot{
		SpanID:     s.id,
		TraceID:    s.tc.traceID,
		Name:       s.name,
		SpanType:   string(s.spanType),
		Status:     string(s.status),
		StartTime:  s.startTime.UTC(),
		Attributes: cloneAttrs(s.attributes),
		// The collector requires an events array; a null is rejected.
		Events: append(make([]wire.Event, 0, len(s.events)), s.events...),
		Input:      s.input,
		Output:     s.output,
	}
	if s.parentID != "" {
		pid := s.parentID
		snap.ParentID = &pid
	}
	if s.ended {
		et := s.endTime.UTC()
		d := s.durationMS
		snap.EndTime = &et
		snap.DurationMS = &d
	}
	if s.errMsg != "" {
		msg := s.errMsg
		snap.Error = &msg
	}
	if s.tokens != nil {
		t := *s.tokens
		snap.Tokens = &t
	}
	if s.cost != nil {
		c := *s.cost
		snap.Cost = &c
	}
	return snap
}

func cloneAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
