// Package wire defines the JSON contract between the SDK and the collector's
// batch-ingest endpoint. A Snapshot is the immutable form of a span captured
// at End time; once built it is never mutated.
package wire

import "time"

// Event is a point-in-time occurrence within a span.
type Event struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Snapshot is one element of the batch body posted to
// POST {base_url}/traces/spans/batch. Timestamps are UTC.
type Snapshot struct {
	SpanID     string         `json:"span_id"`
	TraceID    string         `json:"trace_id"`
	ParentID   *string        `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	SpanType   string         `json:"span_type"`
	Status     string         `json:"status"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	DurationMS *float64       `json:"duration_ms,omitempty"`
	Attributes map[string]any `json:"attributes"`
	Events     []Event        `json:"events"`
	Input      any            `json:"input,omitempty"`
	Output     any            `json:"output,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Tokens     *int           `json:"tokens,omitempty"`
	Cost       *float64       `json:"cost,omitempty"`
}
