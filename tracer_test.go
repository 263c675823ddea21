package vizpath

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vizpath/vizpath-go/internal/wire"
)

// mockCollector records batches posted to the batch-ingest endpoint.
type mockCollector struct {
	mu      sync.Mutex
	batches [][]wire.Snapshot
	auth    []string
}

func (m *mockCollector) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/traces/spans/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var batch []wire.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("bad batch body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.batches = append(m.batches, batch)
		m.auth = append(m.auth, r.Header.Get("Authorization"))
		m.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

func (m *mockCollector) spans() []wire.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []wire.Snapshot
	for _, b := range m.batches {
		all = append(all, b...)
	}
	return all
}

func TestTracerDeliversSpansToCollector(t *testing.T) {
	collector := &mockCollector{}
	srv := httptest.NewServer(collector.handler(t))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	cfg.BufferSize = 100
	cfg.FlushInterval = time.Hour // only explicit flushes in this test

	tracer, err := New(WithConfig(cfg), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tr := tracer.Trace("task")
	s1 := tr.Span("s1", SpanTool)
	s2 := s1.Child("s2", SpanLLM)
	s2.SetTokens(42)
	s2.End()
	s1.End()
	tr.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracer.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	spans := collector.spans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans at the collector, got %d", len(spans))
	}
	for _, auth := range collector.auth {
		if auth != "Bearer test-key" {
			t.Errorf("auth header = %q", auth)
		}
	}
	byName := map[string]wire.Snapshot{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	if byName["s2"].ParentID == nil || *byName["s2"].ParentID != s1.ID() {
		t.Errorf("s2 parent_id = %v, want %s", byName["s2"].ParentID, s1.ID())
	}
	if byName["s1"].ParentID != nil {
		t.Errorf("s1 parent_id = %v, want nil", byName["s1"].ParentID)
	}
	if byName["s2"].Tokens == nil || *byName["s2"].Tokens != 42 {
		t.Errorf("s2 tokens = %v, want 42", byName["s2"].Tokens)
	}
}

func TestTracerDisabledIsInert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.APIKey = "key"

	tracer, err := New(WithConfig(cfg), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tracer.Enabled() {
		t.Error("disabled tracer must not have an active transport")
	}

	tr := tracer.Trace("task")
	tr.Span("s", SpanTool).End()
	tr.End()

	if err := tracer.Close(context.Background()); err != nil {
		t.Errorf("Close on inert tracer: %v", err)
	}
}

func TestTracerWithoutAPIKeyIsInert(t *testing.T) {
	cfg := DefaultConfig()

	tracer, err := New(WithConfig(cfg), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tracer.Enabled() {
		t.Error("keyless tracer must not have an active transport")
	}
}

func TestOptionsOverrideConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "from-config"

	tracer, err := New(
		WithConfig(cfg),
		WithAPIKey("from-option"),
		WithBufferSize(5),
		WithFlushInterval(200*time.Millisecond),
		WithRetryServerErrors(true),
		WithEnabled(false),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tracer.cfg.APIKey != "from-option" {
		t.Errorf("api key = %q", tracer.cfg.APIKey)
	}
	if tracer.cfg.BufferSize != 5 || tracer.cfg.FlushInterval != 200*time.Millisecond {
		t.Errorf("overrides not applied: %+v", tracer.cfg)
	}
	if !tracer.cfg.RetryServerErrors || tracer.cfg.Enabled {
		t.Errorf("bool overrides not applied: %+v", tracer.cfg)
	}
}
