// Package vizpath instruments agent executions with hierarchical traces and
// ships finished spans to a vizpath collector in the background. Tracing is
// never load-bearing: transmission failures are logged and retried or dropped
// inside the SDK, and instrumented code runs unchanged when tracing is
// disabled or unconfigured.
//
// Explicit usage:
//
//	tracer, err := vizpath.New(vizpath.WithAPIKey("key"))
//	if err != nil { ... }
//	defer tracer.Close(ctx)
//
//	tr := tracer.Trace("research-task")
//	sp := tr.Span("search", vizpath.SpanTool)
//	sp.SetOutput(result)
//	sp.End()
//	tr.End()
//
// Ambient usage threads the current trace and span through context.Context,
// so instrumented functions never carry a tracer in their signatures:
//
//	err := vizpath.WithTrace(ctx, "research-task", func(ctx context.Context) error {
//	    return vizpath.WithTool(ctx, "search", func(ctx context.Context) error {
//	        vizpath.SetSpanAttributes(ctx, map[string]any{"query": q})
//	        return nil
//	    })
//	})
package vizpath

import (
	"context"
	"log/slog"

	"github.com/vizpath/vizpath-go/internal/transport"
)

// Tracer is the explicit entry point for recording traces. All methods are
// safe for concurrent use.
type Tracer struct {
	cfg    Config
	logger *slog.Logger
	client *transport.Client
}

// New constructs a Tracer. Settings come from the environment (FromEnv) unless
// WithConfig supplies them; individual With* options override either source.
// Invalid settings fail here with a *ConfigError and are never re-validated.
func New(opts ...Option) (*Tracer, error) {
	var o resolvedOptions
	for _, opt := range opts {
		opt(&o)
	}

	var cfg Config
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		cfg = loadEnv()
	}
	for _, override := range o.overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	client := transport.New(transport.Options{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		BufferSize:        cfg.BufferSize,
		FlushInterval:     cfg.FlushInterval,
		Timeout:           cfg.Timeout,
		RetryServerErrors: cfg.RetryServerErrors,
		Enabled:           cfg.Enabled,
		Logger:            logger,
		HTTPClient:        o.httpClient,
	})
	if cfg.Enabled && cfg.APIKey == "" {
		logger.Warn("vizpath: no API key configured, spans will be dropped")
	}

	return &Tracer{cfg: cfg, logger: logger, client: client}, nil
}

// Trace begins a new trace with a fresh trace id.
func (t *Tracer) Trace(name string) *Trace {
	return &Trace{tc: newTraceContext(name, t.client, t.logger)}
}

// Flush synchronously delivers all spans buffered so far.
func (t *Tracer) Flush(ctx context.Context) {
	t.client.Flush(ctx)
}

// Close flushes remaining spans, stops the background worker within the ctx
// deadline, and releases the transport. Spans still queued past the deadline
// are lost and logged.
func (t *Tracer) Close(ctx context.Context) error {
	return t.client.Close(ctx)
}

// Enabled reports whether this tracer has an active network transport.
func (t *Tracer) Enabled() bool {
	return t.client.Active()
}

// Shutdown flushes and closes every live client in the process, each bounded
// by ctx. It is the Go equivalent of an interpreter exit hook: call it once
// on the way out of main to avoid losing buffered spans from tracers you
// never kept a handle to.
func Shutdown(ctx context.Context) error {
	return transport.CloseAll(ctx)
}
