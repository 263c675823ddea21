package vizpath

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Ambient tracing: the current trace and span travel in the context.Context,
// so concurrent executions can never observe each other's state and prior
// values are restored for free when a wrapped call returns: the derived
// context simply goes out of scope, on the error and panic paths included.

type contextKey string

const (
	keyTrace contextKey = "trace"
	keySpan  contextKey = "span"
)

// ContextWithTrace returns a context carrying the given trace as current.
// The current span, if any, is cleared: spans created under the returned
// context start at the new trace's root level.
func ContextWithTrace(ctx context.Context, tr *Trace) context.Context {
	ctx = context.WithValue(ctx, keyTrace, tr)
	return context.WithValue(ctx, keySpan, (*Span)(nil))
}

// ContextWithSpan returns a context carrying the given span as current.
func ContextWithSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, keySpan, s)
}

// TraceFromContext returns the current trace, or nil if none is active.
func TraceFromContext(ctx context.Context) *Trace {
	if tr, ok := ctx.Value(keyTrace).(*Trace); ok {
		return tr
	}
	return nil
}

// SpanFromContext returns the current span, or nil if none is active.
func SpanFromContext(ctx context.Context) *Span {
	if s, ok := ctx.Value(keySpan).(*Span); ok && s != nil {
		return s
	}
	return nil
}

// The process-global tracer backs the ambient API. Configure installs it
// explicitly; WithTrace falls back to a default-configuration tracer built
// exactly once under the mutex, so concurrent first uses cannot race two
// clients into existence.
var (
	globalMu     sync.Mutex
	globalTracer *Tracer
)

// Configure installs the process-global tracer used by the ambient API,
// replacing any previous one. The previous tracer keeps its buffered spans;
// Shutdown closes every client either way.
func Configure(opts ...Option) error {
	tracer, err := New(opts...)
	if err != nil {
		return err
	}
	globalMu.Lock()
	globalTracer = tracer
	globalMu.Unlock()
	return nil
}

func ensureGlobal() *Tracer {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalTracer == nil {
		tracer, err := New()
		if err != nil {
			// Never break the instrumented program: fall back to a
			// disabled tracer and say so.
			slog.Default().Warn("vizpath: default configuration invalid, tracing disabled", "error", err)
			cfg := DefaultConfig()
			cfg.Enabled = false
			tracer, _ = New(WithConfig(cfg))
		}
		globalTracer = tracer
	}
	return globalTracer
}

// WithTrace runs fn inside a fresh trace installed as current in fn's
// context. fn's error is recorded as the trace metadata key "error" and
// returned unchanged; a panic marks the trace failed and re-panics. The trace
// is ended on every path and the caller's context is untouched.
func WithTrace(ctx context.Context, name string, fn func(context.Context) error) error {
	tr := ensureGlobal().Trace(name)
	ctx = ContextWithTrace(ctx, tr)

	defer func() {
		if r := recover(); r != nil {
			tr.SetMetadata(map[string]any{"error": fmt.Sprint(r)})
			tr.EndWith(StatusError)
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		tr.SetMetadata(map[string]any{"error": err.Error()})
		tr.End()
		return err
	}
	tr.End()
	return nil
}

// WithSpan runs fn inside a span nested under the current span, or at the
// trace's root level if none is active. Without an active trace fn runs
// untraced; instrumentation is never a prerequisite for calling a function.
// fn's error is recorded via SetError and returned unchanged; a panic is
// recorded the same way before re-panicking. The span is ended on every path.
func WithSpan(ctx context.Context, name string, typ SpanType, fn func(context.Context) error) error {
	tr := TraceFromContext(ctx)
	if tr == nil {
		return fn(ctx)
	}

	var sp *Span
	if parent := SpanFromContext(ctx); parent != nil {
		sp = parent.Child(name, typ)
	} else {
		sp = tr.Span(name, typ)
	}
	ctx = ContextWithSpan(ctx, sp)

	defer func() {
		if r := recover(); r != nil {
			sp.SetError(fmt.Sprint(r))
			sp.End()
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		sp.SetError(err.Error())
		sp.End()
		return err
	}
	sp.End()
	return nil
}

// WithTool is WithSpan with the tool span type.
func WithTool(ctx context.Context, name string, fn func(context.Context) error) error {
	return WithSpan(ctx, name, SpanTool, fn)
}

// WithLLM is WithSpan with the llm span type.
func WithLLM(ctx context.Context, name string, fn func(context.Context) error) error {
	return WithSpan(ctx, name, SpanLLM, fn)
}

// WithAgent is WithSpan with the agent span type.
func WithAgent(ctx context.Context, name string, fn func(context.Context) error) error {
	return WithSpan(ctx, name, SpanAgent, fn)
}

// WithRetrieval is WithSpan with the retrieval span type.
func WithRetrieval(ctx context.Context, name string, fn func(context.Context) error) error {
	return WithSpan(ctx, name, SpanRetrieval, fn)
}

// WithChain is WithSpan with the chain span type.
func WithChain(ctx context.Context, name string, fn func(context.Context) error) error {
	return WithSpan(ctx, name, SpanChain, fn)
}

// SetSpanAttributes merges attributes into the current span. No-op without
// an active span.
func SetSpanAttributes(ctx context.Context, attrs map[string]any) {
	if sp := SpanFromContext(ctx); sp != nil {
		sp.SetAttributes(attrs)
	}
}

// SetSpanTokens records a prompt/completion token split on the current span.
// No-op without an active span.
func SetSpanTokens(ctx context.Context, prompt, completion int) {
	if sp := SpanFromContext(ctx); sp != nil {
		sp.SetTokenUsage(prompt, completion)
	}
}

// SetSpanCost records cost on the current span. No-op without an active span.
func SetSpanCost(ctx context.Context, cost float64) {
	if sp := SpanFromContext(ctx); sp != nil {
		sp.SetAttributes(map[string]any{"cost": cost})
		sp.SetCost(cost)
	}
}

// SetTraceAttributes merges metadata into the current trace. No-op without
// an active trace.
func SetTraceAttributes(ctx context.Context, attrs map[string]any) {
	if tr := TraceFromContext(ctx); tr != nil {
		tr.SetMetadata(attrs)
	}
}
