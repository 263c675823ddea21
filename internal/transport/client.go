// Package transport implements the buffered span delivery pipeline.
//
// A Client decouples span production from network I/O: Send enqueues without
// blocking, and a single background worker ships batches to the collector on
// a periodic tick or when the buffer crosses its size threshold. Transmission
// failures never propagate to callers; they are classified, logged, and either
// re-buffered or dropped according to the retry policy (see errors.go).
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/metric"

	"github.com/vizpath/vizpath-go/internal/telemetry"
	"github.com/vizpath/vizpath-go/internal/wire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBufferCapacity is the hard upper limit on buffered snapshots to prevent
// OOM when the collector is unreachable for a long time. Snapshots beyond the
// limit are dropped and counted.
const maxBufferCapacity = 100_000

// batchPath is the collector's batch-ingest endpoint, relative to the base URL.
const batchPath = "/traces/spans/batch"

// Options configures a Client. Validation happens upstream in the public
// Config; Options values are trusted here.
type Options struct {
	BaseURL           string
	APIKey            string
	BufferSize        int
	FlushInterval     time.Duration
	Timeout           time.Duration
	RetryServerErrors bool
	Enabled           bool
	Logger            *slog.Logger
	HTTPClient        *http.Client
}

// Client buffers span snapshots and ships them to the collector in batches.
// Send is safe for concurrent use from any number of goroutines; exactly one
// worker goroutine performs network I/O.
type Client struct {
	baseURL           string
	apiKey            string
	bufferSize        int
	flushInterval     time.Duration
	retryServerErrors bool
	logger            *slog.Logger
	http              *http.Client
	active            bool

	mu      sync.Mutex
	pending []wire.Snapshot

	dropped atomic.Int64 // snapshots dropped: inert mode, capacity, or rejected batches

	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
	drainCtx   context.Context // set by Close so the final flush respects the caller's deadline
	started    atomic.Bool
	closed     atomic.Bool
	metricsReg metric.Registration
}

// New creates a Client. When tracing is disabled or no API key is configured
// the Client is inert: Send drops immediately and no worker is started, so a
// long-running process never accumulates an undrainable buffer.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		apiKey:            opts.APIKey,
		bufferSize:        opts.BufferSize,
		flushInterval:     opts.FlushInterval,
		retryServerErrors: opts.RetryServerErrors,
		logger:            logger,
	}

	if !opts.Enabled || opts.APIKey == "" {
		return c
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	c.http = httpClient
	c.active = true
	c.flushCh = make(chan struct{}, 1)
	c.done = make(chan struct{})

	c.start()
	register(c)
	return c
}

// start spawns the flush worker. Idempotent: a second call logs a warning and
// returns without spawning another worker.
func (c *Client) start() {
	if !c.started.CompareAndSwap(false, true) {
		c.logger.Warn("transport: client already started")
		return
	}
	c.registerMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelLoop = cancel
	go c.flushLoop(ctx)
}

// Active reports whether the client has a network transport and a worker.
func (c *Client) Active() bool {
	return c.active
}

// Send enqueues a snapshot without blocking. When the queue reaches the
// configured buffer size the worker is signalled to flush out of band; the
// signal never waits, so a flush already in progress simply picks up the
// backlog on its next pass.
func (c *Client) Send(s wire.Snapshot) {
	if !c.active {
		c.dropped.Add(1)
		c.logger.Debug("transport: client inactive, dropping span", "span_id", s.SpanID)
		return
	}

	c.mu.Lock()
	if len(c.pending) >= maxBufferCapacity {
		c.mu.Unlock()
		c.dropped.Add(1)
		c.logger.Warn("transport: buffer at capacity, dropping span", "span_id", s.SpanID)
		return
	}
	c.pending = append(c.pending, s)
	n := len(c.pending)
	c.mu.Unlock()

	if n >= c.bufferSize {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

func (c *Client) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush. Close supplies drainCtx with the caller's
			// deadline; fall back to a bounded timeout for direct
			// cancellation (e.g. tests).
			drainCtx := c.drainCtx
			if drainCtx == nil {
				var cancel context.CancelFunc
				drainCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
			}
			c.flush(drainCtx)
			close(c.done)
			return
		case <-ticker.C:
			c.flush(ctx)
		case <-c.flushCh:
			c.flush(ctx)
		}
	}
}

// Flush synchronously drains and transmits everything queued so far.
// Snapshots enqueued while the drain is in flight wait for the next flush.
func (c *Client) Flush(ctx context.Context) {
	if !c.active {
		return
	}
	c.flush(ctx)
}

func (c *Client) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	start := time.Now()
	if err := c.post(ctx, batch); err != nil {
		if c.retryable(err) {
			c.logger.Warn("transport: flush failed, re-buffering batch",
				"error", err, "batch_size", len(batch))
			c.requeue(batch)
		} else {
			c.dropped.Add(int64(len(batch)))
			c.logger.Error("transport: flush rejected, dropping batch",
				"error", err, "batch_size", len(batch))
		}
		return
	}

	c.logger.Debug("transport: batch flushed",
		"batch_size", len(batch),
		"flush_duration_ms", time.Since(start).Milliseconds(),
	)
}

// requeue puts a failed batch back at the front of the queue so delivery
// order is preserved across transient outages, subject to the capacity cap.
func (c *Client) requeue(batch []wire.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending)+len(batch) <= maxBufferCapacity {
		c.pending = append(batch, c.pending...)
		return
	}
	c.dropped.Add(int64(len(batch)))
	c.logger.Error("transport: dropping batch, buffer at capacity after flush failure",
		"dropped", len(batch))
}

func (c *Client) post(ctx context.Context, batch []wire.Snapshot) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("transport: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+batchPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return classifyStatus(resp.StatusCode, string(b))
}

// Close stops the worker, performs one final flush bounded by ctx, and
// releases the transport. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if !c.active {
		return nil
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	unregister(c)
	if c.metricsReg != nil {
		_ = c.metricsReg.Unregister()
	}

	c.drainCtx = ctx // Store before cancel so the worker's final flush sees it.
	c.cancelLoop()

	select {
	case <-c.done:
	case <-ctx.Done():
		c.logger.Warn("transport: close timed out waiting for final flush",
			"pending", c.Len())
		c.http.CloseIdleConnections()
		return ctx.Err()
	}

	if n := c.Len(); n > 0 {
		c.logger.Warn("transport: closed with undelivered spans", "pending", n)
	}
	c.http.CloseIdleConnections()
	return nil
}

// Len returns the current number of queued snapshots.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Dropped returns the total number of snapshots dropped by this client
// (inert mode, capacity exhaustion, or rejected batches). A non-zero value
// indicates data loss.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// registerMetrics registers observable gauges for buffer health against the
// host application's global meter provider. The registration is released on
// Close so a dead client never reports stale depth.
func (c *Client) registerMetrics() {
	meter := telemetry.Meter("vizpath/transport")

	depth, err := meter.Int64ObservableGauge("vizpath.buffer.depth",
		metric.WithDescription("Current number of span snapshots waiting to be flushed"))
	if err != nil {
		return
	}
	droppedTotal, err := meter.Int64ObservableGauge("vizpath.buffer.dropped_total",
		metric.WithDescription("Total span snapshots dropped by the client"))
	if err != nil {
		return
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, int64(c.Len()))
		o.ObserveInt64(droppedTotal, c.Dropped())
		return nil
	}, depth, droppedTotal)
	if err == nil {
		c.metricsReg = reg
	}
}
