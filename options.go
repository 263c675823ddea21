package vizpath

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Tracer.
type Option func(*resolvedOptions)

// resolvedOptions holds construction-time knobs after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	cfg        *Config
	overrides  []func(*Config)
	logger     *slog.Logger
	httpClient *http.Client
}

func (o *resolvedOptions) override(f func(*Config)) {
	o.overrides = append(o.overrides, f)
}

// WithConfig supplies a complete Config, bypassing the environment.
func WithConfig(cfg Config) Option {
	return func(o *resolvedOptions) { o.cfg = &cfg }
}

// WithAPIKey sets the collector API key (VIZPATH_API_KEY env var).
func WithAPIKey(key string) Option {
	return func(o *resolvedOptions) { o.override(func(c *Config) { c.APIKey = key }) }
}

// WithBaseURL sets the collector base URL (VIZPATH_API_URL env var).
func WithBaseURL(u string) Option {
	return func(o *resolvedOptions) { o.override(func(c *Config) { c.BaseURL = u }) }
}

// WithBufferSize sets the queue length that triggers an out-of-band flush
// (VIZPATH_BUFFER_SIZE env var).
func WithBufferSize(n int) Option {
	return func(o *resolvedOptions) { o.override(func(c *Config) { c.BufferSize = n }) }
}

// WithFlushInterval sets the background flush period (VIZPATH_FLUSH_INTERVAL
// env var).
func WithFlushInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.override(func(c *Config) { c.FlushInterval = d }) }
}

// WithTimeout sets the per-request timeout (VIZPATH_TIMEOUT env var).
func WithTimeout(d time.Duration) Option {
	return func(o *resolvedOptions) { o.override(func(c *Config) { c.Timeout = d }) }
}

// WithMaxRetries sets the declared retry budget (VIZPATH_MAX_RETRIES env var).
func WithMaxRetries(n int) Option {
	return func(o *resolvedOptions) { o.override(func(c *Config) { c.MaxRetries = n }) }
}

// WithRetryServerErrors re-buffers batches rejected with a 5xx instead of
// dropping them (VIZPATH_RETRY_SERVER_ERRORS env var).
func WithRetryServerErrors(retry bool) Option {
	return func(o *resolvedOptions) { o.override(func(c *Config) { c.RetryServerErrors = retry }) }
}

// WithEnabled toggles the SDK (VIZPATH_ENABLED env var). A disabled tracer
// accepts all calls and drops every span.
func WithEnabled(enabled bool) Option {
	return func(o *resolvedOptions) { o.override(func(c *Config) { c.Enabled = enabled }) }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithHTTPClient sets a custom HTTP client for batch transmission. The
// caller owns its timeout behavior; Config.Timeout only applies to the
// default client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *resolvedOptions) { o.httpClient = client }
}
