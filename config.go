package vizpath

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultBaseURL       = "http://localhost:8000/api/v1"
	DefaultBufferSize    = 50
	DefaultFlushInterval = 5 * time.Second
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
)

// minFlushInterval guards against busy-looping the flush worker.
const minFlushInterval = 100 * time.Millisecond

// Config holds SDK settings. A Config is validated at construction and treated
// as immutable once a Tracer has been built from it.
type Config struct {
	// APIKey authenticates against the collector. Without a key the client
	// is inert: spans are dropped instead of buffered (see transport).
	APIKey string

	// BaseURL is the root of the collector API.
	BaseURL string

	// BufferSize is the queue length that triggers an out-of-band flush.
	BufferSize int

	// FlushInterval is how often the background worker flushes regardless
	// of queue length.
	FlushInterval time.Duration

	// Timeout applies to each batch request.
	Timeout time.Duration

	// MaxRetries is declared for the collector contract; delivery retries
	// are governed by re-buffering rather than a per-batch retry count.
	MaxRetries int

	// RetryServerErrors re-buffers batches rejected with a 5xx instead of
	// dropping them.
	RetryServerErrors bool

	// Enabled turns the SDK off entirely when false.
	Enabled bool
}

// DefaultConfig returns a Config with defaults and no API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		BufferSize:    DefaultBufferSize,
		FlushInterval: DefaultFlushInterval,
		Timeout:       DefaultTimeout,
		MaxRetries:    DefaultMaxRetries,
		Enabled:       true,
	}
}

// FromEnv builds a validated Config from VIZPATH_* environment variables,
// honoring a .env file in the working directory if present.
func FromEnv() (Config, error) {
	cfg := loadEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnv() Config {
	_ = godotenv.Load()
	return Config{
		APIKey:            envStr("VIZPATH_API_KEY", ""),
		BaseURL:           envStr("VIZPATH_API_URL", DefaultBaseURL),
		BufferSize:        envInt("VIZPATH_BUFFER_SIZE", DefaultBufferSize),
		FlushInterval:     envDuration("VIZPATH_FLUSH_INTERVAL", DefaultFlushInterval),
		Timeout:           envDuration("VIZPATH_TIMEOUT", DefaultTimeout),
		MaxRetries:        envInt("VIZPATH_MAX_RETRIES", DefaultMaxRetries),
		RetryServerErrors: envBool("VIZPATH_RETRY_SERVER_ERRORS", false),
		Enabled:           envBool("VIZPATH_ENABLED", true),
	}
}

// fileConfig is the YAML shape for LoadFile. Durations are strings in Go
// duration syntax ("5s", "250ms"); absent fields keep their defaults.
type fileConfig struct {
	APIKey            *string `yaml:"api_key"`
	BaseURL           *string `yaml:"base_url"`
	BufferSize        *int    `yaml:"buffer_size"`
	FlushInterval     *string `yaml:"flush_interval"`
	Timeout           *string `yaml:"timeout"`
	MaxRetries        *int    `yaml:"max_retries"`
	RetryServerErrors *bool   `yaml:"retry_server_errors"`
	Enabled           *bool   `yaml:"enabled"`
}

// LoadFile builds a validated Config from a YAML file, applied over defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, &ConfigError{Field: path, Message: "invalid YAML: " + err.Error()}
	}

	cfg := DefaultConfig()
	if fc.APIKey != nil {
		cfg.APIKey = *fc.APIKey
	}
	if fc.BaseURL != nil {
		cfg.BaseURL = *fc.BaseURL
	}
	if fc.BufferSize != nil {
		cfg.BufferSize = *fc.BufferSize
	}
	if fc.FlushInterval != nil {
		d, err := time.ParseDuration(*fc.FlushInterval)
		if err != nil {
			return Config{}, &ConfigError{Field: "flush_interval", Message: "invalid duration: " + *fc.FlushInterval}
		}
		cfg.FlushInterval = d
	}
	if fc.Timeout != nil {
		d, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return Config{}, &ConfigError{Field: "timeout", Message: "invalid duration: " + *fc.Timeout}
		}
		cfg.Timeout = d
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.RetryServerErrors != nil {
		cfg.RetryServerErrors = *fc.RetryServerErrors
	}
	if fc.Enabled != nil {
		cfg.Enabled = *fc.Enabled
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the Config and returns a *ConfigError on the first problem.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return &ConfigError{Field: "base_url", Message: "is required"}
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Field: "base_url", Message: "must be an absolute URL"}
	}
	if c.BufferSize < 1 {
		return &ConfigError{Field: "buffer_size", Message: "must be at least 1"}
	}
	if c.FlushInterval < minFlushInterval {
		return &ConfigError{Field: "flush_interval", Message: "must be at least 100ms"}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Message: "must be positive"}
	}
	if c.MaxRetries < 0 {
		return &ConfigError{Field: "max_retries", Message: "must not be negative"}
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
