// Package core holds what every cartshare package shares: configuration,
// the Logger interface and its logrus implementation, sentinel errors, and
// the Redis client behind the shared session store.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for a cartshare client.
// It supports layered configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables, optionally seeded from a .env file
//  3. Configuration file (JSON or YAML)
//  4. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithAPIBaseURL("https://cart.example.com"),
//	    WithSessionProvider("redis"),
//	    WithRedisURL("redis://localhost:6379"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Name identifies this client in logs and traces
	Name string `json:"name" yaml:"name" env:"CARTSHARE_NAME" default:"cartshare"`

	// Backend API configuration
	API APIConfig `json:"api" yaml:"api"`

	// Durable session storage configuration
	Session SessionConfig `json:"session" yaml:"session"`

	// Query cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Resilience configuration
	Resilience ResilienceConfig `json:"resilience" yaml:"resilience"`

	// Telemetry configuration (optional module)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Prometheus metrics configuration (optional module)
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Development configuration
	Development DevelopmentConfig `json:"development" yaml:"development"`

	// InKubernetes is set by DetectEnvironment and never read from files.
	InKubernetes bool `json:"-" yaml:"-"`
}

// APIConfig describes the backend REST API the client talks to.
type APIConfig struct {
	BaseURL   string        `json:"base_url" yaml:"base_url" env:"CARTSHARE_API_BASE_URL,VITE_API_BASE_URL" default:"http://localhost:8081"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" env:"CARTSHARE_API_TIMEOUT" default:"30s"`
	UserAgent string        `json:"user_agent" yaml:"user_agent" env:"CARTSHARE_USER_AGENT"`
}

// SessionConfig selects where the session id and cached user survive between runs.
//
// Providers:
//   - "file": a YAML file in the user config directory (default)
//   - "redis": a Redis hash, shared between machines
//   - "memory": process lifetime only
type SessionConfig struct {
	Provider  string        `json:"provider" yaml:"provider" env:"CARTSHARE_SESSION_PROVIDER" default:"file"`
	Path      string        `json:"path" yaml:"path" env:"CARTSHARE_SESSION_PATH"`
	RedisURL  string        `json:"redis_url" yaml:"redis_url" env:"CARTSHARE_REDIS_URL,REDIS_URL"`
	RedisDB   int           `json:"redis_db" yaml:"redis_db" env:"CARTSHARE_REDIS_DB" default:"2"`
	Namespace string        `json:"namespace" yaml:"namespace" env:"CARTSHARE_SESSION_NAMESPACE" default:"cartshare:session"`
	Profile   string        `json:"profile" yaml:"profile" env:"CARTSHARE_PROFILE" default:"default"`
	TTL       time.Duration `json:"ttl" yaml:"ttl" env:"CARTSHARE_SESSION_TTL" default:"0s"`
}

// CacheConfig tunes the query cache.
// StaleTime is how long a fetched entry is served without refetching.
type CacheConfig struct {
	StaleTime time.Duration `json:"stale_time" yaml:"stale_time" env:"CARTSHARE_CACHE_STALE_TIME" default:"30s"`
}

// ResilienceConfig contains fault tolerance configuration.
// There is intentionally no retry section: failed requests surface immediately.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// CircuitBreakerConfig defines circuit breaker pattern settings.
// The circuit breaker fails fast after Threshold consecutive server failures
// and lets HalfOpenRequests probes through once Timeout has elapsed.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" env:"CARTSHARE_CB_ENABLED" default:"false"`
	Threshold        int           `json:"threshold" yaml:"threshold" env:"CARTSHARE_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" env:"CARTSHARE_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" yaml:"half_open_requests" env:"CARTSHARE_CB_HALF_OPEN" default:"1"`
}

// TelemetryConfig contains distributed tracing configuration.
// Exporter "otlp" sends spans to an OTLP/gRPC collector at Endpoint and
// "otlphttp" sends spans and counters over OTLP/HTTP. "stdout" pretty-prints
// spans while debugging.
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled" env:"CARTSHARE_TELEMETRY_ENABLED" default:"false"`
	Exporter     string  `json:"exporter" yaml:"exporter" env:"CARTSHARE_TELEMETRY_EXPORTER" default:"otlp"`
	Endpoint     string  `json:"endpoint" yaml:"endpoint" env:"CARTSHARE_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `json:"service_name" yaml:"service_name" env:"CARTSHARE_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" env:"CARTSHARE_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	Insecure     bool    `json:"insecure" yaml:"insecure" env:"CARTSHARE_TELEMETRY_INSECURE" default:"true"`
}

// MetricsConfig controls the Prometheus collector and its /metrics listener.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"CARTSHARE_METRICS_ENABLED" default:"false"`
	Address   string `json:"address" yaml:"address" env:"CARTSHARE_METRICS_ADDRESS" default:":9464"`
	Namespace string `json:"namespace" yaml:"namespace" env:"CARTSHARE_METRICS_NAMESPACE" default:"cartshare"`
}

// LoggingConfig contains logging configuration.
// Logs go to stderr by default so command output on stdout stays clean.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"CARTSHARE_LOG_LEVEL" default:"warn"`
	Format     string `json:"format" yaml:"format" env:"CARTSHARE_LOG_FORMAT" default:"text"`
	Output     string `json:"output" yaml:"output" env:"CARTSHARE_LOG_OUTPUT" default:"stderr"`
	TimeFormat string `json:"time_format" yaml:"time_format" env:"CARTSHARE_LOG_TIME_FORMAT" default:"2006-01-02T15:04:05.000Z07:00"`
}

// DevelopmentConfig contains settings for local development and testing.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" env:"CARTSHARE_DEV_MODE" default:"false"`
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging" env:"CARTSHARE_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" yaml:"pretty_logs" env:"CARTSHARE_PRETTY_LOGS" default:"false"`
}

// Option is a functional option for configuring the client.
// Options are applied in order and can return an error if the configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Name: "cartshare",
		API: APIConfig{
			BaseURL: "http://localhost:8081",
			Timeout: 30 * time.Second,
		},
		Session: SessionConfig{
			Provider:  "file",
			Path:      defaultSessionPath(),
			RedisDB:   RedisDBSessions,
			Namespace: "cartshare:session",
			Profile:   "default",
		},
		Cache: CacheConfig{
			StaleTime: 30 * time.Second,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          false,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Exporter:     "otlp",
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Address:   ":9464",
			Namespace: "cartshare",
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "text",
			Output:     "stderr",
			TimeFormat: time.RFC3339Nano,
		},
	}

	cfg.DetectEnvironment()

	return cfg
}

// defaultSessionPath places the session file next to other per-user config.
func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".cartshare-session.yaml"
	}
	return filepath.Join(dir, "cartshare", "session.yaml")
}

// DetectEnvironment adjusts defaults for the detected environment.
// In Kubernetes logs switch to JSON for aggregation; locally they stay text.
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.InKubernetes = true
		c.Logging.Format = "json"
		c.Session.Provider = "redis"
		c.Session.RedisURL = "redis://redis.default.svc.cluster.local:6379"
	}
}

// LoadEnvFile seeds the process environment from a dotenv file.
// Variables already present in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
//
// Variable naming convention:
//   - Client-specific: CARTSHARE_<SETTING>
//   - Standard variables: REDIS_URL, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME
//   - VITE_API_BASE_URL is honored so an existing web deployment's env works unchanged
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("CARTSHARE_NAME"); v != "" {
		c.Name = v
	}

	// API settings
	if v := firstEnv("CARTSHARE_API_BASE_URL", "VITE_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CARTSHARE_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CARTSHARE_API_TIMEOUT=%q: %w", v, ErrInvalidConfiguration)
		}
		c.API.Timeout = d
	}
	if v := os.Getenv("CARTSHARE_USER_AGENT"); v != "" {
		c.API.UserAgent = v
	}

	// Session settings
	if v := os.Getenv("CARTSHARE_SESSION_PROVIDER"); v != "" {
		c.Session.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("CARTSHARE_SESSION_PATH"); v != "" {
		c.Session.Path = v
	}
	if v := firstEnv("CARTSHARE_REDIS_URL", "REDIS_URL"); v != "" {
		c.Session.RedisURL = v
	}
	if v := os.Getenv("CARTSHARE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Session.RedisDB = db
		}
	}
	if v := os.Getenv("CARTSHARE_SESSION_NAMESPACE"); v != "" {
		c.Session.Namespace = v
	}
	if v := os.Getenv("CARTSHARE_PROFILE"); v != "" {
		c.Session.Profile = v
	}
	if v := os.Getenv("CARTSHARE_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.TTL = d
		}
	}

	// Cache settings
	if v := os.Getenv("CARTSHARE_CACHE_STALE_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.StaleTime = d
		}
	}

	// Circuit breaker settings
	if v := os.Getenv("CARTSHARE_CB_ENABLED"); v != "" {
		c.Resilience.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("CARTSHARE_CB_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.CircuitBreaker.Threshold = n
		}
	}
	if v := os.Getenv("CARTSHARE_CB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.CircuitBreaker.Timeout = d
		}
	}

	// Telemetry settings
	if v := os.Getenv("CARTSHARE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("CARTSHARE_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = strings.ToLower(v)
	}
	if v := firstEnv("CARTSHARE_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable if endpoint is provided
	}
	if v := firstEnv("CARTSHARE_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}

	// Metrics settings
	if v := os.Getenv("CARTSHARE_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("CARTSHARE_METRICS_ADDRESS"); v != "" {
		c.Metrics.Address = v
	}

	// Logging settings
	if v := os.Getenv("CARTSHARE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CARTSHARE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CARTSHARE_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	// Development settings
	if v := os.Getenv("CARTSHARE_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("CARTSHARE_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// File settings override environment variables but are overridden by functional options.
//
// Example YAML:
//
//	api:
//	  base_url: https://cart.example.com
//	  timeout: 15s
//	session:
//	  provider: redis
//	  redis_url: redis://localhost:6379
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
//
// Validation rules:
//   - API base URL must be an absolute http(s) URL
//   - API timeout must be positive
//   - Session provider must be file, redis or memory, with its location set
//   - Telemetry exporter must be otlp, otlphttp or stdout; the otlp ones need an endpoint
//   - Circuit breaker threshold must be positive when enabled
//   - Log format must be json or text
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if c.API.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &OpError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid API base URL: %q", c.API.BaseURL),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.API.Timeout <= 0 {
		return &OpError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("API timeout must be positive, got %s", c.API.Timeout),
			Err:     ErrInvalidConfiguration,
		}
	}

	switch c.Session.Provider {
	case "file":
		if c.Session.Path == "" {
			return &OpError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "session path is required for the file session provider",
				Err:     ErrMissingConfiguration,
			}
		}
	case "redis":
		if c.Session.RedisURL == "" {
			return &OpError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required for the redis session provider",
				Err:     ErrMissingConfiguration,
			}
		}
	case "memory":
	default:
		return &OpError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown session provider: %q", c.Session.Provider),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "otlp", "otlphttp":
			if c.Telemetry.Endpoint == "" {
				return &OpError{
					Op:      "Config.Validate",
					Kind:    "config",
					Message: fmt.Sprintf("telemetry endpoint is required for the %s exporter", c.Telemetry.Exporter),
					Err:     ErrMissingConfiguration,
				}
			}
		case "stdout":
		default:
			return &OpError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("unknown telemetry exporter: %q", c.Telemetry.Exporter),
				Err:     ErrInvalidConfiguration,
			}
		}
	}

	if c.Resilience.CircuitBreaker.Enabled && c.Resilience.CircuitBreaker.Threshold < 1 {
		return &OpError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("circuit breaker threshold must be at least 1, got %d", c.Resilience.CircuitBreaker.Threshold),
			Err:     ErrInvalidConfiguration,
		}
	}

	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		return &OpError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown log format: %q", c.Logging.Format),
			Err:     ErrInvalidConfiguration,
		}
	}

	return nil
}

// Helper functions

// firstEnv returns the first non-empty variable among names.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithName sets the client name used in logs and traces.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithAPIBaseURL sets the backend base URL, e.g. "http://localhost:8081".
// A trailing slash is dropped so paths can be joined verbatim.
func WithAPIBaseURL(baseURL string) Option {
	return func(c *Config) error {
		c.API.BaseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithAPITimeout sets the overall per-request timeout.
func WithAPITimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 {
			return &OpError{
				Op:      "WithAPITimeout",
				Kind:    "config",
				Message: fmt.Sprintf("invalid timeout: %s", timeout),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.API.Timeout = timeout
		return nil
	}
}

// WithSessionProvider selects the durable session store ("file", "redis", "memory").
func WithSessionProvider(provider string) Option {
	return func(c *Config) error {
		c.Session.Provider = strings.ToLower(provider)
		return nil
	}
}

// WithSessionPath sets the file used by the file session provider.
func WithSessionPath(path string) Option {
	return func(c *Config) error {
		c.Session.Path = path
		return nil
	}
}

// WithProfile namespaces the stored session, so several accounts can coexist.
func WithProfile(profile string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(profile) == "" {
			return &OpError{
				Op:      "WithProfile",
				Kind:    "config",
				Message: "profile name must not be blank",
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Session.Profile = profile
		return nil
	}
}

// WithRedisURL sets the Redis connection URL and switches sessions to Redis.
// Format: redis://[user:password@]host:port/db
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Session.RedisURL = url
		c.Session.Provider = "redis"
		return nil
	}
}

// WithCacheStaleTime sets how long fetched query results are served from cache.
func WithCacheStaleTime(d time.Duration) Option {
	return func(c *Config) error {
		c.Cache.StaleTime = d
		return nil
	}
}

// WithCircuitBreaker enables the circuit breaker on the API transport.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.Enabled = true
		c.Resilience.CircuitBreaker.Threshold = threshold
		c.Resilience.CircuitBreaker.Timeout = timeout
		return nil
	}
}

// WithTelemetry enables tracing with the given exporter ("otlp", "otlphttp"
// or "stdout"). The endpoint is ignored by stdout.
func WithTelemetry(exporter, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Exporter = strings.ToLower(exporter)
		c.Telemetry.Endpoint = endpoint
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = c.Name
		}
		return nil
	}
}

// WithMetrics enables the Prometheus collector and sets its listen address.
func WithMetrics(address string) Option {
	return func(c *Config) error {
		c.Metrics.Enabled = true
		if address != "" {
			c.Metrics.Address = address
		}
		return nil
	}
}

// WithLogLevel sets the minimum logging level (debug, info, warn, error).
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging output format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithConfigFile loads configuration from a JSON or YAML file.
// Options after it override file settings.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// WithEnvFile loads a dotenv file and re-applies environment variables.
// Place it first: it overrides anything set by earlier options.
func WithEnvFile(path string) Option {
	return func(c *Config) error {
		if err := LoadEnvFile(path); err != nil {
			return err
		}
		return c.LoadFromEnv()
	}
}

// WithDevelopmentMode enables debug logging with human-readable output.
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
			c.Logging.Level = "debug"
		}
		return nil
	}
}

// NewConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. Environment variables via LoadFromEnv()
//  3. Functional options (highest priority)
//  4. Validation via Validate()
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
