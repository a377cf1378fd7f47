package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type (
	// Config holds configuration settings for the workflow service
	Config struct {
		// API Server
		APIHost   string `toml:"api_host"`
		APIPort   int    `toml:"api_port"`
		LogLevel  string `toml:"log_level"`
		LogFormat string `toml:"log_format"`

		// Stores & Events
		Store    StoreConfig    `toml:"store"`
		Events   EventsConfig   `toml:"events"`
		Artifact ArtifactConfig `toml:"artifact"`

		// Engine
		MaxSteps         int `toml:"max_steps"`
		IterationLimit   int `toml:"iteration_limit"`
		SubscriberBuffer int `toml:"subscriber_buffer"`

		// Collaborators
		Services    ServicesConfig `toml:"services"`
		LLM         LLMConfig      `toml:"llm"`
		CatalogPath string         `toml:"catalog_path"`

		ShutdownTimeout Duration `toml:"shutdown_timeout"`
	}

	// Duration is a time.Duration that decodes from strings such as "15s"
	Duration time.Duration

	// StoreConfig selects and configures the session store backend
	StoreConfig struct {
		Backend     string      `toml:"backend"`
		Redis       RedisConfig `toml:"redis"`
		PostgresURL string      `toml:"postgres_url"`
	}

	// RedisConfig holds the connection settings for a Redis backend
	RedisConfig struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
	}

	// EventsConfig selects the event sink backend
	EventsConfig struct {
		Backend string `toml:"backend"`
	}

	// ArtifactConfig locates the bucket that receives rendered summaries
	ArtifactConfig struct {
		BucketURL string `toml:"bucket_url"`
		Prefix    string `toml:"prefix"`
	}

	// ServicesConfig configures the remote collaborator services
	ServicesConfig struct {
		BaseURL     string   `toml:"base_url"`
		Timeout     Duration `toml:"timeout"`
		MaxAttempts int      `toml:"max_attempts"`
		BaseBackoff Duration `toml:"base_backoff"`
		MaxBackoff  Duration `toml:"max_backoff"`
		RateLimit   float64  `toml:"rate_limit"`
	}

	// LLMConfig configures the language-model collaborators
	LLMConfig struct {
		Enabled   bool   `toml:"enabled"`
		Model     string `toml:"model"`
		MaxTokens int64  `toml:"max_tokens"`
	}
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const (
	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "medagent"
	DefaultRedisDB       = 0

	DefaultMaxSteps         = 64
	DefaultIterationLimit   = 10
	DefaultSubscriberBuffer = 64
	DefaultShutdownTimeout  = 10 * time.Second

	DefaultServiceTimeout     = 15 * time.Second
	DefaultServiceAttempts    = 3
	DefaultServiceBaseBackoff = 250 * time.Millisecond
	DefaultServiceMaxBackoff  = 5 * time.Second
	DefaultServiceRateLimit   = 20

	DefaultLLMModel     = "claude-sonnet-4-5"
	DefaultLLMMaxTokens = 1024

	DefaultArtifactBucket = "mem://"
	DefaultArtifactPrefix = "summaries/"

	MaxMaxSteps         = 10_000
	MaxIterationLimit   = 1_000
	MaxSubscriberBuffer = 1 << 16
	MaxServiceAttempts  = 20
)

var (
	ErrInvalidAPIPort        = errors.New("invalid API port")
	ErrInvalidMaxSteps       = errors.New("max steps must be positive")
	ErrInvalidIterationLimit = errors.New("iteration limit must be positive")
	ErrInvalidBuffer         = errors.New("subscriber buffer must be positive")
	ErrInvalidStoreBackend   = errors.New("invalid store backend")
	ErrInvalidEventsBackend  = errors.New("invalid events backend")
	ErrMissingPostgresURL    = errors.New("postgres backend requires a URL")
	ErrInvalidAttempts       = errors.New("service attempts must be positive")
	ErrBackoffTooSmall       = errors.New(
		"service max backoff must be >= base backoff",
	)
	ErrReadConfigFile  = errors.New("failed to read config file")
	ErrParseConfigFile = errors.New("failed to parse config file")
)

// NewDefaultConfig creates a configuration with in-process backends and
// engine limits suitable for local use
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:   DefaultAPIHost,
		APIPort:   DefaultAPIPort,
		LogLevel:  "info",
		LogFormat: "json",
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:   DefaultRedisEndpoint,
				DB:     DefaultRedisDB,
				Prefix: DefaultRedisPrefix,
			},
		},
		Events: EventsConfig{
			Backend: BackendMemory,
		},
		Artifact: ArtifactConfig{
			BucketURL: DefaultArtifactBucket,
			Prefix:    DefaultArtifactPrefix,
		},
		MaxSteps:         DefaultMaxSteps,
		IterationLimit:   DefaultIterationLimit,
		SubscriberBuffer: DefaultSubscriberBuffer,
		Services: ServicesConfig{
			Timeout:     Duration(DefaultServiceTimeout),
			MaxAttempts: DefaultServiceAttempts,
			BaseBackoff: Duration(DefaultServiceBaseBackoff),
			MaxBackoff:  Duration(DefaultServiceMaxBackoff),
			RateLimit:   DefaultServiceRateLimit,
		},
		LLM: LLMConfig{
			Model:     DefaultLLMModel,
			MaxTokens: DefaultLLMMaxTokens,
		},
		ShutdownTimeout: Duration(DefaultShutdownTimeout),
	}
}

// LoadFile overlays values from a TOML file onto the configuration. Keys
// absent from the file keep their current values
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadConfigFile, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %w", ErrParseConfigFile, err)
	}
	return nil
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("LOG_FORMAT", &c.LogFormat)
	loadEnvString("STORE_BACKEND", &c.Store.Backend)
	loadEnvString("POSTGRES_URL", &c.Store.PostgresURL)
	loadEnvString("EVENTS_BACKEND", &c.Events.Backend)
	loadEnvString("ARTIFACT_BUCKET_URL", &c.Artifact.BucketURL)
	loadEnvString("ARTIFACT_PREFIX", &c.Artifact.Prefix)
	loadEnvString("SERVICES_BASE_URL", &c.Services.BaseURL)
	loadEnvString("LLM_MODEL", &c.LLM.Model)
	loadEnvString("CATALOG_PATH", &c.CatalogPath)
	LoadRedisConfigFromEnv(&c.Store.Redis, "STORE")

	if v := os.Getenv("LLM_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LLM_ENABLED: %q", v)
		}
		c.LLM.Enabled = enabled
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MAX_STEPS", &c.MaxSteps, 0, MaxMaxSteps,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"ITERATION_LIMIT", &c.IterationLimit, 0, MaxIterationLimit,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SUBSCRIBER_BUFFER", &c.SubscriberBuffer, 0, MaxSubscriberBuffer,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SERVICES_MAX_ATTEMPTS", &c.Services.MaxAttempts, 0,
		MaxServiceAttempts,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"LLM_MAX_TOKENS", &c.LLM.MaxTokens, 0, 1<<20,
	); err != nil {
		return err
	}

	if err := loadEnvDuration(
		"SERVICES_TIMEOUT", &c.Services.Timeout,
	); err != nil {
		return err
	}
	return loadEnvDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.MaxSteps <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxSteps, c.MaxSteps)
	}

	if c.IterationLimit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterationLimit, c.IterationLimit)
	}

	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBuffer, c.SubscriberBuffer)
	}

	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.Store.PostgresURL == "" {
			return ErrMissingPostgresURL
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStoreBackend, c.Store.Backend)
	}

	switch c.Events.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidEventsBackend, c.Events.Backend)
	}

	if c.Services.MaxAttempts <= 0 {
		return ErrInvalidAttempts
	}

	if c.Services.MaxBackoff < c.Services.BaseBackoff {
		return ErrBackoffTooSmall
	}

	return nil
}

// LoadRedisConfigFromEnv loads Redis configuration from environment
// variables with the given prefix (e.g., "STORE")
func LoadRedisConfigFromEnv(r *RedisConfig, prefix string) {
	loadEnvString(prefix+"_REDIS_ADDR", &r.Addr)
	loadEnvString(prefix+"_REDIS_PASSWORD", &r.Password)
	loadEnvString(prefix+"_REDIS_PREFIX", &r.Prefix)
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil && db >= 0 {
			r.DB = db
		}
	}
}

func loadEnvString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func loadEnvDuration(key string, dst *Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	if err := dst.UnmarshalText([]byte(s)); err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalText parses a positive Go duration string
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("duration must be positive: %s", b)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in Go syntax
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
