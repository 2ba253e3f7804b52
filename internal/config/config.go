package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/richvergo/subtract-sub005/internal/retry"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

type (
	// Config holds configuration settings for the workflow runner
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Stores
		StoreBackend   string
		Redis          RedisConfig
		BadgerPath     string
		WorkflowDir    string
		CredentialsKey string

		// Artifacts
		ArtifactBucketURL string
		ArtifactBaseURL   string

		// Browser
		BrowserRemoteURL string
		Headless         bool

		// Retry
		RetryPreset string
		Retry       retry.Policy

		// Engine
		StepTimeout     int64
		RunTimeout      int64
		RuleCacheSize   int
		ShutdownTimeout time.Duration
	}

	// RedisConfig locates the Redis instance backing the stores
	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}
)

const (
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

const (
	DefaultStepTimeout     = 30 * api.Second
	DefaultRunTimeout      = 30 * api.Minute
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0
	MaxRedisDB     = 15

	DefaultRedisEndpoint     = "localhost:6379"
	DefaultRedisPrefix       = "runner"
	DefaultBadgerPath        = "data/runs"
	DefaultArtifactBucketURL = "mem://"
	DefaultRuleCacheSize     = 1024
	DefaultStoreBackend      = BackendRedis

	MaxRuleCacheSize    = 1_000_000
	MaxStepTimeout      = 24 * 60 * api.Minute
	MaxRunTimeout       = 7 * 24 * 60 * api.Minute
	MaxRetryAttempts    = 100
	MaxRetryDelayMillis = 60 * api.Minute
)

var (
	ErrInvalidAPIPort      = errors.New("invalid API port")
	ErrInvalidStepTimeout  = errors.New("step timeout must be positive")
	ErrInvalidRunTimeout   = errors.New("run timeout cannot be negative")
	ErrInvalidStoreBackend = errors.New("invalid store backend")
	ErrInvalidCredKey      = errors.New("invalid credentials key")
	ErrInvalidRetryPolicy  = errors.New("invalid retry policy")
	ErrInvalidEnvValue     = errors.New("invalid environment value")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// server, stores, browser, and retry behavior
func NewDefaultConfig() *Config {
	return &Config{
		APIPort:      DefaultAPIPort,
		APIHost:      DefaultAPIHost,
		StoreBackend: DefaultStoreBackend,
		Redis: RedisConfig{
			Addr:   DefaultRedisEndpoint,
			DB:     DefaultRedisDB,
			Prefix: DefaultRedisPrefix,
		},
		BadgerPath:        DefaultBadgerPath,
		ArtifactBucketURL: DefaultArtifactBucketURL,
		Headless:          true,
		RetryPreset:       retry.PresetDefault,
		Retry:             retry.Default,
		StepTimeout:       DefaultStepTimeout,
		RunTimeout:        DefaultRunTimeout,
		RuleCacheSize:     DefaultRuleCacheSize,
		ShutdownTimeout:   DefaultShutdownTimeout,
		LogLevel:          "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("STORE_BACKEND", &c.StoreBackend)
	loadEnvString("REDIS_ADDR", &c.Redis.Addr)
	loadEnvString("REDIS_PASSWORD", &c.Redis.Password)
	loadEnvString("REDIS_PREFIX", &c.Redis.Prefix)
	loadEnvString("BADGER_PATH", &c.BadgerPath)
	loadEnvString("WORKFLOW_DIR", &c.WorkflowDir)
	loadEnvString("CREDENTIALS_KEY", &c.CredentialsKey)
	loadEnvString("ARTIFACT_BUCKET_URL", &c.ArtifactBucketURL)
	loadEnvString("ARTIFACT_BASE_URL", &c.ArtifactBaseURL)
	loadEnvString("BROWSER_REMOTE_URL", &c.BrowserRemoteURL)

	if err := loadEnvBool("BROWSER_HEADLESS", &c.Headless); err != nil {
		return err
	}
	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"REDIS_DB", &c.Redis.DB, -1, MaxRedisDB,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STEP_TIMEOUT", &c.StepTimeout, 0, MaxStepTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RUN_TIMEOUT", &c.RunTimeout, -1, MaxRunTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RULE_CACHE_SIZE", &c.RuleCacheSize, 0, MaxRuleCacheSize,
	); err != nil {
		return err
	}

	return c.loadRetryFromEnv()
}

func (c *Config) loadRetryFromEnv() error {
	if name := os.Getenv("RETRY_PRESET"); name != "" {
		p, err := retry.Preset(name)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRetryPolicy, err)
		}
		c.RetryPreset = name
		c.Retry = p
	}

	if err := loadEnvInt(
		"RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts, 0, MaxRetryAttempts,
	); err != nil {
		return err
	}
	if err := loadEnvMillis(
		"RETRY_BASE_DELAY", &c.Retry.BaseDelay, MaxRetryDelayMillis,
	); err != nil {
		return err
	}
	return loadEnvMillis(
		"RETRY_MAX_DELAY", &c.Retry.MaxDelay, MaxRetryDelayMillis,
	)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.StepTimeout <= 0 {
		return ErrInvalidStepTimeout
	}

	if c.RunTimeout < 0 {
		return ErrInvalidRunTimeout
	}

	if c.StoreBackend != BackendRedis && c.StoreBackend != BackendBadger {
		return fmt.Errorf("%w: %s", ErrInvalidStoreBackend, c.StoreBackend)
	}

	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRetryPolicy, err)
	}

	if c.CredentialsKey != "" {
		if _, err := c.CredentialsKeyBytes(); err != nil {
			return err
		}
	}

	return nil
}

// CredentialsKeyBytes decodes the hex credentials key into the raw key used
// to open sealed credentials
func (c *Config) CredentialsKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredKey, err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidCredKey, chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

// DefaultSettings returns the engine-wide workflow settings that apply when
// neither the workflow nor the run overrides them
func (c *Config) DefaultSettings() api.Settings {
	return api.Settings{
		Timeout:       c.StepTimeout,
		RetryAttempts: c.Retry.MaxAttempts,
		Headless:      c.Headless,
	}
}

func loadEnvString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnvValue, key, s)
	}
	*dst = v
	return nil
}

func loadEnvMillis(key string, dst *time.Duration, max int64) error {
	ms := int64(-1)
	if err := loadEnvInt(key, &ms, -1, max); err != nil {
		return err
	}
	if ms >= 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnvValue, key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("%w: %s=%d out of range [%d, %d]",
			ErrInvalidEnvValue, key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
