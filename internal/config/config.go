package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	WebHook   WebHookConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Store     StoreConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	LogLevel    string `yaml:"log_level"`
	WebhookPath string `yaml:"webhook_path"`
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	APIBaseURL     string
	GraphQLURL     string
	RequestTimeout time.Duration
	App            *GitHubAppConfig
}

// GitHubAppConfig configures an optional GitHub App installation used as the shared public token source.
type GitHubAppConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// WebHookConfig groups provider webhook settings. A nil provider block means the provider is not configured.
type WebHookConfig struct {
	GitHub *GitHubWebHookConfig
}

// GitHubWebHookConfig holds the recognized GitHub push ingestion options.
type GitHubWebHookConfig struct {
	Token           string
	NotBuiltCommits []string
	MaxRetries      int
	EncryptionKey   string
	DeliveryLockTTL time.Duration
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	// MaxWait caps a single rate-limit pause; longer pauses fail the call instead.
	MaxWait time.Duration
}

// RetryConfig configures the pause between retried GitHub calls.
type RetryConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// StoreConfig configures record storage and delivery locks.
type StoreConfig struct {
	Backend            string
	MongoURI           string
	MongoDatabase      string
	LockBackend        string
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
	Namespace          string
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
	// OTELExporterEndpoint is an OTLP/HTTP base URL such as http://collector:4318.
	// Empty keeps spans in process.
	OTELExporterEndpoint string
	// OTELExporterHeaders is a comma separated key=value list sent with every export.
	OTELExporterHeaders string
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	return LoadWithEnv(reader, nil)
}

// LoadWithEnv reads configuration from YAML, applies environment overrides and validates the result.
func LoadWithEnv(reader io.Reader, lookupEnv func(string) (string, bool)) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	if lookupEnv != nil {
		applyEnv(cfg, lookupEnv)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhook_path must start with /")
	}

	if app := c.GitHub.App; app != nil {
		if app.AppID <= 0 {
			errs = append(errs, "github.app.app_id must be > 0")
		}
		if app.InstallationID <= 0 {
			errs = append(errs, "github.app.installation_id must be > 0")
		}
		if app.PrivateKeyPath == "" {
			errs = append(errs, "github.app.private_key_path is required")
		}
	}

	if gh := c.WebHook.GitHub; gh != nil {
		if gh.MaxRetries < 0 {
			errs = append(errs, "webhook.github.max_retries must be >= 0")
		}
		for i, pattern := range gh.NotBuiltCommits {
			if _, err := regexp.Compile(pattern); err != nil {
				errs = append(errs, fmt.Sprintf("webhook.github.not_built_commits[%d] is not a valid regular expression", i))
			}
		}
	}

	switch c.Store.Backend {
	case "memory":
	case "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, "store.mongo_uri is required when store.backend=mongo")
		}
	default:
		errs = append(errs, "store.backend must be memory or mongo")
	}

	switch c.Store.LockBackend {
	case "memory":
	case "redis":
		if c.Store.RedisMode != "standalone" && c.Store.RedisMode != "sentinel" {
			errs = append(errs, "store.redis_mode must be standalone or sentinel")
		}
		if c.Store.RedisMode == "sentinel" && len(c.Store.RedisSentinelAddrs) == 0 {
			errs = append(errs, "store.redis_sentinel_addrs is required when store.redis_mode=sentinel")
		}
	default:
		errs = append(errs, "store.lock_backend must be memory or redis")
	}

	if endpoint := c.Telemetry.OTELExporterEndpoint; endpoint != "" &&
		!strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		errs = append(errs, "telemetry.otel_exporter_endpoint must be an http or https URL")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = "/webhook/github/v3"
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 20 * time.Second
	}
	if cfg.RateLimit.MaxWait <= 0 {
		cfg.RateLimit.MaxWait = time.Minute
	}
	if gh := cfg.WebHook.GitHub; gh != nil && gh.DeliveryLockTTL <= 0 {
		gh.DeliveryLockTTL = 5 * time.Minute
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.MongoDatabase == "" {
		cfg.Store.MongoDatabase = "dashboarddb"
	}
	if cfg.Store.LockBackend == "" {
		cfg.Store.LockBackend = "memory"
	}
	if cfg.Store.RedisMode == "" {
		cfg.Store.RedisMode = "standalone"
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "commit-ingest"
	}
}

// Environment variables that override secret-bearing settings.
const (
	EnvGitHubToken   = "COMMIT_INGEST_GITHUB_TOKEN"
	EnvEncryptionKey = "COMMIT_INGEST_ENCRYPTION_KEY"
	EnvMongoURI      = "COMMIT_INGEST_MONGO_URI"
	EnvRedisPassword = "COMMIT_INGEST_REDIS_PASSWORD"
	EnvOTELHeaders   = "COMMIT_INGEST_OTEL_EXPORTER_HEADERS"
)

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) {
	if value, ok := lookupEnv(EnvGitHubToken); ok && value != "" {
		ensureGitHubWebHook(cfg).Token = value
	}
	if value, ok := lookupEnv(EnvEncryptionKey); ok && value != "" {
		ensureGitHubWebHook(cfg).EncryptionKey = value
	}
	if value, ok := lookupEnv(EnvMongoURI); ok && value != "" {
		cfg.Store.MongoURI = value
	}
	if value, ok := lookupEnv(EnvRedisPassword); ok && value != "" {
		cfg.Store.RedisPassword = value
	}
	if value, ok := lookupEnv(EnvOTELHeaders); ok && value != "" {
		cfg.Telemetry.OTELExporterHeaders = value
	}
}

func ensureGitHubWebHook(cfg *Config) *GitHubWebHookConfig {
	if cfg.WebHook.GitHub == nil {
		cfg.WebHook.GitHub = &GitHubWebHookConfig{}
	}
	return cfg.WebHook.GitHub
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    ServerConfig `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	WebHook   rawWebHook   `yaml:"webhook"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Store     rawStore     `yaml:"store"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL     string           `yaml:"api_base_url"`
	GraphQLURL     string           `yaml:"graphql_url"`
	RequestTimeout duration         `yaml:"request_timeout"`
	App            *GitHubAppConfig `yaml:"app"`
}

type rawWebHook struct {
	GitHub *rawGitHubWebHook `yaml:"github"`
}

type rawGitHubWebHook struct {
	Token           string   `yaml:"token"`
	NotBuiltCommits []string `yaml:"not_built_commits"`
	MaxRetries      int      `yaml:"max_retries"`
	EncryptionKey   string   `yaml:"encryption_key"`
	DeliveryLockTTL duration `yaml:"delivery_lock_ttl"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
	MaxWait               duration `yaml:"max_wait"`
}

type rawRetry struct {
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawStore struct {
	Backend            string   `yaml:"backend"`
	MongoURI           string   `yaml:"mongo_uri"`
	MongoDatabase      string   `yaml:"mongo_database"`
	LockBackend        string   `yaml:"lock_backend"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
	Namespace          string   `yaml:"namespace"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
	OTELExporterEndpoint string  `yaml:"otel_exporter_endpoint"`
	OTELExporterHeaders  string  `yaml:"otel_exporter_headers"`
}

func (r rawConfig) toConfig() *Config {
	cfg := &Config{
		Server: r.Server,
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			GraphQLURL:     r.GitHub.GraphQLURL,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			App:            r.GitHub.App,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
			MaxWait:               r.RateLimit.MaxWait.Duration,
		},
		Retry: RetryConfig{
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Store: StoreConfig{
			Backend:            r.Store.Backend,
			MongoURI:           r.Store.MongoURI,
			MongoDatabase:      r.Store.MongoDatabase,
			LockBackend:        r.Store.LockBackend,
			RedisMode:          r.Store.RedisMode,
			RedisAddr:          r.Store.RedisAddr,
			RedisMasterSet:     r.Store.RedisMasterSet,
			RedisSentinelAddrs: r.Store.RedisSentinelAddrs,
			RedisPassword:      r.Store.RedisPassword,
			RedisDB:            r.Store.RedisDB,
			Namespace:          r.Store.Namespace,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
			OTELExporterEndpoint: r.Telemetry.OTELExporterEndpoint,
			OTELExporterHeaders:  r.Telemetry.OTELExporterHeaders,
		},
	}

	if gh := r.WebHook.GitHub; gh != nil {
		cfg.WebHook.GitHub = &GitHubWebHookConfig{
			Token:           gh.Token,
			NotBuiltCommits: slices.Clone(gh.NotBuiltCommits),
			MaxRetries:      gh.MaxRetries,
			EncryptionKey:   gh.EncryptionKey,
			DeliveryLockTTL: gh.DeliveryLockTTL.Duration,
		}
	}

	return cfg
}
