package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/initia-labs/soldebug/types"
)

var (
	Version    = "dev"
	CommitHash = "unknown"

	// Singleton instance
	configInstance *Config
	configOnce     sync.Once
)

// Default configuration constants
const (
	DefaultMetricsPort = "9090"
	MinPortNumber      = 1
	MaxPortNumber      = 65535

	// Cache settings
	DefaultCodeCacheSize     = 1024
	DefaultCodeCacheTTL      = 10 * time.Minute
	DefaultPreimageCacheSize = 40960

	// Timeout settings
	DefaultQueryTimeout = 30 * time.Second

	// Concurrent request settings
	DefaultMaxConcurrentRequests = 16
	MaxAllowedConcurrentRequests = 1000

	// Metrics settings
	DefaultMetricsPath = "/metrics"

	// Default environment
	DefaultEnvironment = "local"
)

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Port    string `json:"port"`
}

// CacheConfig contains configuration for the chain lookup caches
type CacheConfig struct {
	CodeCacheSize     int           `json:"code_cache_size"`
	CodeCacheTTL      time.Duration `json:"code_cache_ttl"`
	PreimageCacheSize int           `json:"preimage_cache_size"`
}

// SentryConfig contains configuration for Sentry integration
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	SampleRate       float64 `json:"sample_rate"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Environment      string  `json:"environment"`
}

func SetBuildInfo(v, commit string) {
	Version = v
	CommitHash = commit
}

type Config struct {
	chainConfig           *ChainConfig
	debuggerConfig        *DebuggerConfig
	logLevel              string
	logFormat             string
	queryTimeout          time.Duration
	maxConcurrentRequests int
	metricsConfig         *MetricsConfig
	cacheConfig           *CacheConfig
	sentryConfig          *SentryConfig
}

func setDefaults() {
	viper.SetDefault("QUERY_TIMEOUT", DefaultQueryTimeout)
	viper.SetDefault("MAX_CONCURRENT_REQUESTS", DefaultMaxConcurrentRequests)
	viper.SetDefault("LOG_LEVEL", "warn")
	viper.SetDefault("LOG_FORMAT", "plain")
	viper.SetDefault("METRICS_ENABLED", false)
	viper.SetDefault("METRICS_PATH", DefaultMetricsPath)
	viper.SetDefault("METRICS_PORT", DefaultMetricsPort)
	viper.SetDefault("ENVIRONMENT", DefaultEnvironment)

	// Debugger defaults
	viper.SetDefault("STORAGE_PAGE_SIZE", DefaultStoragePageSize)
	viper.SetDefault("STORAGE_MAX_PAGES", DefaultStorageMaxPages)
	viper.SetDefault("STORAGE_ARRAY_CAP", DefaultStorageArrayCap)
	viper.SetDefault("MEMORY_ARRAY_CAP", DefaultMemoryArrayCap)
	viper.SetDefault("MAX_SCOPE_DEPTH", DefaultMaxScopeDepth)
	viper.SetDefault("REVERT_POLICY", string(RevertClearAll))

	// Sentry defaults
	viper.SetDefault("SENTRY_DSN", "")
	viper.SetDefault("SENTRY_SAMPLE_RATE", 1.0)
	viper.SetDefault("SENTRY_TRACES_SAMPLE_RATE", 0.01)

	// Cache defaults
	viper.SetDefault("CODE_CACHE_SIZE", DefaultCodeCacheSize)
	viper.SetDefault("CODE_CACHE_TTL", DefaultCodeCacheTTL)
	viper.SetDefault("PREIMAGE_CACHE_SIZE", DefaultPreimageCacheSize)

	// JSON_RPC_URL has no default, offline commands do not need it
}

func GetConfig() (*Config, error) {
	var err error

	configOnce.Do(func() {
		configInstance, err = loadConfig()
	})

	return configInstance, err
}

func loadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// just log without panic, local testing purpose only
		fmt.Fprintln(os.Stderr, "No .env file found")
	}
	viper.AutomaticEnv()
	setDefaults()

	cc := &ChainConfig{
		JsonRpcUrls: splitURLs(viper.GetString("JSON_RPC_URL")),
		Environment: viper.GetString("ENVIRONMENT"),
	}

	config := &Config{
		chainConfig: cc,
		debuggerConfig: &DebuggerConfig{
			StoragePageSize: viper.GetInt("STORAGE_PAGE_SIZE"),
			StorageMaxPages: viper.GetInt("STORAGE_MAX_PAGES"),
			StorageArrayCap: viper.GetInt("STORAGE_ARRAY_CAP"),
			MemoryArrayCap:  viper.GetInt("MEMORY_ARRAY_CAP"),
			MaxScopeDepth:   viper.GetInt("MAX_SCOPE_DEPTH"),
			RevertPolicy:    RevertPolicy(viper.GetString("REVERT_POLICY")),
		},
		logLevel:              viper.GetString("LOG_LEVEL"),
		logFormat:             viper.GetString("LOG_FORMAT"),
		queryTimeout:          viper.GetDuration("QUERY_TIMEOUT"),
		maxConcurrentRequests: viper.GetInt("MAX_CONCURRENT_REQUESTS"),
		metricsConfig: &MetricsConfig{
			Enabled: viper.GetBool("METRICS_ENABLED"),
			Path:    viper.GetString("METRICS_PATH"),
			Port:    viper.GetString("METRICS_PORT"),
		},
		cacheConfig: &CacheConfig{
			CodeCacheSize:     viper.GetInt("CODE_CACHE_SIZE"),
			CodeCacheTTL:      viper.GetDuration("CODE_CACHE_TTL"),
			PreimageCacheSize: viper.GetInt("PREIMAGE_CACHE_SIZE"),
		},
		sentryConfig: &SentryConfig{
			DSN:              viper.GetString("SENTRY_DSN"),
			SampleRate:       viper.GetFloat64("SENTRY_SAMPLE_RATE"),
			TracesSampleRate: viper.GetFloat64("SENTRY_TRACES_SAMPLE_RATE"),
			Environment:      viper.GetString("ENVIRONMENT"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func splitURLs(raw string) []string {
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// NewDefaultConfig returns a config populated with defaults and no chain endpoint.
func NewDefaultConfig() *Config {
	return &Config{
		chainConfig:           &ChainConfig{Environment: DefaultEnvironment},
		debuggerConfig:        DefaultDebuggerConfig(),
		logLevel:              "warn",
		logFormat:             "plain",
		queryTimeout:          DefaultQueryTimeout,
		maxConcurrentRequests: DefaultMaxConcurrentRequests,
		metricsConfig:         &MetricsConfig{Path: DefaultMetricsPath, Port: DefaultMetricsPort},
		cacheConfig: &CacheConfig{
			CodeCacheSize:     DefaultCodeCacheSize,
			CodeCacheTTL:      DefaultCodeCacheTTL,
			PreimageCacheSize: DefaultPreimageCacheSize,
		},
		sentryConfig: &SentryConfig{Environment: DefaultEnvironment},
	}
}

// SetChainConfig assigns the chain config for testing purposes.
func (c *Config) SetChainConfig(chainCfg *ChainConfig) {
	c.chainConfig = chainCfg
}

func (c Config) GetChainConfig() *ChainConfig {
	return c.chainConfig
}

// SetDebuggerConfig assigns the debugger config for testing purposes.
func (c *Config) SetDebuggerConfig(debuggerCfg *DebuggerConfig) {
	c.debuggerConfig = debuggerCfg
}

func (c Config) GetDebuggerConfig() *DebuggerConfig {
	return c.debuggerConfig
}

// SetLogSettings assigns log level and format for testing purposes.
func (c *Config) SetLogSettings(level, format string) {
	c.logLevel = level
	c.logFormat = format
}

func (c Config) GetSentryConfig() *SentryConfig {
	if c.sentryConfig == nil || c.sentryConfig.DSN == "" {
		return nil
	}
	return c.sentryConfig
}

func (c Config) GetLogLevel() slog.Level {
	switch c.logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func (c Config) GetQueryTimeout() time.Duration {
	return c.queryTimeout
}

func (c Config) GetMaxConcurrentRequests() int {
	return c.maxConcurrentRequests
}

func (c Config) GetMetricsConfig() *MetricsConfig {
	return c.metricsConfig
}

func (c Config) GetCacheConfig() *CacheConfig {
	return c.cacheConfig
}

func (c Config) GetLogFormat() string {
	if c.logFormat == "json" {
		return "json"
	}
	return "plain"
}

func (c Config) Validate() error {
	if err := c.validateLogSettings(); err != nil {
		return err
	}
	if err := c.validateNumericSettings(); err != nil {
		return err
	}
	if err := c.validateMetricsConfig(); err != nil {
		return err
	}
	if err := c.validateSubConfigs(); err != nil {
		return err
	}
	return nil
}

// validateLogSettings validates log format and level configuration
func (c Config) validateLogSettings() error {
	switch c.logFormat {
	case "json", "plain":
		break
	default:
		return types.NewValidationError("LOG_FORMAT", fmt.Sprintf("invalid value '%s', must be 'json' or 'plain'", c.logFormat))
	}

	switch c.logLevel {
	case "debug", "info", "warn", "error":
		break
	default:
		return types.NewValidationError("LOG_LEVEL", fmt.Sprintf("invalid value '%s', must be one of: debug, info, warn, error", c.logLevel))
	}
	return nil
}

// validateNumericSettings validates all numeric configuration values
func (c Config) validateNumericSettings() error {
	if c.queryTimeout <= 0 {
		return types.NewValidationError("QUERY_TIMEOUT", "must be positive")
	}
	if c.maxConcurrentRequests < 1 {
		return types.NewValidationError("MAX_CONCURRENT_REQUESTS", "must be at least 1")
	}
	if c.maxConcurrentRequests > MaxAllowedConcurrentRequests {
		return types.NewInvalidValueError("MAX_CONCURRENT_REQUESTS", fmt.Sprintf("%d", c.maxConcurrentRequests), fmt.Sprintf("must not exceed %d", MaxAllowedConcurrentRequests))
	}
	if c.cacheConfig != nil {
		if c.cacheConfig.CodeCacheSize < 1 {
			return types.NewValidationError("CODE_CACHE_SIZE", "must be at least 1")
		}
		if c.cacheConfig.CodeCacheTTL < 0 {
			return types.NewValidationError("CODE_CACHE_TTL", "must be non-negative")
		}
		if c.cacheConfig.PreimageCacheSize < 1 {
			return types.NewValidationError("PREIMAGE_CACHE_SIZE", "must be at least 1")
		}
	}
	return nil
}

// validateMetricsConfig validates metrics configuration
func (c Config) validateMetricsConfig() error {
	if c.metricsConfig == nil || !c.metricsConfig.Enabled {
		return nil
	}
	if port, err := strconv.Atoi(c.metricsConfig.Port); err != nil || port < MinPortNumber || port > MaxPortNumber {
		return types.NewValidationError("METRICS_PORT", fmt.Sprintf("must be a valid port number (%d-%d)", MinPortNumber, MaxPortNumber))
	}
	if c.metricsConfig.Path == "" || c.metricsConfig.Path[0] != '/' {
		return types.NewValidationError("METRICS_PATH", "must start with '/'")
	}
	return nil
}

// validateSubConfigs validates nested configuration objects
func (c Config) validateSubConfigs() error {
	if err := c.chainConfig.Validate(); err != nil {
		return err
	}
	if err := c.debuggerConfig.Validate(); err != nil {
		return err
	}
	return nil
}
