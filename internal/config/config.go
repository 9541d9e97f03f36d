// Package config provides configuration management for the Azure DevOps MCP server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirforce/devops-mcp/internal/shaping"
)

// Config holds all configuration for the MCP server
type Config struct {
	// Azure DevOps organization
	OrganizationURL string `json:"organization_url" yaml:"organization_url"`
	Project         string `json:"project,omitempty" yaml:"project,omitempty"` // Default project for tools that omit one
	PAT             string `json:"pat,omitempty" yaml:"-"`                     // Personal access token, env only
	BearerToken     string `json:"bearer_token,omitempty" yaml:"-"`            // Entra ID token, env only
	APIVersion      string `json:"api_version" yaml:"api_version"`

	// HTTP Client Configuration
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries      int           `json:"max_retries" yaml:"max_retries"`
	RetryWaitMin    time.Duration `json:"retry_wait_min" yaml:"retry_wait_min"`
	RetryWaitMax    time.Duration `json:"retry_wait_max" yaml:"retry_wait_max"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `json:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	QueryTimeout    time.Duration `json:"query_timeout" yaml:"query_timeout"` // Per-tool timeout for WIQL + fetch
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Rate Limiting
	RateLimit       int  `json:"rate_limit" yaml:"rate_limit"`             // requests per second
	RateLimitBurst  int  `json:"rate_limit_burst" yaml:"rate_limit_burst"` // burst size
	EnableRateLimit bool `json:"enable_rate_limit" yaml:"enable_rate_limit"`

	// Security
	TLSVerify bool `json:"tls_verify" yaml:"tls_verify"`

	// Response shaping
	ItemThreshold   int  `json:"item_threshold" yaml:"item_threshold"`
	SoftLimitBytes  int  `json:"soft_limit_bytes" yaml:"soft_limit_bytes"`
	HardLimitBytes  int  `json:"hard_limit_bytes" yaml:"hard_limit_bytes"`
	DefaultPageSize int  `json:"default_page_size" yaml:"default_page_size"`
	MaxQueryResults int  `json:"max_query_results" yaml:"max_query_results"` // WIQL $top
	CompactDefault  bool `json:"compact_default" yaml:"compact_default"`

	// Observability
	EnableTracing   bool   `json:"enable_tracing" yaml:"enable_tracing"`
	EnableAuditLog  bool   `json:"enable_audit_log" yaml:"enable_audit_log"`
	MetricsEndpoint bool   `json:"metrics_endpoint" yaml:"metrics_endpoint"`
	HealthPort      int    `json:"health_port" yaml:"health_port"` // 0 disables the health server
	HealthBindAddr  string `json:"health_bind_addr" yaml:"health_bind_addr"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"` // json or console
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	limits := shaping.DefaultLimits()
	return &Config{
		APIVersion:      "7.1",
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    1 * time.Second,
		RetryWaitMax:    30 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
		QueryTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit:       20,
		RateLimitBurst:  10,
		EnableRateLimit: true,
		TLSVerify:       true,
		// Shaping defaults
		ItemThreshold:   limits.ItemThreshold,
		SoftLimitBytes:  limits.SoftLimitBytes,
		HardLimitBytes:  limits.HardLimitBytes,
		DefaultPageSize: 50,
		MaxQueryResults: 1000,
		CompactDefault:  true,
		// Observability defaults
		EnableTracing:   true,
		EnableAuditLog:  true,
		MetricsEndpoint: false,
		HealthBindAddr:  "127.0.0.1",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Load configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := Default()

	// Try to load from config file if specified
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	loadFromEnv(cfg)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)

	// Prevent path traversal by checking for ".." components
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return nil
	default:
		return json.Unmarshal(data, cfg)
	}
}

func loadFromEnv(cfg *Config) {
	envString("AZDO_ORG_URL", &cfg.OrganizationURL)
	envString("AZDO_PROJECT", &cfg.Project)
	envString("AZDO_PAT", &cfg.PAT)
	envString("AZDO_BEARER_TOKEN", &cfg.BearerToken)
	envString("AZDO_API_VERSION", &cfg.APIVersion)

	envDuration("AZDO_TIMEOUT", &cfg.Timeout)
	envDuration("AZDO_QUERY_TIMEOUT", &cfg.QueryTimeout)
	envDuration("AZDO_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	envInt("AZDO_MAX_RETRIES", &cfg.MaxRetries)

	envInt("AZDO_RATE_LIMIT", &cfg.RateLimit)
	envInt("AZDO_RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	envBool("AZDO_ENABLE_RATE_LIMIT", &cfg.EnableRateLimit)
	envBool("AZDO_TLS_VERIFY", &cfg.TLSVerify)

	envInt("AZDO_ITEM_THRESHOLD", &cfg.ItemThreshold)
	envInt("AZDO_SOFT_LIMIT_BYTES", &cfg.SoftLimitBytes)
	envInt("AZDO_HARD_LIMIT_BYTES", &cfg.HardLimitBytes)
	envInt("AZDO_DEFAULT_PAGE_SIZE", &cfg.DefaultPageSize)
	envInt("AZDO_MAX_QUERY_RESULTS", &cfg.MaxQueryResults)
	envBool("AZDO_COMPACT_DEFAULT", &cfg.CompactDefault)

	envBool("AZDO_ENABLE_TRACING", &cfg.EnableTracing)
	envBool("AZDO_ENABLE_AUDIT_LOG", &cfg.EnableAuditLog)
	envBool("AZDO_METRICS_ENDPOINT", &cfg.MetricsEndpoint)
	envInt("AZDO_HEALTH_PORT", &cfg.HealthPort)
	envString("AZDO_HEALTH_BIND_ADDR", &cfg.HealthBindAddr)

	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("LOG_FORMAT", &cfg.LogFormat)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OrganizationURL == "" {
		return errors.New("AZDO_ORG_URL is required")
	}
	u, err := url.Parse(c.OrganizationURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("AZDO_ORG_URL is not a valid URL: %s", c.OrganizationURL)
	}
	if u.Scheme != "https" {
		return errors.New("AZDO_ORG_URL must use https")
	}
	if c.PAT == "" && c.BearerToken == "" {
		return errors.New("AZDO_PAT or AZDO_BEARER_TOKEN is required")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries must be non-negative")
	}
	if c.RateLimit <= 0 && c.EnableRateLimit {
		return errors.New("rate_limit must be positive when rate limiting is enabled")
	}
	if err := c.ShapingLimits().Validate(); err != nil {
		return fmt.Errorf("invalid shaping limits: %w", err)
	}
	if c.DefaultPageSize <= 0 {
		return errors.New("default_page_size must be positive")
	}
	if c.MaxQueryResults <= 0 {
		return errors.New("max_query_results must be positive")
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("invalid health port: %d", c.HealthPort)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// ShapingLimits returns the response shaping thresholds.
func (c *Config) ShapingLimits() shaping.Limits {
	return shaping.Limits{
		ItemThreshold:  c.ItemThreshold,
		SoftLimitBytes: c.SoftLimitBytes,
		HardLimitBytes: c.HardLimitBytes,
	}
}

// Organization returns the organization name from the URL path, e.g. "contoso"
// for https://dev.azure.com/contoso.
func (c *Config) Organization() string {
	u, err := url.Parse(c.OrganizationURL)
	if err != nil {
		return ""
	}
	if path := strings.Trim(u.Path, "/"); path != "" {
		return strings.Split(path, "/")[0]
	}
	// Legacy https://contoso.visualstudio.com form
	return strings.Split(u.Host, ".")[0]
}

// Redact returns a copy of the config with sensitive data removed
func (c *Config) Redact() *Config {
	redacted := *c
	redacted.PAT = MaskSecret(redacted.PAT)
	redacted.BearerToken = MaskSecret(redacted.BearerToken)
	return &redacted
}

// MaskSecret returns a masked version of a token for safe logging
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***REDACTED***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
