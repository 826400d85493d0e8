// Package config provides configuration management using the Singleton pattern.
// It loads configuration from environment variables and config.yaml using Viper.
package config

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Configuration holds all application configuration values.
type Configuration struct {
	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Phind upstream configuration
	Phind PhindConfig `json:"phind" mapstructure:"phind"`

	// Egress proxy pool configuration
	ProxyPool ProxyPoolConfig `json:"proxy_pool" mapstructure:"proxy_pool"`

	// Answer cache configuration
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Usage estimation configuration
	Usage UsageConfig `json:"usage" mapstructure:"usage"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	// Host is the server bind address.
	Host string `json:"host" mapstructure:"host"`

	// Port is the server port number.
	Port int `json:"port" mapstructure:"port"`

	// ReadTimeoutSeconds is the maximum duration for reading the entire request.
	ReadTimeoutSeconds int `json:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`

	// WriteTimeoutSeconds bounds a whole response, streams included, so it
	// should exceed phind.timeout_seconds.
	WriteTimeoutSeconds int `json:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`

	// ShutdownTimeoutSeconds is the maximum duration to wait for active connections to finish.
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

// PhindConfig holds the upstream endpoints and the fixed search options.
type PhindConfig struct {
	BaseURL      string `json:"base_url" mapstructure:"base_url"`
	InferenceURL string `json:"inference_url" mapstructure:"inference_url"`

	// Model is the answer model used when a request names an unknown one.
	Model string `json:"model" mapstructure:"model"`

	// Models are the answer models advertised on /v1/models.
	Models []string `json:"models" mapstructure:"models"`

	// TimeoutSeconds bounds one request from the seed page to the end of the stream.
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`

	Language   string `json:"language" mapstructure:"language"`
	SearchMode string `json:"search_mode" mapstructure:"search_mode"`
	Detailed   bool   `json:"detailed" mapstructure:"detailed"`
	UserAgent  string `json:"user_agent" mapstructure:"user_agent"`
}

// ProxyPoolConfig holds egress proxy configuration.
type ProxyPoolConfig struct {
	// URLs are proxy URLs (http, https or socks5). Empty means direct.
	URLs []string `json:"urls" mapstructure:"urls"`

	// RetryCount is the number of times to retry with a different proxy on failure.
	RetryCount int `json:"retry_count" mapstructure:"retry_count"`

	// CooldownSeconds is how long a failed proxy stays out of rotation.
	CooldownSeconds int `json:"cooldown_seconds" mapstructure:"cooldown_seconds"`
}

// CacheConfig holds answer cache configuration.
type CacheConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	TTLSeconds int  `json:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// UsageConfig selects how token usage is estimated.
type UsageConfig struct {
	// Tokenizer is "heuristic" or "tiktoken".
	Tokenizer string `json:"tokenizer" mapstructure:"tokenizer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" mapstructure:"level"`

	// Format is the log format (json, text).
	Format string `json:"format" mapstructure:"format"`

	// OutputPath is the file path for log output (empty for stdout).
	OutputPath string `json:"output_path" mapstructure:"output_path"`
}

// configInstance holds the singleton configuration instance.
var (
	configInstance *Configuration
	configOnce     sync.Once
	configErr      error
)

// GetConfig returns the singleton Configuration instance.
// It initializes the configuration on first call using the default config path.
func GetConfig() (*Configuration, error) {
	configOnce.Do(func() {
		configInstance, configErr = loadConfig("")
	})
	return configInstance, configErr
}

// GetConfigWithPath returns the singleton Configuration instance with a custom config path.
func GetConfigWithPath(configPath string) (*Configuration, error) {
	configOnce.Do(func() {
		configInstance, configErr = loadConfig(configPath)
	})
	return configInstance, configErr
}

// MustGetConfig returns the singleton Configuration instance.
// It panics if the configuration cannot be loaded.
func MustGetConfig() *Configuration {
	cfg, err := GetConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// ResetConfig resets the singleton instance.
// This is primarily used for testing purposes.
func ResetConfig() {
	configOnce = sync.Once{}
	configInstance = nil
	configErr = nil
}

// Validate validates the configuration and returns an error if required fields are missing.
func (c *Configuration) Validate() error {
	var validationErrors []string

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		validationErrors = append(validationErrors, "server.port must be between 1 and 65535")
	}

	// Phind
	for _, f := range []struct{ key, raw string }{
		{"phind.base_url", c.Phind.BaseURL},
		{"phind.inference_url", c.Phind.InferenceURL},
	} {
		key, raw := f.key, f.raw
		if raw == "" {
			validationErrors = append(validationErrors, (&MissingKeyError{Key: key}).Error())
			continue
		}
		if !isAbsoluteURL(raw, "http", "https") {
			validationErrors = append(validationErrors, fmt.Sprintf("%s '%s' must be an absolute http(s) URL", key, raw))
		}
	}

	if c.Phind.Model == "" {
		validationErrors = append(validationErrors, (&MissingKeyError{Key: "phind.model"}).Error())
	}

	if c.Phind.TimeoutSeconds < 0 {
		validationErrors = append(validationErrors, "phind.timeout_seconds cannot be negative")
	}

	// Proxy pool
	for i, u := range c.ProxyPool.URLs {
		if !isAbsoluteURL(u, "http", "https", "socks5") {
			validationErrors = append(validationErrors, fmt.Sprintf(
				"proxy_pool.urls[%d] must be an http, https or socks5 URL", i,
			))
		}
	}

	if c.ProxyPool.RetryCount < 0 {
		validationErrors = append(validationErrors, "proxy_pool.retry_count cannot be negative")
	}

	// Cache
	if c.Cache.Enabled && c.Cache.TTLSeconds <= 0 {
		validationErrors = append(validationErrors, "cache.ttl_seconds must be positive when the cache is enabled")
	}

	// Usage
	if !isValidTokenizer(c.Usage.Tokenizer) {
		validationErrors = append(validationErrors, (&InvalidValueError{
			Key:           "usage.tokenizer",
			Value:         c.Usage.Tokenizer,
			AllowedValues: []string{"heuristic", "tiktoken"},
		}).Error())
	}

	// Logging
	if c.Logging.Level != "" && !isValidLogLevel(c.Logging.Level) {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"logging.level '%s' is invalid, must be one of: debug, info, warn, error",
			c.Logging.Level,
		))
	}

	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		validationErrors = append(validationErrors, (&InvalidValueError{
			Key:           "logging.format",
			Value:         c.Logging.Format,
			AllowedValues: []string{"json", "text"},
		}).Error())
	}

	if len(validationErrors) > 0 {
		return &ValidationError{Errors: validationErrors}
	}

	return nil
}

func isAbsoluteURL(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

func isValidTokenizer(name string) bool {
	return name == "heuristic" || name == "tiktoken"
}

// isValidLogLevel checks if the log level is valid.
func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// Timeout returns the upstream request timeout.
func (c *Configuration) Timeout() time.Duration {
	return time.Duration(c.Phind.TimeoutSeconds) * time.Second
}

// ProxyCooldown returns how long a failed proxy stays dead.
func (c *Configuration) ProxyCooldown() time.Duration {
	return time.Duration(c.ProxyPool.CooldownSeconds) * time.Second
}

// CacheTTL returns the answer cache TTL.
func (c *Configuration) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// HasModel reports whether name is one of the advertised models.
func (c *Configuration) HasModel(name string) bool {
	for _, m := range c.Phind.Models {
		if m == name {
			return true
		}
	}
	return false
}
