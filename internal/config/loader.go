// Package config provides configuration management using the Singleton pattern.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultConfigName = "config"
	defaultConfigType = "yaml"
	envPrefix         = "HPN_P_ROUTER"

	// EnvProxies is a comma-separated list of proxy URLs. When set it
	// replaces proxy_pool.urls from every other source.
	EnvProxies = "HPN_PROXIES"
)

// loadConfig loads the configuration from environment variables and files.
// Priority order (highest to lowest):
// 1. HPN_PROXIES env var for the proxy pool
// 2. Environment variables (prefixed with HPN_P_ROUTER_)
// 3. config.yaml
// 4. Default values
func loadConfig(configPath string) (*Configuration, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName(defaultConfigName)
	v.SetConfigType(defaultConfigType)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hpn-p-router")
		v.AddConfigPath("$HOME/.hpn-p-router")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{
				Op:  "read",
				Err: fmt.Errorf("failed to read config file: %w", err),
			}
		}
		fmt.Fprintf(os.Stderr, "[CONFIG] Config file not found, using defaults and environment variables\n")
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{
			Op:  "unmarshal",
			Err: fmt.Errorf("failed to unmarshal config: %w", err),
		}
	}

	if loadProxiesFromEnv(&cfg) {
		fmt.Fprintf(os.Stderr, "[CONFIG] Using %s env var (file proxy list ignored)\n", EnvProxies)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 150)
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	// Phind defaults
	v.SetDefault("phind.base_url", "https://www.phind.com")
	v.SetDefault("phind.inference_url", "https://https.api.phind.com/infer/")
	v.SetDefault("phind.model", "Phind Instant")
	v.SetDefault("phind.models", []string{"Phind Instant", "Phind-70B", "Claude 3.5 Sonnet", "GPT-4o"})
	v.SetDefault("phind.timeout_seconds", 120)
	v.SetDefault("phind.language", "en-US")
	v.SetDefault("phind.search_mode", "never")
	v.SetDefault("phind.detailed", true)
	v.SetDefault("phind.user_agent", "")

	// Proxy pool defaults
	v.SetDefault("proxy_pool.urls", []string{})
	v.SetDefault("proxy_pool.retry_count", 2)
	v.SetDefault("proxy_pool.cooldown_seconds", 60)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_seconds", 300)

	// Usage defaults
	v.SetDefault("usage.tokenizer", "heuristic")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "")
}

// loadProxiesFromEnv replaces the proxy list with HPN_PROXIES when set.
// Returns true if proxies were loaded from this source.
func loadProxiesFromEnv(cfg *Configuration) bool {
	envValue := os.Getenv(EnvProxies)
	if envValue == "" {
		return false
	}

	proxies := make([]string, 0)
	for _, p := range strings.Split(envValue, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			proxies = append(proxies, p)
		}
	}

	if len(proxies) == 0 {
		return false
	}

	cfg.ProxyPool.URLs = proxies
	return true
}
