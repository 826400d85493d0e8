package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hpn/hpn-p-router/internal/adapter"
	"github.com/hpn/hpn-p-router/internal/config"
	"github.com/hpn/hpn-p-router/internal/domain"
	"github.com/hpn/hpn-p-router/internal/handler"
	"github.com/hpn/hpn-p-router/internal/security"
)

// app is the assembled router and the components it owns.
type app struct {
	Router *gin.Engine
	Pool   *domain.ProxyPool
	cache  *handler.AnswerCache
}

// Close stops background work owned by the app.
func (a *app) Close() {
	if a.cache != nil {
		a.cache.Stop()
	}
}

func newApp(cfg *config.Configuration, logger *slog.Logger) *app {
	pool := domain.NewProxyPool(cfg.ProxyPool.URLs, cfg.ProxyCooldown())

	opts := []handler.ProxyHandlerOption{
		handler.WithMaxRetries(cfg.ProxyPool.RetryCount),
		handler.WithLogger(logger),
		handler.WithModels(cfg.Phind.Model, cfg.Phind.Models),
		handler.WithUsageEstimator(handler.NewUsageEstimator(cfg.Usage.Tokenizer, logger)),
	}

	a := &app{Pool: pool}
	if cfg.Cache.Enabled {
		a.cache = handler.NewAnswerCache(
			handler.WithCacheTTL(cfg.CacheTTL()),
			handler.WithCacheLogger(logger),
		)
		opts = append(opts, handler.WithCache(a.cache))
	}

	proxyHandler := handler.NewProxyHandler(pool, newProviderFactory(cfg, logger), opts...)

	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(handler.RecoveryMiddleware(logger))
	router.Use(handler.CORSMiddleware())
	router.Use(handler.StripAuthHeadersMiddleware())
	router.Use(handler.MetricsMiddleware())
	router.Use(handler.LoggingMiddleware(logger))

	router.POST("/v1/chat/completions", proxyHandler.HandleChatCompletion)
	router.GET("/v1/models", proxyHandler.HandleModels)
	router.GET("/health", proxyHandler.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Also support without /v1 prefix for compatibility
	router.POST("/chat/completions", proxyHandler.HandleChatCompletion)

	a.Router = router
	return a
}

// newProviderFactory builds one Phind adapter per egress proxy.
func newProviderFactory(cfg *config.Configuration, logger *slog.Logger) handler.ProviderFactory {
	return handler.CachedProviderFactory(func(proxy string) (adapter.AIProvider, error) {
		transport, err := adapter.NewHTTPTransport(proxy)
		if err != nil {
			return nil, err
		}

		opts := []adapter.PhindAdapterOption{
			adapter.WithTransport(transport),
			adapter.WithBaseURL(cfg.Phind.BaseURL),
			adapter.WithInferenceURL(cfg.Phind.InferenceURL),
			adapter.WithModel(cfg.Phind.Model),
			adapter.WithTimeout(cfg.Timeout()),
			adapter.WithLanguage(cfg.Phind.Language),
			adapter.WithSearchMode(cfg.Phind.SearchMode),
			adapter.WithDetailed(cfg.Phind.Detailed),
			adapter.WithLogger(logger.With(slog.String("provider", "phind"))),
		}
		if cfg.Phind.UserAgent != "" {
			opts = append(opts, adapter.WithUserAgent(cfg.Phind.UserAgent))
		}

		return adapter.NewPhindAdapter(opts...), nil
	})
}

// setupLogger creates a redacting structured logger from the logging config
// and installs it as the default. The returned func closes the log file.
func setupLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.OutputPath != "" {
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		inner = slog.NewTextHandler(out, opts)
	} else {
		inner = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(security.NewRedactedHandler(inner))
	slog.SetDefault(logger)

	return logger, closeFn, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
