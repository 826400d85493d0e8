// Package handler provides HTTP handlers for the API router.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/hpn/hpn-p-router/internal/adapter"
	"github.com/hpn/hpn-p-router/internal/domain"
	"github.com/hpn/hpn-p-router/internal/observability"
	"github.com/hpn/hpn-p-router/internal/ui"
)

const (
	// DefaultMaxRetries is the default number of retries after the first attempt.
	DefaultMaxRetries = 2

	// modelsCreated is the fixed creation timestamp reported on /v1/models.
	modelsCreated = 1700000000
)

// ProxyHandler serves OpenAI-compatible chat completions from the Phind
// backend. Opening a stream is retried through the next proxy on
// retryable failures; nothing is retried once output has been sent.
type ProxyHandler struct {
	pool         *domain.ProxyPool
	providers    ProviderFactory
	cache        *AnswerCache
	usage        *UsageEstimator
	logger       *slog.Logger
	maxRetries   int
	defaultModel string
	models       []string
	now          func() time.Time
}

// ProxyHandlerOption is a functional option for configuring ProxyHandler.
type ProxyHandlerOption func(*ProxyHandler)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) ProxyHandlerOption {
	return func(h *ProxyHandler) {
		if n >= 0 {
			h.maxRetries = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ProxyHandlerOption {
	return func(h *ProxyHandler) {
		h.logger = logger
	}
}

// WithCache enables answer caching for non-streaming completions.
func WithCache(cache *AnswerCache) ProxyHandlerOption {
	return func(h *ProxyHandler) {
		h.cache = cache
	}
}

// WithUsageEstimator sets the token usage estimator.
func WithUsageEstimator(u *UsageEstimator) ProxyHandlerOption {
	return func(h *ProxyHandler) {
		h.usage = u
	}
}

// WithModels sets the advertised models and the fallback for unknown ones.
func WithModels(defaultModel string, models []string) ProxyHandlerOption {
	return func(h *ProxyHandler) {
		if defaultModel != "" {
			h.defaultModel = defaultModel
		}
		h.models = models
	}
}

// NewProxyHandler creates a new ProxyHandler. A nil or empty pool connects
// directly.
func NewProxyHandler(pool *domain.ProxyPool, providers ProviderFactory, opts ...ProxyHandlerOption) *ProxyHandler {
	h := &ProxyHandler{
		pool:         pool,
		providers:    providers,
		logger:       slog.Default(),
		maxRetries:   DefaultMaxRetries,
		defaultModel: adapter.DefaultModel,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	if len(h.models) == 0 {
		h.models = []string{h.defaultModel}
	}

	return h
}

// HandleChatCompletion handles POST /v1/chat/completions.
func (h *ProxyHandler) HandleChatCompletion(c *gin.Context) {
	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}

	if len(req.Messages) == 0 {
		h.sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "messages array is required")
		return
	}

	chatReq := adapter.ChatRequest{
		Model:    h.resolveModel(req.Model),
		Messages: convertMessages(req.Messages),
	}

	if req.Stream {
		includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
		h.handleStream(c, chatReq, includeUsage)
		return
	}

	h.handleCompletion(c, chatReq)
}

func (h *ProxyHandler) handleCompletion(c *gin.Context, req adapter.ChatRequest) {
	start := time.Now()

	var cacheKey string
	if h.cache != nil {
		cacheKey = CacheKey(req.Model, req.Messages)
		if answer, found := h.cache.Get(cacheKey); found {
			c.Set(ctxCacheHit, true)
			h.logger.Info("cache hit", slog.String("cache_key", cacheKey[:12]+"..."))
			ui.PrintCacheHit(cacheKey, time.Since(start))
			c.JSON(http.StatusOK, h.completionResponse(req, answer))
			return
		}
	}

	stream, err := h.openWithRetry(c, req)
	if err != nil {
		h.sendOpenError(c, err)
		return
	}
	defer stream.Close()

	answer, err := stream.Collect()
	if err != nil {
		h.logStreamError(err)
		h.sendOpenAIError(c, http.StatusBadGateway, "upstream_error", streamErrorMessage(err))
		return
	}

	if h.cache != nil {
		h.cache.Set(cacheKey, answer)
	}

	c.JSON(http.StatusOK, h.completionResponse(req, answer))
}

func (h *ProxyHandler) handleStream(c *gin.Context, req adapter.ChatRequest, includeUsage bool) {
	start := time.Now()

	stream, err := h.openWithRetry(c, req)
	if err != nil {
		h.sendOpenError(c, err)
		return
	}
	defer stream.Close()

	id := newCompletionID()
	created := h.now().Unix()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.writeChunk(c, streamChunk(id, created, req.Model, openai.ChatCompletionStreamChoiceDelta{
		Role: openai.ChatMessageRoleAssistant,
	}, ""))

	fragments := 0
	var completion strings.Builder

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.logStreamError(err)
			h.writeStreamError(c, err)
			return
		}

		fragments++
		completion.WriteString(fragment)
		h.writeChunk(c, streamChunk(id, created, req.Model, openai.ChatCompletionStreamChoiceDelta{
			Content: fragment,
		}, ""))
	}

	h.writeChunk(c, streamChunk(id, created, req.Model, openai.ChatCompletionStreamChoiceDelta{}, openai.FinishReasonStop))

	if includeUsage {
		usage := h.usage.Estimate(req.Messages, completion.String())
		h.writeChunk(c, openai.ChatCompletionStreamResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []openai.ChatCompletionStreamChoice{},
			Usage:   &usage,
		})
	}

	c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()

	ui.PrintStreamDone(fragments, time.Since(start))
}

// openWithRetry opens a stream, rotating to the next proxy on retryable
// failures.
func (h *ProxyHandler) openWithRetry(c *gin.Context, req adapter.ChatRequest) (*adapter.ChatStream, error) {
	ctx := c.Request.Context()
	attempts := h.maxRetries + 1

	var lastErr error
	var prevProxy string

	for attempt := 1; attempt <= attempts; attempt++ {
		proxy, err := h.nextProxy()
		if err != nil {
			h.logger.Warn("no proxies available",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return nil, errors.Join(err, lastErr)
		}

		if attempt > 1 {
			ui.PrintSwitching(prevProxy, proxy)
		}
		prevProxy = proxy

		c.Set(ctxProxyUsed, proxy)
		c.Set(ctxAttempts, attempt)

		h.logger.Debug("opening upstream stream",
			slog.Int("attempt", attempt),
			slog.String("proxy", ui.MaskProxy(proxy)),
			slog.String("model", req.Model),
		)

		provider, err := h.providers(proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider: %w", err)
		}

		stream, err := provider.ChatCompletionStream(ctx, req)
		if err == nil {
			return stream, nil
		}

		if !isRetryableError(ctx, err) {
			return nil, err
		}

		h.logger.Warn("retryable error, rotating proxy",
			slog.Int("attempt", attempt),
			slog.String("proxy", ui.MaskProxy(proxy)),
			slog.String("error", err.Error()),
		)

		if proxy != "" {
			h.pool.MarkAsDead(proxy)
			observability.ProxyFailoversTotal.Inc()
			ui.PrintDeadProxy(proxy, failureReason(err))
		}
		lastErr = err
	}

	h.logger.Error("max retries exhausted", slog.Int("attempts", attempts))
	return nil, lastErr
}

func (h *ProxyHandler) nextProxy() (string, error) {
	if h.pool == nil || h.pool.Direct() {
		return "", nil
	}
	return h.pool.Next()
}

// isRetryableError determines if an error should trigger a retry.
// Retryable: seed acquisition failures, 429, 5xx, timeouts and network errors.
// Never retried: malformed conversations, other 4xx and caller cancellation.
func isRetryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || adapter.IsConversationError(err) {
		return false
	}

	if adapter.IsSeedAcquisitionError(err) {
		return true
	}

	if code := adapter.StatusCode(err); code != 0 {
		return code == http.StatusTooManyRequests || code >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func failureReason(err error) string {
	switch {
	case adapter.IsSeedAcquisitionError(err):
		return "seed acquisition failed"
	case adapter.StatusCode(err) != 0:
		return fmt.Sprintf("status %d", adapter.StatusCode(err))
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "network error"
	}
}

func (h *ProxyHandler) resolveModel(requested string) string {
	for _, m := range h.models {
		if m == requested {
			return m
		}
	}
	return h.defaultModel
}

func (h *ProxyHandler) completionResponse(req adapter.ChatRequest, answer string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: h.now().Unix(),
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: answer,
				},
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: h.usage.Estimate(req.Messages, answer),
	}
}

func streamChunk(id string, created int64, model string, delta openai.ChatCompletionStreamChoiceDelta, finish openai.FinishReason) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionStreamChoice{
			{Index: 0, Delta: delta, FinishReason: finish},
		},
	}
}

func (h *ProxyHandler) writeChunk(c *gin.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal stream chunk", slog.String("error", err.Error()))
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// writeStreamError ends a stream that already has output with an error frame.
func (h *ProxyHandler) writeStreamError(c *gin.Context, err error) {
	h.writeChunk(c, gin.H{
		"error": gin.H{
			"message": streamErrorMessage(err),
			"type":    "upstream_error",
			"param":   nil,
			"code":    nil,
		},
	})
}

func (h *ProxyHandler) logStreamError(err error) {
	var backendErr *adapter.UpstreamBackendError
	if errors.As(err, &backendErr) {
		h.logger.Error("upstream backend error", slog.String("frame", backendErr.Raw))
		ui.PrintBackendError(backendErr.Raw)
		return
	}
	h.logger.Error("upstream stream interrupted", slog.String("error", err.Error()))
}

func streamErrorMessage(err error) string {
	var backendErr *adapter.UpstreamBackendError
	if errors.As(err, &backendErr) {
		return "Upstream backend error: " + backendErr.Raw
	}
	return "Upstream stream interrupted: " + err.Error()
}

// sendOpenError maps a failure to open the upstream stream to a response.
func (h *ProxyHandler) sendOpenError(c *gin.Context, err error) {
	if adapter.IsConversationError(err) {
		h.sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	h.logger.Error("failed to open upstream stream", slog.String("error", err.Error()))
	h.sendOpenAIError(c, http.StatusServiceUnavailable, "server_error", "Service temporarily unavailable. Please try again later.")
}

// sendOpenAIError sends an error response in OpenAI-compatible format.
func (h *ProxyHandler) sendOpenAIError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    errType,
			"param":   nil,
			"code":    nil,
		},
	})
}

func newCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// HandleModels handles GET /v1/models.
func (h *ProxyHandler) HandleModels(c *gin.Context) {
	data := make([]openai.Model, 0, len(h.models))
	for _, m := range h.models {
		data = append(data, openai.Model{
			ID:        m,
			Object:    "model",
			CreatedAt: modelsCreated,
			OwnedBy:   "phind",
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   data,
	})
}

// HandleHealth handles GET /health.
func (h *ProxyHandler) HandleHealth(c *gin.Context) {
	if h.pool == nil || h.pool.Direct() {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"mode":   "direct",
		})
		return
	}

	active := h.pool.ActiveCount()

	status := "healthy"
	if active == 0 {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"mode":           "proxy",
		"active_proxies": active,
		"dead_proxies":   h.pool.DeadCount(),
		"total_proxies":  h.pool.TotalCount(),
	})
}
