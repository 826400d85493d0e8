package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hpn/hpn-p-router/internal/challenge"
	"github.com/hpn/hpn-p-router/internal/domain"
	"github.com/hpn/hpn-p-router/internal/observability"
)

const (
	// DefaultPhindBaseURL is the Phind web origin.
	DefaultPhindBaseURL = "https://www.phind.com"

	// DefaultInferenceURL is the streaming inference endpoint.
	DefaultInferenceURL = "https://https.api.phind.com/infer/"

	// DefaultModel is the answer model used when a request names none.
	DefaultModel = "Phind Instant"

	// DefaultTimeout bounds a whole request, from the seed page to the last
	// byte of the stream.
	DefaultTimeout = 120 * time.Second

	// DefaultLanguage and DefaultSearchMode are the fixed search options.
	DefaultLanguage   = "en-US"
	DefaultSearchMode = "never"

	// DefaultUserAgent mimics a desktop Chrome browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	dateLayout = "02/01/2006"
)

// PhindAdapter implements AIProvider for the Phind web chat backend.
type PhindAdapter struct {
	baseURL      string
	inferenceURL string
	model        string
	language     string
	searchMode   string
	detailed     bool
	userAgent    string
	timeout      time.Duration
	transport    Transport
	logger       *slog.Logger
	now          func() time.Time
}

// PhindAdapterOption is a functional option for configuring PhindAdapter.
type PhindAdapterOption func(*PhindAdapter)

// WithBaseURL sets the web origin serving the search page.
func WithBaseURL(url string) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithInferenceURL sets the inference endpoint.
func WithInferenceURL(url string) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.inferenceURL = url
	}
}

// WithModel sets the default answer model.
func WithModel(model string) PhindAdapterOption {
	return func(p *PhindAdapter) {
		if model != "" {
			p.model = model
		}
	}
}

// WithTimeout sets the per-request deadline. Zero disables it.
func WithTimeout(timeout time.Duration) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.timeout = timeout
	}
}

// WithTransport sets the HTTP collaborator.
func WithTransport(t Transport) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.transport = t
	}
}

// WithLogger sets the logger outgoing payloads are written to.
func WithLogger(logger *slog.Logger) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.logger = logger
	}
}

// WithClock overrides the clock used for the date option.
func WithClock(now func() time.Time) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.now = now
	}
}

// WithLanguage sets the language option.
func WithLanguage(language string) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.language = language
	}
}

// WithSearchMode sets the search mode option.
func WithSearchMode(mode string) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.searchMode = mode
	}
}

// WithDetailed sets the detailed option.
func WithDetailed(detailed bool) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.detailed = detailed
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) PhindAdapterOption {
	return func(p *PhindAdapter) {
		p.userAgent = ua
	}
}

// NewPhindAdapter creates a PhindAdapter. Without WithTransport it connects
// directly over net/http.
func NewPhindAdapter(opts ...PhindAdapterOption) *PhindAdapter {
	p := &PhindAdapter{
		baseURL:      DefaultPhindBaseURL,
		inferenceURL: DefaultInferenceURL,
		model:        DefaultModel,
		language:     DefaultLanguage,
		searchMode:   DefaultSearchMode,
		detailed:     true,
		userAgent:    DefaultUserAgent,
		timeout:      DefaultTimeout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.transport == nil {
		p.transport = NewHTTPTransportWithClient(&http.Client{})
	}

	return p
}

// Name returns the provider identifier.
func (p *PhindAdapter) Name() string {
	return "phind"
}

// Model returns the default answer model.
func (p *PhindAdapter) Model() string {
	return p.model
}

// BuildPayload validates the conversation and builds the unsigned payload.
// An empty model selects the adapter default.
func (p *PhindAdapter) BuildPayload(messages []domain.Message, model string) (*Payload, error) {
	if model == "" {
		model = p.model
	}

	prompt, prior, sysContext, err := splitConversation(messages)
	if err != nil {
		return nil, err
	}

	history, err := BuildHistory(prior, model)
	if err != nil {
		return nil, err
	}

	return &Payload{
		Context: sysContext,
		Options: Options{
			AllowMultiSearch: false,
			AnonUserID:       "",
			AnswerModel:      model,
			CustomLinks:      []string{},
			Date:             p.now().Format(dateLayout),
			Detailed:         p.detailed,
			Language:         p.language,
			SearchMode:       p.searchMode,
		},
		Question:   prompt,
		WebResults: nil,
		History:    history,
	}, nil
}

// FetchSeeds loads the search page and extracts the challenge seeds.
func (p *PhindAdapter) FetchSeeds(ctx context.Context) (challenge.Seeds, error) {
	start := time.Now()

	seeds, err := p.fetchSeeds(ctx)

	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.SeedFetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	return seeds, err
}

func (p *PhindAdapter) fetchSeeds(ctx context.Context) (challenge.Seeds, error) {
	page, err := p.transport.Get(ctx, p.baseURL+"/search?home=true", p.headers())
	if err != nil {
		return challenge.Seeds{}, &SeedAcquisitionError{Op: "fetch", Err: err}
	}
	return ExtractSeeds(page)
}

// ChatCompletionStream signs the conversation and opens the inference
// stream. The adapter timeout covers everything up to closing the stream.
func (p *PhindAdapter) ChatCompletionStream(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	payload, err := p.BuildPayload(req.Messages, req.Model)
	if err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	stream, err := p.open(ctx, payload, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	return stream, nil
}

func (p *PhindAdapter) open(ctx context.Context, payload *Payload, cancel context.CancelFunc) (*ChatStream, error) {
	seeds, err := p.FetchSeeds(ctx)
	if err != nil {
		return nil, err
	}

	fields, err := payload.Fields()
	if err != nil {
		return nil, err
	}
	payload.Sign(challenge.Generate(fields, seeds))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal phind payload: %w", err)
	}

	p.logger.Debug("phind payload", "url", p.inferenceURL, "payload", string(body))

	rc, err := p.transport.Post(ctx, p.inferenceURL, p.headers(), body)
	if err != nil {
		return nil, err
	}
	return newChatStream(rc, cancel), nil
}

// ChatCompletion runs a request to completion and returns the full answer.
func (p *PhindAdapter) ChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	stream, err := p.ChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	return stream.Collect()
}

func (p *PhindAdapter) headers() http.Header {
	h := make(http.Header)
	h.Set("Accept", "*/*")
	h.Set("Origin", p.baseURL)
	h.Set("Referer", p.baseURL+"/search")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	if p.userAgent != "" {
		h.Set("User-Agent", p.userAgent)
	}
	return h
}
