// End-to-end tests for hpn-p-router.
// These tests drive the assembled router with the go-openai client against a
// mock Phind site: Client → Router → (Proxy) → Phind (Mocked).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/hpn/hpn-p-router/internal/challenge"
	"github.com/hpn/hpn-p-router/internal/config"
)

var mockSeeds = challenge.Seeds{Multiplier: 1103515245, Addend: 12345, Modulus: 2147483648}

// ============================================================================
// SETUP HELPERS
// ============================================================================

// mockPhind simulates the Phind site. The search page carries the challenge
// seeds; the inference endpoint rejects a wrong challenge with 403 and
// answers based on the question:
//   - "overload" → backend error frame after one fragment
//   - anything else → "You asked: <question>"
type mockPhind struct {
	*httptest.Server

	mu        sync.Mutex
	payloads  []map[string]any
	badTokens int
}

func newMockPhind(t *testing.T) *mockPhind {
	m := &mockPhind{}

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		seeds, _ := json.Marshal(mockSeeds)
		fmt.Fprintf(w, `<html><head></head><body><div id="__next"></div>`+
			`<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"challengeSeeds":%s}},"page":"/search"}</script>`+
			`</body></html>`, seeds)
	})
	mux.HandleFunc("/infer/", func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		sent, _ := fields["challenge"].(float64)
		delete(fields, "challenge")
		if sent != challenge.Generate(fields, mockSeeds) {
			m.mu.Lock()
			m.badTokens++
			m.mu.Unlock()
			http.Error(w, "invalid challenge", http.StatusForbidden)
			return
		}

		m.mu.Lock()
		m.payloads = append(m.payloads, fields)
		m.mu.Unlock()

		question, _ := fields["question"].(string)
		t.Logf("[MOCK PHIND] question=%q", question)

		w.Header().Set("Content-Type", "text/event-stream")
		if question == "overload" {
			fmt.Fprint(w, "data: partial\n\n")
			fmt.Fprint(w, "data: <PHIND_BACKEND_ERROR>model overloaded\n\n")
			return
		}
		fmt.Fprint(w, "data: <PHIND_METADATA>{\"id\":1}\n\n")
		fmt.Fprint(w, "data: You asked:\n\n")
		fmt.Fprint(w, "data: \n\n")
		fmt.Fprint(w, "data: \n\n")
		fmt.Fprintf(w, "data: %s\n\n", question)
		fmt.Fprint(w, "data: <PHIND_DONE/>\n\n")
	})

	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func (m *mockPhind) lastPayload() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payloads) == 0 {
		return nil
	}
	return m.payloads[len(m.payloads)-1]
}

func (m *mockPhind) inferences() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

// newForwardProxy is a minimal plain-HTTP forward proxy that counts hits.
func newForwardProxy(t *testing.T, hits *atomic.Int32) *httptest.Server {
	upstream := &http.Transport{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		out := r.Clone(r.Context())
		out.RequestURI = ""
		resp, err := upstream.RoundTrip(out)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for k, vs := range resp.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// deadProxyURL returns the URL of a listener that has already been closed.
func deadProxyURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func testConfig(phind *mockPhind, proxies ...string) *config.Configuration {
	return &config.Configuration{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Phind: config.PhindConfig{
			BaseURL:        phind.URL,
			InferenceURL:   phind.URL + "/infer/",
			Model:          "Phind Instant",
			Models:         []string{"Phind Instant", "Phind-70B"},
			TimeoutSeconds: 10,
			Language:       "en-US",
			SearchMode:     "never",
		},
		ProxyPool: config.ProxyPoolConfig{URLs: proxies, RetryCount: 2, CooldownSeconds: 60},
		Cache:     config.CacheConfig{Enabled: true, TTLSeconds: 60},
		Usage:     config.UsageConfig{Tokenizer: "heuristic"},
		Logging:   config.LoggingConfig{Level: "info", Format: "json"},
	}
}

// startRouter assembles the app from cfg and returns an OpenAI client for it.
func startRouter(t *testing.T, cfg *config.Configuration) (*openai.Client, *httptest.Server, *app) {
	t.Helper()

	a := newApp(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)

	clientCfg := openai.DefaultConfig("sk-unused")
	clientCfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(clientCfg), srv, a
}

func chatRequest(content string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: "Phind-70B",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Answer briefly."},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	}
}

// ============================================================================
// TEST CASES
// ============================================================================

func TestE2E_ChatCompletion(t *testing.T) {
	t.Log("=== TEST: Non-streaming completion through the router ===")

	phind := newMockPhind(t)
	client, _, _ := startRouter(t, testConfig(phind))

	resp, err := client.CreateChatCompletion(context.Background(), chatRequest("ping"))
	if err != nil {
		t.Fatalf("CreateChatCompletion() error = %v", err)
	}

	if got := resp.Choices[0].Message.Content; got != "You asked:\nping" {
		t.Errorf("content = %q, want %q", got, "You asked:\nping")
	}
	if resp.Model != "Phind-70B" {
		t.Errorf("model = %q, want Phind-70B", resp.Model)
	}

	payload := phind.lastPayload()
	if payload["context"] != "Answer briefly." {
		t.Errorf("posted context = %v, want system prompt", payload["context"])
	}
	opts, _ := payload["options"].(map[string]any)
	if opts["answerModel"] != "Phind-70B" {
		t.Errorf("posted answerModel = %v, want Phind-70B", opts["answerModel"])
	}
	if _, ok := payload["question_and_answer_history"]; ok {
		t.Error("single-turn payload carries a history key")
	}
}

func TestE2E_MultiTurnHistory(t *testing.T) {
	phind := newMockPhind(t)
	client, _, _ := startRouter(t, testConfig(phind))

	req := openai.ChatCompletionRequest{
		Model: "Phind Instant",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "first"},
			{Role: openai.ChatMessageRoleAssistant, Content: "one"},
			{Role: openai.ChatMessageRoleUser, Content: "second"},
		},
	}
	if _, err := client.CreateChatCompletion(context.Background(), req); err != nil {
		t.Fatalf("CreateChatCompletion() error = %v", err)
	}

	history, _ := phind.lastPayload()["question_and_answer_history"].([]any)
	if len(history) != 1 {
		t.Fatalf("history = %v, want one entry", history)
	}
	entry, _ := history[0].(map[string]any)
	if entry["question"] != "first" || entry["answer"] != "one" {
		t.Errorf("history entry = %v, want first/one", entry)
	}
}

func TestE2E_Streaming(t *testing.T) {
	t.Log("=== TEST: Streaming completion through the router ===")

	phind := newMockPhind(t)
	client, _, _ := startRouter(t, testConfig(phind))

	req := chatRequest("stream me")
	req.Stream = true
	stream, err := client.CreateChatCompletionStream(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error = %v", err)
	}
	defer stream.Close()

	var text strings.Builder
	var finish openai.FinishReason
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		text.WriteString(chunk.Choices[0].Delta.Content)
		if chunk.Choices[0].FinishReason != "" {
			finish = chunk.Choices[0].FinishReason
		}
	}

	if text.String() != "You asked:\nstream me" {
		t.Errorf("streamed text = %q", text.String())
	}
	if finish != openai.FinishReasonStop {
		t.Errorf("finish_reason = %q, want stop", finish)
	}
}

func TestE2E_StreamingBackendError(t *testing.T) {
	phind := newMockPhind(t)
	client, _, _ := startRouter(t, testConfig(phind))

	req := chatRequest("overload")
	req.Stream = true
	stream, err := client.CreateChatCompletionStream(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error = %v", err)
	}
	defer stream.Close()

	var text strings.Builder
	var streamErr error
	for {
		chunk, err := stream.Recv()
		if err != nil {
			streamErr = err
			break
		}
		if len(chunk.Choices) > 0 {
			text.WriteString(chunk.Choices[0].Delta.Content)
		}
	}

	if errors.Is(streamErr, io.EOF) {
		t.Fatal("stream ended cleanly after a backend error")
	}
	if !strings.Contains(streamErr.Error(), "model overloaded") {
		t.Errorf("stream error = %v, want backend message", streamErr)
	}
	if text.String() != "partial" {
		t.Errorf("text before error = %q, want %q", text.String(), "partial")
	}
}

func TestE2E_NonStreamingBackendError(t *testing.T) {
	phind := newMockPhind(t)
	client, _, _ := startRouter(t, testConfig(phind))

	_, err := client.CreateChatCompletion(context.Background(), chatRequest("overload"))

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *openai.APIError", err)
	}
	if apiErr.HTTPStatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", apiErr.HTTPStatusCode)
	}
}

func TestE2E_MalformedConversation(t *testing.T) {
	phind := newMockPhind(t)
	client, _, _ := startRouter(t, testConfig(phind))

	req := openai.ChatCompletionRequest{
		Model: "Phind Instant",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "q"},
			{Role: openai.ChatMessageRoleAssistant, Content: "a"},
		},
	}
	_, err := client.CreateChatCompletion(context.Background(), req)

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) || apiErr.HTTPStatusCode != http.StatusBadRequest {
		t.Fatalf("error = %v, want 400 APIError", err)
	}
	if phind.inferences() != 0 {
		t.Errorf("inferences = %d, want 0", phind.inferences())
	}
}

func TestE2E_ProxyFailover(t *testing.T) {
	t.Log("=== TEST: Dead proxy is skipped and marked ===")

	phind := newMockPhind(t)
	var hits atomic.Int32
	good := newForwardProxy(t, &hits)
	dead := deadProxyURL()

	client, _, a := startRouter(t, testConfig(phind, dead, good.URL))

	resp, err := client.CreateChatCompletion(context.Background(), chatRequest("via proxy"))
	if err != nil {
		t.Fatalf("CreateChatCompletion() error = %v", err)
	}
	if resp.Choices[0].Message.Content != "You asked:\nvia proxy" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}

	if !a.Pool.IsDead(dead) {
		t.Error("unreachable proxy was not marked dead")
	}
	if hits.Load() != 2 {
		t.Errorf("proxy hits = %d, want 2 (seed page and inference)", hits.Load())
	}
}

func TestE2E_AllProxiesDead(t *testing.T) {
	phind := newMockPhind(t)
	client, _, _ := startRouter(t, testConfig(phind, deadProxyURL(), deadProxyURL()))

	_, err := client.CreateChatCompletion(context.Background(), chatRequest("nowhere"))

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) || apiErr.HTTPStatusCode != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want 503 APIError", err)
	}
}

func TestE2E_CacheServesRepeatQuestion(t *testing.T) {
	phind := newMockPhind(t)
	client, _, _ := startRouter(t, testConfig(phind))

	for i := 0; i < 2; i++ {
		if _, err := client.CreateChatCompletion(context.Background(), chatRequest("repeat")); err != nil {
			t.Fatalf("request %d error = %v", i, err)
		}
	}

	if phind.inferences() != 1 {
		t.Errorf("inferences = %d, want 1", phind.inferences())
	}
}

func TestE2E_ModelsAndHealth(t *testing.T) {
	phind := newMockPhind(t)
	client, srv, _ := startRouter(t, testConfig(phind))

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models.Models) != 2 || models.Models[0].ID != "Phind Instant" {
		t.Errorf("models = %+v", models.Models)
	}

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	var health map[string]any
	json.NewDecoder(resp.Body).Decode(&health)
	if health["status"] != "healthy" || health["mode"] != "direct" {
		t.Errorf("health = %v", health)
	}
}

func TestE2E_MetricsEndpoint(t *testing.T) {
	phind := newMockPhind(t)
	client, srv, _ := startRouter(t, testConfig(phind))

	if _, err := client.CreateChatCompletion(context.Background(), chatRequest("count me")); err != nil {
		t.Fatalf("CreateChatCompletion() error = %v", err)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		"hpn_p_router_requests_total",
		"hpn_p_router_inference_total",
		"hpn_p_router_seed_fetch_duration_seconds",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("/metrics missing %s", name)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
