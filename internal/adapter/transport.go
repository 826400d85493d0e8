package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxErrorBody caps how much of a non-2xx body is kept in a StatusError.
const maxErrorBody = 512

// Transport performs the two upstream calls. Implementations must honour
// ctx for cancellation and deadlines.
type Transport interface {
	// Get returns the response body as text.
	Get(ctx context.Context, rawURL string, header http.Header) (string, error)

	// Post sends body as JSON and returns the streaming response body.
	Post(ctx context.Context, rawURL string, header http.Header, body []byte) (io.ReadCloser, error)
}

// HTTPTransport is a Transport over net/http, optionally through a proxy.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport. An empty proxyURL connects directly.
// No client timeout is set; deadlines come from the request context.
func NewHTTPTransport(proxyURL string) (*HTTPTransport, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy url: %w", err)
		}
		base.Proxy = http.ProxyURL(u)
	}

	return &HTTPTransport{client: &http.Client{Transport: base}}, nil
}

// NewHTTPTransportWithClient wraps an existing client.
func NewHTTPTransportWithClient(client *http.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

// Get implements Transport.
func (t *HTTPTransport) Get(ctx context.Context, rawURL string, header http.Header) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header = cloneHeader(header)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute GET request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}

// Post implements Transport.
func (t *HTTPTransport) Post(ctx context.Context, rawURL string, header http.Header, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header = cloneHeader(header)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute POST request: %w", err)
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}
