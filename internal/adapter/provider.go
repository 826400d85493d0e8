// Package adapter talks to the Phind web chat backend.
//
// A request runs in two stages: the search page is fetched to obtain the
// challenge seeds, then the signed payload is posted to the inference
// endpoint and the tagged event stream is demultiplexed into text.
package adapter

import (
	"context"

	"github.com/hpn/hpn-p-router/internal/domain"
)

// AIProvider defines the interface for chat providers.
type AIProvider interface {
	// ChatCompletionStream opens a streamed completion. The caller must
	// Close the returned stream.
	ChatCompletionStream(ctx context.Context, req ChatRequest) (*ChatStream, error)

	// Name returns the provider's identifier string.
	Name() string
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	// Model overrides the adapter's answer model when non-empty.
	Model string

	// Messages is the conversation; the last message is the prompt.
	Messages []domain.Message
}
