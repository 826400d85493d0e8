// Package handler provides HTTP handlers for the API router.
package handler

import (
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hpn/hpn-p-router/internal/domain"
)

// roleDeveloper is the newer OpenAI name for the system role.
const roleDeveloper = "developer"

// convertMessages maps OpenAI chat messages to conversation messages. Text
// parts of multi-part content are joined with newlines; other parts are
// dropped. Roles other than system, developer, user and assistant are kept
// as-is and ignored by the history shaper.
func convertMessages(in []openai.ChatCompletionMessage) []domain.Message {
	out := make([]domain.Message, 0, len(in))

	for _, m := range in {
		role := domain.Role(m.Role)
		if m.Role == roleDeveloper {
			role = domain.RoleSystem
		}

		out = append(out, domain.Message{
			Role:    role,
			Content: messageText(m),
		})
	}

	return out
}

func messageText(m openai.ChatCompletionMessage) string {
	if m.Content != "" || len(m.MultiContent) == 0 {
		return m.Content
	}

	parts := make([]string, 0, len(m.MultiContent))
	for _, part := range m.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "\n")
}
