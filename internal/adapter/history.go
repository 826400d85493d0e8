package adapter

import (
	"fmt"
	"strings"

	"github.com/hpn/hpn-p-router/internal/domain"
)

const historyMode = "Normal"

// BuildHistory turns the prior turns of a conversation into question/answer
// entries. Each user message opens an entry and an assistant message answers
// the most recent one. System messages and unknown roles are skipped.
func BuildHistory(messages []domain.Message, model string) ([]HistoryEntry, error) {
	history := make([]HistoryEntry, 0)

	for i, msg := range messages {
		switch msg.Role {
		case domain.RoleUser:
			history = append(history, newHistoryEntry(msg.Content, model))
		case domain.RoleAssistant:
			if len(history) == 0 {
				return nil, fmt.Errorf("message %d: %w", i, ErrAssistantBeforeUser)
			}
			answer := msg.Content
			history[len(history)-1].Answer = &answer
		}
	}

	return history, nil
}

func newHistoryEntry(question, model string) HistoryEntry {
	return HistoryEntry{
		Question: question,
		Context:  "",
		Metadata: HistoryMetadata{
			Mode:      historyMode,
			ModelName: model,
			Images:    []string{},
		},
		CustomLinks:        []string{},
		MultiSearchQueries: []string{},
		PreviousAnswers:    []string{},
	}
}

// splitConversation separates the prompt from the prior turns and joins the
// system contents of those turns into the payload context.
func splitConversation(messages []domain.Message) (prompt string, prior []domain.Message, sysContext string, err error) {
	if len(messages) == 0 {
		return "", nil, "", ErrEmptyConversation
	}

	last := messages[len(messages)-1]
	if last.Role != domain.RoleUser {
		return "", nil, "", fmt.Errorf("message %d has role %q: %w", len(messages)-1, last.Role, ErrLastMessageNotUser)
	}

	prior = messages[:len(messages)-1]

	var system []string
	for _, msg := range prior {
		if msg.Role == domain.RoleSystem {
			system = append(system, msg.Content)
		}
	}

	return last.Content, prior, strings.Join(system, "\n"), nil
}
