// Package handler provides HTTP handlers for the API router.
package handler

import (
	"log/slog"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"

	"github.com/hpn/hpn-p-router/internal/domain"
)

const (
	// TokensPerWord is the approximation ratio (1 word ≈ 1.3 tokens).
	TokensPerWord = 1.3

	// TokenizerHeuristic and TokenizerTiktoken select the counting method.
	TokenizerHeuristic = "heuristic"
	TokenizerTiktoken  = "tiktoken"

	tiktokenEncoding = "cl100k_base"
)

// UsageEstimator estimates token usage, which the upstream never reports.
type UsageEstimator struct {
	encoding *tiktoken.Tiktoken
}

// NewUsageEstimator creates an estimator. With TokenizerTiktoken it loads the
// cl100k_base encoding and falls back to the heuristic if that fails.
func NewUsageEstimator(tokenizer string, logger *slog.Logger) *UsageEstimator {
	if tokenizer != TokenizerTiktoken {
		return &UsageEstimator{}
	}

	enc, err := tiktoken.GetEncoding(tiktokenEncoding)
	if err != nil {
		if logger != nil {
			logger.Warn("tiktoken unavailable, using heuristic token estimate",
				slog.String("encoding", tiktokenEncoding),
				slog.String("error", err.Error()),
			)
		}
		return &UsageEstimator{}
	}

	return &UsageEstimator{encoding: enc}
}

// Count returns the token count of text.
func (u *UsageEstimator) Count(text string) int {
	if u != nil && u.encoding != nil {
		return len(u.encoding.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

// Estimate returns usage for a conversation and its answer.
func (u *UsageEstimator) Estimate(messages []domain.Message, completion string) openai.Usage {
	prompt := 0
	for _, m := range messages {
		prompt += u.Count(m.Content)
	}
	out := u.Count(completion)

	return openai.Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}

// EstimateTokens estimates the number of tokens in a text string.
// Uses a lightweight approximation: 1 word ≈ 1.3 tokens.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	wordCount := 0
	inWord := false

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inWord {
				wordCount++
				inWord = true
			}
		} else {
			inWord = false
		}
	}

	tokens := int(float64(wordCount) * TokensPerWord)
	if tokens == 0 && wordCount > 0 {
		tokens = 1
	}

	return tokens
}
