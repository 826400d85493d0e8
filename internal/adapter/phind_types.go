package adapter

import (
	"encoding/json"
	"fmt"
)

// Options are the fixed search flags sent with every question. Field order
// is the wire order.
type Options struct {
	AllowMultiSearch bool     `json:"allowMultiSearch"`
	AnonUserID       string   `json:"anonUserId"`
	AnswerModel      string   `json:"answerModel"`
	CustomLinks      []string `json:"customLinks"`
	Date             string   `json:"date"`
	Detailed         bool     `json:"detailed"`
	Language         string   `json:"language"`
	SearchMode       string   `json:"searchMode"`
}

// HistoryMetadata describes how a past question was answered.
type HistoryMetadata struct {
	Mode      string   `json:"mode"`
	ModelName string   `json:"model_name"`
	Images    []string `json:"images"`
}

// HistoryEntry is one prior question with its answer, if any.
type HistoryEntry struct {
	Question           string          `json:"question"`
	Cancelled          bool            `json:"cancelled"`
	Context            string          `json:"context"`
	Metadata           HistoryMetadata `json:"metadata"`
	CustomLinks        []string        `json:"customLinks"`
	MultiSearchQueries []string        `json:"multiSearchQueries"`
	PreviousAnswers    []string        `json:"previousAnswers"`
	Answer             *string         `json:"answer,omitempty"`
}

// Payload is the body posted to the inference endpoint. The challenge is
// computed over every other field and set last.
type Payload struct {
	Context    string         `json:"context"`
	Options    Options        `json:"options"`
	Question   string         `json:"question"`
	WebResults any            `json:"web_results"`
	History    []HistoryEntry `json:"question_and_answer_history,omitempty"`
	Challenge  *float64       `json:"challenge,omitempty"`
}

// Fields returns the payload without the challenge as a generic object,
// exactly as it will appear on the wire.
func (p *Payload) Fields() (map[string]any, error) {
	unsigned := *p
	unsigned.Challenge = nil

	raw, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload fields: %w", err)
	}
	return fields, nil
}

// Sign sets the challenge field.
func (p *Payload) Sign(challenge float64) {
	p.Challenge = &challenge
}
