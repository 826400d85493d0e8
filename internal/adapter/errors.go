package adapter

import (
	"errors"
	"fmt"
)

// Conversation precondition errors. They are returned before any network
// call is made.
var (
	ErrEmptyConversation   = errors.New("conversation has no messages")
	ErrLastMessageNotUser  = errors.New("last message must have role user")
	ErrAssistantBeforeUser = errors.New("assistant message precedes any user message")
)

// SeedAcquisitionError means the challenge seeds could not be obtained from
// the search page.
type SeedAcquisitionError struct {
	Op  string
	Err error
}

func (e *SeedAcquisitionError) Error() string {
	return fmt.Sprintf("seed acquisition (%s): %v", e.Op, e.Err)
}

func (e *SeedAcquisitionError) Unwrap() error {
	return e.Err
}

// UpstreamBackendError carries a backend error frame reported mid-stream.
type UpstreamBackendError struct {
	Raw string
}

func (e *UpstreamBackendError) Error() string {
	return fmt.Sprintf("upstream backend error: %s", e.Raw)
}

// StatusError is returned by the transport for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsSeedAcquisitionError checks if err is a SeedAcquisitionError.
func IsSeedAcquisitionError(err error) bool {
	var e *SeedAcquisitionError
	return errors.As(err, &e)
}

// IsUpstreamBackendError checks if err is an UpstreamBackendError.
func IsUpstreamBackendError(err error) bool {
	var e *UpstreamBackendError
	return errors.As(err, &e)
}

// IsConversationError reports whether err is a malformed conversation.
func IsConversationError(err error) bool {
	return errors.Is(err, ErrEmptyConversation) ||
		errors.Is(err, ErrLastMessageNotUser) ||
		errors.Is(err, ErrAssistantBeforeUser)
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *StatusError
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
