package ai

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is returned when no Gemini API key is configured.
var ErrMissingCredential = errors.New("GEMINI_API_KEY not found in environment variables")

// RemoteAPIError reports a failure status from the completion service. It is
// also returned while the circuit breaker refuses calls.
type RemoteAPIError struct {
	StatusCode int
	Message    string
}

func (e *RemoteAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini api error: status %d: %s", e.StatusCode, e.Message)
}

// ParseError reports a structured reply that could not be decoded or did not
// match the expected schema.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "malformed ai reply: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
