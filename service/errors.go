package service

import (
	"fmt"
	"time"
)

// ProviderError is a 4xx/5xx from a generation call. Hint carries
// remediation guidance for the common cases (rate limits, auth).
type ProviderError struct {
	StatusCode int
	Message    string
	Hint       string
}

func (e *ProviderError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("provider error (status %d): %s (%s)", e.StatusCode, e.Message, e.Hint)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

// ContentFilterError means the provider rejected the content for policy
// reasons. Retrying the same prompt will not help.
type ContentFilterError struct {
	Reason string
}

func (e *ContentFilterError) Error() string {
	return "content rejected by provider: " + e.Reason
}

// NetworkError is a transport failure talking to a provider.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means a sync-poll loop never reached a terminal state
// within its deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// SceneError ties a generation failure to the scene it belongs to. One
// scene's failure never aborts its siblings.
type SceneError struct {
	SceneID string
	Seq     int
	Err     error
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("scene %d (%s): %v", e.Seq, e.SceneID, e.Err)
}

func (e *SceneError) Unwrap() error { return e.Err }
