package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Failure is a classified capability failure. Retryable failures
// (rate limits, quota, overload, timeouts) leave the unit pending;
// permanent failures (malformed input, content policy) mark it failed.
type Failure struct {
	Message    string
	Retryable  bool
	StatusCode int
}

func (f *Failure) Error() string {
	kind := "permanent"
	if f.Retryable {
		kind = "retryable"
	}
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s failure (status %d): %s", kind, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s failure: %s", kind, f.Message)
}

// Retryable reports whether err is a classified retryable failure.
// Unclassified errors are treated as permanent so the runner cannot
// tight-loop on an unexpected condition.
func Retryable(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// classifyHTTP converts an HTTP error status into a Failure.
func classifyHTTP(status int, message string) *Failure {
	return &Failure{
		Message:    message,
		Retryable:  retryableStatus(status),
		StatusCode: status,
	}
}

// retryableStatus reports whether an HTTP status indicates a transient
// condition worth retrying.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// transportFailure wraps a transport-level error (connection reset, DNS,
// timeout) as retryable.
func transportFailure(err error) *Failure {
	return &Failure{Message: err.Error(), Retryable: true}
}
