package harvest

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient covers timeouts, connection failures and non-success statuses.
	ErrTransient = errors.New("transient network error")
	// ErrRateLimited signals the remote side asked us to slow down.
	ErrRateLimited = errors.New("rate limited")
	// ErrParse marks missing or unexpected markup.
	ErrParse = errors.New("parse error")
	// ErrIntegrity marks a missing or empty local artifact.
	ErrIntegrity = errors.New("integrity error")
	// ErrNoArtifact is returned when an item page links no artifact.
	ErrNoArtifact = errors.New("no artifact link")
)

// StatusError records an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Unwrap classifies the status: 429 is ErrRateLimited, anything else ErrTransient.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return ErrTransient
}
