package origin

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes shared by the client, the relay and the playback
// controller.
var (
	// ErrNotFound means the origin does not know the book.
	ErrNotFound = errors.New("book not found")
	// ErrRateLimited means the origin refuses further requests from this
	// client for now.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrTransport means the origin (or relay) could not be reached.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedInput means a book id or page was rejected.
	ErrMalformedInput = errors.New("malformed input")
	// ErrMissingClientID is returned when a request has no client identity.
	ErrMissingClientID = errors.New("client id is required")
)

// StatusError is a non-success HTTP response from the origin.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
	RetryAfter string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
}

// Is lets errors.Is match a StatusError against the failure classes.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrMalformedInput:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// IsRetryable reports whether the user may reasonably try again later.
// Nothing in this package retries on its own.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMalformedInput), errors.Is(err, ErrMissingClientID):
		return false
	}
	return true
}

// Message returns the short user-facing text for err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "Limit exceeded. Please try again later."
	case errors.Is(err, ErrNotFound):
		return "Book content not found."
	case errors.Is(err, ErrMalformedInput):
		return "Invalid book id."
	case errors.Is(err, ErrTransport):
		return "Could not reach the server."
	}
	return err.Error()
}
