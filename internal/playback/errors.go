package playback

import (
	"errors"
	"fmt"

	"github.com/pagecast/pagecast/internal/origin"
)

var (
	// ErrPlayback means the local transport rejected or aborted a stream.
	ErrPlayback = errors.New("playback failure")
	// ErrNoBook is returned when playback is requested before a book is loaded.
	ErrNoBook = errors.New("no book loaded")
	// ErrInvalidPage is returned for a page outside [1, total].
	ErrInvalidPage = errors.New("invalid page")
	// ErrStopped is returned by Transport.Wait when the segment was stopped
	// before it finished.
	ErrStopped = errors.New("playback stopped")
)

// Error describes a failed controller operation.
type Error struct {
	Op     string // "fetch", "play", "resume", "pause", "wait"
	BookID string
	Page   int
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s book %s page %d: %v", e.Op, e.BookID, e.Page, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text for a controller error. Rate limiting
// gets its own message so the user knows to wait.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		err = pe.Err
	}
	switch {
	case errors.Is(err, origin.ErrRateLimited), errors.Is(err, origin.ErrNotFound):
		return origin.Message(err)
	case errors.Is(err, ErrNoBook):
		return "Load a book first."
	case errors.Is(err, ErrInvalidPage):
		return "No such page."
	case errors.Is(err, ErrPlayback):
		return "Playback failed."
	}
	return fmt.Sprintf("Streaming error: %v", err)
}
