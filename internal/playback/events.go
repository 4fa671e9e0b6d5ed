package playback

import "github.com/pagecast/pagecast/internal/origin"

// Event is an input to the controller. Events are applied one at a time by
// Controller.Handle.
type Event interface {
	event()
}

// Command is deferred work returned by Handle: fetching a segment or
// waiting for it to finish. Running it yields the next event.
type Command func() Event

// PlayRequested starts or resumes playback of the current page.
type PlayRequested struct{}

// PauseRequested pauses playback.
type PauseRequested struct{}

// BookLoaded resets the controller for a new book.
type BookLoaded struct {
	BookID     string
	TotalPages int
	StartPage  int // zero means the first page
}

// PageSelected jumps to a page. The next PlayRequested fetches it.
type PageSelected struct {
	Page int
}

// SegmentLoaded carries the result of a segment fetch.
type SegmentLoaded struct {
	Gen     uint64
	Page    int
	Segment *origin.Segment
	Err     error
}

// SegmentEnded is the completion signal from the transport.
type SegmentEnded struct {
	Gen uint64
	Err error
}

// ErrorDismissed returns the controller from Error to Idle.
type ErrorDismissed struct{}

func (PlayRequested) event()  {}
func (PauseRequested) event() {}
func (BookLoaded) event()     {}
func (PageSelected) event()   {}
func (SegmentLoaded) event()  {}
func (SegmentEnded) event()   {}
func (ErrorDismissed) event() {}
