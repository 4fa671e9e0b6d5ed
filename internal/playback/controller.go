// Package playback sequences per-page audio segments for a book: fetch,
// play, auto-advance, pause and resume, with stale results discarded.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/paginate"
)

// SegmentSource fetches the audio segment for a page.
type SegmentSource interface {
	StreamSegment(ctx context.Context, bookID string, page int) (*origin.Segment, error)
}

// Transport plays segments locally.
type Transport interface {
	// Prepare does the blocking reads a segment needs before it can start,
	// such as decoding the stream header. It runs outside the controller
	// lock and must return once ctx ends.
	Prepare(ctx context.Context, seg *origin.Segment) error
	// Play starts a prepared segment. It must not block on the segment body.
	// A nil error means the stream was accepted.
	Play(seg *origin.Segment) error
	Pause() error
	Resume() error
	// Stop aborts the current segment. It is a no-op when idle.
	Stop() error
	// Wait blocks until the current segment finishes. It returns nil at the
	// natural end, ErrStopped if the segment was stopped, or ctx.Err().
	Wait(ctx context.Context) error
}

// Config holds configuration for the controller.
type Config struct {
	// FetchTimeout bounds the wait for a segment response. Zero disables it.
	FetchTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{FetchTimeout: 30 * time.Second}
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	BookID     string
	Page       int
	TotalPages int
	State      StateType
	Loading    bool
	Playing    bool
	LastError  error
	Message    string
	NextOffset string
	Generation uint64
	Fetches    int
}

// Controller is the playback state machine for one client session. Events
// are applied one at a time; Commands returned by Handle run elsewhere and
// feed their result back through Handle.
type Controller struct {
	source    SegmentSource
	transport Transport
	config    Config

	mu      sync.Mutex
	machine *StateMachine

	bookID     string
	page       int
	totalPages int

	gen     uint64
	genCtx  context.Context
	cancel  context.CancelFunc
	segment *origin.Segment

	lastErr    error
	nextOffset string
	fetches    int

	onPageChange  func(bookID string, page int)
	onStateChange func(StateType)

	ctx       context.Context
	cancelAll context.CancelFunc
}

// NewController creates a controller that fetches from source and plays
// through transport.
func NewController(source SegmentSource, transport Transport, cfg Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		source:    source,
		transport: transport,
		config:    cfg,
		machine:   NewStateMachine(),
		ctx:       ctx,
		cancelAll: cancel,
	}
	for _, s := range []StateType{StateIdle, StateLoading, StatePlaying, StatePaused, StateError} {
		state := s
		c.machine.OnEnter(state, func() {
			log.Debug("playback state", "state", state, "book", c.bookID, "page", c.page)
			if c.onStateChange != nil {
				c.onStateChange(state)
			}
		})
	}
	return c
}

// OnPageChange registers a callback invoked when the current page changes.
// It runs with the controller locked and must not call back into it.
func (c *Controller) OnPageChange(fn func(bookID string, page int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPageChange = fn
}

// OnStateChange registers a callback invoked on every state change. It runs
// with the controller locked and must not call back into it.
func (c *Controller) OnStateChange(fn func(StateType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.machine.Current()
	return Snapshot{
		BookID:     c.bookID,
		Page:       c.page,
		TotalPages: c.totalPages,
		State:      state,
		Loading:    state == StateLoading,
		Playing:    state == StatePlaying,
		LastError:  c.lastErr,
		Message:    Message(c.lastErr),
		NextOffset: c.nextOffset,
		Generation: c.gen,
		Fetches:    c.fetches,
	}
}

// Handle applies one event and returns the follow-up work, if any.
func (c *Controller) Handle(ev Event) Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case PlayRequested:
		return c.play()
	case PauseRequested:
		c.pause()
	case BookLoaded:
		c.loadBook(e)
	case PageSelected:
		c.goToPage(e.Page)
	case SegmentLoaded:
		return c.segmentLoaded(e)
	case SegmentEnded:
		return c.segmentEnded(e)
	case ErrorDismissed:
		if c.machine.Current() == StateError {
			c.lastErr = nil
			c.machine.Transition(StateIdle)
		}
	default:
		log.Warn("playback: unknown event", "event", fmt.Sprintf("%T", ev))
	}
	return nil
}

// Close stops playback and cancels all outstanding work.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersede()
	c.cancelAll()
	c.machine.Reset(StateIdle)
	return nil
}

func (c *Controller) play() Command {
	if c.bookID == "" || c.totalPages == 0 {
		c.lastErr = ErrNoBook
		return nil
	}
	switch c.machine.Current() {
	case StatePlaying:
		return nil
	case StatePaused:
		if c.segment != nil {
			if err := c.transport.Resume(); err != nil {
				c.fail("resume", fmt.Errorf("%w: %w", ErrPlayback, err))
				return nil
			}
			c.machine.Transition(StatePlaying)
			return nil
		}
	}
	return c.startLoading()
}

func (c *Controller) pause() {
	if c.machine.Current() != StatePlaying {
		return
	}
	if err := c.transport.Pause(); err != nil {
		c.fail("pause", fmt.Errorf("%w: %w", ErrPlayback, err))
		return
	}
	c.machine.Transition(StatePaused)
}

func (c *Controller) loadBook(e BookLoaded) {
	c.supersede()
	c.bookID = e.BookID
	c.totalPages = max(e.TotalPages, 0)
	c.page = 1
	if e.StartPage > 0 {
		c.page = paginate.Clamp(e.StartPage, c.totalPages)
	}
	c.lastErr = nil
	c.nextOffset = ""
	c.machine.Reset(StateIdle)
	c.notifyPage()
}

func (c *Controller) goToPage(page int) {
	if c.bookID == "" {
		c.lastErr = ErrNoBook
		return
	}
	if page < 1 || page > c.totalPages {
		c.lastErr = fmt.Errorf("%w: %d of %d", ErrInvalidPage, page, c.totalPages)
		return
	}
	c.supersede()
	c.lastErr = nil
	c.nextOffset = ""
	c.machine.Reset(StateIdle)
	if c.page != page {
		c.page = page
		c.notifyPage()
	}
}

// startLoading begins a new generation and returns the fetch for the
// current page.
func (c *Controller) startLoading() Command {
	c.supersede()
	ctx, cancel := context.WithCancel(c.ctx)
	c.genCtx, c.cancel = ctx, cancel
	c.lastErr = nil
	c.fetches++
	if !c.machine.Transition(StateLoading) {
		c.machine.Reset(StateLoading)
	}

	gen, bookID, page := c.gen, c.bookID, c.page
	f := fetcher{source: c.source, transport: c.transport, timeout: c.config.FetchTimeout}
	return func() Event {
		seg, err := f.fetch(ctx, cancel, bookID, page)
		return SegmentLoaded{Gen: gen, Page: page, Segment: seg, Err: err}
	}
}

// fetcher is the part of a generation that runs off the controller lock.
type fetcher struct {
	source    SegmentSource
	transport Transport
	timeout   time.Duration
}

// fetch requests a segment and prepares it for playback. The timeout covers
// the response and the prepare step; the rest of the body lives as long as
// the generation context.
func (f fetcher) fetch(ctx context.Context, cancel context.CancelFunc, bookID string, page int) (*origin.Segment, error) {
	var timer *time.Timer
	if f.timeout > 0 {
		timer = time.AfterFunc(f.timeout, cancel)
	}
	seg, err := f.source.StreamSegment(ctx, bookID, page)
	if err == nil {
		if perr := f.transport.Prepare(ctx, seg); perr != nil {
			_ = seg.Close()
			seg, err = nil, fmt.Errorf("%w: %w", ErrPlayback, perr)
		}
	}
	if timer != nil && !timer.Stop() {
		// The timer cancelled the generation, so the body is unusable.
		_ = seg.Close()
		return nil, fmt.Errorf("%w: no audio within %s", origin.ErrTransport, f.timeout)
	}
	return seg, err
}

func (c *Controller) segmentLoaded(e SegmentLoaded) Command {
	if e.Gen != c.gen || c.machine.Current() != StateLoading {
		log.Debug("playback: discarding stale segment", "gen", e.Gen, "current", c.gen, "page", e.Page)
		_ = e.Segment.Close()
		return nil
	}
	if e.Err != nil {
		c.fail("fetch", e.Err)
		return nil
	}
	if err := c.transport.Play(e.Segment); err != nil {
		_ = e.Segment.Close()
		c.fail("play", fmt.Errorf("%w: %w", ErrPlayback, err))
		return nil
	}
	c.segment = e.Segment
	c.nextOffset = e.Segment.NextOffset
	c.machine.Transition(StatePlaying)

	ctx, gen, transport := c.genCtx, c.gen, c.transport
	return func() Event {
		return SegmentEnded{Gen: gen, Err: transport.Wait(ctx)}
	}
}

func (c *Controller) segmentEnded(e SegmentEnded) Command {
	state := c.machine.Current()
	if e.Gen != c.gen || (state != StatePlaying && state != StatePaused) {
		return nil
	}
	if e.Err != nil {
		c.fail("wait", fmt.Errorf("%w: %w", ErrPlayback, e.Err))
		return nil
	}
	c.closeSegment()
	if c.page < c.totalPages {
		c.page++
		c.notifyPage()
		return c.startLoading()
	}
	c.supersede()
	c.machine.Transition(StateIdle)
	return nil
}

// fail stops the transport, drops the generation and enters Error.
func (c *Controller) fail(op string, err error) {
	c.supersede()
	c.lastErr = &Error{Op: op, BookID: c.bookID, Page: c.page, Err: err}
	log.Error("playback failed", "op", op, "book", c.bookID, "page", c.page, "err", err)
	if !c.machine.Transition(StateError) {
		c.machine.Reset(StateError)
	}
}

// supersede invalidates the current generation: the in-flight fetch or
// wait is cancelled and any result it yields is discarded.
func (c *Controller) supersede() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.genCtx = nil
	if err := c.transport.Stop(); err != nil {
		log.Debug("playback: stop", "err", err)
	}
	c.closeSegment()
}

func (c *Controller) closeSegment() {
	if c.segment != nil {
		_ = c.segment.Close()
		c.segment = nil
	}
}

func (c *Controller) notifyPage() {
	if c.onPageChange != nil && c.bookID != "" {
		c.onPageChange(c.bookID, c.page)
	}
}
