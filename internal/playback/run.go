package playback

import (
	"context"
	"sync"
)

// Run drives the controller from events without a UI. Commands run in their
// own goroutines and their results are fed back in order of completion. Run
// returns nil once done reports true for the snapshot taken after an event,
// or ctx.Err() when ctx ends. The controller is closed when Run returns.
func (c *Controller) Run(ctx context.Context, events <-chan Event, done func(Snapshot) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	results := make(chan Event)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		_ = c.Close()
		wg.Wait()
	}()

	dispatch := func(ev Event) bool {
		if cmd := c.Handle(ev); cmd != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := cmd()
				select {
				case results <- next:
				case <-ctx.Done():
					if loaded, ok := next.(SegmentLoaded); ok {
						_ = loaded.Segment.Close()
					}
				}
			}()
		}
		return done != nil && done(c.Snapshot())
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if dispatch(ev) {
				return nil
			}
		case ev := <-results:
			if dispatch(ev) {
				return nil
			}
		}
	}
}

// Finished reports whether a headless run is over: playback went through
// at least one fetch and came to rest in Idle or Error.
func Finished(s Snapshot) bool {
	return s.Fetches > 0 && (s.State == StateIdle || s.State == StateError)
}
