package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/playback"
)

const nullChunk = 4096

// NullPlayer consumes segments without producing sound, paced at a byte
// rate so playback takes about as long as it would on a device. It is used
// without an audio device and in tests.
type NullPlayer struct {
	rate int

	mu    sync.Mutex
	state PlayerState
	run   *nullRun

	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
	bytesRead   atomic.Int64
}

type nullRun struct {
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	paused   atomic.Bool
	err      error
}

// NewNullPlayer creates a player that drains rate bytes per second. A rate
// of zero or less drains as fast as the body allows.
func NewNullPlayer(rate int) *NullPlayer {
	return &NullPlayer{rate: rate}
}

// Prepare only checks the segment; draining starts in Play.
func (n *NullPlayer) Prepare(_ context.Context, seg *origin.Segment) error {
	if seg == nil || seg.Body == nil {
		return errNoBody
	}
	return nil
}

// Play starts draining the segment body.
func (n *NullPlayer) Play(seg *origin.Segment) error {
	if seg == nil || seg.Body == nil {
		return errNoBody
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return ErrClosed
	}
	n.stopLocked()

	run := &nullRun{done: make(chan struct{}), stop: make(chan struct{})}
	n.run = run
	n.state = StatePlaying
	n.playCount.Add(1)
	go n.drain(run, seg.Body)
	return nil
}

func (n *NullPlayer) drain(run *nullRun, body io.Reader) {
	defer close(run.done)
	buf := make([]byte, nullChunk)
	for {
		select {
		case <-run.stop:
			run.err = playback.ErrStopped
			return
		default:
		}
		if run.paused.Load() {
			if !run.sleep(pollInterval) {
				run.err = playback.ErrStopped
				return
			}
			continue
		}

		read, err := body.Read(buf)
		n.bytesRead.Add(int64(read))
		if n.rate > 0 && read > 0 {
			if !run.sleep(time.Duration(read) * time.Second / time.Duration(n.rate)) {
				run.err = playback.ErrStopped
				return
			}
		}
		if errors.Is(err, io.EOF) {
			n.finish(run)
			return
		}
		if err != nil {
			select {
			case <-run.stop:
				run.err = playback.ErrStopped
			default:
				run.err = fmt.Errorf("read segment: %w", err)
			}
			return
		}
	}
}

// sleep waits for d and reports false if the run was stopped meanwhile.
func (r *nullRun) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.stop:
		return false
	}
}

func (n *NullPlayer) finish(run *nullRun) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.run == run {
		n.run = nil
		if n.state != StateClosed {
			n.state = StateStopped
		}
	}
}

// Pause pauses draining.
func (n *NullPlayer) Pause() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", n.state)
	}
	n.run.paused.Store(true)
	n.state = StatePaused
	n.pauseCount.Add(1)
	return nil
}

// Resume resumes draining.
func (n *NullPlayer) Resume() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", n.state)
	}
	n.run.paused.Store(false)
	n.state = StatePlaying
	n.resumeCount.Add(1)
	return nil
}

// Stop aborts the current segment.
func (n *NullPlayer) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	return nil
}

func (n *NullPlayer) stopLocked() {
	if n.run == nil {
		return
	}
	run := n.run
	run.stopOnce.Do(func() { close(run.stop) })
	n.run = nil
	n.stopCount.Add(1)
	if n.state != StateClosed {
		n.state = StateStopped
	}
}

// Wait blocks until the current segment is drained.
func (n *NullPlayer) Wait(ctx context.Context) error {
	n.mu.Lock()
	run := n.run
	n.mu.Unlock()
	if run == nil {
		return nil
	}
	return waitDone(ctx, run.done, func() error { return run.err })
}

// IsPlaying reports whether a segment is being drained.
func (n *NullPlayer) IsPlaying() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == StatePlaying
}

// State returns the player state.
func (n *NullPlayer) State() PlayerState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Close stops playback; later Play calls fail.
func (n *NullPlayer) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.state = StateClosed
	return nil
}

// BytesRead returns the number of segment bytes consumed so far.
func (n *NullPlayer) BytesRead() int64 {
	return n.bytesRead.Load()
}
