package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/playback"
)

// go-mp3 always produces 16-bit little endian stereo.
const (
	channels       = 2
	bytesPerSample = 2
)

// Player streams MP3 segments to the sound device.
type Player struct {
	cfg Config

	mu         sync.Mutex
	context    *oto.Context
	sampleRate int
	player     *oto.Player
	source     *pcmSource
	state      PlayerState
	stopped    chan struct{}
	prepared   *preparedSegment
}

// preparedSegment is a segment whose header has been decoded.
type preparedSegment struct {
	seg *origin.Segment
	dec *mp3.Decoder
}

// NewPlayer creates a player. The oto context is created on the first
// segment, at that segment's sample rate.
func NewPlayer(cfg Config) *Player {
	if cfg.Volume <= 0 || cfg.Volume > 1 {
		cfg.Volume = 1
	}
	return &Player{cfg: cfg}
}

// Prepare decodes the segment header, reading from the body until the first
// frame. No lock is held while it reads; when ctx ends first the body is
// closed and ctx.Err() returned.
func (p *Player) Prepare(ctx context.Context, seg *origin.Segment) error {
	if seg == nil || seg.Body == nil {
		return errNoBody
	}
	dec, err := decodeHeader(ctx, seg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.prepared = &preparedSegment{seg: seg, dec: dec}
	p.mu.Unlock()
	return nil
}

func decodeHeader(ctx context.Context, seg *origin.Segment) (*mp3.Decoder, error) {
	type result struct {
		dec *mp3.Decoder
		err error
	}
	ch := make(chan result, 1)
	go func() {
		dec, err := mp3.NewDecoder(seg.Body)
		ch <- result{dec, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFormat, seg.ContentType, r.err)
		}
		return r.dec, nil
	case <-ctx.Done():
		// unblocks the decoder goroutine
		_ = seg.Close()
		return nil, ctx.Err()
	}
}

// Play starts a segment. Segments that were not prepared are decoded first,
// which blocks on the body. The caller keeps ownership of the body.
func (p *Player) Play(seg *origin.Segment) error {
	if seg == nil || seg.Body == nil {
		return errNoBody
	}

	p.mu.Lock()
	closed := p.state == StateClosed
	ready := p.prepared != nil && p.prepared.seg == seg
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ready {
		if err := p.Prepare(context.Background(), seg); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return ErrClosed
	}
	if p.prepared == nil || p.prepared.seg != seg {
		return errors.New("segment was replaced before it started")
	}
	dec := p.prepared.dec
	p.prepared = nil
	p.stopLocked()

	ctx, err := p.device(dec.SampleRate())
	if err != nil {
		return err
	}

	src := &pcmSource{r: dec}
	player := ctx.NewPlayer(src)
	if p.cfg.Mute {
		player.SetVolume(0)
	} else {
		player.SetVolume(p.cfg.Volume)
	}
	player.Play()

	p.player = player
	p.source = src
	p.stopped = make(chan struct{})
	p.state = StatePlaying

	log.Debug("audio: playing segment", "book", seg.BookID, "page", seg.Page,
		"rate", dec.SampleRate(), "bytes", seg.Size)
	return nil
}

// device returns the oto context, creating it on first use. oto allows one
// context per process, so later segments must share its sample rate.
func (p *Player) device(sampleRate int) (*oto.Context, error) {
	if p.context != nil {
		if sampleRate != p.sampleRate {
			return nil, fmt.Errorf("%w: sample rate %d Hz, device opened at %d Hz", ErrFormat, sampleRate, p.sampleRate)
		}
		return p.context, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   p.cfg.BufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	p.context = ctx
	p.sampleRate = sampleRate
	return ctx, nil
}

// Pause pauses the current segment.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return fmt.Errorf("cannot pause: player is %s", p.state)
	}
	p.player.Pause()
	p.state = StatePaused
	return nil
}

// Resume resumes a paused segment.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePaused {
		return fmt.Errorf("cannot resume: player is %s", p.state)
	}
	p.player.Play()
	p.state = StatePlaying
	return nil
}

// Stop aborts the current segment.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.player == nil {
		return
	}
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		log.Debug("audio: close player", "err", err)
	}
	p.player = nil
	p.source = nil
	close(p.stopped)
	if p.state != StateClosed {
		p.state = StateStopped
	}
}

// Wait blocks until the current segment has been played out.
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	player, src, stopped := p.player, p.source, p.stopped
	p.mu.Unlock()
	if player == nil {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			return playback.ErrStopped
		case <-ticker.C:
		}

		p.mu.Lock()
		current, paused := p.player == player, p.state == StatePaused
		p.mu.Unlock()
		if !current {
			return playback.ErrStopped
		}
		if paused || player.IsPlaying() {
			continue
		}
		if err := src.Err(); err != nil {
			return err
		}
		if err := player.Err(); err != nil {
			return err
		}
		if !src.Done() {
			continue
		}
		p.finish(player)
		return nil
	}
}

// finish releases a segment that played to its end.
func (p *Player) finish(player *oto.Player) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player == player {
		p.stopLocked()
	}
}

// IsPlaying reports whether a segment is audible.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StatePlaying
}

// State returns the player state.
func (p *Player) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops playback. The oto context has no Close in v3 and is left for
// the process to release.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.prepared = nil
	p.state = StateClosed
	return nil
}

// pcmSource is the decoder as seen by oto. It remembers how the stream
// ended so Wait can tell a finished segment from a broken one.
type pcmSource struct {
	r    io.Reader
	done atomic.Bool
	err  atomic.Pointer[error]
}

func (s *pcmSource) Read(b []byte) (int, error) {
	n, err := s.r.Read(b)
	switch {
	case errors.Is(err, io.EOF):
		s.done.Store(true)
	case err != nil:
		wrapped := fmt.Errorf("decode segment: %w", err)
		s.err.Store(&wrapped)
		s.done.Store(true)
		return n, io.EOF
	}
	return n, err
}

// Done reports whether the decoder has been read to its end.
func (s *pcmSource) Done() bool { return s.done.Load() }

// Err returns the decode error that ended the stream, if any.
func (s *pcmSource) Err() error {
	if e := s.err.Load(); e != nil {
		return *e
	}
	return nil
}
