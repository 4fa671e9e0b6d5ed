package audio

import (
	"context"
	"errors"
	"time"

	"github.com/pagecast/pagecast/internal/playback"
)

// PlayerState represents the current state of a player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned by operations on a closed player.
	ErrClosed = errors.New("player is closed")
	// ErrFormat is returned when a segment cannot be decoded.
	ErrFormat = errors.New("unsupported audio format")

	errNoBody = errors.New("segment has no body")
)

const pollInterval = 20 * time.Millisecond

// Device is a playback transport that owns an output.
type Device interface {
	playback.Transport
	IsPlaying() bool
	State() PlayerState
	Close() error
}

// Config holds configuration for audio output.
type Config struct {
	Null       bool          // consume segments without sound
	NullRate   int           // NullPlayer bytes per second; zero drains immediately
	Mute       bool          // play at zero volume
	Volume     float64       // 0.0 to 1.0
	BufferSize time.Duration // oto buffer; zero uses the driver default
}

// DefaultConfig returns the default audio configuration.
func DefaultConfig() Config {
	return Config{
		NullRate: 16000, // 128 kbit/s MP3
		Volume:   1.0,
	}
}

// Open returns the device described by cfg. The sound device itself is
// opened lazily on the first segment.
func Open(cfg Config) Device {
	if cfg.Null {
		return NewNullPlayer(cfg.NullRate)
	}
	return NewPlayer(cfg)
}

// waitDone blocks until done is closed or ctx ends.
func waitDone(ctx context.Context, done <-chan struct{}, result func() error) error {
	select {
	case <-done:
		return result()
	case <-ctx.Done():
		return ctx.Err()
	}
}
