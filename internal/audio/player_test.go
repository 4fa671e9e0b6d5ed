package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pagecast/pagecast/internal/origin"
)

func TestPlayerStateString(t *testing.T) {
	tests := []struct {
		state    PlayerState
		expected string
	}{
		{StateStopped, "stopped"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{StateClosed, "closed"},
		{PlayerState(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPlayerRejectsUndecodableSegment(t *testing.T) {
	p := NewPlayer(DefaultConfig())
	err := p.Play(segment(bytes.NewReader([]byte("<html>not audio</html>"))))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("Play() error = %v, want ErrFormat", err)
	}
	if p.IsPlaying() {
		t.Error("player reports playing after a rejected segment")
	}
}

func TestPlayerPrepareStalledBody(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	seg := &origin.Segment{BookID: "1", Page: 1, Size: -1, Body: pr}

	p := NewPlayer(DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Prepare(ctx, seg) }()

	// the player stays usable while the header read is stuck
	if p.IsPlaying() {
		t.Error("IsPlaying() = true before any segment started")
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Prepare() = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Prepare() did not return after its context ended")
	}
	if _, err := pw.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("body still open after Prepare gave up: write = %v", err)
	}
}

func TestPlayerIdleOperations(t *testing.T) {
	p := NewPlayer(DefaultConfig())
	if err := p.Pause(); err == nil {
		t.Error("Pause() on an idle player should fail")
	}
	if err := p.Resume(); err == nil {
		t.Error("Resume() on an idle player should fail")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop() = %v, want nil", err)
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := p.Play(segment(bytes.NewReader(nil))); !errors.Is(err, ErrClosed) {
		t.Errorf("Play() after Close() = %v, want ErrClosed", err)
	}
}

func TestOpen(t *testing.T) {
	if _, ok := Open(Config{Null: true}).(*NullPlayer); !ok {
		t.Error("Open(Null) did not return a NullPlayer")
	}
	if _, ok := Open(DefaultConfig()).(*Player); !ok {
		t.Error("Open() did not return a Player")
	}
}
