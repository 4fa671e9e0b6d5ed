package playback

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pagecast/pagecast/internal/origin"
)

// trackedBody records whether it was closed.
type trackedBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackedBody) Close() error {
	b.closed.Store(true)
	return nil
}

// mockSource serves one segment per page and records requested pages.
type mockSource struct {
	mu     sync.Mutex
	pages  []int
	bodies []*trackedBody
	errs   map[int]error
	block  bool             // wait for ctx before answering
	body   func() io.Reader // segment audio; "audio" when nil
}

func (s *mockSource) StreamSegment(ctx context.Context, bookID string, page int) (*origin.Segment, error) {
	s.mu.Lock()
	s.pages = append(s.pages, page)
	err := s.errs[page]
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	var r io.Reader = strings.NewReader("audio")
	if s.body != nil {
		r = s.body()
	}
	body := &trackedBody{Reader: r}
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()
	return &origin.Segment{
		BookID:      bookID,
		Page:        page,
		ContentType: origin.DefaultContentType,
		NextOffset:  "offset-" + strconv.Itoa(page),
		Size:        -1,
		Body:        body,
	}, nil
}

func (s *mockSource) requested() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.pages...)
}

// mockTransport finishes every segment as soon as Wait is called unless
// hold is set.
type mockTransport struct {
	mu         sync.Mutex
	played     []*origin.Segment
	pauseCount int
	resumeCnt  int
	stopCount  int
	playErr    error
	prepareErr error
	waitErr    error
	hold       bool
	readHeader bool // Prepare reads from the body like a stream decoder
}

func (m *mockTransport) Prepare(ctx context.Context, seg *origin.Segment) error {
	m.mu.Lock()
	err, read := m.prepareErr, m.readHeader
	m.mu.Unlock()
	if err != nil || !read {
		return err
	}
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(seg.Body, make([]byte, 4))
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockTransport) Play(seg *origin.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playErr != nil {
		return m.playErr
	}
	m.played = append(m.played, seg)
	return nil
}

func (m *mockTransport) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCount++
	return nil
}

func (m *mockTransport) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCnt++
	return nil
}

func (m *mockTransport) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCount++
	return nil
}

func (m *mockTransport) Wait(ctx context.Context) error {
	m.mu.Lock()
	hold, err := m.hold, m.waitErr
	m.mu.Unlock()
	if hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *mockTransport) playedPages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages := make([]int, len(m.played))
	for i, seg := range m.played {
		pages[i] = seg.Page
	}
	return pages
}

var errBoom = errors.New("boom")
