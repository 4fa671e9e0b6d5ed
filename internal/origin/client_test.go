package origin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, base, relay string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = base
	cfg.RelayURL = relay
	cfg.ClientID = "client-123"
	cfg.RequestsPerMinute = 6000
	cfg.Burst = 100
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestParseBookID(t *testing.T) {
	tests := []struct {
		id      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{" 7 ", 7, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"4.2", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseBookID(tc.id)
		if tc.wantErr {
			if !errors.Is(err, ErrMalformedInput) {
				t.Errorf("ParseBookID(%q) error = %v, want ErrMalformedInput", tc.id, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseBookID(%q) = %d, %v; want %d", tc.id, got, err, tc.want)
		}
	}
}

func TestNewClientRequiresIdentity(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewClient(cfg); !errors.Is(err, ErrMissingClientID) {
		t.Errorf("expected ErrMissingClientID, got %v", err)
	}
	cfg.ClientID = "x"
	cfg.BaseURL = "ftp://example.com"
	if _, err := NewClient(cfg); err == nil {
		t.Error("expected error for non-http base url")
	}
}

func TestFetchBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get(HeaderClientID); got != "client-123" {
			t.Errorf("X-Client-Id = %q", got)
		}
		_ = json.NewEncoder(w).Encode(Book{
			ID:       42,
			Content:  "hello\nworld",
			Metadata: `<meta name="title" content="Hello">`,
			Analysis: &Analysis{Language: "en", Characters: []string{"A", "B"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	book, err := c.FetchBook(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchBook() error = %v", err)
	}
	if book.ID != 42 || book.Content != "hello\nworld" {
		t.Errorf("unexpected book %+v", book)
	}
	if book.Analysis == nil || len(book.Analysis.Characters) != 2 {
		t.Errorf("analysis not decoded: %+v", book.Analysis)
	}
}

func TestFetchBookErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"bad request", http.StatusBadRequest, ErrMalformedInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, "")
			_, err := c.FetchBook(context.Background(), "1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tc.status {
				t.Errorf("expected StatusError with %d, got %v", tc.status, err)
			}
		})
	}
}

func TestFetchBookRejectsMalformedID(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	if _, err := c.FetchBook(context.Background(), "../etc"); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
	if called {
		t.Error("origin should not be contacted for a malformed id")
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, "")
	_, err := c.FetchBook(context.Background(), "1")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestListBooks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/books" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"books":[{"id":3,"metadata":"m"}],"total_pages":4}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	list, err := c.ListBooks(context.Background(), 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if list.TotalPages != 4 || len(list.Books) != 1 || list.Books[0].ID != 3 {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestStreamSegmentThroughRelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream/42" || r.URL.Query().Get("page") != "2" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "audio/ogg")
		w.Header().Set(HeaderNextOffset, "off=2000")
		_, _ = io.WriteString(w, "AUDIO")
	}))
	defer srv.Close()

	c := newTestClient(t, "http://origin.invalid", srv.URL)
	seg, err := c.StreamSegment(context.Background(), "42", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close() //nolint:errcheck

	if seg.ContentType != "audio/ogg" || seg.NextOffset != "off=2000" || seg.Page != 2 {
		t.Errorf("unexpected segment %+v", seg)
	}
	body, _ := io.ReadAll(seg.Body)
	if string(body) != "AUDIO" {
		t.Errorf("body = %q", body)
	}
}

func TestStreamSegmentDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books/9/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "")
	_, err := c.StreamSegment(context.Background(), "9", 1)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if Message(err) != "Limit exceeded. Please try again later." {
		t.Errorf("Message() = %q", Message(err))
	}
}

func TestHeaderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.ClientID = "c"
	cfg.Timeout = 50 * time.Millisecond
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.StreamSegment(context.Background(), "1", 1)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport on header timeout, got %v", err)
	}
}
