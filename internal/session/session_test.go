package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pagecast/pagecast/internal/cache"
	"github.com/pagecast/pagecast/internal/origin"
)

type fakeFetcher struct {
	mu        sync.Mutex
	books     map[string]*origin.Book
	fetches   []string
	listCalls [][2]int
	list      *origin.BookList
	err       error // returned by FetchBook when set
}

func (f *fakeFetcher) FetchBook(_ context.Context, id string) (*origin.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, id)
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.books[id]
	if !ok {
		return nil, &origin.StatusError{StatusCode: http.StatusNotFound, URL: "/books/" + id}
	}
	book := *b
	return &book, nil
}

func (f *fakeFetcher) ListBooks(_ context.Context, page, limit int) (*origin.BookList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, [2]int{page, limit})
	return f.list, nil
}

func newFetcher(ids ...int64) *fakeFetcher {
	f := &fakeFetcher{books: map[string]*origin.Book{}}
	for _, id := range ids {
		s := strconv.FormatInt(id, 10)
		f.books[s] = &origin.Book{ID: id, Content: strings.Repeat("x", 2500), Metadata: `<meta name="title" content="Book ` + s + `">`}
	}
	return f
}

func TestLoadRejectsMalformedID(t *testing.T) {
	f := newFetcher(1)
	s := New(f, nil, 0)
	for _, id := range []string{"", "abc", "-1", "0", "1.5", "+3"} {
		if _, err := s.Load(context.Background(), id); !errors.Is(err, origin.ErrMalformedInput) {
			t.Errorf("Load(%q) error = %v, want ErrMalformedInput", id, err)
		}
	}
	if len(f.fetches) != 0 {
		t.Errorf("origin contacted for malformed ids: %v", f.fetches)
	}
}

func TestLoadRecentOrder(t *testing.T) {
	s := New(newFetcher(1, 2, 3), nil, 0)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3", "1"} {
		if _, err := s.Load(ctx, id); err != nil {
			t.Fatalf("Load(%s) error = %v", id, err)
		}
	}

	var got []int64
	for _, b := range s.RecentBooks() {
		got = append(got, b.ID)
	}
	want := []int64{1, 3, 2}
	if len(got) != len(want) {
		t.Fatalf("recent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recent = %v, want %v", got, want)
		}
	}
	if s.BookID() != "1" || s.TotalPages(1000) != 3 {
		t.Errorf("current = %s with %d pages", s.BookID(), s.TotalPages(1000))
	}
}

func TestLoadNotFound(t *testing.T) {
	s := New(newFetcher(), nil, 0)
	_, err := s.Load(context.Background(), "404")
	if !errors.Is(err, origin.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
	if msg := origin.Message(err); msg != "Book content not found." {
		t.Errorf("Message() = %q", msg)
	}
	if s.Current() != nil {
		t.Error("failed load replaced the current book")
	}
}

func TestLoadAlwaysAsksOrigin(t *testing.T) {
	bc, err := cache.NewBookCache(cache.Config{})
	if err != nil {
		t.Fatalf("NewBookCache() error = %v", err)
	}
	f := newFetcher(7)
	ctx := context.Background()

	if _, err := New(f, bc, 0).Load(ctx, "7"); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	if _, ok := bc.Get(7); !ok {
		t.Fatal("book not cached after the first load")
	}
	book, err := New(f, bc, 0).Load(ctx, " 7 ")
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if book.ID != 7 {
		t.Errorf("ID = %d, want 7", book.ID)
	}
	// the origin records each access in its recent list
	if len(f.fetches) != 2 {
		t.Errorf("fetches = %v, want two", f.fetches)
	}
}

func TestLoadFallsBackToCache(t *testing.T) {
	bc, err := cache.NewBookCache(cache.Config{})
	if err != nil {
		t.Fatalf("NewBookCache() error = %v", err)
	}
	ctx := context.Background()
	if _, err := New(newFetcher(7), bc, 0).Load(ctx, "7"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name    string
		id      string
		err     error
		wantErr error
	}{
		{"offline uses cache", "7", fmt.Errorf("%w: connection refused", origin.ErrTransport), nil},
		{"offline without cached copy", "8", fmt.Errorf("%w: connection refused", origin.ErrTransport), origin.ErrTransport},
		{"rate limited", "7", &origin.StatusError{StatusCode: http.StatusTooManyRequests}, origin.ErrRateLimited},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFetcher()
			f.err = tc.err
			s := New(f, bc, 0)
			book, err := s.Load(ctx, tc.id)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Load() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if book.ID != 7 || s.Current() != book {
				t.Errorf("book = %+v, want cached book 7 as current", book)
			}
			if len(f.fetches) != 1 {
				t.Errorf("fetches = %v, want the origin tried first", f.fetches)
			}
		})
	}
}

func TestRecent(t *testing.T) {
	f := newFetcher()
	f.list = &origin.BookList{
		Books:      []origin.BookSummary{{ID: 4}, {ID: 5}},
		TotalPages: 3,
	}
	s := New(f, nil, 0)

	list, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(list.Books) != 2 {
		t.Errorf("books = %d, want 2", len(list.Books))
	}
	if len(f.listCalls) != 1 || f.listCalls[0] != [2]int{1, DefaultListLimit} {
		t.Errorf("list calls = %v, want [[1 5]]", f.listCalls)
	}
	if page, total := s.RecentPage(); page != 1 || total != 3 {
		t.Errorf("RecentPage() = %d/%d, want 1/3", page, total)
	}
	if got := s.RecentBooks(); len(got) != 2 || got[0].ID != 4 {
		t.Errorf("RecentBooks() = %+v", got)
	}
}

func TestMetadataMemoised(t *testing.T) {
	s := New(newFetcher(2), nil, 0)
	book, err := s.Load(context.Background(), "2")
	if err != nil {
		t.Fatal(err)
	}
	if md := s.Metadata(book); md.Title != "Book 2" {
		t.Errorf("Title = %q", md.Title)
	}
	book.Metadata = `<meta name="title" content="Renamed">`
	if md := s.Metadata(book); md.Title != "Renamed" {
		t.Errorf("Title after change = %q, want Renamed", md.Title)
	}
	if md := s.Metadata(nil); md.Title != UnknownTitle {
		t.Errorf("Metadata(nil).Title = %q", md.Title)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(newFetcher(), nil, 0)

	book, err := s.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if s.BookID() != "" || s.LocalPath() != path {
		t.Errorf("BookID %q LocalPath %q", s.BookID(), s.LocalPath())
	}
	if md := s.Metadata(book); md.Title != "notes.txt" {
		t.Errorf("Title = %q, want notes.txt", md.Title)
	}

	bad := filepath.Join(dir, "bad.bin")
	_ = os.WriteFile(bad, []byte{0xff, 0xfe, 0x00}, 0o644)
	if _, err := s.LoadFile(bad); !errors.Is(err, origin.ErrMalformedInput) {
		t.Errorf("LoadFile(binary) error = %v", err)
	}
	if _, err := s.LoadFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("LoadFile(missing) succeeded")
	}
}
