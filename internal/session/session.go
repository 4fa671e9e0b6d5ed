// Package session holds the book being read and the recently accessed
// books list.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/paginate"
)

// DefaultListLimit is the page size of the recently accessed books list.
const DefaultListLimit = 5

// Fetcher loads books and the recent list from the origin.
type Fetcher interface {
	FetchBook(ctx context.Context, id string) (*origin.Book, error)
	ListBooks(ctx context.Context, page, limit int) (*origin.BookList, error)
}

// Cache stores fetched books.
type Cache interface {
	Get(id int64) (*origin.Book, bool)
	Put(book *origin.Book) error
}

// Session is the book being read plus the recent books list. It is safe
// for concurrent use.
type Session struct {
	fetcher Fetcher
	cache   Cache
	limit   int

	mu          sync.Mutex
	current     *origin.Book
	local       string // path when the current book is a local file
	meta        map[int64]Metadata
	recent      []origin.BookSummary
	recentPage  int
	recentTotal int
}

// New creates a session. cache may be nil; limit <= 0 uses
// DefaultListLimit.
func New(fetcher Fetcher, cache Cache, limit int) *Session {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &Session{
		fetcher: fetcher,
		cache:   cache,
		limit:   limit,
		meta:    make(map[int64]Metadata),
	}
}

// Load validates id and fetches the book. The origin is always asked
// first, since that request is what records the access in its recent list;
// the cache only answers when the origin cannot be reached. The book becomes
// current and moves to the front of the recent list.
func (s *Session) Load(ctx context.Context, id string) (*origin.Book, error) {
	n, err := origin.ParseBookID(id)
	if err != nil {
		return nil, err
	}

	cached := false
	book, err := s.fetcher.FetchBook(ctx, strconv.FormatInt(n, 10))
	switch {
	case err == nil:
		if s.cache != nil {
			if err := s.cache.Put(book); err != nil {
				log.Warn("session: cache book", "id", n, "err", err)
			}
		}
	case errors.Is(err, origin.ErrTransport):
		if book, cached = s.cached(n); !cached {
			return nil, err
		}
		log.Warn("session: origin unreachable, using cached book", "id", n, "err", err)
	default:
		return nil, err
	}
	log.Debug("session: book loaded", "id", n, "cached", cached, "chars", utf8.RuneCountInString(book.Content))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = book
	s.local = ""
	s.addRecent(book)
	return book, nil
}

func (s *Session) cached(id int64) (*origin.Book, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(id)
}

// LoadFile makes a local text file the current book. Local books have no
// id and cannot be streamed.
func (s *Session) LoadFile(path string) (*origin.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not UTF-8 text", origin.ErrMalformedInput, path)
	}
	book := &origin.Book{
		Content:  string(data),
		Metadata: fmt.Sprintf(`<meta name="title" content=%q>`, filepath.Base(path)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = book
	s.local = path
	return book, nil
}

// addRecent puts book at the front of the recent list, removing any older
// entry with the same id.
func (s *Session) addRecent(book *origin.Book) {
	entry := origin.BookSummary{ID: book.ID, Metadata: book.Metadata}
	out := make([]origin.BookSummary, 0, len(s.recent)+1)
	out = append(out, entry)
	for _, b := range s.recent {
		if b.ID != book.ID {
			out = append(out, b)
		}
	}
	s.recent = out
}

// Recent fetches one page of the recently accessed books list and makes it
// the local list.
func (s *Session) Recent(ctx context.Context, page int) (*origin.BookList, error) {
	if page < 1 {
		page = 1
	}
	list, err := s.fetcher.ListBooks(ctx, page, s.limit)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append([]origin.BookSummary(nil), list.Books...)
	s.recentPage = page
	s.recentTotal = list.TotalPages
	return list, nil
}

// RecentBooks returns the local recent list.
func (s *Session) RecentBooks() []origin.BookSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]origin.BookSummary(nil), s.recent...)
}

// RecentPage returns the list page last fetched and the total page count.
func (s *Session) RecentPage() (page, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentPage, s.recentTotal
}

// Current returns the current book, or nil.
func (s *Session) Current() *origin.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LocalPath returns the file backing the current book, if it is local.
func (s *Session) LocalPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// BookID returns the current book's id as sent to the origin, or "" for
// none or a local file.
func (s *Session) BookID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.ID <= 0 {
		return ""
	}
	return strconv.FormatInt(s.current.ID, 10)
}

// TotalPages returns the page count of the current book.
func (s *Session) TotalPages(pageSize int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return paginate.TotalPages(s.current.Content, pageSize)
}

// Metadata returns the parsed metadata of book, memoised by id.
func (s *Session) Metadata(book *origin.Book) Metadata {
	if book == nil {
		return ParseMetadata("")
	}
	if book.ID <= 0 {
		return ParseMetadata(book.Metadata)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if md, ok := s.meta[book.ID]; ok && md.Raw == book.Metadata {
		return md
	}
	md := ParseMetadata(book.Metadata)
	s.meta[book.ID] = md
	return md
}
