package origin

import "io"

// Book is a book as served by the origin.
type Book struct {
	ID       int64     `json:"id"`
	Content  string    `json:"content"`
	Metadata string    `json:"metadata"`
	Analysis *Analysis `json:"analysis,omitempty"`
}

// Analysis is the origin's opaque text analysis of a book.
type Analysis struct {
	Language   string   `json:"language"`
	Sentiment  string   `json:"sentiment"`
	Characters []string `json:"characters"`
	Summary    string   `json:"summary"`
}

// BookSummary is an entry of the recently accessed books list.
type BookSummary struct {
	ID       int64  `json:"id"`
	Metadata string `json:"metadata"`
}

// BookList is one page of the recently accessed books list.
type BookList struct {
	Books      []BookSummary `json:"books"`
	TotalPages int           `json:"total_pages"`
}

// Segment is one streamed audio segment. The caller owns Body and must close
// it.
type Segment struct {
	BookID      string
	Page        int
	ContentType string
	NextOffset  string
	Size        int64 // -1 when unknown
	Body        io.ReadCloser
}

// Close releases the segment body.
func (s *Segment) Close() error {
	if s == nil || s.Body == nil {
		return nil
	}
	return s.Body.Close()
}
