// Package origin talks to the origin service: book text, the recently
// accessed books list, and streamed audio segments (directly or through the
// relay).
package origin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Headers exchanged with the origin and the relay.
const (
	HeaderClientID   = "X-Client-Id"
	HeaderNextOffset = "X-Next-Offset"
	HeaderRetryAfter = "Retry-After"

	DefaultContentType = "audio/mpeg"
)

// ParseBookID validates a book identifier: a positive decimal integer.
func ParseBookID(id string) (int64, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, fmt.Errorf("%w: empty book id", ErrMalformedInput)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: invalid book id %q", ErrMalformedInput, id)
		}
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid book id %q", ErrMalformedInput, id)
	}
	return n, nil
}

// Config holds configuration for the origin client.
type Config struct {
	BaseURL           string        // origin base URL for books and lists
	RelayURL          string        // relay base URL for segments; empty streams from BaseURL
	ClientID          string        // sent as X-Client-Id on every request
	Timeout           time.Duration // bound on waiting for response headers
	RequestsPerMinute int           // outbound request budget
	Burst             int
	HTTPClient        *http.Client // optional
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8000",
		Timeout:           30 * time.Second,
		RequestsPerMinute: 60,
		Burst:             5,
	}
}

// Client is an HTTP client for the origin service.
type Client struct {
	base     *url.URL
	relay    *url.URL
	clientID string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	var relay *url.URL
	if cfg.RelayURL != "" {
		if relay, err = parseBaseURL(cfg.RelayURL); err != nil {
			return nil, fmt.Errorf("invalid relay url: %w", err)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	hc := cfg.HTTPClient
	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = cfg.Timeout
		hc = &http.Client{Transport: tr}
	}

	return &Client{
		base:     base,
		relay:    relay,
		clientID: cfg.ClientID,
		timeout:  cfg.Timeout,
		http:     hc,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.Burst),
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%q is not an http(s) url", raw)
	}
	return u, nil
}

// ClientID returns the identity sent with every request.
func (c *Client) ClientID() string { return c.clientID }

// FetchBook retrieves a book by id.
func (c *Client) FetchBook(ctx context.Context, id string) (*Book, error) {
	if _, err := ParseBookID(id); err != nil {
		return nil, err
	}
	u := c.base.JoinPath("books", id)

	var book Book
	if err := c.getJSON(ctx, u, &book); err != nil {
		return nil, fmt.Errorf("fetch book %s: %w", id, err)
	}
	return &book, nil
}

// ListBooks retrieves one page of the recently accessed books list.
func (c *Client) ListBooks(ctx context.Context, page, limit int) (*BookList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 5
	}
	u := c.base.JoinPath("user", "books")
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var list BookList
	if err := c.getJSON(ctx, u, &list); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return &list, nil
}

// StreamSegment opens the audio segment for a page. Through the relay this
// is GET /stream/{id}?page=n, otherwise the origin's
// GET /books/{id}/stream?page=n. The response body is not read; the caller
// owns Segment.Body and cancelling ctx aborts the stream.
func (c *Client) StreamSegment(ctx context.Context, bookID string, page int) (*Segment, error) {
	if _, err := ParseBookID(bookID); err != nil {
		return nil, err
	}
	if page < 0 {
		return nil, fmt.Errorf("%w: page %d", ErrMalformedInput, page)
	}

	var u *url.URL
	if c.relay != nil {
		u = c.relay.JoinPath("stream", bookID)
	} else {
		u = c.base.JoinPath("books", bookID, "stream")
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	log.Debug("opening segment", "book", bookID, "page", page, "url", u.String())

	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, u); err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = DefaultContentType
	}
	return &Segment{
		BookID:      bookID,
		Page:        page,
		ContentType: ct,
		NextOffset:  resp.Header.Get(HeaderNextOffset),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, u *url.URL, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := checkStatus(resp, u); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, u *url.URL) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	req.Header.Set(HeaderClientID, c.clientID)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return resp, nil
}

// checkStatus closes the body and returns a *StatusError for non-2xx
// responses.
func checkStatus(resp *http.Response, u *url.URL) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		URL:        u.Redacted(),
		RetryAfter: resp.Header.Get(HeaderRetryAfter),
	}
}
