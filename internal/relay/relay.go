// Package relay forwards audio segment requests to the origin service. It
// keeps the origin address server-side, attaches the caller's client
// identity and passes the resumption offset back untouched.
package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pagecast/pagecast/internal/origin"
)

// HeaderRelayError marks responses generated by the relay itself rather than
// forwarded from the origin.
const HeaderRelayError = "X-Relay-Error"

const copyBufferSize = 32 << 10

// Handler serves GET /stream/{bookId}?page={n}.
type Handler struct {
	origin *url.URL
	client *http.Client
}

// NewHandler creates a relay handler forwarding to originURL. timeout bounds
// how long the relay waits for the origin's response headers; the body
// itself is streamed without a deadline.
func NewHandler(originURL string, timeout time.Duration) (*Handler, error) {
	u, err := url.Parse(strings.TrimRight(originURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("origin url must be http or https")
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		tr.ResponseHeaderTimeout = timeout
	}
	return &Handler{
		origin: u,
		client: &http.Client{
			Transport: tr,
			// Redirects from the origin are passed through as-is.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	bookID := r.PathValue("bookId")
	if bookID == "" {
		bookID = strings.Trim(strings.TrimPrefix(r.URL.Path, "/stream/"), "/")
	}
	if _, err := origin.ParseBookID(bookID); err != nil || strings.TrimSpace(bookID) != bookID {
		writeError(w, http.StatusBadRequest, "Invalid bookId")
		return
	}

	page := "0"
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid page")
			return
		}
		page = strconv.Itoa(n)
	}

	clientID := r.Header.Get(origin.HeaderClientID)
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "Missing client id")
		return
	}

	target := h.origin.JoinPath("books", bookID, "stream")
	target.RawQuery = url.Values{"page": {page}}.Encode()

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), nil)
	if err != nil {
		log.Error("building origin request", "err", err)
		writeRelayError(w)
		return
	}
	req.Header.Set(origin.HeaderClientID, clientID)

	resp, err := h.client.Do(req)
	if err != nil {
		if r.Context().Err() != nil {
			// caller went away, nobody to answer
			log.Debug("client disconnected before origin answered", "book", bookID, "page", page)
			return
		}
		log.Warn("origin unreachable", "book", bookID, "page", page, "err", err)
		writeRelayError(w)
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Info("origin refused segment", "book", bookID, "page", page, "status", resp.StatusCode)
		if ra := resp.Header.Get(origin.HeaderRetryAfter); ra != "" {
			w.Header().Set(origin.HeaderRetryAfter, ra)
		}
		writeError(w, resp.StatusCode, "Failed to fetch audio")
		return
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = origin.DefaultContentType
	}
	w.Header().Set("Content-Type", ct)
	if off, ok := resp.Header[http.CanonicalHeaderKey(origin.HeaderNextOffset)]; ok {
		w.Header()[http.CanonicalHeaderKey(origin.HeaderNextOffset)] = off
	}
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}
	n, err := copyFlush(w, resp.Body)
	if err != nil {
		log.Debug("segment stream ended early", "book", bookID, "page", page, "bytes", n, "err", err)
		return
	}
	log.Debug("segment relayed", "book", bookID, "page", page, "bytes", n)
}

// copyFlush copies src to w, flushing after every chunk so audio starts
// playing before the origin has finished sending it.
func copyFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeRelayError(w http.ResponseWriter) {
	w.Header().Set(HeaderRelayError, "transport")
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
