package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Config holds configuration for the relay server.
type Config struct {
	Addr      string        // listen address
	OriginURL string        // origin base URL
	Timeout   time.Duration // wait for origin response headers
	CORS      bool          // allow any browser origin
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:      ":8080",
		OriginURL: "http://localhost:8000",
		Timeout:   30 * time.Second,
	}
}

// Server is the relay HTTP server.
type Server struct {
	cfg  Config
	http *http.Server
}

// New creates a relay server from cfg.
func New(cfg Config) (*Server, error) {
	h, err := NewHandler(cfg.OriginURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /stream/{bookId}", h)
	mux.HandleFunc("GET /healthz", handleHealth)

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           logMiddleware(mux, cfg.CORS),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("relay listening", "addr", ln.Addr().String(), "origin", s.cfg.OriginURL)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("relay shutting down")
		return s.http.Shutdown(sctx)
	})

	return g.Wait()
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func logMiddleware(next http.Handler, corsEnabled bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Expose-Headers", "X-Next-Offset, Retry-After")
		}
		sw := newStatusResponseWriter(w)
		next.ServeHTTP(sw, r)
		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.Status(),
			"bytes", sw.bytes,
			"duration", time.Since(start),
		)
	})
}
