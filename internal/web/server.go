// Package web serves a local read-only browser over the cached audit data.
// Everything renders from the read interface; cache internals stay private.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gptscan/gptscan/internal/read"
)

// Server is the web UI server.
type Server struct {
	reader *read.Reader
	render *Renderer
	log    *slog.Logger
}

// NewServer creates the web UI server over the read interface.
func NewServer(reader *read.Reader, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{reader: reader, render: NewRenderer(), log: log}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/gpts", http.StatusFound)
	})
	mux.HandleFunc("GET /gpts", s.handleList)
	mux.HandleFunc("GET /gpts/{id}", s.handleDetail)
	return securityHeaders(mux)
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}
