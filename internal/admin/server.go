// Package admin exposes a small HTTP surface for inspecting and nudging a
// running container: listing installed services, reading one service's
// state, and patching its mode. It is modeled on the teacher's
// internal/proxy server wrapper.
package admin

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server wraps http.Server with the admin surface's own timeouts. Unlike
// the teacher's proxy, requests here are small request/response bodies
// rather than long-lived streams, so timeouts are much tighter.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer builds a Server bound to addr, serving h. If enableHTTP2 is
// true, requests are also served over cleartext HTTP/2 (h2c).
func NewServer(addr string, h http.Handler, enableHTTP2 bool) *Server {
	finalHandler := h
	if enableHTTP2 {
		h2s := &http2.Server{}
		finalHandler = h2c.NewHandler(h, h2s)
	}

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      finalHandler,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Addr returns the address the server is configured to listen on.
func (s *Server) Addr() string { return s.addr }

// ListenAndServe starts the server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
