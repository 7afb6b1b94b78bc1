package httpserver

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Server represents the HTTP server.
//
// No write timeout is set: event streams stay open for as long as the
// page is connected.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		handler: handler,
	}
}

// SetTLSConfig installs a TLS configuration, e.g. one whose
// GetCertificate reloads rotated certificates.
func (s *Server) SetTLSConfig(cfg *tls.Config) {
	s.httpServer.TLSConfig = cfg
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts the HTTPS server. certFile and keyFile may be
// empty when the TLS config supplies certificates.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	return s.httpServer.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
