package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/identity"
	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
)

// DefaultClientIPHeader is the edge header carrying the connecting address.
const DefaultClientIPHeader = "CF-Connecting-IP"

// Authenticator verifies the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*identity.Identity, error)
}

// Emitter accepts analytics records without blocking.
type Emitter interface {
	Emit(rec analytics.Record)
}

// Options configures a Server. Limiter and Clock are required.
type Options struct {
	Addr           string
	Limiter        limiter.Limiter
	Algorithm      limiter.Algorithm
	Clock          clock.Clock
	ClientIPHeader string
	Version        string

	// Gate is nil for public deployments.
	Gate Authenticator
	// Emitter receives one record per request; may be nil.
	Emitter Emitter
	// Hub serves /ws when set. Subscribers pass the Gate like any caller.
	Hub *Hub
}

// Server is the Tollgate HTTP server.
type Server struct {
	httpServer *http.Server
	limiter    limiter.Limiter
	algorithm  limiter.Algorithm
	clock      clock.Clock
	ipHeader   string
	version    string
	gate       Authenticator
	emitter    Emitter
	hub        *Hub
	mux        *http.ServeMux
}

// New creates a new server.
func New(opts Options) (*Server, error) {
	if opts.Limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if opts.ClientIPHeader == "" {
		opts.ClientIPHeader = DefaultClientIPHeader
	}

	s := &Server{
		limiter:   opts.Limiter,
		algorithm: opts.Algorithm,
		clock:     opts.Clock,
		ipHeader:  opts.ClientIPHeader,
		version:   opts.Version,
		gate:      opts.Gate,
		emitter:   opts.Emitter,
		hub:       opts.Hub,
		mux:       http.NewServeMux(),
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/health", s.handleHealth)
	if s.hub != nil {
		s.mux.HandleFunc("/ws", s.handleWebSocket)
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
		"time":    s.clock.Now().Format(time.RFC3339),
	})
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	log.Printf("tollgate server listening on %s", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
