// Package server is the optional HTTP+WebSocket façade over the inference
// pipeline named in spec.md §1 as an out-of-scope UI surface. It exposes
// just enough of a real endpoint (request/response generation, a push
// channel for streamed events, a health probe) to keep gorilla/mux and
// gorilla/websocket wired to genuine call sites, without reimplementing
// the dashboard the teacher built around them.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/localmind/assistant/internal/inference"
	"github.com/localmind/assistant/internal/session"
)

// Config is the façade's listen/timeout policy.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:         ":8085",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server wires the inference engine and session manager behind a small
// HTTP API and a WebSocket event stream.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub

	engine   *inference.Engine
	sessions *session.Manager

	startTime time.Time
}

// New builds a Server. Call Run to start serving and the hub's event loop.
func New(cfg Config, engine *inference.Engine, sessions *session.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		hub:       NewHub(),
		engine:    engine,
		sessions:  sessions,
		startTime: time.Now(),
	}

	s.routes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      SecurityHeadersMiddleware(s.router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// UseHub swaps in a hub built before the Server existed, so a caller can
// share one Hub between the WebSocket façade and an out-of-band alert
// broadcaster. Call before Run.
func (s *Server) UseHub(h *Hub) *Server {
	s.hub = h
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Run starts the hub's broadcast loop and blocks serving HTTP until the
// server is shut down or fails to start.
func (s *Server) Run() error {
	go s.hub.Run()
	log.Printf("[SERVER] Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
