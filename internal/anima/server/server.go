// Package server exposes an Anima service over local HTTP.
//
// Endpoints:
//
//	GET    /health               → healthResponse
//	GET    /history              → []store.Message
//	GET    /memories?q=          → []store.Memory
//	DELETE /memories/{id}        → 204
//	GET    /config/{key}         → settingResponse
//	PUT    /config/{key}         → settingRequest → settingResponse
//	GET    /profile              → []store.ProfileTrait
//	POST   /profile              → traitRequest → 201
//	DELETE /profile              → 204
//	POST   /chat                 → app.ChatRequest → chatResponse
//	GET    /chat/stream          → WebSocket, see handleStream
//	POST   /sleep                → sleep.Result
//	POST   /export               → exportRequest → exportResponse
//	GET    /export/brain         → app.BrainExport
//	POST   /reset                → 204
//	GET    /greeting?time_of_day= → greetingResponse
//
// Errors are returned as {"error": <user message>, "detail": <cause>}.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/generate"
	"github.com/bdobrica/Anima/internal/anima/sleep"
	"github.com/bdobrica/Anima/internal/anima/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Backend is the part of app.Service the server calls.
type Backend interface {
	Ready() bool
	RuntimeErr() error

	SendMessage(ctx context.Context, req app.ChatRequest) (string, error)
	SendMessageStream(ctx context.Context, req app.ChatRequest) (*generate.Generation, error)
	SaveAssistantMessage(ctx context.Context, text string) (int64, error)
	ChatHistory(ctx context.Context) ([]store.Message, error)

	SearchMemories(ctx context.Context, query string) ([]store.Memory, error)
	DeleteMemory(ctx context.Context, messageID int64) error

	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	ProfileTraits(ctx context.Context) ([]store.ProfileTrait, error)
	AddProfileTrait(ctx context.Context, category, content string) error
	ClearProfile(ctx context.Context) error

	RunSleepCycle(ctx context.Context) (sleep.Result, error)
	ExportDatabase(ctx context.Context, dest string) (bool, error)
	ExportBrain(ctx context.Context) ([]byte, error)
	FactoryReset(ctx context.Context) error
	ProactiveGreeting(ctx context.Context, timeOfDay string) (string, error)
}

var _ Backend = (*app.Service)(nil)

// Server is Anima's HTTP surface.
type Server struct {
	addr    string
	backend Backend
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
}

// Option customises a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server for b on addr. It does not start listening.
func New(addr string, b Backend, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		backend: b,
		logger:  slog.Default(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("GET /memories", s.handleMemories)
	s.mux.HandleFunc("DELETE /memories/{id}", s.handleDeleteMemory)
	s.mux.HandleFunc("GET /config/{key}", s.handleGetSetting)
	s.mux.HandleFunc("PUT /config/{key}", s.handlePutSetting)
	s.mux.HandleFunc("GET /profile", s.handleProfile)
	s.mux.HandleFunc("POST /profile", s.handleAddTrait)
	s.mux.HandleFunc("DELETE /profile", s.handleClearProfile)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /chat/stream", s.handleStream)
	s.mux.HandleFunc("POST /sleep", s.handleSleep)
	s.mux.HandleFunc("POST /export", s.handleExport)
	s.mux.HandleFunc("GET /export/brain", s.handleExportBrain)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	s.mux.HandleFunc("GET /greeting", s.handleGreeting)

	s.handler = s.traceMiddleware(s.mux)
	return s
}

// ServeHTTP implements http.Handler so the server can be tested without a
// listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start binds the listener and serves in the background until ctx ends or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	// No WriteTimeout: chat streams outlive any fixed bound.
	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("server: listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server: stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("server: shutdown error", "err", err)
	}
}
