// Package server hosts agents over HTTP. A request runs one agent on one
// input and answers with its response; the stream endpoint upgrades to a
// websocket and reports conversation events while the agent runs.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
)

// DefaultAddr is the listen address when Options.Addr is empty.
const DefaultAddr = ":8088"

// DefaultShutdownTimeout bounds graceful shutdown when
// Options.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 10 * time.Second

// Agents resolves the agents the server hosts. *engine.Engine satisfies it.
type Agents interface {
	Agent(name string) (agents.Agent, error)
	Agents() []agents.Entry
}

// Options configures a Server.
type Options struct {
	Addr string
	// RequestTimeout bounds one agent run. Zero means no bound beyond the
	// client connection.
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Server serves agents over HTTP.
type Server struct {
	agents Agents
	opts   Options
	log    *slog.Logger
}

// New creates a Server for src.
func New(src Agents, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{agents: src, opts: opts, log: log}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("POST /agents/{name}/responses", s.handleResponse)
	mux.HandleFunc("GET /agents/{name}/stream", s.handleStream)
	return mux
}

// ListenAndServe serves on Options.Addr until ctx is cancelled, then shuts
// down gracefully. In-flight agent runs see a cancelled context once the
// shutdown timeout expires.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	scope, cancelScope := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelScope()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return scope },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	s.log.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	cancelScope()
	if err != nil {
		_ = srv.Close()
		return fmt.Errorf("server: shutdown: %w", err)
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}
