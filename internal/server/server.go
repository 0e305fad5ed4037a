// Package server runs the audit sink process: it owns the dependency graph
// lifecycle and the background rotation worker, and stops cleanly on signal.
package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spounge-ai/auditvault/internal/wiring"
)

// Server is the long-running process around the rotation worker.
type Server struct {
	deps *wiring.Dependencies

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a server over an assembled dependency graph.
func New(deps *wiring.Dependencies) *Server {
	return &Server{deps: deps}
}

// Start launches the rotation worker. Non-blocking.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.deps.Worker.Run(ctx)
	}()
	s.deps.Logger.InfoContext(ctx, "audit sink started")
}

// Stop cancels the worker and waits for it to drain, then releases pooled
// resources. Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	s.deps.Close()
	s.deps.Logger.Info("audit sink stopped")
}

// WaitForSignal blocks until SIGINT or SIGTERM.
func WaitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
