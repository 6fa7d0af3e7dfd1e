// Package server exposes scans, chat sessions and memory search over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/josephgoksu/ProbeWing/internal/backend"
	"github.com/josephgoksu/ProbeWing/internal/chat"
	"github.com/josephgoksu/ProbeWing/internal/evolve"
	"github.com/josephgoksu/ProbeWing/internal/memory"
)

// ScanFunc runs one evolution over the request.
type ScanFunc func(ctx context.Context, req ScanRequest) (*evolve.Run, error)

// SessionFunc opens a chat session.
type SessionFunc func(initial string, autoSwitch bool) (*chat.Session, error)

// Searcher is the read side of the memory store.
type Searcher interface {
	Retrieve(ctx context.Context, q memory.Query) ([]memory.Entry, error)
}

// ErrTooManySessions is returned when the session cap is reached.
var ErrTooManySessions = errors.New("too many open sessions")

// Options configures a Server. Scan and NewSession are required.
type Options struct {
	Addr        string
	Origins     []string // CORS allow list; empty allows none
	MaxSessions int
	AutoSwitch  bool // Default for sessions that do not say
	Version     string

	Backends   []backend.Descriptor
	Scan       ScanFunc
	NewSession SessionFunc
	Memory     Searcher // Optional
	Logger     *slog.Logger
}

type Server struct {
	opts    Options
	origins map[string]struct{}
	logger  *slog.Logger
	server  *http.Server

	mu       sync.Mutex
	sessions map[string]*chat.Session
}

func New(opts Options) (*Server, error) {
	if opts.Scan == nil || opts.NewSession == nil {
		return nil, fmt.Errorf("scan and session factories are required")
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		opts:     opts,
		origins:  make(map[string]struct{}, len(opts.Origins)),
		logger:   opts.Logger,
		sessions: make(map[string]*chat.Session),
	}
	for _, o := range opts.Origins {
		s.origins[o] = struct{}{}
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.registerRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) Start(wg *sync.WaitGroup, errChan chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info("api server listening", "addr", s.opts.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones and for
// background reasoning started by sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)

	s.mu.Lock()
	sessions := make([]*chat.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*chat.Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Wait()
	}
	return err
}

func (s *Server) openSession(initial string, autoSwitch bool) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.opts.MaxSessions {
		return nil, ErrTooManySessions
	}
	sess, err := s.opts.NewSession(initial, autoSwitch)
	if err != nil {
		return nil, err
	}
	s.sessions[sess.ID()] = sess
	return sess, nil
}

func (s *Server) session(id string) (*chat.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) closeSession(id string) (*chat.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	return sess, ok
}
