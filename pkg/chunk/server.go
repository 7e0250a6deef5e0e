package chunk

import (
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Server accepts connections and serves chunk fetches out of a registry.
// RPC and one-way messages go to the handler.
type Server struct {
	cfg      Config
	registry *Registry
	handler  Handler
	logger   *zap.Logger

	mu       sync.Mutex
	ln       net.Listener
	sessions map[*session]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewServer creates a server over registry. handler may be nil when the
// server only serves chunk fetches; a nil logger disables logging.
func NewServer(cfg Config, registry *Registry, handler Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		handler:  handler,
		logger:   logger,
		sessions: make(map[*session]struct{}),
	}
}

// ListenAndServe listens on addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close. It always returns a non-nil
// error, ErrServerClosed after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			return errors.Wrap(err, "accept")
		}

		sess := newSession(s, nc)
		if !s.track(sess) {
			_ = nc.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run()
		}()
	}
}

// Close stops accepting, closes every live session and waits for their read
// loops to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, sess := range sessions {
		err = multierr.Append(err, sess.close())
	}
	s.wg.Wait()

	s.logger.Info("server closed", zap.Int("sessions", len(sessions)))
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers a live session, failing when the server is closed.
func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}
