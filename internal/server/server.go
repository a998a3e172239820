package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"example.com/staticd/internal/config"
	"example.com/staticd/internal/logger"
	"example.com/staticd/internal/util"
)

// ErrServerClosed is returned by Serve after Shutdown has been called.
var ErrServerClosed = errors.New("server: closed")

// maxBodyDrain bounds how much of an unread request body is discarded to
// keep a connection alive.
const maxBodyDrain = 256 << 10

// Server manages the listening socket, per-connection goroutines and
// graceful shutdown.
type Server struct {
	cfg       *config.Config
	log       *logger.Logger
	handler   Handler
	timeouts  config.Timeouts
	tlsConfig *tls.Config
	maxHead   int

	mu           sync.Mutex
	listener     net.Listener
	activeConns  map[net.Conn]struct{}
	shuttingDown atomic.Bool
	wg           sync.WaitGroup
	nextConnID   atomic.Uint64
}

// NewServer creates a new Server instance. TLS material named in the
// configuration is loaded here so a bad certificate fails start-up.
func NewServer(cfg *config.Config, lg *logger.Logger, handler Handler) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if cfg.Server == nil || cfg.Server.Address == nil || *cfg.Server.Address == "" {
		return nil, fmt.Errorf("server listen address (server.address) is not configured")
	}

	timeouts, err := cfg.Server.ParseTimeouts()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:         cfg,
		log:         lg,
		handler:     handler,
		timeouts:    timeouts,
		maxHead:     config.DefaultMaxRequestHeadBytes,
		activeConns: make(map[net.Conn]struct{}),
	}
	if cfg.Server.MaxRequestHeadBytes != nil {
		s.maxHead = *cfg.Server.MaxRequestHeadBytes
	}

	if t := cfg.Server.TLS; t != nil {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, &config.ConfigError{FilePath: t.CertFile, Message: "failed to load TLS key pair", Err: err}
		}
		s.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
			NextProtos:   []string{"http/1.1"},
		}
	}
	return s, nil
}

// Listen adopts a listener passed by a socket-activating supervisor, or
// otherwise opens the configured TCP address.
func (s *Server) Listen() error {
	address := *s.cfg.Server.Address
	ln, err := util.InheritedListener()
	if err != nil {
		return fmt.Errorf("failed to adopt inherited listener: %w", err)
	}
	if ln != nil {
		s.log.Info("Using inherited listener", logger.LogFields{"configured_address": address})
	} else {
		ln, err = net.Listen("tcp", address)
		if err != nil {
			if util.IsAddrInUse(err) {
				return fmt.Errorf("address %s is already in use: %w", address, err)
			}
			return fmt.Errorf("failed to create listener on %s: %w", address, err)
		}
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("Server listening", logger.LogFields{
		"address": ln.Addr().String(),
		"tls":     s.tlsConfig != nil,
	})
	return nil
}

// Addr returns the listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown is called, handling each on its
// own goroutine. It always returns a non-nil error; after Shutdown that
// error is ErrServerClosed.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("server is not listening")
	}

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else {
					backoff *= 2
				}
				if backoff > time.Second {
					backoff = time.Second
				}
				s.log.Warn("Accept error; retrying", logger.LogFields{"error": err.Error(), "retry_in": backoff.String()})
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		backoff = 0

		s.mu.Lock()
		if s.shuttingDown.Load() {
			s.mu.Unlock()
			nc.Close()
			return ErrServerClosed
		}
		s.activeConns[nc] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serveConn(nc)
	}
}

// Shutdown stops accepting, wakes idle connections and waits for in-flight
// responses to finish. When ctx ends first, remaining connections are
// closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown.Store(true)
	ln := s.listener
	for nc := range s.activeConns {
		nc.SetReadDeadline(time.Now())
	}
	active := len(s.activeConns)
	s.mu.Unlock()

	s.log.Info("Shutting down", logger.LogFields{"active_connections": active})
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Shutdown complete")
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		forced := len(s.activeConns)
		for nc := range s.activeConns {
			nc.Close()
		}
		s.mu.Unlock()
		s.log.Warn("Shutdown timed out; closed remaining connections", logger.LogFields{"closed": forced})
		<-done
		return ctx.Err()
	}
}

func (s *Server) untrack(nc net.Conn) {
	s.mu.Lock()
	delete(s.activeConns, nc)
	s.mu.Unlock()
	s.wg.Done()
}
