// Package server implements the daemon side of the named-pipe IPC channel:
// single-instance startup, the accept loop, and per-client request dispatch
// against a session registry.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	winio "github.com/tailscale/go-winio"

	"github.com/alangmartini/godlyd/internal/config"
	"github.com/alangmartini/godlyd/internal/registry"
	"github.com/alangmartini/godlyd/internal/singleinstance"
)

// Server owns the named pipe listener, the session registry, and the
// idle-shutdown watchdog for one daemon instance.
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	logger   *slog.Logger

	listener net.Listener
	guard    *singleinstance.Guard

	ctx    context.Context
	cancel context.CancelFunc

	clientCount  atomic.Int32
	lastActivity atomic.Int64 // unix nanos

	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New builds a Server around cfg. The registry starts empty; sessions are
// created by client requests, not by the server itself.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		registry: registry.New(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.lastActivity.Store(time.Now().UnixNano())
	return s
}

// Run acquires the single-instance lock, probes for an already-running
// daemon on the same pipe, opens the listener, and blocks accepting clients
// until RequestShutdown is called or the idle watcher fires. It returns nil
// on every clean shutdown path, including "another instance is already
// running" — the caller's exit code should stay 0 in that case.
func (s *Server) Run() error {
	pidPath, err := config.PidPath(s.cfg.Instance)
	if err != nil {
		return fmt.Errorf("server: resolving pid path: %w", err)
	}

	guard, err := singleinstance.Acquire(s.cfg.Instance, pidPath)
	if err != nil {
		if err == singleinstance.ErrAlreadyRunning {
			s.logger.Info("single-instance mutex held by another process, exiting")
			return nil
		}
		return fmt.Errorf("server: acquiring single-instance lock: %w", err)
	}
	s.guard = guard
	defer s.guard.Release()

	if s.pingExisting() {
		s.logger.Info("another instance answered the pipe, exiting")
		return nil
	}

	ln, err := winio.ListenPipe(s.cfg.PipePath(), nil)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", s.cfg.PipePath(), err)
	}
	s.listener = ln
	defer s.listener.Close()

	s.logger.Info("listening", "pipe", s.cfg.PipePath(), "instance", s.cfg.Instance)

	idleTimeout := time.Duration(s.cfg.IdleTimeoutSeconds) * time.Second
	pollInterval := time.Duration(s.cfg.PollIntervalSeconds) * time.Second
	if idleTimeout > 0 {
		s.wg.Add(1)
		go s.idleWatcher(pollInterval, idleTimeout)
	}

	go func() {
		<-s.ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		s.touch()
		s.clientCount.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.clientCount.Add(-1)
			handleClient(s.ctx, conn, s.registry, s.logger)
			s.touch()
		}()
	}
}

// pingExisting dials the configured pipe with a short timeout and sends a
// Ping request, to distinguish "daemon already running" from "stale pipe
// name with nothing listening" before racing to become the listener. A
// connect failure means nobody is listening; a successful Ping/Pong round
// trip means a live daemon already owns the pipe.
func (s *Server) pingExisting() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	conn, err := winio.DialPipeContext(ctx, s.cfg.PipePath())
	if err != nil {
		return false
	}
	defer conn.Close()

	ok, err := pingOverConn(conn)
	if err != nil {
		s.logger.Debug("ping probe failed", "error", err)
		return false
	}
	return ok
}

// RequestShutdown begins a graceful shutdown: the accept loop and idle
// watcher unwind, and Run returns once every in-flight client has finished.
func (s *Server) RequestShutdown() {
	s.shutdownOnce.Do(s.cancel)
}

func (s *Server) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// idleWatcher shuts the daemon down once no sessions exist, no client is
// connected, and no request has been served within idleTimeout. A live
// session — even with nobody attached to it, like a detached long-running
// build — keeps the daemon up indefinitely; only once the last session is
// closed does idle time start to matter.
func (s *Server) idleWatcher(pollInterval, idleTimeout time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.registry.Len() > 0 {
				continue
			}
			if s.clientCount.Load() > 0 {
				s.touch()
				continue
			}

			idleFor := time.Since(time.Unix(0, s.lastActivity.Load()))
			if idleFor >= idleTimeout {
				s.logger.Info("idle timeout reached, shutting down", "idle_for", idleFor)
				s.RequestShutdown()
				return
			}
		}
	}
}
