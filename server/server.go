// File: server/server.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/control"
	"github.com/momentics/hioload-socket/internal/logger"
	"github.com/momentics/hioload-socket/internal/session"
	"github.com/momentics/hioload-socket/internal/transport"
	"github.com/momentics/hioload-socket/protocol"
)

// closeConcurrency bounds the goroutines closing sessions in bulk.
const closeConcurrency = 64

// Server orchestrates one listener, the session table and the dispatcher.
type Server struct {
	cfg        *Config
	log        *slog.Logger
	encoding   encoding.Encoding
	newFilter  api.FilterFactory
	dispatcher *Dispatcher
	hooks      Hooks
	certs      CertificateProvider
	metrics    *control.Metrics
	udpKey     func(datagram []byte) (string, error)
	admit      []func(remote net.Addr) bool

	sessions *session.Store[*AppSession]
	snapshot session.Snapshot[*AppSession]
	sweepMu  sync.Mutex

	// mu serializes Start and Stop; hooks may call the accessors below
	// while Stop holds it.
	mu       sync.Mutex
	running  atomic.Bool
	addr     atomic.Value // net.Addr
	listener transport.Listener
	engine   atomic.Pointer[listenerRef]
	cancel   context.CancelFunc
	loops    sync.WaitGroup

	// regMu orders registrations against Stop: once stopping is set no
	// session enters the table.
	regMu    sync.RWMutex
	stopping bool
}

type listenerRef struct{ transport.Listener }

// New validates cfg and builds a server. A nil cfg means DefaultConfig.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enc, err := protocol.LookupEncoding(cfg.TextEncoding)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg,
		log:        logger.Discard(),
		encoding:   enc,
		dispatcher: NewDispatcher(),
		sessions:   session.NewStore[*AppSession](32),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(slog.String("server", cfg.Name))
	if s.newFilter == nil {
		s.newFilter = func() api.ReceiveFilter {
			return protocol.NewCommandLineFilter([]byte(cfg.Terminator), enc)
		}
	}
	s.dispatcher.metrics = s.metrics
	s.dispatcher.server = cfg.Name
	if s.hooks.UnknownCommand != nil {
		s.dispatcher.OnUnknownCommand(s.hooks.UnknownCommand)
	}
	if cfg.LogCommand {
		s.dispatcher.Use(LoggingFilter{Log: s.log})
	}
	return s, nil
}

// Name returns the configured server name.
func (s *Server) Name() string { return s.cfg.Name }

// Config returns the server configuration. It must not be modified.
func (s *Server) Config() *Config { return s.cfg }

// Dispatcher exposes the command table for registration before Start.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Running reports whether Start succeeded and Stop has not been called.
func (s *Server) Running() bool { return s.running.Load() }

// Addr returns the address bound by the last successful Start.
func (s *Server) Addr() net.Addr {
	a, _ := s.addr.Load().(net.Addr)
	return a
}

// Start binds the endpoint and starts the snapshot and idle sweep timers.
// Cancelling ctx stops the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return api.ErrServerRunning
	}
	opts, err := s.transportOptions()
	if err != nil {
		s.log.Error("server start failed", logger.Error(err))
		return err
	}
	var l transport.Listener
	if strings.EqualFold(s.cfg.Mode, "udp") {
		l = transport.NewUDPListener(opts, host{s})
	} else {
		mode := transport.ModeSync
		if strings.EqualFold(s.cfg.Engine, "async") {
			mode = transport.ModeAsync
		}
		l = transport.NewTCPListener(opts, host{s}, mode)
	}
	if err := l.Start(); err != nil {
		s.log.Error("server start failed", logger.Error(err))
		return fmt.Errorf("start %s: %w", s.cfg.Name, err)
	}
	s.listener = l
	s.engine.Store(&listenerRef{l})
	s.addr.Store(l.Addr())
	s.regMu.Lock()
	s.stopping = false
	s.regMu.Unlock()
	s.running.Store(true)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if !s.cfg.DisableSessionSnapshot {
		s.loops.Add(1)
		go s.snapshotLoop(runCtx)
	}
	if s.cfg.ClearIdleSession {
		s.loops.Add(1)
		go s.sweepLoop(runCtx)
	}
	go func() {
		<-runCtx.Done()
		if ctx.Err() != nil {
			_ = s.Stop()
		}
	}()
	s.log.Info("server started", slog.String("addr", l.Addr().String()),
		slog.String("mode", s.cfg.Mode), slog.String("engine", s.cfg.Engine))
	return nil
}

// Stop stops accepting, closes every session with ServerShutdown and waits
// for the background timers.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return api.ErrServerNotRunning
	}
	s.regMu.Lock()
	s.stopping = true
	s.regMu.Unlock()
	s.listener.Stop()
	s.closeAll(s.sessions.Values(), api.CloseServerShutdown)
	s.cancel()
	s.loops.Wait()
	s.snapshot.Store(nil)
	s.running.Store(false)
	s.log.Info("server stopped")
	return nil
}

func (s *Server) transportOptions() (transport.Options, error) {
	c := s.cfg
	opts := transport.Options{
		Addr:              c.Addr(),
		MaxConnections:    c.MaxConnectionNumber,
		ReceiveBufferSize: c.ReceiveBufferSize,
		SendBufferSize:    c.SendBufferSize,
		ReadTimeout:       c.ReadTimeout,
		SendTimeout:       c.SendTimeout,
		KeepAliveTime:     c.KeepAliveTime,
		KeepAliveInterval: c.KeepAliveInterval,
		NoDelay:           c.NoDelay,
		DontLinger:        c.DontLinger,
		Backlog:           c.ListenBacklog,
		MaxPackageLength:  c.MaxPackageLength,
		SendingQueueSize:  c.SendingQueueSize,
		StopTimeout:       c.StopTimeout,
		Workers:           c.Workers,
		Security:          c.secureMode(),
		SessionKey:        s.udpKey,
		Logger:            s.log,
	}
	if opts.Security != api.SecureTLS {
		return opts, nil
	}
	certs := s.certs
	if certs == nil {
		if c.CertificateFile == "" {
			return opts, api.ErrCertificateRequired
		}
		certs = NewFileCertificateProvider(c.CertificateFile, c.CertificateKeyFile)
		s.certs = certs
	}
	cert, err := certs.Certificate()
	if err != nil {
		return opts, err
	}
	opts.TLS = &tls.Config{Certificates: []tls.Certificate{*cert}, MinVersion: tls.VersionTLS12}
	return opts, nil
}

// host adapts the server to the transport without exporting the callbacks.
type host struct{ s *Server }

func (h host) NewFilter() api.ReceiveFilter { return h.s.newFilter() }

func (h host) NewHandler(c transport.Conn, identityKey string) transport.Handler {
	return sessionHandler{s: newAppSession(h.s, c, identityKey)}
}

// Register runs the connection filters and inserts the session in the live
// table. A refused peer, a taken identity key or a stopping server rejects
// the connection.
func (h host) Register(th transport.Handler) error {
	s := h.s
	as := th.(sessionHandler).s
	for _, allow := range s.admit {
		if !allow(as.RemoteAddr()) {
			s.metrics.SessionRejected(s.cfg.Name)
			return fmt.Errorf("%w: %s", api.ErrConnectionRefused, as.RemoteAddr())
		}
	}
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	if s.stopping {
		return api.ErrServerNotRunning
	}
	if !s.sessions.TryAdd(as.key, as) {
		s.metrics.SessionRejected(s.cfg.Name)
		return fmt.Errorf("%w: %s", api.ErrDuplicateSession, as.key)
	}
	return nil
}

func (s *Server) sessionClosed(as *AppSession, reason api.CloseReason) {
	if !s.sessions.Remove(as.key, as) {
		as.log.Warn("closed session was not in the session table", logger.Reason(reason))
	}
	s.metrics.SessionClosed(s.cfg.Name, reason.String())
	as.log.Debug("session closed", logger.Reason(reason))
	if s.hooks.SessionClosed != nil {
		s.hooks.SessionClosed(as, reason)
	}
}

// closeAll closes sessions in parallel. A panicking close hook does not stop
// the others.
func (s *Server) closeAll(sessions []*AppSession, reason api.CloseReason) int {
	var g errgroup.Group
	g.SetLimit(closeConcurrency)
	for _, as := range sessions {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					as.log.Error("session close panicked", slog.Any("panic", r))
				}
			}()
			as.Close(reason)
			return nil
		})
	}
	_ = g.Wait()
	return len(sessions)
}

func (s *Server) snapshotLoop(ctx context.Context) {
	defer s.loops.Done()
	s.refreshSnapshot()
	t := time.NewTicker(s.cfg.SessionSnapshotInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refreshSnapshot()
		}
	}
}

func (s *Server) refreshSnapshot() {
	s.snapshot.Store(s.sessions.Values())
}

// view returns the sessions used for enumeration: the snapshot, or the live
// table when snapshots are disabled.
func (s *Server) view() []*AppSession {
	if s.cfg.DisableSessionSnapshot {
		return s.sessions.Values()
	}
	return s.snapshot.Load()
}

// SessionCount returns the number of sessions in the last snapshot.
func (s *Server) SessionCount() int {
	return len(s.view())
}

// GetAllSessions returns the sessions of the last snapshot.
func (s *Server) GetAllSessions() []*AppSession {
	return append([]*AppSession(nil), s.view()...)
}

// GetSessions returns the snapshot sessions matching pred.
func (s *Server) GetSessions(pred func(*AppSession) bool) []*AppSession {
	var out []*AppSession
	for _, as := range s.view() {
		if pred == nil || pred(as) {
			out = append(out, as)
		}
	}
	return out
}

// GetSessionByID looks key up in the snapshot; keys compare
// case-insensitively.
func (s *Server) GetSessionByID(key string) (*AppSession, bool) {
	for _, as := range s.view() {
		if strings.EqualFold(as.key, key) {
			return as, true
		}
	}
	return nil, false
}

// Broadcast sends data to every connected session of the snapshot and
// returns how many sends succeeded.
func (s *Server) Broadcast(data []byte) int {
	n := 0
	for _, as := range s.view() {
		if !as.Connected() {
			continue
		}
		if err := as.Send(data); err != nil {
			as.log.Debug("broadcast send failed", logger.Error(err))
			continue
		}
		n++
	}
	return n
}

// Probes registers the server's debug probes on dp.
func (s *Server) Probes(dp *control.DebugProbes) {
	prefix := "server." + s.cfg.Name + "."
	dp.RegisterProbe(prefix+"sessions", func() any { return s.sessions.Len() })
	dp.RegisterProbe(prefix+"snapshot", func() any {
		return map[string]any{"sessions": len(s.snapshot.Load()), "updated": s.snapshot.Updated()}
	})
	dp.RegisterProbe(prefix+"running", func() any { return s.Running() })
	dp.RegisterProbe(prefix+"engine", func() any {
		ref := s.engine.Load()
		if ref == nil {
			return nil
		}
		return ref.Stats()
	})
	dp.RegisterProbe(prefix+"send_queue", func() any { return s.queuedSends() })
}

// queuedSends sums the buffers waiting in the async send queues.
func (s *Server) queuedSends() int {
	n := 0
	for _, as := range s.sessions.Values() {
		if q, ok := as.conn.(interface{ QueuedSends() int }); ok {
			n += q.QueuedSends()
		}
	}
	return n
}

// Health returns an error unless the server is running.
func (s *Server) Health() error {
	if !s.Running() {
		return fmt.Errorf("%s: %w", s.cfg.Name, api.ErrServerNotRunning)
	}
	return nil
}
