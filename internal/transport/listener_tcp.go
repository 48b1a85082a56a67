// File: internal/transport/listener_tcp.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream listener. Admission is bounded by a weighted semaphore acquired
// before Accept, so a full server leaves new peers in the kernel backlog.

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/concurrency"
	"github.com/momentics/hioload-socket/internal/logger"
	"github.com/momentics/hioload-socket/pool"
)

// Mode selects the TCP session engine.
type Mode int

const (
	// ModeSync runs one goroutine per session doing blocking reads and
	// in-line dispatch.
	ModeSync Mode = iota
	// ModeAsync dispatches completions on a shared executor with pooled
	// receive buffers and queued sends.
	ModeAsync
)

func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "sync"
}

// TCPListener accepts stream connections for one endpoint.
type TCPListener struct {
	opts Options
	host Host
	mode Mode
	log  *slog.Logger

	ln    net.Listener
	sem   *semaphore.Weighted
	slots *pool.SlotPool
	exec  *concurrency.Executor

	// pending holds accepted sessions that have not reached registration,
	// typically those still in the TLS handshake.
	pendMu  sync.Mutex
	pending map[*streamSession]struct{}
	stopped bool

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewTCPListener prepares a listener. Nothing is bound until Start.
func NewTCPListener(opts Options, host Host, mode Mode) *TCPListener {
	opts.Defaults()
	return &TCPListener{
		opts: opts,
		host: host,
		mode: mode,
		log:  opts.Logger.With(logger.Component("tcp"), slog.String("addr", opts.Addr), slog.String("mode", mode.String())),

		pending: make(map[*streamSession]struct{}),
	}
}

// Start binds the endpoint and launches the accept loop.
func (l *TCPListener) Start() error {
	if l.opts.Security == api.SecureTLS && l.opts.TLS == nil {
		return api.ErrCertificateRequired
	}
	if l.opts.Security == api.SecureSSL2 || l.opts.Security == api.SecureSSL3 {
		return api.ErrUnsupportedSecureMode
	}
	ln, err := listenTCP(l.opts.Addr, l.opts.Backlog)
	if err != nil {
		return api.WrapError(api.ErrCodeInternal, "listen failed", err).WithContext("addr", l.opts.Addr)
	}
	l.ln = ln
	l.sem = semaphore.NewWeighted(int64(l.opts.MaxConnections))
	if l.mode == ModeAsync {
		l.slots = pool.NewSlotPool(l.opts.MaxConnections, l.opts.ReceiveBufferSize)
		l.exec = concurrency.NewExecutor(l.opts.Workers, l.opts.MaxConnections, func(v any) {
			l.log.Error("completion panicked", slog.Any("panic", v))
		})
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.done = make(chan struct{})
	go l.acceptLoop()
	l.log.Info("listener started", slog.String("bound", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *TCPListener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Stop closes the listening socket and waits for the accept loop up to
// StopTimeout. Sessions still in the transport handshake are dropped;
// registered sessions are left to their owner.
func (l *TCPListener) Stop() {
	if l.ln == nil {
		return
	}
	l.stopOnce.Do(func() {
		l.cancel()
		if err := l.ln.Close(); err != nil {
			l.log.Debug("listener close", logger.Error(err))
		}
		select {
		case <-l.done:
		case <-time.After(l.opts.StopTimeout):
			l.log.Warn("accept loop did not stop in time", logger.Duration(l.opts.StopTimeout))
		}
		l.dropPending()
		if l.exec != nil {
			l.exec.Close()
		}
		if l.slots != nil {
			l.slots.Close()
		}
		l.log.Info("listener stopped")
	})
}

func (l *TCPListener) acceptLoop() {
	defer close(l.done)
	var backoff time.Duration
	for {
		if err := l.sem.Acquire(l.ctx, 1); err != nil {
			return
		}
		conn, err := l.ln.Accept()
		if err != nil {
			l.sem.Release(1)
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			backoff = nextBackoff(backoff)
			l.log.Warn("accept failed", logger.Error(err), logger.Duration(backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		if err := applySocketOptions(conn, &l.opts); err != nil {
			l.log.Debug("socket options", logger.Error(err), logger.Remote(conn.RemoteAddr()))
		}
		l.serve(conn)
	}
}

// serve starts the session goroutine. Slot and semaphore go back once every
// holder let go: the close path, plus the read loop in async mode.
func (l *TCPListener) serve(conn net.Conn) {
	var holders atomic.Int32
	holders.Store(1)
	var slot *pool.Slot
	release := func() {
		if holders.Add(-1) != 0 {
			return
		}
		if slot != nil {
			l.slots.Put(slot)
		}
		l.sem.Release(1)
	}
	s := newStreamSession(&l.opts, l.host, conn, release)
	if !l.track(s) {
		s.abort()
		return
	}
	s.settle = func() bool { return l.untrack(s) }
	if l.mode == ModeSync {
		go s.runSync()
		return
	}
	var ok bool
	slot, ok = l.slots.TryGet()
	if !ok {
		// Slots and semaphore share one capacity; reaching this is a leak.
		l.log.Error("no free receive slot", logger.Remote(conn.RemoteAddr()))
		l.untrack(s)
		s.abort()
		return
	}
	holders.Store(2)
	s.slot = slot
	s.exec = l.exec
	s.queue = newSendQueue(s, l.opts.SendingQueueSize)
	go s.runAsync()
}

func (l *TCPListener) track(s *streamSession) bool {
	l.pendMu.Lock()
	defer l.pendMu.Unlock()
	if l.stopped {
		return false
	}
	l.pending[s] = struct{}{}
	return true
}

// untrack reports whether the session may still register.
func (l *TCPListener) untrack(s *streamSession) bool {
	l.pendMu.Lock()
	defer l.pendMu.Unlock()
	delete(l.pending, s)
	return !l.stopped
}

// dropPending closes the raw sockets of sessions that were accepted but not
// yet registered. Their handshake fails and they abort without events.
func (l *TCPListener) dropPending() {
	l.pendMu.Lock()
	l.stopped = true
	pending := make([]*streamSession, 0, len(l.pending))
	for s := range l.pending {
		pending = append(pending, s)
	}
	l.pendMu.Unlock()
	for _, s := range pending {
		_ = s.raw.Close()
	}
	if len(pending) > 0 {
		l.log.Info("dropped sessions in handshake", slog.Int("count", len(pending)))
	}
}

// Stats reports the admission and async engine state.
func (l *TCPListener) Stats() map[string]any {
	out := map[string]any{"mode": l.mode.String()}
	l.pendMu.Lock()
	out["handshaking"] = len(l.pending)
	l.pendMu.Unlock()
	if l.slots != nil {
		out["slots_free"] = l.slots.Available()
		out["slots_total"] = l.slots.Capacity()
	}
	if l.exec != nil {
		out["executor"] = l.exec.Stats()
	}
	return out
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
