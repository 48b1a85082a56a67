// File: internal/transport/session.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Behaviour shared by every socket session: framing, in-order dispatch with
// failure routing, filter switching and the idempotent close path.

package transport

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/logger"
)

// closeHandshakeTimeout bounds the best-effort closing handshake.
const closeHandshakeTimeout = time.Second

type filterBox struct{ f api.ReceiveFilter }

// baseSession is embedded by the stream and datagram sessions. filter is only
// touched by the goroutine currently framing this session's data.
type baseSession struct {
	opts    *Options
	log     *slog.Logger
	host    Host
	handler Handler
	filter  api.ReceiveFilter
	pending atomic.Pointer[filterBox]

	closing  atomic.Bool
	closed   atomic.Bool
	doneCh   chan struct{}
	doneOnce sync.Once

	// set by the concrete session
	shutdown func()
	release  func()
	// writeDeadline bounds writes made during the closing handshake.
	writeDeadline func(t time.Time)
}

func newBaseSession(opts *Options, host Host, release func()) baseSession {
	return baseSession{
		opts:    opts,
		log:     opts.Logger,
		host:    host,
		doneCh:  make(chan struct{}),
		release: release,
	}
}

// attach creates, registers and welcomes the application session.
func (s *baseSession) attach(c Conn, identityKey string) bool {
	s.filter = s.host.NewFilter()
	h := s.host.NewHandler(c, identityKey)
	s.handler = h
	s.log = s.log.With(logger.SessionID(h.IdentityKey()))
	if err := s.host.Register(h); err != nil {
		s.log.Warn("session rejected", logger.Error(err), logger.Remote(c.RemoteAddr()))
		s.abort()
		return false
	}
	h.Started()
	return !s.closed.Load()
}

// abort closes a session that never got registered: no close events fire.
func (s *baseSession) abort() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	s.closed.Store(true)
	s.finish()
}

// Close is idempotent. The closing handshake runs first, then the socket is
// shut down, slot and semaphore are released, and Closed fires once.
func (s *baseSession) Close(reason api.CloseReason) {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	if s.handler != nil && reason != api.CloseClientClosing && reason != api.CloseSocketError {
		if s.writeDeadline != nil {
			s.writeDeadline(time.Now().Add(closeHandshakeTimeout))
		}
		s.closeHandshake(reason)
	}
	s.closed.Store(true)
	s.finish()
	if s.handler != nil {
		s.handler.Closed(reason)
	}
}

func (s *baseSession) closeHandshake(reason api.CloseReason) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("closing handshake panicked", slog.Any("panic", r))
		}
	}()
	s.handler.CloseHandshake(reason)
}

func (s *baseSession) finish() {
	if s.shutdown != nil {
		s.shutdown()
	}
	if s.release != nil {
		s.release()
	}
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// Closed reports whether the session no longer accepts sends.
func (s *baseSession) Closed() bool {
	return s.closed.Load()
}

// SetNextFilter queues f to replace the filter before the next Filter call.
func (s *baseSession) SetNextFilter(f api.ReceiveFilter) {
	if f != nil {
		s.pending.Store(&filterBox{f: f})
	}
}

func (s *baseSession) switchFilter() {
	if b := s.pending.Swap(nil); b != nil {
		s.filter = b.f
	}
}

// process frames data and dispatches every package in order. It returns
// false once the session is closed.
func (s *baseSession) process(data []byte) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("receive filter panicked, closing session", slog.Any("panic", r))
			s.Close(api.CloseServerClosing)
			alive = false
		}
	}()
	for len(data) > 0 {
		if s.closing.Load() {
			return false
		}
		s.switchFilter()
		f := s.filter
		pkg, rest, err := f.Filter(data)
		if err == nil && (rest < 0 || rest > len(data)) {
			err = api.NewError(api.ErrCodeProtocol, "receive filter reported invalid rest").WithContext("rest", rest)
		}
		if err != nil || f.State() == api.FilterError {
			s.log.Warn("framing error, closing session", logger.Error(err))
			s.Close(api.CloseServerClosing)
			return false
		}
		if pkg == nil && s.opts.MaxPackageLength > 0 && f.LeftBufferSize() > s.opts.MaxPackageLength {
			s.log.Warn("package exceeds maximum length, closing session",
				slog.Int("buffered", f.LeftBufferSize()), slog.Int("max", s.opts.MaxPackageLength))
			s.Close(api.CloseServerClosing)
			return false
		}
		next := f.Next()
		if next != nil {
			s.filter = next
		}
		if pkg != nil {
			s.handler.Touch(time.Now())
			if !s.execute(pkg) {
				return false
			}
		}
		consumed := len(data) - rest
		if consumed == 0 && pkg == nil && next == nil {
			s.log.Warn("receive filter made no progress, dropping bytes", slog.Int("bytes", len(data)))
			return true
		}
		data = data[consumed:]
	}
	return !s.closing.Load()
}

// execute runs one package through the handler. Panics and errors end up in
// HandleError unless they are socket errors, which close the session.
func (s *baseSession) execute(pkg api.Package) bool {
	err := s.safeHandle(pkg)
	if err == nil {
		return !s.closing.Load()
	}
	if IsSocketError(err) {
		s.log.Debug("socket error in command", logger.Command(pkg.Key()), logger.Error(err))
		s.Close(api.CloseSocketError)
		return false
	}
	s.handler.HandleError(err)
	return !s.closing.Load()
}

func (s *baseSession) safeHandle(pkg api.Package) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && IsSocketError(e) {
				err = e
				return
			}
			err = &api.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return s.handler.Handle(pkg)
}

// IsSocketError reports errors that mean the connection itself is gone.
func IsSocketError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.As(err, &opErr)
}

// readCloseReason maps a read error onto the reason the session closes with.
func readCloseReason(err error) api.CloseReason {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
		return api.CloseClientClosing
	case errors.Is(err, os.ErrDeadlineExceeded):
		return api.CloseTimeOut
	default:
		return api.CloseSocketError
	}
}
