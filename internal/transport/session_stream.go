// File: internal/transport/session_stream.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/concurrency"
	"github.com/momentics/hioload-socket/internal/logger"
	"github.com/momentics/hioload-socket/pool"
)

// streamSession is one accepted TCP connection. In sync mode a dedicated
// goroutine reads and dispatches. In async mode the goroutine only reads into
// the pooled slot and hands each completion to the shared executor.
type streamSession struct {
	baseSession
	conn    net.Conn
	raw     net.Conn
	secure  api.SecureMode
	writeMu sync.Mutex

	// settle is called once the transport handshake is over; false means
	// the listener stopped meanwhile and the session must not register.
	settle func() bool

	// async mode only
	slot   *pool.Slot
	exec   *concurrency.Executor
	queue  *sendQueue
	resume chan bool
}

func newStreamSession(opts *Options, host Host, conn net.Conn, release func()) *streamSession {
	s := &streamSession{
		baseSession: newBaseSession(opts, host, release),
		conn:        conn,
		raw:         conn,
		secure:      api.SecureNone,
	}
	s.shutdown = s.shutdownConn
	s.writeDeadline = func(t time.Time) { _ = s.conn.SetWriteDeadline(t) }
	return s
}

func (s *streamSession) LocalAddr() net.Addr { return s.conn.LocalAddr() }

func (s *streamSession) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *streamSession) SecureMode() api.SecureMode { return s.secure }

func (s *streamSession) Datagram() bool { return false }

// QueuedSends reports the buffers waiting in the async send queue.
func (s *streamSession) QueuedSends() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}

// Send writes data to the peer. Sending on a closed session is a no-op.
func (s *streamSession) Send(data []byte) error {
	if s.closed.Load() || len(data) == 0 {
		return nil
	}
	if s.queue != nil {
		return s.queue.enqueue(data)
	}
	return s.sendDirect(data)
}

// sendDirect serializes writers on writeMu honouring the send timeout policy.
func (s *streamSession) sendDirect(data []byte) error {
	timeout := s.opts.SendTimeout
	var deadline time.Time
	switch {
	case timeout == 0:
		s.writeMu.Lock()
	case timeout < 0:
		if !s.writeMu.TryLock() {
			return api.ErrSendTimeout
		}
	default:
		deadline = time.Now().Add(timeout)
		for !s.writeMu.TryLock() {
			if s.closed.Load() {
				return nil
			}
			if time.Now().After(deadline) {
				return api.ErrSendTimeout
			}
			time.Sleep(spinInterval)
		}
	}
	if s.closed.Load() {
		s.writeMu.Unlock()
		return nil
	}
	if !deadline.IsZero() && !s.closing.Load() {
		_ = s.conn.SetWriteDeadline(deadline)
	}
	_, err := s.conn.Write(data)
	if !deadline.IsZero() && !s.closing.Load() {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
	s.writeMu.Unlock()
	if err != nil {
		s.log.Debug("send failed", logger.Error(err))
		s.Close(api.CloseSocketError)
		return err
	}
	return nil
}

func (s *streamSession) shutdownConn() {
	if s.queue != nil {
		s.queue.flush(time.Now().Add(closeHandshakeTimeout))
		s.queue.discard()
	}
	if tc, ok := s.conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(lingerSeconds(s.opts))
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug("socket shutdown", logger.Error(err))
	}
}

func lingerSeconds(opts *Options) int {
	if opts.DontLinger {
		return 0
	}
	return -1
}

// secureChannel runs the server-side TLS handshake bounded by
// HandshakeTimeout and swaps the session onto the encrypted stream.
func (s *streamSession) secureChannel() bool {
	if s.opts.Security != api.SecureTLS {
		return true
	}
	tc := tls.Server(s.conn, s.opts.TLS)
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandshakeTimeout)
	defer cancel()
	if err := tc.HandshakeContext(ctx); err != nil {
		s.log.Warn("tls handshake failed", logger.Error(err), logger.Remote(s.conn.RemoteAddr()))
		s.abort()
		return false
	}
	s.conn = tc
	s.secure = api.SecureTLS
	return true
}

func (s *streamSession) begin() bool {
	secured := s.secureChannel()
	if s.settle != nil && !s.settle() {
		s.abort()
		return false
	}
	return secured && s.attach(s, "")
}

// runSync is the thread-per-connection receive loop.
func (s *streamSession) runSync() {
	if !s.begin() {
		return
	}
	buf := make([]byte, s.opts.ReceiveBufferSize)
	for {
		if s.opts.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		n, err := s.conn.Read(buf)
		if n > 0 && !s.process(buf[:n]) {
			return
		}
		if err != nil {
			s.closeOnReadError(err)
			return
		}
	}
}

// runAsync reads into the session's slot and waits for the executor to
// finish each completion before the next read, so packages stay in order.
// The slot is held until the loop has seen its last completion, whoever
// closed the session.
func (s *streamSession) runAsync() {
	defer s.release()
	if !s.begin() {
		return
	}
	s.resume = make(chan bool, 1)
	for {
		if s.opts.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		n, err := s.conn.Read(s.slot.Buf)
		if n > 0 {
			data := s.slot.Buf[:n]
			if serr := s.exec.Submit(func() {
				alive := false
				defer func() { s.resume <- alive }()
				alive = s.process(data)
			}); serr != nil {
				s.Close(api.CloseServerShutdown)
				return
			}
			if !<-s.resume {
				return
			}
		}
		if err != nil {
			s.closeOnReadError(err)
			return
		}
	}
}

func (s *streamSession) closeOnReadError(err error) {
	reason := readCloseReason(err)
	if !s.closing.Load() {
		s.log.Debug("receive ended", logger.Error(err), slog.String("reason", reason.String()))
	}
	s.Close(reason)
}
