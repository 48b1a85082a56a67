// File: internal/transport/listener_udp.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Datagram listener. One read loop demultiplexes datagrams to pseudo
// sessions keyed by remote endpoint or by a key carried in the payload.

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/logger"
	"github.com/momentics/hioload-socket/internal/session"
)

// maxDatagramSize covers the largest UDP payload.
const maxDatagramSize = 64 * 1024

// udpInboxSize bounds the datagrams waiting for one session.
const udpInboxSize = 64

// UDPListener serves one datagram endpoint.
type UDPListener struct {
	opts Options
	host Host
	log  *slog.Logger

	conn     *net.UDPConn
	sessions *session.Store[*udpSession]

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewUDPListener prepares a datagram listener.
func NewUDPListener(opts Options, host Host) *UDPListener {
	opts.Defaults()
	return &UDPListener{
		opts:     opts,
		host:     host,
		log:      opts.Logger.With(logger.Component("udp"), slog.String("addr", opts.Addr)),
		sessions: session.NewStore[*udpSession](16),
	}
}

// Start binds the endpoint and launches the receive loop.
func (l *UDPListener) Start() error {
	addr, err := net.ResolveUDPAddr("udp", l.opts.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	if l.opts.ReceiveBufferSize > 0 {
		_ = conn.SetReadBuffer(max(l.opts.ReceiveBufferSize, maxDatagramSize))
	}
	if l.opts.SendBufferSize > 0 {
		_ = conn.SetWriteBuffer(l.opts.SendBufferSize)
	}
	l.conn = conn
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.done = make(chan struct{})
	go l.readLoop()
	l.log.Info("listener started", slog.String("bound", conn.LocalAddr().String()))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *UDPListener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stop closes the socket and waits for the read loop up to StopTimeout.
func (l *UDPListener) Stop() {
	if l.conn == nil {
		return
	}
	l.stopOnce.Do(func() {
		l.cancel()
		_ = l.conn.Close()
		select {
		case <-l.done:
		case <-time.After(l.opts.StopTimeout):
			l.log.Warn("receive loop did not stop in time", logger.Duration(l.opts.StopTimeout))
		}
		l.log.Info("listener stopped")
	})
}

// SessionCount reports the live pseudo sessions of this endpoint.
func (l *UDPListener) SessionCount() int {
	return l.sessions.Len()
}

// Stats reports the pseudo session count.
func (l *UDPListener) Stats() map[string]any {
	return map[string]any{"mode": "udp", "sessions": l.sessions.Len()}
}

func (l *UDPListener) readLoop() {
	defer close(l.done)
	buf := make([]byte, maxDatagramSize)
	for {
		n, remote, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("datagram receive failed", logger.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		l.dispatch(append([]byte(nil), buf[:n]...), remote)
	}
}

func (l *UDPListener) dispatch(datagram []byte, remote *net.UDPAddr) {
	key := remote.String()
	if l.opts.SessionKey != nil {
		k, err := l.opts.SessionKey(datagram)
		if err != nil {
			l.log.Warn("datagram dropped: no session key", logger.Error(err), logger.Remote(remote))
			return
		}
		key = k
	}

	s, ok := l.sessions.Get(key)
	if ok && s.closing.Load() {
		l.sessions.Remove(key, s)
		ok = false
	}
	if !ok {
		if l.sessions.Len() >= l.opts.MaxConnections {
			l.log.Warn("datagram dropped", logger.Error(api.ErrMaxConnections), logger.Remote(remote))
			return
		}
		s = newUDPSession(l, key, remote)
		if !l.sessions.TryAdd(key, s) {
			return
		}
		go s.run()
	} else {
		s.remote.Store(remote)
	}
	select {
	case s.inbox <- datagram:
	default:
		l.log.Warn("datagram dropped: session inbox full", logger.SessionID(key))
	}
}
