// File: internal/transport/session_udp.go
// Package transport
// Author: momentics <momentics@gmail.com>

package transport

import (
	"net"
	"sync/atomic"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/logger"
)

// udpSession is a pseudo session over the shared datagram socket. Datagrams
// are framed in arrival order; several packages may share one datagram.
type udpSession struct {
	baseSession
	l      *UDPListener
	key    string
	remote atomic.Pointer[net.UDPAddr]
	inbox  chan []byte
}

func newUDPSession(l *UDPListener, key string, remote *net.UDPAddr) *udpSession {
	s := &udpSession{l: l, key: key, inbox: make(chan []byte, udpInboxSize)}
	s.baseSession = newBaseSession(&l.opts, l.host, func() { l.sessions.Remove(key, s) })
	s.remote.Store(remote)
	return s
}

func (s *udpSession) LocalAddr() net.Addr { return s.l.conn.LocalAddr() }

func (s *udpSession) RemoteAddr() net.Addr { return s.remote.Load() }

func (s *udpSession) SecureMode() api.SecureMode { return api.SecureNone }

func (s *udpSession) Datagram() bool { return true }

// Send writes one datagram to the latest known remote endpoint.
func (s *udpSession) Send(data []byte) error {
	if s.closed.Load() || len(data) == 0 {
		return nil
	}
	if _, err := s.l.conn.WriteToUDP(data, s.remote.Load()); err != nil {
		s.log.Debug("datagram send failed", logger.Error(err))
		return err
	}
	return nil
}

func (s *udpSession) run() {
	if !s.attach(s, s.key) {
		return
	}
	for {
		select {
		case <-s.doneCh:
			return
		case d := <-s.inbox:
			if !s.process(d) {
				return
			}
		}
	}
}
