// File: server/session.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/logger"
	"github.com/momentics/hioload-socket/internal/session"
	"github.com/momentics/hioload-socket/internal/transport"
	"github.com/momentics/hioload-socket/protocol"
)

// AppSession is the application view of one connection or UDP pseudo
// connection. It is created by the transport and owned by the server's
// session table while alive.
type AppSession struct {
	server *Server
	conn   transport.Conn
	id     string
	key    string
	start  time.Time
	items  *session.Items
	log    *slog.Logger

	lastActive atomic.Int64
	current    atomic.Pointer[string]
	prev       atomic.Pointer[string]
	encoder    atomic.Pointer[func(string) ([]byte, error)]
	handshake  atomic.Pointer[func(api.CloseReason)]
}

var (
	_ api.ProtocolSession = (*AppSession)(nil)
	_ transport.Handler   = sessionHandler{}
)

func newAppSession(srv *Server, c transport.Conn, identityKey string) *AppSession {
	id := uuid.NewString()
	if identityKey == "" {
		identityKey = id
	}
	now := time.Now()
	s := &AppSession{
		server: srv,
		conn:   c,
		id:     id,
		key:    identityKey,
		start:  now,
		items:  session.NewItems(),
		log:    srv.log.With(logger.SessionID(identityKey)),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// ID returns the unique session id.
func (s *AppSession) ID() string { return s.id }

// IdentityKey returns the key of the session in the server table.
func (s *AppSession) IdentityKey() string { return s.key }

func (s *AppSession) LocalAddr() net.Addr { return s.conn.LocalAddr() }

func (s *AppSession) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *AppSession) StartTime() time.Time { return s.start }

// LastActiveTime is refreshed for every received package.
func (s *AppSession) LastActiveTime() time.Time { return time.Unix(0, s.lastActive.Load()) }

func (s *AppSession) Status() api.SessionStatus {
	if s.conn.Closed() {
		return api.StatusDisconnected
	}
	return api.StatusHealthy
}

func (s *AppSession) SecureMode() api.SecureMode { return s.conn.SecureMode() }

func (s *AppSession) CurrentCommand() string { return loadString(&s.current) }

func (s *AppSession) PrevCommand() string { return loadString(&s.prev) }

func (s *AppSession) Items() api.ItemBag { return s.items }

// Server returns the owning server.
func (s *AppSession) Server() *Server { return s.server }

// Connected reports whether the session still accepts sends.
func (s *AppSession) Connected() bool { return !s.conn.Closed() }

// Send writes raw bytes; it is a no-op once the session is closed.
func (s *AppSession) Send(data []byte) error { return s.conn.Send(data) }

// SendString encodes text with the configured encoding and appends the
// response terminator on stream sessions. A message encoder installed by the
// protocol takes over both steps.
func (s *AppSession) SendString(text string) error {
	if enc := s.encoder.Load(); enc != nil {
		b, err := (*enc)(text)
		if err != nil {
			return err
		}
		return s.Send(b)
	}
	b, err := protocol.EncodeString(s.server.encoding, text)
	if err != nil {
		return err
	}
	if !s.conn.Datagram() {
		b = append(b, s.server.cfg.ResponseTerminator...)
	}
	return s.Send(b)
}

// Close is idempotent.
func (s *AppSession) Close(reason api.CloseReason) { s.conn.Close(reason) }

// SetNextFilter replaces the receive filter before the next chunk is framed.
func (s *AppSession) SetNextFilter(f api.ReceiveFilter) { s.conn.SetNextFilter(f) }

// SetMessageEncoder implements api.ProtocolSession.
func (s *AppSession) SetMessageEncoder(fn func(text string) ([]byte, error)) {
	s.encoder.Store(&fn)
}

// SetCloseHandshake implements api.ProtocolSession.
func (s *AppSession) SetCloseHandshake(fn func(reason api.CloseReason)) {
	s.handshake.Store(&fn)
}

func (s *AppSession) setCurrentCommand(name string) { s.current.Store(&name) }

func (s *AppSession) setPrevCommand(name string) { s.prev.Store(&name) }

func loadString(p *atomic.Pointer[string]) string {
	if v := p.Load(); v != nil {
		return *v
	}
	return ""
}

// sessionHandler is the transport side of an AppSession.
type sessionHandler struct{ s *AppSession }

func (h sessionHandler) IdentityKey() string { return h.s.key }

func (h sessionHandler) Started() {
	srv := h.s.server
	srv.metrics.SessionStarted(srv.cfg.Name)
	h.s.log.Debug("session started", logger.Remote(h.s.RemoteAddr()))
	if srv.hooks.SessionStarted != nil {
		srv.hooks.SessionStarted(h.s)
	}
}

func (h sessionHandler) Handle(pkg api.Package) error {
	return h.s.server.dispatcher.Dispatch(h.s, pkg)
}

func (h sessionHandler) HandleError(err error) {
	srv := h.s.server
	var pe *api.PanicError
	if errors.As(err, &pe) {
		srv.metrics.HandlerError(srv.cfg.Name, "panic")
		h.s.log.Error("command panicked", logger.Command(h.s.CurrentCommand()), logger.Error(err),
			slog.String("stack", string(pe.Stack)))
	} else {
		srv.metrics.HandlerError(srv.cfg.Name, "error")
		h.s.log.Error("command failed", logger.Command(h.s.CurrentCommand()), logger.Error(err))
	}
	if srv.hooks.Error != nil {
		srv.hooks.Error(h.s, err)
	}
}

func (h sessionHandler) Touch(t time.Time) { h.s.lastActive.Store(t.UnixNano()) }

func (h sessionHandler) CloseHandshake(reason api.CloseReason) {
	if fn := h.s.handshake.Load(); fn != nil {
		(*fn)(reason)
	}
}

func (h sessionHandler) Closed(reason api.CloseReason) {
	h.s.server.sessionClosed(h.s, reason)
}
