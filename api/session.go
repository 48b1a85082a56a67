// File: api/session.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session contract shared by the transport engine and the application server.

package api

import (
	"net"
	"strings"
	"time"
)

// CloseReason is the enumerated cause of session termination.
type CloseReason int

const (
	CloseUnknown CloseReason = iota
	CloseServerShutdown
	CloseClientClosing
	CloseServerClosing
	CloseSocketError
	CloseTimeOut
)

var closeReasonNames = [...]string{
	CloseUnknown:        "Unknown",
	CloseServerShutdown: "ServerShutdown",
	CloseClientClosing:  "ClientClosing",
	CloseServerClosing:  "ServerClosing",
	CloseSocketError:    "SocketError",
	CloseTimeOut:        "TimeOut",
}

func (r CloseReason) String() string {
	if r < 0 || int(r) >= len(closeReasonNames) {
		return closeReasonNames[CloseUnknown]
	}
	return closeReasonNames[r]
}

// SessionStatus tracks whether a session is still connected.
type SessionStatus int32

const (
	StatusHealthy SessionStatus = iota
	StatusDisconnected
)

func (s SessionStatus) String() string {
	if s == StatusDisconnected {
		return "Disconnected"
	}
	return "Healthy"
}

// SecureMode selects the transport security applied at session start.
type SecureMode int

const (
	SecureNone SecureMode = iota
	SecureTLS
	SecureSSL2
	SecureSSL3
)

func (m SecureMode) String() string {
	switch m {
	case SecureTLS:
		return "tls"
	case SecureSSL2:
		return "ssl2"
	case SecureSSL3:
		return "ssl3"
	default:
		return "none"
	}
}

// ParseSecureMode maps a configuration value onto a SecureMode.
func ParseSecureMode(s string) (SecureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SecureNone, nil
	case "tls":
		return SecureTLS, nil
	case "ssl2":
		return SecureSSL2, nil
	case "ssl3":
		return SecureSSL3, nil
	}
	return SecureNone, NewError(ErrCodeInvalidArgument, "unknown secure mode").WithContext("mode", s)
}

// ItemBag is the per-session key/value store.
type ItemBag interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Keys() []string
}

// Session is the application-facing view of one connection.
type Session interface {
	ID() string
	IdentityKey() string
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	StartTime() time.Time
	LastActiveTime() time.Time
	Status() SessionStatus
	SecureMode() SecureMode
	CurrentCommand() string
	PrevCommand() string
	Items() ItemBag

	// Send writes raw bytes. It is a no-op on a closed session.
	Send(data []byte) error
	// SendString encodes s and appends the response terminator of stream sessions.
	SendString(s string) error
	// Close is idempotent; only the first call has effect.
	Close(reason CloseReason)
	// SetNextFilter replaces the receive filter before the next read is framed.
	SetNextFilter(f ReceiveFilter)
	Connected() bool
}

// ProtocolSession is implemented by sessions whose protocol wraps outgoing
// messages or needs a closing handshake (WebSocket).
type ProtocolSession interface {
	Session
	// SetMessageEncoder makes SendString hand its text to fn instead of
	// encoding it and appending the response terminator.
	SetMessageEncoder(fn func(text string) ([]byte, error))
	// SetCloseHandshake registers a best-effort handshake run before the
	// socket is closed for the given reasons.
	SetCloseHandshake(fn func(reason CloseReason))
}
