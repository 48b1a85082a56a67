// File: internal/transport/options.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/logger"
)

// Options configures a listener and every session it creates. Options are
// applied at registration and are not negotiable per session.
type Options struct {
	Addr              string
	MaxConnections    int
	ReceiveBufferSize int
	SendBufferSize    int
	ReadTimeout       time.Duration
	// SendTimeout: zero blocks while the session can send, negative fails on
	// the first non-sendable state, positive fails at the deadline.
	SendTimeout       time.Duration
	KeepAliveTime     time.Duration
	KeepAliveInterval time.Duration
	NoDelay           bool
	DontLinger        bool
	Backlog           int
	MaxPackageLength  int
	SendingQueueSize  int
	StopTimeout       time.Duration
	HandshakeTimeout  time.Duration
	Workers           int

	Security api.SecureMode
	TLS      *tls.Config

	// SessionKey extracts the identity key from a datagram. When nil, UDP
	// sessions are keyed by remote endpoint.
	SessionKey func(datagram []byte) (string, error)

	Logger *slog.Logger
}

// Defaults fills zero values.
func (o *Options) Defaults() {
	if o.MaxConnections <= 0 {
		o.MaxConnections = 100
	}
	if o.ReceiveBufferSize <= 0 {
		o.ReceiveBufferSize = 4096
	}
	if o.SendingQueueSize <= 0 {
		o.SendingQueueSize = 16
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
}

// Host is the application side of the engine.
type Host interface {
	// NewFilter returns a fresh receive filter for one session.
	NewFilter() api.ReceiveFilter
	// NewHandler binds an application session to c. identityKey is empty
	// when the host chooses the key itself.
	NewHandler(c Conn, identityKey string) Handler
	// Register inserts the session in the live table. An error rejects the
	// connection before any welcome is sent.
	Register(h Handler) error
}

// Handler is the application session bound to one Conn.
type Handler interface {
	IdentityKey() string
	// Started runs once after registration: the welcome hook.
	Started()
	Handle(pkg api.Package) error
	// HandleError receives non-socket handler failures, including panics.
	HandleError(err error)
	// Touch records activity for the idle sweep.
	Touch(t time.Time)
	// CloseHandshake runs before the socket is shut down; it may still Send.
	CloseHandshake(reason api.CloseReason)
	// Closed fires exactly once per registered session.
	Closed(reason api.CloseReason)
}

// Conn is the transport view handed to the application session.
type Conn interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Send(data []byte) error
	Close(reason api.CloseReason)
	SetNextFilter(f api.ReceiveFilter)
	SecureMode() api.SecureMode
	Datagram() bool
	Closed() bool
}

// Listener is the common contract of the TCP and UDP engines.
type Listener interface {
	Start() error
	Stop()
	Addr() net.Addr
	// Stats reports engine state for debug probes.
	Stats() map[string]any
}

func seconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
