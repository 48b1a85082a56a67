// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"net"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/control"
)

// Option customizes server initialization.
type Option func(*Server)

// Hooks are the customization points of the session-to-application boundary.
// Nil hooks fall back to the default behaviour.
type Hooks struct {
	// SessionStarted is the welcome hook, run once after the transport
	// handshake and before the first package is read.
	SessionStarted func(s api.Session)
	// UnknownCommand replaces the default "Unknown command: <name>" reply.
	UnknownCommand func(s api.Session, pkg api.Package)
	// Error receives handler failures that did not close the session.
	Error func(s api.Session, err error)
	// SessionClosed fires once per registered session.
	SessionClosed func(s api.Session, reason api.CloseReason)
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithFilterFactory sets the receive filter created for every session.
func WithFilterFactory(f api.FilterFactory) Option {
	return func(s *Server) {
		s.newFilter = f
	}
}

// WithCommands registers command handlers by name.
func WithCommands(cmds map[string]api.CommandHandler) Option {
	return func(s *Server) {
		for name, h := range cmds {
			s.dispatcher.Register(name, h)
		}
	}
}

// WithCommandSetup lets fn register commands directly, e.g. websocket.Install.
func WithCommandSetup(fn func(d *Dispatcher)) Option {
	return func(s *Server) {
		fn(s.dispatcher)
	}
}

// WithCommandFilters appends global command filters in FIFO order.
func WithCommandFilters(filters ...api.CommandFilter) Option {
	return func(s *Server) {
		s.dispatcher.Use(filters...)
	}
}

// WithHooks installs application hooks.
func WithHooks(h Hooks) Option {
	return func(s *Server) {
		s.hooks = h
	}
}

// WithCertificateProvider sets the source of the TLS certificate.
func WithCertificateProvider(p CertificateProvider) Option {
	return func(s *Server) {
		s.certs = p
	}
}

// WithMetrics reports server activity to m.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithUDPSessionKey keys UDP sessions by a key carried in each datagram.
func WithUDPSessionKey(fn func(datagram []byte) (string, error)) Option {
	return func(s *Server) {
		s.udpKey = fn
	}
}

// WithConnectionFilters appends accept-time filters. A peer is admitted only
// if every filter returns true for its remote address; refused peers are
// closed before the welcome and produce no close event.
func WithConnectionFilters(filters ...func(remote net.Addr) bool) Option {
	return func(s *Server) {
		s.admit = append(s.admit, filters...)
	}
}
