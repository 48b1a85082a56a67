package logger

import (
	"log/slog"
	"net"
	"time"
)

// Attribute helpers use the empty Attr pattern for nil safety, so callers can
// write log.Warn("msg", logger.Error(err)) without nil checks.

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component tags records of one subsystem.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// SessionID identifies a session by its identity key.
func SessionID(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("session", key)
}

// Remote records a peer address.
func Remote(addr net.Addr) slog.Attr {
	if addr == nil {
		return slog.Attr{}
	}
	return slog.String("remote", addr.String())
}

// Reason records a close reason or any other Stringer.
func Reason(r interface{ String() string }) slog.Attr {
	return slog.String("reason", r.String())
}

// Command records a command name.
func Command(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("command", name)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
