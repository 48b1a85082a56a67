//go:build !linux

// File: internal/transport/sockopt_other.go
// Author: momentics <momentics@gmail.com>

package transport

import (
	"errors"
	"net"
)

func applySocketOptions(conn net.Conn, opts *Options) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	errs := []error{tc.SetNoDelay(opts.NoDelay)}
	if opts.KeepAliveTime > 0 {
		errs = append(errs, tc.SetKeepAliveConfig(net.KeepAliveConfig{
			Enable:   true,
			Idle:     opts.KeepAliveTime,
			Interval: opts.KeepAliveInterval,
		}))
	}
	if opts.ReceiveBufferSize > 0 {
		errs = append(errs, tc.SetReadBuffer(opts.ReceiveBufferSize))
	}
	if opts.SendBufferSize > 0 {
		errs = append(errs, tc.SetWriteBuffer(opts.SendBufferSize))
	}
	return errors.Join(errs...)
}
