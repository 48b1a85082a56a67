//go:build linux

// File: internal/transport/sockopt_linux.go
// Author: momentics <momentics@gmail.com>
//
// Per-connection socket tuning through the raw descriptor.

package transport

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
)

func applySocketOptions(conn net.Conn, opts *Options) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	var errs []error
	if err := tc.SetNoDelay(opts.NoDelay); err != nil {
		errs = append(errs, err)
	}
	if opts.ReceiveBufferSize > 0 {
		errs = append(errs, tc.SetReadBuffer(opts.ReceiveBufferSize))
	}
	if opts.SendBufferSize > 0 {
		errs = append(errs, tc.SetWriteBuffer(opts.SendBufferSize))
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	cerr := raw.Control(func(fd uintptr) {
		s := int(fd)
		if opts.KeepAliveTime > 0 {
			errs = append(errs, unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1))
			errs = append(errs, unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, seconds(opts.KeepAliveTime)))
			if opts.KeepAliveInterval > 0 {
				errs = append(errs, unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, seconds(opts.KeepAliveInterval)))
			}
		}
		if opts.DontLinger {
			errs = append(errs, unix.SetsockoptLinger(s, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 0}))
		}
	})
	return errors.Join(append(errs, cerr)...)
}
