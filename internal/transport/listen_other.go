//go:build !linux

// File: internal/transport/listen_other.go
// Author: momentics <momentics@gmail.com>

package transport

import "net"

// listenTCP ignores backlog where the platform offers no portable control.
func listenTCP(addr string, _ int) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
