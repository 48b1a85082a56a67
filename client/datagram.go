// File: client/datagram.go
// Package client
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/hioload-socket/protocol"
)

// DatagramClient speaks the session-keyed UDP layout: every request carries
// the command name and the client's session key.
type DatagramClient struct {
	conn *net.UDPConn
	key  string

	mu  sync.Mutex
	buf []byte
}

// DialDatagram connects a UDP socket to addr. An empty sessionKey draws a
// random UUID.
func DialDatagram(addr, sessionKey string) (*DatagramClient, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	if sessionKey == "" {
		sessionKey = uuid.NewString()
	}
	return &DatagramClient{conn: conn, key: sessionKey, buf: make([]byte, 64*1024)}, nil
}

// SessionKey returns the key sent with every request.
func (c *DatagramClient) SessionKey() string { return c.key }

// Send writes one request without waiting for a reply.
func (c *DatagramClient) Send(name string, body []byte) error {
	_, err := c.conn.Write(protocol.EncodeUDPRequest(name, c.key, body,
		protocol.DefaultUDPNameSize, protocol.DefaultUDPKeySize))
	return err
}

// Do sends a request and waits for one reply datagram. Without a ctx
// deadline the wait is bounded by five seconds.
func (c *DatagramClient) Do(ctx context.Context, name string, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Send(name, body); err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), c.buf[:n]...), nil
}

// Close releases the socket.
func (c *DatagramClient) Close() error { return c.conn.Close() }
