// File: client/client.go
// Package client provides a reconnecting client for line command servers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The client writes one command per request, terminated by Config.Terminator,
// and splits the byte stream it receives on Config.ResponseTerminator. Replies
// and unsolicited pushes (broadcasts) arrive through the same Recv queue.

package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by operations on a closed client or after the server
// closed the connection.
var ErrClosed = errors.New("client: connection closed")

// ConnEventHandler defines lifecycle callback signatures.
type ConnEventHandler interface {
	OnConnect()
	OnClose()
	OnError(err error)
}

// Config holds the client parameters. Zero values select the defaults.
type Config struct {
	Addr               string        // host:port
	Terminator         string        // appended to every request, "\r\n" by default
	ResponseTerminator string        // separates replies, "\r\n" by default
	DialTimeout        time.Duration // per attempt, 5s by default
	WriteTimeout       time.Duration // write deadline, 0 = none
	ReconnectMax       int           // dial attempts beyond the first, 0 = single attempt
	QueueSize          int           // buffered replies, 64 by default
	MaxLineSize        int           // longest accepted reply, 1 MiB by default
	TLS                *tls.Config   // dial with TLS when set
}

func (c Config) withDefaults() Config {
	if c.Terminator == "" {
		c.Terminator = "\r\n"
	}
	if c.ResponseTerminator == "" {
		c.ResponseTerminator = "\r\n"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = 1 << 20
	}
	return c
}

// Client is a connected command client. Send and Recv may be used from
// different goroutines; Do serializes request/reply pairs.
type Client struct {
	cfg  Config
	conn net.Conn

	recv    chan string
	done    chan struct{} // closed when the receive loop exits
	closeCh chan struct{}
	err     atomic.Pointer[error]

	mu       sync.Mutex
	handlers []ConnEventHandler
	writeMu  sync.Mutex
	doMu     sync.Mutex
	closed   atomic.Bool
	attempts int
}

// Dial connects to cfg.Addr, retrying up to cfg.ReconnectMax times with a
// linear backoff.
func Dial(ctx context.Context, cfg Config, handlers ...ConnEventHandler) (*Client, error) {
	c := &Client{
		cfg:      cfg.withDefaults(),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		handlers: handlers,
	}
	c.recv = make(chan string, c.cfg.QueueSize)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterHandler adds a lifecycle event handler.
func (c *Client) RegisterHandler(h ConnEventHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// LocalAddr returns the client side of the connection.
func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Send writes one command followed by the request terminator.
func (c *Client) Send(command string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	_, err := c.conn.Write([]byte(command + c.cfg.Terminator))
	return err
}

// Recv returns the next reply without its terminator. Queued replies are
// still delivered after the server closed the connection.
func (c *Client) Recv(ctx context.Context) (string, error) {
	select {
	case line := <-c.recv:
		return line, nil
	default:
	}
	select {
	case line := <-c.recv:
		return line, nil
	case <-c.done:
		select {
		case line := <-c.recv:
			return line, nil
		default:
		}
		return "", c.loadErr()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Do sends command and waits for one reply.
func (c *Client) Do(ctx context.Context, command string) (string, error) {
	c.doMu.Lock()
	defer c.doMu.Unlock()
	if err := c.Send(command); err != nil {
		return "", err
	}
	return c.Recv(ctx)
}

// Close shuts the connection down; idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.closeCh)
	err := c.conn.Close()
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handlers {
		h.OnClose()
	}
	return err
}

func (c *Client) connect(ctx context.Context) error {
	for {
		c.attempts++
		err := c.dial(ctx)
		if err == nil {
			return nil
		}
		if c.attempts > c.cfg.ReconnectMax {
			if c.cfg.ReconnectMax == 0 {
				return err
			}
			return fmt.Errorf("max reconnect attempts reached: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(c.attempts) * 100 * time.Millisecond):
		}
	}
}

func (c *Client) dial(ctx context.Context) error {
	d := &net.Dialer{Timeout: c.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if c.cfg.TLS != nil {
		conn, err = (&tls.Dialer{NetDialer: d, Config: c.cfg.TLS}).DialContext(ctx, "tcp", c.cfg.Addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", c.cfg.Addr)
	}
	if err != nil {
		return err
	}
	c.conn = conn
	c.attempts = 0

	c.mu.Lock()
	for _, h := range c.handlers {
		go h.OnConnect()
	}
	c.mu.Unlock()

	go c.recvLoop()
	return nil
}

// recvLoop splits the stream into replies until the connection ends.
func (c *Client) recvLoop() {
	defer close(c.done)
	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 0, 4096), c.cfg.MaxLineSize)
	sc.Split(splitOn([]byte(c.cfg.ResponseTerminator)))
	for sc.Scan() {
		select {
		case c.recv <- sc.Text():
		case <-c.closeCh:
			c.storeErr(ErrClosed)
			return
		}
	}
	err := sc.Err()
	if err == nil || errors.Is(err, io.EOF) || c.closed.Load() {
		c.storeErr(ErrClosed)
		return
	}
	c.storeErr(fmt.Errorf("%w: %v", ErrClosed, err))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handlers {
		h.OnError(err)
	}
}

func (c *Client) storeErr(err error) { c.err.Store(&err) }

func (c *Client) loadErr() error {
	if p := c.err.Load(); p != nil {
		return *p
	}
	return ErrClosed
}

func splitOn(term []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.Index(data, term); i >= 0 {
			return i + len(term), data[:i], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
