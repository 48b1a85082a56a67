// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package client_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/client"
	"github.com/momentics/hioload-socket/protocol"
	"github.com/momentics/hioload-socket/server"
)

func commands() server.Option {
	return server.WithCommands(map[string]api.CommandHandler{
		"ECHO": api.CommandFunc(func(s api.Session, p api.Package) error {
			switch pkg := p.(type) {
			case *api.StringPackage:
				return s.SendString(pkg.Body)
			case *protocol.UDPRequest:
				return s.SendString(string(pkg.Body))
			}
			return nil
		}),
		"QUIT": api.CommandFunc(func(s api.Session, _ api.Package) error {
			_ = s.SendString("BYE")
			s.Close(api.CloseClientClosing)
			return nil
		}),
	})
}

func startServer(t *testing.T, mode string, opts ...server.Option) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.IP = "127.0.0.1"
	cfg.Port = 0
	cfg.Mode = mode
	cfg.SessionSnapshotInterval = 10 * time.Millisecond
	srv, err := server.New(cfg, append([]server.Option{commands()}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

type countingHandler struct {
	connects, closes, errors atomic.Int32
}

func (h *countingHandler) OnConnect()    { h.connects.Add(1) }
func (h *countingHandler) OnClose()      { h.closes.Add(1) }
func (h *countingHandler) OnError(error) { h.errors.Add(1) }

func TestDoAndBroadcast(t *testing.T) {
	srv := startServer(t, "tcp")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	h := &countingHandler{}
	c, err := client.Dial(ctx, client.Config{Addr: srv.Addr().String()}, h)
	require.NoError(t, err)

	reply, err := c.Do(ctx, "ECHO hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)

	require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.Broadcast([]byte("news\r\n")))
	pushed, err := c.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "news", pushed)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, int32(1), h.closes.Load())
	require.Eventually(t, func() bool { return h.connects.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.Send("ECHO late"), client.ErrClosed)
}

func TestServerCloseDrainsQueuedReplies(t *testing.T) {
	srv := startServer(t, "tcp")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, client.Config{Addr: srv.Addr().String()})
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Do(ctx, "QUIT")
	require.NoError(t, err)
	assert.Equal(t, "BYE", reply)
	_, err = c.Recv(ctx)
	assert.ErrorIs(t, err, client.ErrClosed)
}

func TestDialGivesUpAfterRetries(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = client.Dial(context.Background(), client.Config{Addr: addr, ReconnectMax: 2, DialTimeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max reconnect attempts")
}

func TestDatagramClientKeepsOneSession(t *testing.T) {
	srv := startServer(t, "udp",
		server.WithFilterFactory(func() api.ReceiveFilter { return protocol.NewUDPRequestFilter() }),
		server.WithUDPSessionKey(protocol.UDPKeyExtractor(protocol.DefaultUDPNameSize, protocol.DefaultUDPKeySize)),
	)
	c, err := client.DialDatagram(srv.Addr().String(), "")
	require.NoError(t, err)
	defer c.Close()

	for _, body := range []string{"a", "b", "c"} {
		reply, err := c.Do(context.Background(), "ECHO", []byte(body))
		require.NoError(t, err)
		assert.Equal(t, body, string(reply))
	}
	require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	_, ok := srv.GetSessionByID(c.SessionKey())
	assert.True(t, ok)
}
