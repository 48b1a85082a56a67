// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package main

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/protocol/websocket"
)

// replySession records SendString calls; the embedded nil interface is
// never reached by the demo commands.
type replySession struct {
	api.Session
	replies []string
	closed  api.CloseReason
}

func (r *replySession) SendString(s string) error {
	r.replies = append(r.replies, s)
	return nil
}

func (r *replySession) Close(reason api.CloseReason) { r.closed = reason }

func TestDemoCommands(t *testing.T) {
	cmds := demoCommands()
	s := &replySession{}

	require.NoError(t, cmds["ECHO"].Execute(s, &api.StringPackage{Name: "ECHO", Body: "hello world"}))
	require.NoError(t, cmds["ADD"].Execute(s, &api.StringPackage{Name: "ADD", Parameters: []string{"1", "2", "39"}}))
	require.NoError(t, cmds["ADD"].Execute(s, &websocket.Message{Name: "ADD", Parameters: []string{"x"}}))
	assert.Equal(t, []string{"hello world", "42", `ADD: "x" is not an integer`}, s.replies)

	require.NoError(t, cmds["QUIT"].Execute(s, &api.StringPackage{Name: "QUIT"}))
	assert.Equal(t, "BYE", s.replies[3])
	assert.Equal(t, api.CloseClientClosing, s.closed)
}

func TestAllowCIDRs(t *testing.T) {
	allow, err := allowCIDRs([]string{"10.0.0.0/8", "::1/128"})
	require.NoError(t, err)
	assert.True(t, allow(&net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 5000}))
	assert.True(t, allow(&net.UDPAddr{IP: net.IPv6loopback, Port: 5000}))
	assert.False(t, allow(&net.TCPAddr{IP: net.ParseIP("192.168.1.1"), Port: 5000}))

	_, err = allowCIDRs([]string{"not-a-cidr"})
	assert.Error(t, err)
}
