// File: protocol/websocket/protocol.go
// Package websocket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Protocol commands: handshake completion, ping/pong and the closing handshake.

package websocket

import (
	"encoding/binary"
	"errors"

	"github.com/momentics/hioload-socket/api"
)

// Registrar accepts command registrations; the server dispatcher implements it.
type Registrar interface {
	Register(name string, h api.CommandHandler)
}

// ItemUpgraded is set in the session items once the handshake succeeded.
const ItemUpgraded = "websocket.upgraded"

// ErrNotUpgraded is returned when sending on a session before the handshake.
var ErrNotUpgraded = errors.New("websocket session is not upgraded")

// Install registers the protocol commands on r.
func Install(r Registrar) {
	r.Register(CommandHandshake, api.CommandFunc(handleHandshake))
	r.Register(CommandPing, api.CommandFunc(handlePing))
	r.Register(CommandPong, api.CommandFunc(func(api.Session, api.Package) error { return nil }))
	r.Register(CommandClose, api.CommandFunc(handleClose))
}

func handleHandshake(s api.Session, p api.Package) error {
	hs, ok := p.(*Handshake)
	if !ok {
		return nil
	}
	if hs.Err != nil {
		_ = s.Send(RejectResponse(hs.Err))
		s.Close(api.CloseServerClosing)
		return nil
	}
	if err := s.Send(AcceptResponse(hs.Accept, "")); err != nil {
		return err
	}
	s.Items().Set(ItemUpgraded, true)
	if ps, ok := s.(api.ProtocolSession); ok {
		ps.SetMessageEncoder(func(text string) ([]byte, error) {
			return EncodeFrame(OpcodeText, []byte(text)), nil
		})
		ps.SetCloseHandshake(func(reason api.CloseReason) {
			_ = s.Send(EncodeClose(closeCode(reason), reason.String()))
		})
	}
	return nil
}

func handlePing(s api.Session, p api.Package) error {
	c, ok := p.(*Control)
	if !ok {
		return nil
	}
	return s.Send(EncodeFrame(OpcodePong, c.Frame.Payload))
}

// handleClose answers the peer's close frame with the same status code and
// closes the session.
func handleClose(s api.Session, p api.Package) error {
	c, ok := p.(*Control)
	if !ok {
		return nil
	}
	code := CloseNormalClosure
	if len(c.Frame.Payload) >= 2 {
		code = int(binary.BigEndian.Uint16(c.Frame.Payload))
	}
	_ = s.Send(EncodeClose(code, ""))
	s.Close(api.CloseClientClosing)
	return nil
}

func closeCode(reason api.CloseReason) int {
	switch reason {
	case api.CloseTimeOut, api.CloseServerShutdown:
		return CloseGoingAway
	case api.CloseServerClosing:
		return ClosePolicyViolation
	case api.CloseSocketError:
		return CloseInternalServerErr
	default:
		return CloseNormalClosure
	}
}

// SendText sends a text message on an upgraded session.
func SendText(s api.Session, text string) error {
	return send(s, OpcodeText, []byte(text))
}

// SendBinary sends a binary message on an upgraded session.
func SendBinary(s api.Session, data []byte) error {
	return send(s, OpcodeBinary, data)
}

func send(s api.Session, opcode byte, payload []byte) error {
	if up, _ := s.Items().Get(ItemUpgraded); up != true {
		return ErrNotUpgraded
	}
	return s.Send(EncodeFrame(opcode, payload))
}
