// File: protocol/websocket/frame.go
// Package websocket implements the frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Implements WebSocket frame encoding/decoding with payload size limits
// to prevent resource exhaustion in high-load scenarios.

package websocket

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-socket/api"
)

// MaxFramePayload defines the default maximum payload size for a single frame.
const MaxFramePayload = 1 << 20 // 1 MiB

// Frame represents a decoded WebSocket frame.
type Frame struct {
	IsFinal bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// IsControl reports whether the frame is a close, ping or pong frame.
func (f *Frame) IsControl() bool {
	return f.Opcode&0x08 != 0
}

// DecodeFrame parses a raw WebSocket frame, enforcing maxPayload.
// Returns frame, consumed bytes, and error.
// If frame is incomplete, returns (nil, 0, nil).
func DecodeFrame(raw []byte, maxPayload int64) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil
	}
	if raw[0]&0x70 != 0 {
		return nil, 0, fmt.Errorf("%w: reserved bits set", api.ErrMalformedPackage)
	}
	fin := raw[0]&FinBit != 0
	opcode := raw[0] & 0x0F
	masked := raw[1]&MaskBit != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil
		}
		u := binary.BigEndian.Uint64(raw[offset:])
		if u>>63 != 0 {
			return nil, 0, fmt.Errorf("%w: invalid payload length", api.ErrMalformedPackage)
		}
		length = int64(u)
		offset += 8
	}

	if maxPayload > 0 && length > maxPayload {
		return nil, 0, fmt.Errorf("%w: frame payload of %d bytes", api.ErrPackageTooLarge, length)
	}
	if opcode&0x08 != 0 && (length > MaxControlPayloadLen || !fin) {
		return nil, 0, fmt.Errorf("%w: invalid control frame", api.ErrMalformedPackage)
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	totalLen := offset + int(length)
	if len(raw) < totalLen {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:totalLen])
	if masked {
		maskBytes(payload, maskKey)
	}

	return &Frame{
		IsFinal: fin,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: maskKey,
		Payload: payload,
	}, totalLen, nil
}

// AppendFrame serializes f onto dst. Server frames are sent unmasked; a
// masked frame uses f.MaskKey.
func AppendFrame(dst []byte, f *Frame) []byte {
	var b0 byte
	if f.IsFinal {
		b0 = FinBit
	}
	b0 |= f.Opcode & 0x0F

	var maskBit byte
	if f.Masked {
		maskBit = MaskBit
	}

	plen := len(f.Payload)
	switch {
	case plen <= 125:
		dst = append(dst, b0, byte(plen)|maskBit)
	case plen <= 0xFFFF:
		dst = append(dst, b0, 126|maskBit)
		dst = binary.BigEndian.AppendUint16(dst, uint16(plen))
	default:
		dst = append(dst, b0, 127|maskBit)
		dst = binary.BigEndian.AppendUint64(dst, uint64(plen))
	}

	if !f.Masked {
		return append(dst, f.Payload...)
	}
	dst = append(dst, f.MaskKey[:]...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	maskBytes(dst[start:], f.MaskKey)
	return dst
}

// EncodeFrame returns a final, unmasked frame carrying payload.
func EncodeFrame(opcode byte, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, len(payload)+MaxFrameHeaderLen), &Frame{
		IsFinal: true,
		Opcode:  opcode,
		Payload: payload,
	})
}

// EncodeClose returns a close frame with a status code and reason.
func EncodeClose(code int, reason string) []byte {
	payload := binary.BigEndian.AppendUint16(nil, uint16(code))
	if len(reason) > MaxControlPayloadLen-2 {
		reason = reason[:MaxControlPayloadLen-2]
	}
	return EncodeFrame(OpcodeClose, append(payload, reason...))
}

// maskBytes applies XOR on buf using key.
func maskBytes(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}
