// File: protocol/websocket/filter.go
// Package websocket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Receive filters: the opening handshake is framed as an HTTP request, then
// the session switches to the frame filter.

package websocket

import (
	"fmt"

	"golang.org/x/text/encoding"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/protocol"
)

// Message is a complete data message. Text messages are parsed as
// "COMMAND params..."; binary messages use CommandBinary.
type Message struct {
	Name       string
	Opcode     byte
	Text       string
	Parameters []string
	Data       []byte
}

// Key returns the command name.
func (m *Message) Key() string { return m.Name }

// Control wraps a ping, pong or close frame.
type Control struct {
	Frame *Frame
}

// Key maps the control opcode onto its command name.
func (c *Control) Key() string {
	switch c.Frame.Opcode {
	case OpcodePing:
		return CommandPing
	case OpcodePong:
		return CommandPong
	default:
		return CommandClose
	}
}

// Options configures the frame filter.
type Options struct {
	MaxFramePayload int64
	MaxMessageSize  int
	Encoding        encoding.Encoding
	Parser          protocol.RequestParser
	// AllowUnmasked accepts unmasked client frames.
	AllowUnmasked bool
}

func (o Options) withDefaults() Options {
	if o.MaxFramePayload <= 0 {
		o.MaxFramePayload = MaxFramePayload
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4 * MaxFramePayload
	}
	if o.Parser == nil {
		o.Parser = protocol.DefaultParser
	}
	return o
}

// HandshakeFilter frames the opening request and hands over to a FrameFilter
// once the request is a valid upgrade.
type HandshakeFilter struct {
	header *protocol.HTTPFilter
	opts   Options
	state  api.FilterState
	next   api.ReceiveFilter
}

// NewReceiveFilter returns the filter a WebSocket session starts with.
func NewReceiveFilter(opts Options) *HandshakeFilter {
	return &HandshakeFilter{
		header: protocol.NewHTTPFilter(MaxHandshakeHeadersSize),
		opts:   opts.withDefaults(),
	}
}

// Filter implements api.ReceiveFilter.
func (f *HandshakeFilter) Filter(data []byte) (api.Package, int, error) {
	pkg, rest, err := f.header.Filter(data)
	if err != nil {
		f.state = api.FilterError
		return nil, 0, err
	}
	if pkg == nil {
		if f.header.Next() != nil {
			f.state = api.FilterError
			return nil, 0, fmt.Errorf("%w: handshake request with a body", api.ErrMalformedPackage)
		}
		return nil, rest, nil
	}
	req := pkg.(*protocol.HTTPRequest)
	accept, verr := Validate(req)
	if verr == nil {
		f.next = NewFrameFilter(f.opts)
	}
	return &Handshake{Request: req, Accept: accept, Err: verr}, rest, nil
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *HandshakeFilter) LeftBufferSize() int { return f.header.LeftBufferSize() }

// Next implements api.ReceiveFilter.
func (f *HandshakeFilter) Next() api.ReceiveFilter { return f.next }

// State implements api.ReceiveFilter.
func (f *HandshakeFilter) State() api.FilterState { return f.state }

// Reset implements api.ReceiveFilter.
func (f *HandshakeFilter) Reset() {
	f.header.Reset()
	f.state = api.FilterNormal
	f.next = nil
}

// FrameFilter decodes frames and reassembles fragmented messages.
type FrameFilter struct {
	opts     Options
	buf      []byte
	fragOp   byte
	fragment []byte
	inFrag   bool
	state    api.FilterState
}

// NewFrameFilter creates a frame filter.
func NewFrameFilter(opts Options) *FrameFilter {
	return &FrameFilter{opts: opts.withDefaults()}
}

// Filter implements api.ReceiveFilter.
func (f *FrameFilter) Filter(data []byte) (api.Package, int, error) {
	// Decode straight from data when nothing is pending.
	src := data
	pending := len(f.buf)
	if pending > 0 {
		f.buf = append(f.buf, data...)
		src = f.buf
	}

	frame, n, err := DecodeFrame(src, f.opts.MaxFramePayload)
	if err != nil {
		return f.fail(err)
	}
	if frame == nil {
		if pending == 0 {
			f.buf = append(f.buf, data...)
		}
		return nil, 0, nil
	}
	rest := len(src) - n
	f.buf = f.buf[:0]

	if !frame.Masked && !f.opts.AllowUnmasked {
		return f.fail(fmt.Errorf("%w: unmasked client frame", api.ErrMalformedPackage))
	}
	pkg, err := f.assemble(frame)
	if err != nil {
		return f.fail(err)
	}
	return pkg, rest, nil
}

func (f *FrameFilter) assemble(frame *Frame) (api.Package, error) {
	if frame.IsControl() {
		return &Control{Frame: frame}, nil
	}

	switch frame.Opcode {
	case OpcodeContinuation:
		if !f.inFrag {
			return nil, fmt.Errorf("%w: continuation without a started message", api.ErrMalformedPackage)
		}
	case OpcodeText, OpcodeBinary:
		if f.inFrag {
			return nil, fmt.Errorf("%w: new message inside a fragmented one", api.ErrMalformedPackage)
		}
		f.fragOp = frame.Opcode
		f.fragment = f.fragment[:0]
	default:
		return nil, fmt.Errorf("%w: unknown opcode %#x", api.ErrMalformedPackage, frame.Opcode)
	}

	if len(f.fragment)+len(frame.Payload) > f.opts.MaxMessageSize {
		return nil, fmt.Errorf("%w: message over %d bytes", api.ErrPackageTooLarge, f.opts.MaxMessageSize)
	}
	f.fragment = append(f.fragment, frame.Payload...)
	if !frame.IsFinal {
		f.inFrag = true
		return nil, nil
	}
	f.inFrag = false
	return f.message()
}

func (f *FrameFilter) message() (api.Package, error) {
	data := append([]byte(nil), f.fragment...)
	f.fragment = f.fragment[:0]
	if f.fragOp == OpcodeBinary {
		return &Message{Name: CommandBinary, Opcode: OpcodeBinary, Data: data}, nil
	}
	text, err := protocol.DecodeString(f.opts.Encoding, data)
	if err != nil {
		return nil, err
	}
	sp, err := f.opts.Parser.Parse(text)
	if err != nil || sp == nil {
		return nil, err
	}
	return &Message{
		Name:       sp.Name,
		Opcode:     OpcodeText,
		Text:       sp.Body,
		Parameters: sp.Parameters,
		Data:       data,
	}, nil
}

func (f *FrameFilter) fail(err error) (api.Package, int, error) {
	f.state = api.FilterError
	return nil, 0, err
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *FrameFilter) LeftBufferSize() int { return len(f.buf) + len(f.fragment) }

// Next implements api.ReceiveFilter.
func (f *FrameFilter) Next() api.ReceiveFilter { return nil }

// State implements api.ReceiveFilter.
func (f *FrameFilter) State() api.FilterState { return f.state }

// Reset implements api.ReceiveFilter.
func (f *FrameFilter) Reset() {
	f.buf = f.buf[:0]
	f.fragment = f.fragment[:0]
	f.inFrag = false
	f.state = api.FilterNormal
}
