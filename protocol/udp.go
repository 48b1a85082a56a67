// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Datagram layout for session-keyed UDP protocols:
//
//	[name: NameSize bytes, NUL padded][session key: KeySize bytes, NUL padded][body]

package protocol

import (
	"bytes"

	"github.com/momentics/hioload-socket/api"
)

// Default region sizes: a four byte command name followed by a textual UUID.
const (
	DefaultUDPNameSize = 4
	DefaultUDPKeySize  = 36
)

// UDPRequest is a package that names the session it belongs to.
type UDPRequest struct {
	Name    string
	Session string
	Body    []byte
}

// Key returns the command name.
func (r *UDPRequest) Key() string { return r.Name }

// SessionKey returns the embedded session key.
func (r *UDPRequest) SessionKey() string { return r.Session }

// UDPRequestFilter parses one session-keyed datagram per call.
type UDPRequestFilter struct {
	filterBase
	NameSize int
	KeySize  int
}

// NewUDPRequestFilter creates a filter with the default region sizes.
func NewUDPRequestFilter() *UDPRequestFilter {
	return &UDPRequestFilter{NameSize: DefaultUDPNameSize, KeySize: DefaultUDPKeySize}
}

// Filter implements api.ReceiveFilter. The whole datagram is consumed.
func (f *UDPRequestFilter) Filter(data []byte) (api.Package, int, error) {
	head := f.NameSize + f.KeySize
	if len(data) < head {
		return f.fail(malformed("datagram of %d bytes is shorter than its %d byte header", len(data), head))
	}
	name := trimRegion(data[:f.NameSize])
	if name == "" {
		return f.fail(malformed("empty command name"))
	}
	return &UDPRequest{
		Name:    name,
		Session: trimRegion(data[f.NameSize:head]),
		Body:    append([]byte(nil), data[head:]...),
	}, 0, nil
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *UDPRequestFilter) LeftBufferSize() int { return 0 }

// Reset implements api.ReceiveFilter.
func (f *UDPRequestFilter) Reset() { f.resetBase() }

// UDPKeyExtractor returns a function reading the session key region of a
// datagram laid out as described for UDPRequestFilter.
func UDPKeyExtractor(nameSize, keySize int) func(datagram []byte) (string, error) {
	return func(datagram []byte) (string, error) {
		if len(datagram) < nameSize+keySize {
			return "", malformed("datagram too short for session key")
		}
		key := trimRegion(datagram[nameSize : nameSize+keySize])
		if key == "" {
			return "", malformed("empty session key")
		}
		return key, nil
	}
}

// EncodeUDPRequest builds a session-keyed datagram.
func EncodeUDPRequest(name, session string, body []byte, nameSize, keySize int) []byte {
	out := make([]byte, nameSize+keySize, nameSize+keySize+len(body))
	copy(out[:nameSize], name)
	copy(out[nameSize:], session)
	return append(out, body...)
}

func trimRegion(b []byte) string {
	return string(bytes.Trim(b, "\x00 "))
}
