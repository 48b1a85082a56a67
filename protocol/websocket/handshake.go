// File: protocol/websocket/handshake.go
// Package websocket
// Core logic of the WebSocket opening handshake: header validation and the
// Sec-WebSocket-Accept computation.
package websocket

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/momentics/hioload-socket/protocol"
)

const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	MaxHandshakeHeadersSize  = 8192
	HeaderConnection         = "Connection"
	HeaderUpgrade            = "Upgrade"
	HeaderSecWebSocketKey    = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer    = "Sec-WebSocket-Version"
	HeaderSecWebSocketProto  = "Sec-WebSocket-Protocol"
	RequiredWebSocketVersion = "13"
)

var (
	ErrInvalidUpgradeHeaders = fmt.Errorf("invalid WebSocket upgrade headers")
	ErrMissingWebSocketKey   = fmt.Errorf("missing Sec-WebSocket-Key header")
	ErrBadWebSocketVersion   = fmt.Errorf("unsupported WebSocket version; only '13' is supported")
	ErrBadMethod             = fmt.Errorf("WebSocket upgrade requires GET")
)

// Handshake is the package produced once the opening request is framed.
// Err is set when the request is not a valid upgrade.
type Handshake struct {
	Request *protocol.HTTPRequest
	Accept  string
	Err     error
}

// Key returns CommandHandshake.
func (h *Handshake) Key() string { return CommandHandshake }

// Path returns the request target.
func (h *Handshake) Path() string { return h.Request.Target }

// Validate checks the upgrade request and computes Sec-WebSocket-Accept.
func Validate(req *protocol.HTTPRequest) (string, error) {
	if req.Method != http.MethodGet {
		return "", ErrBadMethod
	}
	if !headerContainsToken(req.Header, HeaderConnection, "Upgrade") ||
		!headerContainsToken(req.Header, HeaderUpgrade, "websocket") {
		return "", ErrInvalidUpgradeHeaders
	}
	if req.Header.Get(HeaderSecWebSocketVer) != RequiredWebSocketVersion {
		return "", ErrBadWebSocketVersion
	}
	key := req.Header.Get(HeaderSecWebSocketKey)
	if key == "" {
		return "", ErrMissingWebSocketKey
	}
	return ComputeAccept(key), nil
}

// ComputeAccept derives Sec-WebSocket-Accept from the client key.
func ComputeAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// AcceptResponse renders the 101 response completing the handshake.
func AcceptResponse(accept, subprotocol string) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: " + accept + "\r\n")
	if subprotocol != "" {
		b.WriteString(HeaderSecWebSocketProto + ": " + subprotocol + "\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// RejectResponse renders a 400 response for a failed handshake.
func RejectResponse(err error) []byte {
	msg := err.Error()
	return []byte(fmt.Sprintf("HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s", len(msg), msg))
}

// headerContainsToken reports whether token is listed in headerName.
func headerContainsToken(h http.Header, headerName, token string) bool {
	for _, v := range h.Values(headerName) {
		for _, p := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}
