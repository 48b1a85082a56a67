// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Text encodings for string based protocols.

package protocol

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/momentics/hioload-socket/api"
)

// LookupEncoding resolves an IANA charset name. The empty name means UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("text encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("text encoding %q: %w", name, api.ErrInvalidArgument)
	}
	return enc, nil
}

// DecodeString decodes b using enc; nil enc means UTF-8.
func DecodeString(enc encoding.Encoding, b []byte) (string, error) {
	if enc == nil {
		enc = unicode.UTF8
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", api.ErrMalformedPackage, err)
	}
	return string(out), nil
}

// EncodeString encodes s using enc; nil enc means UTF-8.
func EncodeString(enc encoding.Encoding, s string) ([]byte, error) {
	if enc == nil {
		return []byte(s), nil
	}
	return enc.NewEncoder().Bytes([]byte(s))
}
