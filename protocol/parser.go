// File: protocol/parser.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"strings"

	"golang.org/x/text/encoding"

	"github.com/momentics/hioload-socket/api"
)

// RequestParser turns one decoded command line into a package.
// A nil package with a nil error means the line carries nothing to dispatch.
type RequestParser interface {
	Parse(line string) (*api.StringPackage, error)
}

// BasicParser splits on KeySeparator for the key and on ParamSeparator for
// the parameters. Empty separators mean any run of whitespace.
type BasicParser struct {
	KeySeparator   string
	ParamSeparator string
}

// DefaultParser treats the first whitespace-delimited token as the key.
var DefaultParser RequestParser = BasicParser{}

// Parse implements RequestParser.
func (p BasicParser) Parse(line string) (*api.StringPackage, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	var key, body string
	if p.KeySeparator == "" {
		i := strings.IndexFunc(line, isSpace)
		if i < 0 {
			return &api.StringPackage{Name: line}, nil
		}
		key, body = line[:i], strings.TrimLeftFunc(line[i:], isSpace)
	} else {
		var ok bool
		key, body, ok = strings.Cut(line, p.KeySeparator)
		if !ok {
			return &api.StringPackage{Name: line}, nil
		}
	}

	var params []string
	if p.ParamSeparator == "" {
		params = strings.Fields(body)
	} else {
		for _, s := range strings.Split(body, p.ParamSeparator) {
			if s != "" {
				params = append(params, s)
			}
		}
	}
	return &api.StringPackage{Name: key, Body: body, Parameters: params}, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '\v' || r == '\f'
}

// PackageResolver builds a package from one complete frame. frame is only
// valid during the call. A nil package with a nil error drops the frame.
type PackageResolver func(frame []byte) (api.Package, error)

// TextResolver decodes frames with enc and parses them with parser.
func TextResolver(enc encoding.Encoding, parser RequestParser) PackageResolver {
	if parser == nil {
		parser = DefaultParser
	}
	return func(frame []byte) (api.Package, error) {
		line, err := DecodeString(enc, frame)
		if err != nil {
			return nil, err
		}
		pkg, err := parser.Parse(line)
		if err != nil || pkg == nil {
			return nil, err
		}
		return pkg, nil
	}
}

// BinaryResolver copies the frame into a BinaryPackage with a fixed key.
func BinaryResolver(name string) PackageResolver {
	return func(frame []byte) (api.Package, error) {
		return &api.BinaryPackage{Name: name, Body: append([]byte(nil), frame...)}, nil
	}
}
