// File: protocol/fixed.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Splitter-count, fixed-size and fixed-header filters.

package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/momentics/hioload-socket/api"
)

// CountSpliterFilter frames packages made of a fixed number of splitter
// occurrences, e.g. "#KEY#a#b#" with four splitters. The leading and trailing
// splitter are stripped and the remaining fields become the parameters; the
// field at keyIndex is the key.
type CountSpliterFilter struct {
	filterBase
	search   *markSearch
	count    int
	keyIndex int
	seen     int
	buf      []byte
	enc      encoding.Encoding
}

// NewCountSpliterFilter creates a splitter-count filter.
func NewCountSpliterFilter(spliter []byte, count, keyIndex int, enc encoding.Encoding) *CountSpliterFilter {
	if len(spliter) == 0 || count < 2 {
		panic("protocol: invalid splitter configuration")
	}
	return &CountSpliterFilter{
		search:   newMarkSearch(spliter),
		count:    count,
		keyIndex: keyIndex,
		enc:      enc,
	}
}

// Filter implements api.ReceiveFilter.
func (f *CountSpliterFilter) Filter(data []byte) (api.Package, int, error) {
	consumed := 0
	for consumed < len(data) {
		n := f.search.scan(data[consumed:])
		if n < 0 {
			f.buf = append(f.buf, data[consumed:]...)
			return nil, 0, nil
		}
		f.buf = append(f.buf, data[consumed:consumed+n]...)
		consumed += n
		f.seen++
		if f.seen == f.count {
			pkg, err := f.resolve()
			f.Reset()
			if err != nil {
				return f.fail(err)
			}
			return pkg, len(data) - consumed, nil
		}
	}
	return nil, 0, nil
}

func (f *CountSpliterFilter) resolve() (api.Package, error) {
	sep := f.search.mark
	frame := bytes.TrimPrefix(f.buf, sep)
	frame = bytes.TrimSuffix(frame, sep)
	text, err := DecodeString(f.enc, frame)
	if err != nil {
		return nil, err
	}
	sepText, err := DecodeString(f.enc, sep)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(text, sepText)
	if f.keyIndex < 0 || f.keyIndex >= len(parts) || parts[f.keyIndex] == "" {
		return nil, malformed("no key at field %d", f.keyIndex)
	}
	return &api.StringPackage{Name: parts[f.keyIndex], Body: text, Parameters: parts}, nil
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *CountSpliterFilter) LeftBufferSize() int { return len(f.buf) }

// Reset implements api.ReceiveFilter.
func (f *CountSpliterFilter) Reset() {
	f.seen = 0
	f.buf = f.buf[:0]
	f.search.reset()
	f.resetBase()
}

// FixedSizeFilter frames packages of exactly size bytes.
type FixedSizeFilter struct {
	filterBase
	size    int
	buf     []byte
	resolve PackageResolver
}

// NewFixedSizeFilter creates a fixed-size filter.
func NewFixedSizeFilter(size int, resolve PackageResolver) *FixedSizeFilter {
	if size <= 0 {
		panic("protocol: fixed size must be positive")
	}
	return &FixedSizeFilter{size: size, buf: make([]byte, 0, size), resolve: resolve}
}

// Filter implements api.ReceiveFilter.
func (f *FixedSizeFilter) Filter(data []byte) (api.Package, int, error) {
	need := f.size - len(f.buf)
	if len(data) < need {
		f.buf = append(f.buf, data...)
		return nil, 0, nil
	}
	f.buf = append(f.buf, data[:need]...)
	pkg, err := f.resolve(f.buf)
	f.Reset()
	if err != nil {
		return f.fail(err)
	}
	return pkg, len(data) - need, nil
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *FixedSizeFilter) LeftBufferSize() int { return len(f.buf) }

// Reset implements api.ReceiveFilter.
func (f *FixedSizeFilter) Reset() {
	f.buf = f.buf[:0]
	f.resetBase()
}

// BodyLengthFunc reads the body length out of a complete header.
type BodyLengthFunc func(header []byte) (int, error)

// HeaderResolver builds a package from a header and its body. Both slices are
// only valid during the call.
type HeaderResolver func(header, body []byte) (api.Package, error)

// FixedHeaderFilter frames packages made of a fixed-size header that declares
// the length of the body following it.
type FixedHeaderFilter struct {
	filterBase
	headerSize int
	bodyLen    int
	buf        []byte
	length     BodyLengthFunc
	resolve    HeaderResolver
}

// NewFixedHeaderFilter creates a fixed-header filter.
func NewFixedHeaderFilter(headerSize int, length BodyLengthFunc, resolve HeaderResolver) *FixedHeaderFilter {
	if headerSize <= 0 {
		panic("protocol: header size must be positive")
	}
	return &FixedHeaderFilter{headerSize: headerSize, bodyLen: -1, length: length, resolve: resolve}
}

// Filter implements api.ReceiveFilter.
func (f *FixedHeaderFilter) Filter(data []byte) (api.Package, int, error) {
	if f.bodyLen < 0 {
		need := f.headerSize - len(f.buf)
		if len(data) < need {
			f.buf = append(f.buf, data...)
			return nil, 0, nil
		}
		f.buf = append(f.buf, data[:need]...)
		data = data[need:]
		n, err := f.length(f.buf)
		if err != nil {
			return f.fail(err)
		}
		if n < 0 {
			return f.fail(malformed("negative body length %d", n))
		}
		f.bodyLen = n
	}

	need := f.headerSize + f.bodyLen - len(f.buf)
	if len(data) < need {
		f.buf = append(f.buf, data...)
		return nil, 0, nil
	}
	f.buf = append(f.buf, data[:need]...)
	pkg, err := f.resolve(f.buf[:f.headerSize], f.buf[f.headerSize:])
	f.Reset()
	if err != nil {
		return f.fail(err)
	}
	return pkg, len(data) - need, nil
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *FixedHeaderFilter) LeftBufferSize() int { return len(f.buf) }

// Reset implements api.ReceiveFilter.
func (f *FixedHeaderFilter) Reset() {
	f.bodyLen = -1
	f.buf = f.buf[:0]
	f.resetBase()
}

// BigEndianLength reads a 1, 2 or 4 byte big-endian length at offset.
func BigEndianLength(offset, width int) BodyLengthFunc {
	return func(header []byte) (int, error) {
		if offset < 0 || offset+width > len(header) {
			return 0, malformed("length field outside header")
		}
		b := header[offset : offset+width]
		switch width {
		case 1:
			return int(b[0]), nil
		case 2:
			return int(binary.BigEndian.Uint16(b)), nil
		case 4:
			return int(binary.BigEndian.Uint32(b)), nil
		}
		return 0, malformed("unsupported length width %d", width)
	}
}

// KeyedHeaderResolver uses header[:keySize] (NUL and space trimmed) as the key.
func KeyedHeaderResolver(keySize int) HeaderResolver {
	return func(header, body []byte) (api.Package, error) {
		k := min(keySize, len(header))
		key := string(bytes.Trim(header[:k], "\x00 "))
		if key == "" {
			return nil, malformed("empty key in header")
		}
		return &api.HeaderPackage{
			Name:   key,
			Header: append([]byte(nil), header...),
			Body:   append([]byte(nil), body...),
		}, nil
	}
}
