// File: protocol/http.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP-style request framing: a header block terminated by CRLFCRLF, followed
// by an optional Content-Length body framed by a chained body filter.

package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"

	"github.com/momentics/hioload-socket/api"
)

// HeaderTerminator ends an HTTP header block.
var HeaderTerminator = []byte("\r\n\r\n")

// HTTPRequest is the package produced by HTTPFilter. Its key is the method.
type HTTPRequest struct {
	Method string
	Target string
	Proto  string
	Header http.Header
	Body   []byte
}

// Key returns the request method.
func (r *HTTPRequest) Key() string { return r.Method }

// ParseHTTPHeader parses a complete header block including its terminator.
func ParseHTTPHeader(block []byte) (*HTTPRequest, int64, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(block)))
	if err != nil {
		return nil, 0, malformed("http header: %v", err)
	}
	if len(req.TransferEncoding) > 0 {
		return nil, 0, malformed("transfer encoding %v is not supported", req.TransferEncoding)
	}
	n := req.ContentLength
	if n < 0 {
		n = 0
	}
	return &HTTPRequest{
		Method: req.Method,
		Target: req.RequestURI,
		Proto:  req.Proto,
		Header: req.Header,
	}, n, nil
}

// HTTPFilter frames HTTP requests. A request with a body hands the rest of
// the stream to a body filter through Next; the body filter hands it back to
// this filter once the body is complete.
type HTTPFilter struct {
	filterBase
	search    *markSearch
	buf       []byte
	maxHeader int
}

// NewHTTPFilter creates an HTTP request filter. maxHeader <= 0 disables the
// header size check of the filter itself.
func NewHTTPFilter(maxHeader int) *HTTPFilter {
	return &HTTPFilter{search: newMarkSearch(HeaderTerminator), maxHeader: maxHeader}
}

// Filter implements api.ReceiveFilter.
func (f *HTTPFilter) Filter(data []byte) (api.Package, int, error) {
	end := f.search.scan(data)
	if end < 0 {
		f.buf = append(f.buf, data...)
		if f.maxHeader > 0 && len(f.buf) > f.maxHeader {
			return f.fail(fmt.Errorf("%w: http header over %d bytes", api.ErrPackageTooLarge, f.maxHeader))
		}
		return nil, 0, nil
	}
	f.buf = append(f.buf, data[:end]...)
	req, n, err := ParseHTTPHeader(f.buf)
	f.buf = f.buf[:0]
	if err != nil {
		return f.fail(err)
	}
	rest := len(data) - end
	if n == 0 {
		return req, rest, nil
	}
	f.next = &httpBodyFilter{parent: f, req: req, size: int(n)}
	return nil, rest, nil
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *HTTPFilter) LeftBufferSize() int { return len(f.buf) }

// Reset implements api.ReceiveFilter.
func (f *HTTPFilter) Reset() {
	f.buf = f.buf[:0]
	f.search.reset()
	f.resetBase()
}

// httpBodyFilter collects exactly size body bytes for req.
type httpBodyFilter struct {
	filterBase
	parent *HTTPFilter
	req    *HTTPRequest
	size   int
	body   []byte
}

func (f *httpBodyFilter) Filter(data []byte) (api.Package, int, error) {
	need := f.size - len(f.body)
	if len(data) < need {
		f.body = append(f.body, data...)
		return nil, 0, nil
	}
	f.body = append(f.body, data[:need]...)
	f.req.Body = f.body
	f.parent.Reset()
	f.next = f.parent
	return f.req, len(data) - need, nil
}

func (f *httpBodyFilter) LeftBufferSize() int { return len(f.body) }

func (f *httpBodyFilter) Reset() {
	f.body = nil
	f.resetBase()
}
