// File: protocol/filter.go
// Package protocol implements the receive filters that frame raw socket bytes
// into packages.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"fmt"

	"golang.org/x/text/encoding"

	"github.com/momentics/hioload-socket/api"
)

// filterBase carries the state flag and next-filter reference shared by all filters.
type filterBase struct {
	state api.FilterState
	next  api.ReceiveFilter
}

// State returns the current filter state.
func (f *filterBase) State() api.FilterState { return f.state }

// Next returns the filter that should replace this one.
func (f *filterBase) Next() api.ReceiveFilter { return f.next }

func (f *filterBase) fail(err error) (api.Package, int, error) {
	f.state = api.FilterError
	return nil, 0, err
}

func (f *filterBase) resetBase() {
	f.state = api.FilterNormal
	f.next = nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", api.ErrMalformedPackage, fmt.Sprintf(format, args...))
}

// TerminatorFilter frames packages ending with a fixed terminator. Text is
// decoded by the resolver only once the terminator has been seen.
type TerminatorFilter struct {
	filterBase
	search  *markSearch
	buf     []byte
	resolve PackageResolver
}

// NewTerminatorFilter creates a filter for terminator-delimited frames.
func NewTerminatorFilter(terminator []byte, resolve PackageResolver) *TerminatorFilter {
	if len(terminator) == 0 {
		panic("protocol: empty terminator")
	}
	return &TerminatorFilter{search: newMarkSearch(terminator), resolve: resolve}
}

// NewCommandLineFilter frames text command lines with the default parser.
func NewCommandLineFilter(terminator []byte, enc encoding.Encoding) *TerminatorFilter {
	return NewTerminatorFilter(terminator, TextResolver(enc, DefaultParser))
}

// Filter implements api.ReceiveFilter.
func (f *TerminatorFilter) Filter(data []byte) (api.Package, int, error) {
	end := f.search.scan(data)
	if end < 0 {
		f.buf = append(f.buf, data...)
		return nil, 0, nil
	}
	f.buf = append(f.buf, data[:end]...)
	frame := f.buf[:len(f.buf)-len(f.search.mark)]
	pkg, err := f.resolve(frame)
	f.buf = f.buf[:0]
	if err != nil {
		return f.fail(err)
	}
	return pkg, len(data) - end, nil
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *TerminatorFilter) LeftBufferSize() int { return len(f.buf) }

// Reset implements api.ReceiveFilter.
func (f *TerminatorFilter) Reset() {
	f.buf = f.buf[:0]
	f.search.reset()
	f.resetBase()
}

// BeginEndMarkFilter frames packages enclosed by a begin and an end mark.
// Bytes before the begin mark are discarded. The frame handed to the resolver
// includes both marks.
type BeginEndMarkFilter struct {
	filterBase
	begin   *markSearch
	end     *markSearch
	found   bool
	buf     []byte
	resolve PackageResolver
}

// NewBeginEndMarkFilter creates a begin/end mark filter.
func NewBeginEndMarkFilter(begin, end []byte, resolve PackageResolver) *BeginEndMarkFilter {
	if len(begin) == 0 || len(end) == 0 {
		panic("protocol: empty begin or end mark")
	}
	return &BeginEndMarkFilter{
		begin:   newMarkSearch(begin),
		end:     newMarkSearch(end),
		resolve: resolve,
	}
}

// Filter implements api.ReceiveFilter.
func (f *BeginEndMarkFilter) Filter(data []byte) (api.Package, int, error) {
	if !f.found {
		n := f.begin.scan(data)
		if n < 0 {
			return nil, 0, nil
		}
		f.found = true
		f.buf = append(f.buf[:0], f.begin.mark...)
		data = data[n:]
	}

	n := f.end.scan(data)
	if n < 0 {
		f.buf = append(f.buf, data...)
		return nil, 0, nil
	}
	f.buf = append(f.buf, data[:n]...)
	pkg, err := f.resolve(f.buf)
	f.Reset()
	if err != nil {
		return f.fail(err)
	}
	return pkg, len(data) - n, nil
}

// LeftBufferSize implements api.ReceiveFilter.
func (f *BeginEndMarkFilter) LeftBufferSize() int { return len(f.buf) }

// Reset implements api.ReceiveFilter.
func (f *BeginEndMarkFilter) Reset() {
	f.found = false
	f.buf = f.buf[:0]
	f.begin.reset()
	f.end.reset()
	f.resetBase()
}
