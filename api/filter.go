// File: api/filter.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// FilterState reports whether a receive filter is still usable.
type FilterState int

const (
	FilterNormal FilterState = iota
	FilterError
)

func (s FilterState) String() string {
	if s == FilterError {
		return "error"
	}
	return "normal"
}

// ReceiveFilter turns a stream of byte chunks into packages.
//
// Filter consumes data and returns at most one package together with the
// number of trailing bytes of data it did not consume. Callers re-invoke
// Filter with data[len(data)-rest:] until rest is zero. Bytes of an
// incomplete package are copied and retained by the filter; data is never
// referenced after Filter returns.
//
// A non-nil error is fatal for the session and also moves the filter into
// FilterError.
type ReceiveFilter interface {
	Filter(data []byte) (pkg Package, rest int, err error)
	// LeftBufferSize returns the number of retained bytes of the package in progress.
	LeftBufferSize() int
	// Next returns the filter that must replace this one, or nil.
	Next() ReceiveFilter
	State() FilterState
	Reset()
}

// FilterFactory creates one receive filter per session.
type FilterFactory func() ReceiveFilter
