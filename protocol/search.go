// File: protocol/search.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental mark search whose match progress survives across reads.

package protocol

// markSearch finds a byte mark in a stream fed chunk by chunk. The number of
// mark bytes matched at the end of the previous chunk is kept in matched, so a
// mark spanning two reads is recognised. A partial match that is not completed
// falls back along the failure table instead of restarting from zero.
type markSearch struct {
	mark    []byte
	fail    []int
	matched int
}

func newMarkSearch(mark []byte) *markSearch {
	m := append([]byte(nil), mark...)
	fail := make([]int, len(m))
	k := 0
	for i := 1; i < len(m); i++ {
		for k > 0 && m[i] != m[k] {
			k = fail[k-1]
		}
		if m[i] == m[k] {
			k++
		}
		fail[i] = k
	}
	return &markSearch{mark: m, fail: fail}
}

// scan feeds data into the search. It returns the offset in data just past
// the last byte of the mark, or -1 if the mark did not complete in data.
// After a hit the match state is cleared.
func (s *markSearch) scan(data []byte) int {
	m := s.matched
	for i, b := range data {
		for m > 0 && b != s.mark[m] {
			m = s.fail[m-1]
		}
		if b == s.mark[m] {
			m++
		}
		if m == len(s.mark) {
			s.matched = 0
			return i + 1
		}
	}
	s.matched = m
	return -1
}

func (s *markSearch) reset() {
	s.matched = 0
}
