// Package session
// Author: momentics <momentics@gmail.com>
//
// Immutable point-in-time copy of the live table used for enumeration.

package session

import (
	"sync/atomic"
	"time"
)

// Snapshot holds the latest copy of the table. Readers never block writers.
type Snapshot[S any] struct {
	cur     atomic.Pointer[[]S]
	updated atomic.Int64
}

// Load returns the current snapshot. The slice must not be modified.
func (s *Snapshot[S]) Load() []S {
	p := s.cur.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Store publishes a new snapshot.
func (s *Snapshot[S]) Store(v []S) {
	s.cur.Store(&v)
	s.updated.Store(time.Now().UnixNano())
}

// Updated returns when the snapshot was last published.
func (s *Snapshot[S]) Updated() time.Time {
	n := s.updated.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
