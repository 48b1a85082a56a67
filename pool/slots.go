// File: pool/slots.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed set of pre-allocated receive slots handed to asynchronous sessions.

package pool

import (
	"sync/atomic"
)

// Slot is a reusable receive buffer owned by one session at a time.
type Slot struct {
	Index int
	Buf   []byte
	inUse atomic.Bool
}

// SlotPool hands out at most Capacity slots. Slots are allocated once.
type SlotPool struct {
	free   chan *Slot
	slots  []*Slot
	closed atomic.Bool
}

// NewSlotPool pre-allocates capacity slots of bufSize bytes each.
func NewSlotPool(capacity, bufSize int) *SlotPool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &SlotPool{
		free:  make(chan *Slot, capacity),
		slots: make([]*Slot, capacity),
	}
	for i := range p.slots {
		s := &Slot{Index: i, Buf: make([]byte, bufSize)}
		p.slots[i] = s
		p.free <- s
	}
	return p
}

// TryGet returns a free slot without blocking. It fails once the pool is
// closed.
func (p *SlotPool) TryGet() (*Slot, bool) {
	if p.closed.Load() {
		return nil, false
	}
	select {
	case s := <-p.free:
		s.inUse.Store(true)
		return s, true
	default:
		return nil, false
	}
}

// Put returns s to the pool. Returning a slot twice has no effect.
func (p *SlotPool) Put(s *Slot) {
	if s == nil || !s.inUse.CompareAndSwap(true, false) {
		return
	}
	p.free <- s
}

// Available reports the number of free slots.
func (p *SlotPool) Available() int { return len(p.free) }

// Capacity reports the total number of slots.
func (p *SlotPool) Capacity() int { return len(p.slots) }

// Close stops handing out slots. Slots already handed out may still be Put.
func (p *SlotPool) Close() {
	p.closed.Store(true)
}
