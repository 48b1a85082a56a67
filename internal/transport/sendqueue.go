// File: internal/transport/sendqueue.go
// Package transport
// Author: momentics <momentics@gmail.com>

package transport

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/logger"
)

// spinInterval is the pause between attempts while a sender waits for room.
const spinInterval = 200 * time.Microsecond

// sendQueue is the bounded outbound queue of an async session. A single
// drain goroutine runs while the queue is non-empty.
type sendQueue struct {
	s        *streamSession
	mu       sync.Mutex
	q        *queue.Queue
	limit    int
	draining bool
}

func newSendQueue(s *streamSession, limit int) *sendQueue {
	return &sendQueue{s: s, q: queue.New(), limit: limit}
}

// enqueue copies data into the queue, spinning while it is full according to
// the send timeout policy.
func (sq *sendQueue) enqueue(data []byte) error {
	timeout := sq.s.opts.SendTimeout
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		sq.mu.Lock()
		if sq.q.Length() < sq.limit {
			sq.q.Add(append([]byte(nil), data...))
			if !sq.draining {
				sq.draining = true
				go sq.drain()
			}
			sq.mu.Unlock()
			return nil
		}
		sq.mu.Unlock()

		switch {
		case sq.s.closed.Load():
			return nil
		case timeout < 0:
			return api.ErrSendQueueFull
		case timeout > 0 && time.Now().After(deadline):
			return api.ErrSendTimeout
		}
		time.Sleep(spinInterval)
	}
}

func (sq *sendQueue) drain() {
	for {
		sq.mu.Lock()
		if sq.q.Length() == 0 {
			sq.draining = false
			sq.mu.Unlock()
			return
		}
		buf := sq.q.Remove().([]byte)
		sq.mu.Unlock()

		sq.s.writeMu.Lock()
		_, err := sq.s.conn.Write(buf)
		sq.s.writeMu.Unlock()
		if err != nil {
			sq.s.log.Debug("queued send failed", logger.Error(err))
			sq.discard()
			sq.mu.Lock()
			sq.draining = false
			sq.mu.Unlock()
			go sq.s.Close(api.CloseSocketError)
			return
		}
	}
}

// flush waits for queued data to be written or the deadline to pass.
func (sq *sendQueue) flush(deadline time.Time) {
	for time.Now().Before(deadline) {
		sq.mu.Lock()
		idle := !sq.draining && sq.q.Length() == 0
		sq.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(spinInterval)
	}
}

func (sq *sendQueue) discard() {
	sq.mu.Lock()
	for sq.q.Length() > 0 {
		sq.q.Remove()
	}
	sq.mu.Unlock()
}

// Len reports the number of queued buffers.
func (sq *sendQueue) Len() int {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.q.Length()
}
