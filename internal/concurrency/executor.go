// File: internal/concurrency/executor.go
// Package concurrency implements the shared worker pool running asynchronous
// receive completions.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = errors.New("executor is closed")

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a fixed pool of worker goroutines fed by one queue.
type Executor struct {
	queue   chan TaskFunc
	closeCh chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup
	workers int
	onPanic func(v any)

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

// NewExecutor starts numWorkers workers. If numWorkers <= 0, defaults to
// runtime.NumCPU(). onPanic, when set, receives values recovered from tasks.
func NewExecutor(numWorkers, queueSize int, onPanic func(v any)) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 4
	}
	e := &Executor{
		queue:   make(chan TaskFunc, queueSize),
		closeCh: make(chan struct{}),
		workers: numWorkers,
		onPanic: onPanic,
	}
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.run()
	}
	return e
}

// Submit enqueues a task, blocking while the queue is full.
func (e *Executor) Submit(task TaskFunc) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	select {
	case e.queue <- task:
		e.totalTasks.Add(1)
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	}
}

// Close stops the workers after the queued tasks ran and waits for them.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closeCh)
	}
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.workers),
	}
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.queue:
			e.execute(task)
		case <-e.closeCh:
			for {
				select {
				case task := <-e.queue:
					e.execute(task)
				default:
					return
				}
			}
		}
	}
}

// execute runs the task, recovering from panics to keep the worker alive.
func (e *Executor) execute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			if e.onPanic != nil {
				e.onPanic(fmt.Errorf("executor task panic: %v", r))
			}
		}
		e.completedTasks.Add(1)
	}()
	task()
}
