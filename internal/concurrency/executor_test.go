// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package concurrency_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-socket/internal/concurrency"
)

func TestExecutorRunsAllTasks(t *testing.T) {
	e := concurrency.NewExecutor(4, 16, nil)
	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		require.NoError(t, e.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	e.Close()

	assert.Equal(t, int64(1000), n.Load())
	stats := e.Stats()
	assert.Equal(t, int64(1000), stats["completed_tasks"])
	assert.Equal(t, int64(0), stats["pending_tasks"])
}

func TestExecutorSurvivesPanics(t *testing.T) {
	var recovered atomic.Int64
	e := concurrency.NewExecutor(1, 4, func(any) { recovered.Add(1) })

	done := make(chan struct{})
	require.NoError(t, e.Submit(func() { panic("boom") }))
	require.NoError(t, e.Submit(func() { close(done) }))
	<-done
	e.Close()

	assert.Equal(t, int64(1), recovered.Load())
	assert.Equal(t, int64(1), e.Stats()["panics"])
}

func TestExecutorRejectsAfterClose(t *testing.T) {
	e := concurrency.NewExecutor(2, 2, nil)
	e.Close()
	e.Close()
	assert.ErrorIs(t, e.Submit(func() {}), concurrency.ErrExecutorClosed)
}
