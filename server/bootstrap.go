// File: server/bootstrap.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-socket/internal/logger"
)

// Bootstrap starts and stops several independent servers together. A server
// that fails to start does not prevent the others from running.
type Bootstrap struct {
	servers []*Server
}

// NewBootstrap groups servers.
func NewBootstrap(servers ...*Server) *Bootstrap {
	return &Bootstrap{servers: servers}
}

// Servers returns the managed servers.
func (b *Bootstrap) Servers() []*Server { return b.servers }

// Start starts every server concurrently and returns the joined start
// errors. Servers that started keep running.
func (b *Bootstrap) Start(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range b.servers {
		g.Go(func() error {
			if err := s.Start(ctx); err != nil {
				s.log.Error("bootstrap: server failed to start", logger.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Stop stops every running server concurrently.
func (b *Bootstrap) Stop() {
	var g errgroup.Group
	for _, s := range b.servers {
		if !s.Running() {
			continue
		}
		g.Go(func() error {
			_ = s.Stop()
			return nil
		})
	}
	_ = g.Wait()
}

// Running returns the number of running servers.
func (b *Bootstrap) Running() int {
	n := 0
	for _, s := range b.servers {
		if s.Running() {
			n++
		}
	}
	return n
}
