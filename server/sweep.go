// File: server/sweep.go
// Package server
// Author: momentics <momentics@gmail.com>

package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/momentics/hioload-socket/api"
)

func (s *Server) sweepLoop(ctx context.Context) {
	defer s.loops.Done()
	t := time.NewTicker(s.cfg.ClearIdleSessionInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.loops.Add(1)
			go func() {
				defer s.loops.Done()
				s.sweepIdle(now)
			}()
		}
	}
}

// sweepIdle closes, in parallel, every session of the snapshot idle since
// now - IdleSessionTimeout. A tick is skipped while the previous sweep runs.
func (s *Server) sweepIdle(now time.Time) int {
	if !s.sweepMu.TryLock() {
		s.log.Debug("idle sweep skipped: previous sweep still running")
		return 0
	}
	defer s.sweepMu.Unlock()

	started := time.Now()
	cutoff := now.Add(-s.cfg.IdleSessionTimeout)
	var idle []*AppSession
	for _, as := range s.view() {
		if as.Connected() && !as.LastActiveTime().After(cutoff) {
			idle = append(idle, as)
		}
	}
	if len(idle) > 0 {
		s.closeAll(idle, api.CloseTimeOut)
		s.log.Info("idle sessions closed", slog.Int("count", len(idle)))
	}
	s.metrics.Sweep(s.cfg.Name, time.Since(started), len(idle))
	return len(idle)
}
