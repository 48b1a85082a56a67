// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package server_test

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/control"
	"github.com/momentics/hioload-socket/server"
)

func engineStats(dp *control.DebugProbes, name string) map[string]any {
	stats, _ := dp.DumpState()["server."+name+".engine"].(map[string]any)
	return stats
}

func TestStopDropsSessionsInTLSHandshake(t *testing.T) {
	cfg := testConfig()
	cfg.Name = "handshake"
	cfg.Security = "tls"
	var started atomic.Int32
	srv := startServer(t, cfg,
		server.WithCertificateProvider(server.StaticCertificate(selfSigned(t))),
		server.WithHooks(server.Hooks{SessionStarted: func(api.Session) { started.Add(1) }}),
	)
	dp := control.NewDebugProbes()
	srv.Probes(dp)

	raw, err := net.DialTimeout("tcp", srv.Addr().String(), waitFor)
	require.NoError(t, err)
	defer raw.Close()
	require.Eventually(t, func() bool { return engineStats(dp, cfg.Name)["handshaking"] == 1 },
		waitFor, 5*time.Millisecond)

	require.NoError(t, srv.Stop())

	tc := tls.Client(raw, &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12})
	require.NoError(t, tc.SetDeadline(time.Now().Add(waitFor)))
	if err := tc.Handshake(); err == nil {
		_, _ = tc.Write([]byte("ECHO afterstop##"))
		_, err = tc.Read(make([]byte, 32))
		assert.Error(t, err, "stopped server served a command")
	}
	assert.Equal(t, int32(0), started.Load())
	assert.Equal(t, 0, srv.SessionCount())
}

func TestConnectionFiltersRefusePeers(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.Name = "filtered"
	rec := newCloseRecorder()
	var allow atomic.Bool
	var seen atomic.Value
	srv := startServer(t, cfg,
		server.WithMetrics(control.NewMetrics(reg)),
		server.WithHooks(server.Hooks{
			SessionStarted: func(s api.Session) { _ = s.SendString("WELCOME") },
			SessionClosed:  rec.hook,
		}),
		server.WithConnectionFilters(
			func(remote net.Addr) bool {
				seen.Store(remote.String())
				return true
			},
			func(net.Addr) bool { return allow.Load() },
		),
	)

	refused := dialLine(t, srv)
	require.NoError(t, refused.SetReadDeadline(time.Now().Add(waitFor)))
	_, err := refused.r.ReadString('\n')
	assert.Error(t, err, "refused peer must be closed before the welcome")
	assert.Equal(t, refused.LocalAddr().String(), seen.Load())
	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "hioload_socket_sessions_rejected_total")
		return err == nil && n == 1
	}, waitFor, 10*time.Millisecond)

	allow.Store(true)
	c := dialLine(t, srv)
	assert.Equal(t, "WELCOME\r\n", c.readLine(t))
	c.send(t, "ECHO admitted##")
	assert.Equal(t, "admitted\r\n", c.readLine(t))
	assert.Equal(t, 0, rec.count(), "refused sessions produce no close event")
}

func TestConcurrentCloseFiresOnce(t *testing.T) {
	for _, engine := range []string{"sync", "async"} {
		t.Run(engine, func(t *testing.T) {
			cfg := testConfig()
			cfg.Engine = engine
			cfg.MaxConnectionNumber = 1
			rec := newCloseRecorder()
			srv := startServer(t, cfg, server.WithHooks(server.Hooks{SessionClosed: rec.hook}))

			c := dialLine(t, srv)
			c.send(t, "ECHO x##")
			c.readLine(t)
			require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, waitFor, 5*time.Millisecond)
			as := srv.GetAllSessions()[0]

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					as.Close(api.CloseServerClosing)
				}()
			}
			close(start)
			_ = c.Close()
			wg.Wait()

			rec.next(t)
			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, 1, rec.count())

			next := dialLine(t, srv)
			next.send(t, "ECHO next##")
			assert.Equal(t, "next\r\n", next.readLine(t), "the connection slot was released")
		})
	}
}

func TestConfiguredTerminatorFramesRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Terminator = "##"
	srv, err := server.New(cfg, server.WithCommands(map[string]api.CommandHandler{"ECHO": api.CommandFunc(echo)}))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()

	c := dialLine(t, srv)
	c.send(t, "ECHO foo##ECHO bar##")
	assert.Equal(t, "foo\r\n", c.readLine(t))
	assert.Equal(t, "bar\r\n", c.readLine(t))
}

func TestProbesReportEngineState(t *testing.T) {
	cfg := testConfig()
	cfg.Name = "probed"
	cfg.Engine = "async"
	cfg.MaxConnectionNumber = 4
	srv := startServer(t, cfg)
	dp := control.NewDebugProbes()
	srv.Probes(dp)

	c := dialLine(t, srv)
	c.send(t, "ECHO x##")
	c.readLine(t)

	stats := engineStats(dp, cfg.Name)
	require.NotNil(t, stats)
	assert.Equal(t, "async", stats["mode"])
	assert.Equal(t, 4, stats["slots_total"])
	assert.Equal(t, 3, stats["slots_free"])
	require.Eventually(t, func() bool {
		exec, ok := engineStats(dp, cfg.Name)["executor"].(map[string]int64)
		return ok && exec["completed_tasks"] >= 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, dp.DumpState()["server.probed.send_queue"])
}
