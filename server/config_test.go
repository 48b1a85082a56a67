// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package server_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/server"
)

func TestDefaultConfig(t *testing.T) {
	cfg := server.DefaultConfig()
	assert.Equal(t, "tcp", cfg.Mode)
	assert.Equal(t, "sync", cfg.Engine)
	assert.Equal(t, 100, cfg.MaxConnectionNumber)
	assert.Equal(t, "\r\n", cfg.Terminator)
	assert.Equal(t, "\r\n", cfg.ResponseTerminator)
	assert.Equal(t, 5*time.Minute, cfg.IdleSessionTimeout)
	assert.Equal(t, "0.0.0.0:2012", cfg.Addr())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("TEST_SOCK_NAME=fromfile\nTEST_SOCK_MAX_CONNECTION_NUMBER=7\n"), 0o600))
	t.Setenv("TEST_SOCK_PORT", "4000")
	t.Setenv("TEST_SOCK_ENGINE", "async")
	t.Setenv("TEST_SOCK_IDLE_SESSION_TIMEOUT", "30s")
	t.Setenv("TEST_SOCK_IP", "IPv6Any")
	t.Setenv("TEST_SOCK_TERMINATOR", "##")
	t.Setenv("TEST_SOCK_RESPONSE_TERMINATOR", `\n`)
	t.Cleanup(func() {
		os.Unsetenv("TEST_SOCK_NAME")
		os.Unsetenv("TEST_SOCK_MAX_CONNECTION_NUMBER")
	})

	cfg, err := server.LoadConfig("TEST_SOCK_", dotenv, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.Name)
	assert.Equal(t, 7, cfg.MaxConnectionNumber)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "async", cfg.Engine)
	assert.Equal(t, 30*time.Second, cfg.IdleSessionTimeout)
	assert.Equal(t, "[::]:4000", cfg.Addr())
	assert.Equal(t, "##", cfg.Terminator)
	assert.Equal(t, "\n", cfg.ResponseTerminator)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*server.Config){
		"mode":       func(c *server.Config) { c.Mode = "sctp" },
		"engine":     func(c *server.Config) { c.Engine = "threads" },
		"port":       func(c *server.Config) { c.Port = 70000 },
		"ip":         func(c *server.Config) { c.IP = "not-an-ip" },
		"max":        func(c *server.Config) { c.MaxConnectionNumber = 0 },
		"encoding":   func(c *server.Config) { c.TextEncoding = "no-such-charset" },
		"terminator": func(c *server.Config) { c.Terminator = "" },
		"idle": func(c *server.Config) {
			c.ClearIdleSession = true
			c.IdleSessionTimeout = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := server.DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRejectsLegacySecureModes(t *testing.T) {
	for _, mode := range []string{"ssl2", "ssl3"} {
		cfg := server.DefaultConfig()
		cfg.Security = mode
		assert.ErrorIs(t, cfg.Validate(), api.ErrUnsupportedSecureMode, mode)
	}
	cfg := server.DefaultConfig()
	cfg.Security = "tls"
	cfg.Mode = "udp"
	assert.ErrorIs(t, cfg.Validate(), api.ErrUnsupportedSecureMode)
}
