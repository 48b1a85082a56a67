// File: server/config.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/protocol"
)

// DefaultEnvPrefix prefixes every configuration variable.
const DefaultEnvPrefix = "SOCKET_"

// Config holds the listening endpoint and session parameters of one server.
type Config struct {
	Name   string `env:"NAME" envDefault:"socket"`
	Mode   string `env:"MODE" envDefault:"tcp"`    // tcp | udp
	Engine string `env:"ENGINE" envDefault:"sync"` // sync | async
	// IP accepts "Any", "IPv6Any" or a literal address.
	IP   string `env:"IP" envDefault:"Any"`
	Port int    `env:"PORT" envDefault:"2012"`

	MaxConnectionNumber int           `env:"MAX_CONNECTION_NUMBER" envDefault:"100"`
	ReceiveBufferSize   int           `env:"RECEIVE_BUFFER_SIZE" envDefault:"4096"`
	SendBufferSize      int           `env:"SEND_BUFFER_SIZE" envDefault:"2048"`
	ReadTimeout         time.Duration `env:"READ_TIMEOUT" envDefault:"0s"`
	SendTimeout         time.Duration `env:"SEND_TIMEOUT" envDefault:"0s"`
	KeepAliveTime       time.Duration `env:"KEEP_ALIVE_TIME" envDefault:"10m"`
	KeepAliveInterval   time.Duration `env:"KEEP_ALIVE_INTERVAL" envDefault:"1m"`
	NoDelay             bool          `env:"NO_DELAY" envDefault:"true"`
	DontLinger          bool          `env:"DONT_LINGER" envDefault:"false"`
	ListenBacklog       int           `env:"LISTEN_BACKLOG" envDefault:"100"`
	SendingQueueSize    int           `env:"SENDING_QUEUE_SIZE" envDefault:"16"`
	MaxPackageLength    int           `env:"MAX_PACKAGE_LENGTH" envDefault:"1024"`
	Workers             int           `env:"WORKERS" envDefault:"0"`

	Security           string `env:"SECURITY" envDefault:"none"`
	CertificateFile    string `env:"CERTIFICATE_FILE"`
	CertificateKeyFile string `env:"CERTIFICATE_KEY_FILE"`

	ClearIdleSession         bool          `env:"CLEAR_IDLE_SESSION" envDefault:"false"`
	IdleSessionTimeout       time.Duration `env:"IDLE_SESSION_TIMEOUT" envDefault:"5m"`
	ClearIdleSessionInterval time.Duration `env:"CLEAR_IDLE_SESSION_INTERVAL" envDefault:"2m"`
	DisableSessionSnapshot   bool          `env:"DISABLE_SESSION_SNAPSHOT" envDefault:"false"`
	SessionSnapshotInterval  time.Duration `env:"SESSION_SNAPSHOT_INTERVAL" envDefault:"5s"`

	TextEncoding       string        `env:"TEXT_ENCODING" envDefault:"utf-8"`
	Terminator         string        `env:"TERMINATOR" envDefault:"\r\n"` // request lines of the default filter
	ResponseTerminator string        `env:"RESPONSE_TERMINATOR" envDefault:"\r\n"`
	LogCommand         bool          `env:"LOG_COMMAND" envDefault:"false"`
	StopTimeout        time.Duration `env:"STOP_TIMEOUT" envDefault:"5s"`
}

// DefaultConfig returns the configuration produced by an empty environment.
func DefaultConfig() *Config {
	cfg := &Config{}
	// Parsing an empty environment only applies envDefault values.
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("server: default config: %v", err))
	}
	cfg.unescape()
	return cfg
}

// LoadConfig reads dotenv files (missing files are ignored) and parses the
// process environment using prefix. An empty prefix means DefaultEnvPrefix.
func LoadConfig(prefix string, dotenv ...string) (*Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.unescape()
	return cfg, cfg.Validate()
}

// unescape turns escape sequences such as \r\n in the terminators into the
// bytes they name. Values that do not unquote are kept verbatim.
func (c *Config) unescape() {
	for _, v := range []*string{&c.Terminator, &c.ResponseTerminator} {
		if t, err := strconv.Unquote(`"` + *v + `"`); err == nil {
			*v = t
		}
	}
}

// Validate reports configuration errors that must fail Start.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Mode) {
	case "tcp", "udp":
	default:
		errs = append(errs, fmt.Errorf("%w: mode %q", api.ErrInvalidArgument, c.Mode))
	}
	switch strings.ToLower(c.Engine) {
	case "sync", "async":
	default:
		errs = append(errs, fmt.Errorf("%w: engine %q", api.ErrInvalidArgument, c.Engine))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: port %d", api.ErrInvalidArgument, c.Port))
	}
	if _, err := c.listenIP(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxConnectionNumber <= 0 {
		errs = append(errs, fmt.Errorf("%w: max connection number %d", api.ErrInvalidArgument, c.MaxConnectionNumber))
	}
	if c.ClearIdleSession && (c.IdleSessionTimeout <= 0 || c.ClearIdleSessionInterval <= 0) {
		errs = append(errs, fmt.Errorf("%w: idle session timeout and interval must be positive", api.ErrInvalidArgument))
	}
	if !c.DisableSessionSnapshot && c.SessionSnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: session snapshot interval must be positive", api.ErrInvalidArgument))
	}
	if c.Terminator == "" {
		errs = append(errs, fmt.Errorf("%w: empty terminator", api.ErrInvalidArgument))
	}
	if _, err := protocol.LookupEncoding(c.TextEncoding); err != nil {
		errs = append(errs, err)
	}
	mode, err := api.ParseSecureMode(c.Security)
	switch {
	case err != nil:
		errs = append(errs, err)
	case mode == api.SecureSSL2 || mode == api.SecureSSL3:
		errs = append(errs, fmt.Errorf("%w: %s", api.ErrUnsupportedSecureMode, mode))
	case mode == api.SecureTLS && strings.EqualFold(c.Mode, "udp"):
		errs = append(errs, fmt.Errorf("%w: tls over udp", api.ErrUnsupportedSecureMode))
	}
	return errors.Join(errs...)
}

// Addr returns the host:port the server binds.
func (c *Config) Addr() string {
	ip, err := c.listenIP()
	if err != nil {
		ip = ""
	}
	return net.JoinHostPort(ip, strconv.Itoa(c.Port))
}

func (c *Config) listenIP() (string, error) {
	switch strings.ToLower(strings.TrimSpace(c.IP)) {
	case "", "any":
		return "0.0.0.0", nil
	case "ipv6any":
		return "::", nil
	}
	if net.ParseIP(c.IP) == nil {
		return "", fmt.Errorf("%w: ip %q", api.ErrInvalidArgument, c.IP)
	}
	return c.IP, nil
}

func (c *Config) secureMode() api.SecureMode {
	m, _ := api.ParseSecureMode(c.Security)
	return m
}
