package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/control"
	"github.com/momentics/hioload-socket/internal/logger"
	"github.com/momentics/hioload-socket/protocol"
	"github.com/momentics/hioload-socket/protocol/websocket"
	"github.com/momentics/hioload-socket/server"
)

type serveOptions struct {
	envFiles   []string
	prefix     string
	statusAddr string
	websocket  bool
	udpKeyed   bool
	allow      []string
	trace      bool
	logLevel   string
	logFormat  string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command server",
		Long: `Run a server answering ECHO, ADD and QUIT.

Examples:
  SOCKET_PORT=2012 hioload-socket serve
  SOCKET_ENGINE=async hioload-socket serve --websocket
  SOCKET_MODE=udp hioload-socket serve --udp-session-key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment")
	cmd.Flags().StringVar(&opts.prefix, "prefix", server.DefaultEnvPrefix, "environment variable prefix")
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", ":9090", "metrics and health listen address, empty to disable")
	cmd.Flags().BoolVar(&opts.websocket, "websocket", false, "speak WebSocket instead of terminated lines")
	cmd.Flags().BoolVar(&opts.udpKeyed, "udp-session-key", false, "key UDP sessions by the datagram session key")
	cmd.Flags().StringSliceVar(&opts.allow, "allow", nil, "admit only peers inside these CIDRs")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "wrap every command in an OpenTelemetry span")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "text or json")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	log := logger.New(os.Stderr, opts.logLevel, opts.logFormat)

	cfg, err := server.LoadConfig(opts.prefix, opts.envFiles...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srvOpts := []server.Option{
		server.WithLogger(log),
		server.WithMetrics(control.NewMetrics(reg)),
		server.WithCommands(demoCommands()),
		server.WithHooks(server.Hooks{
			SessionStarted: func(s api.Session) {
				log.Debug("client connected", logger.SessionID(s.IdentityKey()), logger.Remote(s.RemoteAddr()))
			},
		}),
	}
	if len(opts.allow) > 0 {
		allow, err := allowCIDRs(opts.allow)
		if err != nil {
			return err
		}
		srvOpts = append(srvOpts, server.WithConnectionFilters(allow))
	}
	if opts.trace {
		srvOpts = append(srvOpts, server.WithCommandFilters(server.NewTracingFilter(cfg.Name)))
	}
	switch {
	case opts.websocket:
		enc, err := protocol.LookupEncoding(cfg.TextEncoding)
		if err != nil {
			return err
		}
		srvOpts = append(srvOpts,
			server.WithFilterFactory(func() api.ReceiveFilter {
				return websocket.NewReceiveFilter(websocket.Options{Encoding: enc, MaxMessageSize: cfg.MaxPackageLength})
			}),
			server.WithCommandSetup(func(d *server.Dispatcher) { websocket.Install(d) }),
		)
	case opts.udpKeyed:
		srvOpts = append(srvOpts,
			server.WithFilterFactory(func() api.ReceiveFilter { return protocol.NewUDPRequestFilter() }),
			server.WithUDPSessionKey(protocol.UDPKeyExtractor(protocol.DefaultUDPNameSize, protocol.DefaultUDPKeySize)),
		)
	}

	srv, err := server.New(cfg, srvOpts...)
	if err != nil {
		return err
	}
	if err := srv.Start(context.Background()); err != nil {
		return err
	}

	var status *http.Server
	if opts.statusAddr != "" {
		probes := control.NewDebugProbes()
		srv.Probes(probes)
		status = &http.Server{
			Addr: opts.statusAddr,
			Handler: control.NewStatusHandler(control.StatusOptions{
				Gatherer: reg,
				Probes:   probes,
				Health:   srv.Health,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := status.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status endpoint failed", logger.Error(err))
			}
		}()
		log.Info("status endpoint listening", slog.String("addr", opts.statusAddr))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")

	if status != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
		defer cancel()
		_ = status.Shutdown(shutdownCtx)
	}
	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// allowCIDRs builds a connection filter admitting peers inside any of cidrs.
func allowCIDRs(cidrs []string) (func(net.Addr) bool, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("allow %q: %w", c, err)
		}
		nets = append(nets, n)
	}
	return func(remote net.Addr) bool {
		var ip net.IP
		switch a := remote.(type) {
		case *net.TCPAddr:
			ip = a.IP
		case *net.UDPAddr:
			ip = a.IP
		default:
			return false
		}
		for _, n := range nets {
			if n.Contains(ip) {
				return true
			}
		}
		return false
	}, nil
}
