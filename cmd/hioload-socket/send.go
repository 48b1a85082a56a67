package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-socket/client"
)

func sendCmd() *cobra.Command {
	var (
		addr     string
		udp      bool
		useTLS   bool
		insecure bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send COMMAND [ARGS...]",
		Short: "Send one command and print the reply",
		Example: `  hioload-socket send ADD 1 2 3
  hioload-socket send --udp ECHO ping`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if udp {
				c, err := client.DialDatagram(addr, "")
				if err != nil {
					return err
				}
				defer c.Close()
				reply, err := c.Do(ctx, args[0], []byte(strings.Join(args[1:], " ")))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(reply))
				return nil
			}

			cfg := client.Config{Addr: addr}
			if useTLS {
				cfg.TLS = &tls.Config{InsecureSkipVerify: insecure, MinVersion: tls.VersionTLS12}
			}
			c, err := client.Dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			reply, err := c.Do(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:2012", "server address")
	cmd.Flags().BoolVar(&udp, "udp", false, "use the session-keyed UDP layout")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "dial with TLS")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "overall deadline")

	return cmd
}
