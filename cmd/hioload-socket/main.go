// File: cmd/hioload-socket/main.go
// Package main
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-socket runs a command server configured from the environment.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hioload-socket",
		Short: "Line and WebSocket command server",
		Long: `hioload-socket serves text commands over TCP, UDP or WebSocket.

Configuration is read from SOCKET_* environment variables and an optional
.env file. See "hioload-socket serve --help" for the flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		sendCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
