// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"flag"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Settings and relay configuration
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Body/Engine controller core and link tooling",
	Long: `Tandem - runs and inspects the two-controller vehicle electronics core.

Body reads the switches and drives the lights, Engine senses gears and board
telemetry. The controllers talk over a byte-framed command link; Engine
relays Body's frames to external clients over serial or WebSocket.

Connection modes for the client commands:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the TANDEM_PASSWORD
environment variable, or prompted interactively if not set.

Logging uses glog; pass -v=1 to trace every trigger and -v=2 for per-frame
detail, and -logtostderr to see it on the terminal.`,
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog only reads its flags once the Go flag set counts as parsed
		return flag.CommandLine.Parse(nil)
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tandem.yaml", "Settings and relay configuration file")

	// glog registers -v, -logtostderr, -vmodule... on the Go flag set
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// Execute runs the root command
func Execute() error {
	defer glog.Flush()
	return rootCmd.Execute()
}
