// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display frames in human-readable format",
	Long: `Continuously decode and display frames as they arrive.

Each frame is shown with its arrival time, command and decoded payload:
state words with their timestamp, stats and data telemetry, GPS fixes and
sound codes. Framing errors are printed once the stream is synchronized.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Tandem - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	err = readFrames(ctx, conn,
		func(s syncEvent) {
			if s.invalidBytes > 0 {
				fmt.Printf("[SYNC] skipped %d bytes\n\n", s.invalidBytes)
			}
		},
		func(ev frameEvent) {
			if ev.decodeErr != nil {
				fmt.Printf("[ERROR] %v\n", ev.decodeErr)
				return
			}
			fmt.Print(protocol.FormatFrame(ev.frame))
		})
	if connectionClosed(err) {
		fmt.Println("Connection closed")
		return nil
	}
	return err
}
