// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

var linkCheckCmd = &cobra.Command{
	Use:   "link_check",
	Short: "Test connection stability without sending anything",
	Long: `Connect and listen for the given duration, logging every frame and
error received. Nothing is written, so only Body's relayed frames arrive.
Useful for debugging connection stability issues.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runLinkCheck,
}

var linkCheckDuration int

func init() {
	rootCmd.AddCommand(linkCheckCmd)
	linkCheckCmd.Flags().IntVar(&linkCheckDuration, "duration", 30, "Test duration in seconds")
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkCheckDuration)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan frameEvent, 100)
	errChan := make(chan error, 1)
	go func() {
		errChan <- readFrames(ctx, conn,
			func(s syncEvent) {
				fmt.Printf("[%s] Synchronized (skipped %d bytes)\n",
					time.Now().Format("15:04:05.000"), s.invalidBytes)
			},
			func(ev frameEvent) { events <- ev })
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(linkCheckDuration) * time.Second)
	framesReceived := 0
	framingErrors := 0

	fmt.Printf("Listening for frames...\n\n")

	results := func(result string) {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Frames received: %d\n", framesReceived)
		fmt.Printf("Framing errors: %d\n", framingErrors)
		fmt.Printf("Result: %s\n", result)
	}

	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	for time.Now().Before(endTime) {
		select {
		case ev := <-events:
			now := time.Now().Format("15:04:05.000")
			if ev.decodeErr != nil {
				framingErrors++
				fmt.Printf("[%s] Framing error: %v\n", now, ev.decodeErr)
				continue
			}
			framesReceived++
			fmt.Print(protocol.FormatFrame(ev.frame))

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			results("FAILED (connection error)")
			os.Exit(1)

		case <-heartbeat.C:
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	results("PASSED (connection stable)")
	return nil
}
