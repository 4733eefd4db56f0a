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

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Poll Engine telemetry and measure the round trip",
	Long: `Send stats polls to Engine's client port and wait for each reply.

Engine answers a poll with its latest telemetry (battery voltage, current
and temperature). Frames relayed from Body in between are ignored.

This is useful for verifying:
  - the serial or WebSocket link is up
  - WebSocket basic authentication works
  - Engine is decoding client commands

Exit codes:
  0 - All polls answered
  1 - One or more polls failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each poll")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of polls to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Tandem - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per poll\n", pingTimeout)
	fmt.Printf("Count: %d polls\n\n", pingCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies := make(chan protocol.Stats, 1)
	errChan := make(chan error, 1)
	go func() {
		errChan <- readFrames(ctx, conn, func(syncEvent) {}, func(ev frameEvent) {
			if ev.frame == nil || ev.frame.ID() != protocol.CmdStats {
				return
			}
			st, err := protocol.ParseStats(ev.frame.Text())
			if err != nil {
				return
			}
			select {
			case replies <- st:
			default:
			}
		})
	}()

	successCount := 0
	failCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Poll %d/%d: ", i, pingCount)

		// Drop a reply that arrived after the previous timeout
		select {
		case <-replies:
		default:
		}

		startTime := time.Now()
		if _, err := conn.Write(protocol.NewStatsPoll()); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case st := <-replies:
			rtt := time.Since(startTime)
			fmt.Printf("reply %s, rtt=%v\n", protocol.FormatStats(st), rtt.Round(time.Millisecond))
			successCount++

		case err := <-errChan:
			fmt.Printf("READ FAILED: %v\n", err)
			failCount += pingCount - i + 1
			i = pingCount

		case <-time.After(time.Duration(pingTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no reply in %ds)\n", pingTimeout)
			failCount++
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d polls sent, %d replies received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
