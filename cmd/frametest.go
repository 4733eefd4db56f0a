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
	frameTestTimeout int
	frameTestPoll    bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid frame on the connection until timeout.

Bytes before the first complete frame are skipped. With --poll, a stats
poll is sent first so an idle Engine answers even when Body is silent.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestPoll, "poll", false, "Send a stats poll before waiting")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Tandem - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)

	if frameTestPoll {
		if _, err := conn.Write(protocol.NewStatsPoll()); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Sent stats poll\n")
	}
	fmt.Printf("Waiting for valid frame...\n\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frameChan := make(chan *protocol.Frame, 1)
	errChan := make(chan error, 1)
	skipped := 0

	go func() {
		err := readFrames(ctx, conn,
			func(s syncEvent) { skipped = s.invalidBytes },
			func(ev frameEvent) {
				if ev.frame != nil && len(ev.validationErrors) == 0 {
					select {
					case frameChan <- ev.frame:
					default:
					}
					cancel()
				}
			})
		if err != nil {
			errChan <- err
		}
	}()

	select {
	case f := <-frameChan:
		if skipped > 0 {
			fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Print(protocol.FormatFrame(f))
		fmt.Printf("  Wire size: %d bytes\n", f.WireSize())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
