// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track framing errors, malformed payloads and anomalous values with statistics.

This command validates each frame and detects:
  - Framing errors (START inside a frame, unknown command id, overflow)
  - Length mismatches and non-numeric fields
  - Anomalous values (gear > 4, voltage above full scale, unknown sounds,
    timestamps out of range, state words that do not round trip)
  - Statistics and trends (frame rate, error rate, per-command counts)

By default, only errors are displayed. Use --show-all to display valid frames too.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runMonitorTUI(conn, connInfo, "ERROR DETECTION", showAll)
	}
	return runTextMode(conn, connInfo)
}

// printDecodeError prints a framing error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mFRAMING ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME DISCARDED <<<\n\n")
}

// printValidationErrors prints the validation errors of a frame
func printValidationErrors(f *protocol.Frame, errs []protocol.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (%c) len=%d\n",
		timestamp, f.ID(), byte(f.ID()), len(f.Payload()))

	for i, e := range errs {
		color := "\033[1;33m"
		if e.Type == protocol.ANOMALY_LENGTH_MISMATCH || e.Type == protocol.ANOMALY_NON_NUMERIC {
			color = "\033[1;31m"
		}
		fmt.Printf("  Issue %d: %s%s\033[0m (%s)\n", i+1, color, e.Message, e.Type)
	}
	fmt.Printf("  Payload: %q\n", f.Text())
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// runTextMode prints errors as they happen and statistics periodically
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("Tandem - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats := protocol.NewStatistics()
	events := make(chan frameEvent, 64)
	syncs := make(chan syncEvent, 1)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readFrames(ctx, conn,
			func(s syncEvent) { syncs <- s },
			func(ev frameEvent) {
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			})
	}()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case err := <-readErr:
			fmt.Println()
			fmt.Print(stats.String())
			if connectionClosed(err) {
				fmt.Println("Connection closed")
				return nil
			}
			return err

		case s := <-syncs:
			if s.invalidBytes > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", s.invalidBytes)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}

		case ev := <-events:
			stats.Update(ev.frame, ev.decodeErr, ev.validationErrors)
			switch {
			case ev.decodeErr != nil:
				printDecodeError(ev.decodeErr)
			case len(ev.validationErrors) > 0:
				printValidationErrors(ev.frame, ev.validationErrors)
			case showAll:
				fmt.Print(protocol.FormatFrame(ev.frame))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
