// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

var sendWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <command> [args]",
	Short: "Send one client command to Engine",
	Long: `Encode and send a single client command.

Commands:
  stats              poll Engine telemetry (the reply is printed)
  sound <code>       play a sound: 0-5, beep, off, random
  sense <word>       set Body's dynamic senses: a number or names (brake,light)
  msg <text>         free text

With --wait, frames arriving within the given time are printed; a stats poll
waits for its reply.`,
	Example: `  tandem send --port /dev/ttyUSB0 sound beep
  tandem send --url ws://bike.local/ws sense ri,light
  tandem send --port /dev/ttyUSB0 stats`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "Print frames received for this long after sending")
}

func runSend(cmd *cobra.Command, args []string) error {
	frame, err := buildFrame(args)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	fmt.Printf("Sent %q to %s\n", frame, connInfo)

	wait := sendWait
	poll := frame[1] == byte(protocol.CmdStats)
	if poll && wait == 0 {
		wait = 2 * time.Second
	}
	if wait == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	gotReply := false
	err = readFrames(ctx, conn, func(syncEvent) {}, func(ev frameEvent) {
		if ev.frame == nil {
			return
		}
		fmt.Print(protocol.FormatFrame(ev.frame))
		if poll && ev.frame.ID() == protocol.CmdStats && len(ev.frame.Payload()) > 0 {
			gotReply = true
			cancel()
		}
	})
	if err != nil && !connectionClosed(err) {
		return err
	}
	if poll && !gotReply {
		return errors.New("no stats reply")
	}
	return nil
}
