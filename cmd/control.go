// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

// Reconnect backoff bounds
const (
	reconnectMin = 1 * time.Second
	reconnectMax = 30 * time.Second
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for sending client commands",
	Long: `Send client commands to Engine from an interactive terminal UI.

The action list plays sounds, polls Engine telemetry and toggles Body's
dynamic senses (each toggle sends the whole dynamic sense word). The command
line below accepts the same syntax as the send command, e.g. "sound 253" or
"sense ri,light".

Live state and telemetry are shown next to the actions. The connection is
re-established with exponential backoff when lost.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// ErrNotConnected is returned when sending while the connection is down
var ErrNotConnected = errors.New("not connected")

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	writeMu  sync.Mutex
	p        *tea.Program
	done     chan struct{}
	open     func() (Connection, string, error)
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// send writes one frame
func (cm *connectionManager) send(frame []byte) error {
	conn := cm.getConn()
	if conn == nil {
		return ErrNotConnected
	}
	cm.writeMu.Lock()
	defer cm.writeMu.Unlock()
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

func runControl(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	cm := &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		done:     make(chan struct{}),
		open:     OpenConnection,
	}

	m := initialControlModel(cm, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.readerLoop()

	// Fill the telemetry panel without waiting for Body's next frame
	cm.send(protocol.NewStatsPoll())

	_, err = p.Run()
	close(cm.done)
	if c := cm.getConn(); c != nil {
		c.Close()
	}
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// readerLoop reads frames and reconnects until the TUI exits
func (cm *connectionManager) readerLoop() {
	for {
		select {
		case <-cm.done:
			return
		default:
		}

		lost, err := cm.readFromConnection()
		if !lost {
			return
		}
		if err == nil {
			err = ErrConnectionClosed
		}
		cm.p.Send(connectionLostMsg{err: err})
		if !cm.reconnect() {
			return
		}
	}
}

// readFromConnection forwards frames to the TUI in batches until the
// connection fails. Returns true with the read error if the connection was
// lost, false if shutdown was requested.
func (cm *connectionManager) readFromConnection() (bool, error) {
	batchChan := make(chan frameEvent, 100)
	syncChan := make(chan syncEvent, 1)
	readerDone := make(chan struct{})
	var readErr error

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-cm.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer close(readerDone)
		conn := cm.getConn()
		if conn == nil {
			return
		}
		readErr = readFrames(ctx, conn,
			func(s syncEvent) {
				select {
				case syncChan <- s:
				default:
				}
			},
			func(ev frameEvent) {
				select {
				case batchChan <- ev:
				default:
				}
			})
	}()

	// Batch sender - hands updates to the TUI at a fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-cm.done:
				return
			case <-readerDone:
				return
			case <-ticker.C:
				var batch controlBatchMsg
				select {
				case s := <-syncChan:
					batch.sync = &s
				default:
				}
			drain:
				for {
					select {
					case ev := <-batchChan:
						batch.events = append(batch.events, ev)
					default:
						break drain
					}
				}
				if batch.sync != nil || len(batch.events) > 0 {
					cm.p.Send(batch)
				}
			}
		}
	}()

	<-readerDone

	select {
	case <-cm.done:
		return false, nil
	default:
		return true, readErr
	}
}

// reconnect retries with exponential backoff. Returns false if shutdown
// was requested.
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}
	cm.setConn(nil, cm.connInfo)

	backoff := reconnectMin
	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := cm.open()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			cm.send(protocol.NewStatsPoll())
			return true
		}

		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMax {
		d = reconnectMax
	}
	return d
}
