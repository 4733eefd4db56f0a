// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/relay"
)

var (
	simGate    string
	simTrace   bool
	simNoGPIO  bool
	simGPS     string
	simListen  string
	simStatsIv int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run Body and Engine in this process",
	Long: `Run both controllers joined by an in-process link.

Engine's client port is served on --port (serial) or on the WebSocket hub
configured under relay.websocket (or --listen), so the monitor, control and
send commands can connect to it. Relayed telemetry is published to the MQTT
broker and Redis server configured under relay.

Pins come from the gpio section of the configuration when a chip is named
(Linux only); otherwise every input stays released. Use the shell command to
drive inputs by hand.

Settings are read from and persisted to --config.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simGate, "gate", "uniform", "Busy gate policy on Body's link port (uniform, legacy, none)")
	simulateCmd.Flags().BoolVar(&simTrace, "trace", false, "Mirror every trigger to the debug interface")
	simulateCmd.Flags().BoolVar(&simNoGPIO, "no-gpio", false, "Ignore the gpio section of the configuration")
	simulateCmd.Flags().StringVar(&simGPS, "gps", "", "Fixed GPS fix reported by Body (fix,sv,lat,lon,alt,vx,vy,vz)")
	simulateCmd.Flags().StringVar(&simListen, "listen", "", "WebSocket hub address, overrides relay.websocket.listen")
	simulateCmd.Flags().IntVar(&simStatsIv, "status", 10, "Seconds between status log lines (0 disables)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	gate, err := parseGate(simGate)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, err := newSimulator(ctx, configPath, simOptions{
		gate:    gate,
		trace:   simTrace,
		useGPIO: !simNoGPIO,
		gps:     simGPS,
	}, nil)
	if err != nil {
		return err
	}
	defer sim.close()

	ext, info, err := openClientTransport(sim)
	if err != nil {
		return err
	}
	fmt.Printf("Tandem - Simulator\n")
	fmt.Printf("Client transport: %s\n", info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if simStatsIv > 0 {
		go logStatus(ctx, sim, time.Duration(simStatsIv)*time.Second)
	}

	return sim.run(ctx, ext)
}

// openClientTransport picks the serial port when --port is given, else
// the WebSocket hub when an address is configured. Returns nil when
// neither is set.
func openClientTransport(sim *simulator) (io.ReadWriter, string, error) {
	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	ws := sim.store.Config().Relay.WebSocket
	if simListen != "" {
		ws.Listen = simListen
	}
	if ws.Listen == "" {
		return nil, "none", nil
	}
	if ws.Path == "" {
		ws.Path = "/ws"
	}
	hub := relay.NewHub(relay.HubConfig{Username: ws.Username, Password: ws.Password})
	srv, errc := hub.ListenAndServe(ws.Listen, ws.Path)
	go func() {
		if err := <-errc; err != nil {
			glog.Errorf("simulate: %v", err)
			hub.Close()
		}
	}()
	return &hubTransport{Hub: hub, close: srv.Close}, fmt.Sprintf("WebSocket: %s%s", ws.Listen, ws.Path), nil
}

// hubTransport stops the HTTP server along with the hub
type hubTransport struct {
	*relay.Hub
	close func() error
}

func (h *hubTransport) Close() error {
	h.Hub.Close()
	return h.close()
}

// logStatus periodically logs what the controllers are doing
func logStatus(ctx context.Context, sim *simulator, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, _ := sim.body.Engine()
			fs := sim.fanout.Stats()
			glog.Infof("status: state=%s gear=%d stats=%d link_errors=%d relayed=%d published=%d dropped=%d voltage=%dmV",
				body.StateString(sim.body.State()), st.Gear, sim.body.StatsReceived(), sim.body.LinkErrors(),
				sim.engine.Relayed(), fs.Published, fs.Dropped, st.Voltage)
		}
	}
}
