// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/config"
	"github.com/Thermoquad/tandem/pkg/relay"
)

var relayListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Publish Engine's relayed telemetry to MQTT and Redis",
	Long: `Read frames from Engine's client port and publish every state, data and
gps frame to the MQTT broker and Redis server configured under relay.

MQTT topics are <topic_prefix>/<command> with a CBOR snapshot as payload;
state snapshots are retained. Redis receives the latest snapshot fields in
the configured hash and the CBOR snapshot on the configured channel.

With --listen (or relay.websocket.listen) the raw frame stream is also
served to WebSocket clients, and their frames are forwarded to Engine.

Supports both serial and WebSocket connections.`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVar(&relayListen, "listen", "", "Serve the frame stream on this WebSocket address")
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := openSinks(ctx, cfg.Relay)
	if len(sinks) == 0 {
		return fmt.Errorf("no sink configured (set relay.mqtt.broker or relay.redis.addr in %s)", configPath)
	}
	fanout := relay.NewFanout(sinks...)
	defer fanout.Close()
	go fanout.Run(ctx)

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	ws := cfg.Relay.WebSocket
	if relayListen != "" {
		ws.Listen = relayListen
	}
	var hub *relay.Hub
	if ws.Listen != "" {
		if ws.Path == "" {
			ws.Path = "/ws"
		}
		hub = relay.NewHub(relay.HubConfig{Username: ws.Username, Password: ws.Password})
		srv, errc := hub.ListenAndServe(ws.Listen, ws.Path)
		defer srv.Close()
		defer hub.Close()
		go func() {
			if err := <-errc; err != nil {
				glog.Errorf("relay: %v", err)
			}
		}()
		// Client frames go upstream to Engine
		go func() {
			buf := make([]byte, 256)
			for {
				n, err := hub.Read(buf)
				if err != nil {
					return
				}
				if _, err := conn.Write(buf[:n]); err != nil {
					glog.Warningf("relay: forward to engine: %v", err)
				}
			}
		}()
	}

	fmt.Printf("Tandem - Relay\n")
	fmt.Printf("Connection: %s\n", connInfo)
	for _, s := range sinks {
		fmt.Printf("Sink: %s\n", s.Name())
	}
	if hub != nil {
		fmt.Printf("WebSocket: %s%s\n", ws.Listen, ws.Path)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err = readFrames(ctx, conn,
		func(s syncEvent) {
			glog.Infof("relay: synchronized after %d bytes", s.invalidBytes)
		},
		func(ev frameEvent) {
			if ev.frame == nil {
				glog.Warningf("relay: %v", ev.decodeErr)
				return
			}
			if len(ev.validationErrors) > 0 {
				glog.Warningf("relay: dropping %s: %s", ev.frame.ID(), ev.validationErrors[0].Message)
				return
			}
			fanout.Observe(ev.frame)
			if hub != nil {
				hub.Write(ev.frame.Bytes())
			}
		})

	st := fanout.Stats()
	fmt.Printf("\n--- Relay statistics ---\n")
	fmt.Printf("Observed: %d, published: %d, failed: %d, dropped: %d\n",
		st.Observed, st.Published, st.Failed, st.Dropped)
	return err
}
