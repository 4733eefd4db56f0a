// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/config"
)

// ConnectTimeout bounds the initial broker connection
const ConnectTimeout = 10 * time.Second

// ClientID derives a stable MQTT client id from the machine id. The id is
// hashed with the application name so the raw machine id never leaves the
// host.
func ClientID() string {
	id, err := machineid.ProtectedID("tandem")
	if err != nil {
		glog.Warningf("relay: no machine id, using pid: %v", err)
		return fmt.Sprintf("tandem-%d", os.Getpid())
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return "tandem-" + id
}

// Topic returns the topic a command is published on
func Topic(prefix, command string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return command
	}
	return prefix + "/" + command
}

// MQTTSink publishes each snapshot as CBOR on <prefix>/<command>. State
// snapshots are retained so new subscribers see the current state.
type MQTTSink struct {
	client paho.Client
	prefix string
	qos    byte
}

// NewMQTTSink connects to the broker
func NewMQTTSink(cfg config.MQTTConfig) (*MQTTSink, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker).
		SetClientID(ClientID()).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			glog.Warningf("relay: mqtt connection lost: %v", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	glog.Infof("relay: mqtt connected to %s", cfg.Broker)
	return newMQTTSink(client, cfg.TopicPrefix, cfg.QoS), nil
}

func newMQTTSink(client paho.Client, prefix string, qos uint8) *MQTTSink {
	return &MQTTSink{client: client, prefix: prefix, qos: qos}
}

// Name implements Sink
func (m *MQTTSink) Name() string { return "mqtt" }

// Publish implements Sink
func (m *MQTTSink) Publish(ctx context.Context, s Snapshot) error {
	payload, err := s.Encode()
	if err != nil {
		return err
	}
	retained := s.State != nil
	token := m.client.Publish(Topic(m.prefix, s.Command), m.qos, retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker
func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
