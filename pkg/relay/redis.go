// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"

	"github.com/Thermoquad/tandem/pkg/config"
)

// RedisSink keeps the latest telemetry in a hash and announces each update
// on a pub/sub channel with the CBOR snapshot as message
type RedisSink struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisSink connects and pings the server
func NewRedisSink(ctx context.Context, cfg config.RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection to %s failed: %w", cfg.Addr, err)
	}
	glog.Infof("relay: redis connected to %s", cfg.Addr)
	return &RedisSink{client: client, key: cfg.Key, channel: cfg.Channel}, nil
}

// Name implements Sink
func (r *RedisSink) Name() string { return "redis" }

// Publish implements Sink
func (r *RedisSink) Publish(ctx context.Context, s Snapshot) error {
	pipe := r.client.Pipeline()
	if r.key != "" {
		pipe.HSet(ctx, r.key, s.Fields())
	}
	if r.channel != "" {
		payload, err := s.Encode()
		if err != nil {
			return err
		}
		pipe.Publish(ctx, r.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (r *RedisSink) Close() error {
	return r.client.Close()
}
