// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package sink forwards acquired waveforms to Redis so other processes can
// follow an instrument live (Pub/Sub) or read its recent history (a capped list).
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-combiscope/combiscope"
)

// Defaults for Options.
const (
	DefaultChannel     = "combiscope:waveforms"
	DefaultMaxBacklog  = 100
	DefaultDialTimeout = 3 * time.Second
)

// Options configures a RedisPublisher.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Channel is the Pub/Sub channel waveforms are published on.
	Channel string
	// MaxBacklog caps the per-channel history list.
	MaxBacklog  int
	DialTimeout time.Duration
	Log         *logrus.Logger
}

func (o *Options) valid() error {
	if o.Addr == "" {
		return errors.New("sink: redis address must be configured")
	}
	if o.Channel == "" {
		o.Channel = DefaultChannel
	}
	if o.MaxBacklog <= 0 {
		o.MaxBacklog = DefaultMaxBacklog
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return nil
}

// RedisPublisher publishes waveforms as JSON.
type RedisPublisher struct {
	client *redis.Client
	opts   Options
	log    *logrus.Entry
}

// NewRedisPublisher connects to Redis and checks the connection with PING.
func NewRedisPublisher(ctx context.Context, opts Options) (*RedisPublisher, error) {
	if err := opts.valid(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		PoolSize:    opts.PoolSize,
		DialTimeout: opts.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("sink: connect to redis %s: %w", opts.Addr, err)
	}

	log := opts.Log.WithField("component", "sink")
	log.Infof("Connected to redis at %s", opts.Addr)
	return &RedisPublisher{client: client, opts: opts, log: log}, nil
}

// BacklogKey is the list holding the recent waveforms of one channel.
func BacklogKey(channel int) string {
	return fmt.Sprintf("combiscope:%d:waveforms", channel)
}

// Encode renders w as the JSON payload used on the wire.
func Encode(w *combiscope.Waveform) ([]byte, error) {
	if w == nil {
		return nil, errors.New("sink: nil waveform")
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("sink: encode waveform: %w", err)
	}
	return data, nil
}

// Publish sends w to the Pub/Sub channel and pushes it on the channel's
// backlog list, trimmed to MaxBacklog entries.
func (p *RedisPublisher) Publish(ctx context.Context, w *combiscope.Waveform) error {
	data, err := Encode(w)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.opts.Channel, data).Err(); err != nil {
		return fmt.Errorf("sink: publish: %w", err)
	}

	key := BacklogKey(w.Channel)
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(p.opts.MaxBacklog-1))
		return nil
	})
	if err != nil {
		p.log.Warnf("Failed to store waveform in %s: %v", key, err)
	}
	return nil
}

// Recent reads up to n waveforms from the backlog of channel, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, channel, n int) ([]*combiscope.Waveform, error) {
	if n <= 0 {
		n = p.opts.MaxBacklog
	}
	items, err := p.client.LRange(ctx, BacklogKey(channel), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("sink: read backlog: %w", err)
	}
	out := make([]*combiscope.Waveform, 0, len(items))
	for _, item := range items {
		var w combiscope.Waveform
		if err := json.Unmarshal([]byte(item), &w); err != nil {
			p.log.Errorf("Skipping undecodable backlog entry: %v", err)
			continue
		}
		out = append(out, &w)
	}
	return out, nil
}

// Close closes the redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
