// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package sink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riclolsen/go-combiscope/combiscope"
)

func TestEncode(t *testing.T) {
	var md combiscope.Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"trace_name":"CH2","y_unit":"V"}`), &md))
	w := &combiscope.Waveform{
		Identity:   "PM3394B",
		Channel:    2,
		Samples:    []int16{-1, 0, 300},
		Metadata:   md,
		Stale:      true,
		AcquiredAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}

	data, err := Encode(w)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "PM3394B", got["identity"])
	assert.Equal(t, float64(2), got["channel"])
	assert.Equal(t, []any{float64(-1), float64(0), float64(300)}, got["samples"])
	assert.Equal(t, true, got["stale"])
	assert.Equal(t, "2026-10-16T09:00:00Z", got["acquired_at"])
	assert.Equal(t, "CH2", got["metadata"].(map[string]any)["trace_name"])

	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestBacklogKey(t *testing.T) {
	assert.Equal(t, "combiscope:3:waveforms", BacklogKey(3))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{Addr: "localhost:6379"}
	require.NoError(t, o.valid())
	assert.Equal(t, DefaultChannel, o.Channel)
	assert.Equal(t, DefaultMaxBacklog, o.MaxBacklog)
	assert.Equal(t, DefaultDialTimeout, o.DialTimeout)
	assert.NotNil(t, o.Log)

	assert.Error(t, (&Options{}).valid())
}

func TestNewRedisPublisherUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// nothing listens on port 1
	_, err := NewRedisPublisher(ctx, Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

// setupTestPublisher connects to an in-process redis server.
func setupTestPublisher(t *testing.T, maxBacklog int) (*RedisPublisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	p, err := NewRedisPublisher(context.Background(), Options{
		Addr:       mr.Addr(),
		Channel:    "scope-test",
		MaxBacklog: maxBacklog,
		Log:        log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, mr
}

func TestPublishTrimsBacklog(t *testing.T) {
	p, mr := setupTestPublisher(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		w := &combiscope.Waveform{Channel: 1, Samples: []int16{int16(i)}}
		require.NoError(t, p.Publish(ctx, w))
	}
	require.NoError(t, p.Publish(ctx, &combiscope.Waveform{Channel: 2, Samples: []int16{42}}))

	items, err := mr.List(BacklogKey(1))
	require.NoError(t, err)
	assert.Len(t, items, 3)

	recent, err := p.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []int16{4}, recent[0].Samples)
	assert.Equal(t, []int16{3}, recent[1].Samples)
	assert.Equal(t, []int16{2}, recent[2].Samples)

	recent, err = p.Recent(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, []int16{4}, recent[0].Samples)

	other, err := p.Recent(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, 2, other[0].Channel)

	empty, err := p.Recent(ctx, 7, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPublishReachesSubscribers(t *testing.T) {
	p, mr := setupTestPublisher(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(ctx, "scope-test")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, &combiscope.Waveform{Channel: 3, Samples: []int16{-5, 5}}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got combiscope.Waveform
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, 3, got.Channel)
	assert.Equal(t, []int16{-5, 5}, got.Samples)
}

func TestRecentSkipsUndecodableEntries(t *testing.T) {
	p, mr := setupTestPublisher(t, 10)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, &combiscope.Waveform{Channel: 1, Samples: []int16{7}}))
	_, err := mr.Lpush(BacklogKey(1), "not json")
	require.NoError(t, err)

	recent, err := p.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, []int16{7}, recent[0].Samples)
}

func TestPublishFailsWhenServerDown(t *testing.T) {
	p, mr := setupTestPublisher(t, 10)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Publish(ctx, &combiscope.Waveform{Channel: 1})
	assert.Error(t, err)
	_, err = p.Recent(ctx, 1, 1)
	assert.Error(t, err)
}
