package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

type delivery struct {
	key   domain.RoomKey
	frame core.Frame
}

func start(t *testing.T, f *Redis) <-chan delivery {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	out := make(chan delivery, 4)
	ready := make(chan struct{})
	go func() {
		_ = f.Run(ctx, func(key domain.RoomKey, frame core.Frame) { out <- delivery{key, frame} }, ready)
	}()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}
	return out
}

func TestRedis_DeliversForeignFramesOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	a := NewRedis(rdb, "")
	b := NewRedis(rdb, "")
	require.NotEqual(t, a.Origin(), b.Origin())
	gotA := start(t, a)
	gotB := start(t, b)

	frame := core.Frame(`{"type":"heartbeat","data":{"timestamp":"2026-03-01T09:00:00Z"}}`)
	require.NoError(t, a.Publish(context.Background(), domain.PlaylistRoom("p1"), frame))

	select {
	case d := <-gotB:
		assert.Equal(t, domain.PlaylistRoom("p1"), d.key)
		assert.JSONEq(t, string(frame), string(d.frame))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered to peer")
	}
	select {
	case d := <-gotA:
		t.Fatalf("own frame delivered back: %s", d.key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedis_PublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	f := NewRedis(rdb, "custom")
	mr.Close()

	err := f.Publish(context.Background(), domain.PlaylistRoom("p1"), core.Frame(`{}`))
	assert.ErrorIs(t, err, core.ErrNetwork)
}
