package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signage/internal/app"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/metrics"
	"github.com/dkeye/Signage/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) events(t *testing.T) []protocol.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Event, 0, len(c.frames))
	for _, f := range c.frames {
		ev, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []protocol.Type {
	var out []protocol.Type
	for _, ev := range c.events(t) {
		out = append(out, ev.EventType())
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type fakeFanout struct {
	mu   sync.Mutex
	keys []domain.RoomKey
	err  error
}

func (f *fakeFanout) Publish(_ context.Context, key domain.RoomKey, _ core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.err
}

type fixture struct {
	o        *Orchestrator
	fanout   *fakeFanout
	canceled map[core.SessionID]int
}

func newFixture(policy app.Policy) *fixture {
	f := &fixture{fanout: &fakeFanout{}, canceled: map[core.SessionID]int{}}
	f.o = &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   policy,
		Fanout:   f.fanout,
		Metrics:  metrics.New(nil),
	}
	return f
}

func (f *fixture) attach(sid core.SessionID, uid domain.UserID) *fakeConn {
	conn := &fakeConn{}
	user := &domain.User{ID: uid, Email: string(uid) + "@example.com"}
	sess := core.NewMemberSession(sid, domain.NewMember(user, time.Now().UTC()), conn)
	f.o.Attach(sid, sess, func() { f.canceled[sid]++ })
	return conn
}

var p1 = domain.PlaylistRoom("p1")

func TestJoin_PresenceSnapshotAndAnnouncement(t *testing.T) {
	f := newFixture(nil)
	c1 := f.attach("s1", "u1")
	c2 := f.attach("s2", "u2")

	require.NoError(t, f.o.Join("s1", p1))
	assert.Empty(t, c1.frames)

	require.NoError(t, f.o.Join("s2", p1))
	snap := c2.events(t)
	require.Len(t, snap, 1)
	assert.Equal(t, domain.UserID("u1"), snap[0].(*protocol.UserJoined).UserID)

	got := c1.events(t)
	require.Len(t, got, 1)
	assert.Equal(t, domain.UserID("u2"), got[0].(*protocol.UserJoined).UserID)

	require.NoError(t, f.o.Join("s2", p1))
	assert.Len(t, c1.frames, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.o.Metrics.Connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.o.Metrics.Rooms))
}

func TestJoin_SecondSessionOfSameUserIsQuiet(t *testing.T) {
	f := newFixture(nil)
	c1 := f.attach("s1", "u1")
	f.attach("s2", "u2")
	f.attach("s3", "u2")

	require.NoError(t, f.o.Join("s1", p1))
	require.NoError(t, f.o.Join("s2", p1))
	require.NoError(t, f.o.Join("s3", p1))
	assert.Equal(t, []protocol.Type{protocol.TypeUserJoined}, c1.types(t))

	require.NoError(t, f.o.Leave("s2", p1))
	assert.Len(t, c1.frames, 1)
	require.NoError(t, f.o.Leave("s3", p1))
	assert.Equal(t, []protocol.Type{protocol.TypeUserJoined, protocol.TypeUserLeft}, c1.types(t))
}

func TestJoin_UserRoomOwnership(t *testing.T) {
	f := newFixture(nil)
	f.attach("s1", "u1")

	require.NoError(t, f.o.Join("s1", domain.UserRoom("u1")))
	err := f.o.Join("s1", domain.UserRoom("u2"))
	assert.ErrorIs(t, err, core.ErrAuthentication)

	err = f.o.Join("s1", "bogus")
	assert.ErrorIs(t, err, core.ErrValidation)
	err = f.o.Join("ghost", p1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPublish_StampsActorAndRequiresMembership(t *testing.T) {
	f := newFixture(nil)
	c1 := f.attach("s1", "u1")
	c2 := f.attach("s2", "u2")
	require.NoError(t, f.o.Join("s1", p1))
	require.NoError(t, f.o.Join("s2", p1))
	c1.reset()
	c2.reset()

	ev := &protocol.ItemRemoved{PlaylistID: "p1", ItemID: "A", RemovedBy: "forged", Timestamp: time.Now().UTC()}
	require.NoError(t, f.o.Publish("s2", ev))

	got := c1.events(t)
	require.Len(t, got, 1)
	assert.Equal(t, domain.UserID("u2"), got[0].(*protocol.ItemRemoved).RemovedBy)
	assert.Empty(t, c2.frames)
	assert.Contains(t, f.fanout.keys, p1)

	err := f.o.Publish("s1", &protocol.ItemRemoved{PlaylistID: "p2", ItemID: "A", RemovedBy: "u1", Timestamp: time.Now().UTC()})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestInjectAndDeliver(t *testing.T) {
	f := newFixture(nil)
	c1 := f.attach("s1", "u1")
	c2 := f.attach("s2", "u2")
	require.NoError(t, f.o.Join("s1", p1))
	require.NoError(t, f.o.Join("s2", p1))
	c1.reset()
	c2.reset()
	f.fanout.keys = nil

	n, err := f.o.Inject(&protocol.ItemRemoved{PlaylistID: "p1", ItemID: "A", RemovedBy: "store", Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []domain.RoomKey{p1}, f.fanout.keys)

	frame, err := protocol.Encode(&protocol.ItemRemoved{PlaylistID: "p1", ItemID: "B", RemovedBy: "u9", Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	f.o.Deliver(p1, frame)
	assert.Len(t, c1.frames, 2)
	assert.Len(t, c2.frames, 2)
	assert.Len(t, f.fanout.keys, 1)

	_, err = f.o.Inject(&protocol.ItemRemoved{PlaylistID: "p1"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestFanoutFailureIsCounted(t *testing.T) {
	f := newFixture(nil)
	f.attach("s1", "u1")
	require.NoError(t, f.o.Join("s1", p1))
	f.fanout.err = errors.New("redis down")

	_, err := f.o.Inject(&protocol.ItemRemoved{PlaylistID: "p1", ItemID: "A", RemovedBy: "store", Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.o.Metrics.Fanout.WithLabelValues("out", "error")))
}

func TestBackpressure_DropThenKick(t *testing.T) {
	f := newFixture(&app.SimplePolicy{MaxDrops: 1})
	f.attach("s1", "u1")
	slow := f.attach("s2", "u2")
	require.NoError(t, f.o.Join("s1", p1))
	require.NoError(t, f.o.Join("s2", p1))
	slow.full = true

	ev := func() *protocol.ItemRemoved {
		return &protocol.ItemRemoved{PlaylistID: "p1", ItemID: "A", RemovedBy: "u1", Timestamp: time.Now().UTC()}
	}
	require.NoError(t, f.o.Publish("s1", ev()))
	assert.Zero(t, f.canceled["s2"])
	require.NoError(t, f.o.Publish("s1", ev()))
	assert.Equal(t, 1, f.canceled["s2"])
	assert.Equal(t, 2.0, testutil.ToFloat64(f.o.Metrics.Dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.o.Metrics.Kicked))
}

func TestOnDisconnect_LeavesRoomsAndStopsEmpty(t *testing.T) {
	f := newFixture(&app.SimplePolicy{})
	c1 := f.attach("s1", "u1")
	f.attach("s2", "u2")
	require.NoError(t, f.o.Join("s1", p1))
	require.NoError(t, f.o.Join("s2", p1))
	require.NoError(t, f.o.Join("s2", domain.UserRoom("u2")))
	c1.reset()

	f.o.OnDisconnect("s2")
	assert.Equal(t, []protocol.Type{protocol.TypeUserLeft}, c1.types(t))
	_, ok := f.o.Rooms.Get(domain.UserRoom("u2"))
	assert.False(t, ok)
	assert.Equal(t, 1, f.o.Registry.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.o.Metrics.Connections))

	f.o.OnDisconnect("s2")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.o.Metrics.Connections))
}

func TestNotifyAndEvict(t *testing.T) {
	f := newFixture(nil)
	c1 := f.attach("s1", "u1")
	f.attach("s2", "u2")
	require.NoError(t, f.o.Join("s1", p1))
	require.NoError(t, f.o.Join("s2", p1))
	c1.reset()

	f.o.Notify("s1", core.E(core.KindConflict, "test", errors.New("stale")))
	got := c1.events(t)
	require.Len(t, got, 1)
	assert.Equal(t, "conflict", got[0].(*protocol.ErrorNotice).Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.o.Metrics.Rejected.WithLabelValues("conflict")))

	f.o.EvictRoom(p1)
	assert.Equal(t, 1, f.canceled["s1"])
	assert.Equal(t, 1, f.canceled["s2"])
	_, ok := f.o.Rooms.Get(p1)
	assert.False(t, ok)
}
