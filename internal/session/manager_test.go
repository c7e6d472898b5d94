package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
)

type fakeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	written  [][]byte
	failNext bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return websocket.TextMessage, b, nil
	case <-c.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		return errors.New("broken pipe")
	}
	if mt == websocket.TextMessage {
		c.written = append(c.written, append([]byte(nil), data...))
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) drop() { _ = c.Close() }

func (c *fakeConn) types() []protocol.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Type, 0, len(c.written))
	for _, w := range c.written {
		var env protocol.Envelope
		if err := json.Unmarshal(w, &env); err == nil {
			out = append(out, env.Type)
		}
	}
	return out
}

type dialResult struct {
	conn *fakeConn
	err  error
}

type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	// fallback is returned once results are exhausted.
	fallback error
	calls    int
	tokens   []string
}

func (d *fakeDialer) Dial(_ context.Context, _ string, token string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.tokens = append(d.tokens, token)
	if len(d.results) == 0 {
		if d.fallback == nil {
			return nil, core.E(core.KindNetwork, "dial", errors.New("refused"))
		}
		return nil, d.fallback
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testOptions() Options {
	return Options{
		URL:               "ws://relay.test/api/ws",
		Token:             "tok",
		HeartbeatInterval: time.Hour,
		BaseDelay:         time.Millisecond,
		MaxDelay:          4 * time.Millisecond,
		MaxAttempts:       3,
		OutboxSize:        8,
	}
}

var at = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func removeEvent(item string) *protocol.ItemRemoved {
	return &protocol.ItemRemoved{PlaylistID: "p1", ItemID: domain.ItemID(item), RemovedBy: "u1", Timestamp: at}
}

func TestConnect_WithoutTokenStaysLocal(t *testing.T) {
	opts := testOptions()
	opts.Token = ""
	d := &fakeDialer{}
	m := New(opts, d)
	defer m.Close()

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAuthentication)
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Equal(t, 0, d.Calls())

	require.NoError(t, m.Emit(removeEvent("a")))
	assert.Equal(t, 1, m.Buffered())
}

func TestConnect_DialFailureReported(t *testing.T) {
	d := &fakeDialer{results: []dialResult{{err: &core.Error{Kind: core.KindAuthentication, Status: 401, Err: errors.New("bad handshake")}}}}
	m := New(testOptions(), d)
	defer m.Close()

	var seen []Status
	var mu sync.Mutex
	m.OnStatus(func(s Status, _ error) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, core.ErrAuthentication)
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.ErrorIs(t, m.Err(), core.ErrAuthentication)
	mu.Lock()
	assert.Equal(t, []Status{StatusConnecting, StatusDisconnected}, seen)
	mu.Unlock()
}

func TestConnect_IdempotentWhenConnected(t *testing.T) {
	c := newFakeConn()
	d := &fakeDialer{results: []dialResult{{conn: c}}}
	m := New(testOptions(), d)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, StatusConnected, m.Status())
	assert.False(t, m.LastConnected().IsZero())
	assert.Equal(t, []string{"tok"}, d.tokens)
}

func TestEstablished_ReplacesExistingConn(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	m := New(testOptions(), &fakeDialer{results: []dialResult{{conn: first}}})
	defer m.Close()
	require.NoError(t, m.Connect(context.Background()))

	// A reconnect finishing alongside a Connect installs a second conn.
	m.established(second)

	select {
	case <-first.done:
	case <-time.After(time.Second):
		t.Fatal("previous conn left open")
	}
	assert.Equal(t, StatusConnected, m.Status())
	require.NoError(t, m.Emit(removeEvent("a")))
	assert.Equal(t, []protocol.Type{protocol.TypeItemRemoved}, second.types())
	assert.Empty(t, first.types())
}

func TestEmit_WritesWhenConnected(t *testing.T) {
	c := newFakeConn()
	m := New(testOptions(), &fakeDialer{results: []dialResult{{conn: c}}})
	defer m.Close()
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.Emit(removeEvent("a")))
	assert.Equal(t, []protocol.Type{protocol.TypeItemRemoved}, c.types())
	assert.Equal(t, 0, m.Buffered())
}

func TestEmit_InvalidNeverBuffered(t *testing.T) {
	m := New(testOptions(), &fakeDialer{})
	defer m.Close()

	err := m.Emit(&protocol.ItemsReordered{PlaylistID: "p1", Items: []domain.ItemOrder{{ItemID: "a", Position: -1}}, UpdatedBy: "u1", Timestamp: at})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, 0, m.Buffered())
}

func TestConnect_FlushesPreludeThenBufferInOrder(t *testing.T) {
	c := newFakeConn()
	m := New(testOptions(), &fakeDialer{results: []dialResult{{conn: c}}})
	defer m.Close()
	m.SetPrelude(func() []protocol.Event {
		return []protocol.Event{&protocol.JoinPlaylist{PlaylistID: "p1"}}
	})

	require.NoError(t, m.Emit(removeEvent("a")))
	require.NoError(t, m.Emit(&protocol.ItemsReordered{PlaylistID: "p1", Items: []domain.ItemOrder{{ItemID: "b", Position: 0}}, UpdatedBy: "u1", Timestamp: at}))
	require.NoError(t, m.Emit(removeEvent("c")))

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, []protocol.Type{
		protocol.TypeJoinPlaylist,
		protocol.TypeItemRemoved,
		protocol.TypeItemsReordered,
		protocol.TypeItemRemoved,
	}, c.types())
	assert.Equal(t, 0, m.Buffered())
}

func TestEmit_WriteFailureBuffersAndReconnects(t *testing.T) {
	c1 := newFakeConn()
	c2 := newFakeConn()
	m := New(testOptions(), &fakeDialer{results: []dialResult{{conn: c1}, {conn: c2}}})
	defer m.Close()
	require.NoError(t, m.Connect(context.Background()))

	c1.mu.Lock()
	c1.failNext = true
	c1.mu.Unlock()
	require.NoError(t, m.Emit(removeEvent("a")))

	require.Eventually(t, func() bool {
		return len(c2.types()) == 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, []protocol.Type{protocol.TypeItemRemoved}, c2.types())
	assert.Equal(t, StatusConnected, m.Status())
}

func TestReconnect_RejoinsAndNotifies(t *testing.T) {
	c1 := newFakeConn()
	c2 := newFakeConn()
	d := &fakeDialer{results: []dialResult{{conn: c1}, {err: core.E(core.KindNetwork, "dial", errors.New("refused"))}, {conn: c2}}}
	m := New(testOptions(), d)
	defer m.Close()

	m.SetPrelude(func() []protocol.Event {
		return []protocol.Event{&protocol.JoinPlaylist{PlaylistID: "p1"}, &protocol.JoinUser{UserID: "u1"}}
	})
	reconnects := make(chan bool, 4)
	m.OnConnected(func(re bool) { reconnects <- re })

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, <-reconnects)

	c1.drop()
	select {
	case re := <-reconnects:
		assert.True(t, re)
	case <-time.After(time.Second):
		t.Fatal("no reconnect")
	}
	assert.Equal(t, StatusConnected, m.Status())
	assert.Equal(t, 0, m.Retries())
	assert.Equal(t, 3, d.Calls())
	assert.Equal(t, []protocol.Type{protocol.TypeJoinPlaylist, protocol.TypeJoinUser}, c2.types())
}

func TestReconnect_ExhaustionEndsDisconnected(t *testing.T) {
	c1 := newFakeConn()
	d := &fakeDialer{results: []dialResult{{conn: c1}}}
	m := New(testOptions(), d)
	defer m.Close()

	done := make(chan error, 1)
	m.OnStatus(func(s Status, err error) {
		if s == StatusDisconnected {
			done <- err
		}
	})
	require.NoError(t, m.Connect(context.Background()))
	c1.drop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrReconnectExhausted)
	case <-time.After(time.Second):
		t.Fatal("reconnect never gave up")
	}
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Equal(t, 3, m.Retries())
	assert.Equal(t, 4, d.Calls())

	require.NoError(t, m.Emit(removeEvent("a")))
	assert.Equal(t, 1, m.Buffered())
}

func TestReconnect_AuthFailureStopsEarly(t *testing.T) {
	c1 := newFakeConn()
	d := &fakeDialer{
		results:  []dialResult{{conn: c1}},
		fallback: &core.Error{Kind: core.KindAuthentication, Status: 401, Err: errors.New("expired")},
	}
	m := New(testOptions(), d)
	defer m.Close()

	done := make(chan error, 1)
	m.OnStatus(func(s Status, err error) {
		if s == StatusDisconnected {
			done <- err
		}
	})
	require.NoError(t, m.Connect(context.Background()))
	c1.drop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrReconnectExhausted)
		assert.ErrorIs(t, err, core.ErrAuthentication)
	case <-time.After(time.Second):
		t.Fatal("reconnect never gave up")
	}
	assert.Equal(t, 2, d.Calls())
}

func TestDisconnect_NoReconnect(t *testing.T) {
	c1 := newFakeConn()
	d := &fakeDialer{results: []dialResult{{conn: c1}, {conn: newFakeConn()}}}
	m := New(testOptions(), d)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	m.Disconnect()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Equal(t, 1, d.Calls())
	assert.NoError(t, m.Err())
}

func TestHeartbeat_SentWhileConnected(t *testing.T) {
	opts := testOptions()
	opts.HeartbeatInterval = 5 * time.Millisecond
	c := newFakeConn()
	m := New(opts, &fakeDialer{results: []dialResult{{conn: c}}})
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	require.Eventually(t, func() bool {
		for _, typ := range c.types() {
			if typ == protocol.TypeHeartbeat {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
}

func TestInboundFrames_ReachHandler(t *testing.T) {
	c := newFakeConn()
	m := New(testOptions(), &fakeDialer{results: []dialResult{{conn: c}}})
	defer m.Close()

	got := make(chan []byte, 1)
	m.SetHandler(func(f []byte) { got <- f })
	require.NoError(t, m.Connect(context.Background()))

	c.in <- []byte(`{"type":"heartbeat","data":{"timestamp":"2026-03-01T09:00:00Z"}}`)
	select {
	case f := <-got:
		assert.Contains(t, string(f), "heartbeat")
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	m := New(testOptions(), &fakeDialer{})
	require.NoError(t, m.Emit(removeEvent("a")))
	m.Close()

	assert.ErrorIs(t, m.Emit(removeEvent("b")), core.ErrClosed)
	assert.ErrorIs(t, m.Connect(context.Background()), core.ErrClosed)
	assert.Equal(t, 0, m.Buffered())
	m.Close()
}
