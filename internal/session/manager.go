// Package session owns the one authenticated event channel a client keeps to
// the relay: connect, disconnect, automatic reconnect with bounded
// exponential backoff, heartbeats, and buffering of outbound frames while the
// channel is down.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/protocol"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

var ErrNoToken = errors.New("no bearer token")

type Options struct {
	URL   string
	Token string

	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	// Jitter is the backoff randomization factor, 0 disables it.
	Jitter float64

	OutboxSize int
}

func (o *Options) defaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 256
	}
}

// Manager is one client session. Create it with New; it is safe for
// concurrent use. Listeners run on the manager's goroutines and must not
// call Close.
type Manager struct {
	id     string
	opts   Options
	dialer Dialer
	logger zerolog.Logger

	life context.Context
	stop context.CancelFunc

	mu            sync.Mutex
	status        Status
	retries       int
	lastConnected time.Time
	lastErr       error
	conn          Conn
	connCancel    context.CancelFunc
	reconnCancel  context.CancelFunc
	explicit      bool
	closed        bool
	outbox        *Outbox

	// writeMu serializes writes to conn; gorilla allows one writer.
	writeMu sync.Mutex

	hooksMu    sync.RWMutex
	onFrame    func([]byte)
	prelude    func() []protocol.Event
	onConnect  []func(reconnected bool)
	onStatus   []func(Status, error)
	everOnline bool

	wg  conc.WaitGroup
	now func() time.Time
}

func New(opts Options, dialer Dialer) *Manager {
	opts.defaults()
	if dialer == nil {
		dialer = WSDialer{}
	}
	id := uuid.NewString()
	life, stop := context.WithCancel(context.Background())
	return &Manager{
		id:     id,
		opts:   opts,
		dialer: dialer,
		logger: log.With().Str("module", "session").Str("session", id).Logger(),
		life:   life,
		stop:   stop,
		status: StatusDisconnected,
		outbox: NewOutbox(opts.OutboxSize),
		now:    time.Now,
	}
}

func (m *Manager) ID() string { return m.id }

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusConnected && m.conn != nil
}

func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

func (m *Manager) LastConnected() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConnected
}

// Err is the error behind the latest transition to disconnected, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Buffered is the number of outbound frames waiting for a connection.
func (m *Manager) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outbox.Len()
}

// SetHandler registers the receiver of every inbound frame.
func (m *Manager) SetHandler(fn func(frame []byte)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onFrame = fn
}

// SetPrelude registers events sent first on every (re)connect, ahead of
// the buffered frames.
func (m *Manager) SetPrelude(fn func() []protocol.Event) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.prelude = fn
}

// OnConnected registers a listener run after each successful connect and
// buffer flush. reconnected is false for the first connect.
func (m *Manager) OnConnected(fn func(reconnected bool)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onConnect = append(m.onConnect, fn)
}

// OnStatus registers a listener for status transitions.
func (m *Manager) OnStatus(fn func(Status, error)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onStatus = append(m.onStatus, fn)
}

// SetToken replaces the bearer credential used by the next dial.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Token = token
}

// Connect establishes the channel. Without a token it returns an
// authentication error and the session stays usable in local-only mode.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return core.ErrClosed
	}
	if m.opts.Token == "" {
		m.mu.Unlock()
		m.logger.Warn().Msg("no credential, staying in local-only mode")
		return core.E(core.KindAuthentication, "session.connect", ErrNoToken)
	}
	switch m.status {
	case StatusConnected, StatusConnecting:
		m.mu.Unlock()
		return nil
	case StatusReconnecting:
		if m.reconnCancel != nil {
			m.reconnCancel()
			m.reconnCancel = nil
		}
	}
	m.explicit = false
	m.status = StatusConnecting
	token := m.opts.Token
	m.mu.Unlock()
	m.notifyStatus(StatusConnecting, nil)

	conn, err := m.dialer.Dial(ctx, m.opts.URL, token)
	if err != nil {
		m.logger.Error().Err(err).Str("url", m.opts.URL).Msg("connect failed")
		m.setStatus(StatusDisconnected, err)
		return err
	}
	m.established(conn)
	return nil
}

// Disconnect closes the channel without reconnecting. Buffered frames are
// kept for the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.explicit = true
	if m.reconnCancel != nil {
		m.reconnCancel()
		m.reconnCancel = nil
	}
	conn := m.detachLocked()
	wasDown := m.status == StatusDisconnected
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		_ = conn.Close()
	}
	if !wasDown {
		m.logger.Info().Msg("disconnected")
		m.setStatus(StatusDisconnected, nil)
	}
}

// Close ends the session: disconnects, drops buffered frames and waits for
// background goroutines. Further calls return core.ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.Disconnect()
	m.stop()
	m.wg.Wait()

	m.mu.Lock()
	m.outbox.Drain()
	m.mu.Unlock()
	m.logger.Info().Msg("session closed")
}

// Emit sends ev, or buffers it while the channel is down. Invalid events are
// rejected before buffering and never transmitted.
func (m *Manager) Emit(ev protocol.Event) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return core.ErrClosed
	}
	if m.status != StatusConnected || m.conn == nil {
		m.bufferLocked(frame)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	conn := m.conn
	if conn == nil {
		m.bufferLocked(frame)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	if err := m.write(conn, frame); err != nil {
		m.mu.Lock()
		m.bufferLocked(frame)
		m.mu.Unlock()
		go m.lost(conn, err)
	}
	return nil
}

func (m *Manager) bufferLocked(frame []byte) {
	if m.outbox.Push(frame) {
		m.logger.Warn().Int("capacity", m.outbox.Cap()).Msg("outbox full, dropped oldest frame")
	}
}

func (m *Manager) write(conn Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(m.now().Add(m.opts.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// established installs conn, sends the prelude and the buffered frames in
// FIFO order, then starts the read pump and heartbeat.
func (m *Manager) established(conn Conn) {
	ctx, cancel := context.WithCancel(m.life)

	m.writeMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.writeMu.Unlock()
		cancel()
		_ = conn.Close()
		return
	}
	// A Connect racing a reconnect can arrive here twice; the newer conn wins.
	if old := m.detachLocked(); old != nil {
		m.logger.Debug().Msg("replacing existing channel")
		_ = old.Close()
	}
	m.conn = conn
	m.connCancel = cancel
	m.status = StatusConnected
	m.retries = 0
	m.lastConnected = m.now()
	m.lastErr = nil
	buffered := m.outbox.Drain()
	m.mu.Unlock()

	m.hooksMu.Lock()
	prelude := m.prelude
	reconnected := m.everOnline
	m.everOnline = true
	m.hooksMu.Unlock()

	var frames [][]byte
	if prelude != nil {
		for _, ev := range prelude() {
			f, err := protocol.Encode(ev)
			if err != nil {
				m.logger.Error().Err(err).Str("type", string(ev.EventType())).Msg("drop invalid prelude event")
				continue
			}
			frames = append(frames, f)
		}
	}
	frames = append(frames, buffered...)

	var writeErr error
	for i, f := range frames {
		if err := m.write(conn, f); err != nil {
			writeErr = err
			m.mu.Lock()
			for _, rest := range frames[max(i, len(frames)-len(buffered)):] {
				m.bufferLocked(rest)
			}
			m.mu.Unlock()
			break
		}
	}
	m.writeMu.Unlock()

	m.logger.Info().Int("flushed", len(buffered)).Bool("reconnected", reconnected).Msg("connected")
	m.notifyStatus(StatusConnected, nil)

	m.wg.Go(func() { m.readPump(ctx, conn) })
	m.wg.Go(func() { m.heartbeat(ctx, conn) })

	if writeErr != nil {
		go m.lost(conn, writeErr)
		return
	}

	m.hooksMu.RLock()
	hooks := append([]func(bool){}, m.onConnect...)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(reconnected)
	}
}

func (m *Manager) readPump(ctx context.Context, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Info().Msg("relay closed the channel")
			} else {
				m.logger.Warn().Err(err).Msg("read error")
			}
			m.lost(conn, err)
			return
		}
		m.hooksMu.RLock()
		fn := m.onFrame
		m.hooksMu.RUnlock()
		if fn != nil {
			fn(data)
		}
	}
}

func (m *Manager) heartbeat(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := protocol.Encode(&protocol.Heartbeat{Timestamp: m.now().UTC()})
			if err != nil {
				m.logger.Error().Err(err).Msg("encode heartbeat")
				continue
			}
			m.writeMu.Lock()
			err = m.write(conn, frame)
			m.writeMu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn().Err(err).Msg("heartbeat failed")
				m.lost(conn, err)
				return
			}
		}
	}
}

// detachLocked removes the current conn and stops its goroutines.
func (m *Manager) detachLocked() Conn {
	conn := m.conn
	m.conn = nil
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	return conn
}

// lost handles an unexpected closure of conn.
func (m *Manager) lost(conn Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.detachLocked()
	_ = conn.Close()
	if m.explicit || m.closed {
		m.mu.Unlock()
		return
	}
	rctx, cancel := context.WithCancel(m.life)
	m.reconnCancel = cancel
	m.status = StatusReconnecting
	m.logger.Warn().Err(cause).Msg("channel lost, reconnecting")
	m.wg.Go(func() {
		m.notifyStatus(StatusReconnecting, cause)
		m.reconnect(rctx)
	})
	m.mu.Unlock()
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.BaseDelay
	b.MaxInterval = m.opts.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = m.opts.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (m *Manager) reconnect(ctx context.Context) {
	b := m.newBackOff()
	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		delay := b.NextBackOff()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		if m.explicit || m.closed || ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		m.retries = attempt
		token := m.opts.Token
		m.mu.Unlock()

		m.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect attempt")
		dialCtx, cancel := context.WithTimeout(ctx, m.opts.MaxDelay+10*time.Second)
		conn, err := m.dialer.Dial(dialCtx, m.opts.URL, token)
		cancel()
		if err == nil {
			m.mu.Lock()
			if ctx.Err() != nil || m.explicit || m.closed {
				m.mu.Unlock()
				_ = conn.Close()
				return
			}
			m.reconnCancel = nil
			m.mu.Unlock()
			m.established(conn)
			return
		}
		lastErr = err
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
		if core.KindOf(err) == core.KindAuthentication {
			break
		}
	}

	m.mu.Lock()
	if ctx.Err() != nil || m.explicit || m.closed {
		m.mu.Unlock()
		return
	}
	m.reconnCancel = nil
	m.mu.Unlock()
	err := fmt.Errorf("%w: %w", core.ErrReconnectExhausted, lastErr)
	m.logger.Error().Err(err).Int("attempts", m.Retries()).Msg("giving up")
	m.setStatus(StatusDisconnected, err)
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	m.status = s
	if s == StatusDisconnected {
		m.lastErr = err
	}
	m.mu.Unlock()
	m.notifyStatus(s, err)
}

func (m *Manager) notifyStatus(s Status, err error) {
	m.hooksMu.RLock()
	listeners := append([]func(Status, error){}, m.onStatus...)
	m.hooksMu.RUnlock()
	for _, fn := range listeners {
		fn(s, err)
	}
}
