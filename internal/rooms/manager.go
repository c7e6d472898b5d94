// Package rooms tracks the broadcast scopes a client has joined and the users
// present in each of them.
package rooms

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
)

// Channel is the session channel rooms are subscribed over. While it is down
// no frames are sent; JoinFrames covers every room on the next connect.
type Channel interface {
	Emit(ev protocol.Event) error
	Connected() bool
}

type room struct {
	key     domain.RoomKey
	present map[domain.UserID]domain.Presence
}

type Manager struct {
	mu    sync.RWMutex
	ch    Channel
	rooms map[domain.RoomKey]*room
}

func NewManager(ch Channel) *Manager {
	return &Manager{ch: ch, rooms: make(map[domain.RoomKey]*room)}
}

func joinFrame(key domain.RoomKey) (protocol.Event, error) {
	kind, id, err := domain.ParseRoomKey(string(key))
	if err != nil {
		return nil, core.E(core.KindValidation, "rooms.join", fmt.Errorf("%q: %w", key, err))
	}
	if kind == domain.RoomUser {
		return &protocol.JoinUser{UserID: domain.UserID(id)}, nil
	}
	return &protocol.JoinPlaylist{PlaylistID: domain.PlaylistID(id)}, nil
}

func leaveFrame(key domain.RoomKey) protocol.Event {
	if key.Kind() == domain.RoomUser {
		return &protocol.LeaveUser{UserID: domain.UserID(key.ID())}
	}
	return &protocol.LeavePlaylist{PlaylistID: key.PlaylistID()}
}

// Join subscribes to key. Joining an already joined room is a no-op.
func (m *Manager) Join(key domain.RoomKey) error {
	frame, err := joinFrame(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.rooms[key]; ok {
		m.mu.Unlock()
		return nil
	}
	m.rooms[key] = &room{key: key, present: make(map[domain.UserID]domain.Presence)}
	m.mu.Unlock()

	if !m.ch.Connected() {
		log.Info().Str("module", "rooms").Str("room", string(key)).Msg("joined offline")
		return nil
	}
	if err := m.ch.Emit(frame); err != nil {
		m.mu.Lock()
		delete(m.rooms, key)
		m.mu.Unlock()
		return err
	}
	log.Info().Str("module", "rooms").Str("room", string(key)).Msg("joined")
	return nil
}

// Leave unsubscribes from key and forgets its presence.
func (m *Manager) Leave(key domain.RoomKey) error {
	m.mu.Lock()
	if _, ok := m.rooms[key]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.rooms, key)
	m.mu.Unlock()

	log.Info().Str("module", "rooms").Str("room", string(key)).Msg("left")
	if !m.ch.Connected() {
		return nil
	}
	return m.ch.Emit(leaveFrame(key))
}

// JoinFrames clears presence of every joined room and returns their join
// frames. The session sends them first on every reconnect.
func (m *Manager) JoinFrames() []protocol.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.keysLocked()
	out := make([]protocol.Event, 0, len(keys))
	for _, k := range keys {
		clear(m.rooms[k].present)
		if f, err := joinFrame(k); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// Rejoin re-sends a join for every joined room.
func (m *Manager) Rejoin() error {
	frames := m.JoinFrames()
	for _, f := range frames {
		if err := m.ch.Emit(f); err != nil {
			return err
		}
	}
	log.Info().Str("module", "rooms").Int("rooms", len(frames)).Msg("rejoined")
	return nil
}

// Reset drops every room locally without sending frames.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.rooms)
}

// HandlePresence applies a presence event and reports the affected room.
// Events for rooms that are not joined, and non-presence events, are ignored.
func (m *Manager) HandlePresence(ev protocol.Event) (domain.RoomKey, bool) {
	var (
		pc     protocol.PresenceChange
		joined bool
	)
	switch e := ev.(type) {
	case *protocol.UserJoined:
		pc, joined = e.PresenceChange, true
	case *protocol.UserLeft:
		pc = e.PresenceChange
	default:
		return "", false
	}
	key := domain.PlaylistRoom(pc.PlaylistID)

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[key]
	if !ok {
		return "", false
	}
	if !joined {
		if _, ok := r.present[pc.UserID]; !ok {
			return "", false
		}
		delete(r.present, pc.UserID)
		return key, true
	}
	cur, ok := r.present[pc.UserID]
	if ok {
		if pc.UserEmail == "" || pc.UserEmail == cur.Email {
			return "", false
		}
		cur.Email = pc.UserEmail
		r.present[pc.UserID] = cur
		return key, true
	}
	r.present[pc.UserID] = domain.Presence{UserID: pc.UserID, Email: pc.UserEmail, JoinedAt: pc.Timestamp}
	return key, true
}

// Presence lists the users present in key, earliest first.
func (m *Manager) Presence(key domain.RoomKey) []domain.Presence {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[key]
	if !ok {
		return nil
	}
	out := make([]domain.Presence, 0, len(r.present))
	for _, p := range r.present {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (m *Manager) IsJoined(key domain.RoomKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[key]
	return ok
}

// Joined lists joined room keys in lexical order.
func (m *Manager) Joined() []domain.RoomKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keysLocked()
}

func (m *Manager) keysLocked() []domain.RoomKey {
	out := make([]domain.RoomKey, 0, len(m.rooms))
	for k := range m.rooms {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
