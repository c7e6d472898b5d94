package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session core.MemberSession
	Rooms   map[domain.RoomKey]struct{}
	Cancel  context.CancelFunc
}

// Registry tracks every live relay session and the rooms it joined.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) Bind(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Session: sess, Rooms: make(map[domain.RoomKey]struct{}), Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(sess.Meta().User.ID)).Msg("bound session")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind drops sid and returns the rooms it was still in.
func (r *Registry) Unbind(sid core.SessionID) []domain.RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return sortedKeys(e.Rooms)
}

// AddRoom reports false when sid is unknown or already in key.
func (r *Registry) AddRoom(sid core.SessionID, key domain.RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if _, in := e.Rooms[key]; in {
		return false
	}
	e.Rooms[key] = struct{}{}
	return true
}

// RemoveRoom reports false when sid was not in key.
func (r *Registry) RemoveRoom(sid core.SessionID, key domain.RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if _, in := e.Rooms[key]; !in {
		return false
	}
	delete(e.Rooms, key)
	return true
}

func (r *Registry) InRoom(sid core.SessionID, key domain.RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	_, in := e.Rooms[key]
	return in
}

func (r *Registry) RoomsOf(sid core.SessionID) []domain.RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	return sortedKeys(e.Rooms)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel stops the session's pumps; the adapter then reports the disconnect.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func sortedKeys(m map[domain.RoomKey]struct{}) []domain.RoomKey {
	out := make([]domain.RoomKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
