package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Signage/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory relay room.
// It never closes adapter-owned resources.
type roomImpl struct {
	key    domain.RoomKey
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	byUser map[domain.UserID]map[SessionID]struct{}
}

func NewRoomService(key domain.RoomKey) RoomService {
	return &roomImpl{
		key:    key,
		bySID:  make(map[SessionID]MemberSession),
		byUser: make(map[domain.UserID]map[SessionID]struct{}),
	}
}

func (r *roomImpl) Key() domain.RoomKey { return r.key }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) HasMember(sid SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySID[sid]
	return ok
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) bool {
	u := ms.Meta().User.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		return false
	}
	r.bySID[sid] = ms
	if r.byUser[u] == nil {
		r.byUser[u] = make(map[SessionID]struct{})
	}
	r.byUser[u][sid] = struct{}{}
	log.Info().Str("module", "core.room").Str("room", string(r.key)).Str("sid", string(sid)).Str("user", string(u)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return false
	}
	u := ms.Meta().User.ID
	delete(r.byUser[u], sid)
	if len(r.byUser[u]) == 0 {
		delete(r.byUser, u)
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.key)).Str("sid", string(sid)).Msg("member removed")
	return true
}

func (r *roomImpl) Members() []SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionID, 0, len(r.bySID))
	for sid := range r.bySID {
		out = append(out, sid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UserSessions reports how many sessions of a user are in the room.
func (r *roomImpl) UserSessions(u domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[u])
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.key)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// MembersSnapshot lists one presence per user, earliest join first.
func (r *roomImpl) MembersSnapshot() []domain.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byUser := make(map[domain.UserID]domain.Presence, len(r.byUser))
	for _, ms := range r.bySID {
		p := ms.Meta().Presence()
		if cur, ok := byUser[p.UserID]; !ok || p.JoinedAt.Before(cur.JoinedAt) {
			byUser[p.UserID] = p
		}
	}
	out := make([]domain.Presence, 0, len(byUser))
	for _, p := range byUser {
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
