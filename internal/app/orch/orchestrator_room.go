package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
)

// Attach registers a freshly authenticated session.
func (o *Orchestrator) Attach(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	o.Registry.Bind(sid, sess, cancel)
	if o.Metrics != nil {
		o.Metrics.Connections.Inc()
	}
}

// Join adds sid to key. A user room may only be joined by its own user.
// Joining a playlist room sends the joiner the users already present and
// announces the joiner when this is the user's first session in the room.
func (o *Orchestrator) Join(sid core.SessionID, key domain.RoomKey) error {
	kind, id, err := domain.ParseRoomKey(string(key))
	if err != nil {
		return core.E(core.KindValidation, "orch.join", err)
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return core.E(core.KindNotFound, "orch.join", fmt.Errorf("session %s", sid))
	}
	user := sess.Meta().User
	if kind == domain.RoomUser && domain.UserID(id) != user.ID {
		return core.E(core.KindAuthentication, "orch.join", fmt.Errorf("room %s belongs to another user", key))
	}
	if !o.Registry.AddRoom(sid, key) {
		return nil
	}

	room := o.Rooms.GetOrCreate(key)
	first := room.UserSessions(user.ID) == 0
	room.AddMember(sid, sess)
	o.syncRoomGauge()
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(key)).Bool("first", first).Msg("joined")

	if kind != domain.RoomPlaylist {
		return nil
	}
	pid := domain.PlaylistID(id)
	for _, p := range room.MembersSnapshot() {
		if p.UserID == user.ID {
			continue
		}
		frame, err := protocol.Encode(&protocol.UserJoined{PresenceChange: protocol.PresenceChange{
			UserID: p.UserID, UserEmail: p.Email, PlaylistID: pid, Timestamp: p.JoinedAt.UTC(),
		}})
		if err == nil {
			_ = sess.Signal().TrySend(frame)
		}
	}
	if first {
		o.announce(sid, key, &protocol.UserJoined{PresenceChange: protocol.PresenceChange{
			UserID: user.ID, UserEmail: user.Email, PlaylistID: pid, Timestamp: time.Now().UTC(),
		}})
	}
	return nil
}

// Leave removes sid from key. The departure is announced once the user has
// no session left in the room. Empty rooms are stopped.
func (o *Orchestrator) Leave(sid core.SessionID, key domain.RoomKey) error {
	if !o.Registry.RemoveRoom(sid, key) {
		return nil
	}
	room, ok := o.Rooms.Get(key)
	if !ok {
		return nil
	}
	sess, _ := o.Registry.GetSession(sid)
	room.RemoveMember(sid)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(key)).Msg("left")

	if sess != nil && key.Kind() == domain.RoomPlaylist {
		user := sess.Meta().User
		if room.UserSessions(user.ID) == 0 {
			o.announce(sid, key, &protocol.UserLeft{PresenceChange: protocol.PresenceChange{
				UserID: user.ID, UserEmail: user.Email, PlaylistID: key.PlaylistID(), Timestamp: time.Now().UTC(),
			}})
		}
	}
	if room.MemberCount() == 0 {
		o.Rooms.StopRoom(key)
	}
	o.syncRoomGauge()
	return nil
}

// OnDisconnect leaves every room of sid and forgets the session.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	if _, ok := o.Registry.GetSession(sid); !ok {
		return
	}
	for _, key := range o.Registry.RoomsOf(sid) {
		_ = o.Leave(sid, key)
	}
	o.Registry.Unbind(sid)
	if o.Policy != nil {
		o.Policy.Forget(sid)
	}
	if o.Metrics != nil {
		o.Metrics.Connections.Dec()
	}
}

// KickBySID closes the session's transport. Cleanup runs through
// OnDisconnect once the adapter's pumps stop.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	if o.Registry.Cancel(sid) && o.Metrics != nil {
		o.Metrics.Kicked.Inc()
	}
}

// EvictRoom kicks every local member of key.
func (o *Orchestrator) EvictRoom(key domain.RoomKey) {
	room, ok := o.Rooms.Get(key)
	if !ok {
		return
	}
	for _, sid := range room.Members() {
		o.KickBySID(sid)
	}
	o.Rooms.StopRoom(key)
	o.syncRoomGauge()
}

func (o *Orchestrator) announce(from core.SessionID, key domain.RoomKey, ev protocol.Event) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Str("module", "app.orch").Err(err).Msg("encode presence")
		return
	}
	o.broadcast(from, key, frame, ev.EventType())
	o.fanout(key, frame)
}

func (o *Orchestrator) syncRoomGauge() {
	if o.Metrics != nil {
		o.Metrics.Rooms.Set(float64(len(o.Rooms.List())))
	}
}
