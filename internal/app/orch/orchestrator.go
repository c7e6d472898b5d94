package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/app"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/metrics"
	"github.com/dkeye/Signage/internal/protocol"
)

// Fanout carries frames to the other relay instances sharing a room space.
type Fanout interface {
	Publish(ctx context.Context, key domain.RoomKey, frame core.Frame) error
}

var ErrNotJoined = errors.New("sender has not joined the playlist room")

// Orchestrator is the relay's room logic: membership, presence
// announcements and event fanout. Transport adapters feed it decoded frames.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Fanout   Fanout
	Metrics  *metrics.Metrics

	// PublishTimeout bounds a fanout publish. Zero means two seconds.
	PublishTimeout time.Duration
}

// Publish relays a playlist event sent by sid to the other members of the
// playlist's room. The actor is overwritten with the authenticated user.
func (o *Orchestrator) Publish(sid core.SessionID, ev protocol.PlaylistEvent) error {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return core.E(core.KindNotFound, "orch.publish", fmt.Errorf("session %s", sid))
	}
	key := domain.PlaylistRoom(ev.Playlist())
	if !o.Registry.InRoom(sid, key) {
		return core.E(core.KindValidation, "orch.publish", fmt.Errorf("%s: %w", key, ErrNotJoined))
	}
	ev.Stamp(sess.Meta().User.ID)
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	o.broadcast(sid, key, frame, ev.EventType())
	o.fanout(key, frame)
	return nil
}

// Inject relays an event produced outside any websocket session, such as a
// store reporting a committed write. Every member of the room receives it.
func (o *Orchestrator) Inject(ev protocol.PlaylistEvent) (int, error) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return 0, err
	}
	key := domain.PlaylistRoom(ev.Playlist())
	n := o.broadcast("", key, frame, ev.EventType())
	o.fanout(key, frame)
	return n, nil
}

// Deliver hands a frame received from another instance to local members.
func (o *Orchestrator) Deliver(key domain.RoomKey, frame core.Frame) {
	typ := protocol.Type("unknown")
	if ev, err := protocol.Decode(frame); err == nil {
		typ = ev.EventType()
	}
	o.broadcast("", key, frame, typ)
}

// Notify sends an error notice to one session.
func (o *Orchestrator) Notify(sid core.SessionID, err error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	code := core.KindOf(err).String()
	if o.Metrics != nil {
		o.Metrics.Rejected.WithLabelValues(code).Inc()
	}
	frame, encErr := protocol.Encode(&protocol.ErrorNotice{Code: code, Message: err.Error()})
	if encErr != nil {
		log.Error().Str("module", "app.orch").Err(encErr).Msg("encode notice")
		return
	}
	_ = sess.Signal().TrySend(frame)
}

func (o *Orchestrator) broadcast(from core.SessionID, key domain.RoomKey, frame core.Frame, typ protocol.Type) int {
	room, ok := o.Rooms.Get(key)
	if !ok {
		return 0
	}
	res := room.Broadcast(from, frame)
	if o.Metrics != nil {
		o.Metrics.Delivered.WithLabelValues(string(typ)).Add(float64(res.SendTo))
		o.Metrics.Dropped.Add(float64(len(res.Dropped)))
	}
	for _, slow := range res.Dropped {
		action := app.KickMember
		if o.Policy != nil {
			action = o.Policy.OnBackPressure(room, slow)
		}
		switch action {
		case app.KickMember:
			log.Warn().Str("module", "app.orch").Str("sid", string(slow.ID())).Str("room", string(key)).Msg("kicking slow member")
			o.KickBySID(slow.ID())
		case app.DropFrame, app.NoAction:
		}
	}
	return res.SendTo
}

func (o *Orchestrator) fanout(key domain.RoomKey, frame core.Frame) {
	if o.Fanout == nil {
		return
	}
	timeout := o.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	result := "ok"
	if err := o.Fanout.Publish(ctx, key, frame); err != nil {
		result = "error"
		log.Error().Str("module", "app.orch").Str("room", string(key)).Err(err).Msg("fanout publish")
	}
	if o.Metrics != nil {
		o.Metrics.Fanout.WithLabelValues("out", result).Inc()
	}
}
