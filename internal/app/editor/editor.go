// Package editor is the per-login facade over the sync core: one session
// channel, one set of room subscriptions, one optimistic engine.
package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/app/conflict"
	"github.com/dkeye/Signage/internal/app/optimistic"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
	"github.com/dkeye/Signage/internal/rooms"
	"github.com/dkeye/Signage/internal/session"
)

// Listener callbacks run on the goroutine that caused the change. Nil fields
// are skipped.
type Listener struct {
	PlaylistChanged func(id domain.PlaylistID, p *domain.Playlist)
	ConflictRaised  func(rec *conflict.Record)
	PresenceChanged func(key domain.RoomKey, present []domain.Presence)
	StatusChanged   func(s session.Status, err error)
	// Notice receives error frames sent by the relay.
	Notice func(n *protocol.ErrorNotice)
}

type Options struct {
	User           *domain.User
	Session        session.Options
	RequestTimeout time.Duration
	// RefreshTimeout bounds the refetch run after a reconnect.
	RefreshTimeout time.Duration
}

type Editor struct {
	user   *domain.User
	sess   *session.Manager
	rooms  *rooms.Manager
	engine *optimistic.Engine

	refreshTimeout time.Duration

	mu       sync.RWMutex
	listener Listener
}

func New(store core.PlaylistStore, dialer session.Dialer, opts Options) (*Editor, error) {
	if opts.User == nil {
		return nil, core.E(core.KindAuthentication, "editor.new", errors.New("no user"))
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}
	sess := session.New(opts.Session, dialer)
	ed := &Editor{
		user:           opts.User,
		sess:           sess,
		rooms:          rooms.NewManager(sess),
		engine:         optimistic.New(store, sess, optimistic.Options{Actor: opts.User.ID, RequestTimeout: opts.RequestTimeout}),
		refreshTimeout: opts.RefreshTimeout,
	}
	sess.SetHandler(ed.dispatch)
	sess.SetPrelude(ed.rooms.JoinFrames)
	sess.OnConnected(ed.connected)
	sess.OnStatus(func(s session.Status, err error) {
		if l := ed.hooks(); l.StatusChanged != nil {
			l.StatusChanged(s, err)
		}
	})
	ed.engine.SetHooks(optimistic.Hooks{
		OnChange: func(id domain.PlaylistID, p *domain.Playlist) {
			if l := ed.hooks(); l.PlaylistChanged != nil {
				l.PlaylistChanged(id, p)
			}
		},
		OnConflict: func(rec *conflict.Record) {
			if l := ed.hooks(); l.ConflictRaised != nil {
				l.ConflictRaised(rec)
			}
		},
	})
	return ed, nil
}

func (ed *Editor) SetListener(l Listener) {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	ed.listener = l
}

func (ed *Editor) hooks() Listener {
	ed.mu.RLock()
	defer ed.mu.RUnlock()
	return ed.listener
}

func (ed *Editor) User() *domain.User { return ed.user }

// Start subscribes to the user's own room and connects. An authentication
// error leaves the editor usable in local-only mode.
func (ed *Editor) Start(ctx context.Context) error {
	if err := ed.rooms.Join(domain.UserRoom(ed.user.ID)); err != nil {
		return err
	}
	return ed.sess.Connect(ctx)
}

func (ed *Editor) Status() session.Status    { return ed.sess.Status() }
func (ed *Editor) Session() *session.Manager { return ed.sess }

// OpenPlaylist joins the playlist's room and loads it.
func (ed *Editor) OpenPlaylist(ctx context.Context, id domain.PlaylistID) (*domain.Playlist, error) {
	if err := ed.rooms.Join(domain.PlaylistRoom(id)); err != nil {
		return nil, err
	}
	p, err := ed.engine.Load(ctx, id)
	if err != nil {
		_ = ed.rooms.Leave(domain.PlaylistRoom(id))
		return nil, err
	}
	return p, nil
}

// ClosePlaylist leaves the room and drops the cached playlist. In-flight
// mutations are not rolled back.
func (ed *Editor) ClosePlaylist(id domain.PlaylistID) error {
	err := ed.rooms.Leave(domain.PlaylistRoom(id))
	ed.engine.Forget(id)
	return err
}

// Logout ends the session and forgets all local state.
func (ed *Editor) Logout() {
	ed.sess.Close()
	ed.rooms.Reset()
	ed.engine.Reset()
	log.Info().Str("module", "app.editor").Str("user", string(ed.user.ID)).Msg("logged out")
}

func (ed *Editor) Playlist(id domain.PlaylistID) (*domain.Playlist, bool) { return ed.engine.Get(id) }
func (ed *Editor) Presence(id domain.PlaylistID) []domain.Presence {
	return ed.rooms.Presence(domain.PlaylistRoom(id))
}
func (ed *Editor) Conflict(id domain.PlaylistID) (*conflict.Record, bool) { return ed.engine.Conflict(id) }
func (ed *Editor) Conflicts() []*conflict.Record                         { return ed.engine.Conflicts() }
func (ed *Editor) State(id domain.PlaylistID) conflict.State             { return ed.engine.State(id) }

func (ed *Editor) Resolve(ctx context.Context, id domain.PlaylistID, choice conflict.Choice) (*domain.Playlist, error) {
	return ed.engine.Resolve(ctx, id, choice)
}

func (ed *Editor) Dismiss(ctx context.Context, id domain.PlaylistID) bool {
	return ed.engine.Dismiss(ctx, id)
}

func (ed *Editor) CreatePlaylist(ctx context.Context, req domain.NewPlaylist) (*domain.Playlist, error) {
	return ed.engine.CreatePlaylist(ctx, req)
}

func (ed *Editor) DeletePlaylist(ctx context.Context, id domain.PlaylistID) error {
	if err := ed.engine.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	return ed.rooms.Leave(domain.PlaylistRoom(id))
}

func (ed *Editor) Rename(ctx context.Context, id domain.PlaylistID, name string) (*domain.Playlist, error) {
	return ed.engine.UpdateMetadata(ctx, id, domain.PlaylistPatch{Name: &name})
}

func (ed *Editor) UpdateMetadata(ctx context.Context, id domain.PlaylistID, patch domain.PlaylistPatch) (*domain.Playlist, error) {
	return ed.engine.UpdateMetadata(ctx, id, patch)
}

func (ed *Editor) AddItem(ctx context.Context, id domain.PlaylistID, req domain.NewItem) (*domain.PlaylistItem, error) {
	return ed.engine.AddItem(ctx, id, req)
}

func (ed *Editor) RemoveItem(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID) (*domain.Playlist, error) {
	return ed.engine.RemoveItem(ctx, id, itemID)
}

func (ed *Editor) Reorder(ctx context.Context, id domain.PlaylistID, order []domain.ItemOrder) (*domain.Playlist, error) {
	return ed.engine.Reorder(ctx, id, order)
}

func (ed *Editor) UpdateItemSettings(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID, patch domain.ItemPatch) (*domain.Playlist, error) {
	return ed.engine.UpdateItemSettings(ctx, id, itemID, patch)
}

func (ed *Editor) AssignScreens(ctx context.Context, id domain.PlaylistID, screens []domain.ScreenID) (*domain.Playlist, error) {
	return ed.engine.AssignScreens(ctx, id, screens)
}

func (ed *Editor) UnassignScreens(ctx context.Context, id domain.PlaylistID, screens []domain.ScreenID) (*domain.Playlist, error) {
	return ed.engine.UnassignScreens(ctx, id, screens)
}

func (ed *Editor) connected(reconnected bool) {
	if !reconnected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ed.refreshTimeout)
	defer cancel()
	if err := ed.engine.Refresh(ctx); err != nil {
		log.Warn().Str("module", "app.editor").Err(err).Msg("refresh after reconnect incomplete")
	}
}

func (ed *Editor) dispatch(frame []byte) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		log.Warn().Str("module", "app.editor").Err(err).Msg("drop malformed frame")
		return
	}
	switch e := ev.(type) {
	case *protocol.UserJoined, *protocol.UserLeft:
		key, changed := ed.rooms.HandlePresence(ev)
		if !changed {
			return
		}
		if l := ed.hooks(); l.PresenceChanged != nil {
			l.PresenceChanged(key, ed.rooms.Presence(key))
		}
	case protocol.PlaylistEvent:
		ed.engine.ApplyRemote(e)
	case *protocol.ErrorNotice:
		log.Warn().Str("module", "app.editor").Str("code", e.Code).Str("message", e.Message).Msg("relay notice")
		if l := ed.hooks(); l.Notice != nil {
			l.Notice(e)
		}
	case *protocol.Heartbeat:
	case *protocol.Unknown:
		log.Debug().Str("module", "app.editor").Str("type", string(e.Type)).Msg("ignore unknown event")
	default:
		log.Debug().Str("module", "app.editor").Str("type", string(ev.EventType())).Msg("ignore event")
	}
}
