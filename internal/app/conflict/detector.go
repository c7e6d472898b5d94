// Package conflict decides when a remote change collides with an unconfirmed
// local one and resolves the collision on the user's explicit choice.
//
// Each playlist moves through three states:
//
//	Clean      no local mutation in flight; remote events apply directly
//	Pending    at least one local mutation awaits the store
//	Conflicted a remote event arrived while Pending; a Record is held
//	           until Resolve or Dismiss
//
// Conflicts are never resolved automatically. The Detector is not safe for
// concurrent use; the optimistic engine guards it.
package conflict

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
)

type State string

const (
	Clean      State = "clean"
	Pending    State = "pending"
	Conflicted State = "conflicted"
)

type Choice string

const (
	AcceptLocal  Choice = "accept_local"
	AcceptRemote Choice = "accept_remote"
	Merge        Choice = "merge"
)

func ParseChoice(s string) (Choice, error) {
	switch c := Choice(s); c {
	case AcceptLocal, AcceptRemote, Merge:
		return c, nil
	}
	return "", core.E(core.KindValidation, "conflict.choice", fmt.Errorf("unknown resolution %q", s))
}

// Record describes one detected conflict.
type Record struct {
	PlaylistID  domain.PlaylistID
	HasConflict bool
	LocalActor  domain.UserID
	RemoteActor domain.UserID
	// Base is the state before the local mutation was applied.
	Base *domain.Playlist
	// Local is the optimistic state at detection time.
	Local *domain.Playlist
	// Remote is Base with the remote event folded in.
	Remote *domain.Playlist
	// RemotePatch holds only the fields the remote event touched.
	RemotePatch domain.PlaylistPatch
	Category    domain.ChangeType
	EventType   protocol.Type
	DetectedAt  time.Time
	// Suppressed counts remote events dropped while the record was open.
	Suppressed int
}

func (r *Record) clone() *Record {
	c := *r
	c.Base = r.Base.Clone()
	c.Local = r.Local.Clone()
	c.Remote = r.Remote.Clone()
	return &c
}

type Detector struct {
	pending map[domain.PlaylistID]int
	records map[domain.PlaylistID]*Record
	now     func() time.Time
}

func NewDetector() *Detector {
	return &Detector{
		pending: make(map[domain.PlaylistID]int),
		records: make(map[domain.PlaylistID]*Record),
		now:     time.Now,
	}
}

func (d *Detector) State(id domain.PlaylistID) State {
	if _, ok := d.records[id]; ok {
		return Conflicted
	}
	if d.pending[id] > 0 {
		return Pending
	}
	return Clean
}

// Begin marks a local mutation in flight for id.
func (d *Detector) Begin(id domain.PlaylistID) {
	d.pending[id]++
}

// Settle marks one in-flight mutation of id as finished.
func (d *Detector) Settle(id domain.PlaylistID) {
	if d.pending[id] <= 1 {
		delete(d.pending, id)
		return
	}
	d.pending[id]--
}

// Observe classifies a remote event. When the entity is Clean it returns
// (nil, false) and the caller applies the event. When Pending a record is
// opened and returned with raised set. When already Conflicted the event is
// suppressed.
func (d *Detector) Observe(
	local, base *domain.Playlist,
	localActor domain.UserID,
	ev protocol.PlaylistEvent,
) (rec *Record, raised bool) {
	id := ev.Playlist()
	if r, ok := d.records[id]; ok {
		r.Suppressed++
		log.Debug().Str("module", "app.conflict").Str("playlist", string(id)).Str("type", string(ev.EventType())).Int("suppressed", r.Suppressed).Msg("event suppressed")
		return r.clone(), false
	}
	if d.pending[id] == 0 {
		return nil, false
	}

	category := ev.Category()
	remote := base.Clone()
	if remote == nil {
		remote = local.Clone()
	}
	protocol.Apply(remote, ev)
	var patch domain.PlaylistPatch
	if upd, ok := ev.(*protocol.PlaylistUpdated); ok {
		patch = upd.Patch
	} else {
		patch = domain.PatchOf(remote, category)
	}

	r := &Record{
		PlaylistID:  id,
		HasConflict: true,
		LocalActor:  localActor,
		RemoteActor: ev.Actor(),
		Base:        base.Clone(),
		Local:       local.Clone(),
		Remote:      remote,
		RemotePatch: patch,
		Category:    category,
		EventType:   ev.EventType(),
		DetectedAt:  d.now(),
	}
	d.records[id] = r
	log.Warn().Str("module", "app.conflict").Str("playlist", string(id)).Str("category", string(category)).Str("remote_actor", string(ev.Actor())).Msg("conflict detected")
	return r.clone(), true
}

// Record returns a copy of the open record for id.
func (d *Detector) Record(id domain.PlaylistID) (*Record, bool) {
	r, ok := d.records[id]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// Records lists open records.
func (d *Detector) Records() []*Record {
	out := make([]*Record, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r.clone())
	}
	return out
}

// Resolve computes the state chosen by the user from current and closes the
// record. current is not modified.
func (d *Detector) Resolve(id domain.PlaylistID, choice Choice, current *domain.Playlist) (*domain.Playlist, error) {
	r, ok := d.records[id]
	if !ok {
		return nil, core.E(core.KindNotFound, "conflict.resolve", fmt.Errorf("no conflict for playlist %s", id))
	}
	if current == nil {
		current = r.Local
	}
	out := current.Clone()
	switch choice {
	case AcceptLocal:
	case AcceptRemote:
		domain.PatchOf(r.Remote, r.Category).ApplyCategory(out, r.Category)
	case Merge:
		merge(out, r)
	default:
		return nil, core.E(core.KindValidation, "conflict.resolve", fmt.Errorf("unknown resolution %q", choice))
	}
	delete(d.records, id)
	log.Info().Str("module", "app.conflict").Str("playlist", string(id)).Str("choice", string(choice)).Msg("conflict resolved")
	return out, nil
}

// Dismiss closes the record for id without changing any state.
func (d *Detector) Dismiss(id domain.PlaylistID) bool {
	if _, ok := d.records[id]; !ok {
		return false
	}
	delete(d.records, id)
	log.Info().Str("module", "app.conflict").Str("playlist", string(id)).Msg("conflict dismissed")
	return true
}

// Forget drops all tracking for id.
func (d *Detector) Forget(id domain.PlaylistID) {
	delete(d.records, id)
	delete(d.pending, id)
}

func (d *Detector) Reset() {
	clear(d.records)
	clear(d.pending)
}
