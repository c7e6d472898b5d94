// Package optimistic applies playlist edits to the local projection before
// the authoritative store confirms them, and reconciles or rolls back once
// the store answers.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/app/conflict"
	"github.com/dkeye/Signage/internal/app/projection"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
)

// Emitter forwards confirmed changes to collaborators.
type Emitter interface {
	Emit(ev protocol.Event) error
}

// Hooks are invoked outside the engine lock.
type Hooks struct {
	// OnChange receives the new visible state; p is nil when the playlist
	// is no longer cached.
	OnChange   func(id domain.PlaylistID, p *domain.Playlist)
	OnConflict func(rec *conflict.Record)
}

type Options struct {
	Actor          domain.UserID
	RequestTimeout time.Duration
}

type Engine struct {
	store core.PlaylistStore
	emit  Emitter
	opts  Options

	mu      sync.Mutex
	proj    *projection.Projection
	det     *conflict.Detector
	seq     map[domain.PlaylistID]uint64
	pending pendingTable
	stale   map[domain.PlaylistID]bool
	// chosen holds resolutions not yet written back to the store.
	chosen map[domain.PlaylistID]resolution
	hooks  Hooks

	now func() time.Time
}

// New builds an engine. emit may be nil for local-only operation.
func New(store core.PlaylistStore, emit Emitter, opts Options) *Engine {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Engine{
		store:   store,
		emit:    emit,
		opts:    opts,
		proj:    projection.New(),
		det:     conflict.NewDetector(),
		seq:     make(map[domain.PlaylistID]uint64),
		pending: make(pendingTable),
		stale:   make(map[domain.PlaylistID]bool),
		chosen:  make(map[domain.PlaylistID]resolution),
		now:     time.Now,
	}
}

func (e *Engine) SetHooks(h Hooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = h
}

// SetActor changes the identity stamped on outbound events.
func (e *Engine) SetActor(actor domain.UserID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.Actor = actor
}

// notice is a hook call deferred until the lock is released.
type notice func(h Hooks)

func changed(id domain.PlaylistID, p *domain.Playlist) notice {
	return func(h Hooks) {
		if h.OnChange != nil {
			h.OnChange(id, p)
		}
	}
}

func raised(rec *conflict.Record) notice {
	return func(h Hooks) {
		if h.OnConflict != nil {
			h.OnConflict(rec)
		}
	}
}

func (e *Engine) unlockAndNotify(ns ...notice) {
	h := e.hooks
	e.mu.Unlock()
	for _, n := range ns {
		n(h)
	}
}

func (e *Engine) Get(id domain.PlaylistID) (*domain.Playlist, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proj.Get(id)
}

// Playlists returns copies of every cached playlist, ordered by id.
func (e *Engine) Playlists() []*domain.Playlist {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Playlist, 0, e.proj.Len())
	for _, id := range e.proj.IDs() {
		p, _ := e.proj.Get(id)
		out = append(out, p)
	}
	return out
}

func (e *Engine) State(id domain.PlaylistID) conflict.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.det.State(id)
}

// Pending lists in-flight mutations of id, oldest first.
func (e *Engine) Pending(id domain.PlaylistID) []Pending {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Pending, 0, len(e.pending[id]))
	for _, p := range e.pending[id] {
		out = append(out, p.copy())
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Seq < out[j-1].Seq; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (e *Engine) Conflict(id domain.PlaylistID) (*conflict.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.det.Record(id)
}

func (e *Engine) Conflicts() []*conflict.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.det.Records()
}

// Stale reports whether id is due for a refetch once it settles.
func (e *Engine) Stale(id domain.PlaylistID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stale[id]
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.RequestTimeout)
}

// storeErr classifies a failed store call.
func storeErr(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && core.KindOf(err) != core.KindTimeout {
		return core.E(core.KindTimeout, op, err)
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	return core.E(core.KindOf(err), op, err)
}

// Load fetches id from the store into the projection. For an entity with
// mutations in flight the fetch is deferred and the cached copy returned. A
// fetch that raced a local mutation is discarded in favour of the committed
// state.
func (e *Engine) Load(ctx context.Context, id domain.PlaylistID) (*domain.Playlist, error) {
	e.mu.Lock()
	seq := e.seq[id]
	if e.det.State(id) != conflict.Clean {
		e.stale[id] = true
		cur, ok := e.proj.Get(id)
		e.mu.Unlock()
		if !ok {
			return nil, core.E(core.KindNotFound, "optimistic.load", fmt.Errorf("playlist %s", id))
		}
		return cur, nil
	}
	e.mu.Unlock()

	rctx, cancel := e.withTimeout(ctx)
	defer cancel()
	p, err := e.store.GetPlaylist(rctx, id)
	if err != nil {
		return nil, storeErr(rctx, "optimistic.load", err)
	}

	e.mu.Lock()
	if e.det.State(id) != conflict.Clean {
		e.stale[id] = true
		cur, ok := e.proj.Get(id)
		e.mu.Unlock()
		if !ok {
			return p, nil
		}
		return cur, nil
	}
	if e.seq[id] != seq {
		cur, ok := e.proj.Get(id)
		e.mu.Unlock()
		if !ok {
			return p, nil
		}
		log.Debug().Str("module", "app.optimistic").Str("playlist", string(id)).Msg("fetch raced a local mutation; result discarded")
		return cur, nil
	}
	delete(e.stale, id)
	e.proj.Put(p)
	out, _ := e.proj.Get(id)
	e.unlockAndNotify(changed(id, out.Clone()))
	return out, nil
}

// Refresh refetches every Clean entity in ids, or every cached entity when ids
// is empty. Entities with mutations in flight are marked stale instead.
func (e *Engine) Refresh(ctx context.Context, ids ...domain.PlaylistID) error {
	if len(ids) == 0 {
		e.mu.Lock()
		ids = e.proj.IDs()
		e.mu.Unlock()
	}
	var errs []error
	for _, id := range ids {
		if _, err := e.Load(ctx, id); err != nil {
			log.Warn().Str("module", "app.optimistic").Str("playlist", string(id)).Err(err).Msg("refresh failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CreatePlaylist is not optimistic: the store assigns the id.
func (e *Engine) CreatePlaylist(ctx context.Context, req domain.NewPlaylist) (*domain.Playlist, error) {
	if err := validateStruct("optimistic.create", req); err != nil {
		return nil, err
	}
	rctx, cancel := e.withTimeout(ctx)
	defer cancel()
	p, err := e.store.CreatePlaylist(rctx, req)
	if err != nil {
		return nil, storeErr(rctx, "optimistic.create", err)
	}
	e.mu.Lock()
	e.proj.Put(p)
	out, _ := e.proj.Get(p.ID)
	e.unlockAndNotify(changed(p.ID, out.Clone()))
	log.Info().Str("module", "app.optimistic").Str("playlist", string(p.ID)).Msg("playlist created")
	return out, nil
}

// mutation describes one optimistic operation.
type mutation struct {
	id     domain.PlaylistID
	kind   Kind
	fields []string
	// local applies the optimistic delta to a copy of the cached state. An
	// error aborts the mutation with nothing sent.
	local func(p *domain.Playlist) error
	// remote calls the store. commit folds the authoritative answer into the
	// cached state; ev is broadcast once committed.
	remote func(ctx context.Context) (commit func(p *domain.Playlist), ev protocol.PlaylistEvent, err error)
}

func replaceWith(result *domain.Playlist) func(p *domain.Playlist) {
	return func(p *domain.Playlist) {
		c := result.Clone()
		c.SortItems()
		*p = *c
	}
}

func (e *Engine) do(ctx context.Context, m mutation) (*domain.Playlist, error) {
	op := "optimistic." + string(m.kind)

	e.mu.Lock()
	if e.det.State(m.id) == conflict.Conflicted {
		e.mu.Unlock()
		return nil, core.E(core.KindConflict, op, fmt.Errorf("playlist %s has an unresolved conflict", m.id))
	}
	cur, ok := e.proj.Get(m.id)
	if !ok {
		e.mu.Unlock()
		return nil, core.E(core.KindNotFound, op, fmt.Errorf("playlist %s is not open", m.id))
	}
	snapshot := cur.Clone()
	if err := m.local(cur); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	var visible *domain.Playlist
	if m.kind == KindDelete {
		e.proj.Delete(m.id)
	} else {
		e.proj.Put(cur)
		visible, _ = e.proj.Get(m.id)
	}
	e.seq[m.id]++
	rctx, cancel := e.withTimeout(ctx)
	p := &Pending{
		PlaylistID: m.id,
		Kind:       m.kind,
		Seq:        e.seq[m.id],
		Snapshot:   snapshot,
		Fields:     m.fields,
		StartedAt:  e.now(),
		cancel:     cancel,
	}
	if old := e.pending.put(p); old != nil {
		log.Debug().Str("module", "app.optimistic").Str("playlist", string(m.id)).Str("kind", string(m.kind)).Uint64("seq", old.Seq).Msg("pending mutation superseded")
	}
	e.det.Begin(m.id)
	e.unlockAndNotify(changed(m.id, visible))

	commit, ev, err := m.remote(rctx)
	if err != nil {
		err = storeErr(rctx, op, err)
	}
	cancel()

	e.mu.Lock()
	e.pending.release(p)
	if p.forgotten {
		e.mu.Unlock()
		log.Debug().Str("module", "app.optimistic").Str("playlist", string(m.id)).Str("kind", string(m.kind)).Msg("result for forgotten playlist discarded")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrForgotten, err)
		}
		return nil, core.ErrForgotten
	}
	e.det.Settle(m.id)

	if p.Seq != e.seq[m.id] {
		// A newer mutation owns the visible state. A failure here means part
		// of that state was never committed, so refetch once things settle.
		if err != nil {
			e.stale[m.id] = true
		}
		refetch := e.settledStaleLocked(m.id)
		e.mu.Unlock()
		log.Debug().Str("module", "app.optimistic").Str("playlist", string(m.id)).Uint64("seq", p.Seq).Err(err).Msg("stale result discarded")
		if refetch {
			e.refetch(ctx, m.id)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrSuperseded, err)
		}
		return nil, core.ErrSuperseded
	}

	if err != nil {
		e.proj.Put(snapshot)
		restored, _ := e.proj.Get(m.id)
		refetch := e.settledStaleLocked(m.id)
		e.unlockAndNotify(changed(m.id, restored))
		log.Warn().Str("module", "app.optimistic").Str("playlist", string(m.id)).Str("kind", string(m.kind)).Err(err).Msg("mutation rolled back")
		if refetch {
			e.refetch(ctx, m.id)
		}
		return nil, err
	}

	var out *domain.Playlist
	if m.kind == KindDelete {
		e.det.Forget(m.id)
		delete(e.seq, m.id)
		delete(e.stale, m.id)
		delete(e.chosen, m.id)
	} else if ref, ok := e.proj.Ref(m.id); ok {
		commit(ref)
		out, _ = e.proj.Get(m.id)
	}
	if ev != nil {
		ev.Stamp(e.opts.Actor)
	}
	refetch := e.settledStaleLocked(m.id)
	var visibleOut *domain.Playlist
	if out != nil {
		visibleOut = out.Clone()
	}
	e.unlockAndNotify(changed(m.id, visibleOut))

	if ev != nil && e.emit != nil {
		if err := e.emit.Emit(ev); err != nil {
			log.Warn().Str("module", "app.optimistic").Str("type", string(ev.EventType())).Err(err).Msg("emit failed")
		}
	}
	if refetch {
		e.refetch(ctx, m.id)
		if cur, ok := e.Get(m.id); ok {
			out = cur
		}
	}
	return out, nil
}

// settledStaleLocked reports whether id just became Clean with a refetch due.
func (e *Engine) settledStaleLocked(id domain.PlaylistID) bool {
	return e.stale[id] && e.det.State(id) == conflict.Clean
}

// refetch reloads id, first writing back a resolution chosen while mutations
// were still in flight.
func (e *Engine) refetch(ctx context.Context, id domain.PlaylistID) {
	e.mu.Lock()
	_, due := e.chosen[id]
	e.mu.Unlock()
	var err error
	if due {
		_, err = e.writeBack(ctx, id)
	} else {
		_, err = e.Load(ctx, id)
	}
	if err != nil {
		log.Warn().Str("module", "app.optimistic").Str("playlist", string(id)).Err(err).Msg("refetch failed")
	}
}

// ApplyRemote folds an event from another session into the projection and
// reports whether visible state changed. The relay never returns a frame to
// the session that sent it, so events by the same user come from another of
// that user's sessions and are applied like any other. Events for playlists
// not cached, or for entities that are Pending or Conflicted are not applied;
// the latter two go through conflict detection, and a suppressed event marks
// the entity for a refetch once the conflict closes.
func (e *Engine) ApplyRemote(ev protocol.Event) bool {
	pe, ok := ev.(protocol.PlaylistEvent)
	if !ok {
		return false
	}
	id := pe.Playlist()

	e.mu.Lock()
	cur, ok := e.proj.Ref(id)
	if !ok {
		e.mu.Unlock()
		return false
	}
	var base *domain.Playlist
	if p := e.pending.oldest(id); p != nil {
		base = p.Snapshot
	}
	rec, isNew := e.det.Observe(cur, base, e.opts.Actor, pe)
	if isNew {
		e.unlockAndNotify(raised(rec))
		return false
	}
	if rec != nil {
		e.stale[id] = true
		e.mu.Unlock()
		return false
	}
	protocol.Apply(cur, pe)
	out, _ := e.proj.Get(id)
	e.unlockAndNotify(changed(id, out))
	log.Debug().Str("module", "app.optimistic").Str("playlist", string(id)).Str("type", string(ev.EventType())).Msg("remote event applied")
	return true
}

// Forget drops everything cached for id. Requests in flight are not rolled
// back; their results are discarded.
func (e *Engine) Forget(id domain.PlaylistID) {
	e.mu.Lock()
	for _, p := range e.pending[id] {
		p.forgotten = true
	}
	delete(e.pending, id)
	e.det.Forget(id)
	e.proj.Delete(id)
	delete(e.stale, id)
	delete(e.chosen, id)
	e.unlockAndNotify(changed(id, nil))
}

// Reset forgets every playlist.
func (e *Engine) Reset() {
	e.mu.Lock()
	ids := e.proj.IDs()
	for _, byKind := range e.pending {
		for _, p := range byKind {
			p.forgotten = true
		}
	}
	clear(e.pending)
	e.det.Reset()
	e.proj.Reset()
	clear(e.stale)
	clear(e.chosen)
	ns := make([]notice, 0, len(ids))
	for _, id := range ids {
		ns = append(ns, changed(id, nil))
	}
	e.unlockAndNotify(ns...)
}

func tempItemID() domain.ItemID {
	return domain.ItemID("tmp-" + uuid.NewString())
}
