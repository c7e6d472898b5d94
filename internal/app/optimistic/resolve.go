package optimistic

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/app/conflict"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
)

// resolution is the operator's choice for one category, waiting to be made
// authoritative.
type resolution struct {
	category domain.ChangeType
	want     *domain.Playlist
}

// Resolve closes the conflict on id with choice. The chosen state of the
// conflicting category is written back to the store and the projection is
// replaced by the store's answer, which also picks up remote events
// suppressed while the conflict was open. With mutations still in flight the
// write-back waits until they settle and the locally chosen state is
// returned.
func (e *Engine) Resolve(ctx context.Context, id domain.PlaylistID, choice conflict.Choice) (*domain.Playlist, error) {
	e.mu.Lock()
	rec, _ := e.det.Record(id)
	cur, _ := e.proj.Get(id)
	out, err := e.det.Resolve(id, choice, cur)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.proj.Put(out)
	e.stale[id] = true
	e.chosen[id] = resolution{category: rec.Category, want: out.Clone()}
	busy := e.det.State(id) != conflict.Clean
	e.unlockAndNotify(changed(id, out.Clone()))
	if busy {
		return out, nil
	}
	return e.writeBack(ctx, id)
}

// Dismiss closes the conflict on id without choosing. The entity is
// refetched so the remote changes held back by the conflict become visible.
func (e *Engine) Dismiss(ctx context.Context, id domain.PlaylistID) bool {
	e.mu.Lock()
	if !e.det.Dismiss(id) {
		e.mu.Unlock()
		return false
	}
	e.stale[id] = true
	refetch := e.settledStaleLocked(id)
	e.mu.Unlock()
	if refetch {
		e.refetch(ctx, id)
	}
	return true
}

// writeBack pushes the pending resolution of id to the store and adopts the
// store's state.
func (e *Engine) writeBack(ctx context.Context, id domain.PlaylistID) (*domain.Playlist, error) {
	const op = "optimistic.resolve"
	e.mu.Lock()
	res, ok := e.chosen[id]
	seq := e.seq[id]
	actor := e.opts.Actor
	e.mu.Unlock()
	if !ok {
		return e.Load(ctx, id)
	}

	rctx, cancel := e.withTimeout(ctx)
	final, wrote, err := e.push(rctx, id, res)
	if err != nil {
		err = storeErr(rctx, op, err)
	}
	cancel()

	e.mu.Lock()
	if cur, ok := e.chosen[id]; ok && cur.want == res.want {
		delete(e.chosen, id)
	}
	if err != nil {
		e.mu.Unlock()
		log.Warn().Str("module", "app.optimistic").Str("playlist", string(id)).Err(err).Msg("resolution write-back failed")
		if _, lerr := e.Load(ctx, id); lerr != nil {
			log.Warn().Str("module", "app.optimistic").Str("playlist", string(id)).Err(lerr).Msg("refetch failed")
		}
		return nil, err
	}
	if _, cached := e.proj.Get(id); !cached {
		e.mu.Unlock()
		return final, nil
	}
	switch {
	case e.det.State(id) != conflict.Clean:
		// A local mutation started meanwhile; adopt the store state once it settles.
		e.stale[id] = true
	case e.seq[id] == seq:
		delete(e.stale, id)
		e.proj.Put(final)
	}
	out, _ := e.proj.Get(id)
	e.unlockAndNotify(changed(id, out.Clone()))

	if wrote && e.emit != nil {
		ev := &protocol.PlaylistUpdated{
			PlaylistID: id,
			Patch:      domain.PatchOf(final, res.category),
			UpdatedBy:  actor,
			Timestamp:  e.stamp(final.UpdatedAt),
			ChangeType: res.category,
		}
		if err := e.emit.Emit(ev); err != nil {
			log.Warn().Str("module", "app.optimistic").Str("type", string(ev.EventType())).Err(err).Msg("emit failed")
		}
	}
	log.Info().Str("module", "app.optimistic").Str("playlist", string(id)).Str("category", string(res.category)).Bool("wrote", wrote).Msg("resolution written back")
	return out, nil
}

// push makes the store agree with res for its category and returns the
// resulting state and whether anything was written.
func (e *Engine) push(ctx context.Context, id domain.PlaylistID, res resolution) (*domain.Playlist, bool, error) {
	server, err := e.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, false, err
	}
	want := res.want
	switch res.category {
	case domain.ChangeMetadata:
		var meta domain.PlaylistPatch
		if server.Name != want.Name {
			meta.Name = domain.StringPtr(want.Name)
		}
		if server.Description != want.Description {
			meta.Description = domain.StringPtr(want.Description)
		}
		if meta.IsEmpty() {
			return server, false, nil
		}
		server, err = e.store.UpdatePlaylist(ctx, id, meta)
		return server, err == nil, err
	case domain.ChangeAssignment:
		wrote := false
		if add := missing(want.ScreenIDs, server.ScreenIDs); len(add) > 0 {
			if server, err = e.store.AssignScreens(ctx, id, add, domain.ActionAssign); err != nil {
				return nil, false, err
			}
			wrote = true
		}
		if drop := missing(server.ScreenIDs, want.ScreenIDs); len(drop) > 0 {
			if server, err = e.store.AssignScreens(ctx, id, drop, domain.ActionUnassign); err != nil {
				return nil, false, err
			}
			wrote = true
		}
		return server, wrote, nil
	case domain.ChangeItems:
		return e.pushItems(ctx, id, server, want.Items)
	}
	return server, false, nil
}

func (e *Engine) pushItems(ctx context.Context, id domain.PlaylistID, server *domain.Playlist, want []domain.PlaylistItem) (*domain.Playlist, bool, error) {
	wrote := false
	keep := make(map[domain.ItemID]bool, len(want))
	for _, it := range want {
		keep[it.ID] = true
	}
	for _, it := range server.Items {
		if keep[it.ID] {
			continue
		}
		if err := e.store.RemoveItem(ctx, id, it.ID); err != nil && core.KindOf(err) != core.KindNotFound {
			return nil, false, err
		}
		wrote = true
	}

	order := make([]domain.ItemID, 0, len(want))
	for _, it := range want {
		have, ok := server.Item(it.ID)
		if !ok {
			// The store no longer has it; add the media again under a new id.
			added, err := e.store.AddItem(ctx, id, domain.NewItem{MediaID: it.MediaID, Duration: it.Duration})
			if err != nil {
				return nil, false, err
			}
			have = *added
			it.ID = added.ID
			wrote = true
		}
		if patch, diff := settingsPatch(have, it); diff {
			if _, err := e.store.UpdateItem(ctx, id, it.ID, patch); err != nil {
				return nil, false, err
			}
			wrote = true
		}
		order = append(order, it.ID)
	}

	latest, err := e.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, false, err
	}
	latest.SortItems()
	current := make([]domain.ItemID, len(latest.Items))
	for i, it := range latest.Items {
		current[i] = it.ID
	}
	if slices.Equal(current, order) || len(current) != len(order) {
		return latest, wrote, nil
	}
	batch := make([]domain.ItemOrder, len(order))
	for i, itemID := range order {
		batch[i] = domain.ItemOrder{ItemID: itemID, Position: i}
	}
	latest, err = e.store.ReorderItems(ctx, id, batch)
	if err != nil {
		return nil, false, err
	}
	return latest, true, nil
}

// settingsPatch lists the settings of want that differ from have. Settings
// absent from want are left alone.
func settingsPatch(have, want domain.PlaylistItem) (domain.ItemPatch, bool) {
	var patch domain.ItemPatch
	diff := false
	if want.Duration != nil && (have.Duration == nil || *have.Duration != *want.Duration) {
		patch.Duration = want.Duration
		diff = true
	}
	if want.Transition != nil && (have.Transition == nil || *have.Transition != *want.Transition) {
		patch.Transition = want.Transition
		diff = true
	}
	if want.Conditions != nil && !sameCondition(have.Conditions, want.Conditions) {
		patch.Conditions = want.Conditions
		diff = true
	}
	return patch, diff
}

func sameCondition(a, b *domain.Condition) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartTime == b.StartTime && a.EndTime == b.EndTime && slices.Equal(a.DaysOfWeek, b.DaysOfWeek)
}

// missing returns the ids of from that are not in in.
func missing(from, in []domain.ScreenID) []domain.ScreenID {
	var out []domain.ScreenID
	for _, s := range from {
		if !slices.Contains(in, s) {
			out = append(out, s)
		}
	}
	return out
}
