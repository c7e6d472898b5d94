// Package memstore is an in-memory authoritative playlist store used by the
// relay's embedded development mode and by tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
	"github.com/dkeye/Signage/internal/validation"
)

// SystemActor attributes writes made without an actor in the context.
const SystemActor domain.UserID = "system"

// Publisher receives an event for every committed write.
type Publisher interface {
	Inject(ev protocol.PlaylistEvent) (int, error)
}

type Store struct {
	mu        sync.RWMutex
	playlists map[domain.PlaylistID]*domain.Playlist
	publisher Publisher
	now       func() time.Time
}

var _ core.PlaylistStore = (*Store)(nil)

func New() *Store {
	return &Store{playlists: make(map[domain.PlaylistID]*domain.Playlist), now: time.Now}
}

// SetPublisher enables event publishing. Nil disables it.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// Seed stores p as is, replacing any playlist with the same id.
func (s *Store) Seed(p *domain.Playlist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p.Clone()
	c.Renumber()
	s.playlists[c.ID] = c
}

// List returns every playlist sorted by id.
func (s *Store) List() []*domain.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Playlist, 0, len(s.playlists))
	for _, p := range s.playlists {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func actor(ctx context.Context) domain.UserID {
	if id, ok := core.ActorFrom(ctx); ok {
		return id
	}
	return SystemActor
}

func validate(op string, v any) error {
	if err := validation.Struct(v); err != nil {
		return core.E(core.KindValidation, op, err)
	}
	return nil
}

func notFound(op string, id domain.PlaylistID) error {
	return core.E(core.KindNotFound, op, fmt.Errorf("playlist %s", id))
}

// write runs fn on the stored playlist under the lock, stamps it and
// publishes the event fn returns.
func (s *Store) write(ctx context.Context, op string, id domain.PlaylistID, fn func(p *domain.Playlist, by domain.UserID, at time.Time) (protocol.PlaylistEvent, error)) (*domain.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.E(core.KindTimeout, op, err)
	}
	by := actor(ctx)
	s.mu.Lock()
	p, ok := s.playlists[id]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(op, id)
	}
	at := s.now().UTC()
	if !at.After(p.UpdatedAt) {
		at = p.UpdatedAt.Add(time.Millisecond)
	}
	work := p.Clone()
	ev, err := fn(work, by, at)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	work.UpdatedAt = at
	work.UpdatedBy = by
	s.playlists[id] = work
	pub := s.publisher
	out := work.Clone()
	s.mu.Unlock()

	if pub != nil && ev != nil {
		if _, err := pub.Inject(ev); err != nil {
			log.Warn().Str("module", "adapters.memstore").Str("playlist", string(id)).Err(err).Msg("publish failed")
		}
	}
	return out, nil
}

func (s *Store) CreatePlaylist(ctx context.Context, req domain.NewPlaylist) (*domain.Playlist, error) {
	const op = "memstore.create"
	if err := validate(op, req); err != nil {
		return nil, err
	}
	p := &domain.Playlist{
		ID:          domain.PlaylistID(uuid.NewString()),
		Name:        req.Name,
		Description: req.Description,
		Items:       []domain.PlaylistItem{},
		ScreenIDs:   []domain.ScreenID{},
		UpdatedAt:   s.now().UTC(),
		UpdatedBy:   actor(ctx),
	}
	p.AddScreens(req.ScreenIDs)
	s.mu.Lock()
	s.playlists[p.ID] = p
	s.mu.Unlock()
	log.Info().Str("module", "adapters.memstore").Str("playlist", string(p.ID)).Msg("created")
	return p.Clone(), nil
}

func (s *Store) GetPlaylist(ctx context.Context, id domain.PlaylistID) (*domain.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.E(core.KindTimeout, "memstore.get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.playlists[id]
	if !ok {
		return nil, notFound("memstore.get", id)
	}
	return p.Clone(), nil
}

// UpdatePlaylist applies the metadata fields of patch.
func (s *Store) UpdatePlaylist(ctx context.Context, id domain.PlaylistID, patch domain.PlaylistPatch) (*domain.Playlist, error) {
	const op = "memstore.update"
	if err := validate(op, patch); err != nil {
		return nil, err
	}
	if patch.Name == nil && patch.Description == nil {
		return nil, core.E(core.KindValidation, op, fmt.Errorf("no metadata fields"))
	}
	return s.write(ctx, op, id, func(p *domain.Playlist, by domain.UserID, at time.Time) (protocol.PlaylistEvent, error) {
		meta := domain.PlaylistPatch{Name: patch.Name, Description: patch.Description}
		meta.ApplyCategory(p, domain.ChangeMetadata)
		meta.UpdatedAt = &at
		return &protocol.PlaylistUpdated{PlaylistID: id, Patch: meta, UpdatedBy: by, Timestamp: at, ChangeType: domain.ChangeMetadata}, nil
	})
}

func (s *Store) DeletePlaylist(ctx context.Context, id domain.PlaylistID) error {
	if err := ctx.Err(); err != nil {
		return core.E(core.KindTimeout, "memstore.delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[id]; !ok {
		return notFound("memstore.delete", id)
	}
	delete(s.playlists, id)
	log.Info().Str("module", "adapters.memstore").Str("playlist", string(id)).Msg("deleted")
	return nil
}

func (s *Store) AddItem(ctx context.Context, id domain.PlaylistID, req domain.NewItem) (*domain.PlaylistItem, error) {
	const op = "memstore.add_item"
	if err := validate(op, req); err != nil {
		return nil, err
	}
	var added domain.PlaylistItem
	_, err := s.write(ctx, op, id, func(p *domain.Playlist, by domain.UserID, at time.Time) (protocol.PlaylistEvent, error) {
		it := domain.PlaylistItem{ID: domain.ItemID(uuid.NewString()), MediaID: req.MediaID}
		if req.Duration != nil {
			d := *req.Duration
			it.Duration = &d
		}
		p.InsertItem(it, req.Position)
		added, _ = p.Item(it.ID)
		pos := added.Order
		return &protocol.ItemAdded{PlaylistID: id, Item: added.Clone(), Position: &pos, UpdatedBy: by, Timestamp: at}, nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

func (s *Store) RemoveItem(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID) error {
	const op = "memstore.remove_item"
	_, err := s.write(ctx, op, id, func(p *domain.Playlist, by domain.UserID, at time.Time) (protocol.PlaylistEvent, error) {
		if !p.RemoveItem(itemID) {
			return nil, core.E(core.KindNotFound, op, fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound))
		}
		return &protocol.ItemRemoved{PlaylistID: id, ItemID: itemID, RemovedBy: by, Timestamp: at}, nil
	})
	return err
}

// ReorderItems applies a full ordering. Every item must be listed exactly
// once with distinct positions.
func (s *Store) ReorderItems(ctx context.Context, id domain.PlaylistID, order []domain.ItemOrder) (*domain.Playlist, error) {
	const op = "memstore.reorder"
	return s.write(ctx, op, id, func(p *domain.Playlist, by domain.UserID, at time.Time) (protocol.PlaylistEvent, error) {
		if len(order) != len(p.Items) {
			return nil, core.E(core.KindValidation, op, fmt.Errorf("ordering lists %d of %d items", len(order), len(p.Items)))
		}
		pos := make(map[domain.ItemID]int, len(order))
		used := make(map[int]struct{}, len(order))
		for _, o := range order {
			if err := validate(op, o); err != nil {
				return nil, err
			}
			if p.ItemIndex(o.ItemID) < 0 {
				return nil, core.E(core.KindValidation, op, fmt.Errorf("unknown item %s", o.ItemID))
			}
			if _, dup := pos[o.ItemID]; dup {
				return nil, core.E(core.KindValidation, op, fmt.Errorf("item %s listed twice", o.ItemID))
			}
			if _, dup := used[o.Position]; dup {
				return nil, core.E(core.KindValidation, op, fmt.Errorf("position %d: %w", o.Position, domain.ErrDuplicateOrder))
			}
			pos[o.ItemID] = o.Position
			used[o.Position] = struct{}{}
		}
		for i := range p.Items {
			p.Items[i].Order = pos[p.Items[i].ID]
		}
		p.Renumber()
		out := make([]domain.ItemOrder, len(p.Items))
		for i, it := range p.Items {
			out[i] = domain.ItemOrder{ItemID: it.ID, Position: it.Order}
		}
		return &protocol.ItemsReordered{PlaylistID: id, Items: out, UpdatedBy: by, Timestamp: at}, nil
	})
}

func (s *Store) UpdateItem(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID, patch domain.ItemPatch) (*domain.PlaylistItem, error) {
	const op = "memstore.update_item"
	if err := validate(op, patch); err != nil {
		return nil, err
	}
	var updated domain.PlaylistItem
	_, err := s.write(ctx, op, id, func(p *domain.Playlist, by domain.UserID, at time.Time) (protocol.PlaylistEvent, error) {
		i := p.ItemIndex(itemID)
		if i < 0 {
			return nil, core.E(core.KindNotFound, op, fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound))
		}
		patch.Apply(&p.Items[i])
		updated = p.Items[i].Clone()
		return &protocol.ItemUpdated{PlaylistID: id, Item: updated.Clone(), UpdatedBy: by, Timestamp: at}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) AssignScreens(ctx context.Context, id domain.PlaylistID, screens []domain.ScreenID, action domain.AssignAction) (*domain.Playlist, error) {
	const op = "memstore.assign"
	if len(screens) == 0 {
		return nil, core.E(core.KindValidation, op, fmt.Errorf("no screens"))
	}
	if action != domain.ActionAssign && action != domain.ActionUnassign {
		return nil, core.E(core.KindValidation, op, fmt.Errorf("unknown action %q", action))
	}
	return s.write(ctx, op, id, func(p *domain.Playlist, by domain.UserID, at time.Time) (protocol.PlaylistEvent, error) {
		body := protocol.ScreenAssignment{PlaylistID: id, ScreenIDs: append([]domain.ScreenID(nil), screens...), ActorID: by, Timestamp: at}
		if action == domain.ActionAssign {
			p.AddScreens(screens)
			return &protocol.ScreensAssigned{ScreenAssignment: body}, nil
		}
		p.RemoveScreens(screens)
		return &protocol.ScreensUnassigned{ScreenAssignment: body}, nil
	})
}
