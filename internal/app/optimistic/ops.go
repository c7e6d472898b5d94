package optimistic

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	"github.com/dkeye/Signage/internal/protocol"
	"github.com/dkeye/Signage/internal/validation"
)

func validateStruct(op string, s any) error {
	if err := validation.Struct(s); err != nil {
		return core.E(core.KindValidation, op, err)
	}
	return nil
}

func invalid(op, format string, args ...any) error {
	return core.E(core.KindValidation, op, fmt.Errorf(format, args...))
}

// DeletePlaylist removes id from view at once and restores it if the store
// refuses.
func (e *Engine) DeletePlaylist(ctx context.Context, id domain.PlaylistID) error {
	_, err := e.do(ctx, mutation{
		id:    id,
		kind:  KindDelete,
		local: func(*domain.Playlist) error { return nil },
		remote: func(ctx context.Context) (func(*domain.Playlist), protocol.PlaylistEvent, error) {
			if err := e.store.DeletePlaylist(ctx, id); err != nil {
				return nil, nil, err
			}
			return nil, nil, nil
		},
	})
	return err
}

// UpdateMetadata renames or re-describes a playlist. Only metadata fields of
// patch are used.
func (e *Engine) UpdateMetadata(ctx context.Context, id domain.PlaylistID, patch domain.PlaylistPatch) (*domain.Playlist, error) {
	const op = "optimistic.metadata"
	meta := domain.PlaylistPatch{Name: patch.Name, Description: patch.Description}
	if meta.IsEmpty() {
		return nil, invalid(op, "no metadata fields")
	}
	if meta.Name != nil && *meta.Name == "" {
		return nil, core.E(core.KindValidation, op, domain.ErrPlaylistNameEmpty)
	}
	if err := validateStruct(op, meta); err != nil {
		return nil, err
	}
	return e.do(ctx, mutation{
		id:     id,
		kind:   KindMetadata,
		fields: meta.MetadataFields(),
		local: func(p *domain.Playlist) error {
			meta.ApplyCategory(p, domain.ChangeMetadata)
			return nil
		},
		remote: func(ctx context.Context) (func(*domain.Playlist), protocol.PlaylistEvent, error) {
			res, err := e.store.UpdatePlaylist(ctx, id, meta)
			if err != nil {
				return nil, nil, err
			}
			at := res.UpdatedAt
			sent := meta
			sent.UpdatedAt = &at
			return replaceWith(res), &protocol.PlaylistUpdated{
				PlaylistID: id,
				Patch:      sent,
				Timestamp:  e.stamp(res.UpdatedAt),
				ChangeType: domain.ChangeMetadata,
			}, nil
		},
	})
}

// AddItem inserts media at req.Position (append when nil) under a temporary
// id until the store assigns the real one.
func (e *Engine) AddItem(ctx context.Context, id domain.PlaylistID, req domain.NewItem) (*domain.PlaylistItem, error) {
	if err := validateStruct("optimistic.add_item", req); err != nil {
		return nil, err
	}
	tmp := domain.PlaylistItem{ID: tempItemID(), MediaID: req.MediaID, Duration: req.Duration}
	var added *domain.PlaylistItem
	_, err := e.do(ctx, mutation{
		id:   id,
		kind: KindAddItem,
		local: func(p *domain.Playlist) error {
			p.InsertItem(tmp, req.Position)
			return nil
		},
		remote: func(ctx context.Context) (func(*domain.Playlist), protocol.PlaylistEvent, error) {
			it, err := e.store.AddItem(ctx, id, req)
			if err != nil {
				return nil, nil, err
			}
			added = it
			pos := it.Order
			return func(p *domain.Playlist) {
					p.RemoveItem(tmp.ID)
					p.RemoveItem(it.ID)
					p.InsertItem(it.Clone(), &pos)
				}, &protocol.ItemAdded{
					PlaylistID: id,
					Item:       it.Clone(),
					Position:   &pos,
					Timestamp:  e.now().UTC(),
				}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	c := added.Clone()
	return &c, nil
}

// RemoveItem drops itemID from the playlist.
func (e *Engine) RemoveItem(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID) (*domain.Playlist, error) {
	const op = "optimistic.remove_item"
	if itemID == "" {
		return nil, invalid(op, "empty item id")
	}
	return e.do(ctx, mutation{
		id:   id,
		kind: KindRemoveItem,
		local: func(p *domain.Playlist) error {
			if !p.RemoveItem(itemID) {
				return core.E(core.KindNotFound, op, fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound))
			}
			return nil
		},
		remote: func(ctx context.Context) (func(*domain.Playlist), protocol.PlaylistEvent, error) {
			if err := e.store.RemoveItem(ctx, id, itemID); err != nil {
				return nil, nil, err
			}
			return func(p *domain.Playlist) { p.RemoveItem(itemID) }, &protocol.ItemRemoved{
				PlaylistID: id,
				ItemID:     itemID,
				Timestamp:  e.now().UTC(),
			}, nil
		},
	})
}

// checkOrder validates a full target ordering against p. Every entry must
// name a cached item, positions must be non-negative and distinct, and every
// item must be listed exactly once.
func checkOrder(op string, p *domain.Playlist, order []domain.ItemOrder) error {
	if len(order) == 0 {
		return invalid(op, "empty ordering")
	}
	seenID := make(map[domain.ItemID]struct{}, len(order))
	seenPos := make(map[int]struct{}, len(order))
	for i, o := range order {
		if err := validation.Struct(o); err != nil {
			return core.E(core.KindValidation, op, fmt.Errorf("entry %d: %w", i, err))
		}
		if p.ItemIndex(o.ItemID) < 0 {
			return invalid(op, "entry %d: unknown item %s", i, o.ItemID)
		}
		if _, dup := seenID[o.ItemID]; dup {
			return invalid(op, "entry %d: item %s listed twice", i, o.ItemID)
		}
		if _, dup := seenPos[o.Position]; dup {
			return invalid(op, "entry %d: position %d used twice", i, o.Position)
		}
		seenID[o.ItemID] = struct{}{}
		seenPos[o.Position] = struct{}{}
	}
	if len(order) != len(p.Items) {
		return invalid(op, "ordering lists %d of %d items", len(order), len(p.Items))
	}
	return nil
}

// Reorder applies a full target ordering. A single malformed entry aborts the
// whole batch before anything is sent.
func (e *Engine) Reorder(ctx context.Context, id domain.PlaylistID, order []domain.ItemOrder) (*domain.Playlist, error) {
	const op = "optimistic.reorder"
	order = append([]domain.ItemOrder(nil), order...)
	return e.do(ctx, mutation{
		id:   id,
		kind: KindReorder,
		local: func(p *domain.Playlist) error {
			if err := checkOrder(op, p, order); err != nil {
				return err
			}
			for _, o := range order {
				p.Items[p.ItemIndex(o.ItemID)].Order = o.Position
			}
			p.Renumber()
			return nil
		},
		remote: func(ctx context.Context) (func(*domain.Playlist), protocol.PlaylistEvent, error) {
			res, err := e.store.ReorderItems(ctx, id, order)
			if err != nil {
				return nil, nil, err
			}
			return replaceWith(res), &protocol.ItemsReordered{
				PlaylistID: id,
				Items:      order,
				Timestamp:  e.stamp(res.UpdatedAt),
			}, nil
		},
	})
}

// UpdateItemSettings changes duration, transition or conditions of one item.
func (e *Engine) UpdateItemSettings(ctx context.Context, id domain.PlaylistID, itemID domain.ItemID, patch domain.ItemPatch) (*domain.Playlist, error) {
	const op = "optimistic.item_settings"
	if err := validateStruct(op, patch); err != nil {
		return nil, err
	}
	return e.do(ctx, mutation{
		id:   id,
		kind: KindItemSettings,
		local: func(p *domain.Playlist) error {
			i := p.ItemIndex(itemID)
			if i < 0 {
				return core.E(core.KindNotFound, op, fmt.Errorf("item %s: %w", itemID, domain.ErrItemNotFound))
			}
			patch.Apply(&p.Items[i])
			return nil
		},
		remote: func(ctx context.Context) (func(*domain.Playlist), protocol.PlaylistEvent, error) {
			it, err := e.store.UpdateItem(ctx, id, itemID, patch)
			if err != nil {
				return nil, nil, err
			}
			return func(p *domain.Playlist) {
					if i := p.ItemIndex(it.ID); i >= 0 {
						order := p.Items[i].Order
						p.Items[i] = it.Clone()
						p.Items[i].Order = order
					}
				}, &protocol.ItemUpdated{
					PlaylistID: id,
					Item:       it.Clone(),
					Timestamp:  e.now().UTC(),
				}, nil
		},
	})
}

func (e *Engine) AssignScreens(ctx context.Context, id domain.PlaylistID, screens []domain.ScreenID) (*domain.Playlist, error) {
	return e.assignment(ctx, id, screens, domain.ActionAssign)
}

func (e *Engine) UnassignScreens(ctx context.Context, id domain.PlaylistID, screens []domain.ScreenID) (*domain.Playlist, error) {
	return e.assignment(ctx, id, screens, domain.ActionUnassign)
}

func (e *Engine) assignment(ctx context.Context, id domain.PlaylistID, screens []domain.ScreenID, action domain.AssignAction) (*domain.Playlist, error) {
	kind := KindAssign
	if action == domain.ActionUnassign {
		kind = KindUnassign
	}
	op := "optimistic." + string(kind)
	if len(screens) == 0 {
		return nil, invalid(op, "no screens")
	}
	for _, s := range screens {
		if s == "" {
			return nil, invalid(op, "empty screen id")
		}
	}
	screens = append([]domain.ScreenID(nil), screens...)
	return e.do(ctx, mutation{
		id:   id,
		kind: kind,
		local: func(p *domain.Playlist) error {
			if action == domain.ActionAssign {
				p.AddScreens(screens)
			} else {
				p.RemoveScreens(screens)
			}
			return nil
		},
		remote: func(ctx context.Context) (func(*domain.Playlist), protocol.PlaylistEvent, error) {
			res, err := e.store.AssignScreens(ctx, id, screens, action)
			if err != nil {
				return nil, nil, err
			}
			sa := protocol.ScreenAssignment{PlaylistID: id, ScreenIDs: screens, Timestamp: e.stamp(res.UpdatedAt)}
			var ev protocol.PlaylistEvent = &protocol.ScreensAssigned{ScreenAssignment: sa}
			if action == domain.ActionUnassign {
				ev = &protocol.ScreensUnassigned{ScreenAssignment: sa}
			}
			return replaceWith(res), ev, nil
		},
	})
}

// stamp prefers the store's version time for outbound events.
func (e *Engine) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return e.now().UTC()
	}
	return at
}
