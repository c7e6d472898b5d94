package protocol

import "github.com/dkeye/Signage/internal/domain"

// Apply folds a playlist event into p. Application is idempotent: adding an
// existing item id replaces it, removing or updating a missing item is a
// no-op, and reorder entries for unknown ids are skipped.
func Apply(p *domain.Playlist, ev PlaylistEvent) {
	switch e := ev.(type) {
	case *PlaylistUpdated:
		e.Patch.Apply(p)
	case *ItemAdded:
		p.RemoveItem(e.Item.ID)
		pos := e.Position
		if pos == nil {
			order := e.Item.Order
			pos = &order
		}
		p.InsertItem(e.Item.Clone(), pos)
	case *ItemRemoved:
		p.RemoveItem(e.ItemID)
	case *ItemsReordered:
		for _, o := range e.Items {
			if i := p.ItemIndex(o.ItemID); i >= 0 {
				p.Items[i].Order = o.Position
			}
		}
		p.Renumber()
	case *ItemUpdated:
		if i := p.ItemIndex(e.Item.ID); i >= 0 {
			order := p.Items[i].Order
			p.Items[i] = e.Item.Clone()
			p.Items[i].Order = order
		}
	case *ScreensAssigned:
		p.AddScreens(e.ScreenIDs)
	case *ScreensUnassigned:
		p.RemoveScreens(e.ScreenIDs)
	}
	if at := ev.At(); at.After(p.UpdatedAt) {
		p.UpdatedAt = at
	}
	if a := ev.Actor(); a != "" {
		p.UpdatedBy = a
	}
}
