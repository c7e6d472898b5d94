package conflict

import (
	"reflect"
	"slices"

	"github.com/dkeye/Signage/internal/domain"
)

// merge folds the remote side of r into out for r.Category only. Local
// changes relative to r.Base survive unless the remote side changed the
// same field or item, in which case the remote value wins.
func merge(out *domain.Playlist, r *Record) {
	switch r.Category {
	case domain.ChangeMetadata:
		if r.RemotePatch.Name != nil {
			out.Name = *r.RemotePatch.Name
		}
		if r.RemotePatch.Description != nil {
			out.Description = *r.RemotePatch.Description
		}
	case domain.ChangeItems:
		out.Items = mergeItems(r.Base, out, r.Remote)
	case domain.ChangeAssignment:
		out.ScreenIDs = mergeScreens(r.Base, out, r.Remote)
	}
	if r.Remote != nil && r.Remote.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = r.Remote.UpdatedAt
	}
}

func mergeItems(base, local, remote *domain.Playlist) []domain.PlaylistItem {
	baseItems := indexItems(base)
	localItems := indexItems(local)
	remoteItems := indexItems(remote)

	var out []domain.PlaylistItem
	for _, it := range remote.Items {
		b, inBase := baseItems[it.ID]
		_, inLocal := localItems[it.ID]
		// Removed locally and untouched remotely.
		if inBase && !inLocal && sameItem(b, it) {
			continue
		}
		if l, ok := localItems[it.ID]; ok && inBase && sameItem(b, it) {
			it.Duration, it.Transition, it.Conditions = l.Duration, l.Transition, l.Conditions
		}
		out = append(out, it.Clone())
	}
	for _, it := range local.Items {
		_, inBase := baseItems[it.ID]
		_, inRemote := remoteItems[it.ID]
		if !inBase && !inRemote {
			out = append(out, it.Clone())
		}
	}
	for i := range out {
		out[i].Order = i
	}
	return out
}

func indexItems(p *domain.Playlist) map[domain.ItemID]domain.PlaylistItem {
	m := make(map[domain.ItemID]domain.PlaylistItem)
	if p == nil {
		return m
	}
	for _, it := range p.Items {
		m[it.ID] = it
	}
	return m
}

// sameItem compares item content ignoring position.
func sameItem(a, b domain.PlaylistItem) bool {
	a.Order, b.Order = 0, 0
	return reflect.DeepEqual(a, b)
}

func mergeScreens(base, local, remote *domain.Playlist) []domain.ScreenID {
	var baseIDs []domain.ScreenID
	if base != nil {
		baseIDs = base.ScreenIDs
	}
	out := slices.Clone(remote.ScreenIDs)
	for _, s := range local.ScreenIDs {
		if !slices.Contains(baseIDs, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	out = slices.DeleteFunc(out, func(s domain.ScreenID) bool {
		return slices.Contains(baseIDs, s) && !slices.Contains(local.ScreenIDs, s)
	})
	return out
}
