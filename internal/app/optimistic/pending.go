package optimistic

import (
	"context"
	"time"

	"github.com/dkeye/Signage/internal/domain"
)

// Kind names the operation behind a pending mutation.
type Kind string

const (
	KindDelete       Kind = "delete"
	KindMetadata     Kind = "metadata"
	KindAddItem      Kind = "add_item"
	KindRemoveItem   Kind = "remove_item"
	KindReorder      Kind = "reorder"
	KindItemSettings Kind = "item_settings"
	KindAssign       Kind = "assign"
	KindUnassign     Kind = "unassign"
)

// Pending is one local mutation awaiting the store.
type Pending struct {
	PlaylistID domain.PlaylistID
	Kind       Kind
	// Seq increases with every mutation of the same playlist.
	Seq      uint64
	Snapshot *domain.Playlist
	// Fields lists the metadata fields touched, if any.
	Fields    []string
	StartedAt time.Time

	cancel    context.CancelFunc
	forgotten bool
}

func (p *Pending) copy() Pending {
	c := *p
	c.Snapshot = p.Snapshot.Clone()
	c.cancel = nil
	return c
}

type pendingTable map[domain.PlaylistID]map[Kind]*Pending

func (t pendingTable) put(p *Pending) (replaced *Pending) {
	byKind, ok := t[p.PlaylistID]
	if !ok {
		byKind = make(map[Kind]*Pending)
		t[p.PlaylistID] = byKind
	}
	replaced = byKind[p.Kind]
	byKind[p.Kind] = p
	return replaced
}

// release removes p if it is still the registered entry for its key.
func (t pendingTable) release(p *Pending) {
	byKind := t[p.PlaylistID]
	if byKind[p.Kind] != p {
		return
	}
	delete(byKind, p.Kind)
	if len(byKind) == 0 {
		delete(t, p.PlaylistID)
	}
}

// oldest returns the entry with the lowest seq for id.
func (t pendingTable) oldest(id domain.PlaylistID) *Pending {
	var out *Pending
	for _, p := range t[id] {
		if out == nil || p.Seq < out.Seq {
			out = p
		}
	}
	return out
}
