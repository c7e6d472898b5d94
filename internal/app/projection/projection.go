// Package projection holds the locally cached copy of each playlist the
// client is editing. There is exactly one projection per playlist id; every
// screen of the client reads from it.
//
// A Projection is not safe for concurrent use. The optimistic engine guards
// it with its own lock.
package projection

import (
	"sort"

	"github.com/dkeye/Signage/internal/domain"
)

type Projection struct {
	playlists map[domain.PlaylistID]*domain.Playlist
}

func New() *Projection {
	return &Projection{playlists: make(map[domain.PlaylistID]*domain.Playlist)}
}

// Get returns a copy of the cached playlist.
func (p *Projection) Get(id domain.PlaylistID) (*domain.Playlist, bool) {
	pl, ok := p.playlists[id]
	if !ok {
		return nil, false
	}
	return pl.Clone(), true
}

// Ref returns the cached playlist itself for in-place mutation.
func (p *Projection) Ref(id domain.PlaylistID) (*domain.Playlist, bool) {
	pl, ok := p.playlists[id]
	return pl, ok
}

func (p *Projection) Has(id domain.PlaylistID) bool {
	_, ok := p.playlists[id]
	return ok
}

// Put stores a copy of pl, replacing any cached version.
func (p *Projection) Put(pl *domain.Playlist) {
	if pl == nil {
		return
	}
	c := pl.Clone()
	c.SortItems()
	p.playlists[pl.ID] = c
}

func (p *Projection) Delete(id domain.PlaylistID) {
	delete(p.playlists, id)
}

func (p *Projection) Len() int { return len(p.playlists) }

// IDs lists cached playlist ids in lexical order.
func (p *Projection) IDs() []domain.PlaylistID {
	out := make([]domain.PlaylistID, 0, len(p.playlists))
	for id := range p.playlists {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Projection) Reset() {
	clear(p.playlists)
}
