package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signage/internal/domain"
)

func TestProjection_GetReturnsCopy(t *testing.T) {
	p := New()
	p.Put(&domain.Playlist{ID: "p1", Name: "Lobby", Items: []domain.PlaylistItem{{ID: "a", MediaID: "m1"}}})

	got, ok := p.Get("p1")
	require.True(t, ok)
	got.Name = "changed"
	got.Items[0].MediaID = "m9"

	again, _ := p.Get("p1")
	assert.Equal(t, "Lobby", again.Name)
	assert.Equal(t, domain.MediaID("m1"), again.Items[0].MediaID)
}

func TestProjection_PutSortsItems(t *testing.T) {
	p := New()
	p.Put(&domain.Playlist{ID: "p1", Items: []domain.PlaylistItem{
		{ID: "b", MediaID: "m", Order: 1},
		{ID: "a", MediaID: "m", Order: 0},
	}})
	ref, ok := p.Ref("p1")
	require.True(t, ok)
	assert.Equal(t, domain.ItemID("a"), ref.Items[0].ID)
}

func TestProjection_IDsAndDelete(t *testing.T) {
	p := New()
	p.Put(&domain.Playlist{ID: "p2"})
	p.Put(&domain.Playlist{ID: "p1"})
	p.Put(nil)
	assert.Equal(t, []domain.PlaylistID{"p1", "p2"}, p.IDs())

	p.Delete("p1")
	assert.False(t, p.Has("p1"))
	assert.Equal(t, 1, p.Len())
	p.Reset()
	assert.Equal(t, 0, p.Len())
}
