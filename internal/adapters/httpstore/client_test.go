package httpstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signage/internal/adapters/auth"
	"github.com/dkeye/Signage/internal/adapters/memstore"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
	transport "github.com/dkeye/Signage/internal/transport/http"
)

func restServer(t *testing.T) (*httptest.Server, *memstore.Store, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	am, err := auth.NewManager("test-secret", "", time.Hour)
	require.NoError(t, err)
	store := memstore.New()
	r := gin.New()
	api := r.Group("/api", am.Middleware())
	(&transport.StoreHandlers{Store: store}).Register(api)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tok, err := am.Issue(&domain.User{ID: "u1", Email: "a@example.com"}, auth.RoleEditor)
	require.NoError(t, err)
	return srv, store, tok
}

func TestClient_RoundTrip(t *testing.T) {
	srv, store, tok := restServer(t)
	c := New(Options{BaseURL: srv.URL + "/", Token: tok})
	ctx := context.Background()

	p, err := c.CreatePlaylist(ctx, domain.NewPlaylist{Name: "Lobby"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), p.UpdatedBy)

	a, err := c.AddItem(ctx, p.ID, domain.NewItem{MediaID: "m1"})
	require.NoError(t, err)
	b, err := c.AddItem(ctx, p.ID, domain.NewItem{MediaID: "m2", Duration: domain.IntPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Order)

	got, err := c.ReorderItems(ctx, p.ID, []domain.ItemOrder{{ItemID: a.ID, Position: 1}, {ItemID: b.ID, Position: 0}})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.Items[0].ID)

	it, err := c.UpdateItem(ctx, p.ID, a.ID, domain.ItemPatch{Duration: domain.IntPtr(30)})
	require.NoError(t, err)
	assert.Equal(t, 30, *it.Duration)

	got, err = c.UpdatePlaylist(ctx, p.ID, domain.PlaylistPatch{Name: domain.StringPtr("Lobby East")})
	require.NoError(t, err)
	assert.Equal(t, "Lobby East", got.Name)

	got, err = c.AssignScreens(ctx, p.ID, []domain.ScreenID{"s1", "s2"}, domain.ActionAssign)
	require.NoError(t, err)
	assert.Equal(t, []domain.ScreenID{"s1", "s2"}, got.ScreenIDs)

	require.NoError(t, c.RemoveItem(ctx, p.ID, b.ID))
	list, err := c.ListPlaylists(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Items, 1)

	stored, err := store.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	fetched, err := c.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Name, fetched.Name)
	assert.True(t, stored.UpdatedAt.Equal(fetched.UpdatedAt))

	require.NoError(t, c.DeletePlaylist(ctx, p.ID))
	_, err = c.GetPlaylist(ctx, p.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestClient_ErrorKinds(t *testing.T) {
	srv, store, tok := restServer(t)
	store.Seed(&domain.Playlist{ID: "p1", Name: "Lobby", Items: []domain.PlaylistItem{{ID: "A", MediaID: "m1"}}})
	ctx := context.Background()

	anon := New(Options{BaseURL: srv.URL})
	_, err := anon.GetPlaylist(ctx, "p1")
	assert.ErrorIs(t, err, core.ErrAuthentication)
	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.Status)

	c := New(Options{BaseURL: srv.URL, Token: tok})
	_, err = c.ReorderItems(ctx, "p1", []domain.ItemOrder{{ItemID: "Z", Position: 0}})
	assert.ErrorIs(t, err, core.ErrValidation)
	err = c.RemoveItem(ctx, "p1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := New(Options{BaseURL: srv.URL, MaxFailures: 2, OpenTimeout: time.Hour})
	ctx := context.Background()
	for range 2 {
		_, err := c.GetPlaylist(ctx, "p1")
		assert.ErrorIs(t, err, core.ErrInternal)
	}
	_, err := c.GetPlaylist(ctx, "p1")
	assert.ErrorIs(t, err, core.ErrNetwork)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	srv, _, tok := restServer(t)
	c := New(Options{BaseURL: srv.URL, Token: tok, MaxFailures: 1})
	for range 3 {
		_, err := c.GetPlaylist(context.Background(), "nope")
		assert.ErrorIs(t, err, core.ErrNotFound)
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := New(Options{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetPlaylist(ctx, "p1")
	assert.ErrorIs(t, err, core.ErrTimeout)
}
