package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Signage/internal/adapters/auth"
	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/core/mocks"
	"github.com/dkeye/Signage/internal/domain"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setup(t *testing.T) (*gin.Engine, *mocks.MockPlaylistStore, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := mocks.NewMockPlaylistStore(gomock.NewController(t))
	am, err := auth.NewManager("handlers-secret", "signage", time.Hour)
	require.NoError(t, err)
	tok, err := am.Issue(&domain.User{ID: "u1"}, auth.RoleEditor)
	require.NoError(t, err)

	r := gin.New()
	(&StoreHandlers{Store: store}).Register(r.Group("/api", am.Middleware()))
	return r, store, tok
}

func do(r http.Handler, tok, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusOf(core.KindValidation))
	assert.Equal(t, http.StatusNotFound, StatusOf(core.KindNotFound))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(core.KindAuthentication))
	assert.Equal(t, http.StatusConflict, StatusOf(core.KindConflict))
	assert.Equal(t, http.StatusGatewayTimeout, StatusOf(core.KindTimeout))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(core.KindNetwork))
}

func TestUpdate_PassesActor(t *testing.T) {
	r, store, tok := setup(t)
	store.EXPECT().
		UpdatePlaylist(gomock.Any(), domain.PlaylistID("p1"), gomock.Any()).
		DoAndReturn(func(ctx context.Context, id domain.PlaylistID, patch domain.PlaylistPatch) (*domain.Playlist, error) {
			actor, ok := core.ActorFrom(ctx)
			assert.True(t, ok)
			assert.Equal(t, domain.UserID("u1"), actor)
			require.NotNil(t, patch.Name)
			return &domain.Playlist{ID: id, Name: *patch.Name, UpdatedBy: actor}, nil
		})

	w := do(r, tok, http.MethodPatch, "/api/playlists/p1", `{"name":"Lobby"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p domain.Playlist
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "Lobby", p.Name)
}

func TestErrors(t *testing.T) {
	r, store, tok := setup(t)

	store.EXPECT().GetPlaylist(gomock.Any(), domain.PlaylistID("gone")).
		Return(nil, core.E(core.KindNotFound, "get playlist", core.ErrNotFound))
	w := do(r, tok, http.MethodGet, "/api/playlists/gone", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error.Code)

	store.EXPECT().DeletePlaylist(gomock.Any(), domain.PlaylistID("p1")).
		Return(errors.New("disk on fire"))
	w = do(r, tok, http.MethodDelete, "/api/playlists/p1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", decodeError(t, w).Error.Code)

	// Malformed bodies never reach the store.
	w = do(r, tok, http.MethodPut, "/api/playlists/p1/order", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decodeError(t, w).Error.Code)

	// The mock store cannot enumerate.
	w = do(r, tok, http.MethodGet, "/api/playlists", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRemoveItem_NoContent(t *testing.T) {
	r, store, tok := setup(t)
	store.EXPECT().RemoveItem(gomock.Any(), domain.PlaylistID("p1"), domain.ItemID("i1")).Return(nil)
	w := do(r, tok, http.MethodDelete, "/api/playlists/p1/items/i1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUnauthenticated(t *testing.T) {
	r, _, _ := setup(t)
	w := do(r, "bogus", http.MethodGet, "/api/playlists/p1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
