package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Signage/internal/adapters/auth"
	router "github.com/dkeye/Signage/internal/adapters/http"
	"github.com/dkeye/Signage/internal/adapters/memstore"
	"github.com/dkeye/Signage/internal/app"
	"github.com/dkeye/Signage/internal/app/orch"
	"github.com/dkeye/Signage/internal/config"
	"github.com/dkeye/Signage/internal/domain"
)

const testSecret = "cli-secret"

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "relay:\n  secret: " + testSecret + "\n  issuer: signage\nclient:\n  request_timeout: 5s\n  reconnect_attempts: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func startRelay(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	am, err := auth.NewManager(testSecret, "signage", time.Hour)
	require.NoError(t, err)
	o := &orch.Orchestrator{Registry: app.NewRegistry(), Rooms: app.NewRoomManager(), Policy: &app.SimplePolicy{}}
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(router.SetupRouter(ctx, &config.RelayConfig{Mode: "test"}, o, router.Deps{Auth: am, Store: store}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, store
}

func TestTokenCmd(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "token", "--config", cfg, "--user", "u1", "--email", "a@example.com", "--role", auth.RoleService)
	require.NoError(t, err)

	am, err := auth.NewManager(testSecret, "signage", time.Hour)
	require.NoError(t, err)
	user, claims, err := am.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), user.ID)
	assert.Equal(t, auth.RoleService, claims.Role)

	_, err = run(t, "token", "--config", cfg)
	assert.Error(t, err)
}

func TestPlaylistCommands(t *testing.T) {
	srv, store := startRelay(t)
	cfg := writeConfig(t)
	tok, err := run(t, "token", "--config", cfg, "--user", "u1")
	require.NoError(t, err)
	common := []string{
		"--config", cfg,
		"--store", srv.URL,
		"--relay", "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws",
		"--token", strings.TrimSpace(tok),
	}
	pl := func(args ...string) string {
		t.Helper()
		out, err := run(t, append(append([]string{"playlists"}, args...), common...)...)
		require.NoError(t, err, out)
		return out
	}

	var created domain.Playlist
	require.NoError(t, json.Unmarshal([]byte(pl("create", "Lobby", "--screens", "s1")), &created))
	assert.Equal(t, "Lobby", created.Name)
	id := string(created.ID)

	var item domain.PlaylistItem
	require.NoError(t, json.Unmarshal([]byte(pl("add-item", id, "m1", "--duration", "12")), &item))
	assert.Equal(t, domain.MediaID("m1"), item.MediaID)
	second := domain.PlaylistItem{}
	require.NoError(t, json.Unmarshal([]byte(pl("add-item", id, "m2")), &second))

	pl("reorder", id, string(second.ID), string(item.ID))
	pl("rename", id, "Lobby East")
	pl("assign", id, "s2")

	p, err := store.GetPlaylist(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lobby East", p.Name)
	assert.Equal(t, []domain.ScreenID{"s1", "s2"}, p.ScreenIDs)
	require.Len(t, p.Items, 2)
	assert.Equal(t, second.ID, p.Items[0].ID)
	assert.Equal(t, domain.UserID("u1"), p.UpdatedBy)

	list := pl("list")
	assert.Contains(t, list, "Lobby East")
	assert.Contains(t, list, id)

	pl("delete", id)
	assert.Empty(t, store.List())
}

func TestPlaylistCommands_NoToken(t *testing.T) {
	srv, _ := startRelay(t)
	_, err := run(t, "playlists", "rename", "p1", "x", "--config", writeConfig(t), "--store", srv.URL)
	assert.Error(t, err)
}
