package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Relay.Port)
	assert.Equal(t, 54*time.Second, cfg.Relay.PingPeriod)
	assert.Equal(t, "signage:rooms", cfg.Relay.RedisChannel)
	assert.Equal(t, 5, cfg.Client.ReconnectAttempts)
	assert.False(t, cfg.Relay.EmbeddedStore)
}

func TestLoadFile_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
relay:
  port: 9090
  secret: file-secret
  embedded_store: true
client:
  heartbeat: 5s
  outbox_size: 16
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("SIGNAGE_RELAY_SECRET", "env-secret")
	t.Setenv("SIGNAGE_CLIENT_TOKEN", "tok")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Relay.Port)
	assert.Equal(t, "env-secret", cfg.Relay.Secret)
	assert.True(t, cfg.Relay.EmbeddedStore)

	opts := cfg.Client.SessionOptions()
	assert.Equal(t, 5*time.Second, opts.HeartbeatInterval)
	assert.Equal(t, 16, opts.OutboxSize)
	assert.Equal(t, "tok", opts.Token)
	assert.Equal(t, "ws://localhost:8080/api/ws", opts.URL)
}
