package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Config state is global, so these tests run sequentially.

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestInitializeDefaults(t *testing.T) {
	require.NoError(t, Initialize(writeConfig(t, "log:\n  level: debug\n")))

	cfg := Get()
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 1600, cfg.Server.Port)
	assert.Empty(t, cfg.HTTP.Addr)
	assert.Equal(t, "library", cfg.Engine.Provider)
	assert.Equal(t, 8, cfg.Calculator.MaxConcurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "human", cfg.Log.Format)
}

func TestInitializeFile(t *testing.T) {
	path := writeConfig(t, `server:
  host: 0.0.0.0
  port: 1700
http:
  addr: ":8080"
engine:
  provider: pkcs11
  pkcs11:
    library: /usr/lib/softhsm/libsofthsm2.so
    slot: 3
calculator:
  max_concurrency: 2
`)
	require.NoError(t, Initialize(path))

	cfg := Get()
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 1700, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "pkcs11", cfg.Engine.Provider)
	assert.Equal(t, "/usr/lib/softhsm/libsofthsm2.so", cfg.Engine.PKCS11.Library)
	assert.Equal(t, uint(3), cfg.Engine.PKCS11.Slot)
	assert.Equal(t, 2, cfg.Calculator.MaxConcurrency)
}

func TestInitializeEnv(t *testing.T) {
	t.Setenv("EMVSTUDIO_SERVER_PORT", "1999")
	t.Setenv("EMVSTUDIO_LOG_FORMAT", "json")

	require.NoError(t, Initialize(writeConfig(t, "server:\n  port: 1700\n")))

	cfg := Get()
	assert.Equal(t, 1999, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
}
