package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"registry_dsn":          "file:/tmp/safes.db",
		"dereference_max_depth": 4,
		"limits":                map[string]any{"max_kdf_iterations": 1000},
		"argon2":                map[string]any{"memory_kib": 1024},
		"generator":             map[string]any{"symbols": false},
		"unlock_timeout":        "90s",
	})

	t.Run("loads from flags", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg, []string{"-config", pathFlag})

		assert.Equal(t, "file:/tmp/safes.db", cfg.RegistryDSN)
		assert.Equal(t, 4, cfg.DereferenceMaxDepth)
		assert.Equal(t, uint64(1000), cfg.Limits.MaxKDFIterations)
		assert.Equal(t, uint64(64<<20), cfg.Limits.MaxKDFMemoryBytes, "unnamed keys keep defaults")
		assert.Equal(t, uint64(1024), cfg.Argon2.MemoryKiB)
		assert.Equal(t, uint64(2), cfg.Argon2.Iterations)
		assert.False(t, cfg.Generator.Symbols)
		assert.True(t, cfg.Generator.Digits)
		assert.Equal(t, 90*time.Second, cfg.UnlockTimeout)
		assert.Equal(t, "kdbx", cfg.DefaultFormat)
	})

	t.Run("no flags → no changes", func(t *testing.T) {
		cfg := &Config{
			RegistryDSN:   "file:defaults.db",
			UnlockTimeout: 42 * time.Second,
		}
		parseJson(cfg, []string{"open", "x.kdbx"})

		assert.Equal(t, "file:defaults.db", cfg.RegistryDSN)
		assert.Equal(t, 42*time.Second, cfg.UnlockTimeout)
	})

	t.Run("flags override JSON", func(t *testing.T) {
		cfg := Load([]string{"-c", pathFlag, "-d", "9"})

		assert.Equal(t, 9, cfg.DereferenceMaxDepth)
		assert.Equal(t, "file:/tmp/safes.db", cfg.RegistryDSN)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg, []string{"-config", bad}) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg, []string{"-c", filepath.Join(dir, "nope.json")}) })
	})
}
