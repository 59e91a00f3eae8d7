package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/diskforge/internal/core/services/build"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Runs the test from an empty directory so no stray .env is picked up.
func inTempDir(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, build.DefaultBuilderImage, cfg.BuilderImage)
	assert.Equal(t, build.DefaultStoragePath, cfg.StoragePath)
	assert.Equal(t, "history.db", filepath.Base(cfg.HistoryDB))
	assert.Contains(t, cfg.Engines, DefaultEngine)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	inTempDir(t)
	path := writeConfig(t, `
builder_image: registry.example.com/bib:1.0
log_level: debug
engines:
  podman:
    host: unix:///run/podman/podman.sock
  docker:
    host: ""
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "registry.example.com/bib:1.0", cfg.BuilderImage)
	assert.Equal(t, build.DefaultStoragePath, cfg.StoragePath)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, map[string]string{
		"podman": "unix:///run/podman/podman.sock",
		"docker": "",
	}, cfg.EngineHosts())
}

func TestLoadKeepsDefaultEngineWithoutEngines(t *testing.T) {
	inTempDir(t)

	cfg, err := Load(writeConfig(t, "log_level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{DefaultEngine: ""}, cfg.EngineHosts())
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	inTempDir(t)
	path := writeConfig(t, "listen: \":8080\"\n")
	t.Setenv("DISKFORGE_LISTEN", ":9090")
	t.Setenv("DISKFORGE_NATS_URL", "nats://localhost:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestLoadDotEnv(t *testing.T) {
	inTempDir(t)
	require.NoError(t, os.WriteFile(".env", []byte("DISKFORGE_BUILDER_IMAGE=localhost/bib:dev\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DISKFORGE_BUILDER_IMAGE") })

	cfg, err := Load(writeConfig(t, "log_level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, "localhost/bib:dev", cfg.BuilderImage)
}

func TestLoadErrors(t *testing.T) {
	inTempDir(t)

	tests := map[string]string{
		"bad yaml":         "engines: [",
		"relative storage": "storage_path: containers/storage\n",
		"bad level":        "log_level: loud\n",
		"empty image":      "builder_image: \"\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
