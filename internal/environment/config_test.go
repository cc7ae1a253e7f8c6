package environment_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/programme-lv/proctor/internal/environment"
	"github.com/stretchr/testify/require"
)

func TestReadFileConfigDefaults(t *testing.T) {
	cfg, err := environment.ReadFileConfig("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 1280, cfg.CanvasWidth)
	require.Equal(t, 720, cfg.CanvasHeight)
	require.Equal(t, time.Second, cfg.ChunkInterval())
}

func TestReadFileConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proctor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr = ":9999"
frame_rate = 30
chunk_seconds = 2
`), 0644))

	cfg, err := environment.ReadFileConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, 30, cfg.FrameRate)
	require.Equal(t, 2*time.Second, cfg.ChunkInterval())
	// Untouched keys keep their defaults.
	require.Equal(t, 1280, cfg.CanvasWidth)
}

func TestReadFileConfigMissingFile(t *testing.T) {
	_, err := environment.ReadFileConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestChunkIntervalGuardsZero(t *testing.T) {
	cfg := environment.FileConfig{}
	require.Equal(t, time.Second, cfg.ChunkInterval())
}
