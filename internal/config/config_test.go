package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, "127.0.0.1:5000", cfg.Ingestor.Bind)
	require.Equal(t, ModeTesting, cfg.Ingestor.Mode)
	require.Equal(t, uint32(256), cfg.Shm.SlotSize)
	require.Equal(t, uint32(1024), cfg.Shm.SlotCount)
	require.Equal(t, "truncate", cfg.Shm.OverflowPolicy)
}

func TestLoadFileOverlaysOntoDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.toml")
	require.NoError(t, err)
	_, err = f.WriteString(`
schema_path = "schemas/md.json"

[ingestor]
bind = "0.0.0.0:6000"

[shm]
slot_count = 2048
`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := LoadFile(f.Name())
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:6000", cfg.Ingestor.Bind)
	require.Equal(t, uint32(2048), cfg.Shm.SlotCount)
	// Untouched-by-file fields keep their defaults.
	require.Equal(t, uint32(256), cfg.Shm.SlotSize)
	require.Equal(t, "schemas/md.json", cfg.SchemaPath)
}

func TestLoadFileEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestApplyEnvOverridesFields(t *testing.T) {
	t.Setenv("SHM_NAME", "custom_ring")
	t.Setenv("SHM_SLOT_SIZE", "512")
	t.Setenv("INGEST_MODE", "NORMAL")

	cfg := Default()
	cfg.ApplyEnv()

	require.Equal(t, "custom_ring", cfg.Shm.Name)
	require.Equal(t, uint32(512), cfg.Shm.SlotSize)
	require.Equal(t, ModeNormal, cfg.Ingestor.Mode)
}

func TestApplyEnvLeavesUnsetFieldsAlone(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv()
	require.Equal(t, Default().Shm.Name, cfg.Shm.Name)
}
