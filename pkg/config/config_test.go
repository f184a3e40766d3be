package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBrokerAppliesDefaults(t *testing.T) {
	path := writeYAML(t, "log_dir: /data/streamit\n")
	cfg, err := LoadBroker(path)
	require.NoError(t, err)
	require.Equal(t, "/data/streamit", cfg.LogDir)
	require.Equal(t, 9092, cfg.Port)
	require.Equal(t, 1, cfg.ReplicationFactor)
}

func TestLoadBrokerRejectsReplicationFactorOverOne(t *testing.T) {
	path := writeYAML(t, "replication_factor: 3\n")
	_, err := LoadBroker(path)
	require.Error(t, err)
}

func TestLoadCoordinatorDefaultsToMemoryOffsets(t *testing.T) {
	path := writeYAML(t, "host: 0.0.0.0\n")
	cfg, err := LoadCoordinator(path)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.OffsetsBackend)
	require.Equal(t, int64(10_000), cfg.SessionTimeoutMs)
}

func TestLoadControllerMissingFileErrors(t *testing.T) {
	_, err := LoadController(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
