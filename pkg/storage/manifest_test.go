package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManifestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mm := NewManifestManager(dir)

	err := mm.Save(PartitionManifest{BaseOffset: 0, NextOffset: 10, HighWatermark: 10, TimestampMs: 123})
	require.NoError(t, err)

	got, err := mm.Load()
	require.NoError(t, err)
	require.Equal(t, int64(10), got.NextOffset)
	require.Equal(t, int64(10), got.HighWatermark)
}

func TestManifestLoadMissingIsNotFound(t *testing.T) {
	mm := NewManifestManager(t.TempDir())
	_, err := mm.Load()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManifestUpdateOffsetsRebuildsOnMissing(t *testing.T) {
	mm := NewManifestManager(t.TempDir())
	err := mm.UpdateOffsets(5, 5)
	require.NoError(t, err)

	got, err := mm.Load()
	require.NoError(t, err)
	require.Equal(t, int64(5), got.NextOffset)
	require.Equal(t, int64(0), got.BaseOffset)
}
