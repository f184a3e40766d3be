package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{MaxSegmentSizeBytes: 1024, FlushPolicy: FlushEachBatch}
}

func TestLogDirRollsOnSize(t *testing.T) {
	root := t.TempDir()
	ld, err := Open(root, testConfig())
	require.NoError(t, err)

	record := Record{Key: make([]byte, 32), Value: make([]byte, 32)}
	var lastOffset int64
	for i := 0; i < 40; i++ {
		seg, err := ld.GetSegment("orders", 0)
		require.NoError(t, err)
		off, err := seg.Append([]Record{record}, int64(i))
		if err == ErrResourceExhausted {
			seg, err = ld.RollSegment("orders", 0)
			require.NoError(t, err)
			off, err = seg.Append([]Record{record}, int64(i))
			require.NoError(t, err)
		}
		require.NoError(t, err)
		lastOffset = off
	}
	require.Greater(t, lastOffset, int64(0))

	segs := ld.GetSegments("orders", 0)
	require.Greater(t, len(segs), 1)
	for i := 0; i+1 < len(segs); i++ {
		require.Equal(t, segs[i].EndOffset(), segs[i+1].BaseOffset())
	}
}

func TestLogDirReopenPreservesChain(t *testing.T) {
	root := t.TempDir()
	ld, err := Open(root, testConfig())
	require.NoError(t, err)

	seg, err := ld.GetSegment("orders", 0)
	require.NoError(t, err)
	_, err = seg.Append([]Record{{Key: []byte("a"), Value: []byte("1")}}, 1)
	require.NoError(t, err)
	require.NoError(t, ld.SetHighWaterMark("orders", 0, 1))

	reopened, err := Open(root, testConfig())
	require.NoError(t, err)
	require.Equal(t, int64(1), reopened.GetEndOffset("orders", 0))
	require.Equal(t, int64(1), reopened.GetHighWaterMark("orders", 0))
}

func TestLogDirCleanupKeepsActiveSegment(t *testing.T) {
	root := t.TempDir()
	ld, err := Open(root, testConfig())
	require.NoError(t, err)

	record := Record{Key: make([]byte, 64), Value: make([]byte, 64)}
	for i := 0; i < 60; i++ {
		seg, err := ld.GetSegment("orders", 0)
		require.NoError(t, err)
		if _, err := seg.Append([]Record{record}, int64(i)); err == ErrResourceExhausted {
			seg, err = ld.RollSegment("orders", 0)
			require.NoError(t, err)
			_, err = seg.Append([]Record{record}, int64(i))
			require.NoError(t, err)
		}
	}
	require.NoError(t, ld.SetHighWaterMark("orders", 0, 0))

	err = ld.CleanupOldSegments("orders", 0, 128)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(ld.GetSegments("orders", 0)), 1)
}

func TestLogDirCleanupNeverEvictsSegmentOverlappingHighWatermark(t *testing.T) {
	root := t.TempDir()
	ld, err := Open(root, testConfig())
	require.NoError(t, err)

	record := Record{Key: make([]byte, 64), Value: make([]byte, 64)}
	for i := 0; i < 60; i++ {
		seg, err := ld.GetSegment("orders", 0)
		require.NoError(t, err)
		if _, err := seg.Append([]Record{record}, int64(i)); err == ErrResourceExhausted {
			seg, err = ld.RollSegment("orders", 0)
			require.NoError(t, err)
			_, err = seg.Append([]Record{record}, int64(i))
			require.NoError(t, err)
		}
	}

	segsBefore := ld.GetSegments("orders", 0)
	require.Greater(t, len(segsBefore), 2, "test needs at least one closed segment behind the most recently closed one")
	mostRecentlyClosed := segsBefore[len(segsBefore)-2]

	// Watermark sits partway through the most recently closed segment,
	// i.e. consumers haven't caught up past it yet. A huge retention
	// budget means only the high-watermark guard can trigger eviction.
	require.NoError(t, ld.SetHighWaterMark("orders", 0, mostRecentlyClosed.BaseOffset()))

	err = ld.CleanupOldSegments("orders", 0, 1<<30)
	require.NoError(t, err)

	segsAfter := ld.GetSegments("orders", 0)
	require.Equal(t, mostRecentlyClosed.BaseOffset(), segsAfter[0].BaseOffset(),
		"the segment overlapping the high watermark must survive cleanup")
}
