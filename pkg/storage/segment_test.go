package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSegment(t *testing.T, baseOffset int64, maxSize int64) (*Segment, string, string) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "0.log")
	indexPath := filepath.Join(dir, "0.index")
	seg, err := CreateSegment(logPath, indexPath, baseOffset, maxSize, FlushEachBatch, nil)
	require.NoError(t, err)
	return seg, logPath, indexPath
}

func TestSegmentAppendAndRead(t *testing.T) {
	seg, _, _ := newTestSegment(t, 0, 1<<20)
	defer seg.CloseFiles()

	first, err := seg.Append([]Record{{Key: []byte("a"), Value: []byte("1")}, {Key: []byte("b"), Value: []byte("2")}}, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), first)

	second, err := seg.Append([]Record{{Key: []byte("c"), Value: []byte("3")}}, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), second)
	require.Equal(t, int64(3), seg.EndOffset())

	batches, err := seg.Read(0, 1<<20)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Equal(t, int64(0), batches[0].BaseOffset)
	require.Equal(t, int64(2), batches[1].BaseOffset)
}

func TestSegmentResourceExhausted(t *testing.T) {
	// Room for the first 42-byte batch but not the second 44-byte one.
	seg, _, _ := newTestSegment(t, 0, int64(headerSize+48))
	defer seg.CloseFiles()

	_, err := seg.Append([]Record{{Key: []byte("k"), Value: []byte("v")}}, 1)
	require.NoError(t, err)

	_, err = seg.Append([]Record{{Key: []byte("k2"), Value: []byte("v2")}}, 2)
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.True(t, seg.IsFull())
}

func TestSegmentRecoveryTruncatesCorruptTail(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "0.log")
	indexPath := filepath.Join(dir, "0.index")

	seg, err := CreateSegment(logPath, indexPath, 0, 1<<20, FlushEachBatch, nil)
	require.NoError(t, err)
	_, err = seg.Append([]Record{{Key: []byte("a"), Value: []byte("1")}}, 1)
	require.NoError(t, err)
	_, err = seg.Append([]Record{{Key: []byte("b"), Value: []byte("2")}}, 2)
	require.NoError(t, err)
	validSize := seg.Size()
	require.NoError(t, seg.CloseFiles())

	// Simulate an unclean shutdown mid-write of a third batch.
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := OpenSegment(logPath, indexPath, 1<<20, FlushEachBatch, nil)
	require.NoError(t, err)
	defer reopened.CloseFiles()

	require.Equal(t, int64(2), reopened.EndOffset())
	require.Equal(t, validSize, reopened.Size())

	batches, err := reopened.Read(0, 1<<20)
	require.NoError(t, err)
	require.Len(t, batches, 2)
}
