package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexBuilder(t *testing.T) {
	builder := NewIndexBuilder(2)
	builder.MaybeAdd(0, 32, 1, 28)
	builder.MaybeAdd(1, 64, 1, 28) // within interval, should not add
	builder.MaybeAdd(2, 96, 1, 28) // interval satisfied, should add

	entries := builder.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, int64(2), entries[1].RelativeOffset)
	require.Equal(t, int32(28), entries[1].BatchSize)

	data, err := builder.BuildBytes()
	require.NoError(t, err)
	parsed, err := ParseIndex(data)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	require.Equal(t, int64(0), parsed[0].RelativeOffset)
}

func TestFindIndexEntry(t *testing.T) {
	entries := []IndexEntry{
		{RelativeOffset: 0}, {RelativeOffset: 4}, {RelativeOffset: 9},
	}
	require.Equal(t, 0, findIndexEntry(entries, 0))
	require.Equal(t, 1, findIndexEntry(entries, 7))
	require.Equal(t, 2, findIndexEntry(entries, 100))
	require.Equal(t, -1, findIndexEntry(entries, -1))
}

func TestParseIndexRejectsMisalignedLength(t *testing.T) {
	_, err := ParseIndex(make([]byte, indexEntrySize+1))
	require.ErrorIs(t, err, ErrCorrupted)
}
