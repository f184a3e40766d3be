package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordBatchRoundTrip(t *testing.T) {
	batch := &RecordBatch{
		BaseOffset:  5,
		TimestampMs: 1700000000000,
		Records: []Record{
			{Key: []byte("a"), Value: []byte("1"), TimestampMs: 1},
			{Key: []byte("b"), Value: []byte("2"), TimestampMs: 2},
		},
	}
	bytes, err := batch.Serialize()
	require.NoError(t, err)
	require.True(t, VerifyCrc32(bytes))

	got, err := DeserializeRecordBatch(bytes)
	require.NoError(t, err)
	require.Equal(t, batch.BaseOffset, got.BaseOffset)
	require.Equal(t, batch.TimestampMs, got.TimestampMs)
	require.Len(t, got.Records, 2)
	require.Equal(t, "a", string(got.Records[0].Key))
	require.Equal(t, "2", string(got.Records[1].Value))
}

func TestRecordBatchCrcDetectsCorruption(t *testing.T) {
	batch := &RecordBatch{
		BaseOffset:  0,
		TimestampMs: 1,
		Records:     []Record{{Key: []byte("k"), Value: []byte("v"), TimestampMs: 1}},
	}
	bytes, err := batch.Serialize()
	require.NoError(t, err)

	corrupted := append([]byte(nil), bytes...)
	corrupted[0] ^= 0xFF
	require.False(t, VerifyCrc32(corrupted))

	_, err = DeserializeRecordBatch(corrupted)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestRecordBatchRejectsEmpty(t *testing.T) {
	_, err := (&RecordBatch{}).Serialize()
	require.ErrorIs(t, err, ErrInvalidArgument)
}
