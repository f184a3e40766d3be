package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFirstSequenceMustBeZero(t *testing.T) {
	tbl := New(10, time.Hour)
	key := Key{ProducerID: "p1", Topic: "orders", Partition: 0}
	require.True(t, tbl.IsValidSequence(key, 0))
	require.False(t, tbl.IsValidSequence(key, 1))
}

func TestSequenceMustStrictlyIncrease(t *testing.T) {
	tbl := New(10, time.Hour)
	key := Key{ProducerID: "p1", Topic: "orders", Partition: 0}
	tbl.UpdateSequence(key, 0, 100)

	require.False(t, tbl.IsValidSequence(key, 0))
	require.True(t, tbl.IsValidSequence(key, 1))
	require.Equal(t, int64(100), tbl.GetLastOffset(key))
}

func TestBoundedCapacityEvictsLRU(t *testing.T) {
	tbl := New(2, time.Hour)
	k1 := Key{ProducerID: "p1", Topic: "t", Partition: 0}
	k2 := Key{ProducerID: "p2", Topic: "t", Partition: 0}
	k3 := Key{ProducerID: "p3", Topic: "t", Partition: 0}

	tbl.UpdateSequence(k1, 0, 1)
	tbl.UpdateSequence(k2, 0, 2)
	tbl.UpdateSequence(k3, 0, 3) // evicts k1 (least recently used)

	require.Equal(t, 2, tbl.Size())
	require.Equal(t, int64(-1), tbl.GetLastSequence(k1))
	require.Equal(t, int64(0), tbl.GetLastSequence(k2))
}

func TestTTLExpiry(t *testing.T) {
	tbl := New(10, time.Millisecond)
	key := Key{ProducerID: "p1", Topic: "t", Partition: 0}
	tbl.UpdateSequence(key, 0, 1)
	time.Sleep(5 * time.Millisecond)
	tbl.CleanupExpired()
	require.Equal(t, 0, tbl.Size())
}

func TestRemoveTopicScopesByTopic(t *testing.T) {
	tbl := New(10, time.Hour)
	k1 := Key{ProducerID: "p1", Topic: "orders", Partition: 0}
	k2 := Key{ProducerID: "p1", Topic: "clicks", Partition: 0}
	tbl.UpdateSequence(k1, 0, 1)
	tbl.UpdateSequence(k2, 0, 1)

	tbl.RemoveTopic("orders")
	require.Equal(t, int64(-1), tbl.GetLastSequence(k1))
	require.Equal(t, int64(0), tbl.GetLastSequence(k2))
}
