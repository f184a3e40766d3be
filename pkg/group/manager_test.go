package group

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedPartitionCounts(counts map[string]int32) TopicPartitionCounts {
	return func(ctx context.Context, topics []string) (map[string]int32, error) {
		out := make(map[string]int32, len(topics))
		for _, t := range topics {
			out[t] = counts[t]
		}
		return out, nil
	}
}

func TestJoinGroupAssignsDeterministically(t *testing.T) {
	ctx := context.Background()
	m := New(10*time.Second, fixedPartitionCounts(map[string]int32{"t1": 6}), NewMemOffsetStore())

	a1, err := m.JoinGroup(ctx, "g1", "m1", []string{"t1"})
	require.NoError(t, err)
	a2, err := m.JoinGroup(ctx, "g1", "m2", []string{"t1"})
	require.NoError(t, err)

	// Rebalance ran again on m2's join; re-fetch m1's assignment too.
	a1, err = m.GetAssignments("g1", "m1")
	require.NoError(t, err)

	require.Len(t, a1, 3)
	require.Len(t, a2, 3)

	seen := map[int32]bool{}
	for _, a := range append(append([]PartitionAssignment{}, a1...), a2...) {
		require.False(t, seen[a.Partition])
		seen[a.Partition] = true
	}
	require.Len(t, seen, 6)
}

func TestRebalanceHookFiresOnJoinAndLeave(t *testing.T) {
	ctx := context.Background()
	m := New(10*time.Second, fixedPartitionCounts(map[string]int32{"t1": 2}), NewMemOffsetStore())
	var fired int
	m.SetRebalanceHook(func() { fired++ })

	_, err := m.JoinGroup(ctx, "g1", "m1", []string{"t1"})
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	require.NoError(t, m.LeaveGroup(ctx, "g1", "m1"))
	require.Equal(t, 2, fired)
}

func TestHeartbeatAndSessionTimeout(t *testing.T) {
	ctx := context.Background()
	m := New(10*time.Millisecond, fixedPartitionCounts(map[string]int32{"t1": 2}), NewMemOffsetStore())

	_, err := m.JoinGroup(ctx, "g1", "m1", []string{"t1"})
	require.NoError(t, err)
	_, err = m.JoinGroup(ctx, "g1", "m2", []string{"t1"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.CleanupInactiveMembers(ctx))

	members, assignments, err := m.GetGroup("g1")
	require.NoError(t, err)
	require.Len(t, members, 0)
	require.Len(t, assignments, 0)
}

func TestCommitAndGetOffsetReadYourWrites(t *testing.T) {
	ctx := context.Background()
	m := New(time.Second, fixedPartitionCounts(nil), NewMemOffsetStore())

	require.NoError(t, m.CommitOffset(ctx, "g1", "t1", 0, 100))
	off, err := m.GetCommittedOffset(ctx, "g1", "t1", 0)
	require.NoError(t, err)
	require.Equal(t, int64(100), off)
}

func TestGetCommittedOffsetDefaultsToZero(t *testing.T) {
	ctx := context.Background()
	m := New(time.Second, fixedPartitionCounts(nil), NewMemOffsetStore())
	off, err := m.GetCommittedOffset(ctx, "g1", "unseen-topic", 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), off)
}
