package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sarihammad/streamit/pkg/group"
	"github.com/sarihammad/streamit/pkg/rpc"
)

func fixedCounts(counts map[string]int32) group.TopicPartitionCounts {
	return func(ctx context.Context, topics []string) (map[string]int32, error) {
		out := make(map[string]int32, len(topics))
		for _, t := range topics {
			out[t] = counts[t]
		}
		return out, nil
	}
}

func TestPollAssignmentJoinsAndAssigns(t *testing.T) {
	manager := group.New(10*time.Second, fixedCounts(map[string]int32{"orders": 2}), group.NewMemOffsetStore())
	svc := New(manager, time.Second)

	resp, err := svc.PollAssignment(context.Background(), rpc.PollAssignmentRequest{
		Group: "g1", MemberID: "m1", Topics: []string{"orders"},
	})
	require.NoError(t, err)
	require.Empty(t, resp.ErrorMessage)
	require.Len(t, resp.Assignments, 2)
}

func TestPollAssignmentRejectsMissingMemberID(t *testing.T) {
	manager := group.New(10*time.Second, fixedCounts(nil), group.NewMemOffsetStore())
	svc := New(manager, time.Second)
	resp, err := svc.PollAssignment(context.Background(), rpc.PollAssignmentRequest{Group: "g1"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ErrorMessage)
}

func TestCommitOffsetIsVisibleThroughManager(t *testing.T) {
	manager := group.New(10*time.Second, fixedCounts(map[string]int32{"orders": 1}), group.NewMemOffsetStore())
	svc := New(manager, time.Second)
	ctx := context.Background()

	resp, err := svc.CommitOffset(ctx, rpc.CommitOffsetRequest{Group: "g1", Topic: "orders", Partition: 0, Offset: 42})
	require.NoError(t, err)
	require.Empty(t, resp.ErrorMessage)

	offset, err := manager.GetCommittedOffset(ctx, "g1", "orders", 0)
	require.NoError(t, err)
	require.Equal(t, int64(42), offset)
}
