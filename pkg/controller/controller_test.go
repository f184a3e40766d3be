package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarihammad/streamit/pkg/idempotency"
	"github.com/sarihammad/streamit/pkg/rpc"
)

func TestCreateTopicThenDescribe(t *testing.T) {
	ctl := New(1, "localhost", 9092, nil)
	ctx := context.Background()

	resp, err := ctl.CreateTopic(ctx, rpc.CreateTopicRequest{Topic: "orders", Partitions: 3})
	require.NoError(t, err)
	require.True(t, resp.Success)

	desc, err := ctl.DescribeTopic(ctx, rpc.DescribeTopicRequest{Topic: "orders"})
	require.NoError(t, err)
	require.Len(t, desc.Metadata.Partitions, 3)
	require.Equal(t, int32(1), desc.Metadata.Leader)
}

func TestCreateTopicRejectsDuplicate(t *testing.T) {
	ctl := New(1, "localhost", 9092, nil)
	ctx := context.Background()
	_, err := ctl.CreateTopic(ctx, rpc.CreateTopicRequest{Topic: "orders", Partitions: 1})
	require.NoError(t, err)

	resp, err := ctl.CreateTopic(ctx, rpc.CreateTopicRequest{Topic: "orders", Partitions: 1})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ErrorMessage)
}

func TestCreateTopicRejectsMultiReplica(t *testing.T) {
	ctl := New(1, "localhost", 9092, nil)
	resp, err := ctl.CreateTopic(context.Background(), rpc.CreateTopicRequest{Topic: "orders", Partitions: 1, ReplicationFactor: 3})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ErrorMessage)
}

func TestDeleteTopicClearsIdempotencyEntries(t *testing.T) {
	idem := idempotency.New(16, 0)
	ctl := New(1, "localhost", 9092, idem)
	ctx := context.Background()
	_, err := ctl.CreateTopic(ctx, rpc.CreateTopicRequest{Topic: "orders", Partitions: 1})
	require.NoError(t, err)

	key := idempotency.Key{ProducerID: "p1", Topic: "orders", Partition: 0}
	idem.UpdateSequence(key, 0, 10)
	require.Equal(t, int64(10), idem.GetLastOffset(key))

	require.NoError(t, ctl.DeleteTopic("orders"))
	require.Equal(t, int64(-1), idem.GetLastOffset(key))
}

func TestListTopicsReturnsSortedNames(t *testing.T) {
	ctl := New(1, "localhost", 9092, nil)
	ctx := context.Background()
	_, err := ctl.CreateTopic(ctx, rpc.CreateTopicRequest{Topic: "payments", Partitions: 1})
	require.NoError(t, err)
	_, err = ctl.CreateTopic(ctx, rpc.CreateTopicRequest{Topic: "orders", Partitions: 1})
	require.NoError(t, err)

	resp, err := ctl.ListTopics(ctx, rpc.ListTopicsRequest{})
	require.NoError(t, err)
	require.Equal(t, []string{"orders", "payments"}, resp.Topics)
}

func TestPartitionCountsResolvesKnownTopicsOnly(t *testing.T) {
	ctl := New(1, "localhost", 9092, nil)
	ctx := context.Background()
	_, err := ctl.CreateTopic(ctx, rpc.CreateTopicRequest{Topic: "orders", Partitions: 4})
	require.NoError(t, err)

	counts, err := ctl.PartitionCounts(ctx, []string{"orders", "unknown"})
	require.NoError(t, err)
	require.Equal(t, int32(4), counts["orders"])
	_, ok := counts["unknown"]
	require.False(t, ok)
}
