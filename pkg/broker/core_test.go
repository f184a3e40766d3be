package broker

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sarihammad/streamit/pkg/codes"
	"github.com/sarihammad/streamit/pkg/idempotency"
	"github.com/sarihammad/streamit/pkg/metrics"
	"github.com/sarihammad/streamit/pkg/storage"
)

func newTestCore(t *testing.T) *Core {
	core, _ := newTestCoreWithMetrics(t)
	return core
}

func newTestCoreWithMetrics(t *testing.T) (*Core, *metrics.Registry) {
	t.Helper()
	dir := t.TempDir()
	logDir, err := storage.Open(dir, storage.Config{MaxSegmentSizeBytes: 1 << 20, FlushPolicy: storage.FlushOnRoll})
	require.NoError(t, err)
	idem := idempotency.New(1024, 0)
	m := metrics.New(prometheus.NewRegistry())
	return New(logDir, idem, m, nil), m
}

func TestProduceThenFetchRoundTrip(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	result, err := core.Produce(ctx, ProduceRequest{
		Topic:     "orders",
		Partition: 0,
		Records:   []storage.Record{{Key: []byte("k1"), Value: []byte("v1")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), result.BaseOffset)

	fetched, err := core.Fetch(ctx, FetchRequest{Topic: "orders", Partition: 0, Offset: 0, MaxBytes: 1 << 16})
	require.NoError(t, err)
	require.Len(t, fetched.Batches, 1)
	require.Equal(t, []byte("v1"), fetched.Batches[0].Records[0].Value)
	require.Equal(t, int64(1), fetched.HighWatermark)
}

func TestProduceIdempotentReplayReturnsPriorOffset(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	req := ProduceRequest{
		Topic:      "orders",
		Partition:  0,
		Records:    []storage.Record{{Key: []byte("k1"), Value: []byte("v1")}},
		ProducerID: "p1",
		Sequence:   0,
	}
	first, err := core.Produce(ctx, req)
	require.NoError(t, err)

	second, err := core.Produce(ctx, req)
	require.Error(t, err)
	require.Equal(t, codes.IdempotentReplay, codes.Of(err))
	require.Equal(t, first.BaseOffset, second.BaseOffset)
}

func TestFetchBeyondHighWatermarkIsOutOfRange(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	_, err := core.Fetch(ctx, FetchRequest{Topic: "orders", Partition: 0, Offset: 5, MaxBytes: 1024})
	require.Error(t, err)
	require.Equal(t, codes.OffsetOutOfRange, codes.Of(err))
}

func TestProduceRejectsEmptyTopic(t *testing.T) {
	core := newTestCore(t)
	_, err := core.Produce(context.Background(), ProduceRequest{Records: []storage.Record{{Value: []byte("v")}}})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, codes.Of(err))
}

func TestProduceAndFetchUpdateMetrics(t *testing.T) {
	core, m := newTestCoreWithMetrics(t)
	ctx := context.Background()

	_, err := core.Produce(ctx, ProduceRequest{
		Topic:     "orders",
		Partition: 0,
		Records:   []storage.Record{{Key: []byte("k1"), Value: []byte("v1")}, {Key: []byte("k2"), Value: []byte("v2")}},
	})
	require.NoError(t, err)
	require.Equal(t, float64(2), testutil.ToFloat64(m.RecordsProduced))
	require.Equal(t, float64(2), testutil.ToFloat64(m.HighWatermark.WithLabelValues("orders", "0")))

	_, err = core.Fetch(ctx, FetchRequest{Topic: "orders", Partition: 0, Offset: 0, MaxBytes: 1 << 16})
	require.NoError(t, err)
	require.Equal(t, float64(2), testutil.ToFloat64(m.RecordsFetched))
}
