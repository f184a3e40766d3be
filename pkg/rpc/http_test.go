package rpc

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBrokerService struct{}

func (fakeBrokerService) Produce(ctx context.Context, req ProduceRequest) (ProduceResponse, error) {
	return ProduceResponse{BaseOffset: 7}, nil
}

func (fakeBrokerService) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	return FetchResponse{HighWatermark: 7}, nil
}

type fakeControllerService struct{}

func (fakeControllerService) CreateTopic(ctx context.Context, req CreateTopicRequest) (CreateTopicResponse, error) {
	return CreateTopicResponse{Success: true}, nil
}

func (fakeControllerService) DescribeTopic(ctx context.Context, req DescribeTopicRequest) (DescribeTopicResponse, error) {
	return DescribeTopicResponse{}, nil
}

func (fakeControllerService) FindLeader(ctx context.Context, req FindLeaderRequest) (FindLeaderResponse, error) {
	return FindLeaderResponse{}, nil
}

func (fakeControllerService) ListTopics(ctx context.Context, req ListTopicsRequest) (ListTopicsResponse, error) {
	return ListTopicsResponse{Topics: []string{"orders", "payments"}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBrokerHandlerRoundTripsProduce(t *testing.T) {
	srv := httptest.NewServer(NewBrokerHandler(fakeBrokerService{}, testLogger()))
	defer srv.Close()

	client := NewClient(srv.URL, 0)
	resp, err := client.Produce(context.Background(), ProduceRequest{Topic: "orders", Records: []Record{{Value: []byte("v")}}})
	require.NoError(t, err)
	require.Equal(t, int64(7), resp.BaseOffset)
}

func TestBrokerHandlerRoundTripsFetch(t *testing.T) {
	srv := httptest.NewServer(NewBrokerHandler(fakeBrokerService{}, testLogger()))
	defer srv.Close()

	client := NewClient(srv.URL, 0)
	resp, err := client.Fetch(context.Background(), FetchRequest{Topic: "orders", MaxBytes: 1024})
	require.NoError(t, err)
	require.Equal(t, int64(7), resp.HighWatermark)
}

func TestControllerHandlerRoundTripsListTopics(t *testing.T) {
	srv := httptest.NewServer(NewControllerHandler(fakeControllerService{}, testLogger()))
	defer srv.Close()

	client := NewClient(srv.URL, 0)
	resp, err := client.ListTopics(context.Background(), ListTopicsRequest{})
	require.NoError(t, err)
	require.Equal(t, []string{"orders", "payments"}, resp.Topics)
}
