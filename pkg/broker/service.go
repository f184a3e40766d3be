package broker

import (
	"context"

	"github.com/sarihammad/streamit/pkg/codes"
	"github.com/sarihammad/streamit/pkg/rpc"
	"github.com/sarihammad/streamit/pkg/storage"
)

// Service adapts Core to the abstract rpc.BrokerService wire contract.
type Service struct {
	core *Core
}

// NewService wraps a Core as an rpc.BrokerService.
func NewService(core *Core) *Service {
	return &Service{core: core}
}

func toStorageRecords(in []rpc.Record) []storage.Record {
	out := make([]storage.Record, len(in))
	for i, r := range in {
		out[i] = storage.Record{Key: r.Key, Value: r.Value, TimestampMs: r.TimestampMs}
	}
	return out
}

func ackLevelOf(s string) AckLevel {
	if s == "quorum" {
		return AckQuorum
	}
	return AckLeader
}

// Produce implements rpc.BrokerService.
func (s *Service) Produce(ctx context.Context, req rpc.ProduceRequest) (rpc.ProduceResponse, error) {
	result, err := s.core.Produce(ctx, ProduceRequest{
		Topic:      req.Topic,
		Partition:  req.Partition,
		Records:    toStorageRecords(req.Records),
		ProducerID: req.ProducerID,
		Sequence:   req.Sequence,
		Ack:        ackLevelOf(req.Ack),
	})
	if err != nil {
		c := codes.Of(err)
		if c == codes.IdempotentReplay {
			// Idempotent replay is the success path for retries: no
			// wire-level error, just the prior offset.
			return rpc.ProduceResponse{BaseOffset: result.BaseOffset}, nil
		}
		return rpc.ProduceResponse{ErrorCode: string(c), ErrorMessage: err.Error()}, nil
	}
	return rpc.ProduceResponse{BaseOffset: result.BaseOffset}, nil
}

// Fetch implements rpc.BrokerService.
func (s *Service) Fetch(ctx context.Context, req rpc.FetchRequest) (rpc.FetchResponse, error) {
	result, err := s.core.Fetch(ctx, FetchRequest{
		Topic:     req.Topic,
		Partition: req.Partition,
		Offset:    req.Offset,
		MaxBytes:  req.MaxBytes,
	})
	resp := rpc.FetchResponse{HighWatermark: result.HighWatermark}
	for _, b := range result.Batches {
		wireBatch := rpc.Batch{BaseOffset: b.BaseOffset, TimestampMs: b.TimestampMs}
		for _, r := range b.Records {
			wireBatch.Records = append(wireBatch.Records, rpc.Record{Key: r.Key, Value: r.Value, TimestampMs: r.TimestampMs})
		}
		resp.Batches = append(resp.Batches, wireBatch)
	}
	if err != nil {
		c := codes.Of(err)
		resp.ErrorCode = string(c)
		resp.ErrorMessage = err.Error()
	}
	return resp, nil
}
