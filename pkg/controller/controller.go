// Package controller implements the topic-metadata table: an
// in-memory map from topic name to partition count, replication
// factor, and leader — trivial by design, per the broker/controller/
// coordinator split where only the broker's storage core and the
// coordinator's group state machine carry real engineering weight.
package controller

import (
	"context"
	"sort"
	"sync"

	"github.com/sarihammad/streamit/pkg/codes"
	"github.com/sarihammad/streamit/pkg/idempotency"
	"github.com/sarihammad/streamit/pkg/rpc"
)

type topicInfo struct {
	partitions        int32
	replicationFactor int32
}

// Controller owns the topic metadata table. All operations are
// serialized by a single mutex (Controller mutex, a leaf per the
// lock-ordering discipline).
type Controller struct {
	mu          sync.Mutex
	topics      map[string]topicInfo
	brokerID    int32
	brokerHost  string
	brokerPort  int32
	idempotency *idempotency.BoundedTable // for topic-delete cleanup, when wired
}

// New creates a Controller describing the single broker at
// (brokerHost, brokerPort) as the leader of every partition —
// single-replica, per the spec's acknowledged replication limitation.
func New(brokerID int32, brokerHost string, brokerPort int32, idem *idempotency.BoundedTable) *Controller {
	return &Controller{
		topics:      make(map[string]topicInfo),
		brokerID:    brokerID,
		brokerHost:  brokerHost,
		brokerPort:  brokerPort,
		idempotency: idem,
	}
}

// CreateTopic implements rpc.ControllerService.
func (c *Controller) CreateTopic(ctx context.Context, req rpc.CreateTopicRequest) (rpc.CreateTopicResponse, error) {
	if req.Topic == "" || req.Partitions <= 0 {
		return rpc.CreateTopicResponse{ErrorMessage: string(codes.InvalidArgument)}, nil
	}
	if req.ReplicationFactor != 0 && req.ReplicationFactor != 1 {
		return rpc.CreateTopicResponse{ErrorMessage: "replication_factor must be 1 (single-replica)"}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.topics[req.Topic]; exists {
		return rpc.CreateTopicResponse{ErrorMessage: string(codes.AlreadyExists)}, nil
	}
	c.topics[req.Topic] = topicInfo{partitions: req.Partitions, replicationFactor: 1}
	return rpc.CreateTopicResponse{Success: true}, nil
}

// DeleteTopic removes topic metadata and its idempotency-table
// entries, so a later recreation of the same topic name doesn't
// inherit stale idempotency keys.
func (c *Controller) DeleteTopic(topic string) error {
	c.mu.Lock()
	if _, exists := c.topics[topic]; !exists {
		c.mu.Unlock()
		return codes.New(codes.NotFound, "unknown topic")
	}
	delete(c.topics, topic)
	c.mu.Unlock()

	if c.idempotency != nil {
		c.idempotency.RemoveTopic(topic)
	}
	return nil
}

// DescribeTopic implements rpc.ControllerService. Replicas is always a
// single-element list and the leader is the sole broker, since this
// controller never implements replication; no ISR is reported.
func (c *Controller) DescribeTopic(ctx context.Context, req rpc.DescribeTopicRequest) (rpc.DescribeTopicResponse, error) {
	c.mu.Lock()
	info, ok := c.topics[req.Topic]
	c.mu.Unlock()
	if !ok {
		return rpc.DescribeTopicResponse{ErrorMessage: string(codes.NotFound)}, nil
	}
	partitions := make([]int32, info.partitions)
	for i := range partitions {
		partitions[i] = int32(i)
	}
	return rpc.DescribeTopicResponse{
		Metadata: rpc.TopicMetadata{
			Partitions: partitions,
			Replicas:   []int32{c.brokerID},
			Leader:     c.brokerID,
		},
	}, nil
}

// FindLeader implements rpc.ControllerService.
func (c *Controller) FindLeader(ctx context.Context, req rpc.FindLeaderRequest) (rpc.FindLeaderResponse, error) {
	c.mu.Lock()
	info, ok := c.topics[req.Topic]
	c.mu.Unlock()
	if !ok || req.Partition < 0 || req.Partition >= info.partitions {
		return rpc.FindLeaderResponse{ErrorMessage: string(codes.NotFound)}, nil
	}
	return rpc.FindLeaderResponse{LeaderBrokerID: c.brokerID, Host: c.brokerHost, Port: c.brokerPort}, nil
}

// PartitionCounts implements group.TopicPartitionCounts, resolving
// real partition counts instead of a hardcoded constant.
func (c *Controller) PartitionCounts(ctx context.Context, topics []string) (map[string]int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int32, len(topics))
	for _, t := range topics {
		if info, ok := c.topics[t]; ok {
			out[t] = info.partitions
		}
	}
	return out, nil
}

// ListTopics implements rpc.ControllerService, returning every known
// topic name sorted.
func (c *Controller) ListTopics(ctx context.Context, req rpc.ListTopicsRequest) (rpc.ListTopicsResponse, error) {
	return rpc.ListTopicsResponse{Topics: c.topicNames()}, nil
}

func (c *Controller) topicNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.topics))
	for name := range c.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
