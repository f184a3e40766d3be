// Package rpc defines the abstract Broker, Controller, and Coordinator
// service contracts and a JSON-over-HTTP transport for them.
package rpc

import "context"

// ProduceRequest/ProduceResponse, FetchRequest/FetchResponse are the
// wire shapes for the Broker service.
type ProduceRequest struct {
	Topic      string   `json:"topic"`
	Partition  int32    `json:"partition"`
	Records    []Record `json:"records"`
	ProducerID string   `json:"producer_id,omitempty"`
	Sequence   int64    `json:"sequence,omitempty"`
	Ack        string   `json:"ack,omitempty"` // "leader" | "quorum"
}

// Record is the wire shape of one key/value pair.
type Record struct {
	Key         []byte `json:"key"`
	Value       []byte `json:"value"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// ProduceResponse carries the result or error of a Produce call.
type ProduceResponse struct {
	BaseOffset   int64  `json:"base_offset"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// FetchRequest asks for records starting at Offset.
type FetchRequest struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
	MaxBytes  int64  `json:"max_bytes"`
}

// Batch is the wire shape of one returned record batch.
type Batch struct {
	BaseOffset  int64    `json:"base_offset"`
	TimestampMs int64    `json:"timestamp_ms"`
	Records     []Record `json:"records"`
}

// FetchResponse carries the result or error of a Fetch call.
type FetchResponse struct {
	Batches       []Batch `json:"batches"`
	HighWatermark int64   `json:"high_watermark"`
	ErrorCode     string  `json:"error_code,omitempty"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}

// BrokerService is the abstract Broker RPC surface.
type BrokerService interface {
	Produce(ctx context.Context, req ProduceRequest) (ProduceResponse, error)
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// CreateTopicRequest/Response, DescribeTopicRequest/Response,
// FindLeaderRequest/Response are the Controller service's wire shapes.
type CreateTopicRequest struct {
	Topic             string `json:"topic"`
	Partitions        int32  `json:"partitions"`
	ReplicationFactor int32  `json:"replication_factor"`
}

type CreateTopicResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type DescribeTopicRequest struct {
	Topic string `json:"topic"`
}

type TopicMetadata struct {
	Partitions []int32 `json:"partitions"`
	Replicas   []int32 `json:"replicas"`
	Leader     int32   `json:"leader"`
}

type DescribeTopicResponse struct {
	Metadata     TopicMetadata `json:"metadata"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

type FindLeaderRequest struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
}

type FindLeaderResponse struct {
	LeaderBrokerID int32  `json:"leader_broker_id"`
	Host           string `json:"host"`
	Port           int32  `json:"port"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// ListTopicsRequest takes no parameters; every known topic is returned.
type ListTopicsRequest struct{}

type ListTopicsResponse struct {
	Topics       []string `json:"topics"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// ControllerService is the abstract Controller RPC surface.
type ControllerService interface {
	CreateTopic(ctx context.Context, req CreateTopicRequest) (CreateTopicResponse, error)
	DescribeTopic(ctx context.Context, req DescribeTopicRequest) (DescribeTopicResponse, error)
	FindLeader(ctx context.Context, req FindLeaderRequest) (FindLeaderResponse, error)
	ListTopics(ctx context.Context, req ListTopicsRequest) (ListTopicsResponse, error)
}

// CommitOffsetRequest/Response and PollAssignmentRequest/Response are
// the Coordinator service's wire shapes.
type CommitOffsetRequest struct {
	Group     string `json:"group"`
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
}

type CommitOffsetResponse struct {
	ErrorMessage string `json:"error_message,omitempty"`
}

type PollAssignmentRequest struct {
	Group    string   `json:"group"`
	MemberID string   `json:"member_id"`
	Topics   []string `json:"topics"`
}

type Assignment struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
}

type PollAssignmentResponse struct {
	Assignments        []Assignment `json:"assignments"`
	HeartbeatIntervalMs int64       `json:"heartbeat_interval_ms"`
	ErrorMessage        string      `json:"error_message,omitempty"`
}

// CoordinatorService is the abstract Coordinator RPC surface. A single
// PollAssignment RPC does join + heartbeat + fetch-assignments.
type CoordinatorService interface {
	CommitOffset(ctx context.Context, req CommitOffsetRequest) (CommitOffsetResponse, error)
	PollAssignment(ctx context.Context, req PollAssignmentRequest) (PollAssignmentResponse, error)
}
