// Package coordinator adapts the consumer-group manager to the
// abstract rpc.CoordinatorService wire contract.
package coordinator

import (
	"context"
	"time"

	"github.com/sarihammad/streamit/pkg/codes"
	"github.com/sarihammad/streamit/pkg/group"
	"github.com/sarihammad/streamit/pkg/rpc"
)

// Service wraps a group.Manager as an rpc.CoordinatorService.
type Service struct {
	manager           *group.Manager
	heartbeatInterval time.Duration
}

// New builds a Service. heartbeatInterval is reported back to callers
// of PollAssignment as the interval they should poll at.
func New(manager *group.Manager, heartbeatInterval time.Duration) *Service {
	return &Service{manager: manager, heartbeatInterval: heartbeatInterval}
}

// CommitOffset implements rpc.CoordinatorService.
func (s *Service) CommitOffset(ctx context.Context, req rpc.CommitOffsetRequest) (rpc.CommitOffsetResponse, error) {
	if err := s.manager.CommitOffset(ctx, req.Group, req.Topic, req.Partition, req.Offset); err != nil {
		return rpc.CommitOffsetResponse{ErrorMessage: err.Error()}, nil
	}
	return rpc.CommitOffsetResponse{}, nil
}

// PollAssignment implements rpc.CoordinatorService: a single RPC doing
// join + heartbeat + fetch-assignments, per the abstract contract.
func (s *Service) PollAssignment(ctx context.Context, req rpc.PollAssignmentRequest) (rpc.PollAssignmentResponse, error) {
	if req.Group == "" || req.MemberID == "" {
		return rpc.PollAssignmentResponse{ErrorMessage: string(codes.InvalidArgument)}, nil
	}

	// Heartbeat is best-effort here: an unknown member falls through
	// to JoinGroup below, which treats it as a fresh join.
	_ = s.manager.Heartbeat(req.Group, req.MemberID)

	assignments, err := s.manager.JoinGroup(ctx, req.Group, req.MemberID, req.Topics)
	if err != nil {
		return rpc.PollAssignmentResponse{ErrorMessage: err.Error()}, nil
	}

	wire := make([]rpc.Assignment, len(assignments))
	for i, a := range assignments {
		wire[i] = rpc.Assignment{Topic: a.Topic, Partition: a.Partition}
	}
	return rpc.PollAssignmentResponse{
		Assignments:         wire,
		HeartbeatIntervalMs: s.heartbeatInterval.Milliseconds(),
	}, nil
}
