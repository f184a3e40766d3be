// Package group implements the consumer-group membership, liveness,
// and partition-assignment state machine.
package group

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned for an unknown group or member.
var ErrNotFound = errors.New("group: not found")

// PartitionAssignment is one (topic, partition) handed to a member.
type PartitionAssignment struct {
	Topic     string
	Partition int32
}

// Member is one consumer-group participant.
type Member struct {
	MemberID         string
	SubscribedTopics []string
	LastHeartbeat    time.Time
	Active           bool
}

// consumerGroup is the manager's internal per-group state. Committed
// offsets live in the Manager's OffsetStore, not here.
type consumerGroup struct {
	groupID         string
	members         map[string]*Member
	assignments     map[string][]PartitionAssignment
	lastRebalance   time.Time
	membershipDirty bool
}

// TopicPartitionCounts resolves how many partitions each topic has,
// sourced from the controller rather than hardcoded, per the
// deterministic-and-correct rebalance design this manager implements.
type TopicPartitionCounts func(ctx context.Context, topics []string) (map[string]int32, error)

// Manager owns every consumer group's state. All operations are
// serialized by a single mutex — group state is leaf-level and never
// calls into LogDir or Segment while holding it.
type Manager struct {
	mu                   sync.Mutex
	groups               map[string]*consumerGroup
	sessionTimeout       time.Duration
	partitionCounts      TopicPartitionCounts
	offsets              OffsetStore
	now                  func() time.Time
	onRebalance          func()
}

// New creates a Manager. partitionCounts resolves a topic's partition
// count (normally backed by the controller's topic table); offsets is
// the committed-offset backing store (see OffsetStore).
func New(sessionTimeout time.Duration, partitionCounts TopicPartitionCounts, offsets OffsetStore) *Manager {
	return &Manager{
		groups:          make(map[string]*consumerGroup),
		sessionTimeout:  sessionTimeout,
		partitionCounts: partitionCounts,
		offsets:         offsets,
		now:             time.Now,
	}
}

// SetRebalanceHook registers fn to be called once per completed
// RebalanceGroup, so callers can track rebalance activity (e.g. a
// metrics counter) without RebalanceGroup's callers needing to care.
func (m *Manager) SetRebalanceHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRebalance = fn
}

func (m *Manager) getOrCreateGroupLocked(groupID string) *consumerGroup {
	g, ok := m.groups[groupID]
	if !ok {
		g = &consumerGroup{
			groupID:     groupID,
			members:     make(map[string]*Member),
			assignments: make(map[string][]PartitionAssignment),
		}
		m.groups[groupID] = g
	}
	return g
}

// JoinGroup adds or refreshes a member's subscription, then rebalances
// inline if the group now needs it.
func (m *Manager) JoinGroup(ctx context.Context, groupID, memberID string, topics []string) ([]PartitionAssignment, error) {
	m.mu.Lock()
	g := m.getOrCreateGroupLocked(groupID)
	if _, existed := g.members[memberID]; !existed {
		g.membershipDirty = true
	}
	g.members[memberID] = &Member{
		MemberID:         memberID,
		SubscribedTopics: topics,
		LastHeartbeat:    m.now(),
		Active:           true,
	}
	needsRebalance := m.needsRebalancingLocked(g)
	m.mu.Unlock()

	if needsRebalance {
		if err := m.RebalanceGroup(ctx, groupID); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PartitionAssignment(nil), g.assignments[memberID]...), nil
}

// LeaveGroup removes a member and rebalances the remaining active members.
func (m *Manager) LeaveGroup(ctx context.Context, groupID, memberID string) error {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(g.members, memberID)
	delete(g.assignments, memberID)
	g.membershipDirty = true
	m.mu.Unlock()
	return m.RebalanceGroup(ctx, groupID)
}

// Heartbeat refreshes a member's liveness.
func (m *Manager) Heartbeat(groupID, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	member, ok := g.members[memberID]
	if !ok {
		return ErrNotFound
	}
	member.LastHeartbeat = m.now()
	member.Active = true
	return nil
}

// GetAssignments returns the member's current partition assignment.
func (m *Manager) GetAssignments(groupID, memberID string) ([]PartitionAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]PartitionAssignment(nil), g.assignments[memberID]...), nil
}

func (m *Manager) isActiveLocked(member *Member) bool {
	return member.Active && m.now().Sub(member.LastHeartbeat) < m.sessionTimeout
}

// needsRebalancingLocked implements the trigger from the group
// manager's rebalance contract: non-empty group AND (any member
// inactive, any active member lacking an assignment, or membership
// changed since the last rebalance).
func (m *Manager) needsRebalancingLocked(g *consumerGroup) bool {
	if len(g.members) == 0 {
		return false
	}
	if g.membershipDirty {
		return true
	}
	for id, member := range g.members {
		if !m.isActiveLocked(member) {
			return true
		}
		if _, ok := g.assignments[id]; !ok {
			return true
		}
	}
	return false
}

// NeedsRebalancing reports whether groupID currently needs a rebalance.
func (m *Manager) NeedsRebalancing(groupID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return false, ErrNotFound
	}
	return m.needsRebalancingLocked(g), nil
}

// RebalanceGroup drops inactive members, then recomputes partition
// assignments for the remaining active members, sorted by member_id
// for deterministic, churn-minimal round-robin distribution.
func (m *Manager) RebalanceGroup(ctx context.Context, groupID string) error {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for id, member := range g.members {
		if !m.isActiveLocked(member) {
			delete(g.members, id)
			delete(g.assignments, id)
		}
	}
	activeIDs := sortedActiveMemberIDs(g)
	topics := unionSubscribedTopics(g, activeIDs)
	m.mu.Unlock()

	if len(activeIDs) == 0 || len(topics) == 0 {
		m.mu.Lock()
		g.assignments = make(map[string][]PartitionAssignment)
		g.lastRebalance = m.now()
		g.membershipDirty = false
		hook := m.onRebalance
		m.mu.Unlock()
		if hook != nil {
			hook()
		}
		return nil
	}

	counts, err := m.partitionCounts(ctx, topics)
	if err != nil {
		return fmt.Errorf("resolve partition counts: %w", err)
	}

	assignments := assignPartitions(activeIDs, topics, counts)

	m.mu.Lock()
	g.assignments = assignments
	g.lastRebalance = m.now()
	g.membershipDirty = false
	hook := m.onRebalance
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func sortedActiveMemberIDs(g *consumerGroup) []string {
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func unionSubscribedTopics(g *consumerGroup, memberIDs []string) []string {
	seen := map[string]bool{}
	var topics []string
	for _, id := range memberIDs {
		for _, t := range g.members[id].SubscribedTopics {
			if !seen[t] {
				seen[t] = true
				topics = append(topics, t)
			}
		}
	}
	sort.Strings(topics)
	return topics
}

// assignPartitions distributes every topic's partitions round-robin
// across memberIDs (already sorted), making the result a pure
// function of its inputs.
func assignPartitions(memberIDs []string, topics []string, counts map[string]int32) map[string][]PartitionAssignment {
	out := make(map[string][]PartitionAssignment, len(memberIDs))
	for _, id := range memberIDs {
		out[id] = nil
	}
	cursor := 0
	for _, topic := range topics {
		n := counts[topic]
		for p := int32(0); p < n; p++ {
			id := memberIDs[cursor%len(memberIDs)]
			out[id] = append(out[id], PartitionAssignment{Topic: topic, Partition: p})
			cursor++
		}
	}
	return out
}

// CleanupInactiveMembers drops expired members across every group and
// rebalances each affected group. Intended to be driven by a ticker
// in the coordinator's bootstrap.
func (m *Manager) CleanupInactiveMembers(ctx context.Context) error {
	m.mu.Lock()
	var affected []string
	for id, g := range m.groups {
		for _, member := range g.members {
			if !m.isActiveLocked(member) {
				affected = append(affected, id)
				break
			}
		}
	}
	m.mu.Unlock()

	for _, groupID := range affected {
		if err := m.RebalanceGroup(ctx, groupID); err != nil {
			return err
		}
	}
	return nil
}

// ListGroups returns every known group ID.
func (m *Manager) ListGroups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetGroup returns a snapshot of one group's members and assignments.
func (m *Manager) GetGroup(groupID string) (members []Member, assignments map[string][]PartitionAssignment, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	for _, mem := range g.members {
		members = append(members, *mem)
	}
	assignmentsCopy := make(map[string][]PartitionAssignment, len(g.assignments))
	for id, a := range g.assignments {
		assignmentsCopy[id] = append([]PartitionAssignment(nil), a...)
	}
	return members, assignmentsCopy, nil
}

// CommitOffset records the committed read position for (topic, partition).
func (m *Manager) CommitOffset(ctx context.Context, groupID, topic string, partition int32, offset int64) error {
	return m.offsets.Commit(ctx, groupID, topic, partition, offset)
}

// GetCommittedOffset returns the committed offset, defaulting to 0
// (consume-from-start) for a never-committed (topic, partition).
func (m *Manager) GetCommittedOffset(ctx context.Context, groupID, topic string, partition int32) (int64, error) {
	return m.offsets.Get(ctx, groupID, topic, partition)
}
