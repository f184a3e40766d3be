package group

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// OffsetStore persists consumer-group committed offsets. Selecting an
// implementation resolves the durability question left open by the
// in-memory-only original: MemOffsetStore keeps the original
// behavior (offsets lost on restart) for tests and single-process
// deployments; EtcdOffsetStore persists them.
type OffsetStore interface {
	Commit(ctx context.Context, groupID, topic string, partition int32, offset int64) error
	Get(ctx context.Context, groupID, topic string, partition int32) (int64, error)
}

// MemOffsetStore is an in-memory OffsetStore; committed offsets do
// not survive a process restart.
type MemOffsetStore struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemOffsetStore creates an empty in-memory offset store.
func NewMemOffsetStore() *MemOffsetStore {
	return &MemOffsetStore{values: make(map[string]int64)}
}

func offsetKey(groupID, topic string, partition int32) string {
	return groupID + "/" + topic + "/" + strconv.Itoa(int(partition))
}

func (s *MemOffsetStore) Commit(_ context.Context, groupID, topic string, partition int32, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[offsetKey(groupID, topic, partition)] = offset
	return nil
}

func (s *MemOffsetStore) Get(_ context.Context, groupID, topic string, partition int32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[offsetKey(groupID, topic, partition)], nil // zero value: consume-from-start default
}

// EtcdOffsetStore persists committed offsets under
// /streamit/offsets/<group>/<topic>/<partition> so they survive a
// coordinator restart.
type EtcdOffsetStore struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdOffsetStore wraps an etcd v3 client. prefix defaults to
// "/streamit/offsets" when empty.
func NewEtcdOffsetStore(client *clientv3.Client, prefix string) *EtcdOffsetStore {
	if prefix == "" {
		prefix = "/streamit/offsets"
	}
	return &EtcdOffsetStore{client: client, prefix: prefix}
}

func (s *EtcdOffsetStore) key(groupID, topic string, partition int32) string {
	return fmt.Sprintf("%s/%s/%s/%d", s.prefix, groupID, topic, partition)
}

func (s *EtcdOffsetStore) Commit(ctx context.Context, groupID, topic string, partition int32, offset int64) error {
	_, err := s.client.Put(ctx, s.key(groupID, topic, partition), strconv.FormatInt(offset, 10))
	return err
}

func (s *EtcdOffsetStore) Get(ctx context.Context, groupID, topic string, partition int32) (int64, error) {
	resp, err := s.client.Get(ctx, s.key(groupID, topic, partition))
	if err != nil {
		return 0, err
	}
	if len(resp.Kvs) == 0 {
		return 0, nil // consume-from-start default for a never-committed offset
	}
	return strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
}
