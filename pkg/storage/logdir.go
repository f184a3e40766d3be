package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// partitionKey identifies one (topic, partition) pair.
type partitionKey struct {
	topic     string
	partition int32
}

func (k partitionKey) dir(root string) string {
	return filepath.Join(root, k.topic, strconv.FormatInt(int64(k.partition), 10))
}

// LogDir owns the on-disk tree <root>/<topic>/<partition>/ and maps
// each (topic, partition) to its ordered list of segments and current
// high watermark. It is the only component permitted to create or
// roll segments.
type LogDir struct {
	mu sync.Mutex

	root             string
	maxSegmentBytes  int64
	flushPolicy      FlushPolicy
	log              *slog.Logger

	segments          map[partitionKey][]*Segment
	highWatermarks    map[partitionKey]int64
	nextSegmentNumber map[partitionKey]int64

	initFlight singleflight.Group
}

// Config bundles the knobs LogDir needs beyond its root path.
type Config struct {
	MaxSegmentSizeBytes int64
	FlushPolicy         FlushPolicy
	Logger              *slog.Logger
}

// Open scans root/<topic>/<partition>/*.log, pairs each with its
// *.index, opens them as Segments (running tail recovery), sorts by
// base_offset, and verifies the chain invariant. A broken chain is
// reported as ErrChainBroken; Open never silently stitches over gaps.
func Open(root string, cfg Config) (*LogDir, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create log root: %w", err)
	}

	ld := &LogDir{
		root:              root,
		maxSegmentBytes:   cfg.MaxSegmentSizeBytes,
		flushPolicy:       cfg.FlushPolicy,
		log:               cfg.Logger,
		segments:          make(map[partitionKey][]*Segment),
		highWatermarks:    make(map[partitionKey]int64),
		nextSegmentNumber: make(map[partitionKey]int64),
	}

	topicEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan log root: %w", err)
	}

	type job struct {
		key partitionKey
		dir string
	}
	var jobs []job
	for _, te := range topicEntries {
		if !te.IsDir() {
			continue
		}
		topic := te.Name()
		topicDir := filepath.Join(root, topic)
		partEntries, err := os.ReadDir(topicDir)
		if err != nil {
			continue
		}
		for _, pe := range partEntries {
			if !pe.IsDir() {
				continue
			}
			partition, err := strconv.ParseInt(pe.Name(), 10, 32)
			if err != nil {
				continue // skip non-numeric partition directories
			}
			jobs = append(jobs, job{
				key: partitionKey{topic: topic, partition: int32(partition)},
				dir: filepath.Join(topicDir, pe.Name()),
			})
		}
	}

	// Bound concurrent segment opens so a broker with many partitions
	// doesn't exhaust file descriptors while scanning on startup.
	sem := semaphore.NewWeighted(32)
	ctx := context.Background()
	g, gctx := errgroup.WithContext(ctx)
	var resultMu sync.Mutex
	loaded := make(map[partitionKey][]*Segment, len(jobs))

	for _, j := range jobs {
		j := j
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			segs, err := ld.loadPartitionSegments(j.dir)
			if err != nil {
				return fmt.Errorf("load segments for %s/%d: %w", j.key.topic, j.key.partition, err)
			}
			resultMu.Lock()
			loaded[j.key] = segs
			resultMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for key, segs := range loaded {
		if err := verifyChain(segs); err != nil {
			return nil, fmt.Errorf("%w: %s/%d: %v", ErrChainBroken, key.topic, key.partition, err)
		}
		ld.segments[key] = segs
		if n := len(segs); n > 0 {
			ld.nextSegmentNumber[key] = segmentNumberOf(segs[n-1]) + 1
		}
		hwm, err := ld.loadHighWatermark(key, segs)
		if err != nil {
			cfg.Logger.Warn("high watermark reconciliation failed", "topic", key.topic, "partition", key.partition, "err", err)
		}
		ld.highWatermarks[key] = hwm
	}

	return ld, nil
}

func verifyChain(segs []*Segment) error {
	for i := 0; i+1 < len(segs); i++ {
		if segs[i].EndOffset() != segs[i+1].BaseOffset() {
			return fmt.Errorf("segment %d end_offset %d != segment %d base_offset %d",
				i, segs[i].EndOffset(), i+1, segs[i+1].BaseOffset())
		}
	}
	return nil
}

// segmentNumberOf recovers a segment's file-name counter from its
// path, independent of its base_offset (fixing the source's
// base_offset/magic-constant derivation of the next segment number).
func segmentNumberOf(s *Segment) int64 {
	base := filepath.Base(s.LogPath())
	name := strings.TrimSuffix(base, ".log")
	n, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (ld *LogDir) loadPartitionSegments(partitionDir string) ([]*Segment, error) {
	entries, err := os.ReadDir(partitionDir)
	if err != nil {
		return nil, err
	}
	var segs []*Segment
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".log")
		logPath := filepath.Join(partitionDir, e.Name())
		indexPath := filepath.Join(partitionDir, stem+".index")
		if _, err := os.Stat(indexPath); err != nil {
			ld.log.Warn("segment missing index, skipping", "path", logPath)
			continue
		}
		seg, err := OpenSegment(logPath, indexPath, ld.maxSegmentBytes, ld.flushPolicy, ld.log)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].BaseOffset() < segs[j].BaseOffset() })
	return segs, nil
}

func (ld *LogDir) loadHighWatermark(key partitionKey, segs []*Segment) (int64, error) {
	var fromSegments int64
	if n := len(segs); n > 0 {
		fromSegments = segs[n-1].EndOffset()
	}
	mm := NewManifestManager(key.dir(ld.root))
	manifest, err := mm.Load()
	if err != nil {
		return fromSegments, nil
	}
	if manifest.HighWatermark > fromSegments {
		return manifest.HighWatermark, nil
	}
	return fromSegments, nil
}

// ensurePartition lazily creates the partition directory and its
// first segment, deduping concurrent first-touch callers for the same
// (topic, partition).
func (ld *LogDir) ensurePartition(key partitionKey) error {
	_, err, _ := ld.initFlight.Do(key.topic+"/"+strconv.Itoa(int(key.partition)), func() (interface{}, error) {
		ld.mu.Lock()
		_, exists := ld.segments[key]
		ld.mu.Unlock()
		if exists {
			return nil, nil
		}
		dir := key.dir(ld.root)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		ld.mu.Lock()
		defer ld.mu.Unlock()
		if _, exists := ld.segments[key]; exists {
			return nil, nil
		}
		seg, err := ld.createSegmentLocked(key, 0)
		if err != nil {
			return nil, err
		}
		ld.segments[key] = []*Segment{seg}
		ld.highWatermarks[key] = 0
		return nil, nil
	})
	return err
}

func (ld *LogDir) createSegmentLocked(key partitionKey, baseOffset int64) (*Segment, error) {
	dir := key.dir(ld.root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	num := ld.nextSegmentNumber[key]
	ld.nextSegmentNumber[key] = num + 1
	stem := strconv.FormatInt(num, 10)
	logPath := filepath.Join(dir, stem+".log")
	indexPath := filepath.Join(dir, stem+".index")
	return CreateSegment(logPath, indexPath, baseOffset, ld.maxSegmentBytes, ld.flushPolicy, ld.log)
}

// GetSegment returns the active segment for (topic, partition),
// rolling to a new one if the current segment is full or closed.
func (ld *LogDir) GetSegment(topic string, partition int32) (*Segment, error) {
	key := partitionKey{topic: topic, partition: partition}
	if err := ld.ensurePartition(key); err != nil {
		return nil, err
	}

	ld.mu.Lock()
	defer ld.mu.Unlock()

	segs := ld.segments[key]
	if len(segs) > 0 {
		active := segs[len(segs)-1]
		if !active.IsFull() && !active.IsClosed() {
			return active, nil
		}
	}
	return ld.rollLocked(key)
}

// RollSegment forces a roll regardless of the current segment's state.
func (ld *LogDir) RollSegment(topic string, partition int32) (*Segment, error) {
	key := partitionKey{topic: topic, partition: partition}
	if err := ld.ensurePartition(key); err != nil {
		return nil, err
	}
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.rollLocked(key)
}

// rollLocked closes the current segment (flushing per policy) and
// creates a new one at the closed segment's end offset, appending it
// to the segment list — all while holding ld.mu, so the close-old/
// create-new/append sequence is atomic with respect to other callers.
func (ld *LogDir) rollLocked(key partitionKey) (*Segment, error) {
	segs := ld.segments[key]
	var baseOffset int64
	if len(segs) > 0 {
		old := segs[len(segs)-1]
		if err := old.Close(); err != nil {
			ld.log.Warn("segment close on roll failed", "topic", key.topic, "partition", key.partition, "err", err)
		}
		baseOffset = old.EndOffset()
	}
	seg, err := ld.createSegmentLocked(key, baseOffset)
	if err != nil {
		return nil, err
	}
	ld.segments[key] = append(segs, seg)
	return seg, nil
}

// GetSegments returns all segments for (topic, partition), ordered.
func (ld *LogDir) GetSegments(topic string, partition int32) []*Segment {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	key := partitionKey{topic: topic, partition: partition}
	segs := ld.segments[key]
	out := make([]*Segment, len(segs))
	copy(out, segs)
	return out
}

// GetActiveSegment returns the most recent segment, or ErrNotFound if
// the partition has no segments yet.
func (ld *LogDir) GetActiveSegment(topic string, partition int32) (*Segment, error) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	key := partitionKey{topic: topic, partition: partition}
	segs := ld.segments[key]
	if len(segs) == 0 {
		return nil, ErrNotFound
	}
	return segs[len(segs)-1], nil
}

// GetEndOffset returns the end offset of the partition's last segment, 0 if none.
func (ld *LogDir) GetEndOffset(topic string, partition int32) int64 {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	key := partitionKey{topic: topic, partition: partition}
	segs := ld.segments[key]
	if len(segs) == 0 {
		return 0
	}
	return segs[len(segs)-1].EndOffset()
}

// GetHighWaterMark returns the partition's committed-offset watermark.
func (ld *LogDir) GetHighWaterMark(topic string, partition int32) int64 {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.highWatermarks[partitionKey{topic: topic, partition: partition}]
}

// SetHighWaterMark updates the in-memory watermark and best-effort
// persists it to the partition's MANIFEST (next_offset taken from the
// last segment's end offset) and to the legacy `high_water_mark` flat
// file, which exists for tooling that expects it. On reopen the
// watermark is the larger of the MANIFEST value and the last
// segment's end offset.
func (ld *LogDir) SetHighWaterMark(topic string, partition int32, offset int64) error {
	key := partitionKey{topic: topic, partition: partition}
	ld.mu.Lock()
	ld.highWatermarks[key] = offset
	nextOffset := offset
	if segs := ld.segments[key]; len(segs) > 0 {
		nextOffset = segs[len(segs)-1].EndOffset()
	}
	ld.mu.Unlock()

	dir := key.dir(ld.root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil // best-effort
	}
	if err := NewManifestManager(dir).UpdateOffsets(nextOffset, offset); err != nil {
		ld.log.Warn("manifest update failed", "topic", topic, "partition", partition, "err", err)
	}
	_ = os.WriteFile(filepath.Join(dir, "high_water_mark"), []byte(strconv.FormatInt(offset, 10)), 0o644)
	return nil
}

// ListTopics returns every topic with at least one known partition.
func (ld *LogDir) ListTopics() []string {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	seen := map[string]bool{}
	var topics []string
	for k := range ld.segments {
		if !seen[k.topic] {
			seen[k.topic] = true
			topics = append(topics, k.topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// ListPartitions returns the known partitions for topic, sorted.
func (ld *LogDir) ListPartitions(topic string) []int32 {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	var partitions []int32
	for k := range ld.segments {
		if k.topic == topic {
			partitions = append(partitions, k.partition)
		}
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
	return partitions
}

// CleanupOldSegments deletes segments beyond retentionBytes, always
// keeping at least the active segment and never deleting a segment
// that overlaps the current high watermark.
func (ld *LogDir) CleanupOldSegments(topic string, partition int32, retentionBytes int64) error {
	key := partitionKey{topic: topic, partition: partition}

	ld.mu.Lock()
	segs := append([]*Segment(nil), ld.segments[key]...)
	hwm := ld.highWatermarks[key]
	ld.mu.Unlock()

	if len(segs) <= 1 {
		return nil
	}

	var total int64
	keepFrom := len(segs) - 1 // always keep the active (last) segment
	for i := len(segs) - 2; i >= 0; i-- {
		if segs[i].EndOffset() > hwm {
			// Never evict a segment overlapping the high watermark.
			keepFrom = i
			break
		}
		total += segs[i].Size()
		if total > retentionBytes {
			break
		}
		keepFrom = i
	}

	toRemove := segs[:keepFrom]
	if len(toRemove) == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(context.Background())
	for _, seg := range toRemove {
		seg := seg
		g.Go(func() error {
			if err := seg.CloseFiles(); err != nil {
				return err
			}
			if err := os.Remove(seg.LogPath()); err != nil && !os.IsNotExist(err) {
				return err
			}
			if err := os.Remove(seg.IndexPath()); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ld.mu.Lock()
	defer ld.mu.Unlock()
	remaining := ld.segments[key]
	if len(remaining) >= len(toRemove) {
		ld.segments[key] = remaining[len(toRemove):]
	}
	return nil
}
