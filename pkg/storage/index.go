package storage

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// indexEntrySize is the on-disk size of one IndexEntry:
// relative_offset:i64 | file_position:i64 | batch_size:i32.
const indexEntrySize = 8 + 8 + 4

// IndexEntry locates one batch within a segment's log file.
type IndexEntry struct {
	RelativeOffset int64
	FilePosition   int64
	BatchSize      int32
}

func (e IndexEntry) appendTo(buf []byte) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:8], uint64(e.RelativeOffset))
	buf = append(buf, tmp[:8]...)
	binary.LittleEndian.PutUint64(tmp[:8], uint64(e.FilePosition))
	buf = append(buf, tmp[:8]...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(e.BatchSize))
	buf = append(buf, tmp[:4]...)
	return buf
}

// ParseIndex decodes a flat array of fixed-size IndexEntry records.
func ParseIndex(data []byte) ([]IndexEntry, error) {
	if len(data)%indexEntrySize != 0 {
		return nil, fmt.Errorf("%w: index file length %d not a multiple of %d", ErrCorrupted, len(data), indexEntrySize)
	}
	n := len(data) / indexEntrySize
	entries := make([]IndexEntry, n)
	for i := 0; i < n; i++ {
		off := i * indexEntrySize
		entries[i] = IndexEntry{
			RelativeOffset: int64(binary.LittleEndian.Uint64(data[off : off+8])),
			FilePosition:   int64(binary.LittleEndian.Uint64(data[off+8 : off+16])),
			BatchSize:      int32(binary.LittleEndian.Uint32(data[off+16 : off+20])),
		}
	}
	return entries, nil
}

// IndexBuilder accumulates index entries for a segment being written,
// emitting at most one entry per `interval` messages seen —
// a sparse index: one entry per batch is the default (interval<=1),
// but the interval knob lets a writer thin the index for very small
// batches.
type IndexBuilder struct {
	interval      int32
	entries       []IndexEntry
	messagesSeen  int32
	sinceLastSave int32
}

// NewIndexBuilder creates a builder that adds an entry every interval
// messages (an interval <= 0 is treated as 1, i.e. every batch).
func NewIndexBuilder(interval int32) *IndexBuilder {
	if interval <= 0 {
		interval = 1
	}
	return &IndexBuilder{interval: interval}
}

// MaybeAdd records a batch at filePosition spanning batchSizeBytes on
// disk and covering messageCount records starting at relativeOffset,
// adding an index entry only if enough messages have accumulated
// since the last one.
func (b *IndexBuilder) MaybeAdd(relativeOffset int64, filePosition int64, messageCount int32, batchSizeBytes int32) {
	b.messagesSeen += messageCount
	b.sinceLastSave += messageCount
	if len(b.entries) == 0 || b.sinceLastSave >= b.interval {
		b.entries = append(b.entries, IndexEntry{
			RelativeOffset: relativeOffset,
			FilePosition:   filePosition,
			BatchSize:      batchSizeBytes,
		})
		b.sinceLastSave = 0
	}
}

// Entries returns the accumulated entries, ordered by RelativeOffset.
func (b *IndexBuilder) Entries() []IndexEntry {
	return b.entries
}

// BuildBytes serializes the accumulated entries to their flat on-disk form.
func (b *IndexBuilder) BuildBytes() ([]byte, error) {
	buf := make([]byte, 0, len(b.entries)*indexEntrySize)
	for _, e := range b.entries {
		buf = e.appendTo(buf)
	}
	return buf, nil
}

// findIndexEntry returns the index of the last entry whose RelativeOffset
// is <= target, or -1 if no such entry exists. entries must be sorted
// ascending by RelativeOffset.
func findIndexEntry(entries []IndexEntry, target int64) int {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].RelativeOffset > target
	})
	return i - 1
}
