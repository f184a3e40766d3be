package storage

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

const (
	segmentMagic   uint32 = 0xDEADBEEF
	segmentVersion uint32 = 1
	headerSize            = 8 + 8 + 4 + 4 // base_offset, timestamp_ms, magic, version

	// tailRecoveryWindow is a 64 KiB tail-scan size; recoverTail does
	// not use it and instead re-scans from the last indexed batch.
	tailRecoveryWindow = 64 * 1024
)

// FlushPolicy controls when a Segment calls fdatasync on its files.
type FlushPolicy int

const (
	FlushNever FlushPolicy = iota
	FlushOnRoll
	FlushEachBatch
)

// state is the Segment lifecycle: Open -> Full -> Closed.
type state int

const (
	stateOpen state = iota
	stateFull
	stateClosed
)

// Segment owns one append-only .log file and its sidecar sparse
// .index file. All mutable state is guarded by mu; callers never need
// an external lock to call Append/Read/Flush/Close concurrently.
type Segment struct {
	mu sync.Mutex

	logPath   string
	indexPath string

	logFile   *os.File
	indexFile *os.File

	baseOffset    int64
	endOffset     int64
	logPosition   int64
	maxSizeBytes  int64
	flushPolicy   FlushPolicy
	st            state
	indexEntries  []IndexEntry
	indexBuilder  *IndexBuilder

	log *slog.Logger
}

// CreateSegment writes a fresh SegmentHeader, creates an empty index,
// best-effort preallocates the log file, and advises sequential
// access, then returns the ready-to-append Segment.
func CreateSegment(logPath, indexPath string, baseOffset int64, maxSizeBytes int64, policy FlushPolicy, log *slog.Logger) (*Segment, error) {
	if log == nil {
		log = slog.Default()
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	indexFile, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		logFile.Close()
		os.Remove(logPath)
		return nil, fmt.Errorf("create index file: %w", err)
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(header[0:8], uint64(baseOffset))
	binary.LittleEndian.PutUint64(header[8:16], uint64(nowMs()))
	binary.LittleEndian.PutUint32(header[16:20], segmentMagic)
	binary.LittleEndian.PutUint32(header[20:24], segmentVersion)
	if _, err := logFile.Write(header); err != nil {
		logFile.Close()
		indexFile.Close()
		return nil, fmt.Errorf("write segment header: %w", err)
	}

	if err := preallocate(logFile, maxSizeBytes); err != nil {
		log.Warn("segment preallocate failed", "path", logPath, "err", err)
	}
	if err := adviseSequential(logFile); err != nil {
		log.Warn("segment fadvise failed", "path", logPath, "err", err)
	}

	return &Segment{
		logPath:      logPath,
		indexPath:    indexPath,
		logFile:      logFile,
		indexFile:    indexFile,
		baseOffset:   baseOffset,
		endOffset:    baseOffset,
		logPosition:  int64(headerSize),
		maxSizeBytes: maxSizeBytes,
		flushPolicy:  policy,
		st:           stateOpen,
		indexBuilder: NewIndexBuilder(1),
		log:          log,
	}, nil
}

// OpenSegment reads and validates the header, loads the sidecar
// index, runs tail recovery, and reconciles end_offset against the
// last surviving batch.
func OpenSegment(logPath, indexPath string, maxSizeBytes int64, policy FlushPolicy, log *slog.Logger) (*Segment, error) {
	if log == nil {
		log = slog.Default()
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	indexFile, err := os.OpenFile(indexPath, os.O_RDWR, 0o644)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("open index file: %w", err)
	}

	header := make([]byte, headerSize)
	if _, err := logFile.ReadAt(header, 0); err != nil {
		logFile.Close()
		indexFile.Close()
		return nil, fmt.Errorf("read segment header: %w", err)
	}
	baseOffset := int64(binary.LittleEndian.Uint64(header[0:8]))
	magic := binary.LittleEndian.Uint32(header[16:20])
	version := binary.LittleEndian.Uint32(header[20:24])
	if magic != segmentMagic || version != segmentVersion {
		logFile.Close()
		indexFile.Close()
		return nil, fmt.Errorf("%w: bad header magic/version for %s", ErrCorrupted, logPath)
	}

	indexBytes, err := os.ReadFile(indexPath)
	if err != nil {
		logFile.Close()
		indexFile.Close()
		return nil, fmt.Errorf("read index file: %w", err)
	}
	entries, err := ParseIndex(indexBytes)
	if err != nil {
		// Corrupt index is rebuilt from the log by tail recovery below.
		entries = nil
	}

	s := &Segment{
		logPath:      logPath,
		indexPath:    indexPath,
		logFile:      logFile,
		indexFile:    indexFile,
		baseOffset:   baseOffset,
		maxSizeBytes: maxSizeBytes,
		flushPolicy:  policy,
		st:           stateOpen,
		indexEntries: entries,
		indexBuilder: NewIndexBuilder(1),
		log:          log,
	}

	if err := s.recoverTail(); err != nil {
		logFile.Close()
		indexFile.Close()
		return nil, err
	}
	s.indexBuilder.entries = append([]IndexEntry(nil), s.indexEntries...)

	return s, nil
}

// recoverTail implements the crash-recovery contract: after it
// returns, the log file ends exactly at the last byte of the last
// CRC-valid batch, the index has one entry per surviving batch, and
// end_offset equals that batch's first offset plus its record count.
func (s *Segment) recoverTail() error {
	info, err := s.logFile.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	fileSize := info.Size()

	// Decide where to resume scanning from: if an index already
	// exists, only the tail from the last indexed batch onward needs
	// checking; a segment with no index is scanned from just after the
	// header.
	scanFrom := int64(headerSize)
	lastValidEnd := int64(headerSize)
	lastValidOffset := s.baseOffset
	keptEntries := s.indexEntries[:0:0]

	if len(s.indexEntries) > 0 {
		// The log byte range covered by all entries except possibly
		// the last is presumed valid (it was index-confirmed before);
		// only the window from the last entry's batch forward needs
		// re-validation against the possibility of a crash mid-write.
		last := s.indexEntries[len(s.indexEntries)-1]
		scanFrom = last.FilePosition
		if scanFrom < headerSize {
			scanFrom = headerSize
		}
		// Everything before the last indexed batch was index-confirmed
		// on a prior open; only the tail from there forward is re-scanned.
		keptEntries = append(keptEntries, s.indexEntries[:len(s.indexEntries)-1]...)
		lastValidEnd = scanFrom
		lastValidOffset = s.baseOffset + last.RelativeOffset
	}

	pos := scanFrom
	offset := lastValidOffset
	buf := make([]byte, 0, 64*1024)
	for {
		// Read a fixed-size batch header prefix: base_offset(8) + timestamp_ms(8) + record_count(4) = 20 bytes.
		const prefixLen = 20
		if pos+prefixLen > fileSize {
			break
		}
		prefix := make([]byte, prefixLen)
		if _, err := s.logFile.ReadAt(prefix, pos); err != nil {
			break
		}
		// We don't know the full batch length up front (variable-size
		// records), so read forward conservatively: re-derive the
		// batch boundary by parsing records until record_count is
		// satisfied, tracking consumed bytes, then read+verify CRC.
		recordCount := int32(binary.LittleEndian.Uint32(prefix[16:20]))
		if recordCount <= 0 || recordCount > (MaxBatchSizeBytes/ /*min record size*/ 16) {
			break
		}

		// Read a generous chunk and attempt to parse; grow if needed,
		// bounded by MaxBatchSizeBytes.
		chunkLen := int64(4096)
		var batchBuf []byte
		var consumed int
		ok := false
		for {
			if pos+chunkLen > fileSize {
				chunkLen = fileSize - pos
			}
			if chunkLen <= 0 {
				break
			}
			batchBuf = growBuf(buf, int(chunkLen))
			n, _ := s.logFile.ReadAt(batchBuf, pos)
			batchBuf = batchBuf[:n]
			size, parseErr := tryParseBatchPrefix(batchBuf)
			if parseErr == nil {
				consumed = size
				ok = true
				break
			}
			if int64(len(batchBuf)) >= fileSize-pos || chunkLen >= MaxBatchSizeBytes {
				break
			}
			chunkLen *= 2
			if chunkLen > MaxBatchSizeBytes {
				chunkLen = MaxBatchSizeBytes
			}
		}
		if !ok || consumed <= 0 || consumed > MaxBatchSizeBytes {
			break
		}
		batchBytes := batchBuf[:consumed]
		if !VerifyCrc32(batchBytes) {
			break
		}
		batch, derr := DeserializeRecordBatch(batchBytes)
		if derr != nil {
			break
		}

		keptEntries = append(keptEntries, IndexEntry{
			RelativeOffset: offset - s.baseOffset,
			FilePosition:   pos,
			BatchSize:      int32(consumed),
		})
		pos += int64(consumed)
		offset += int64(len(batch.Records))
		lastValidEnd = pos
		lastValidOffset = offset
	}

	if lastValidEnd != fileSize {
		if err := s.logFile.Truncate(lastValidEnd); err != nil {
			return fmt.Errorf("truncate corrupted tail: %w", err)
		}
		s.log.Warn("segment tail recovery truncated log", "path", s.logPath, "from", fileSize, "to", lastValidEnd)
	}

	s.indexEntries = keptEntries
	s.logPosition = lastValidEnd
	s.endOffset = lastValidOffset

	rebuilt, err := rebuildIndexBytes(keptEntries)
	if err != nil {
		return err
	}
	if err := s.indexFile.Truncate(0); err != nil {
		return fmt.Errorf("truncate index: %w", err)
	}
	if _, err := s.indexFile.WriteAt(rebuilt, 0); err != nil {
		return fmt.Errorf("rewrite index: %w", err)
	}

	if _, err := s.logFile.Seek(0, os.SEEK_END); err != nil {
		return err
	}
	if _, err := s.indexFile.Seek(0, os.SEEK_END); err != nil {
		return err
	}
	return nil
}

func growBuf(buf []byte, n int) []byte {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]byte, n)
}

// tryParseBatchPrefix attempts to interpret buf as starting with a
// complete RecordBatch and returns its total serialized length. It
// only inspects lengths (never trusts a length beyond buf) so a
// truncated buffer yields an error rather than an out-of-bounds read.
func tryParseBatchPrefix(buf []byte) (int, error) {
	if len(buf) < 20 {
		return 0, ErrCorrupted
	}
	off := 16
	count := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if count <= 0 {
		return 0, ErrCorrupted
	}
	for i := int32(0); i < count; i++ {
		if off+4 > len(buf) {
			return 0, ErrCorrupted
		}
		keyLen := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if keyLen < 0 {
			return 0, ErrCorrupted
		}
		off += int(keyLen)
		if off+4 > len(buf) {
			return 0, ErrCorrupted
		}
		valLen := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if valLen < 0 {
			return 0, ErrCorrupted
		}
		off += int(valLen)
		off += 8 // timestamp
		if off > len(buf) {
			return 0, ErrCorrupted
		}
	}
	off += 4 // crc32
	if off > len(buf) {
		return 0, ErrCorrupted
	}
	if off > MaxBatchSizeBytes {
		return 0, ErrCorrupted
	}
	return off, nil
}

func rebuildIndexBytes(entries []IndexEntry) ([]byte, error) {
	buf := make([]byte, 0, len(entries)*indexEntrySize)
	for _, e := range entries {
		buf = e.appendTo(buf)
	}
	return buf, nil
}

// BaseOffset returns the segment's immutable base offset.
func (s *Segment) BaseOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseOffset
}

// EndOffset returns the next offset this segment would assign.
func (s *Segment) EndOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endOffset
}

// Size returns the current log file size in bytes.
func (s *Segment) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logPosition
}

// IsFull reports whether the segment has transitioned out of Open.
func (s *Segment) IsFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateFull
}

// IsClosed reports whether the segment is in the terminal Closed state.
func (s *Segment) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateClosed
}

// Append writes one batch of records, assigning it the segment's
// current end_offset, and returns that first offset.
func (s *Segment) Append(records []Record, timestampMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st == stateClosed {
		return 0, ErrClosed
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: records must be non-empty", ErrInvalidArgument)
	}

	batch := &RecordBatch{BaseOffset: s.endOffset, TimestampMs: timestampMs, Records: records}
	bytes, err := batch.Serialize()
	if err != nil {
		return 0, err
	}

	if s.logPosition+int64(len(bytes)) > s.maxSizeBytes {
		s.st = stateFull
		return 0, ErrResourceExhausted
	}

	writePos := s.logPosition
	if _, err := s.logFile.WriteAt(bytes, writePos); err != nil {
		return 0, fmt.Errorf("write batch: %w", err)
	}
	s.indexBuilder.MaybeAdd(s.endOffset-s.baseOffset, writePos, int32(len(records)), int32(len(bytes)))
	entry := s.indexBuilder.Entries()[len(s.indexBuilder.Entries())-1]
	if _, err := s.indexFile.WriteAt(entry.appendTo(nil), int64(len(s.indexEntries))*indexEntrySize); err != nil {
		return 0, fmt.Errorf("write index entry: %w", err)
	}
	s.indexEntries = append(s.indexEntries, entry)

	firstOffset := s.endOffset
	s.endOffset += int64(len(records))
	s.logPosition += int64(len(bytes))

	if s.flushPolicy == FlushEachBatch {
		if err := s.flushLocked(); err != nil {
			return 0, err
		}
	}

	if s.logPosition >= s.maxSizeBytes {
		s.st = stateFull
	}

	return firstOffset, nil
}

// Read returns whole batches starting at or before fromOffset, up to
// maxBytes total, per the sparse-index lookup + byte-budget contract.
// The first batch is always returned, even if it alone exceeds maxBytes.
func (s *Segment) Read(fromOffset int64, maxBytes int64) ([]*RecordBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fromOffset < s.baseOffset || fromOffset >= s.endOffset {
		return nil, nil
	}

	idx := findIndexEntry(s.indexEntries, fromOffset-s.baseOffset)
	if idx < 0 {
		idx = 0
	}

	var batches []*RecordBatch
	var budget int64
	for i := idx; i < len(s.indexEntries); i++ {
		entry := s.indexEntries[i]
		if budget+int64(entry.BatchSize) > maxBytes && len(batches) > 0 {
			break
		}
		buf := make([]byte, entry.BatchSize)
		if _, err := s.logFile.ReadAt(buf, entry.FilePosition); err != nil {
			if len(batches) > 0 {
				return batches, fmt.Errorf("%w: read failed mid-fetch: %v", ErrCorrupted, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		batch, err := DeserializeRecordBatch(buf)
		if err != nil {
			if len(batches) > 0 {
				return batches, fmt.Errorf("%w: %v", ErrCorrupted, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		batches = append(batches, batch)
		budget += int64(entry.BatchSize)
		if budget >= maxBytes {
			break
		}
	}
	return batches, nil
}

// Flush fsyncs both underlying files.
func (s *Segment) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Segment) flushLocked() error {
	if err := s.logFile.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := s.indexFile.Sync(); err != nil {
		return fmt.Errorf("sync index file: %w", err)
	}
	return nil
}

// Close flushes (if the policy calls for it on roll) and marks the
// segment Closed, forbidding further appends while still permitting reads.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateClosed {
		return nil
	}
	var err error
	if s.flushPolicy == FlushOnRoll || s.flushPolicy == FlushEachBatch {
		err = s.flushLocked()
	}
	s.st = stateClosed
	return err
}

// CloseFiles releases the underlying file descriptors. Call only once
// no component (LogDir, in-flight reader) still references the Segment.
func (s *Segment) CloseFiles() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err1 := s.logFile.Close()
	err2 := s.indexFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// LogPath returns the path of the backing .log file.
func (s *Segment) LogPath() string { return s.logPath }

// IndexPath returns the path of the backing .index file.
func (s *Segment) IndexPath() string { return s.indexPath }
