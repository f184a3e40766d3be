package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// MaxBatchSizeBytes bounds a single declared batch length; anything
// larger is treated as corruption during framing/recovery rather than
// an attempt to read an enormous batch.
const MaxBatchSizeBytes = 1 << 20 // 1 MiB

// Record is one key/value pair with its produce-time timestamp.
//
// Wire form: key_len:i32 | key_bytes | value_len:i32 | value_bytes | timestamp_ms:i64
type Record struct {
	Key         []byte
	Value       []byte
	TimestampMs int64
}

func (r Record) serializedSize() int {
	return 4 + len(r.Key) + 4 + len(r.Value) + 8
}

func (r Record) appendTo(buf []byte) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(r.Key)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, r.Key...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(r.Value)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, r.Value...)
	binary.LittleEndian.PutUint64(tmp[:8], uint64(r.TimestampMs))
	buf = append(buf, tmp[:8]...)
	return buf
}

// readRecord parses one Record from buf at offset off, returning the
// record and the offset of the next byte after it.
func readRecord(buf []byte, off int) (Record, int, error) {
	if off+4 > len(buf) {
		return Record{}, off, fmt.Errorf("%w: truncated key length", ErrCorrupted)
	}
	keyLen := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if keyLen < 0 || off+int(keyLen) > len(buf) {
		return Record{}, off, fmt.Errorf("%w: invalid key length %d", ErrCorrupted, keyLen)
	}
	key := buf[off : off+int(keyLen)]
	off += int(keyLen)

	if off+4 > len(buf) {
		return Record{}, off, fmt.Errorf("%w: truncated value length", ErrCorrupted)
	}
	valLen := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if valLen < 0 || off+int(valLen) > len(buf) {
		return Record{}, off, fmt.Errorf("%w: invalid value length %d", ErrCorrupted, valLen)
	}
	value := buf[off : off+int(valLen)]
	off += int(valLen)

	if off+8 > len(buf) {
		return Record{}, off, fmt.Errorf("%w: truncated timestamp", ErrCorrupted)
	}
	ts := int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8

	return Record{Key: key, Value: value, TimestampMs: ts}, off, nil
}

// RecordBatch is the unit of append and the unit of framing on disk.
//
// Wire form: base_offset:i64 | timestamp_ms:i64 | record_count:i32 | record*records | crc32:u32
// The CRC32 covers every byte preceding the CRC field itself.
type RecordBatch struct {
	BaseOffset  int64
	TimestampMs int64
	Records     []Record
}

// SetBaseOffset patches the batch's base offset in place, mirroring
// the append-time rebasing of a batch built before its offset in the
// partition was known.
func (b *RecordBatch) SetBaseOffset(offset int64) {
	b.BaseOffset = offset
}

func (b *RecordBatch) bodySize() int {
	size := 8 + 8 + 4
	for _, r := range b.Records {
		size += r.serializedSize()
	}
	return size
}

// SerializedSize returns the number of bytes Serialize would produce,
// including the trailing CRC32.
func (b *RecordBatch) SerializedSize() int {
	return b.bodySize() + 4
}

// Serialize encodes the batch, including a freshly computed CRC32.
func (b *RecordBatch) Serialize() ([]byte, error) {
	if len(b.Records) == 0 {
		return nil, fmt.Errorf("%w: record batch must have at least one record", ErrInvalidArgument)
	}
	buf := make([]byte, 0, b.SerializedSize())
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:8], uint64(b.BaseOffset))
	buf = append(buf, tmp[:8]...)
	binary.LittleEndian.PutUint64(tmp[:8], uint64(b.TimestampMs))
	buf = append(buf, tmp[:8]...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(b.Records)))
	buf = append(buf, tmp[:4]...)
	for _, r := range b.Records {
		buf = r.appendTo(buf)
	}

	crc := crc32.ChecksumIEEE(buf)
	binary.LittleEndian.PutUint32(tmp[:4], crc)
	buf = append(buf, tmp[:4]...)
	return buf, nil
}

// DeserializeRecordBatch parses and CRC-validates a batch from buf,
// which must contain exactly one serialized batch (no trailing bytes).
func DeserializeRecordBatch(buf []byte) (*RecordBatch, error) {
	if len(buf) < 8+8+4+4 {
		return nil, fmt.Errorf("%w: batch shorter than fixed header", ErrCorrupted)
	}
	body := buf[:len(buf)-4]
	wantCrc := binary.LittleEndian.Uint32(buf[len(buf)-4:])
	gotCrc := crc32.ChecksumIEEE(body)
	if gotCrc != wantCrc {
		return nil, fmt.Errorf("%w: crc mismatch", ErrCorrupted)
	}

	off := 0
	baseOffset := int64(binary.LittleEndian.Uint64(body[off : off+8]))
	off += 8
	ts := int64(binary.LittleEndian.Uint64(body[off : off+8]))
	off += 8
	count := int32(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4
	if count <= 0 {
		return nil, fmt.Errorf("%w: non-positive record count %d", ErrCorrupted, count)
	}

	records := make([]Record, 0, count)
	for i := int32(0); i < count; i++ {
		rec, next, err := readRecord(body, off)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		off = next
	}
	if off != len(body) {
		return nil, fmt.Errorf("%w: trailing bytes after records", ErrCorrupted)
	}

	return &RecordBatch{BaseOffset: baseOffset, TimestampMs: ts, Records: records}, nil
}

// VerifyCrc32 reports whether buf (a serialized batch) still matches
// its trailing CRC32, without fully deserializing the record payload.
func VerifyCrc32(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	body := buf[:len(buf)-4]
	want := binary.LittleEndian.Uint32(buf[len(buf)-4:])
	return crc32.ChecksumIEEE(body) == want
}
