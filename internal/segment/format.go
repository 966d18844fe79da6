// Package segment implements the on-disk format for a single bounded,
// append-only log segment: a fixed header, a pre-reserved index table, and a
// data region of concatenated payloads.
package segment

import "encoding/binary"

var enc = binary.BigEndian

const (
	// currentVersion is the only header version this package understands.
	currentVersion uint16 = 1

	// headerSize is the size in bytes of the fixed segment header:
	// version (2 bytes) || capacity (2 bytes).
	headerSize = 4

	// indexRecordSize is the size in bytes of one fixed-width index
	// record: raftIndex(8) || raftTerm(4) || dataOffset(4) || length(4) ||
	// crc32(4). raftTerm is narrower than raftIndex: a segment's capacity
	// is capped at 65535 entries and Raft terms climb far slower than log
	// indices, so 32 bits of term headroom fits comfortably inside the
	// 24-byte record the wire format budgets per entry.
	indexRecordSize = 24

	// DefaultMaxCount is the capacity used when creating a segment without
	// an explicit MaxCount.
	DefaultMaxCount = 4096

	// maxCapacity is the largest capacity representable by the header's
	// 16-bit capacity field.
	maxCapacity = 1<<16 - 1
)

// indexEntry is the decoded form of one 24-byte index record, minus the
// raft index itself (which is the map key wherever indexEntry is stored).
type indexEntry struct {
	term   uint32
	offset uint32
	length uint32
	crc    uint32
}

// encodeHeader returns the 4-byte on-disk header for the given capacity.
func encodeHeader(capacity uint16) []byte {
	b := make([]byte, headerSize)
	enc.PutUint16(b[0:2], currentVersion)
	enc.PutUint16(b[2:4], capacity)
	return b
}

// decodeHeader parses a 4-byte on-disk header.
func decodeHeader(b []byte) (version, capacity uint16) {
	version = enc.Uint16(b[0:2])
	capacity = enc.Uint16(b[2:4])
	return version, capacity
}

// encodeIndexRecord returns the 24-byte on-disk form of one index record.
func encodeIndexRecord(raftIndex uint64, e indexEntry) []byte {
	b := make([]byte, indexRecordSize)
	enc.PutUint64(b[0:8], raftIndex)
	enc.PutUint32(b[8:12], e.term)
	enc.PutUint32(b[12:16], e.offset)
	enc.PutUint32(b[16:20], e.length)
	enc.PutUint32(b[20:24], e.crc)
	return b
}

// decodeIndexRecord parses a 24-byte on-disk index record. It does not
// distinguish the all-zero sentinel; callers check isZeroRecord first.
func decodeIndexRecord(b []byte) (raftIndex uint64, e indexEntry) {
	raftIndex = enc.Uint64(b[0:8])
	e.term = enc.Uint32(b[8:12])
	e.offset = enc.Uint32(b[12:16])
	e.length = enc.Uint32(b[16:20])
	e.crc = enc.Uint32(b[20:24])
	return raftIndex, e
}

// isZeroRecord reports whether b is the all-zero sentinel for an unwritten
// index slot.
func isZeroRecord(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// dataStart returns the file offset at which the data region begins for a
// segment with the given capacity.
func dataStart(capacity uint16) uint64 {
	return headerSize + uint64(capacity)*indexRecordSize
}
