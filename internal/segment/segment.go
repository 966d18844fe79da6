package segment

import (
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"time"

	"github.com/armon/go-metrics"
	"github.com/tysonmote/gommap"
)

// Mode controls whether a Segment is opened for appending or for
// random-access reading.
type Mode int

const (
	// ModeAppend opens the segment for writing. The handle also permits
	// reads, since recovery needs them, but callers should treat an
	// append-mode segment as write-oriented: it does not retain an
	// in-memory index.
	ModeAppend Mode = iota
	// ModeRead opens the segment read-only. Recovery builds and retains
	// an in-memory index keyed by raft index.
	ModeRead
)

func (m Mode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeRead:
		return "read"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Options configures Open. MaxCount is only used when creating a new
// segment file; it is ignored (and derived from the file's header instead)
// when reopening an existing one.
type Options struct {
	Mode     Mode
	MaxCount int
}

func (o Options) withDefaults() Options {
	if o.MaxCount == 0 {
		o.MaxCount = DefaultMaxCount
	}
	return o
}

// Entry is one decoded log entry returned by Read.
type Entry struct {
	Index   uint64
	Term    uint64
	Payload []byte
}

// Segment is the in-memory state of one open segment file.
type Segment struct {
	file     *os.File
	filename string
	mode     Mode

	version  uint16
	capacity uint16
	start    uint64 // dataStart, constant for the life of the file

	indexOffset uint64
	dataOffset  uint64

	// index is populated only when mode == ModeRead.
	index map[uint64]indexEntry

	// data is a read-only mmap of the whole file, populated only when
	// mode == ModeRead. Reads slice payload bytes straight out of it
	// instead of issuing a ReadAt syscall per lookup; the index table
	// itself is still recovered via Stat+ReadAt in recoverIndex, since
	// that logic depends on the file's exact on-disk size, which a
	// pre-mapped region would obscure.
	data gommap.MMap
}

// Open opens the segment at filename, creating it if it does not exist and
// opts.Mode is ModeAppend. In ModeRead a missing file is an error.
func Open(filename string, opts Options) (*Segment, error) {
	opts = opts.withDefaults()

	_, statErr := os.Stat(filename)
	switch {
	case os.IsNotExist(statErr):
		return createSegment(filename, opts)
	case statErr != nil:
		return nil, wrapIO(statErr)
	default:
		return openSegment(filename, opts)
	}
}

func createSegment(filename string, opts Options) (*Segment, error) {
	if opts.MaxCount <= 0 || opts.MaxCount > maxCapacity {
		return nil, wrapIO(fmt.Errorf("segment: MaxCount %d out of range 1..%d", opts.MaxCount, maxCapacity))
	}
	capacity := uint16(opts.MaxCount)

	flag := os.O_RDWR | os.O_CREATE | os.O_EXCL
	if opts.Mode == ModeRead {
		// A reader can never legitimately race a creator for a brand new
		// file; treat it the same as "does not exist" from the reader's
		// point of view.
		return nil, wrapIO(fmt.Errorf("segment: %s does not exist", filename))
	}

	f, err := os.OpenFile(filename, flag, 0644)
	if err != nil {
		return nil, wrapIO(err)
	}

	if _, err := f.Write(encodeHeader(capacity)); err != nil {
		_ = f.Close()
		return nil, wrapIO(err)
	}

	return &Segment{
		file:        f,
		filename:    filename,
		mode:        ModeAppend,
		version:     currentVersion,
		capacity:    capacity,
		start:       dataStart(capacity),
		indexOffset: headerSize,
		dataOffset:  dataStart(capacity),
	}, nil
}

func openSegment(filename string, opts Options) (*Segment, error) {
	flag := os.O_RDWR
	if opts.Mode == ModeRead {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(filename, flag, 0644)
	if err != nil {
		return nil, wrapIO(err)
	}

	hdr := make([]byte, headerSize)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		_ = f.Close()
		return nil, wrapIO(err)
	}

	version, capacity := decodeHeader(hdr)
	if version != currentVersion {
		_ = f.Close()
		return nil, ErrInvalidSegmentVersion{Version: version}
	}

	numRecords, nextDataOffset, index, err := recoverIndex(f, capacity)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	metrics.SetGauge(metricRecoveredRecords, float32(numRecords))

	s := &Segment{
		file:        f,
		filename:    filename,
		mode:        opts.Mode,
		version:     version,
		capacity:    capacity,
		start:       dataStart(capacity),
		indexOffset: headerSize + numRecords*indexRecordSize,
		dataOffset:  nextDataOffset,
	}
	if opts.Mode == ModeRead {
		s.index = index
		m, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
		if err != nil {
			_ = f.Close()
			return nil, wrapIO(err)
		}
		s.data = m
	}
	return s, nil
}

// Close releases the segment's file handle, unmapping first if the segment
// holds a read-mode mmap. The file handle is closed even if the unmap
// fails, so a munmap error never leaks the fd.
func (s *Segment) Close() error {
	var unmapErr error
	if s.data != nil {
		unmapErr = s.data.UnsafeUnmap()
	}
	closeErr := s.file.Close()

	switch {
	case unmapErr != nil:
		return wrapIO(unmapErr)
	case closeErr != nil:
		return wrapIO(closeErr)
	default:
		return nil
	}
}

// Sync forces buffered writes and metadata to durable storage. It is the
// only durability primitive Segment offers; Append never implies Sync.
func (s *Segment) Sync() error {
	defer metrics.IncrCounter(metricSync, 1)
	if err := s.file.Sync(); err != nil {
		return wrapIO(err)
	}
	return nil
}

// Filename returns the path the segment was opened with.
func (s *Segment) Filename() string { return s.filename }

// MaxCount returns the segment's fixed capacity.
func (s *Segment) MaxCount() int { return int(s.capacity) }

// Mode returns the mode the segment was opened in.
func (s *Segment) Mode() Mode { return s.mode }

// Full reports whether every index slot in the segment is occupied.
func (s *Segment) Full() bool { return s.indexOffset == s.start }

// Len reports how many index slots are currently occupied, whether from a
// prior append in this process or recovered on open.
func (s *Segment) Len() int { return int((s.indexOffset - headerSize) / indexRecordSize) }

// Append writes one entry to the segment and returns ErrSegmentFull if no
// index slots remain. It must be called on a segment opened in ModeAppend.
func (s *Segment) Append(raftIndex, raftTerm uint64, payload []byte) error {
	if s.mode != ModeAppend {
		return ErrWrongMode{Op: "Append", Have: s.mode, Want: ModeAppend}
	}
	if s.Full() {
		metrics.IncrCounter(metricAppendFull, 1)
		return ErrSegmentFull
	}
	defer measureAppend(time.Now())
	if len(payload) > math.MaxUint32 {
		return wrapIO(fmt.Errorf("payload length %d exceeds u32", len(payload)))
	}
	if raftTerm > math.MaxUint32 {
		return wrapIO(fmt.Errorf("raft term %d exceeds u32", raftTerm))
	}
	off := s.dataOffset
	if off > math.MaxUint32 {
		return wrapIO(fmt.Errorf("data offset %d exceeds u32", off))
	}

	crc := crc32.ChecksumIEEE(payload)
	entry := indexEntry{
		term:   uint32(raftTerm),
		offset: uint32(off),
		length: uint32(len(payload)),
		crc:    crc,
	}

	if len(payload) > 0 {
		if _, err := s.file.WriteAt(payload, int64(off)); err != nil {
			return wrapIO(err)
		}
	}
	record := encodeIndexRecord(raftIndex, entry)
	if _, err := s.file.WriteAt(record, int64(s.indexOffset)); err != nil {
		return wrapIO(err)
	}

	s.indexOffset += indexRecordSize
	s.dataOffset += uint64(len(payload))
	return nil
}

// Read resolves [startIndex, startIndex+count) against the in-memory
// index, silently skipping absent indices, and returns the matching
// entries in ascending raft-index order. It must be called on a segment
// opened in ModeRead.
func (s *Segment) Read(startIndex uint64, count int) ([]Entry, error) {
	if s.mode != ModeRead {
		return nil, ErrWrongMode{Op: "Read", Have: s.mode, Want: ModeRead}
	}
	if count <= 0 {
		return nil, nil
	}
	defer measureRead(time.Now())

	entries := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		idx := startIndex + uint64(i)
		e, ok := s.index[idx]
		if !ok {
			continue
		}

		end := uint64(e.offset) + uint64(e.length)
		if end > uint64(len(s.data)) {
			return nil, wrapIO(fmt.Errorf("entry at index %d extends past mapped file", idx))
		}
		buf := make([]byte, e.length)
		copy(buf, s.data[e.offset:end])
		if crc32.ChecksumIEEE(buf) != e.crc {
			metrics.IncrCounter(metricChecksumMismatch, 1)
			return nil, ErrChecksumMismatch{Index: idx}
		}

		entries = append(entries, Entry{Index: idx, Term: uint64(e.term), Payload: buf})
	}
	return entries, nil
}
