// Package wal owns a directory of segment files and presents them as a
// single append-only log addressed by raft index, generalizing the
// single-segment format in internal/segment to an unbounded sequence of
// segments that roll over as each one fills.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/rs/zerolog"

	"github.com/ttaaoo/raftlog/internal/segment"
)

const segmentSuffix = ".seg"

// nameWidth is wide enough that filenames sort lexically in the same order
// as their base index, which keeps directory listings human-readable.
const nameWidth = 20

// Options configures Open. Segment governs every segment file the WAL
// creates; SyncInterval governs the background durability ticker.
type Options struct {
	Segment      segment.Options
	InitialIndex uint64
	SyncInterval time.Duration
	// Logger is optional; a stderr logger is used when nil.
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.SyncInterval == 0 {
		o.SyncInterval = time.Second
	}
	if o.Logger == nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Str("component", "wal").Logger()
		o.Logger = &l
	}
	return o
}

// WAL is the directory-level owner of a sequence of segment files. It
// assigns each Append a monotonically increasing raft index, rolls to a
// fresh segment when the active one reports ErrSegmentFull, and drives a
// background sync ticker.
type WAL struct {
	mu  sync.Mutex
	dir string
	opts Options

	active  *segment.Segment
	bases   []uint64
	nextIdx uint64

	log *zerolog.Logger

	closeOnce sync.Once
	stopTick  chan struct{}
	tickDone  chan struct{}
}

// Open discovers existing segment files in dir (named by their zero-padded
// base index) and opens the highest-based one for append. If dir contains
// no segment files, it bootstraps the first one at opts.InitialIndex.
func Open(dir string, opts Options) (*WAL, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	bases, err := listSegmentBases(dir)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		dir:      dir,
		opts:     opts,
		log:      opts.Logger,
		stopTick: make(chan struct{}),
		tickDone: make(chan struct{}),
	}

	if len(bases) == 0 {
		bases = []uint64{opts.InitialIndex}
	}
	w.bases = bases

	activeBase := bases[len(bases)-1]
	s, err := segment.Open(segmentPath(dir, activeBase), opts.Segment)
	if err != nil {
		return nil, err
	}
	w.active = s
	w.nextIdx = activeBase + uint64(s.Len())

	go w.syncLoop()
	w.log.Info().Str("dir", dir).Uint64("next_index", w.nextIdx).Msg("wal opened")
	return w, nil
}

// Append assigns the next raft index, appends payload under term to the
// active segment, and rolls to a new segment exactly once if the active one
// is full.
func (w *WAL) Append(term uint64, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.nextIdx
	err := w.active.Append(idx, term, payload)
	if err == segment.ErrSegmentFull {
		metrics.IncrCounter([]string{"wal", "rollover"}, 1)
		if rollErr := w.roll(idx); rollErr != nil {
			return 0, rollErr
		}
		err = w.active.Append(idx, term, payload)
	}
	if err != nil {
		return 0, err
	}

	w.nextIdx++
	return idx, nil
}

// roll closes the current active segment and opens a fresh one based at
// newBase, appending it to the WAL's segment list.
func (w *WAL) roll(newBase uint64) error {
	if err := w.active.Close(); err != nil {
		return err
	}
	s, err := segment.Open(segmentPath(w.dir, newBase), w.opts.Segment)
	if err != nil {
		return err
	}
	w.active = s
	w.bases = append(w.bases, newBase)
	w.log.Info().Uint64("base_index", newBase).Msg("wal rolled to new segment")
	return nil
}

// OpenReader opens the segment file whose base index is baseIndex in
// read-only mode. The caller owns the returned segment and must Close it.
func (w *WAL) OpenReader(baseIndex uint64) (*segment.Segment, error) {
	w.mu.Lock()
	dir := w.dir
	w.mu.Unlock()
	return segment.Open(segmentPath(dir, baseIndex), segment.Options{Mode: segment.ModeRead})
}

// Bases returns the base indices of every segment file the WAL currently
// knows about, oldest first.
func (w *WAL) Bases() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint64, len(w.bases))
	copy(out, w.bases)
	return out
}

// Sync flushes the active segment to durable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active.Sync()
}

func (w *WAL) syncLoop() {
	defer close(w.tickDone)
	ticker := time.NewTicker(w.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Sync(); err != nil {
				w.log.Error().Err(err).Msg("periodic sync failed")
			}
		case <-w.stopTick:
			return
		}
	}
}

// Close stops the sync ticker, syncs and closes the active segment. The
// segment is closed even if the sync fails; the sync error takes priority.
func (w *WAL) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopTick)
		<-w.tickDone

		w.mu.Lock()
		defer w.mu.Unlock()
		syncErr := w.active.Sync()
		closeErr := w.active.Close()
		if syncErr != nil {
			err = syncErr
			return
		}
		err = closeErr
	})
	return err
}

func segmentPath(dir string, base uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%0*d%s", nameWidth, base, segmentSuffix))
}

func listSegmentBases(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}

	var bases []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), segmentSuffix) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), segmentSuffix)
		base, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			continue
		}
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	return bases, nil
}
