package wal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ttaaoo/raftlog/internal/segment"
)

func openTestWAL(t *testing.T, maxCount int) *WAL {
	t.Helper()
	dir := t.TempDir()
	w, err := Open(dir, Options{
		Segment:      segment.Options{MaxCount: maxCount},
		SyncInterval: time.Hour, // don't let the ticker race the test
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestAppendAssignsMonotonicIndices(t *testing.T) {
	w := openTestWAL(t, 16)

	i0, err := w.Append(1, []byte("a"))
	require.NoError(t, err)
	i1, err := w.Append(1, []byte("b"))
	require.NoError(t, err)
	i2, err := w.Append(2, []byte("c"))
	require.NoError(t, err)

	require.Equal(t, uint64(0), i0)
	require.Equal(t, uint64(1), i1)
	require.Equal(t, uint64(2), i2)
}

// S7: rollover on segment capacity produces two segment files, each
// readable independently.
func TestRolloverProducesNewSegmentFile(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, Options{
		Segment:      segment.Options{MaxCount: 2},
		SyncInterval: time.Hour,
	})
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 3; i++ {
		_, err := w.Append(1, []byte{byte('a' + i)})
		require.NoError(t, err)
	}

	require.Equal(t, []uint64{0, 2}, w.Bases())

	r0, err := w.OpenReader(0)
	require.NoError(t, err)
	defer r0.Close()
	entries, err := r0.Read(0, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", string(entries[0].Payload))
	require.Equal(t, "b", string(entries[1].Payload))

	r2, err := w.OpenReader(2)
	require.NoError(t, err)
	defer r2.Close()
	entries, err = r2.Read(2, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "c", string(entries[0].Payload))
}

func TestOpenResumesAfterReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, Options{
		Segment:      segment.Options{MaxCount: 16},
		SyncInterval: time.Hour,
	})
	require.NoError(t, err)
	_, err = w.Append(1, []byte("x"))
	require.NoError(t, err)
	_, err = w.Append(1, []byte("y"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := Open(dir, Options{
		Segment:      segment.Options{MaxCount: 16},
		SyncInterval: time.Hour,
	})
	require.NoError(t, err)
	defer w2.Close()

	idx, err := w2.Append(1, []byte("z"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), idx)
}

func TestOpenBootstrapsFirstSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, Options{
		Segment:      segment.Options{MaxCount: 4},
		InitialIndex: 100,
		SyncInterval: time.Hour,
	})
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, []uint64{100}, w.Bases())

	idx, err := w.Append(1, []byte("first"))
	require.NoError(t, err)
	require.Equal(t, uint64(100), idx)
}

func TestSegmentPathIsLexicallySortable(t *testing.T) {
	dir := t.TempDir()
	p1 := segmentPath(dir, 5)
	p2 := segmentPath(dir, 100)
	require.True(t, filepath.Base(p1) < filepath.Base(p2))
}
