package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// A gap of zero slots after a written one stops the scan, even if a
// later slot happens to contain non-zero bytes (which a correct writer
// can never produce, but recovery must still behave predictably).
func TestRecoverIndexStopsAtFirstZeroSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.seg")
	const capacity = 4

	require.NoError(t, os.WriteFile(path, encodeHeader(capacity), 0644))

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)

	// Slot 0: valid record for raft index 1, zero-length payload so its
	// data range is trivially within the (still empty) data region.
	// A zero-length payload checksums to 0, so crc is left at its zero
	// value here.
	rec0 := encodeIndexRecord(1, indexEntry{offset: uint32(dataStart(capacity)), length: 0})
	_, err = f.WriteAt(rec0, headerSize)
	require.NoError(t, err)

	// Slot 2 (skipping slot 1, which stays zero): a record that a real
	// writer could never have produced, since it would have occupied
	// slot 1 first.
	rec2 := encodeIndexRecord(3, indexEntry{offset: uint32(dataStart(capacity))})
	_, err = f.WriteAt(rec2, headerSize+2*indexRecordSize)
	require.NoError(t, err)

	require.NoError(t, os.Truncate(path, int64(dataStart(capacity))))
	require.NoError(t, f.Close())

	numRecords, _, index, err := reopenAndRecover(t, path, capacity)
	require.NoError(t, err)
	require.EqualValues(t, 1, numRecords)
	require.Len(t, index, 1)
	require.Contains(t, index, uint64(1))
}

func TestRecoverIndexFreshFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.seg")
	require.NoError(t, os.WriteFile(path, encodeHeader(4), 0644))

	numRecords, nextDataOffset, index, err := reopenAndRecover(t, path, 4)
	require.NoError(t, err)
	require.Zero(t, numRecords)
	require.Equal(t, dataStart(4), nextDataOffset)
	require.Empty(t, index)
}

func reopenAndRecover(t *testing.T, path string, capacity uint16) (uint64, uint64, map[uint64]indexEntry, error) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()
	return recoverIndex(f, capacity)
}
