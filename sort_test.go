package drawcull

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomRecords(n int, keySpace uint32, seed int64) []SortKeyRecord {
	rng := rand.New(rand.NewSource(seed))
	recs := make([]SortKeyRecord, n)
	for i := range recs {
		recs[i] = SortKeyRecord{
			Key:        rng.Uint32() % keySpace,
			MaterialID: rng.Uint32() % 8,
			MeshID:     rng.Uint32() % 8,
			Index:      uint32(i),
		}
	}
	return recs
}

func assertSortedStable(t *testing.T, recs []SortKeyRecord) {
	t.Helper()
	for i := 1; i < len(recs); i++ {
		if recs[i-1].Key > recs[i].Key {
			t.Fatalf("not sorted at %d: %#x > %#x", i, recs[i-1].Key, recs[i].Key)
		}
		if recs[i-1].Key == recs[i].Key && recs[i-1].Index > recs[i].Index {
			t.Fatalf("stability broken at %d: equal key %#x, index %d before %d",
				i, recs[i].Key, recs[i-1].Index, recs[i].Index)
		}
	}
}

func TestSortRecordsEmpty(t *testing.T) {
	SortRecords(nil)
	SortRecords([]SortKeyRecord{})
	one := []SortKeyRecord{{Key: 42}}
	SortRecords(one)
	assert.Equal(t, uint32(42), one[0].Key)
}

func TestSortRecordsStable(t *testing.T) {
	// Narrow key space forces many ties.
	recs := randomRecords(1000, 16, 1)
	SortRecords(recs)
	assertSortedStable(t, recs)
}

func TestSortRecordsIdempotent(t *testing.T) {
	recs := randomRecords(500, 1<<16, 2)
	SortRecords(recs)
	snapshot := append([]SortKeyRecord(nil), recs...)
	SortRecords(recs)
	require.Equal(t, snapshot, recs)
}

func TestSortRecordsFullKeyRange(t *testing.T) {
	recs := randomRecords(333, 1<<31, 3)
	for i := range recs {
		recs[i].Key |= 0x80000000 * uint32(i%2) // exercise the high byte
	}
	SortRecords(recs)
	assertSortedStable(t, recs)
}

// The network path (power-of-two sizes up to the threshold) must produce the
// same order as the stable radix path.
func TestSortNetworkMatchesRadix(t *testing.T) {
	for _, n := range []int{2, 4, 8, 16, 32, 64} {
		recs := randomRecords(n, 8, int64(n))
		viaNetwork := append([]SortKeyRecord(nil), recs...)
		viaRadix := append([]SortKeyRecord(nil), recs...)

		sortNetwork(viaNetwork)
		radixSort(viaRadix)

		require.Equal(t, viaRadix, viaNetwork, "n=%d", n)
	}
}

func TestSortMatchesStdlibStable(t *testing.T) {
	recs := randomRecords(2048, 64, 4)
	expect := append([]SortKeyRecord(nil), recs...)
	sort.SliceStable(expect, func(i, j int) bool { return expect[i].Key < expect[j].Key })

	SortRecords(recs)
	require.Equal(t, expect, recs)
}
