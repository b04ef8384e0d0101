package drawcull

// The sort stage orders (key, index) records ascending by key, stably: equal
// keys keep their original relative order, so render order for equal primary
// keys stays deterministic frame to frame.

const radixBits = 8
const radixBuckets = 1 << radixBits

// sortNetworkThreshold: below this, the compare-exchange network wins over
// the radix passes.
const sortNetworkThreshold = 64

// SortRecords sorts in place. Zero or one element is a no-op; already-sorted
// input is idempotent.
func SortRecords(recs []SortKeyRecord) {
	if len(recs) < 2 {
		return
	}
	if len(recs) <= sortNetworkThreshold && isPowerOfTwo(len(recs)) {
		sortNetwork(recs)
		return
	}
	radixSort(recs)
}

// radixSort is an LSD counting sort over 8-bit digits: histogram, exclusive
// prefix sum for bucket offsets, then a stable scatter. Four passes cover the
// 32-bit key.
func radixSort(recs []SortKeyRecord) {
	tmp := make([]SortKeyRecord, len(recs))
	src, dst := recs, tmp

	for pass := 0; pass < 32/radixBits; pass++ {
		shift := uint(pass * radixBits)

		var histogram [radixBuckets]uint32
		for i := range src {
			histogram[(src[i].Key>>shift)&(radixBuckets-1)]++
		}

		// Exclusive prefix sum: each bucket's first output offset.
		var sum uint32
		var offsets [radixBuckets]uint32
		for b := 0; b < radixBuckets; b++ {
			offsets[b] = sum
			sum += histogram[b]
		}

		// Scatter in input order; equal digits land in input order, which is
		// what makes the whole sort stable.
		for i := range src {
			b := (src[i].Key >> shift) & (radixBuckets - 1)
			dst[offsets[b]] = src[i]
			offsets[b]++
		}

		src, dst = dst, src
	}

	// 32/radixBits is even, so the result already sits in recs.
}

// sortNetwork is an odd-even merge style compare-exchange pass sequence for
// power-of-two element counts. Comparisons tie-break on the back-reference
// index, which equals the pre-sort position, so the final order is identical
// to the stable radix path.
func sortNetwork(recs []SortKeyRecord) {
	n := len(recs)
	for k := 2; k <= n; k <<= 1 {
		for j := k >> 1; j > 0; j >>= 1 {
			for i := 0; i < n; i++ {
				l := i ^ j
				if l <= i {
					continue
				}
				ascending := i&k == 0
				if ascending == lessRecord(&recs[l], &recs[i]) {
					recs[i], recs[l] = recs[l], recs[i]
				}
			}
		}
	}
}

func lessRecord(a, b *SortKeyRecord) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.Index < b.Index
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
