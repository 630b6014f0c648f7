// internal/bitmap/bitmap.go

// Package bitmap provides a memory-efficient bitset over non-negative row
// indexes. Flight batches use it for single-bit columns (cancelled, diverted,
// weekend) and for per-batch reject masks, where a []bool costs 8x the memory.
package bitmap

import "math/bits"

// Bitmap represents a bitset backed by a slice of uint64 words.
// Each bit corresponds to a non-negative integer row index.
type Bitmap struct {
	data []uint64
}

// New allocates a bitmap that can store bits for indexes in the range [0, maxID].
//
// If maxID <= 0, no backing storage is allocated and the bitmap behaves as
// an empty set.
func New(maxID int) *Bitmap {
	if maxID <= 0 {
		return &Bitmap{data: nil}
	}
	nWords := (maxID + 63) / 64 // enough 64-bit words to cover [0, maxID]
	return &Bitmap{
		data: make([]uint64, nWords),
	}
}

// Add sets the bit corresponding to id. Negative ids are ignored.
//
// If id exceeds the capacity implied by New(maxID), the call is a no-op.
func (b *Bitmap) Add(id int) {
	if id < 0 {
		return
	}
	word := id / 64
	if word >= len(b.data) {
		// Out of range for this bitmap; ignore.
		return
	}
	bit := uint(id % 64)
	b.data[word] |= 1 << bit
}

// Clear unsets the bit corresponding to id. Out-of-range ids are a no-op.
// Batch compaction moves surviving rows downward and uses Clear to overwrite
// stale bits at their new positions.
func (b *Bitmap) Clear(id int) {
	if id < 0 {
		return
	}
	word := id / 64
	if word >= len(b.data) {
		return
	}
	bit := uint(id % 64)
	b.data[word] &^= 1 << bit
}

// Has reports whether the bit corresponding to id is set.
// Negative ids always return false.
func (b *Bitmap) Has(id int) bool {
	if id < 0 {
		return false
	}
	word := id / 64
	if word >= len(b.data) {
		return false
	}
	bit := uint(id % 64)
	return (b.data[word] & (1 << bit)) != 0
}

// Reset clears all bits and grows the bitmap, if needed, so that indexes in
// [0, maxID] fit. Pooled batches call Reset on reuse instead of allocating.
func (b *Bitmap) Reset(maxID int) {
	nWords := 0
	if maxID > 0 {
		nWords = (maxID + 63) / 64
	}
	if nWords > cap(b.data) {
		b.data = make([]uint64, nWords)
		return
	}
	b.data = b.data[:nWords]
	for i := range b.data {
		b.data[i] = 0
	}
}

// Count returns the number of set bits. Aggregation uses it to tally flag
// columns without touching every row.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.data {
		n += bits.OnesCount64(w)
	}
	return n
}
