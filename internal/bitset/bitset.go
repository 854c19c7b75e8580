package bitset

import (
	"fmt"
	"math/bits"
	"sync/atomic"
)

// Words specifies the number of 64-bit words in the bitset.
//
// Two words cover every valid process ID, which keeps the structure small
// enough to live inside the shared control block.
const Words = 2

// Bits is the number of addressable bits.
const Bits = 64 * Words

// TinyBitset implements a constant-length bitset.
//
// The structure holds no pointers and has a fixed layout, so it can be
// embedded directly into memory shared between processes.
type TinyBitset struct {
	words [Words]uint64
}

// Count returns the number of bits set in the bitset.
func (m *TinyBitset) Count() uint {
	count := uint(0)
	for _, word := range m.words {
		count += uint(bits.OnesCount64(word))
	}

	return count
}

// Insert inserts the given index into the bitset.
func (m *TinyBitset) Insert(idx uint32) {
	if idx >= Bits {
		panic(fmt.Sprintf("index %d is too big: must be less than %d", idx, Bits))
	}

	m.words[idx/64] |= 1 << (idx % 64)
}

// SetAtomic inserts the given index with a single atomic RMW. Required when
// the bitset is shared between concurrently running writers: bits of
// different writers share a word, so a plain read-modify-write could lose an
// update.
func (m *TinyBitset) SetAtomic(idx uint32) {
	if idx >= Bits {
		panic(fmt.Sprintf("index %d is too big: must be less than %d", idx, Bits))
	}

	atomic.OrUint64(&m.words[idx/64], 1<<(idx%64))
}

// TestAtomic reports whether the given index is set, with an atomic load of
// the containing word.
func (m *TinyBitset) TestAtomic(idx uint32) bool {
	if idx >= Bits {
		return false
	}

	return atomic.LoadUint64(&m.words[idx/64])&(1<<(idx%64)) != 0
}

// Test reports whether the given index is set.
func (m *TinyBitset) Test(idx uint32) bool {
	if idx >= Bits {
		return false
	}

	return m.words[idx/64]&(1<<(idx%64)) != 0
}

// Clear removes every bit from the bitset.
func (m *TinyBitset) Clear() {
	m.words = [Words]uint64{}
}

// Traverse traverses the bitset and calls the given function for each bit set.
//
// Iteration is performed from the least significant bit to the most
// significant one.
func (m *TinyBitset) Traverse(fn func(uint32) bool) {
	for idx, word := range m.words {
		for word > 0 {
			r := bits.TrailingZeros64(word)
			// Isolate the least significant bit set and drop it, which
			// compiles down to a single "blsr" instruction.
			t := word & -word
			word ^= t

			if !fn(64*uint32(idx) + uint32(r)) {
				return
			}
		}
	}
}

// AsSlice returns the bitset as a slice of indices, where each index is a
// position of the bit set.
func (m *TinyBitset) AsSlice() []uint32 {
	out := make([]uint32, 0, m.Count())

	m.Traverse(func(idx uint32) bool {
		out = append(out, idx)
		return true
	})

	return out
}
