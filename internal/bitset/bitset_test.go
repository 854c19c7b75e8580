package bitset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_TinyBitsetCount(t *testing.T) {
	b := TinyBitset{}

	assert.Equal(t, uint(0), b.Count())

	b.Insert(0)
	b.Insert(42)
	assert.Equal(t, uint(2), b.Count())
}

func Test_TinyBitsetTest(t *testing.T) {
	b := TinyBitset{}
	b.Insert(7)
	b.Insert(127)

	assert.True(t, b.Test(7))
	assert.True(t, b.Test(127))
	assert.False(t, b.Test(8))
	assert.False(t, b.Test(4096))
}

func Test_TinyBitsetAtomicOps(t *testing.T) {
	b := TinyBitset{}

	var wg sync.WaitGroup
	for i := range uint32(Bits) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.SetAtomic(i)
		}()
	}
	wg.Wait()

	// No concurrent insert may be lost.
	assert.Equal(t, uint(Bits), b.Count())
	assert.True(t, b.TestAtomic(0))
	assert.True(t, b.TestAtomic(Bits-1))
	assert.False(t, b.TestAtomic(Bits))
}

func Test_TinyBitsetClear(t *testing.T) {
	b := TinyBitset{}
	b.Insert(1)
	b.Insert(64)

	b.Clear()
	assert.Equal(t, uint(0), b.Count())
}

func Test_TinyBitsetTraverse(t *testing.T) {
	b := TinyBitset{}
	b.Insert(0)
	b.Insert(42)
	b.Insert(100)

	bits := make([]uint32, 0)
	b.Traverse(func(idx uint32) bool {
		bits = append(bits, idx)
		return true
	})

	assert.Equal(t, []uint32{0, 42, 100}, bits)
}

func Test_TinyBitsetPartialTraverse(t *testing.T) {
	b := TinyBitset{}
	b.Insert(42)
	b.Insert(84)
	b.Insert(100)

	bits := make([]uint32, 0)
	b.Traverse(func(idx uint32) bool {
		bits = append(bits, idx)
		return false
	})

	assert.Equal(t, []uint32{42}, bits)
}

func Test_TinyBitsetAsSlice(t *testing.T) {
	b := TinyBitset{}
	b.Insert(3)
	b.Insert(65)

	assert.Equal(t, []uint32{3, 65}, b.AsSlice())
}

func Test_TinyBitsetInsertOutOfRange(t *testing.T) {
	b := TinyBitset{}

	assert.Panics(t, func() { b.Insert(Bits) })
}
