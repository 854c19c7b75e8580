// Package memio wraps raw pointer access to object entries on memory nodes.
//
// The wrappers may return an injected failure with a configurable
// probability. An external failure detector is expected to tell crashed
// nodes from transient errors; it is not part of this module, so injected
// failures exist for testing only and the production probability is zero.
package memio

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"unsafe"

	"github.com/swystems/repcxl/internal/shmem"
)

// Entry is the record stored at an object's offset on every memory node.
// The Wid is what lets any reader detect divergence between replicas.
//
// T must be a fixed-layout value type (no pointers, slices, maps or
// strings): the entry is copied byte-for-byte into memory shared across
// processes.
type Entry[T any] struct {
	Wid   shmem.Wid
	Value T
}

// MemoryError reports a read or write failure on one memory node.
type MemoryError struct {
	Node int
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory node %d failed", e.Node)
}

var failureProbability atomic.Uint64

// SetFailureProbability sets the chance in [0, 1] that a single read or
// write reports an injected failure.
func SetFailureProbability(p float64) {
	failureProbability.Store(math.Float64bits(p))
}

func injectedFailure() bool {
	p := math.Float64frombits(failureProbability.Load())
	return p > 0 && rand.Float64() < p
}

// WriteEntry stores the entry at addr.
func WriteEntry[T any](addr unsafe.Pointer, entry Entry[T]) error {
	if injectedFailure() {
		return fmt.Errorf("simulated write failure")
	}

	*(*Entry[T])(addr) = entry

	return nil
}

// ReadEntry loads the entry at addr.
func ReadEntry[T any](addr unsafe.Pointer) (Entry[T], error) {
	if injectedFailure() {
		return Entry[T]{}, fmt.Errorf("simulated read failure")
	}

	return *(*Entry[T])(addr), nil
}

// WriteAll writes the entry at the given object offset on every node, in node
// order. It fails fast with a MemoryError naming the first node whose write
// failed.
func WriteAll[T any](offset uint64, entry Entry[T], nodes []*shmem.Node) error {
	for _, node := range nodes {
		if err := WriteEntry(node.AddrAt(offset), entry); err != nil {
			return &MemoryError{Node: node.ID}
		}
	}

	return nil
}

// ReadAll reads the entry at the given object offset from every node and
// returns them in node order, or a MemoryError naming the first node whose
// read failed.
func ReadAll[T any](offset uint64, nodes []*shmem.Node) ([]Entry[T], error) {
	entries := make([]Entry[T], 0, len(nodes))
	for _, node := range nodes {
		entry, err := ReadEntry[T](node.AddrAt(offset))
		if err != nil {
			return nil, &MemoryError{Node: node.ID}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
