// Package shmem implements the shared-memory resident structures of the
// replication engine: the memory-node mapping, the object index, the
// starting-block rendezvous and the write-conflict register.
//
// Every structure here is pointer-free and fixed-layout so that all
// participating processes can overlay it onto the same mapped region. All
// participants must be built with the same layout; this is a compatibility
// precondition, not something verified at runtime.
package shmem

import (
	"unsafe"
)

const (
	// MaxProcesses is the maximum number of cooperating processes.
	MaxProcesses = 128
	// MaxObjects is the capacity of the object index.
	MaxObjects = 128
)

// SharedState is the control block stored as the prefix of every memory-node
// region. The object area follows it.
type SharedState struct {
	Index     ObjectIndex
	Start     StartingBlock
	Conflicts OWCC
}

// StateSize is the number of bytes the control block occupies at the start
// of each region.
const StateSize = int(unsafe.Sizeof(SharedState{}))

// NewSharedState returns a freshly initialized control block for a region
// whose object area spans totalSize bytes with the given chunk granularity.
func NewSharedState(totalSize, chunkSize uint64) SharedState {
	state := SharedState{}
	state.Index.Init(totalSize, chunkSize)

	return state
}

func init() {
	// The control block is overlaid byte-for-byte by every process mapping
	// the region, so its layout must not drift.
	if unsafe.Sizeof(owccSlot{}) != 16 {
		panic("owccSlot layout changed")
	}
	if unsafe.Sizeof(objectSlot{}) != 32 {
		panic("objectSlot layout changed")
	}
	if unsafe.Alignof(SharedState{})%8 != 0 {
		panic("SharedState must be 8-byte aligned")
	}
}
