package repcxl

import (
	"fmt"
	"unsafe"

	"github.com/swystems/repcxl/internal/memio"
	"github.com/swystems/repcxl/internal/shmem"
)

// ReadResult is the outcome of a replicated read. Safe reports that every
// memory node held an identical write identifier at the moment of the
// fan-out; otherwise the value is the one carried by the greatest identifier
// observed.
type ReadResult[T any] struct {
	Value T
	Safe  bool
}

type writeRequest[T any] struct {
	info shmem.ObjectInfo
	data T
	ack  chan bool
}

type readReply[T any] struct {
	result ReadResult[T]
	err    error
}

type readRequest[T any] struct {
	info  shmem.ObjectInfo
	reply chan readReply[T]
}

// Handle is the client-facing view of one replicated object. It enqueues
// requests for the replication workers and never touches shared memory
// directly.
type Handle[T any] struct {
	info   shmem.ObjectInfo
	writes chan<- writeRequest[T]
	reads  chan<- readRequest[T]
	stop   *stopSignal
}

// ID returns the object's identifier.
func (m *Handle[T]) ID() uint64 {
	return m.info.ID
}

// Write replicates data to every memory node and blocks until the write
// worker resolves the request.
func (m *Handle[T]) Write(data T) error {
	// Handles obtained on replicas carry the chunk-rounded size, so the
	// entry only has to fit the allocation.
	if uint64(unsafe.Sizeof(memio.Entry[T]{})) > m.info.Size {
		return fmt.Errorf("entry size %d exceeds object size %d", unsafe.Sizeof(memio.Entry[T]{}), m.info.Size)
	}

	ack := make(chan bool, 1)
	select {
	case m.writes <- writeRequest[T]{info: m.info, data: data, ack: ack}:
	case <-m.stop.Done():
		return ErrStopped
	}

	select {
	case ok, open := <-ack:
		if !open {
			return ErrAckLost
		}
		if !ok {
			return ErrFailedWrite
		}
		return nil
	case <-m.stop.Done():
		return ErrStopped
	}
}

// Read fans a read out to every memory node and classifies the result.
func (m *Handle[T]) Read() (ReadResult[T], error) {
	reply := make(chan readReply[T], 1)
	select {
	case m.reads <- readRequest[T]{info: m.info, reply: reply}:
	case <-m.stop.Done():
		return ReadResult[T]{}, ErrStopped
	}

	select {
	case r := <-reply:
		// The read worker always resolves the request it is serving, so
		// unlike the write ack the reply channel is never abandoned.
		return r.result, r.err
	case <-m.stop.Done():
		return ReadResult[T]{}, ErrStopped
	}
}
