package repcxl

import "errors"

var (
	// ErrFailedWrite is returned by Handle.Write when the worker explicitly
	// rejected the write.
	ErrFailedWrite = errors.New("failed write operation")
	// ErrAckLost is returned when the worker went away before replying.
	ErrAckLost = errors.New("reply channel closed before completion")
	// ErrStopped is returned for requests submitted after the engine stopped.
	ErrStopped = errors.New("replication workers stopped")
	// ErrAllocationFailed reports a full object table, a duplicate id or
	// insufficient contiguous space.
	ErrAllocationFailed = errors.New("object allocation failed")
	// ErrObjectNotFound reports a lookup of an id absent from the shared index.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNotCoordinator reports a coordinator-only operation invoked by a
	// replica.
	ErrNotCoordinator = errors.New("operation restricted to the coordinator")
)
