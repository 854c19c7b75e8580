package repcxl

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// roundSleepRatio is the share of each round spent sleeping before the
// scheduler busy-waits to the boundary. Zero spins the whole round tail for
// the lowest boundary jitter.
const roundSleepRatio = 0.0

// worker carries the state shared by the replication worker loops of one
// process.
type worker[T any] struct {
	view      *GroupView
	startTime time.Time
	roundTime time.Duration
	stop      *stopSignal
	conflicts *atomic.Uint64
	log       *zap.SugaredLogger
}

type writeWorkerFn[T any] func(*worker[T], <-chan writeRequest[T]) error

// writeWorker resolves the configured algorithm to a concrete worker
// function. The choice is made once, at start time.
func writeWorker[T any](algorithm string) (writeWorkerFn[T], error) {
	switch algorithm {
	case AlgorithmMonster:
		return monsterWrite[T], nil
	case AlgorithmAsyncBestEffort:
		return asyncBestEffort[T], nil
	case AlgorithmSyncBestEffort:
		return syncBestEffort[T], nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", algorithm)
	}
}

// ackClient resolves a pending request toward its client. The ack channel
// buffers the one reply, so the send does not block whether or not the
// client is still waiting; a client that stopped waiting is not detected.
// The error is logged only when the channel already holds a reply.
func ackClient[T any](req *writeRequest[T], ok bool, log *zap.SugaredLogger) {
	select {
	case req.ack <- ok:
	default:
		log.Errorf("failed to send ack for object %d: reply channel abandoned", req.info.ID)
	}
}
