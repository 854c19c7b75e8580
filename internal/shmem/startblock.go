package shmem

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/swystems/repcxl/internal/bitset"
)

// StartingBlock is the process rendezvous stored in the shared control block.
//
// Each joining process sets its ready bit; the coordinator, once it observes
// every bit of its group view, schedules a common start time. The time is
// written once and never again.
type StartingBlock struct {
	startUnixNano int64
	ready         bitset.TinyBitset
}

// MarkReady sets the ready bit of the given process. Ready bits of different
// processes share a word, so the update is an atomic RMW.
func (m *StartingBlock) MarkReady(pid int) {
	if pid < 0 || pid >= MaxProcesses {
		panic(fmt.Sprintf("process ID %d exceeds MaxProcesses %d", pid, MaxProcesses))
	}

	m.ready.SetAtomic(uint32(pid))
}

// AllReady reports whether every process in the given set has marked itself
// ready.
func (m *StartingBlock) AllReady(pids []int) bool {
	for _, pid := range pids {
		if pid < 0 || pid >= MaxProcesses || !m.ready.TestAtomic(uint32(pid)) {
			return false
		}
	}

	return true
}

// StartAt schedules the round start time.
func (m *StartingBlock) StartAt(t time.Time) {
	atomic.StoreInt64(&m.startUnixNano, t.UnixNano())
}

// StartIsScheduled reports whether a start time is set and still in the
// future.
func (m *StartingBlock) StartIsScheduled() bool {
	nanos := atomic.LoadInt64(&m.startUnixNano)
	return nanos != 0 && time.Now().UnixNano() < nanos
}

// StartTime returns the scheduled start time, if any.
func (m *StartingBlock) StartTime() (time.Time, bool) {
	nanos := atomic.LoadInt64(&m.startUnixNano)
	if nanos == 0 {
		return time.Time{}, false
	}

	return time.Unix(0, nanos), true
}
