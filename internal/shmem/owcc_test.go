package shmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_OWCCSingleWriterIsLast(t *testing.T) {
	owcc := &OWCC{}

	owcc.Write(5, 3, 1)
	assert.True(t, owcc.IsLast(5, 4, 3, 1))
}

func Test_OWCCUnannouncedIsNotLast(t *testing.T) {
	owcc := &OWCC{}

	assert.False(t, owcc.IsLast(5, 4, 3, 1))
}

func Test_OWCCLaterRoundWins(t *testing.T) {
	owcc := &OWCC{}

	// Process 1 announced in round 3; process 2 announced the same object in
	// round 4. As of round 5, process 1 is no longer the last writer.
	owcc.Write(5, 3, 1)
	owcc.Write(5, 4, 2)

	assert.False(t, owcc.IsLast(5, 5, 3, 1))
	assert.True(t, owcc.IsLast(5, 5, 4, 2))
}

func Test_OWCCSameRoundSmallestPidWins(t *testing.T) {
	owcc := &OWCC{}

	owcc.Write(5, 3, 0)
	owcc.Write(5, 3, 1)

	assert.True(t, owcc.IsLast(5, 4, 3, 0))
	assert.False(t, owcc.IsLast(5, 4, 3, 1))
}

func Test_OWCCAtMostOneLastWriter(t *testing.T) {
	owcc := &OWCC{}

	owcc.Write(7, 2, 0)
	owcc.Write(7, 3, 1)
	owcc.Write(7, 3, 2)

	rounds := map[int]uint64{0: 2, 1: 3, 2: 3}
	last := 0
	for pid, round := range rounds {
		if owcc.IsLast(7, 4, round, pid) {
			last++
		}
	}
	assert.Equal(t, 1, last)
}

func Test_OWCCDifferentObjectsIndependent(t *testing.T) {
	owcc := &OWCC{}

	owcc.Write(1, 3, 0)
	owcc.Write(2, 3, 1)

	assert.True(t, owcc.IsLast(1, 4, 3, 0))
	assert.True(t, owcc.IsLast(2, 4, 3, 1))
}

func Test_OWCCClear(t *testing.T) {
	owcc := &OWCC{}

	owcc.Write(1, 3, 0)
	owcc.Clear()

	assert.False(t, owcc.IsLast(1, 4, 3, 0))
}

func Test_OWCCInvalidPid(t *testing.T) {
	owcc := &OWCC{}

	owcc.Write(1, 3, MaxProcesses)
	assert.False(t, owcc.IsLast(1, 4, 3, MaxProcesses))
}
