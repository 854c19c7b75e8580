package repcxl

import (
	"errors"
	"fmt"
	"time"

	"github.com/swystems/repcxl/internal/logging"
	"github.com/swystems/repcxl/internal/memio"
	"github.com/swystems/repcxl/internal/rounds"
	"github.com/swystems/repcxl/internal/shmem"
)

// monsterState enumerates the per-round states of the MONSTER writer.
type monsterState int

const (
	stateTry monsterState = iota
	stateRetry
	stateCheck
	stateReplicate
	stateWait
	statePostConflictCheck
)

func (s monsterState) String() string {
	switch s {
	case stateTry:
		return "Try"
	case stateRetry:
		return "Retry"
	case stateCheck:
		return "Check"
	case stateReplicate:
		return "Replicate"
	case stateWait:
		return "Wait"
	case statePostConflictCheck:
		return "PostConflictCheck"
	default:
		return fmt.Sprintf("monsterState(%d)", int(s))
	}
}

// monsterWrite drives the MONSTER write state machine: one state transition
// body per round, scheduled against the group's common start time.
//
// The conflict checker published on the master node decides who owns a
// round; the replicate step is the physical fan-out to all replicas; the
// Wait and PostConflictCheck states let a conflicting writer finish and then
// verify across all replicas that its write actually landed everywhere. If
// any replica still holds an older identifier, this process re-announces its
// own write instead of silently losing it.
func monsterWrite[T any](w *worker[T], queue <-chan writeRequest[T]) error {
	log := logging.Worker(w.log, "monster")

	state := stateTry
	var pending *writeRequest[T]
	var wid shmem.Wid
	var oid uint64

	// A request still pending when the worker exits (fatal memory error,
	// structural error, stop) is never resolved; closing its ack channel
	// surfaces the loss to the blocked client.
	defer func() {
		if pending != nil {
			close(pending.ack)
		}
	}()

	// The master node holds the authoritative conflict checker.
	owcc := &w.view.MasterNode().State().Conflicts

	rounds.WaitStartTime(w.startTime, roundSleepRatio)
	roundNum, roundStart := rounds.WaitNextRound(w.startTime, w.roundTime, roundSleepRatio)

	for !w.stop.Stopped() {
		log.Debugf("[%s phase] round #%d, delay %v, obj id: %d",
			state, roundNum, time.Since(roundStart), oid)

		switch state {
		case stateTry:
			select {
			case req, ok := <-queue:
				if !ok {
					log.Warnf("request queue closed")
					return nil
				}
				wid = shmem.Wid{Round: roundNum, Pid: uint64(w.view.SelfID)}
				oid = req.info.ID
				owcc.Write(oid, roundNum, w.view.SelfID)
				pending = &req
				state = stateCheck
			default:
				// No request, stay in Try.
			}

		case stateRetry:
			// Re-announce the existing pending request with a fresh wid; a
			// new request is not dequeued.
			if pending == nil {
				return errors.New("no pending request in Retry state")
			}
			wid = shmem.Wid{Round: roundNum, Pid: uint64(w.view.SelfID)}
			oid = pending.info.ID
			owcc.Write(oid, roundNum, w.view.SelfID)
			state = stateCheck

		case stateCheck:
			if owcc.IsLast(oid, roundNum, wid.Round, int(wid.Pid)) {
				log.Debugf("[%s phase] process %d is the last writer for object %d in round %d",
					state, w.view.SelfID, oid, roundNum)

				if time.Since(roundStart) < w.roundTime {
					state = stateReplicate
				}
				// Overtime (sync failure): the round already expired, so
				// stay in Check and try again next round.
			} else {
				state = stateWait
			}

		case stateReplicate:
			if pending == nil {
				return errors.New("no pending request in Replicate state")
			}

			entry := memio.Entry[T]{Wid: wid, Value: pending.data}
			if err := memio.WriteAll(pending.info.Offset, entry, w.view.Nodes); err != nil {
				log.Errorf("write replication failed: %v", err)
				return err
			}

			ackClient(pending, true, log)
			pending = nil
			state = stateTry

		case stateWait:
			// Yield one round so the conflicting writer's replicate can
			// commit.
			w.conflicts.Add(1)
			state = statePostConflictCheck

		case statePostConflictCheck:
			if pending == nil {
				return errors.New("no pending request in PostConflictCheck state")
			}

			entries, err := memio.ReadAll[T](pending.info.Offset, w.view.Nodes)
			if err != nil {
				log.Errorf("post-conflict read failed: %v", err)
				return err
			}

			anySmaller := false
			for _, e := range entries {
				if e.Wid.Less(wid) {
					anySmaller = true
					break
				}
			}

			if anySmaller {
				// The conflicting write did not land on every replica;
				// re-announce ours in the next round.
				log.Debugf("[%s phase] found wid smaller than %v for object %d, retrying write",
					state, wid, pending.info.ID)
				state = stateRetry
			} else {
				// The conflicting write fully replicated and supersedes the
				// client's intent: a value is durably present everywhere.
				log.Debugf("[%s phase] state up to date", state)
				ackClient(pending, true, log)
				pending = nil
				state = stateTry
			}
		}

		roundNum, roundStart = rounds.WaitNextRound(w.startTime, w.roundTime, roundSleepRatio)
	}

	return nil
}

// monsterRead serves read requests outside round synchrony: each request
// fans out to all nodes and the result is classified by write-identifier
// agreement. Per-request failures are reported on the request's reply
// channel; the worker keeps running.
func monsterRead[T any](w *worker[T], queue <-chan readRequest[T]) error {
	log := logging.Worker(w.log, "monster-read")

	for {
		select {
		case <-w.stop.Done():
			return nil
		case req, ok := <-queue:
			if !ok {
				log.Warnf("read queue closed")
				return nil
			}

			entries, err := memio.ReadAll[T](req.info.Offset, w.view.Nodes)
			if err != nil {
				log.Errorf("read fan-out failed for object %d: %v", req.info.ID, err)
				req.reply <- readReply[T]{err: err}
				continue
			}

			latest := entries[0]
			consistent := true
			for _, e := range entries[1:] {
				if e.Wid != entries[0].Wid {
					consistent = false
				}
				if latest.Wid.Less(e.Wid) {
					latest = e
				}
			}

			req.reply <- readReply[T]{
				result: ReadResult[T]{Value: latest.Value, Safe: consistent},
			}
		}
	}
}
