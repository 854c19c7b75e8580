package repcxl

import (
	"time"

	"github.com/swystems/repcxl/internal/logging"
	"github.com/swystems/repcxl/internal/memio"
	"github.com/swystems/repcxl/internal/rounds"
)

// asyncBestEffort is the reference baseline: requests are written to every
// node as soon as they are dequeued, with no round synchrony, no write
// identifiers and no conflict arbitration. Per-node failures are logged and
// skipped.
func asyncBestEffort[T any](w *worker[T], queue <-chan writeRequest[T]) error {
	log := logging.Worker(w.log, "best-effort")

	for {
		select {
		case <-w.stop.Done():
			return nil
		case req, ok := <-queue:
			if !ok {
				log.Warnf("request queue closed")
				return nil
			}
			bestEffortWriteAll(w, &req)
			ackClient(&req, true, log)
		}
	}
}

// syncBestEffort is the round-synchronous variant of the baseline: at most
// one request is written per round.
func syncBestEffort[T any](w *worker[T], queue <-chan writeRequest[T]) error {
	log := logging.Worker(w.log, "best-effort")

	rounds.WaitStartTime(w.startTime, roundSleepRatio)
	roundNum, roundStart := rounds.WaitNextRound(w.startTime, w.roundTime, roundSleepRatio)

	for !w.stop.Stopped() {
		log.Debugf("round #%d, delay %v", roundNum, time.Since(roundStart))

		select {
		case req, ok := <-queue:
			if !ok {
				log.Warnf("request queue closed")
				return nil
			}
			bestEffortWriteAll(w, &req)
			ackClient(&req, true, log)
		default:
		}

		roundNum, roundStart = rounds.WaitNextRound(w.startTime, w.roundTime, roundSleepRatio)
	}

	return nil
}

func bestEffortWriteAll[T any](w *worker[T], req *writeRequest[T]) {
	entry := memio.Entry[T]{Value: req.data}
	for _, node := range w.view.Nodes {
		if err := memio.WriteEntry(node.AddrAt(req.info.Offset), entry); err != nil {
			w.log.Errorf("write failed at node %d, obj id: %d offset %d: %v",
				node.ID, req.info.ID, req.info.Offset, err)
		}
	}
}
