// Package rounds turns wall-clock time into a monotonically numbered stream
// of fixed-duration rounds.
//
// Waiting for a round boundary sleeps for a configurable share of the
// remaining time and busy-waits the rest: sleeping dominates when rounds are
// milliseconds long, spinning shaves the final microseconds at the boundary.
// Synchronized clocks across participants are assumed.
package rounds

import (
	"fmt"
	"runtime"
	"time"
)

func checkSleepRatio(ratio float64) {
	if ratio < 0 || ratio > 1 {
		panic(fmt.Sprintf("sleep ratio %v must be between 0.0 and 1.0", ratio))
	}
}

func spinUntil(target time.Time) {
	for time.Now().Before(target) {
		runtime.Gosched()
	}
}

// WaitStartTime blocks until the given start time, sleeping for sleepRatio of
// the remaining time and spinning the rest.
func WaitStartTime(start time.Time, sleepRatio float64) {
	checkSleepRatio(sleepRatio)

	remaining := time.Until(start)
	if remaining <= 0 {
		return
	}

	sleep := time.Duration(float64(remaining) * sleepRatio)
	if sleep > 0 {
		time.Sleep(sleep)

		// Sleep may overrun the requested duration.
		if time.Now().After(start) {
			return
		}
	}

	spinUntil(start)
}

// WaitNextRound blocks until the next round boundary after now and returns
// the new round number together with its start time.
//
// Round numbers start at 1: the first boundary after the stream's start time
// opens round 1, so zero-valued write identifiers in freshly initialized
// memory order before any real write.
func WaitNextRound(start time.Time, roundTime time.Duration, sleepRatio float64) (uint64, time.Time) {
	checkSleepRatio(sleepRatio)

	elapsed := time.Since(start)
	roundNum := uint64(elapsed / roundTime)
	nextRound := start.Add(roundTime * time.Duration(roundNum+1))

	// The sleep share is relative to the round start, and part of the round
	// may already have been consumed by the caller's state body.
	wakeAfter := time.Duration(float64(roundTime) * sleepRatio)
	roundElapsed := elapsed - roundTime*time.Duration(roundNum)
	if roundElapsed < wakeAfter {
		time.Sleep(wakeAfter - roundElapsed)
	}

	spinUntil(nextRound)

	return roundNum + 1, nextRound
}
