// Package stats computes latency distributions for the benchmark tooling.
package stats

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Percentile returns the p-th percentile (p in (0, 1]) of the given
// latencies. It returns zero for an empty sample.
func Percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}

	return sorted[idx]
}

// Profile summarizes a latency sample.
type Profile struct {
	Avg   time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	P9999 time.Duration
	Max   time.Duration
}

// Compute builds the latency profile of the given sample.
func Compute(latencies []time.Duration) Profile {
	if len(latencies) == 0 {
		return Profile{}
	}

	var sum time.Duration
	max := latencies[0]
	for _, d := range latencies {
		sum += d
		if d > max {
			max = d
		}
	}

	return Profile{
		Avg:   sum / time.Duration(len(latencies)),
		P50:   Percentile(latencies, 0.5),
		P90:   Percentile(latencies, 0.9),
		P99:   Percentile(latencies, 0.99),
		P9999: Percentile(latencies, 0.9999),
		Max:   max,
	}
}

// FormatNanos renders a duration in the most human-readable unit.
func FormatNanos(d time.Duration) string {
	ns := d.Nanoseconds()
	switch {
	case ns >= 1_000_000_000:
		return fmt.Sprintf("%.2fs", float64(ns)/1e9)
	case ns >= 1_000_000:
		return fmt.Sprintf("%.2fms", float64(ns)/1e6)
	case ns >= 1_000:
		return fmt.Sprintf("%.2fµs", float64(ns)/1e3)
	default:
		return fmt.Sprintf("%dns", ns)
	}
}

func (p Profile) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "    avg:\t%s\n", FormatNanos(p.Avg))
	fmt.Fprintf(&b, "    P50:\t%s (median)\n", FormatNanos(p.P50))
	fmt.Fprintf(&b, "    P90:\t%s\n", FormatNanos(p.P90))
	fmt.Fprintf(&b, "    P99:\t%s\n", FormatNanos(p.P99))
	fmt.Fprintf(&b, "    P99.99:\t%s\n", FormatNanos(p.P9999))
	fmt.Fprintf(&b, "    P100:\t%s", FormatNanos(p.Max))

	return b.String()
}
