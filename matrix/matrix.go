// Package matrix generates the benchmark's test matrix.
//
// Both axes — concurrent worker count and workload intensity — are sampled
// on a logarithmic scale so that ranges spanning several orders of magnitude
// are covered with a bounded number of configurations. Closely spaced
// logscale steps truncate to the same integer at the low end of an axis;
// the generator deduplicates those, so the emitted matrix can be smaller
// than samples² and that is expected.
package matrix

import (
	"math"
	"sort"
)

// Case is one (thread count, workload intensity) configuration. Immutable
// once generated; the driver consumes cases in ascending order.
type Case struct {
	Threads  uint64
	Workload uint64
}

// Less orders cases ascending by (Threads, Workload).
func (c Case) Less(o Case) bool {
	if c.Threads != o.Threads {
		return c.Threads < o.Threads
	}
	return c.Workload < o.Workload
}

// Generate produces the deduplicated, ascending test matrix covering
// [1, maxThreads) × [1, maxWorkload) with the requested per-axis logscale
// sample counts.
//
// Degenerate inputs (samples == 0, max <= 1) are precondition violations:
// the configuration layer validates before calling, and Generate panics
// rather than guessing at a meaning for them.
func Generate(maxThreads, threadSamples, maxWorkload, workloadSamples uint64) []Case {
	if maxThreads <= 1 || maxWorkload <= 1 || threadSamples == 0 || workloadSamples == 0 {
		panic("matrix: degenerate test matrix bounds")
	}

	// Per-axis multiplicative step so that `samples` steps from 1.0 land
	// on the axis maximum.
	thrScale := math.Pow(float64(maxThreads), 1/float64(threadSamples))
	wlScale := math.Pow(float64(maxWorkload), 1/float64(workloadSamples))

	set := make(map[Case]struct{})
	for threads := 1.0; uint64(threads) < maxThreads; threads *= thrScale {
		numThreads := uint64(threads)
		for wl := 1.0; uint64(wl) < maxWorkload; wl *= wlScale {
			set[Case{Threads: numThreads, Workload: uint64(wl)}] = struct{}{}
		}
	}

	cases := make([]Case, 0, len(set))
	for c := range set {
		cases = append(cases, c)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Less(cases[j]) })
	return cases
}
