// tsc_stub.go - monotonic nanosecond fallback counter
//
// Fallback for architectures without an RDTSC equivalent wired up, and for
// builds with assembly or cgo disabled. One tick is one nanosecond, so cycle
// budgets expressed against the default counter keep roughly the same wall
// duration (1e9 ticks ≈ 1 second either way).

//go:build !amd64 || noasm || nocgo || !cgo

package tsc

import "time"

// processStart anchors the counter so values stay small and monotonic for
// the life of the process. Counts are never compared across processes.
var processStart = time.Now()

// Count returns monotonic nanoseconds since process start.
//
//go:inline
func Count() uint64 {
	return uint64(time.Since(processStart))
}
