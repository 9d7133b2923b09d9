// Package tsc exposes a monotonic high-resolution cycle counter.
//
// Count is the only timestamp source used by the benchmark: the driver times
// whole configurations with it, workers derive their trial deadline from it,
// and trial processes bracket the synthetic workload with it. Values are only
// ever compared within a single process, so the counter needs no cross-CPU or
// cross-process calibration — it only has to be monotonic and cheap.
//
// On amd64 with cgo the counter is the hardware timestamp counter (RDTSC).
// Elsewhere it degrades to monotonic nanoseconds since process start, which
// keeps the default one-second trial budget meaningful.
package tsc
