// Package shmstats is the cross-process statistics region of the benchmark.
//
// A single fixed-layout block holds the two counters every process in the
// run mutates: the accumulated workload cycles and the live worker count.
// The block is backed by a regular file mapped MAP_SHARED, so the top-level
// process, every worker it spawns, and every trial a worker spawns all
// observe the same physical memory — the mapping, not a copy.
//
// Both counters are updated with lock-free atomics. The cycle accumulator
// only needs its final sum to be correct; the worker counter doubles as the
// start-barrier condition and is read in a spin loop, so the two live on
// separate cache lines to keep barrier polling from bouncing the line the
// trial processes are writing.
package shmstats

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// cacheLine is the coherency granule the counter layout pads to.
const cacheLine = 64

// RegionSize is the exact footprint of the statistics block, and the size
// the backing file is truncated to.
const RegionSize = 2 * cacheLine

// stats is the wire layout of the shared block. Field offsets are part of
// the cross-process contract: every process maps the same file and casts to
// this struct, so the layout must never change between the processes of one
// run (guaranteed here by all of them running the same binary).
type stats struct {
	vmCycles uint64              // accumulated workload cycles, all trials
	_        [cacheLine - 8]byte // keep the barrier counter off this line
	workers  uint64              // workers currently inside the timed phase
	_        [cacheLine - 8]byte // pad to RegionSize
}

// Region is an explicit handle to the mapped statistics block. It is created
// once by the top-level process and re-opened by descendants; there is no
// package-level singleton.
type Region struct {
	mem  []byte // the live mapping; retained for Close
	s    *stats // typed view of mem[0:RegionSize]
	path string // backing file; travels to descendants on argv
}

// Path returns the backing file the region is mapped from. Worker and trial
// processes re-open the same block through it.
func (r *Region) Path() string {
	return r.path
}

// view casts the page-aligned mapping to the stats layout.
func view(mem []byte) (*stats, error) {
	if len(mem) < RegionSize {
		return nil, fmt.Errorf("shmstats: mapping too small: %d < %d", len(mem), RegionSize)
	}
	return (*stats)(unsafe.Pointer(&mem[0])), nil
}

// Reset overwrites both counters with zero.
//
// Only legal between configurations, after every process of the previous
// configuration has been reaped: a concurrent writer would race the store
// and leak cycles across configurations.
func (r *Region) Reset() {
	atomic.StoreUint64(&r.s.vmCycles, 0)
	atomic.StoreUint64(&r.s.workers, 0)
}

// AddCycles folds one trial's elapsed cycles into the accumulator. Ordering
// between trials is irrelevant; only the final sum is read, after the join.
//
//go:inline
func (r *Region) AddCycles(delta uint64) {
	atomic.AddUint64(&r.s.vmCycles, delta)
}

// Cycles returns the accumulated workload cycles. Meaningful only after all
// workers of the current configuration have exited.
func (r *Region) Cycles() uint64 {
	return atomic.LoadUint64(&r.s.vmCycles)
}

// WorkerEnter marks the calling worker as running and returns the new live
// count. Workers spin on Workers() against the target count, so the
// increment is the arrival at the start barrier.
func (r *Region) WorkerEnter() uint64 {
	return atomic.AddUint64(&r.s.workers, 1)
}

// WorkerExit marks the calling worker as done.
func (r *Region) WorkerExit() uint64 {
	return atomic.AddUint64(&r.s.workers, ^uint64(0))
}

// Workers returns the live worker count. Polled by the barrier spin and
// checked by the driver's zero-residue invariant after every join.
//
//go:inline
func (r *Region) Workers() uint64 {
	return atomic.LoadUint64(&r.s.workers)
}

type ( // ensure the layout fills RegionSize exactly.
	_ [RegionSize - unsafe.Sizeof(stats{})]byte
	_ [unsafe.Sizeof(stats{}) - RegionSize]byte
)
