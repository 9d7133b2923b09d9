// Package harness drives the benchmark.
//
// For every configuration of the test matrix the driver resets the shared
// statistics, spawns the configured number of worker processes pinned across
// the enumerated processors, joins them all, and reduces the accumulated
// trial cycles to one normalized metric:
//
//	vm_cycles / (elapsed_cycles × thread_count)
//
// i.e. the average share of each worker's wall time spent inside measured
// workload, under that concurrency level. Workers synchronize their timed
// phase on a busy-wait barrier over the shared worker counter, so the storm
// of process creations the spawn loop causes is absorbed in the barrier wait
// instead of skewing the timed region.
//
// Every failure in this package is terminal for the run. Cycle-accurate
// timing cannot be trusted across a recovered failure, so there is no retry
// anywhere: setup errors, spawn errors, abnormal exits and nonzero worker
// residue after a join all abort.
package harness

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"forkvm/cpuset"
	"forkvm/matrix"
	"forkvm/shmstats"
	"forkvm/tsc"
	"forkvm/workload"
)

// DefaultBudgetCycles is the per-worker trial budget when Options leaves it
// unset: one second on the nanosecond fallback counter, order-of-a-second
// on typical TSC rates.
const DefaultBudgetCycles = 1_000_000_000

// Options carries the driver's collaborator surface.
type Options struct {
	// Budget is the per-worker trial budget in cycle-counter ticks,
	// measured from the moment the worker clears the start barrier.
	// Zero selects DefaultBudgetCycles.
	Budget uint64

	// Out receives one columnar result line per configuration. Defaults
	// to os.Stdout. Nothing else is ever written to it.
	Out io.Writer

	// Log receives setup and progress diagnostics. Defaults to the
	// logrus standard logger. Never written between a configuration's
	// barrier and its join.
	Log *logrus.Logger
}

// Result is one configuration's measurement.
type Result struct {
	Threads        uint64  `json:"threads"`
	Workload       uint64  `json:"workload"`
	AccountingSize uint64  `json:"accounting_size"`
	VMCycles       uint64  `json:"vm_cycles"`
	Elapsed        uint64  `json:"elapsed_cycles"`
	CyclesPerUnit  float64 `json:"cycles_per_unit"`
}

// Run iterates the test cases in order and measures each one.
//
// Strict sequencing between configurations is load-bearing: no worker of
// configuration N+1 may exist before every process of configuration N has
// been reaped and the statistics reset. The zero-workers check runs both
// before the reset (precondition) and after the join (postcondition); a
// violation of either is a synchronization bug, never a transient, and
// aborts with the partial results gathered so far.
func Run(cases []matrix.Case, region *shmstats.Region, procs []cpuset.Processor,
	spawner Spawner, opts Options) ([]Result, error) {

	if len(procs) == 0 {
		return nil, cpuset.ErrNoProcessors
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	budget := opts.Budget
	if budget == 0 {
		budget = DefaultBudgetCycles
	}

	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		if w := region.Workers(); w != 0 {
			return results, fmt.Errorf("harness: %d stale workers entering configuration (threads=%d workload=%d)",
				w, c.Threads, c.Workload)
		}
		region.Reset()

		start := tsc.Count()

		running := make([]Proc, 0, c.Threads)
		var spawnErr error
		for i := uint64(0); i < c.Threads; i++ {
			spec := WorkerSpec{
				SharedPath: region.Path(),
				// Spawn index wraps around the processor list, so
				// thread counts above the processor count share
				// processors instead of being rejected.
				CPU:      procs[i%uint64(len(procs))].ID,
				Threads:  c.Threads,
				Workload: c.Workload,
				Budget:   budget,
			}
			p, err := spawner.Spawn(spec)
			if err != nil {
				spawnErr = fmt.Errorf("harness: spawn worker %d/%d: %w", i+1, c.Threads, err)
				break
			}
			running = append(running, p)
		}
		if spawnErr != nil {
			// Workers already spawned are spinning on a barrier that
			// can never release; kill them before aborting or the
			// join below would block forever.
			for _, p := range running {
				_ = p.Kill()
			}
			for _, p := range running {
				_ = p.Wait()
			}
			return results, spawnErr
		}

		// Blocking join, order-independent. Abnormal worker exit is
		// fatal: a worker that died mid-protocol has already corrupted
		// this configuration's statistics.
		var joinErr error
		for _, p := range running {
			if err := p.Wait(); err != nil && joinErr == nil {
				joinErr = fmt.Errorf("harness: worker exited abnormally: %w", err)
			}
		}
		elapsed := tsc.Count() - start
		if joinErr != nil {
			return results, joinErr
		}

		if w := region.Workers(); w != 0 {
			return results, fmt.Errorf("harness: %d workers still accounted after join (threads=%d workload=%d)",
				w, c.Threads, c.Workload)
		}

		r := Result{
			Threads:        c.Threads,
			Workload:       c.Workload,
			AccountingSize: c.Workload * workload.CostPerUnit,
			VMCycles:       region.Cycles(),
			Elapsed:        elapsed,
			CyclesPerUnit:  float64(region.Cycles()) / (float64(elapsed) * float64(c.Threads)),
		}
		writeLine(out, r)
		results = append(results, r)

		log.WithFields(logrus.Fields{
			"threads":  c.Threads,
			"workload": c.Workload,
			"metric":   r.CyclesPerUnit,
		}).Debug("configuration complete")
	}
	return results, nil
}
