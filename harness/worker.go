// worker.go - worker and trial process bodies
//
// RunWorker and RunTrial execute inside the re-exec'd worker/trial processes
// respectively; only the CLI layer's hidden subcommands call them in
// production. They are plain functions over an explicit Region handle so the
// whole protocol can also run in-process under test.

package harness

import (
	"fmt"
	"runtime"

	"forkvm/cpuset"
	"forkvm/shmstats"
	"forkvm/tsc"
	"forkvm/workload"
)

// WorkerSpec is everything one worker needs to run its timed phase. It is
// assembled by the driver and travels to the worker process on argv.
type WorkerSpec struct {
	SharedPath string // backing file of the statistics region
	CPU        int    // logical processor the worker pins to
	Threads    uint64 // barrier target: total workers in this configuration
	Workload   uint64 // trial intensity, forwarded to every trial
	Budget     uint64 // trial-loop budget in cycle ticks, from barrier exit
}

// TrialFunc performs exactly one trial: spawn a sub-process, let it run the
// workload and publish its elapsed cycles, and reap it. Workers run trials
// strictly sequentially; concurrency comes from workers, never from trials.
type TrialFunc func() error

// barrierFunc blocks until all workers of the configuration have entered
// the timed phase. The caller has already registered itself via
// WorkerEnter.
type barrierFunc func(region *shmstats.Region, target uint64)

// spinBarrier releases when the live worker count reaches the target.
//
// A deliberate busy-wait: all workers of a configuration must observe the
// full count before any begins its timed phase, and a blocking primitive
// would reintroduce exactly the scheduler-induced start skew the barrier
// exists to eliminate. The count holds at the target until the first
// worker's whole budget expires, so every worker process gets a release
// window at least one budget long to observe it in. That guarantee assumes
// OS-scheduled processes; the in-process test fixture substitutes a latched
// barrier instead of relying on it.
func spinBarrier(region *shmstats.Region, target uint64) {
	for region.Workers() != target {
		cpuRelax()
	}
}

// RunWorker is the worker state machine:
//
//	pinned → barrier-wait → trial loop → decrement → return
//
// It returns the number of trials completed inside the budget. Zero trials
// means the configuration contributed nothing to the statistics; the CLI
// layer surfaces that as a diagnostic.
func RunWorker(spec WorkerSpec, region *shmstats.Region, trial TrialFunc) (uint64, error) {
	return runWorker(spec, region, trial, spinBarrier)
}

func runWorker(spec WorkerSpec, region *shmstats.Region, trial TrialFunc, barrier barrierFunc) (uint64, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := cpuset.Pin(cpuset.Processor{ID: spec.CPU}); err != nil {
		return 0, fmt.Errorf("harness: worker pin: %w", err)
	}

	region.WorkerEnter()
	barrier(region, spec.Threads)

	var trials uint64
	deadline := tsc.Count() + spec.Budget
	for tsc.Count() < deadline {
		if err := trial(); err != nil {
			region.WorkerExit()
			return trials, err
		}
		trials++
	}

	region.WorkerExit()
	return trials, nil
}

// RunTrial is the trial process body: pin, time one workload execution, and
// publish the elapsed cycles with a single atomic add.
//
// The pin is re-applied here rather than inherited: Go's spawn path gives no
// guarantee about which OS thread forks, so the parent worker's thread mask
// cannot be relied on to reach the trial.
func RunTrial(spec WorkerSpec, region *shmstats.Region) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := cpuset.Pin(cpuset.Processor{ID: spec.CPU}); err != nil {
		return fmt.Errorf("harness: trial pin: %w", err)
	}

	start := tsc.Count()
	sink := workload.Run(spec.Workload)
	elapsed := tsc.Count() - start

	region.AddCycles(elapsed)
	workload.KeepAlive(sink)
	return nil
}
