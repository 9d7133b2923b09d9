package harness

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"sync/atomic"
	"testing"

	"forkvm/cpuset"
	"forkvm/matrix"
	"forkvm/shmstats"
)

// testBudget keeps worker trial loops in the low-millisecond range: ~1ms of
// TSC ticks on common clock rates, 3ms on the nanosecond fallback counter.
const testBudget = 3_000_000

// ============================================================================
// TEST FIXTURES
// ============================================================================

func testRegion(t *testing.T) *shmstats.Region {
	t.Helper()
	r, err := shmstats.Create(filepath.Join(t.TempDir(), "shared_memory"))
	if err != nil {
		t.Fatalf("Create region: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func testProcs(t *testing.T) []cpuset.Processor {
	t.Helper()
	procs, err := cpuset.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	return procs
}

// fakeProc hands a goroutine-backed worker to the driver's join loop.
type fakeProc struct {
	done chan struct{}
	err  error
}

func (p *fakeProc) Wait() error { <-p.done; return p.err }
func (p *fakeProc) Kill() error { return nil }

// workerSpawner runs the real worker state machine in-process, one goroutine
// per spawned worker, with an injectable trial implementation.
//
// With latched set, workers synchronize on a latched barrier instead of the
// production count spin. The spin's release guarantee — the count holds at
// the target for a full budget — assumes OS-scheduled processes; goroutines
// on a single scheduler thread can sleep through that whole window, so the
// in-process rendition latches the release instead: the first worker to
// observe the full count trips a flag the rest release on, and the waiters
// yield rather than burn the thread. Tests that run one worker per
// configuration keep the production barrier, which is deterministic there.
type workerSpawner struct {
	region  *shmstats.Region
	trial   func(spec WorkerSpec) TrialFunc
	latched bool

	remaining uint64  // spawns left in the current configuration
	released  *uint32 // current configuration's latch
}

func (s *workerSpawner) Spawn(spec WorkerSpec) (Proc, error) {
	barrier := barrierFunc(spinBarrier)
	if s.latched {
		// Run is single-threaded across Spawn calls, so plain fields
		// suffice to detect configuration boundaries.
		if s.remaining == 0 {
			s.remaining = spec.Threads
			s.released = new(uint32)
		}
		s.remaining--
		released := s.released
		barrier = func(region *shmstats.Region, target uint64) {
			for atomic.LoadUint32(released) == 0 {
				if region.Workers() == target {
					atomic.StoreUint32(released, 1)
					break
				}
				runtime.Gosched()
			}
		}
	}

	p := &fakeProc{done: make(chan struct{})}
	go func() {
		_, p.err = runWorker(spec, s.region, s.trial(spec), barrier)
		close(p.done)
	}()
	return p, nil
}

// countingTrial reports a fixed elapsed value per trial and counts trials,
// standing in for a trial sub-process with a deterministic cost.
func countingTrial(region *shmstats.Region, elapsed uint64, count *uint64) func(WorkerSpec) TrialFunc {
	return func(WorkerSpec) TrialFunc {
		return func() error {
			region.AddCycles(elapsed)
			atomic.AddUint64(count, 1)
			return nil
		}
	}
}

// ============================================================================
// DRIVER - HAPPY PATHS
// ============================================================================

// With thread_count=1 the barrier must release as soon as the lone worker
// registers itself; the run completing at all is the assertion.
func TestRun_SingleWorker(t *testing.T) {
	region := testRegion(t)

	const elapsedPerTrial = uint64(1000)
	var trials uint64

	var out bytes.Buffer
	results, err := Run(
		[]matrix.Case{{Threads: 1, Workload: 5}},
		region, testProcs(t),
		&workerSpawner{region: region, trial: countingTrial(region, elapsedPerTrial, &trials)},
		Options{Budget: testBudget, Out: &out},
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	k := atomic.LoadUint64(&trials)
	if k == 0 {
		t.Fatal("worker completed zero trials inside its budget")
	}

	// Accumulator contract: K trials at fixed cost E sum to exactly E*K.
	if want := elapsedPerTrial * k; r.VMCycles != want {
		t.Errorf("vm_cycles = %d, want %d (E=%d K=%d)", r.VMCycles, want, elapsedPerTrial, k)
	}
	if got := region.Workers(); got != 0 {
		t.Errorf("workers = %d after join, want 0", got)
	}
	if want := r.Workload * 18; r.AccountingSize != want {
		t.Errorf("accounting size = %d, want %d", r.AccountingSize, want)
	}
	if want := float64(r.VMCycles) / (float64(r.Elapsed) * float64(r.Threads)); r.CyclesPerUnit != want {
		t.Errorf("metric = %v, want %v", r.CyclesPerUnit, want)
	}

	// Output contract: exactly one fixed-width columnar line.
	line := regexp.MustCompile(`^ *\d+ +\d+ +\d+\.\d{6}\n$`)
	if !line.MatchString(out.String()) {
		t.Errorf("output line %q does not match the columnar contract", out.String())
	}
}

func TestRun_MultiWorkerBarrierAndJoin(t *testing.T) {
	region := testRegion(t)

	var trials uint64
	results, err := Run(
		[]matrix.Case{{Threads: 4, Workload: 10}},
		region, testProcs(t),
		&workerSpawner{region: region, trial: countingTrial(region, 1, &trials), latched: true},
		Options{Budget: testBudget, Out: &bytes.Buffer{}},
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := region.Workers(); got != 0 {
		t.Fatalf("workers = %d after join, want 0", got)
	}
	if results[0].VMCycles != atomic.LoadUint64(&trials) {
		t.Errorf("vm_cycles = %d, want %d (one cycle per trial)",
			results[0].VMCycles, atomic.LoadUint64(&trials))
	}
}

// The in-process protocol must complete even when the runtime has a single
// scheduler thread and every worker goroutine competes for it.
func TestRun_ManyWorkersSingleSchedulerThread(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	region := testRegion(t)
	var trials uint64
	_, err := Run(
		[]matrix.Case{{Threads: 8, Workload: 1}},
		region, testProcs(t),
		&workerSpawner{region: region, trial: countingTrial(region, 1, &trials), latched: true},
		Options{Budget: testBudget, Out: &bytes.Buffer{}},
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := region.Workers(); got != 0 {
		t.Fatalf("workers = %d after join, want 0", got)
	}
}

// Statistics for a configuration must be independent of the previous one.
func TestRun_ResetBetweenConfigurations(t *testing.T) {
	region := testRegion(t)

	perTrial := map[uint64]uint64{3: 1_000_000, 7: 11}
	counts := map[uint64]*uint64{3: new(uint64), 7: new(uint64)}

	spawner := &workerSpawner{region: region, latched: true, trial: func(spec WorkerSpec) TrialFunc {
		return func() error {
			region.AddCycles(perTrial[spec.Workload])
			atomic.AddUint64(counts[spec.Workload], 1)
			return nil
		}
	}}

	results, err := Run(
		[]matrix.Case{{Threads: 1, Workload: 3}, {Threads: 2, Workload: 7}},
		region, testProcs(t), spawner,
		Options{Budget: testBudget, Out: &bytes.Buffer{}},
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	// Configuration 2 reflects only its own trials, at its own cost.
	if want := perTrial[7] * atomic.LoadUint64(counts[7]); results[1].VMCycles != want {
		t.Errorf("config 2 vm_cycles = %d, want %d; config 1 leaked through reset",
			results[1].VMCycles, want)
	}
}

// ============================================================================
// DRIVER - INVARIANT VIOLATIONS ARE FATAL
// ============================================================================

func TestRun_StaleWorkerPreconditionFatal(t *testing.T) {
	region := testRegion(t)
	region.WorkerEnter() // residue from a "previous" configuration

	results, err := Run(
		[]matrix.Case{{Threads: 1, Workload: 1}},
		region, testProcs(t),
		&workerSpawner{region: region, trial: countingTrial(region, 1, new(uint64))},
		Options{Budget: testBudget, Out: &bytes.Buffer{}},
	)
	if err == nil {
		t.Fatal("Run accepted a nonzero worker count at configuration entry")
	}
	if len(results) != 0 {
		t.Errorf("got %d results from an aborted run, want 0", len(results))
	}
}

// leakingSpawner registers a worker that never deregisters, simulating a
// worker that died without running its exit path.
type leakingSpawner struct {
	region *shmstats.Region
}

func (s *leakingSpawner) Spawn(WorkerSpec) (Proc, error) {
	s.region.WorkerEnter()
	p := &fakeProc{done: make(chan struct{})}
	close(p.done)
	return p, nil
}

func TestRun_WorkerResidueAfterJoinFatal(t *testing.T) {
	region := testRegion(t)
	_, err := Run(
		[]matrix.Case{{Threads: 1, Workload: 1}},
		region, testProcs(t),
		&leakingSpawner{region: region},
		Options{Budget: testBudget, Out: &bytes.Buffer{}},
	)
	if err == nil {
		t.Fatal("Run accepted nonzero worker residue after the join")
	}
}

// failingSpawner rejects every spawn, as the OS would under pid exhaustion.
type failingSpawner struct{}

func (failingSpawner) Spawn(WorkerSpec) (Proc, error) {
	return nil, fmt.Errorf("no more processes")
}

func TestRun_SpawnFailureFatal(t *testing.T) {
	region := testRegion(t)
	results, err := Run(
		[]matrix.Case{{Threads: 2, Workload: 1}},
		region, testProcs(t), failingSpawner{},
		Options{Budget: testBudget, Out: &bytes.Buffer{}},
	)
	if err == nil {
		t.Fatal("Run swallowed a process-creation failure")
	}
	if len(results) != 0 {
		t.Errorf("got %d results from an aborted run, want 0", len(results))
	}
}

// crashingProc simulates a worker reaped with a nonzero exit status.
type crashingProc struct{}

func (crashingProc) Wait() error { return fmt.Errorf("exit status 1") }
func (crashingProc) Kill() error { return nil }

type crashingSpawner struct{}

func (crashingSpawner) Spawn(WorkerSpec) (Proc, error) { return crashingProc{}, nil }

func TestRun_AbnormalWorkerExitFatal(t *testing.T) {
	region := testRegion(t)
	_, err := Run(
		[]matrix.Case{{Threads: 1, Workload: 1}},
		region, testProcs(t), crashingSpawner{},
		Options{Budget: testBudget, Out: &bytes.Buffer{}},
	)
	if err == nil {
		t.Fatal("Run ignored an abnormal worker exit")
	}
}

func TestRun_NoProcessorsFatal(t *testing.T) {
	region := testRegion(t)
	_, err := Run(
		[]matrix.Case{{Threads: 1, Workload: 1}},
		region, nil,
		&workerSpawner{region: region, trial: countingTrial(region, 1, new(uint64))},
		Options{Budget: testBudget, Out: &bytes.Buffer{}},
	)
	if err == nil {
		t.Fatal("Run accepted an empty processor list")
	}
}

// ============================================================================
// WORKER BODY
// ============================================================================

// A zero budget expires before the first trial; the worker must still pass
// the barrier, report zero trials and deregister cleanly.
func TestRunWorker_ZeroBudgetCompletesNoTrials(t *testing.T) {
	region := testRegion(t)
	procs := testProcs(t)

	var trials uint64
	n, err := RunWorker(
		WorkerSpec{CPU: procs[0].ID, Threads: 1, Budget: 0},
		region,
		func() error { atomic.AddUint64(&trials, 1); return nil },
	)
	if err != nil {
		t.Fatalf("RunWorker failed: %v", err)
	}
	if n != 0 || atomic.LoadUint64(&trials) != 0 {
		t.Errorf("zero-budget worker ran %d trials (reported %d), want 0", trials, n)
	}
	if got := region.Workers(); got != 0 {
		t.Errorf("workers = %d after worker return, want 0", got)
	}
}

// ============================================================================
// TRIAL BODY
// ============================================================================

func TestRunTrial_PublishesElapsedCycles(t *testing.T) {
	region := testRegion(t)
	procs := testProcs(t)

	spec := WorkerSpec{CPU: procs[0].ID, Workload: 1000}
	if err := RunTrial(spec, region); err != nil {
		t.Fatalf("RunTrial failed: %v", err)
	}
	first := region.Cycles()
	if first == 0 {
		t.Fatal("trial published zero elapsed cycles")
	}

	if err := RunTrial(spec, region); err != nil {
		t.Fatalf("second RunTrial failed: %v", err)
	}
	if region.Cycles() <= first {
		t.Fatalf("second trial did not accumulate: %d -> %d", first, region.Cycles())
	}
}
