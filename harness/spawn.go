// spawn.go - process-creation seam between driver, workers and trials
//
// The driver never calls os/exec directly; it spawns through the Spawner
// interface so the whole multi-process protocol can be exercised in-process
// by the tests. ExecSpawner is the production implementation: it re-invokes
// this binary's own executable with the hidden `worker` subcommand, and
// workers in turn re-invoke it with `trial`.

package harness

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Proc is one spawned worker the driver must reap. *exec.Cmd satisfies it.
type Proc interface {
	// Wait blocks until the process exits and returns non-nil for any
	// abnormal termination, including a nonzero exit status.
	Wait() error
	// Kill terminates the process without waiting. Used only on the
	// abort path, where a half-spawned configuration leaves workers
	// spinning on a barrier that can never release.
	Kill() error
}

// execProc adapts *exec.Cmd to Proc (Cmd.Kill lives on Cmd.Process).
type execProc struct {
	cmd *exec.Cmd
}

func (p execProc) Wait() error { return p.cmd.Wait() }
func (p execProc) Kill() error { return p.cmd.Process.Kill() }

// Spawner creates one worker process for the given spec.
type Spawner interface {
	Spawn(spec WorkerSpec) (Proc, error)
}

// ExecSpawner spawns workers by re-executing the harness binary.
type ExecSpawner struct {
	exe string
}

// NewExecSpawner resolves the current executable once; every worker and
// every trial re-runs the same binary, which is also what pins the shared
// statistics layout across all processes of the run.
func NewExecSpawner() (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("harness: resolve executable: %w", err)
	}
	return &ExecSpawner{exe: exe}, nil
}

// Spawn starts one worker process. Stderr passes through so cold-path
// diagnostics from descendants reach the operator; stdout is not wired up —
// the columnar result stream belongs to the top-level process alone.
func (s *ExecSpawner) Spawn(spec WorkerSpec) (Proc, error) {
	cmd := exec.Command(s.exe, "worker",
		"--shm", spec.SharedPath,
		"--cpu", strconv.Itoa(spec.CPU),
		"--threads", strconv.FormatUint(spec.Threads, 10),
		"--workload", strconv.FormatUint(spec.Workload, 10),
		"--budget", strconv.FormatUint(spec.Budget, 10),
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return execProc{cmd: cmd}, nil
}

// ExecTrial returns the production TrialFunc for a worker: each call spawns
// one trial process running the same binary and blocks until it is reaped.
// The argv prefix is built once; per-trial cost on the worker side is one
// Command construction and the spawn itself.
func ExecTrial(exe string, spec WorkerSpec) TrialFunc {
	args := []string{"trial",
		"--shm", spec.SharedPath,
		"--cpu", strconv.Itoa(spec.CPU),
		"--workload", strconv.FormatUint(spec.Workload, 10),
	}
	return func() error {
		cmd := exec.Command(exe, args...)
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("harness: trial process: %w", err)
		}
		return nil
	}
}
