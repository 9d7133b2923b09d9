// cpuset_linux.go - Linux affinity via sched_{get,set}affinity(2)

//go:build linux

package cpuset

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Enumerate lists the logical processors the current process may run on.
//
// The affinity mask of the calling process is used rather than the raw
// online-CPU count, so external restriction (taskset, cgroup cpusets)
// narrows the benchmark instead of breaking pinning mid-run.
func Enumerate() ([]Processor, error) {
	var mask unix.CPUSet
	if err := unix.SchedGetaffinity(0, &mask); err != nil {
		return nil, fmt.Errorf("cpuset: sched_getaffinity: %w", err)
	}

	procs := make([]Processor, 0, mask.Count())
	// CPUSet is a fixed array of 64-bit words; len(mask)*64 is the full
	// width of the mask (x/sys/unix exports no set-size constant).
	for id := 0; id < len(mask)*64; id++ {
		if mask.IsSet(id) {
			procs = append(procs, Processor{ID: id})
		}
	}
	if len(procs) == 0 {
		return nil, ErrNoProcessors
	}
	return procs, nil
}

// Pin binds the calling OS thread to p.
//
// The caller must hold runtime.LockOSThread for the binding to mean
// anything; with pid 0 the syscall targets the calling thread, and the Go
// scheduler would otherwise migrate the goroutine off it.
func Pin(p Processor) error {
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(p.ID)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return fmt.Errorf("cpuset: pin to cpu %d: %w", p.ID, err)
	}
	return nil
}
