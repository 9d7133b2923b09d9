// cpuset_stub.go - affinity no-ops for platforms without sched_setaffinity(2)
//
// Maintains the same API surface so the driver compiles everywhere. On these
// platforms the scheduler places workers freely; measurements are still
// produced but carry more placement jitter.

//go:build !linux

package cpuset

import "runtime"

// Enumerate reports one Processor per logical CPU known to the runtime.
func Enumerate() ([]Processor, error) {
	n := runtime.NumCPU()
	if n == 0 {
		return nil, ErrNoProcessors
	}
	procs := make([]Processor, n)
	for i := range procs {
		procs[i] = Processor{ID: i}
	}
	return procs, nil
}

// Pin is a no-op where thread affinity is unsupported.
func Pin(p Processor) error {
	return nil
}
