// Package cpuset abstracts logical-processor discovery and pinning.
//
// The benchmark driver needs exactly two capabilities from the platform:
// the list of processors a process may be pinned to, and a primitive that
// binds the calling OS thread to one of them. Nothing else about topology
// leaks through this surface.
//
// Pinning applies to the calling thread only. A process spawned afterwards
// inherits the spawning thread's mask on Linux, but the harness never relies
// on that: worker and trial processes re-pin themselves explicitly.
package cpuset

import "fmt"

// Processor identifies one pinnable logical processor. The ID is an opaque
// affinity target; it carries no topology semantics beyond being valid for
// Pin on the host that enumerated it.
type Processor struct {
	ID int
}

// ErrNoProcessors is returned by Enumerate when the host exposes an empty
// affinity set. The caller must treat it as fatal: a benchmark without a
// single pinnable processor has no measurement integrity.
var ErrNoProcessors = fmt.Errorf("cpuset: no pinnable logical processors discovered")
