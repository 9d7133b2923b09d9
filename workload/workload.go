// Package workload is the synthetic memory-touching work a trial performs.
//
// Cost model: one unit of intensity is TouchesPerUnit reads spread across a
// fixed working set, plus the two loop-maintenance operations of the unit
// loop itself. CostPerUnit is the accounting constant derived from that
// model; the driver reports workload×CostPerUnit as the configuration's
// accounting size. The exact instruction sequence is not part of the
// contract — only that cost scales linearly with intensity and that the
// loop genuinely touches memory instead of folding into registers.
package workload

// TouchesPerUnit is the number of working-set reads per unit of intensity.
const TouchesPerUnit = 16

// CostPerUnit is the accounted operation count per unit of intensity:
// TouchesPerUnit memory reads plus the decrement/branch pair of the loop.
// Each touch is modeled as one cache-line access.
const CostPerUnit = TouchesPerUnit + 2

// workingSetLines is the size of the touched region, in cache lines. Small
// enough to stay resident, large enough that the touches are real loads
// across distinct lines rather than one register-cached byte.
const workingSetLines = TouchesPerUnit

// workingSet is the fixed region every trial walks. Package-level so the
// compiler cannot prove it dead and reads from it cannot be elided.
var workingSet [workingSetLines * 64]byte

// Run performs `intensity` units of synthetic work and returns a
// data-dependent sink value. The caller must consume the sink (the trial
// publishes it via KeepAlive) so the whole loop stays observable.
//
// Marked noinline so the timed region around Run brackets a stable
// instruction sequence instead of whatever the inliner decides per caller.
//
//go:noinline
func Run(intensity uint64) uint64 {
	var sink uint64
	for i := uint64(0); i < intensity; i++ {
		// One read per cache line of the working set.
		for j := 0; j < TouchesPerUnit; j++ {
			sink += uint64(workingSet[j*64])
		}
	}
	return sink
}

// keepAliveSink is a write-only escape hatch for trial results.
var keepAliveSink uint64

// KeepAlive publishes a sink value so dead-code elimination cannot remove
// the workload that produced it.
//
//go:noinline
func KeepAlive(v uint64) {
	keepAliveSink += v
}
