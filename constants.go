package main

// constants.go — default tunables for the benchmark run.
//
// These are the startup defaults for the four-axis configuration surface.
// Every value can be overridden by flag, environment, or config file; the
// viper wiring lives in main.go.

// ───────────────────────────── Test Matrix ────────────────────────────────

const (
	// defaultMaxThreads bounds the concurrency axis. Thread counts are
	// sampled in [1, defaultMaxThreads) on a log scale.
	defaultMaxThreads = 192

	// defaultThreadSamples is the number of logscale sample points taken
	// over the thread axis. Nearby points collapse after integer
	// truncation at the low end; the matrix deduplicates them.
	defaultThreadSamples = 32

	// defaultMaxWorkload bounds the workload-intensity axis. Intensities
	// are sampled in [1, defaultMaxWorkload) on a log scale.
	defaultMaxWorkload = 1000000

	// defaultWorkloadSamples is the number of logscale sample points taken
	// over the workload axis.
	defaultWorkloadSamples = 100
)

// ───────────────────────────── Backing Store ───────────────────────────────

const (
	// defaultSharedPath is the backing file for the cross-process
	// statistics mapping. Created/truncated at startup, removed on exit.
	defaultSharedPath = "shared_memory"
)
