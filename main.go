package main

// main.go — CLI layer over the measurement core.
//
// The same binary plays three roles. The root command is the top-level
// driver: it builds the test matrix, creates the shared statistics region
// and spawns workers. The hidden `worker` and `trial` subcommands are the
// re-exec targets those spawns run; they open the region created by the
// driver and execute the harness protocol bodies. Keeping all three in one
// executable is what guarantees every process of a run agrees on the shared
// memory layout.

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"forkvm/cpuset"
	"forkvm/debug"
	"forkvm/harness"
	"forkvm/matrix"
	"forkvm/shmstats"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr) // stdout carries only the columnar results
	logger.SetLevel(logrus.InfoLevel)

	root := newRootCmd(logger)
	root.AddCommand(newWorkerCmd(), newTrialCmd())

	if err := root.Execute(); err != nil {
		logger.WithError(err).Fatal("benchmark run failed")
	}
}

// ───────────────────────────── Root Command ────────────────────────────────

func newRootCmd(logger *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "forkvm",
		Short: "Measure per-operation cost of process-creation VM work under concurrent spawn pressure",
		Long: `forkvm sweeps a logscale matrix of (worker count, workload intensity)
configurations. For each one it spawns N pinned worker processes that, after
a shared start barrier, repeatedly spawn short-lived trial processes running
a memory-touching workload; each trial publishes its elapsed cycles into a
file-backed shared statistics region. The reported metric per configuration
is vm_cycles / (elapsed_cycles × worker_count).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(logger, configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "optional config file (any viper-readable format)")
	cmd.Flags().Uint64("max-threads", defaultMaxThreads, "upper bound (exclusive) of the worker-count axis")
	cmd.Flags().Uint64("thread-samples", defaultThreadSamples, "logscale sample points over the worker-count axis")
	cmd.Flags().Uint64("max-workload", defaultMaxWorkload, "upper bound (exclusive) of the workload axis")
	cmd.Flags().Uint64("workload-samples", defaultWorkloadSamples, "logscale sample points over the workload axis")
	cmd.Flags().Uint64("budget-cycles", harness.DefaultBudgetCycles, "per-worker trial budget in cycle ticks")
	cmd.Flags().String("shm", defaultSharedPath, "backing file for the shared statistics region")
	cmd.Flags().String("json-out", "", "also write a JSON run report to this file")
	_ = viper.BindPFlags(cmd.Flags())
	viper.SetEnvPrefix("FORKVM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return cmd
}

// maxAxisSamples caps the per-axis logscale sample count. Past a few
// thousand samples the multiplicative step is so close to 1 that truncation
// stops the sweep from advancing — at the extreme the step rounds to exactly
// 1.0 and matrix generation never terminates — so absurd counts are refused
// here instead.
const maxAxisSamples = 4096

// validateMatrixBounds rejects axis parameters matrix.Generate treats as
// precondition violations, plus sample counts beyond maxAxisSamples. This
// layer is the caller responsible for screening user input before the
// generator runs.
func validateMatrixBounds(maxThreads, threadSamples, maxWorkload, workloadSamples uint64) error {
	if maxThreads <= 1 || maxWorkload <= 1 {
		return fmt.Errorf("axis maxima must exceed 1 (max-threads=%d max-workload=%d)", maxThreads, maxWorkload)
	}
	if threadSamples == 0 || workloadSamples == 0 {
		return fmt.Errorf("sample counts must be positive (thread-samples=%d workload-samples=%d)",
			threadSamples, workloadSamples)
	}
	if threadSamples > maxAxisSamples || workloadSamples > maxAxisSamples {
		return fmt.Errorf("sample counts must not exceed %d (thread-samples=%d workload-samples=%d)",
			maxAxisSamples, threadSamples, workloadSamples)
	}
	return nil
}

func runBenchmark(logger *logrus.Logger, configPath string) error {
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		logger.WithField("file", viper.ConfigFileUsed()).Info("configuration loaded")
	}

	maxThreads := viper.GetUint64("max-threads")
	threadSamples := viper.GetUint64("thread-samples")
	maxWorkload := viper.GetUint64("max-workload")
	workloadSamples := viper.GetUint64("workload-samples")

	if err := validateMatrixBounds(maxThreads, threadSamples, maxWorkload, workloadSamples); err != nil {
		return err
	}

	procs, err := cpuset.Enumerate()
	if err != nil {
		return err
	}
	logger.WithField("count", len(procs)).Info("logical processors detected")

	shmPath := viper.GetString("shm")
	region, err := shmstats.Create(shmPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = region.Close()
		_ = os.Remove(shmPath)
	}()

	spawner, err := harness.NewExecSpawner()
	if err != nil {
		return err
	}

	cases := matrix.Generate(maxThreads, threadSamples, maxWorkload, workloadSamples)
	budget := viper.GetUint64("budget-cycles")
	logger.WithFields(logrus.Fields{
		"configurations": len(cases),
		"budget_cycles":  budget,
	}).Info("starting benchmark sweep")

	started := time.Now()
	results, err := harness.Run(cases, region, procs, spawner, harness.Options{
		Budget: budget,
		Out:    os.Stdout,
		Log:    logger,
	})
	if err != nil {
		return err
	}

	if jsonOut := viper.GetString("json-out"); jsonOut != "" {
		f, err := os.Create(jsonOut)
		if err != nil {
			return fmt.Errorf("create json report: %w", err)
		}
		defer f.Close()
		if err := harness.WriteJSON(f, budget, started, results); err != nil {
			return err
		}
		logger.WithField("file", jsonOut).Info("json report written")
	}

	logger.WithField("configurations", len(results)).Info("benchmark sweep complete")
	return nil
}

// ──────────────────────────── Worker Command ───────────────────────────────

// newWorkerCmd is the re-exec target for one worker process: pin, barrier,
// trial loop, deregister. Hidden — only the driver invokes it.
func newWorkerCmd() *cobra.Command {
	var spec harness.WorkerSpec

	cmd := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			region, err := shmstats.Open(spec.SharedPath)
			if err != nil {
				debug.DropError("worker: open region", err)
				os.Exit(1)
			}
			exe, err := os.Executable()
			if err != nil {
				debug.DropError("worker: resolve executable", err)
				os.Exit(1)
			}
			trials, err := harness.RunWorker(spec, region, harness.ExecTrial(exe, spec))
			if err != nil {
				debug.DropError("worker", err)
				os.Exit(1)
			}
			if trials == 0 {
				// Still a clean exit; the configuration just contributed
				// nothing, which is worth a trace on stderr.
				debug.DropMessage("worker", "budget elapsed before any trial completed")
			}
		},
	}

	cmd.Flags().StringVar(&spec.SharedPath, "shm", "", "statistics region backing file")
	cmd.Flags().IntVar(&spec.CPU, "cpu", 0, "logical processor to pin to")
	cmd.Flags().Uint64Var(&spec.Threads, "threads", 1, "barrier target worker count")
	cmd.Flags().Uint64Var(&spec.Workload, "workload", 1, "trial workload intensity")
	cmd.Flags().Uint64Var(&spec.Budget, "budget", harness.DefaultBudgetCycles, "trial budget in cycle ticks")
	_ = cmd.MarkFlagRequired("shm")

	return cmd
}

// ───────────────────────────── Trial Command ───────────────────────────────

// newTrialCmd is the re-exec target for one trial process: pin, run the
// workload once under the cycle counter, publish, exit.
func newTrialCmd() *cobra.Command {
	var spec harness.WorkerSpec

	cmd := &cobra.Command{
		Use:    "trial",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			region, err := shmstats.Open(spec.SharedPath)
			if err != nil {
				debug.DropError("trial: open region", err)
				os.Exit(1)
			}
			if err := harness.RunTrial(spec, region); err != nil {
				debug.DropError("trial", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&spec.SharedPath, "shm", "", "statistics region backing file")
	cmd.Flags().IntVar(&spec.CPU, "cpu", 0, "logical processor to pin to")
	cmd.Flags().Uint64Var(&spec.Workload, "workload", 1, "workload intensity")
	_ = cmd.MarkFlagRequired("shm")

	return cmd
}
