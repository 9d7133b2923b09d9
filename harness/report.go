// report.go - result emission
//
// The columnar stdout stream is the benchmark's output contract: one line
// per configuration, fixed-width, whitespace-delimited, parseable with awk.
// The JSON document is an optional supplement written elsewhere (a file,
// never stdout) for tooling that wants structure.

package harness

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"
)

// writeLine emits one configuration's fixed-width result line:
// thread count, accounting size, normalized cycles-per-unit metric.
func writeLine(w io.Writer, r Result) {
	fmt.Fprintf(w, "%10d %14d %12.6f\n", r.Threads, r.AccountingSize, r.CyclesPerUnit)
}

// Report is the JSON export document for one complete run.
type Report struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Budget    uint64    `json:"budget_cycles"`
	Results   []Result  `json:"results"`
}

// WriteJSON marshals a run report to w. The run id makes documents from
// repeated invocations distinguishable after the fact.
func WriteJSON(w io.Writer, budget uint64, startedAt time.Time, results []Result) error {
	rep := Report{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Budget:    budget,
		Results:   results,
	}
	buf, err := sonnet.Marshal(&rep)
	if err != nil {
		return fmt.Errorf("harness: marshal report: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("harness: write report: %w", err)
	}
	return nil
}
