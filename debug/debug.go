// debug.go — cold-path diagnostics for worker and trial processes.
//
// Workers and trials run inside the measured region and own no structured
// logger; when one dies, or exits without having done useful work, it
// reports through here: a single concatenation and one write straight to
// stderr, which the top-level process passes through to the operator.
// Never called on the hot path.
package debug

import "os"

// DropError writes "prefix: err" (or just the prefix) to stderr.
func DropError(prefix string, err error) {
	if err != nil {
		os.Stderr.WriteString(prefix + ": " + err.Error() + "\n")
		return
	}
	os.Stderr.WriteString(prefix + "\n")
}

// DropMessage writes a tagged cold-path note to stderr.
func DropMessage(prefix, message string) {
	os.Stderr.WriteString(prefix + ": " + message + "\n")
}
