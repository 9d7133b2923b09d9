// relax_stub.go - spin-hint fallback
//
// Architectures without a wired-up spin-wait instruction, and builds with
// assembly or cgo disabled, spin bare. The barrier population is small and
// bounded, so a hintless spin is correct, just slightly less polite to SMT
// siblings.

//go:build !amd64 || noasm || nocgo || !cgo

package harness

//go:inline
func cpuRelax() {
	// No-op; the barrier polls at full speed.
}
