// relax_amd64.go - PAUSE hint for the barrier spin

//go:build amd64 && !noasm && !nocgo

package harness

/*
#ifdef __x86_64__
static inline void cpu_pause() {
    __asm__ __volatile__("pause" ::: "memory");
}
#else
#error "This file requires x86-64 architecture"
#endif
*/
import "C"

// cpuRelax emits PAUSE inside the barrier busy-wait. The barrier stays a
// spin — that is the point of it — but the hint keeps the polling worker
// from starving an SMT sibling and caps speculation on the shared counter
// line while the remaining workers arrive.
//
//go:inline
func cpuRelax() {
	C.cpu_pause()
}
