// tsc_amd64.go - hardware timestamp counter via RDTSC

//go:build amd64 && !noasm && !nocgo

package tsc

/*
#ifdef __x86_64__
static inline unsigned long long read_cycle_counter() {
    unsigned int lo, hi;
    __asm__ __volatile__("rdtsc" : "=a"(lo), "=d"(hi));
    return ((unsigned long long)hi << 32) | lo;
}
#else
#error "This file requires x86-64 architecture"
#endif
*/
import "C"

// Count returns the current value of the processor timestamp counter.
//
// RDTSC is not serializing; instructions around the read may retire out of
// order. For the millisecond-to-second intervals measured here the skew is
// noise, so no fencing is emitted on the read path.
//
//go:inline
//go:registerparams
func Count() uint64 {
	return uint64(C.read_cycle_counter())
}
