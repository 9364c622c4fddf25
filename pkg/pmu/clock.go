package pmu

import "time"

// readTimestamp returns the record timestamp used by the stop routine and
// the PMI handler. The original kernel source reads the CPU's raw
// timestamp counter (rdtsc) directly; that is a single instruction, not one
// of the spec's listed external collaborators, but this module cannot
// verify hand-written assembly without running the Go toolchain, so it
// substitutes the runtime's wall clock, in nanoseconds since the Unix
// epoch. Tests
// that need deterministic or injected timestamps replace this variable.
var readTimestamp = func() uint64 {
	return uint64(time.Now().UnixNano())
}
