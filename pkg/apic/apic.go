// Package apic models the local APIC operations the PMU core depends on:
// masking and unmasking the performance-monitoring interrupt vector, and
// issuing the end-of-interrupt that lets the APIC deliver further
// interrupts. The real APIC is out of scope for this module; it is reached
// only through the Controller interface, one instance per logical CPU.
package apic

// Controller is the subset of local APIC functionality the PMU core needs.
// A production kernel backs this with real local-APIC register writes; this
// module's tests and CLI demo back it with Fake.
type Controller interface {
	// MaskPMI masks the performance-monitoring interrupt vector so that no
	// further PMI is delivered on this CPU until UnmaskPMI is called.
	MaskPMI()

	// UnmaskPMI unmasks the performance-monitoring interrupt vector.
	UnmaskPMI()

	// EOI issues end-of-interrupt, telling the APIC this CPU is done
	// servicing the current interrupt.
	EOI()
}

// Fake is a Controller that records calls instead of touching hardware. One
// Fake models one logical CPU's local APIC state.
type Fake struct {
	// Masked reflects the current masked state of the PMI vector.
	Masked bool

	// EOIs counts how many times EOI has been called, for tests that only
	// care that an EOI happened rather than matching exact call sequences.
	EOIs int
}

// NewFake returns a Fake with the PMI vector initially masked, matching the
// state of a freshly booted CPU before the per-CPU programmer runs.
func NewFake() *Fake {
	return &Fake{Masked: true}
}

// MaskPMI implements Controller.
func (f *Fake) MaskPMI() {
	f.Masked = true
}

// UnmaskPMI implements Controller.
func (f *Fake) UnmaskPMI() {
	f.Masked = false
}

// EOI implements Controller.
func (f *Fake) EOI() {
	f.EOIs++
}
