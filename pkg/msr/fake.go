package msr

import "sync"

// FakeBus is an in-memory register file used by tests in place of real
// rdmsr/wrmsr instructions. One FakeBus models one logical CPU; the
// counter overflow simulation helpers let tests drive a PMI without ever
// seeing real hardware.
type FakeBus struct {
	mu   sync.Mutex
	regs map[Addr]uint64
}

// NewFakeBus returns a FakeBus with every modeled register reading as 0.
func NewFakeBus() *FakeBus {
	return &FakeBus{regs: make(map[Addr]uint64)}
}

// ReadMSR implements Bus.
func (b *FakeBus) ReadMSR(addr Addr) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[addr]
}

// WriteMSR implements Bus.
func (b *FakeBus) WriteMSR(addr Addr, value uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[addr] = value
}

// Peek reads a register without going through the Bus interface, for test
// assertions that want to inspect state the subsystem under test never
// reads back itself (e.g. confirming a counter MSR's raw value).
func (b *FakeBus) Peek(addr Addr) uint64 {
	return b.ReadMSR(addr)
}

// Poke sets a register directly, e.g. to simulate a counter ticking up or
// to pre-set IA32_PERF_GLOBAL_STATUS before delivering a simulated PMI.
func (b *FakeBus) Poke(addr Addr, value uint64) {
	b.WriteMSR(addr, value)
}
