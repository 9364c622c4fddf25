package pmu

import (
	"github.com/golang/glog"
	"github.com/intelpmu/ipmcore/pkg/msr"
)

// PMIContext supplies the two pieces of interrupted-CPU state a pc record
// needs that the PMU core cannot read from an MSR: the active address
// space (cr3) and the instruction pointer at the moment of interrupt. A
// real kernel build decodes these from the trap frame handed to the PMI
// vector; this module's fakes and tests supply them directly.
type PMIContext interface {
	AddressSpace() uint64
	InstructionPointer() uint64
}

// StaticPMIContext is a PMIContext with fixed values, for tests that don't
// need a real trap frame.
type StaticPMIContext struct {
	ASpace uint64
	IP     uint64
}

// AddressSpace implements PMIContext.
func (c StaticPMIContext) AddressSpace() uint64 { return c.ASpace }

// InstructionPointer implements PMIContext.
func (c StaticPMIContext) InstructionPointer() uint64 { return c.IP }

// handlePMIWithContext is the interrupt producer. It must never acquire
// s.mu: it runs in interrupt context and synchronizes with the control
// surface only through the active flag, per SPEC_FULL.md §5 and §9.
//
// Returns false if the buffer was found full (counting stays disarmed until
// the session is stopped and started again). Returns true otherwise: after
// recording the samples and resuming counting, or, when the session is not
// active, after only issuing the EOI.
func (s *Session) handlePMIWithContext(cpu int, ctx PMIContext) bool {
	// Step 1: gate. A straggling PMI after stop must do nothing with
	// state that stop may already be unwinding.
	if !s.active.Load() {
		s.apics[cpu].EOI()
		return true
	}

	b := s.buses[cpu]

	// Step 2: disarm immediately so counters that haven't overflowed yet
	// stop counting while this handler runs.
	b.WriteMSR(msr.IA32_PERF_GLOBAL_CTRL, 0)

	data := &s.state.cpuData[cpu]
	cfg := &s.state.config
	caps := s.probe.Caps()
	now := readTimestamp()

	// Step 3: capacity check.
	spaceNeeded := (s.state.numUsedProgrammable + s.state.numUsedFixed) * kMaxRecordSize
	if data.bufferNext+spaceNeeded > len(data.buf) {
		glog.Warningf("pmu: cpu %d: pmi buffer full", cpu)
		setHeaderFlags(data.buf, BufferFlagFull)
		s.apics[cpu].EOI()
		// Leave global_ctrl at 0: the session stays active but silent.
		return false
	}

	status := b.ReadMSR(msr.IA32_PERF_GLOBAL_STATUS)
	aspace := ctx.AddressSpace()
	next := data.bufferNext
	saw := false // saw_timebase

	for i := 0; i < s.state.numUsedProgrammable; i++ {
		if status&(1<<uint(i)) == 0 {
			continue
		}
		id := cfg.ProgrammableIDs[i]
		if id == cfg.TimebaseID {
			saw = true
		}
		// A counter flagged TIMEBASE never records its own overflow: it
		// is only ever sampled by the fan-out below, when the timebase
		// counter (a distinct, ordinarily-overflowing counter) fires.
		if cfg.ProgrammableFlags[i]&FlagTimebase == 0 {
			if cfg.ProgrammableFlags[i]&FlagPC != 0 {
				next = writePCRecord(data.buf, next, id, now, aspace, ctx.InstructionPointer())
			} else {
				next = writeTickRecord(data.buf, next, id, now)
			}
		}
		b.WriteMSR(msr.IA32_PMC_FIRST+msr.Addr(i), cfg.ProgrammableInitialValue[i])
	}

	for i := 0; i < s.state.numUsedFixed; i++ {
		hw := s.state.fixedHWMap[i]
		if status&(1<<(32+uint(hw))) == 0 {
			continue
		}
		id := cfg.FixedIDs[i]
		if id == cfg.TimebaseID {
			saw = true
		}
		if cfg.FixedFlags[i]&FlagTimebase == 0 {
			if cfg.FixedFlags[i]&FlagPC != 0 {
				next = writePCRecord(data.buf, next, id, now, aspace, ctx.InstructionPointer())
			} else {
				next = writeTickRecord(data.buf, next, id, now)
			}
		}
		b.WriteMSR(msr.IA32_FIXED_CTR0+msr.Addr(hw), cfg.FixedInitialValue[i])
	}

	bitsToClear := caps.CounterStatusBits

	// Step 5: timebase fan-out.
	if saw {
		for i := 0; i < s.state.numUsedProgrammable; i++ {
			if cfg.ProgrammableFlags[i]&FlagTimebase == 0 {
				continue
			}
			id := cfg.ProgrammableIDs[i]
			value := b.ReadMSR(msr.IA32_PMC_FIRST + msr.Addr(i))
			next = writeValueRecord(data.buf, next, id, now, value)
			b.WriteMSR(msr.IA32_PMC_FIRST+msr.Addr(i), cfg.ProgrammableInitialValue[i])
		}
		for i := 0; i < s.state.numUsedFixed; i++ {
			if cfg.FixedFlags[i]&FlagTimebase == 0 {
				continue
			}
			hw := s.state.fixedHWMap[i]
			id := cfg.FixedIDs[i]
			value := b.ReadMSR(msr.IA32_FIXED_CTR0 + msr.Addr(hw))
			next = writeValueRecord(data.buf, next, id, now, value)
			b.WriteMSR(msr.IA32_FIXED_CTR0+msr.Addr(hw), cfg.FixedInitialValue[i])
		}
	}

	data.bufferNext = next
	setHeaderCaptureEnd(data.buf, uint64(next))

	if status&msr.GlobalStatusTraceToPaPMI != 0 {
		glog.V(1).Infof("pmu: cpu %d: unexpected GLOBAL_STATUS_TRACE_TOPA_PMI set", cpu)
	}
	if status&msr.GlobalStatusLBRFrz != 0 {
		glog.V(1).Infof("pmu: cpu %d: unexpected GLOBAL_STATUS_LBR_FRZ set", cpu)
	}
	if status&msr.GlobalStatusDSBufferOvf != 0 {
		glog.V(1).Infof("pmu: cpu %d: unexpected GLOBAL_STATUS_DS_BUFFER_OVF set", cpu)
	}

	// Step 6: clear every observed status bit plus the two unconditional
	// ones, in a single write to the aliased OVF_CTRL/STATUS_RESET MSR.
	bitsToClear |= msr.GlobalStatusUncoreOverflow | msr.GlobalStatusCondChanged | status
	b.WriteMSR(msr.IA32_PERF_GLOBAL_STATUS_RESET, bitsToClear)

	if end := b.ReadMSR(msr.IA32_PERF_GLOBAL_STATUS); end != 0 {
		glog.Warningf("pmu: cpu %d: status not clear after reset: 0x%x", cpu, end)
	}

	// Step 7: re-arm.
	s.apics[cpu].EOI()
	s.apics[cpu].UnmaskPMI()
	b.WriteMSR(msr.IA32_PERF_GLOBAL_CTRL, cfg.GlobalCtrl)

	return true
}

// HandlePMIWithContext is the interrupt producer entry point for cpu, given
// the interrupted CPU's address space and instruction pointer. Call this
// instead of HandlePMI when PC records are in use.
func (s *Session) HandlePMIWithContext(cpu int, ctx PMIContext) bool {
	return s.handlePMIWithContext(cpu, ctx)
}
