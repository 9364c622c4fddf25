package pmu

import (
	"github.com/golang/glog"
	"github.com/intelpmu/ipmcore/pkg/msr"
)

// mapBuffersLocked creates a kernel mapping of each CPU's shared memory
// object, commits pages up front (sharedmem.Object.Map is specified to do
// so), and initializes the buffer header. If any CPU fails, every buffer
// mapped so far is unmapped and an Io error is returned, per
// SPEC_FULL.md §4.4's "if any CPU fails, unmap all previously mapped
// buffers" rule.
func (s *Session) mapBuffersLocked() *Error {
	for cpu := range s.state.cpuData {
		data := &s.state.cpuData[cpu]
		if data.mem == nil {
			s.unmapBuffersLocked()
			return errorf(Io, "cpu %d has no buffer assigned", cpu)
		}
		mapping, err := data.mem.Map()
		if err != nil {
			glog.Warningf("pmu: error mapping buffer: cpu %d, size %d: %v", cpu, data.size, err)
			s.unmapBuffersLocked()
			return wrapError(Io, "mapping per-CPU buffer failed", err)
		}
		data.mapping = mapping
		data.buf = mapping.Bytes()

		writeHeader(data.buf, bufferHeader{
			version:        BufferVersion,
			arch:           ArchX8664,
			flags:          0,
			ticksPerSecond: s.ticksPerSecond,
			captureEnd:     headerSize,
		})
		data.bufferNext = headerSize
	}
	return nil
}

// unmapBuffersLocked tears down every currently-mapped buffer. Safe to
// call on a session with some or all buffers already unmapped.
func (s *Session) unmapBuffersLocked() {
	for cpu := range s.state.cpuData {
		data := &s.state.cpuData[cpu]
		if data.mapping == nil {
			continue
		}
		if err := data.mapping.Unmap(); err != nil {
			glog.Warningf("pmu: error unmapping buffer: cpu %d: %v", cpu, err)
		}
		data.mapping = nil
		data.buf = nil
		data.bufferNext = 0
	}
}

// programCPULocked runs the per-CPU start routine on cpu: fixed counters,
// fixed control, programmable counters and event selects, debug control,
// PMI unmask, and finally the global enable MSR, in that order (ordering
// matters for hardware correctness; see SPEC_FULL.md §4.4).
func (s *Session) programCPULocked(cpu int) {
	b := s.buses[cpu]
	cfg := &s.state.config

	for i := 0; i < s.state.numUsedFixed; i++ {
		hw := s.state.fixedHWMap[i]
		b.WriteMSR(msr.IA32_FIXED_CTR0+msr.Addr(hw), cfg.FixedInitialValue[i])
	}
	b.WriteMSR(msr.IA32_FIXED_CTR_CTRL, cfg.FixedCtrl)

	for i := 0; i < s.state.numUsedProgrammable; i++ {
		// The enable bit must be clear before the counter value is
		// written; hardware requires this even if global ctrl is off.
		b.WriteMSR(msr.IA32_PERFEVTSEL_FIRST+msr.Addr(i), 0)
		b.WriteMSR(msr.IA32_PMC_FIRST+msr.Addr(i), cfg.ProgrammableInitialValue[i])
		b.WriteMSR(msr.IA32_PERFEVTSEL_FIRST+msr.Addr(i), cfg.ProgrammableEvents[i])
	}

	b.WriteMSR(msr.IA32_DEBUGCTL, cfg.DebugCtrl)

	s.apics[cpu].UnmaskPMI()

	// Enabled last so the programmer itself does not contaminate counts.
	b.WriteMSR(msr.IA32_PERF_GLOBAL_CTRL, cfg.GlobalCtrl)
}

// stopCPULocked runs the per-CPU stop routine on cpu: disable counting and
// mask the PMI vector immediately, then read back final counter values and
// flush one value record per used counter, handling a single wrap-around.
func (s *Session) stopCPULocked(cpu int) {
	b := s.buses[cpu]
	b.WriteMSR(msr.IA32_PERF_GLOBAL_CTRL, 0)
	s.apics[cpu].MaskPMI()

	data := &s.state.cpuData[cpu]
	if data.buf == nil {
		return
	}

	now := readTimestamp()
	cfg := &s.state.config
	caps := s.probe.Caps()
	last := len(data.buf) - kMaxRecordSize
	full := false

	emit := func(id EventID, initial, maxValue uint64, current uint64) bool {
		if data.bufferNext > last {
			full = true
			return false
		}
		value := counterDelta(current, initial, maxValue)
		data.bufferNext = writeValueRecord(data.buf, data.bufferNext, id, now, value)
		return true
	}

	for i := 0; i < s.state.numUsedProgrammable && !full; i++ {
		current := b.ReadMSR(msr.IA32_PMC_FIRST + msr.Addr(i))
		emit(cfg.ProgrammableIDs[i], cfg.ProgrammableInitialValue[i], caps.MaxProgrammableValue, current)
	}
	for i := 0; i < s.state.numUsedFixed && !full; i++ {
		hw := s.state.fixedHWMap[i]
		current := b.ReadMSR(msr.IA32_FIXED_CTR0 + msr.Addr(hw))
		emit(cfg.FixedIDs[i], cfg.FixedInitialValue[i], caps.MaxFixedValue, current)
	}

	if full {
		glog.Warningf("pmu: buffer overflow on cpu %d during stop", cpu)
		setHeaderFlags(data.buf, BufferFlagFull)
	}
	setHeaderCaptureEnd(data.buf, uint64(data.bufferNext))

	clearOverflowIndicators(b, caps)
}

// resetCPULocked runs the hardware-reset routine on cpu: disable counting,
// mask the PMI vector, clear overflow indicators, and zero every MSR this
// subsystem ever wrote, returning the CPU to its pre-init state.
func (s *Session) resetCPULocked(cpu int) {
	b := s.buses[cpu]
	caps := s.probe.Caps()

	b.WriteMSR(msr.IA32_PERF_GLOBAL_CTRL, 0)
	s.apics[cpu].MaskPMI()
	clearOverflowIndicators(b, caps)

	b.WriteMSR(msr.IA32_DEBUGCTL, 0)

	for i := 0; i < int(caps.NumProgrammable); i++ {
		b.WriteMSR(msr.IA32_PERFEVTSEL_FIRST+msr.Addr(i), 0)
		b.WriteMSR(msr.IA32_PMC_FIRST+msr.Addr(i), 0)
	}

	b.WriteMSR(msr.IA32_FIXED_CTR_CTRL, 0)
	for i := 0; i < int(caps.NumFixed); i++ {
		b.WriteMSR(msr.IA32_FIXED_CTR0+msr.Addr(i), 0)
	}
}

// counterDelta computes current-initial with a single wrap-around
// allowance: if current < initial, the counter is assumed to have
// overflowed exactly once.
func counterDelta(current, initial, maxValue uint64) uint64 {
	if current >= initial {
		return current - initial
	}
	return (maxValue - initial + 1) + current
}

// clearOverflowIndicators clears every counter's overflow bit plus the
// uncore-overflow and condition-changed bits in a single write to
// IA32_PERF_GLOBAL_STATUS_RESET (the same address as OVF_CTRL).
func clearOverflowIndicators(b bus, caps HardwareCaps) {
	value := caps.CounterStatusBits | msr.GlobalStatusUncoreOverflow | msr.GlobalStatusCondChanged
	b.WriteMSR(msr.IA32_PERF_GLOBAL_OVF_CTRL, value)
}
