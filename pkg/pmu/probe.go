package pmu

import (
	"github.com/golang/glog"
	"github.com/intelpmu/ipmcore/pkg/cpuid"
	"github.com/intelpmu/ipmcore/pkg/msr"
)

// minimumVersion is the lowest architectural PMU version this module
// supports. KISS: every part this module targets supports version 4.
const minimumVersion = 4

// Probe is the boot-time capability probe's result: either the subsystem
// is Supported and Caps is meaningful, or it is not. Caps is zero when the
// PMU leaf is absent or reports an inconsistent configuration; for a part
// below the minimum version it holds the decoded values.
// Constructed once via NewProbe and treated as immutable thereafter.
type Probe struct {
	supported bool
	caps      HardwareCaps
}

// Supported reports whether the subsystem may be used on this host.
func (p *Probe) Supported() bool { return p.supported }

// Caps returns the probed hardware capabilities. Only meaningful if
// Supported() is true.
func (p *Probe) Caps() HardwareCaps { return p.caps }

// NewProbe reads fs's architectural performance-monitoring leaf and, if
// present, the performance-capabilities MSR, and derives a Probe. It never
// panics: hardware that reports a self-inconsistent configuration (widths
// outside [16, 64], counter counts exceeding compile-time maxima) is
// treated as unsupported rather than crashing the boot path.
func NewProbe(fs cpuid.FeatureSet, b bus) *Probe {
	info := fs.PMUInfo()
	if info.Version == 0 {
		glog.Infof("pmu: no architectural performance-monitoring leaf, disabling")
		return &Probe{}
	}
	if info.NumProgrammable > MaxProgrammableCounters {
		glog.Warningf("pmu: %d programmable counters exceeds compile-time max %d, disabling", info.NumProgrammable, MaxProgrammableCounters)
		return &Probe{}
	}
	if info.ProgrammableWidth < 16 || info.ProgrammableWidth > 64 {
		glog.Warningf("pmu: programmable counter width %d outside [16, 64], disabling", info.ProgrammableWidth)
		return &Probe{}
	}
	if info.NumFixed > MaxFixedCounters {
		glog.Warningf("pmu: %d fixed counters exceeds compile-time max %d, disabling", info.NumFixed, MaxFixedCounters)
		return &Probe{}
	}
	if info.FixedWidth < 16 || info.FixedWidth > 64 {
		glog.Warningf("pmu: fixed counter width %d outside [16, 64], disabling", info.FixedWidth)
		return &Probe{}
	}
	if info.EBXVectorLength > 7 {
		glog.Warningf("pmu: unexpected EBX vector length %d in CPUID leaf 0AH, disabling", info.EBXVectorLength)
		return &Probe{}
	}

	caps := HardwareCaps{
		Version:              info.Version,
		NumProgrammable:      info.NumProgrammable,
		NumFixed:             info.NumFixed,
		ProgrammableWidth:    info.ProgrammableWidth,
		FixedWidth:           info.FixedWidth,
		MaxProgrammableValue: maxCounterValue(info.ProgrammableWidth),
		MaxFixedValue:        maxCounterValue(info.FixedWidth),
		UnsupportedEventMask: info.UnavailableEventsMask & ((1 << info.EBXVectorLength) - 1),
	}

	if fs.SupportsPDCM() {
		caps.Capabilities = uint32(b.ReadMSR(msr.IA32_PERF_CAPABILITIES))
	}

	for i := uint8(0); i < caps.NumProgrammable; i++ {
		caps.CounterStatusBits |= 1 << i
		caps.GlobalCtrlWritable |= 1 << i
	}
	for i := uint8(0); i < caps.NumFixed; i++ {
		caps.CounterStatusBits |= 1 << (32 + i)
		caps.GlobalCtrlWritable |= 1 << (32 + i)
		// Each fixed counter contributes an EN and a PMI bit to
		// IA32_FIXED_CTR_CTRL, 4 bits apart, plus the ANY bit.
		caps.FixedCtrlWritable |= fixedCtrlBitsFor(i)
	}

	supported := info.Version >= minimumVersion
	if !supported {
		glog.Infof("pmu: architectural PMU version %d below minimum %d, disabling", info.Version, minimumVersion)
	}

	return &Probe{supported: supported, caps: caps}
}

// maxCounterValue computes (1<<width)-1, treating width=64 as all-ones to
// avoid undefined-shift behavior.
func maxCounterValue(width uint8) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// fixedCtrlBitsFor returns the EN, ANY, and PMI bits of IA32_FIXED_CTR_CTRL
// belonging to fixed counter i. The field layout is 4 bits per counter:
// bit 0 = EN(OS), bit 1 = EN(USR) folded together here as a single
// writable EN bit pair, bit 2 = ANY, bit 3 = PMI.
func fixedCtrlBitsFor(i uint8) uint64 {
	base := uint(i) * 4
	return (0x3 << base) | (1 << (base + 2)) | (1 << (base + 3))
}
