// Package pmu implements the privileged, ring-zero portion of an Intel
// Performance Monitoring Unit driver: a capability probe, a mutex-guarded
// session lifecycle, input validation, per-CPU MSR programming, and a PMI
// handler that encodes overflow samples into a shared memory ring.
//
// Every external collaborator - the MSR bus, the local APIC, the cross-CPU
// broadcast primitive, and the shared memory object - is injected as an
// interface. Nothing in this package issues a real rdmsr/wrmsr or reaches a
// real APIC; pkg/msr, pkg/apic, pkg/broadcast and pkg/sharedmem supply fakes
// for that.
package pmu

import (
	"github.com/intelpmu/ipmcore/pkg/msr"
	"github.com/intelpmu/ipmcore/pkg/sharedmem"
)

// Compile-time maxima for the fixed and programmable counter arrays. These
// mirror what a real Skylake-generation part reports via CPUID leaf 0AH.
const (
	MaxFixedCounters       = 4
	MaxProgrammableCounters = 8
	MaxCounters             = MaxFixedCounters + MaxProgrammableCounters
)

// Buffer format constants, part of the bit-exact wire contract with the
// user-space consumer (see SPEC_FULL.md §6).
const (
	BufferVersion  uint32 = 1
	ArchX8664      uint32 = 1
	BufferFlagFull uint32 = 1 << 0
)

// Record discriminators.
const (
	RecordTick  uint8 = 1
	RecordValue uint8 = 2
	RecordPC    uint8 = 3
)

// Sizes of the wire structures, computed by hand to match the packed
// layout in SPEC_FULL.md §6 rather than relying on unsafe.Sizeof against a
// Go struct (which would not be packed the same way).
const (
	headerSize      = 32 // 4*u32 + 2*u64
	recordHeaderSize = 16 // u8 + u8 + u16 + u32 + u64
	tickRecordSize   = recordHeaderSize
	valueRecordSize  = recordHeaderSize + 8
	pcRecordSize     = recordHeaderSize + 16

	// kMaxRecordSize is the largest of the three record sizes, used to
	// size the per-PMI capacity check and the minimum buffer size
	// assign_buffer requires.
	kMaxRecordSize = pcRecordSize
)

// EventID is an opaque 32-bit event identifier. Bits 10:0 are the event
// sub-field, meaningless to this package beyond table lookups; bits 15:11
// are the unit sub-field distinguishing fixed from programmable events. The
// upper 16 bits are always zero, so an id fits the 16-bit event field of a
// buffer record unchanged. Zero means "slot unused".
type EventID uint32

const (
	eventIDEventMask = 0x7ff
	eventIDUnitShift = 11
	eventIDUnitMask  = 0x1f
)

// Unit sub-field values.
const (
	UnitFixed        uint8 = 1
	UnitProgrammable uint8 = 2
)

// NoEvent is the sentinel meaning "slot unused" or "no timebase".
const NoEvent EventID = 0

// MakeEventID builds an EventID from a unit and an event number.
func MakeEventID(unit uint8, event uint16) EventID {
	return EventID(uint32(unit)&eventIDUnitMask<<eventIDUnitShift | uint32(event)&eventIDEventMask)
}

// Unit returns id's unit sub-field.
func (id EventID) Unit() uint8 { return uint8(id >> eventIDUnitShift & eventIDUnitMask) }

// Event returns id's event sub-field.
func (id EventID) Event() uint16 { return uint16(id & eventIDEventMask) }

// Fixed-counter event identifiers. The event sub-field equals the
// hardware fixed-counter register number directly; lookupFixedCounter
// below is the (trivial, but still validated) table that enforces this.
var (
	FixedInstrRetired         = MakeEventID(UnitFixed, 0)
	FixedUnhaltedCoreCycles   = MakeEventID(UnitFixed, 1)
	FixedUnhaltedRefCycles    = MakeEventID(UnitFixed, 2)
	FixedTopdownSlots         = MakeEventID(UnitFixed, 3)
)

// lookupFixedCounter returns the hardware fixed-counter register number for
// a fixed-unit event id, or (0, false) if id does not name a known fixed
// counter. Mirrors x86_perfmon_lookup_fixed_counter's event-keyed switch.
func lookupFixedCounter(id EventID) (uint8, bool) {
	if id.Unit() != UnitFixed {
		return 0, false
	}
	switch id.Event() {
	case 0, 1, 2, 3:
		return uint8(id.Event()), true
	default:
		return 0, false
	}
}

// Flags are per-counter configuration bits supplied by the user driver.
type Flags uint32

const (
	// FlagPC requests a pc record (carrying cr3 and the interrupted
	// instruction pointer) instead of a tick record on overflow.
	FlagPC Flags = 1 << 0

	// FlagTimebase marks a counter as sampled only when the session's
	// timebase counter overflows, rather than on its own overflow.
	FlagTimebase Flags = 1 << 1

	// ConfigFlagMask is the OR of every flag bit a user may set.
	ConfigFlagMask = FlagPC | FlagTimebase
)

// HardwareCaps is the immutable-after-boot result of the capability probe.
type HardwareCaps struct {
	Version               uint8
	NumProgrammable       uint8
	NumFixed              uint8
	ProgrammableWidth     uint8
	FixedWidth            uint8
	MaxProgrammableValue  uint64
	MaxFixedValue         uint64
	UnsupportedEventMask  uint32
	Capabilities          uint32
	GlobalCtrlWritable    uint64
	FixedCtrlWritable     uint64
	DebugCtrlWritable     uint64
	CounterStatusBits     uint64
}

// Config is the configuration supplied by the user driver via stage_config.
// Every array is front-packed: non-zero ids occupy a prefix [0, N), the
// validator computes N, and every slot at or past N must be entirely zero.
type Config struct {
	GlobalCtrl uint64
	FixedCtrl  uint64
	DebugCtrl  uint64
	TimebaseID EventID

	FixedIDs          [MaxFixedCounters]EventID
	FixedInitialValue [MaxFixedCounters]uint64
	FixedFlags        [MaxFixedCounters]Flags

	ProgrammableIDs          [MaxProgrammableCounters]EventID
	ProgrammableEvents       [MaxProgrammableCounters]uint64
	ProgrammableInitialValue [MaxProgrammableCounters]uint64
	ProgrammableFlags        [MaxProgrammableCounters]Flags
}

// perCPUData is the per-CPU substructure owned by sessionState. It is
// exclusively written by the control thread between stop and start, or by
// its own CPU's PMI handler while the session is active; see
// SPEC_FULL.md §9 "Per-CPU ownership".
type perCPUData struct {
	mem  sharedmem.Object
	size uintptr

	mapping    sharedmem.Mapping
	buf        []byte // mapping.Bytes(), cached while active
	bufferNext int    // write cursor, offset into buf
}

// sessionState is the mutex-guarded singleton descriptor. All fields
// except perCPUData.buf/bufferNext are only ever touched while holding the
// session mutex (see Session in session.go).
type sessionState struct {
	numCPUs int

	config               Config
	numUsedFixed         int
	numUsedProgrammable  int
	fixedHWMap           [MaxFixedCounters]uint8

	cpuData []perCPUData
}

// bufferHeader is the in-memory view of the 32-byte wire header at offset 0
// of every per-CPU buffer. It is never materialized as a Go struct over the
// mapped bytes (that would not be portably packed); readHeader/writeHeader
// in record.go translate to and from it.
type bufferHeader struct {
	version         uint32
	arch            uint32
	flags           uint32
	reserved        uint32
	ticksPerSecond  uint64
	captureEnd      uint64
}

// bus is a local alias so the rest of the package can say bus instead of
// repeating the msr import.
type bus = msr.Bus
