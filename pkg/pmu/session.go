package pmu

import (
	"sync"

	"github.com/golang/glog"
	"github.com/intelpmu/ipmcore/pkg/apic"
	"github.com/intelpmu/ipmcore/pkg/atomicbitops"
	"github.com/intelpmu/ipmcore/pkg/broadcast"
	"github.com/intelpmu/ipmcore/pkg/msr"
	"github.com/intelpmu/ipmcore/pkg/sharedmem"
)

// Session is the public control surface: a single process-wide,
// mutex-protected descriptor. The zero value is not usable; construct with
// NewSession.
//
// The active flag is the one piece of state the PMI handler reads without
// holding mu, per SPEC_FULL.md §5 and §9.
type Session struct {
	mu sync.Mutex

	probe          *Probe
	buses          []msr.Bus
	apics          []apic.Controller
	broadcaster    broadcast.Broadcaster
	ticksPerSecond uint64

	active atomicbitops.Bool

	created bool
	state   sessionState
}

// NewSession constructs a Session. buses and apics must have the same
// length; that length is the subsystem's num_cpus (arch_max_num_cpus() in
// the original kernel source).
func NewSession(probe *Probe, buses []msr.Bus, apics []apic.Controller, broadcaster broadcast.Broadcaster, ticksPerSecond uint64) *Session {
	if len(buses) != len(apics) {
		panic("pmu: buses and apics must have the same length")
	}
	return &Session{
		probe:          probe,
		buses:          buses,
		apics:          apics,
		broadcaster:    broadcaster,
		ticksPerSecond: ticksPerSecond,
	}
}

// GetProperties returns the probed hardware capabilities. Requires the
// subsystem to be supported; never mutates.
func (s *Session) GetProperties() (HardwareCaps, *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probe.Supported() {
		return HardwareCaps{}, newError(NotSupported, "PMU not supported on this host")
	}
	return s.probe.Caps(), nil
}

// Init allocates a SessionState. Requires the subsystem supported, no
// session already created, and the subsystem not active.
func (s *Session) Init() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probe.Supported() {
		return newError(NotSupported, "PMU not supported on this host")
	}
	if s.active.Load() {
		return newError(BadState, "init called while active")
	}
	if s.created {
		return newError(BadState, "session already created")
	}
	s.state = sessionState{
		numCPUs: len(s.buses),
		cpuData: make([]perCPUData, len(s.buses)),
	}
	s.created = true
	return nil
}

// AssignBuffer stores a shared memory object reference on cpu's slot.
// Requires a session created, not active, cpu in range, and the object
// large enough to hold a header plus one record of the largest variant.
func (s *Session) AssignBuffer(cpu int, mem sharedmem.Object) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probe.Supported() {
		return newError(NotSupported, "PMU not supported on this host")
	}
	if !s.created {
		return newError(BadState, "no session created")
	}
	if s.active.Load() {
		return newError(BadState, "assign_buffer called while active")
	}
	if cpu < 0 || cpu >= s.state.numCPUs {
		return errorf(InvalidArgs, "cpu %d out of range [0, %d)", cpu, s.state.numCPUs)
	}
	// assign_buffer runs before stage_config, so the eventual per-PMI
	// worst case (one record per staged counter) isn't known yet; all
	// that can be required up front is room for a header plus one
	// record. The PMI handler's own capacity check (pmi.go) is what
	// actually protects against a buffer too small for the staged
	// counter count, and sets the FULL flag rather than ever writing
	// past buffer_end.
	minSize := uintptr(headerSize + kMaxRecordSize)
	if mem.Size() < minSize {
		return errorf(InvalidArgs, "buffer size %d smaller than minimum %d", mem.Size(), minSize)
	}
	s.state.cpuData[cpu].mem = mem
	s.state.cpuData[cpu].size = mem.Size()
	return nil
}

// StageConfig validates cfg and, on success, copies it into the session.
// Requires a session created and not active. Staging is atomic: on any
// validation failure the prior configuration is left untouched.
func (s *Session) StageConfig(cfg Config) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probe.Supported() {
		return newError(NotSupported, "PMU not supported on this host")
	}
	if !s.created {
		return newError(BadState, "no session created")
	}
	if s.active.Load() {
		return newError(BadState, "stage_config called while active")
	}

	caps := s.probe.Caps()
	numFixed, numProgrammable, err := validateConfig(&cfg, caps)
	if err != nil {
		glog.Infof("pmu: stage_config rejected: %v", err)
		return err
	}

	s.state.config = cfg
	s.state.numUsedFixed = numFixed
	s.state.numUsedProgrammable = numProgrammable
	for i := range s.state.fixedHWMap {
		if hw, ok := lookupFixedCounter(cfg.FixedIDs[i]); ok {
			s.state.fixedHWMap[i] = hw
		} else {
			s.state.fixedHWMap[i] = 0
		}
	}
	return nil
}

// Start maps every per-CPU buffer, broadcasts the per-CPU programmer, and
// flips the active flag. Requires a session created and not active.
func (s *Session) Start() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probe.Supported() {
		return newError(NotSupported, "PMU not supported on this host")
	}
	if !s.created {
		return newError(BadState, "no session created")
	}
	if s.active.Load() {
		return newError(BadState, "already active")
	}

	if err := s.mapBuffersLocked(); err != nil {
		return err
	}

	glog.Infof("pmu: starting, %d fixed, %d programmable", s.state.numUsedFixed, s.state.numUsedProgrammable)
	s.broadcaster.Broadcast(s.state.numCPUs, func(cpu int) {
		s.programCPULocked(cpu)
	})

	// start sets active=true only after every CPU has been programmed and
	// every buffer mapped, per the active flag protocol.
	s.active.Store(true)
	return nil
}

// Stop flips the active flag off before anything else, broadcasts the
// per-CPU stop routine, and unmaps buffers. Idempotent: calling Stop
// without an active session (but with one created) simply re-runs the
// teardown, which is harmless against already-torn-down state.
func (s *Session) Stop() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probe.Supported() {
		return newError(NotSupported, "PMU not supported on this host")
	}
	if !s.created {
		return newError(BadState, "no session created")
	}

	// Cleared before anything else so a straggling PMI sees active=false
	// and does not touch buffers we are about to unmap.
	s.active.Store(false)

	glog.Infof("pmu: stopping")
	s.broadcaster.Broadcast(s.state.numCPUs, func(cpu int) {
		s.stopCPULocked(cpu)
	})

	s.unmapBuffersLocked()
	return nil
}

// Fini broadcasts the hardware-reset routine and destroys the session.
// Requires a session created and not active. Idempotent: calling Fini
// without a session created returns BadState, matching the original's "a
// second fini returns an error" behavior.
func (s *Session) Fini() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probe.Supported() {
		return newError(NotSupported, "PMU not supported on this host")
	}
	if s.active.Load() {
		return newError(BadState, "fini called while active")
	}
	if !s.created {
		return newError(BadState, "no session created")
	}

	s.broadcaster.Broadcast(len(s.buses), func(cpu int) {
		s.resetCPULocked(cpu)
	})

	s.state = sessionState{}
	s.created = false
	return nil
}

// HandlePMI is the interrupt producer entry point for cpu when no PC
// records are in use (address space and instruction pointer are
// irrelevant). It must never be called while holding mu: the PMI handler
// runs in interrupt context and may not block on the session mutex.
func (s *Session) HandlePMI(cpu int) bool {
	return s.handlePMIWithContext(cpu, StaticPMIContext{})
}
