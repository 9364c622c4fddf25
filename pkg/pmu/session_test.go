package pmu_test

import (
	"testing"

	"github.com/intelpmu/ipmcore/pkg/msr"
	"github.com/intelpmu/ipmcore/pkg/pmu"
	"github.com/stretchr/testify/require"
)

// Scenario 1: happy path, one fixed counter.
func TestSessionHappyPathOneFixedCounter(t *testing.T) {
	r := newRig(t, 4, 4, 48, 4, 48)
	objs := mustAssignBuffers(t, r, 4096)

	var cfg pmu.Config
	cfg.FixedIDs[0] = pmu.FixedInstrRetired
	cfg.FixedCtrl = 0x3 // EN(OS|USR) for counter 0
	cfg.GlobalCtrl = 1 << 32
	require.Nil(t, r.session.StageConfig(cfg))
	require.Nil(t, r.session.Start())

	// Simulate the counter having ticked up while running.
	for cpu := range r.buses {
		r.buses[cpu].Poke(msr.IA32_FIXED_CTR0, 12345)
	}

	require.Nil(t, r.session.Stop())
	require.Nil(t, r.session.Fini())

	for cpu, obj := range objs {
		records := pmu.DecodeRecords(obj.buf)
		require.Len(t, records, 1, "cpu %d", cpu)
		require.Equal(t, pmu.RecordValue, records[0].Type)
		require.Equal(t, uint64(12345), records[0].Value)
	}
}

// Boundary case: zero used counters.
func TestSessionZeroUsedCounters(t *testing.T) {
	r := newRig(t, 2, 4, 48, 4, 48)
	objs := mustAssignBuffers(t, r, 4096)

	require.Nil(t, r.session.StageConfig(pmu.Config{}))
	require.Nil(t, r.session.Start())
	require.Nil(t, r.session.Stop())
	require.Nil(t, r.session.Fini())

	for _, obj := range objs {
		require.Empty(t, pmu.DecodeRecords(obj.buf))
	}
}

// Round-trip law: init -> fini returns to post-boot state.
func TestSessionInitFiniRoundTrip(t *testing.T) {
	r := newRig(t, 2, 4, 48, 4, 48)
	mustAssignBuffers(t, r, 4096)
	require.Nil(t, r.session.StageConfig(pmu.Config{}))

	require.Nil(t, r.session.Fini())

	// A fresh init must be legal again: created and active are both clear.
	require.Nil(t, r.session.Init())
	require.Nil(t, r.session.Fini())
}

// Round-trip law: start -> stop -> start -> stop is well-defined.
func TestSessionStartStopStartStop(t *testing.T) {
	r := newRig(t, 2, 4, 48, 4, 48)
	objs := mustAssignBuffers(t, r, 4096)

	var cfg pmu.Config
	cfg.FixedIDs[0] = pmu.FixedInstrRetired
	cfg.FixedCtrl = 0x3
	cfg.GlobalCtrl = 1 << 32
	require.Nil(t, r.session.StageConfig(cfg))

	require.Nil(t, r.session.Start())
	r.buses[0].Poke(msr.IA32_FIXED_CTR0, 100)
	require.Nil(t, r.session.Stop())

	require.Nil(t, r.session.Start())
	r.buses[0].Poke(msr.IA32_FIXED_CTR0, 200)
	require.Nil(t, r.session.Stop())

	// Each Start remaps the buffer (re-writing the header and resetting
	// the write cursor to just past it), so each Stop flushes a
	// self-contained snapshot rather than appending to the previous
	// cycle's records: only the second cycle's record is still present.
	records := pmu.DecodeRecords(objs[0].buf)
	require.Len(t, records, 1)
	require.Equal(t, uint64(200), records[0].Value)
}

// Scenario 4: rejected configuration leaves state untouched, and a
// subsequent valid stage+start succeeds.
func TestSessionRejectedConfigLeavesStateUnchanged(t *testing.T) {
	r := newRig(t, 2, 4, 48, 4, 48)
	mustAssignBuffers(t, r, 4096)

	bad := pmu.Config{GlobalCtrl: 1 << 40} // bit 40 is outside any writable mask
	err := r.session.StageConfig(bad)
	require.NotNil(t, err)
	require.Equal(t, pmu.InvalidArgs, err.Kind)

	good := pmu.Config{FixedIDs: [pmu.MaxFixedCounters]pmu.EventID{pmu.FixedInstrRetired}, FixedCtrl: 0x3, GlobalCtrl: 1 << 32}
	require.Nil(t, r.session.StageConfig(good))
	require.Nil(t, r.session.Start())
	require.Nil(t, r.session.Stop())
	require.Nil(t, r.session.Fini())
}

// Scenario 6: idempotent teardown.
func TestSessionIdempotentTeardown(t *testing.T) {
	r := newRig(t, 2, 4, 48, 4, 48)
	mustAssignBuffers(t, r, 4096)
	require.Nil(t, r.session.StageConfig(pmu.Config{}))
	require.Nil(t, r.session.Start())

	require.Nil(t, r.session.Stop())
	require.Nil(t, r.session.Stop())

	require.Nil(t, r.session.Fini())
	err := r.session.Fini()
	require.NotNil(t, err)
	require.Equal(t, pmu.BadState, err.Kind)
}

// GetProperties never requires a session to be created.
func TestGetPropertiesRequiresOnlySupport(t *testing.T) {
	r := newRig(t, 1, 4, 48, 4, 48)
	caps, err := r.session.GetProperties()
	require.Nil(t, err)
	require.Equal(t, r.caps, caps)
}

// assign_buffer, stage_config and start are all illegal before init.
func TestLifecycleOrderingEnforced(t *testing.T) {
	r := newRig(t, 1, 4, 48, 4, 48)

	err := r.session.AssignBuffer(0, newFakeObject(4096))
	require.NotNil(t, err)
	require.Equal(t, pmu.BadState, err.Kind)

	err = r.session.StageConfig(pmu.Config{})
	require.NotNil(t, err)
	require.Equal(t, pmu.BadState, err.Kind)

	err = r.session.Start()
	require.NotNil(t, err)
	require.Equal(t, pmu.BadState, err.Kind)
}

// assign_buffer rejects an out-of-range cpu and an undersized buffer.
func TestAssignBufferValidation(t *testing.T) {
	r := newRig(t, 2, 4, 48, 4, 48)
	require.Nil(t, r.session.Init())

	err := r.session.AssignBuffer(5, newFakeObject(4096))
	require.NotNil(t, err)
	require.Equal(t, pmu.InvalidArgs, err.Kind)

	err = r.session.AssignBuffer(0, newFakeObject(4))
	require.NotNil(t, err)
	require.Equal(t, pmu.InvalidArgs, err.Kind)
}

// NewSession panics if the bus and APIC slices disagree in length: this is
// a programming error, not a runtime condition callers can recover from.
func TestNewSessionPanicsOnMismatchedLengths(t *testing.T) {
	require.Panics(t, func() {
		pmu.NewSession(nil, make([]msr.Bus, 2), nil, nil, 0)
	})
}
