package pmu_test

import (
	"encoding/binary"
	"testing"

	"github.com/intelpmu/ipmcore/pkg/msr"
	"github.com/intelpmu/ipmcore/pkg/pmu"
	"github.com/stretchr/testify/require"
)

// Scenario 2: overflow sampling with pc records.
func TestPMIOverflowSamplingEmitsPCRecords(t *testing.T) {
	r := newRig(t, 1, 4, 48, 4, 48)
	objs := mustAssignBuffers(t, r, 4096)
	caps, err := r.session.GetProperties()
	require.Nil(t, err)

	cfg := pmu.Config{}
	cfg.ProgrammableIDs[0] = pmu.MakeEventID(pmu.UnitProgrammable, 0x3c)
	cfg.ProgrammableInitialValue[0] = caps.MaxProgrammableValue - 100
	cfg.ProgrammableFlags[0] = pmu.FlagPC
	cfg.ProgrammableEvents[0] = 0x3c
	cfg.GlobalCtrl = 1 << 0
	require.Nil(t, r.session.StageConfig(cfg))
	require.Nil(t, r.session.Start())

	ctx := pmu.StaticPMIContext{ASpace: 0xdead0000, IP: 0x0040_1234}
	for i := 0; i < 3; i++ {
		r.buses[0].Poke(msr.IA32_PERF_GLOBAL_STATUS, 1<<0)
		ok := r.session.HandlePMIWithContext(0, ctx)
		require.True(t, ok)
	}

	records := pmu.DecodeRecords(objs[0].buf)
	require.Len(t, records, 3)
	lastTime := uint64(0)
	for _, rec := range records {
		require.Equal(t, pmu.RecordPC, rec.Type)
		require.Equal(t, cfg.ProgrammableIDs[0], rec.Event)
		require.Equal(t, uint64(0xdead0000), rec.ASpace)
		require.Equal(t, uint64(0x0040_1234), rec.PC)
		require.GreaterOrEqual(t, rec.Time, lastTime)
		lastTime = rec.Time
	}

	// Each handled PMI reloads the counter to its initial value.
	require.Equal(t, cfg.ProgrammableInitialValue[0], r.buses[0].Peek(msr.IA32_PMC_FIRST))
}

// Scenario 3: timebase fan-out.
func TestPMITimebaseFanOut(t *testing.T) {
	r := newRig(t, 1, 4, 48, 4, 48)
	objs := mustAssignBuffers(t, r, 4096)

	timebaseID := pmu.MakeEventID(pmu.UnitProgrammable, 0x3c)
	companionID := pmu.MakeEventID(pmu.UnitProgrammable, 0xc0)

	cfg := pmu.Config{}
	cfg.TimebaseID = timebaseID
	cfg.ProgrammableIDs[0] = timebaseID
	cfg.ProgrammableInitialValue[0] = 900
	cfg.ProgrammableIDs[1] = companionID
	cfg.ProgrammableInitialValue[1] = 0
	cfg.ProgrammableFlags[1] = pmu.FlagTimebase
	cfg.GlobalCtrl = 1<<0 | 1<<1
	require.Nil(t, r.session.StageConfig(cfg))
	require.Nil(t, r.session.Start())

	r.buses[0].Poke(msr.IA32_PMC_FIRST+1, 42) // companion's live count at the moment A overflows
	r.buses[0].Poke(msr.IA32_PERF_GLOBAL_STATUS, 1<<0)
	require.True(t, r.session.HandlePMI(0))

	records := pmu.DecodeRecords(objs[0].buf)
	require.Len(t, records, 2)
	require.Equal(t, pmu.RecordTick, records[0].Type)
	require.Equal(t, timebaseID, records[0].Event)
	require.Equal(t, pmu.RecordValue, records[1].Type)
	require.Equal(t, companionID, records[1].Event)
	require.Equal(t, uint64(42), records[1].Value)
	require.Equal(t, records[0].Time, records[1].Time)

	// Both A and B's counters are reloaded to their initial values.
	require.Equal(t, uint64(900), r.buses[0].Peek(msr.IA32_PMC_FIRST))
	require.Equal(t, uint64(0), r.buses[0].Peek(msr.IA32_PMC_FIRST+1))
}

// Scenario 5: full buffer.
func TestPMIFullBufferSetsFlagAndDisarms(t *testing.T) {
	r := newRig(t, 1, 2, 48, 0, 48)
	// Header (32 bytes) plus room for exactly one maximum-size record (32
	// bytes): the capacity check reserves a full record per used counter
	// regardless of which record variant actually gets written, so the
	// second overflow must find the buffer full.
	const bufSize = 32 + 32
	objs := mustAssignBuffers(t, r, bufSize)

	cfg := pmu.Config{}
	cfg.ProgrammableIDs[0] = pmu.MakeEventID(pmu.UnitProgrammable, 0x3c)
	cfg.GlobalCtrl = 1 << 0
	require.Nil(t, r.session.StageConfig(cfg))
	require.Nil(t, r.session.Start())

	r.buses[0].Poke(msr.IA32_PERF_GLOBAL_STATUS, 1<<0)
	require.True(t, r.session.HandlePMI(0))

	r.buses[0].Poke(msr.IA32_PERF_GLOBAL_STATUS, 1<<0)
	ok := r.session.HandlePMI(0)
	require.False(t, ok, "second PMI must find the buffer full")

	records := pmu.DecodeRecords(objs[0].buf)
	require.Len(t, records, 1)

	// The header's flags word (bytes 8..12) carries FULL.
	require.Equal(t, pmu.BufferFlagFull, binary.LittleEndian.Uint32(objs[0].buf[8:12])&pmu.BufferFlagFull)

	// global_ctrl was disarmed by the full PMI and never re-armed.
	require.Equal(t, uint64(0), r.buses[0].Peek(msr.IA32_PERF_GLOBAL_CTRL))
}
