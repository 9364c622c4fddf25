package pmu_test

import (
	"testing"

	"github.com/intelpmu/ipmcore/pkg/pmu"
	"github.com/stretchr/testify/require"
)

// DecodeRecords walks a buffer built entirely through the public Session
// API, so this exercises the encoder and decoder together rather than
// testing record.go's unexported helpers directly.
func TestDecodeRecordsRoundTripsThroughASession(t *testing.T) {
	r := newRig(t, 1, 4, 48, 4, 48)
	objs := mustAssignBuffers(t, r, 4096)

	cfg := pmu.Config{}
	cfg.FixedIDs[0] = pmu.FixedInstrRetired
	cfg.FixedCtrl = 0x3
	cfg.GlobalCtrl = 1 << 32
	require.Nil(t, r.session.StageConfig(cfg))
	require.Nil(t, r.session.Start())
	require.Nil(t, r.session.Stop())

	records := pmu.DecodeRecords(objs[0].buf)
	require.Len(t, records, 1)
	require.Equal(t, pmu.RecordValue, records[0].Type)
	require.Equal(t, pmu.FixedInstrRetired, records[0].Event)
}

// DecodeRecords must stop at header.capture_end, never reading trailing
// bytes the producer never wrote (or that belong to a previous cycle).
func TestDecodeRecordsStopsAtCaptureEnd(t *testing.T) {
	r := newRig(t, 1, 4, 48, 4, 48)
	objs := mustAssignBuffers(t, r, 4096)
	require.Nil(t, r.session.StageConfig(pmu.Config{}))
	require.Nil(t, r.session.Start())
	require.Nil(t, r.session.Stop())

	// Nothing was staged, so capture_end sits immediately past the
	// header and nothing beyond it should ever be decoded even though
	// the underlying buffer is much larger.
	require.Empty(t, pmu.DecodeRecords(objs[0].buf))
}
