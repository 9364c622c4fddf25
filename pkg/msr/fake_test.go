package msr_test

import (
	"testing"

	"github.com/intelpmu/ipmcore/pkg/msr"
	"github.com/stretchr/testify/require"
)

func TestFakeBusReadsZeroByDefault(t *testing.T) {
	b := msr.NewFakeBus()
	require.Equal(t, uint64(0), b.ReadMSR(msr.IA32_PERF_GLOBAL_CTRL))
}

func TestFakeBusWriteThenRead(t *testing.T) {
	b := msr.NewFakeBus()
	b.WriteMSR(msr.IA32_FIXED_CTR0, 42)
	require.Equal(t, uint64(42), b.ReadMSR(msr.IA32_FIXED_CTR0))
}

func TestFakeBusPokeAndPeek(t *testing.T) {
	b := msr.NewFakeBus()
	b.Poke(msr.IA32_PERF_GLOBAL_STATUS, 1<<5)
	require.Equal(t, uint64(1<<5), b.Peek(msr.IA32_PERF_GLOBAL_STATUS))
}

func TestFakeBusImplementsBus(t *testing.T) {
	var _ msr.Bus = msr.NewFakeBus()
}

func TestGlobalOvfCtrlAndStatusResetShareAnAddress(t *testing.T) {
	require.Equal(t, msr.IA32_PERF_GLOBAL_OVF_CTRL, msr.IA32_PERF_GLOBAL_STATUS_RESET)
}
