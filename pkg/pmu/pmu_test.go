package pmu_test

import (
	"testing"

	"github.com/intelpmu/ipmcore/pkg/apic"
	"github.com/intelpmu/ipmcore/pkg/broadcast"
	"github.com/intelpmu/ipmcore/pkg/cpuid"
	"github.com/intelpmu/ipmcore/pkg/msr"
	"github.com/intelpmu/ipmcore/pkg/pmu"
	"github.com/intelpmu/ipmcore/pkg/sharedmem"
	"github.com/stretchr/testify/require"
)

// rig bundles a Session together with the fakes backing it, so tests can
// both drive the public API and inspect what landed on the simulated
// hardware.
type rig struct {
	session *pmu.Session
	buses   []*msr.FakeBus
	apics   []*apic.Fake
	caps    pmu.HardwareCaps
}

// newRig builds a Session against a simulated numCPUs-CPU part with the
// given programmable/fixed counter counts and widths, PMU architectural
// version 4.
func newRig(t *testing.T, numCPUs int, numProgrammable, programmableWidth, numFixed, fixedWidth uint8) *rig {
	t.Helper()
	fs := cpuid.NewStaticIntelPMU(4, numProgrammable, programmableWidth, numFixed, fixedWidth, 0).ToFeatureSet()

	buses := make([]msr.Bus, numCPUs)
	fakeBuses := make([]*msr.FakeBus, numCPUs)
	apics := make([]apic.Controller, numCPUs)
	fakeAPICs := make([]*apic.Fake, numCPUs)
	for i := 0; i < numCPUs; i++ {
		b := msr.NewFakeBus()
		buses[i] = b
		fakeBuses[i] = b
		a := apic.NewFake()
		apics[i] = a
		fakeAPICs[i] = a
	}

	probe := pmu.NewProbe(fs, buses[0])
	require.True(t, probe.Supported(), "test fixture must describe a supported part")

	session := pmu.NewSession(probe, buses, apics, broadcast.Sequential{}, 1_000_000_000)
	return &rig{session: session, buses: fakeBuses, apics: fakeAPICs, caps: probe.Caps()}
}

// mustAssignBuffers calls Init and AssignBuffer for every CPU with a
// memory-backed fake buffer of the given size, returning the raw backing
// slices so tests can inspect wire bytes directly without a real mapping.
func mustAssignBuffers(t *testing.T, r *rig, size int) []*fakeObject {
	t.Helper()
	require.Nil(t, r.session.Init())
	objs := make([]*fakeObject, len(r.buses))
	for cpu := range r.buses {
		obj := newFakeObject(size)
		objs[cpu] = obj
		require.Nil(t, r.session.AssignBuffer(cpu, obj))
	}
	return objs
}

// fakeObject is a sharedmem.Object backed by a plain Go slice, avoiding a
// real memfd/mmap round trip in unit tests.
type fakeObject struct {
	buf []byte
}

func newFakeObject(size int) *fakeObject {
	return &fakeObject{buf: make([]byte, size)}
}

func (o *fakeObject) Size() uintptr { return uintptr(len(o.buf)) }

func (o *fakeObject) Map() (sharedmem.Mapping, error) {
	return fakeMapping{o.buf}, nil
}

// fakeMapping implements sharedmem.Mapping directly over the backing slice.
type fakeMapping struct {
	buf []byte
}

func (m fakeMapping) Bytes() []byte { return m.buf }
func (m fakeMapping) Unmap() error  { return nil }
