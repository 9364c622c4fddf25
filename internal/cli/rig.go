package cli

import (
	"github.com/intelpmu/ipmcore/pkg/apic"
	"github.com/intelpmu/ipmcore/pkg/broadcast"
	"github.com/intelpmu/ipmcore/pkg/cpuid"
	"github.com/intelpmu/ipmcore/pkg/msr"
	"github.com/intelpmu/ipmcore/pkg/pmu"
)

const demoNumCPUs = 4

// newRig builds a Session against a simulated 4-CPU Skylake-generation
// part: 4 programmable counters (48 bits wide), 4 fixed counters (48 bits
// wide), architectural PMU version 4. ipmctl has no real ring-zero access,
// so this is the only backend it can drive.
func newRig() (*pmu.Session, []*msr.FakeBus, []*apic.Fake) {
	fs := cpuid.NewStaticIntelPMU(4, 4, 48, 4, 48, 0).ToFeatureSet()

	buses := make([]msr.Bus, demoNumCPUs)
	fakeBuses := make([]*msr.FakeBus, demoNumCPUs)
	apics := make([]apic.Controller, demoNumCPUs)
	fakeAPICs := make([]*apic.Fake, demoNumCPUs)
	for i := 0; i < demoNumCPUs; i++ {
		b := msr.NewFakeBus()
		buses[i] = b
		fakeBuses[i] = b
		a := apic.NewFake()
		apics[i] = a
		fakeAPICs[i] = a
	}

	probe := pmu.NewProbe(fs, buses[0])
	session := pmu.NewSession(probe, buses, apics, broadcast.Sequential{}, 1_000_000_000)
	return session, fakeBuses, fakeAPICs
}
