// Copyright 2019 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build amd64
// +build amd64

package cpuid

// FeatureSet wraps a CPUID Function and exposes the specific leaves this
// module needs: vendor identification, the PDCM feature bit, and the
// performance-monitoring leaf.
//
// +stateify savable
type FeatureSet struct {
	// Function is the underlying CPUID Function.
	Function
}

// Helper to convert 3 regs into 12-byte vendor ID.
func vendorIDFromRegs(bx, cx, dx uint32) (r [12]byte) {
	for i := uint(0); i < 4; i++ {
		r[i] = byte(bx >> (i * 8))
	}
	for i := uint(0); i < 4; i++ {
		r[4+i] = byte(dx >> (i * 8))
	}
	for i := uint(0); i < 4; i++ {
		r[8+i] = byte(cx >> (i * 8))
	}
	return r
}

// VendorID is the 12-char string returned in ebx:edx:ecx for eax=0.
func (fs FeatureSet) VendorID() [12]byte {
	_, bx, cx, dx := fs.query(vendorID)
	return vendorIDFromRegs(bx, cx, dx)
}

var (
	authenticAMD = [12]byte{'A', 'u', 't', 'h', 'e', 'n', 't', 'i', 'c', 'A', 'M', 'D'}
	genuineIntel = [12]byte{'G', 'e', 'n', 'u', 'i', 'n', 'e', 'I', 'n', 't', 'e', 'l'}
)

// AMD returns true if fs describes an AMD CPU.
func (fs FeatureSet) AMD() bool {
	return fs.VendorID() == authenticAMD
}

// Intel returns true if fs describes an Intel CPU.
func (fs FeatureSet) Intel() bool {
	return fs.VendorID() == genuineIntel
}

// PMUInfo is the raw decode of CPUID leaf 0AH, "Architectural Performance
// Monitoring Leaf". Field names and bit positions follow the Intel SDM Vol.
// 2A, Table 3-8.
type PMUInfo struct {
	// Version is the reported architectural PMU version. 0 means the leaf
	// is absent or the hardware predates architectural PMU support.
	Version uint8

	// NumProgrammable is the number of general-purpose counters per
	// logical processor, as enumerated in EAX[15:8].
	NumProgrammable uint8

	// ProgrammableWidth is the bit width of each general-purpose counter,
	// EAX[23:16].
	ProgrammableWidth uint8

	// EBXVectorLength is the length, in bits, of the EBX event-unavailability
	// vector, EAX[31:24].
	EBXVectorLength uint8

	// UnavailableEventsMask is EBX: bit i set means architectural event i
	// is NOT available on this part.
	UnavailableEventsMask uint32

	// NumFixed is the number of fixed-function counters, EDX[4:0].
	NumFixed uint8

	// FixedWidth is the bit width of each fixed counter, EDX[12:5].
	FixedWidth uint8
}

// PMUInfo decodes CPUID leaf 0AH (intelPMCInfo) for this feature set.
func (fs FeatureSet) PMUInfo() PMUInfo {
	ax, bx, _, dx := fs.query(intelPMCInfo)
	return PMUInfo{
		Version:               uint8(ax),
		NumProgrammable:       uint8(ax >> 8),
		ProgrammableWidth:     uint8(ax >> 16),
		EBXVectorLength:       uint8(ax >> 24),
		UnavailableEventsMask: bx,
		NumFixed:              uint8(dx) & 0x1f,
		FixedWidth:            uint8(dx >> 5),
	}
}

// pdcmBit is ECX bit 15 of CPUID.01H: "Perfmon and Debug Capability", i.e.
// whether IA32_PERF_CAPABILITIES is implemented.
const pdcmBit = 1 << 15

// SupportsPDCM reports whether the IA32_PERF_CAPABILITIES MSR is
// implemented. The capability probe must not read that MSR otherwise.
func (fs FeatureSet) SupportsPDCM() bool {
	_, _, cx, _ := fs.query(featureInfo)
	return cx&pdcmBit != 0
}
