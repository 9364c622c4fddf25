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

// Static is a static CPUID function, keyed by the In that would have
// produced it. It lets tests describe hardware that isn't physically
// present, e.g. a PMU version 4 part with a fixed set of counters.
type Static map[In]Out

// Set records the response to a query.
func (s Static) Set(in In, out Out) {
	in.normalize()
	s[in] = out
}

// Query implements Function.
func (s Static) Query(in In) Out {
	in.normalize()
	return s[in]
}

// ToFeatureSet wraps s as a FeatureSet.
func (s Static) ToFeatureSet() FeatureSet {
	return FeatureSet{Function: s}
}

// NewStaticIntelPMU builds a Static feature set describing an Intel part
// with the given PMU version, counter counts and widths. It's the fixture
// used throughout the pmu package's tests in place of physical hardware.
func NewStaticIntelPMU(version, numProgrammable, programmableWidth, numFixed, fixedWidth uint8, unavailable uint32) Static {
	s := make(Static)
	s.Set(In{Eax: uint32(vendorID)}, Out{Ebx: 0x756e6547, Edx: 0x49656e69, Ecx: 0x6c65746e}) // "GenuineIntel"
	s.Set(In{Eax: uint32(featureInfo)}, Out{Ecx: pdcmBit})
	eax := uint32(version) | uint32(numProgrammable)<<8 | uint32(programmableWidth)<<16
	edx := uint32(numFixed)&0x1f | uint32(fixedWidth)<<5
	s.Set(In{Eax: uint32(intelPMCInfo)}, Out{Eax: eax, Ebx: unavailable, Edx: edx})
	return s
}
