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

import (
	"github.com/klauspost/cpuid/v2"
)

// cpuidFunction is a useful type wrapper. The format is eax | (ecx << 32).
type cpuidFunction uint64

func (f cpuidFunction) eax() uint32 {
	return uint32(f)
}

func (f cpuidFunction) ecx() uint32 {
	return uint32(f >> 32)
}

// The leaves this module is allowed to query. CPUID is a privileged
// probe that runs once at boot; we only ever need the vendor string, the
// basic feature bits (for PDCM), and the architectural performance-monitoring
// leaf.
const (
	vendorID      cpuidFunction = 0x0 // Returns vendor ID and largest standard function.
	featureInfo   cpuidFunction = 0x1 // Returns basic feature bits and processor signature.
	intelPMCInfo  cpuidFunction = 0xa // Returns information about performance monitoring features. Intel only.
)

var allowedBasicFunctions = [...]bool{
	vendorID:     true,
	featureInfo:  true,
	intelPMCInfo: true,
}

// Function executes a CPUID function.
//
// This is typically the native function or a Static definition.
type Function interface {
	Query(In) Out
}

// Native is a native Function.
//
// This implements Function.
type Native struct{}

// In is input to the Query function.
//
// +stateify savable
type In struct {
	Eax uint32
	Ecx uint32
}

// normalize drops irrelevant Ecx values.
func (i *In) normalize() {
	switch cpuidFunction(i.Eax) {
	case vendorID, featureInfo:
		i.Ecx = 0 // Ignore.
	case intelPMCInfo:
		i.Ecx = 0 // Ignore.
	}
}

// Out is output from the Query function.
//
// +stateify savable
type Out struct {
	Eax uint32
	Ebx uint32
	Ecx uint32
	Edx uint32
}

// native issues the CPUID instruction via klauspost/cpuid's raw leaf query,
// which wraps the same asm stub used by that library's feature detection.
func native(in In) Out {
	a, b, c, d := cpuid.CPUID(in.Eax, in.Ecx)
	return Out{Eax: a, Ebx: b, Ecx: c, Edx: d}
}

// Query executes CPUID natively.
//
// This implements Function.
func (*Native) Query(in In) Out {
	if int(in.Eax) < len(allowedBasicFunctions) && allowedBasicFunctions[in.Eax] {
		return native(in)
	}
	return Out{} // All zeros.
}

// query is an internal wrapper.
func (fs FeatureSet) query(fn cpuidFunction) (uint32, uint32, uint32, uint32) {
	out := fs.Query(In{Eax: fn.eax(), Ecx: fn.ecx()})
	return out.Eax, out.Ebx, out.Ecx, out.Edx
}

var hostFeatureSet FeatureSet

// HostFeatureSet returns a FeatureSet that queries the host CPU directly.
func HostFeatureSet() FeatureSet {
	return hostFeatureSet
}

func init() {
	hostFeatureSet = FeatureSet{Function: &Native{}}
}
