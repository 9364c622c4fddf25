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

// Package cpuid queries the CPUID instruction for the subset of leaves the
// rest of this module cares about: vendor identification (00H), the basic
// feature leaf's PDCM bit (01H), and the architectural performance-monitoring
// leaf (0AH).
//
// Callers should start from HostFeatureSet, which wraps the native CPUID
// instruction, or build a Static set from canned In/Out pairs for testing
// hardware that isn't physically present.
package cpuid

// ErrIncompatible is returned when a requested operation cannot be satisfied
// by the queried CPU.
type ErrIncompatible struct {
	message string
}

// Error implements error.
func (e ErrIncompatible) Error() string {
	return e.message
}
