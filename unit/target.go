// Copyright 2026 The Forgecore Authors
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

package unit

// TargetKind classifies what a Target produces.
type TargetKind int

const (
	TargetLib TargetKind = iota
	TargetBin
	TargetTest
	TargetExample
	TargetBench
	TargetCustomBuild
)

func (k TargetKind) String() string {
	switch k {
	case TargetLib:
		return "lib"
	case TargetBin:
		return "bin"
	case TargetTest:
		return "test"
	case TargetExample:
		return "example"
	case TargetBench:
		return "bench"
	case TargetCustomBuild:
		return "custom-build"
	default:
		return "unknown"
	}
}

// CrateType is one compiled artifact flavor a library Target can request.
type CrateType string

const (
	CrateRlib      CrateType = "rlib"
	CrateDylib     CrateType = "dylib"
	CrateCdylib    CrateType = "cdylib"
	CrateStaticlib CrateType = "staticlib"
	CrateBin       CrateType = "bin"
	CrateProcMacro CrateType = "proc-macro"
)

// RequiresUpstreamObjects reports whether producing this crate type needs
// the finished object code of its dependencies (true) or whether metadata
// alone is sufficient (false, used by the rmeta pipelining optimization in
// §4.5). Only a pure rlib dependency chain can stay metadata-only.
func (c CrateType) RequiresUpstreamObjects() bool {
	switch c {
	case CrateRlib:
		return false
	default:
		return true
	}
}

// Target describes one buildable artifact of a Package: its kind, the
// crate-type(s) it is compiled as, source entry point, edition and name.
type Target struct {
	Name       string
	Kind       TargetKind
	CrateTypes []CrateType
	SrcPath    string
	Edition    string

	// ProcMacro marks a library target as a proc-macro crate. Proc-macro
	// targets are always compiled Host-kind regardless of the parent's
	// kind (§4.4).
	ProcMacro bool

	// IsUserVisible marks targets whose compiler output gets a hardlink
	// into dest/ (bins, linkable libs, examples) as opposed to intermediate
	// artifacts that only ever live in deps/.
	IsUserVisible bool
}
