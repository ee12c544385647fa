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

// DebugInfoLevel mirrors the compiler's -C debuginfo levels.
type DebugInfoLevel int

const (
	DebugInfoNone DebugInfoLevel = iota
	DebugInfoLineTablesOnly
	DebugInfoFull
)

// LtoMode selects link-time-optimization behavior.
type LtoMode string

const (
	LtoOff  LtoMode = "off"
	LtoThin LtoMode = "thin"
	LtoFat  LtoMode = "fat"
)

// PanicStrategy selects unwind behavior.
type PanicStrategy string

const (
	PanicUnwind PanicStrategy = "unwind"
	PanicAbort  PanicStrategy = "abort"
)

// Profile holds every compilation setting that contributes to the
// Fingerprint and to the compiler command line (§3 Profile).
type Profile struct {
	Name            string
	OptLevel        string
	Lto             LtoMode
	CodegenUnits    int
	Debuginfo       DebugInfoLevel
	SplitDebuginfo  string
	DebugAssertions bool
	OverflowChecks  bool
	Panic           PanicStrategy
	Incremental     bool
	Rpath           bool
	Rustflags       []string
	CodegenBackend  string
}

// Equal reports whether two profiles are identical in every field that
// feeds the Fingerprint and the SBOM sidecar (§3, §6). Used by the SBOM
// writer to decide whether a per-package profile override must be emitted.
func (p Profile) Equal(o Profile) bool {
	if p.Name != o.Name || p.OptLevel != o.OptLevel || p.Lto != o.Lto ||
		p.CodegenUnits != o.CodegenUnits || p.Debuginfo != o.Debuginfo ||
		p.SplitDebuginfo != o.SplitDebuginfo || p.DebugAssertions != o.DebugAssertions ||
		p.OverflowChecks != o.OverflowChecks || p.Panic != o.Panic ||
		p.Incremental != o.Incremental || p.Rpath != o.Rpath ||
		p.CodegenBackend != o.CodegenBackend || len(p.Rustflags) != len(o.Rustflags) {
		return false
	}
	for i := range p.Rustflags {
		if p.Rustflags[i] != o.Rustflags[i] {
			return false
		}
	}
	return true
}
