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

import "fmt"

// CompileKind is either Host or a specific cross-compilation target triple
// (§3). The zero value is Host.
type CompileKind struct {
	triple string // empty means Host
}

// Host is the compile kind for tools and build scripts.
var Host = CompileKind{}

// ForTarget builds a CompileKind for a `--target <triple>` cross build.
func ForTarget(triple string) CompileKind {
	return CompileKind{triple: triple}
}

// IsHost reports whether this is the Host kind.
func (k CompileKind) IsHost() bool { return k.triple == "" }

// Triple returns the target triple, or "" for Host.
func (k CompileKind) Triple() string { return k.triple }

// String renders a CompileKind for filenames/log fields ("host" or the
// triple), matching Layout's "host and target layouts are distinct
// subtrees" rule (§4.2).
func (k CompileKind) String() string {
	if k.IsHost() {
		return "host"
	}
	return k.triple
}

// CompileMode is one of the modes a Unit can be built in (§3).
type CompileMode int

const (
	ModeBuild CompileMode = iota
	ModeCheck
	ModeDoc
	ModeDocScrape
	ModeDoctest
	ModeTest
	ModeBench
	ModeRunCustomBuild
)

func (m CompileMode) String() string {
	switch m {
	case ModeBuild:
		return "build"
	case ModeCheck:
		return "check"
	case ModeDoc:
		return "doc"
	case ModeDocScrape:
		return "doc-scrape"
	case ModeDoctest:
		return "doctest"
	case ModeTest:
		return "test"
	case ModeBench:
		return "bench"
	case ModeRunCustomBuild:
		return "run-custom-build"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// IsRunCustomBuild reports whether this mode runs a build script.
func (m CompileMode) IsRunCustomBuild() bool { return m == ModeRunCustomBuild }

// IsDocLike reports whether this mode produces rustdoc output, which
// matters for doc-metadata sharing (§4.5) and the doc-collision check
// (§4.9).
func (m CompileMode) IsDocLike() bool { return m == ModeDoc || m == ModeDocScrape }

// IsAnyTest reports whether this mode builds a test/bench/doctest binary.
func (m CompileMode) IsAnyTest() bool {
	return m == ModeTest || m == ModeBench || m == ModeDoctest
}
