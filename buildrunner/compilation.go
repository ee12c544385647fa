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

package buildrunner

import (
	"fmt"
	"sort"

	"forgecore/compfiles"
	"forgecore/unit"
)

// Compilation is the accumulated result of one compile() run (§4.8 step
// 11): every root's binaries and cdylibs, the tests and doctests discovered
// along the way, and the sidecar files written for each unit.
type Compilation struct {
	RootOutputs map[string][]compfiles.OutputFile // by root unit id
	DepsOutput  string
	RootOutput  string

	Binaries     []string
	Cdylibs      []string
	Tests        []TestBinary
	Doctests     []Doctest
	Warnings     []string
	SBOMPaths    []string
	DepInfoPaths []string
}

// TestBinary describes one compiled test/bench artifact a caller can run.
type TestBinary struct {
	UnitID    string
	CrateName string
	Path      string
	Kind      string // "test" or "bench"
}

// Doctest describes one doctest the caller can invoke rustdoc --test on,
// carrying everything it needs that a plain test binary wouldn't (§4.8
// step 11 "doctests (with extern-args, ...)").
type Doctest struct {
	UnitID      string
	CrateName   string
	ExternArgs  []string
	CfgArgs     []string
	FeatureArgs []string
}

// argvBuilder assembles one unit's compiler invocation (§6 "Compiler
// invocation"). Built fresh per unit from everything the scheduler's
// CommandFunc has in scope: the unit itself, its resolved output set, its
// dependency edges' extern names and artifact paths, and any build-script
// output that applies to it.
type argvBuilder struct {
	u       *unit.Unit
	metaHex string
	depsDir string
	incrDir string
	externs map[string]string // extern crate name -> artifact path

	// buildScriptArgs is a dependency's parsed build-script output,
	// already rendered via buildscript.Output.RustcArgs (§4.6 step 4).
	buildScriptArgs []string
	errorFormat     string
}

// Build renders the full argv, user rustflags last (§6).
func (a *argvBuilder) Build() []string {
	var args []string
	args = append(args, "--crate-name", a.u.CrateName())
	if a.u.Target.Edition != "" {
		args = append(args, "--edition", a.u.Target.Edition)
	}
	format := a.errorFormat
	if format == "" {
		format = "human"
	}
	args = append(args, "--error-format", format)
	for _, ct := range a.u.Target.CrateTypes {
		args = append(args, "--crate-type", string(ct))
	}
	args = append(args, "--emit=dep-info,metadata,link")
	args = append(args, "-C", "metadata="+a.metaHex)
	args = append(args, "-C", "extra-filename=-"+a.metaHex)
	args = append(args, "-L", "dependency="+a.depsDir)

	for _, name := range sortedKeys(a.externs) {
		args = append(args, "--extern", fmt.Sprintf("%s=%s", name, a.externs[name]))
	}
	args = append(args, a.buildScriptArgs...)
	for name := range a.u.Features {
		if a.u.Features[name] {
			args = append(args, "--cfg", fmt.Sprintf("feature=%q", name))
		}
	}
	args = append(args, "--out-dir", a.depsDir)

	if a.u.Profile.Incremental && a.incrDir != "" {
		args = append(args, "-C", "incremental="+a.incrDir)
	}
	args = append(args, optLevelArgs(a.u.Profile)...)
	args = append(args, a.u.Rustflags...)
	return args
}

func optLevelArgs(p unit.Profile) []string {
	var args []string
	if p.OptLevel != "" {
		args = append(args, "-C", "opt-level="+p.OptLevel)
	}
	if p.Lto != unit.LtoOff && p.Lto != "" {
		args = append(args, "-C", "lto="+string(p.Lto))
	}
	if p.CodegenUnits > 0 {
		args = append(args, "-C", fmt.Sprintf("codegen-units=%d", p.CodegenUnits))
	}
	switch p.Debuginfo {
	case unit.DebugInfoLineTablesOnly:
		args = append(args, "-C", "debuginfo=1")
	case unit.DebugInfoFull:
		args = append(args, "-C", "debuginfo=2")
	}
	if p.DebugAssertions {
		args = append(args, "-C", "debug-assertions=yes")
	}
	if p.OverflowChecks {
		args = append(args, "-C", "overflow-checks=yes")
	}
	if p.Panic != "" {
		args = append(args, "-C", "panic="+string(p.Panic))
	}
	if p.Rpath {
		args = append(args, "-C", "rpath=yes")
	}
	if p.CodegenBackend != "" {
		args = append(args, "-Z", "codegen-backend="+p.CodegenBackend)
	}
	return args
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
