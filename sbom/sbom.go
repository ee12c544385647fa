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

// Package sbom builds the cargo-sbom-style precursor document written
// alongside a unit's artifact (§6): a flat, indexed dependency list a
// downstream SBOM tool can turn into SPDX/CycloneDX without re-walking the
// unit graph itself. Written as a JSON sidecar next to the artifact the way
// android/sbom.go emits its sidecar next to a module's build output.
package sbom

import (
	"encoding/json"
	"io"
	"sort"

	"forgecore/unit"
)

// FormatVersion is the sidecar schema version, bumped only on a breaking
// field change.
const FormatVersion = 1

// BuildType distinguishes an ordinary package dependency from a build
// script invocation pulled into the same dependency closure.
type BuildType string

const (
	BuildTypeNormal BuildType = "normal"
	BuildTypeBuild  BuildType = "build"
)

// Profile is a package-level Profile projection, included on a Package
// entry only when it differs from the root unit's own Profile.
type Profile struct {
	Name            string   `json:"name"`
	OptLevel        string   `json:"opt_level"`
	Lto             string   `json:"lto"`
	CodegenBackend  string   `json:"codegen_backend,omitempty"`
	CodegenUnits    int      `json:"codegen_units"`
	Debuginfo       int      `json:"debuginfo"`
	SplitDebuginfo  string   `json:"split_debuginfo,omitempty"`
	DebugAssertions bool     `json:"debug_assertions"`
	OverflowChecks  bool     `json:"overflow_checks"`
	Rpath           bool     `json:"rpath"`
	Incremental     bool     `json:"incremental"`
	Panic           string   `json:"panic"`
	Rustflags       []string `json:"rustflags,omitempty"`
}

func profileFrom(p unit.Profile) Profile {
	return Profile{
		Name:            p.Name,
		OptLevel:        p.OptLevel,
		Lto:             string(p.Lto),
		CodegenBackend:  p.CodegenBackend,
		CodegenUnits:    p.CodegenUnits,
		Debuginfo:       int(p.Debuginfo),
		SplitDebuginfo:  p.SplitDebuginfo,
		DebugAssertions: p.DebugAssertions,
		OverflowChecks:  p.OverflowChecks,
		Rpath:           p.Rpath,
		Incremental:     p.Incremental,
		Panic:           string(p.Panic),
		Rustflags:       p.Rustflags,
	}
}

// Target is a flattened projection of a unit's Target, used both at the
// top level and (implicitly, via Package.Package) per dependency.
type Target struct {
	Kind       string   `json:"kind"`
	CrateTypes []string `json:"crate_types"`
	Name       string   `json:"name"`
	Edition    string   `json:"edition"`
}

func targetFrom(t unit.Target) Target {
	cts := make([]string, len(t.CrateTypes))
	for i, ct := range t.CrateTypes {
		cts[i] = string(ct)
	}
	return Target{Kind: t.Kind.String(), CrateTypes: cts, Name: t.Name, Edition: t.Edition}
}

// Rustc records the exact compiler identity used for the build, the way
// cargo's own sidecar ties an SBOM to a specific toolchain.
type Rustc struct {
	Version          string `json:"version"`
	Wrapper          string `json:"wrapper,omitempty"`
	WorkspaceWrapper string `json:"workspace_wrapper,omitempty"`
	CommitHash       string `json:"commit_hash,omitempty"`
	Host             string `json:"host"`
	VerboseVersion   string `json:"verbose_version"`

	// BuildSession is the id of the compile() invocation that produced this
	// sidecar, the same id forgelog.WithSession tags every log line from
	// that call with, so a log line and an SBOM sidecar from the same run
	// can be correlated after the fact.
	BuildSession string `json:"build_session,omitempty"`
}

// Package describes one entry in the flattened dependency closure.
// Dependencies is a list of indices into the enclosing Document's Packages
// slice, not a nested tree, so the closure can be walked without recursion
// once written.
type Package struct {
	PackageID       string    `json:"package_id"`
	Package         string    `json:"package"`
	Profile         *Profile  `json:"profile,omitempty"`
	Version         string    `json:"version,omitempty"`
	Features        []string  `json:"features"`
	BuildType       BuildType `json:"build_type"`
	ExternCrateName string    `json:"extern_crate_name"`
	Dependencies    []int     `json:"dependencies"`
}

// Document is the full sidecar body for one unit.
type Document struct {
	FormatVersion int       `json:"format_version"`
	PackageID     string    `json:"package_id"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Source        string    `json:"source"`
	Target        Target    `json:"target"`
	Profile       Profile   `json:"profile"`
	Packages      []Package `json:"packages"`
	Features      []string  `json:"features"`
	Rustc         Rustc     `json:"rustc"`
}

func features(f unit.FeatureSet) []string {
	names := make([]string, 0, len(f))
	for name, on := range f {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Build assembles the Document for u, walking its transitive dependency
// closure through graph. Each distinct Unit appears at most once in
// Packages, regardless of how many parents reach it (§6 "each package
// should appear only once").
func Build(u *unit.Unit, graph *unit.UnitGraph, rustc Rustc) *Document {
	packages := collectPackages(u, graph)

	return &Document{
		FormatVersion: FormatVersion,
		PackageID:     u.Pkg.ID.String(),
		Name:          u.Pkg.ID.Name,
		Version:       u.Pkg.ID.Version,
		Source:        u.Pkg.ID.Source,
		Target:        targetFrom(u.Target),
		Profile:       profileFrom(u.Profile),
		Packages:      packages,
		Features:      features(u.Features),
		Rustc:         rustc,
	}
}

// collectPackages performs a breadth-first walk of u's dependency closure,
// visiting each distinct child Unit exactly once (keyed by Unit.ID), then
// resolves each entry's Dependencies as indices back into the same slice.
// The two-pass shape (collect, then index) mirrors the source material's
// "visited_dependencies has the same order as packages, so an index is
// fine" approach, adapted to Go's lack of a built-in ordered set: a slice
// plus a seen-map stands in for the BTreeSet-backed queue.
func collectPackages(root *unit.Unit, graph *unit.UnitGraph) []Package {
	type queued struct {
		dep    unit.UnitDep
		unitID string
	}

	rootDeps := graph.Deps(root)

	var order []queued
	seen := make(map[string]bool)
	indexOf := make(map[string]int)

	queue := make([]queued, 0, len(rootDeps))
	for _, d := range rootDeps {
		queue = append(queue, queued{dep: d, unitID: d.Child.ID()})
	}

	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		if seen[q.unitID] {
			continue
		}
		seen[q.unitID] = true
		indexOf[q.unitID] = len(order)
		order = append(order, q)

		for _, d := range graph.Deps(q.dep.Child) {
			if !seen[d.Child.ID()] {
				queue = append(queue, queued{dep: d, unitID: d.Child.ID()})
			}
		}
	}

	packages := make([]Package, len(order))
	for i, q := range order {
		packages[i] = packageFrom(q.dep, root.Profile)
	}
	for i, q := range order {
		var indices []int
		for _, d := range graph.Deps(q.dep.Child) {
			if idx, ok := indexOf[d.Child.ID()]; ok {
				indices = append(indices, idx)
			}
		}
		sort.Ints(indices)
		packages[i].Dependencies = indices
	}

	return packages
}

func packageFrom(d unit.UnitDep, rootProfile unit.Profile) Package {
	child := d.Child
	buildType := BuildTypeNormal
	if child.Mode.IsRunCustomBuild() {
		buildType = BuildTypeBuild
	}

	var profile *Profile
	if !child.Profile.Equal(rootProfile) {
		p := profileFrom(child.Profile)
		profile = &p
	}

	return Package{
		PackageID:       child.Pkg.ID.String(),
		Package:         child.Pkg.ID.Name,
		Profile:         profile,
		Version:         child.Pkg.ID.Version,
		Features:        features(child.Features),
		BuildType:       buildType,
		ExternCrateName: d.ExternCrateName,
		Dependencies:    nil,
	}
}

// WriteTo serializes doc as JSON to w, matching the sidecar format the
// build runner writes next to an artifact (§6).
func WriteTo(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	return enc.Encode(doc)
}
