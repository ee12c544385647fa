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

import (
	"sort"

	"forgecore/forgeerr"
)

// DepKind classifies a package-graph edge the way the external resolver
// hands it to us.
type DepKind int

const (
	DepNormal DepKind = iota
	DepBuild
	DepDev
)

// PackageEdge is one edge of the resolved, pre-unit package graph (an
// external collaborator's output, per §1).
type PackageEdge struct {
	From PackageID
	To   PackageID
	Kind DepKind
}

// ResolvedGraph is the input the builder expands into a UnitGraph: a
// resolved package set plus the edges between them.
type ResolvedGraph struct {
	Packages map[PackageID]*Package
	Edges    []PackageEdge
}

func (g *ResolvedGraph) depsOf(id PackageID) []PackageEdge {
	var out []PackageEdge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// RootSelection names one (package, mode, kind) the caller wants built.
type RootSelection struct {
	Pkg  PackageID
	Mode CompileMode
	Kind CompileKind
}

// FeatureResolver resolves the enabled feature set for a (package, kind)
// pair. Feature resolution is per-(package, kind): the same package may
// appear twice if host and target require different feature sets (§4.4).
type FeatureResolver func(pkg PackageID, kind CompileKind) FeatureSet

// ProfileResolver resolves the effective Profile for a package, after any
// per-package overrides (§3 "Profiles may be overridden per package").
type ProfileResolver func(pkg PackageID) Profile

// UnitGraph maps each Unit to its ordered dependency edges (§3). Every
// reachable Unit appears as a key, including leaves with empty dep lists.
type UnitGraph struct {
	units map[string]*Unit
	deps  map[string][]UnitDep
	roots []*Unit
}

// Units returns every unit in the graph, keyed by Unit.ID().
func (g *UnitGraph) Units() map[string]*Unit { return g.units }

// Deps returns u's ordered dependency edges.
func (g *UnitGraph) Deps(u *Unit) []UnitDep { return g.deps[u.ID()] }

// Roots returns the root units the caller selected.
func (g *UnitGraph) Roots() []*Unit { return g.roots }

// Unit looks up a unit by id.
func (g *UnitGraph) Unit(id string) (*Unit, bool) {
	u, ok := g.units[id]
	return u, ok
}

// Builder expands a ResolvedGraph plus root selections into a UnitGraph.
type Builder struct {
	Graph    *ResolvedGraph
	Features FeatureResolver
	Profiles ProfileResolver

	memo     map[string]*Unit
	building map[string]bool // recursion stack, for cycle detection
	order    []string        // visit order, for cycle error reporting
}

// Build runs the rules of §4.4 and returns the frozen UnitGraph, or a
// *forgeerr.Cycle if the resolved package graph (an external input) closes
// a cycle through build/dev dependencies.
func (b *Builder) Build(roots []RootSelection) (*UnitGraph, error) {
	b.memo = make(map[string]*Unit)
	b.building = make(map[string]bool)

	g := &UnitGraph{
		units: make(map[string]*Unit),
		deps:  make(map[string][]UnitDep),
	}

	for _, r := range roots {
		pkg, ok := b.Graph.Packages[r.Pkg]
		if !ok {
			continue
		}
		target := pkg.LibTarget()
		if target == nil && len(pkg.Targets) > 0 {
			target = &pkg.Targets[0]
		}
		if target == nil {
			continue
		}
		u, err := b.unitFor(g, pkg, *target, r.Mode, r.Kind)
		if err != nil {
			return nil, err
		}
		g.roots = append(g.roots, u)
	}
	return g, nil
}

func memoKey(pkg PackageID, targetName string, mode CompileMode, kind CompileKind, features string) string {
	return pkg.String() + "\x00" + targetName + "\x00" + mode.String() + "\x00" + kind.String() + "\x00" + features
}

// unitFor builds (memoized) the Unit for (pkg, target, mode, kind) and
// recursively its dependency edges, inserting both into g.
func (b *Builder) unitFor(g *UnitGraph, pkg *Package, target Target, mode CompileMode, kind CompileKind) (*Unit, error) {
	// Proc-macro targets are always Host-kind Build mode regardless of the
	// requested kind (§4.4).
	if target.ProcMacro {
		kind = Host
		mode = ModeBuild
	}

	features := b.Features(pkg.ID, kind)
	key := memoKey(pkg.ID, target.Name, mode, kind, features.Key())
	if u, ok := b.memo[key]; ok {
		return u, nil
	}
	if b.building[key] {
		from := pkg.ID.String()
		if n := len(b.order); n > 0 {
			from = b.order[n-1]
		}
		return nil, &forgeerr.Cycle{From: from, To: pkg.ID.String()}
	}
	b.building[key] = true
	b.order = append(b.order, pkg.ID.String())
	defer func() {
		delete(b.building, key)
		b.order = b.order[:len(b.order)-1]
	}()

	profile := b.Profiles(pkg.ID)
	u := newUnit(pkg, target, profile, mode, kind, features, profile.Rustflags, nil)
	b.memo[key] = u
	g.units[u.ID()] = u

	var deps []UnitDep

	childMode := mode
	if mode == ModeCheck {
		childMode = ModeCheck
	} else if mode == ModeBuild || mode == ModeRunCustomBuild {
		childMode = ModeBuild
	}

	for _, edge := range b.Graph.depsOf(pkg.ID) {
		childPkg, ok := b.Graph.Packages[edge.To]
		if !ok {
			continue
		}
		childKind := kind
		// Build-dependencies force Host kind (§4.4).
		if edge.Kind == DepBuild {
			childKind = Host
		}
		if edge.Kind == DepDev && !mode.IsAnyTest() {
			continue // dev-dependencies only matter for test/bench/doctest roots
		}

		childTarget := childPkg.LibTarget()
		if childTarget == nil {
			continue
		}

		var childDepMode CompileMode
		switch mode {
		case ModeDoc, ModeDocScrape:
			// Doc-mode units depend on Check units of their library
			// dependencies, per the rmeta-only optimization (§4.4, §4.5).
			childDepMode = ModeCheck
		case ModeDoctest:
			childDepMode = ModeBuild
		default:
			childDepMode = childMode
		}

		child, err := b.unitFor(g, childPkg, *childTarget, childDepMode, childKind)
		if err != nil {
			return nil, err
		}

		extern := childTarget.Name
		deps = append(deps, UnitDep{
			Parent:          u,
			Child:           child,
			ExternCrateName: extern,
			Public:          edge.Kind == DepNormal,
		})
	}

	// A build script's Build unit becomes a RunCustomBuild unit's sole
	// compile dependency (§3 invariant); the owning target in turn depends
	// on that RunCustomBuild unit.
	if pkg.BuildScript != nil && mode != ModeRunCustomBuild && !target.ProcMacro {
		scriptUnit, err := b.unitFor(g, pkg, *pkg.BuildScript, ModeBuild, Host)
		if err != nil {
			return nil, err
		}
		runKey := memoKey(pkg.ID, "run-"+pkg.BuildScript.Name, ModeRunCustomBuild, kind, features.Key())
		run, ok := b.memo[runKey]
		if !ok {
			run = newUnit(pkg, *pkg.BuildScript, profile, ModeRunCustomBuild, kind, features, nil, nil)
			b.memo[runKey] = run
			g.units[run.ID()] = run
			g.deps[run.ID()] = []UnitDep{{Parent: run, Child: scriptUnit, ExternCrateName: "build_script", Public: false}}
		}
		deps = append(deps, UnitDep{Parent: u, Child: run, ExternCrateName: "build_script_output", Public: false})
	}

	sortDeps(deps)
	g.deps[u.ID()] = deps
	return u, nil
}

// sortDeps gives the deterministic ordering §4.4 requires: dependency
// lists are sorted by (package-id, target-name, mode).
func sortDeps(deps []UnitDep) {
	sort.SliceStable(deps, func(i, j int) bool {
		a, b := deps[i].Child, deps[j].Child
		if a.Pkg.ID != b.Pkg.ID {
			return a.Pkg.ID.Less(b.Pkg.ID)
		}
		if a.Target.Name != b.Target.Name {
			return a.Target.Name < b.Target.Name
		}
		return a.Mode < b.Mode
	})
}
