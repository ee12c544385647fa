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

// Package collision detects output-path collisions across a UnitGraph's
// units before scheduling (§4.9). It visits units in a single, stable pass
// the way cc/compdb.go visits a module graph to build its compile-commands
// map: one map keyed by path, filled in order, duplicates surfaced as they
// are found rather than deferred to a second structural pass.
package collision

import (
	"fmt"
	"sort"

	"forgecore/compfiles"
	"forgecore/forgeerr"
	"forgecore/unit"
)

// Warning describes a non-fatal output-path collision between two units
// (§4.9 "any other identical path from two different units").
type Warning struct {
	Path  string
	UnitA string
	UnitB string
	KindA string
	KindB string
}

func (w Warning) String() string {
	msg := fmt.Sprintf("output filename collision: %q is emitted by both %s (%s) and %s (%s)", w.Path, w.UnitA, w.KindA, w.UnitB, w.KindB)
	return msg + "; rename one of the targets, or consider setting `doc = false` if this is a documentation build"
}

type occupant struct {
	unitID string
	kind   string
}

// Check enumerates non-RunCustomBuild units in a deterministic order
// (sorted by id) and reports collisions. outputsOf returns a unit's derived
// output files (CompilationFiles, §4.3); primary names the packages the
// user selected explicitly.
//
// Precedence is fixed (§9 open question): a doc-mode lib<->lib or bin<->bin
// crate-name collision between two primary packages is checked first and,
// if found, returned as a fatal error without computing path warnings.
// Only when no such collision exists are the general path collisions
// enumerated and returned as warnings; this build never fails because of
// them.
func Check(units []*unit.Unit, outputsOf func(*unit.Unit) ([]compfiles.OutputFile, error), primary map[unit.PackageID]bool) ([]Warning, *forgeerr.DocCollision, error) {
	sorted := stableUnits(units)

	if dc := docCollision(sorted, primary); dc != nil {
		return nil, dc, nil
	}

	var warnings []Warning
	seen := make(map[string]occupant)
	for _, u := range sorted {
		if u.Mode.IsRunCustomBuild() {
			continue
		}
		outs, err := outputsOf(u)
		if err != nil {
			return nil, nil, err
		}
		for _, out := range outs {
			for _, path := range candidatePaths(out) {
				prior, ok := seen[path]
				if !ok {
					seen[path] = occupant{unitID: u.String(), kind: u.Target.Kind.String()}
					continue
				}
				if prior.unitID == u.String() {
					continue
				}
				warnings = append(warnings, Warning{
					Path:  path,
					UnitA: prior.unitID,
					UnitB: u.String(),
					KindA: prior.kind,
					KindB: u.Target.Kind.String(),
				})
			}
		}
	}
	return warnings, nil, nil
}

func candidatePaths(out compfiles.OutputFile) []string {
	var paths []string
	if out.Hardlink != "" {
		paths = append(paths, out.Hardlink)
	}
	if out.ExportPath != "" {
		paths = append(paths, out.ExportPath)
	}
	return paths
}

// docCollision implements the doc-mode same-crate-name check: two primary
// packages, each exposing a library (or each a binary) target with the
// same crate name under the same doc-like mode, collide fatally (§4.9,
// §8 scenario 4).
func docCollision(sorted []*unit.Unit, primary map[unit.PackageID]bool) *forgeerr.DocCollision {
	type key struct {
		mode string
		kind unit.TargetKind
		name string
	}
	seen := make(map[key]*unit.Unit)
	for _, u := range sorted {
		if !u.Mode.IsDocLike() || !primary[u.Pkg.ID] {
			continue
		}
		if u.Target.Kind != unit.TargetLib && u.Target.Kind != unit.TargetBin {
			continue
		}
		k := key{mode: u.Mode.String(), kind: u.Target.Kind, name: u.CrateName()}
		prior, ok := seen[k]
		if !ok {
			seen[k] = u
			continue
		}
		if prior.Pkg.ID == u.Pkg.ID {
			continue
		}
		return &forgeerr.DocCollision{
			Path:  fmt.Sprintf("doc/%s/index.html", u.CrateName()),
			UnitA: prior.String(),
			UnitB: u.String(),
		}
	}
	return nil
}

func stableUnits(units []*unit.Unit) []*unit.Unit {
	out := append([]*unit.Unit(nil), units...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
