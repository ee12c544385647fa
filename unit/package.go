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

// PackageID identifies a package by name, version and source, the way an
// external resolver would hand it to us. Opaque to this engine beyond
// string identity and ordering.
type PackageID struct {
	Name    string
	Version string
	Source  string
}

// String renders a stable identity string, used as a map key and in
// diagnostics (collision warnings, cycle errors).
func (p PackageID) String() string {
	if p.Source == "" {
		return p.Name + "@" + p.Version
	}
	return p.Name + "@" + p.Version + " (" + p.Source + ")"
}

// Less gives the deterministic package ordering the UnitGraph builder sorts
// dependency lists by (§4.4).
func (p PackageID) Less(o PackageID) bool {
	if p.Name != o.Name {
		return p.Name < o.Name
	}
	if p.Version != o.Version {
		return p.Version < o.Version
	}
	return p.Source < o.Source
}

// Package is the external, already-resolved package this engine consumes.
// Manifest parsing and dependency resolution producing this value are out
// of scope (§1); the engine only reads it.
type Package struct {
	ID      PackageID
	Targets []Target

	// BuildScript is the custom-build Target for this package, if any.
	BuildScript *Target
}

// LibTarget returns the package's library target, if it has one.
func (p *Package) LibTarget() *Target {
	for i := range p.Targets {
		if p.Targets[i].Kind == TargetLib {
			return &p.Targets[i]
		}
	}
	return nil
}

// FeatureSet is the resolved set of enabled features for a (package, kind)
// pair. Feature resolution itself is an external concern (§4.4); the engine
// only needs the result as part of Unit identity.
type FeatureSet map[string]bool

// Key renders a stable, sorted string for hashing/equality.
func (f FeatureSet) Key() string {
	if len(f) == 0 {
		return ""
	}
	names := make([]string, 0, len(f))
	for name, on := range f {
		if on {
			names = append(names, name)
		}
	}
	return sortedJoin(names)
}

func sortedJoin(ss []string) string {
	// Insertion sort: feature sets are small (single digits to low tens),
	// not worth pulling in sort for a hot identity-key path.
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
