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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Unit is the atomic schedulable item (§3): (Package, Target, Profile,
// CompileMode, CompileKind, FeatureSet, rustflags, rustdocflags). Equality
// and hashing use every field; a Unit is immutable once constructed.
type Unit struct {
	Pkg          *Package
	Target       Target
	Profile      Profile
	Mode         CompileMode
	Kind         CompileKind
	Features     FeatureSet
	Rustflags    []string
	Rustdocflags []string

	id string // memoized identity hash, computed once by newUnit/ID
}

// newUnit constructs a Unit and memoizes its identity key. All graph
// construction goes through here so two Units with identical fields always
// compare ID-equal without repeated hashing.
func newUnit(pkg *Package, target Target, profile Profile, mode CompileMode, kind CompileKind, features FeatureSet, rustflags, rustdocflags []string) *Unit {
	u := &Unit{
		Pkg: pkg, Target: target, Profile: profile, Mode: mode,
		Kind: kind, Features: features, Rustflags: rustflags, Rustdocflags: rustdocflags,
	}
	u.id = u.computeID()
	return u
}

func (u *Unit) computeID() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%v|%v|%s|%d|%s|%d|%s|%v|%v|%v|%v|%v|%v|%s|%s",
		u.Pkg.ID.String(), u.Target.Name, u.Target.Kind.String(), u.Mode.String(), u.Kind.String(),
		u.Features.Key(), u.Rustflags, u.Rustdocflags,
		u.Profile.Name, u.Profile.OptLevel, u.Profile.Lto, u.Profile.CodegenUnits,
		u.Profile.Debuginfo, u.Profile.DebugAssertions, u.Profile.OverflowChecks,
		u.Profile.Incremental, u.Profile.Rpath, u.Profile.Panic, u.Profile.Rustflags,
		u.Profile.SplitDebuginfo, u.Profile.CodegenBackend)
	return hex.EncodeToString(h.Sum(nil))[:24]
}

// ID returns the stable identity key used as the UnitGraph map key, the
// scheduler's job id, and the fingerprint sidecar directory name component.
func (u *Unit) ID() string { return u.id }

// CrateName is the name the compiler is invoked with (--crate-name),
// independent of the extern_crate_name a particular dependent uses for it.
func (u *Unit) CrateName() string { return u.Target.Name }

// String renders a short diagnostic form: "name@version (target/mode/kind)".
func (u *Unit) String() string {
	return fmt.Sprintf("%s (%s/%s/%s)", u.Pkg.ID.String(), u.Target.Name, u.Mode, u.Kind)
}

// UnitDep is an edge from a parent Unit to a child Unit (§3).
type UnitDep struct {
	Parent          *Unit
	Child           *Unit
	ExternCrateName string
	Public          bool
}

// RequiresUpstreamObjects reports whether the parent's link step needs the
// child's finished object code (true) as opposed to metadata alone (false).
// Only relevant when both ends are Build-mode units producing rlibs; used
// by rmeta-required precomputation (§4.5).
func (d UnitDep) RequiresUpstreamObjects() bool {
	if d.Parent.Mode != ModeBuild || d.Child.Mode != ModeBuild {
		return true
	}
	for _, ct := range d.Parent.Target.CrateTypes {
		if ct.RequiresUpstreamObjects() {
			return true
		}
	}
	for _, ct := range d.Child.Target.CrateTypes {
		if ct.RequiresUpstreamObjects() {
			return true
		}
	}
	return false
}
