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

// Package config holds the build-wide configuration this engine threads
// through every component (§A.3): job count, the host/target triples to
// build for, base profile definitions plus per-package overrides, global
// rustflags, and feature toggles (SBOM sidecars, doc-scrape units). One
// Config is built once per invocation and handed to every collaborator
// the way Soong's `ui/build` threads a single `Config` through its
// context.
package config

import (
	"forgecore/unit"
)

// Config is the resolved, immutable build configuration for one
// invocation.
type Config struct {
	// Jobs bounds parallelism; 0 means "use every inherited jobserver
	// token, or fall back to GOMAXPROCS locally" (§4.7, §5).
	Jobs int

	// HostTriple is the compiler's host triple, passed into build-script
	// environments. Targets records the --target triples given on the
	// command line; the engine does not read it, since each root's compile
	// kind comes from its RootSelection.
	HostTriple string
	Targets    []string

	// BaseProfiles holds named profile definitions ("dev", "release", ...)
	// a package's Profile resolves from before any override is applied.
	BaseProfiles map[string]unit.Profile

	// DefaultProfile names which entry of BaseProfiles applies when a
	// package specifies none explicitly.
	DefaultProfile string

	// Rustflags are appended to every unit's compiler invocation, ahead of
	// any unit-specific flags (§4 "Compiler invocation").
	Rustflags []string

	// Overrides holds each package's resolved profile-field overrides,
	// already evaluated (by EvalStarlarkOverride or ParseKeyValueOverride)
	// into a flat map the Resolver applies on top of
	// BaseProfiles.
	Overrides map[string]PackageOverride

	// EnableSBOM and EnableDocScrape are the feature toggles spec.md leaves
	// as build-runner options (§4.8, §6). EnableSBOM turns on the SBOM
	// sidecars. EnableDocScrape is not read by the engine: doc-scrape units
	// are built only when a root selects that mode.
	EnableSBOM      bool
	EnableDocScrape bool

	// EnableProtoSummary additionally writes the whole Compilation's summary
	// as one forgepb.Compilation sidecar (compilation.pb in RootOutput)
	// next to the JSON/SBOM forms
	// (§6), the way Soong's ui/metrics writes soong_metrics_proto next to
	// its human-readable build summary.
	EnableProtoSummary bool
}

// PackageOverride is one package's resolved field-level profile override,
// produced either by evaluating a Starlark snippet (starlark.go) or by
// parsing a plain key/value override block. Only fields actually set are
// applied; the zero value of each pointer means "inherit from the base
// profile".
type PackageOverride struct {
	OptLevel        *string
	Lto             *unit.LtoMode
	CodegenUnits    *int
	Debuginfo       *unit.DebugInfoLevel
	DebugAssertions *bool
	OverflowChecks  *bool
	Panic           *unit.PanicStrategy
	Incremental     *bool
	Rpath           *bool
}

// Resolver adapts a Config into a unit.ProfileResolver (§4.4): the
// function shape the UnitGraph builder calls once per package.
type Resolver struct {
	Cfg *Config
}

// Resolve implements unit.ProfileResolver.
func (r Resolver) Resolve(pkg unit.PackageID) unit.Profile {
	base := r.Cfg.BaseProfiles[r.Cfg.DefaultProfile]
	base.Name = r.Cfg.DefaultProfile
	base.Rustflags = append(append([]string(nil), r.Cfg.Rustflags...), base.Rustflags...)

	override, ok := r.Cfg.Overrides[pkg.Name]
	if !ok {
		return base
	}
	return applyOverride(base, override)
}

func applyOverride(base unit.Profile, o PackageOverride) unit.Profile {
	if o.OptLevel != nil {
		base.OptLevel = *o.OptLevel
	}
	if o.Lto != nil {
		base.Lto = *o.Lto
	}
	if o.CodegenUnits != nil {
		base.CodegenUnits = *o.CodegenUnits
	}
	if o.Debuginfo != nil {
		base.Debuginfo = *o.Debuginfo
	}
	if o.DebugAssertions != nil {
		base.DebugAssertions = *o.DebugAssertions
	}
	if o.OverflowChecks != nil {
		base.OverflowChecks = *o.OverflowChecks
	}
	if o.Panic != nil {
		base.Panic = *o.Panic
	}
	if o.Incremental != nil {
		base.Incremental = *o.Incremental
	}
	if o.Rpath != nil {
		base.Rpath = *o.Rpath
	}
	return base
}
