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

// Package compfiles derives, for a Unit, its metadata hash and output file
// set (§4.3).
package compfiles

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"forgecore/layout"
	"forgecore/target"
	"forgecore/unit"
)

// OutputFile is one artifact a Unit's compile step produces (§3).
type OutputFile struct {
	// Path is the compiler-written file inside deps/.
	Path string
	// Hardlink is the user-visible name in dest/, if any.
	Hardlink string
	// ExportPath is an optional user-requested copy, if any.
	ExportPath string
	Flavor     target.OutputFlavor
}

// Files derives and caches OutputFile sets and Metadata per unit.
type Files struct {
	RustcVersion string
	Targets      *target.Table

	// Graph is the UnitGraph of the Compile call currently in progress,
	// set by BuildRunner before scheduling so Metadata can look up a Doc
	// or DocScrape unit's Check sibling (§4.5 "doc-metadata sharing").
	Graph *unit.UnitGraph

	mu       sync.Mutex
	metadata map[string]Metadata
	outputs  map[string][]OutputFile
}

func (f *Files) init() {
	if f.metadata == nil {
		f.metadata = make(map[string]Metadata)
		f.outputs = make(map[string][]OutputFile)
	}
}

// Metadata returns u's cached 64-bit metadata hash, computing it once.
func (f *Files) Metadata(u *unit.Unit) Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	return f.metadataLocked(u)
}

// metadataLocked assumes f.mu is already held.
func (f *Files) metadataLocked(u *unit.Unit) Metadata {
	if m, ok := f.metadata[u.ID()]; ok {
		return m
	}
	if u.Mode.IsDocLike() {
		if sibling := f.docMetadataSibling(u); sibling != nil {
			m := f.metadataLocked(sibling)
			f.metadata[u.ID()] = m
			return m
		}
	}
	m := Compute(u, f.RustcVersion, u.Kind.Triple())
	f.metadata[u.ID()] = m
	return m
}

// docMetadataSibling finds the unit whose metadata a Doc-like unit u must
// reuse (§4.5 "doc-metadata sharing"): the Check unit of the same
// (package, target) in the current Graph if one exists, else — for a
// DocScrape unit only — the Doc unit of the same (package, target); a
// plain Doc unit with no Check sibling falls back to computing its own
// metadata, same as any other unit.
func (f *Files) docMetadataSibling(u *unit.Unit) *unit.Unit {
	if f.Graph == nil {
		return nil
	}
	var docUnit *unit.Unit
	for _, other := range f.Graph.Units() {
		if other.ID() == u.ID() || !sameCheckTarget(u, other) {
			continue
		}
		if other.Mode == unit.ModeCheck {
			return other
		}
		if other.Mode == unit.ModeDoc {
			docUnit = other
		}
	}
	if u.Mode == unit.ModeDocScrape {
		return docUnit
	}
	return nil
}

// sameCheckTarget reports whether a and b are the same (package, target)
// built for the same compile kind with the same resolved features, the
// granularity doc-metadata sharing matches on.
func sameCheckTarget(a, b *unit.Unit) bool {
	return a.Pkg.ID == b.Pkg.ID && a.Target.Name == b.Target.Name &&
		a.Kind.String() == b.Kind.String() && a.Features.Key() == b.Features.Key()
}

// pkgAndMeta renders the "<crate>-<meta>" directory-name component shared
// by deps/, .fingerprint/ and build/ paths.
func pkgAndMeta(u *unit.Unit, meta Metadata) string {
	return fmt.Sprintf("%s-%s", u.CrateName(), meta.Hex())
}

// Outputs derives (and caches) u's OutputFile set: for every crate-type of
// u.Target, the compiler path in deps/, optionally a hardlink in dest/ for
// user-visible targets, plus any platform-specific auxiliary files (§4.3).
func (f *Files) Outputs(ctx context.Context, u *unit.Unit, l *layout.Layout) ([]OutputFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	if out, ok := f.outputs[u.ID()]; ok {
		return out, nil
	}

	meta := f.metadataLocked(u)
	info, err := f.Targets.Probe(ctx, u.Kind)
	if err != nil {
		return nil, err
	}

	var outs []OutputFile
	for _, ct := range u.Target.CrateTypes {
		ft, ok := info.Files[ct]
		if !ok || !ft.Supported {
			continue
		}
		crateName := u.CrateName()
		compilerPath := filepath.Join(l.Deps, fmt.Sprintf("%s%s-%s%s", ft.Prefix, crateName, meta.Hex(), ft.Suffix))

		var hardlink string
		if u.Target.IsUserVisible {
			hardlink = filepath.Join(l.Dest, fmt.Sprintf("%s%s%s", ft.Prefix, crateName, ft.Suffix))
		}

		flavor := target.FlavorNormal
		if ct != unit.CrateBin && ct.RequiresUpstreamObjects() {
			flavor = target.FlavorLinkable
		}

		outs = append(outs, OutputFile{Path: compilerPath, Hardlink: hardlink, Flavor: flavor})

		for _, extra := range info.Extra(u.Kind.Triple(), ct, ft, u.Target.Kind, crateName) {
			outs = append(outs, OutputFile{
				Path:   compilerPath + extra.Suffix,
				Flavor: extra.Flavor,
			})
		}
	}

	f.outputs[u.ID()] = outs
	return outs, nil
}

// BuildScriptOutDir returns the out-dir path for a RunCustomBuild unit
// (§4.3): build/<pkg>-<meta>/out.
func (f *Files) BuildScriptOutDir(u *unit.Unit, l *layout.Layout) string {
	meta := f.Metadata(u)
	return l.BuildScriptOutDir(pkgAndMeta(u, meta))
}

// BuildScriptOutputSidecar returns the build/<pkg>-<meta>/output path a
// RunCustomBuild unit's declared cargo: directives are persisted to, so a
// later Compile call — even against a freshly constructed BuildRunner in a
// new process — can read back what a previous run rerun-if-changed/
// rerun-if-env-changed declared (§4.6 step 5).
func (f *Files) BuildScriptOutputSidecar(u *unit.Unit, l *layout.Layout) string {
	meta := f.Metadata(u)
	return l.BuildScriptOutputSidecar(pkgAndMeta(u, meta))
}

// FingerprintDir returns .fingerprint/<pkg>-<meta>/ for u.
func (f *Files) FingerprintDir(u *unit.Unit, l *layout.Layout) string {
	meta := f.Metadata(u)
	return l.FingerprintDir(pkgAndMeta(u, meta))
}
