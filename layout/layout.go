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

// Package layout computes and prepares the on-disk directory tree per
// compile kind (§4.2): dest/, deps/, build/, doc/, .fingerprint/,
// incremental/, examples/.
package layout

import (
	"os"
	"path/filepath"

	"forgecore/forgeerr"
	"forgecore/unit"
)

// Layout is the prepared directory tree for one (profile, CompileKind)
// pair. Host and target layouts are distinct subtrees (§4.2).
type Layout struct {
	Root        string // <workspace>/target/<profile>[/<triple>]
	Dest        string
	Deps        string
	Build       string
	Examples    string
	Doc         string
	Fingerprint string
	Incremental string
}

// New computes (but does not create) the Layout for one profile/kind.
func New(workspaceRoot, profileDir string, kind unit.CompileKind) *Layout {
	root := filepath.Join(workspaceRoot, "target", profileDir)
	if !kind.IsHost() {
		root = filepath.Join(root, kind.Triple())
	}
	return &Layout{
		Root:        root,
		Dest:        filepath.Join(root, "dest"),
		Deps:        filepath.Join(root, "deps"),
		Build:       filepath.Join(root, "build"),
		Examples:    filepath.Join(root, "examples"),
		Doc:         filepath.Join(root, "doc"),
		Fingerprint: filepath.Join(root, ".fingerprint"),
		Incremental: filepath.Join(root, "incremental"),
	}
}

// Prepare creates every directory in the tree. It is idempotent; concurrent
// preparation of the SAME Layout is not supported and must happen before
// scheduling begins (§4.2).
func (l *Layout) Prepare() error {
	dirs := []string{l.Dest, l.Deps, l.Build, l.Examples, l.Fingerprint, l.Incremental}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return &forgeerr.Prepare{Dir: d, Err: err}
		}
	}
	return nil
}

// PrepareDoc additionally creates doc/, only needed for Doc-mode builds.
func (l *Layout) PrepareDoc() error {
	if err := os.MkdirAll(l.Doc, 0o755); err != nil {
		return &forgeerr.Prepare{Dir: l.Doc, Err: err}
	}
	return nil
}

// BuildScriptOutDir returns the build/<pkg>-<meta>/out path for a
// RunCustomBuild unit's build script (§4.3).
func (l *Layout) BuildScriptOutDir(pkgAndMeta string) string {
	return filepath.Join(l.Build, pkgAndMeta, "out")
}

// BuildScriptOutputSidecar returns the build/<pkg>-<meta>/output path
// recording a RunCustomBuild unit's declared cargo: directives from its
// last run, read back on later runs (even in a fresh process) to decide
// whether the script itself is still Fresh (§4.6 step 5).
func (l *Layout) BuildScriptOutputSidecar(pkgAndMeta string) string {
	return filepath.Join(l.Build, pkgAndMeta, "output")
}

// FingerprintDir returns .fingerprint/<pkg>-<meta>/ for a unit.
func (l *Layout) FingerprintDir(pkgAndMeta string) string {
	return filepath.Join(l.Fingerprint, pkgAndMeta)
}
