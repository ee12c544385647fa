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

package buildscript

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"forgecore/forgepb"
)

// WriteSidecar persists out at path so a later process — one that never
// ran this build script and so holds no in-memory Store entry for it — can
// still read back its previously declared rerun-if-changed paths and
// rerun-if-env-changed variable names (§4.6 step 5). Mirrors real cargo's
// on-disk "output" file next to a build script's out/ directory.
func WriteSidecar(path string, out *Output) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	wire := &forgepb.BuildScriptOutput{
		Cfgs:              out.Cfgs,
		CheckCfgs:         out.CheckCfgs,
		Env:               out.Env,
		LinkerArgs:        out.LinkerArgs,
		LibraryPaths:      out.LibraryPaths,
		Libs:              out.Libs,
		Warnings:          out.Warnings,
		RerunIfChanged:    out.RerunIfChanged,
		RerunIfEnvChanged: out.RerunIfEnvChanged,
	}
	return renameio.WriteFile(path, wire.Marshal(), 0o644)
}

// ReadSidecar reads back a previously written sidecar. ok is false, with no
// error, if none exists yet or it can't be parsed — an unreadable sidecar
// means "no previous run's directives are known", not a fatal error, same
// as fingerprint.Store.Load treats an unreadable fingerprint as Dirty.
func ReadSidecar(path string) (out *Output, ok bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	wire, err := forgepb.UnmarshalBuildScriptOutput(raw)
	if err != nil {
		return nil, false, nil
	}
	return &Output{
		Cfgs:              wire.Cfgs,
		CheckCfgs:         wire.CheckCfgs,
		Env:               wire.Env,
		LinkerArgs:        wire.LinkerArgs,
		LibraryPaths:      wire.LibraryPaths,
		Libs:              wire.Libs,
		Warnings:          wire.Warnings,
		RerunIfChanged:    wire.RerunIfChanged,
		RerunIfEnvChanged: wire.RerunIfEnvChanged,
	}, true, nil
}
