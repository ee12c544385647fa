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

// Package buildscript models a RunCustomBuild unit's parsed stdout and the
// compiler flags it contributes downstream (§3, §4.6).
package buildscript

// Output is the parsed result of one build script run (§3
// BuildScriptOutput).
type Output struct {
	Cfgs              []string
	CheckCfgs         []string
	Env               map[string]string
	LinkerArgs        []string
	LibraryPaths      []string
	Libs              []string
	Warnings          []string
	RerunIfChanged    []string
	RerunIfEnvChanged []string
}

// RustcArgs renders the --cfg/-l/-L/-C link-arg= flags a downstream compile
// command must add to consume this output (§4.6 step 4).
func (o *Output) RustcArgs() []string {
	var args []string
	for _, cfg := range o.Cfgs {
		args = append(args, "--cfg", cfg)
	}
	for _, cfg := range o.CheckCfgs {
		args = append(args, "--check-cfg", cfg)
	}
	for _, lib := range o.Libs {
		args = append(args, "-l", lib)
	}
	for _, p := range o.LibraryPaths {
		args = append(args, "-L", p)
	}
	for _, a := range o.LinkerArgs {
		args = append(args, "-C", "link-arg="+a)
	}
	return args
}

// Outputs is keyed by a Unit's Metadata hex (§4.6 step 4), shared under a
// mutex between scheduler threads per §5 — see buildscript.Store for the
// concurrency-safe wrapper.
type Outputs map[string]*Output
