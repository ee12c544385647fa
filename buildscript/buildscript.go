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
	"bufio"
	"strings"
	"sync"
)

// Env builds the fixed environment a RunCustomBuild unit's executable is
// launched with (§4.6 step 2): OUT_DIR, TARGET, HOST, PROFILE, OPT_LEVEL,
// CARGO_FEATURE_<FOO>, plus CARGO_CFG_<key> derived from TargetInfo's cfg
// lines.
func Env(outDir, target, host, profile, optLevel string, features []string, cfgLines []string) map[string]string {
	env := map[string]string{
		"OUT_DIR":   outDir,
		"TARGET":    target,
		"HOST":      host,
		"PROFILE":   profile,
		"OPT_LEVEL": optLevel,
	}
	for _, f := range features {
		env["CARGO_FEATURE_"+screamingSnake(f)] = "1"
	}
	for _, line := range cfgLines {
		key, val, hasVal := strings.Cut(line, "=")
		name := "CARGO_CFG_" + screamingSnake(key)
		if hasVal {
			env[name] = strings.Trim(val, `"`)
		} else {
			env[name] = ""
		}
	}
	return env
}

func screamingSnake(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer("-", "_", ".", "_").Replace(s)
}

// Parse reads a build script's stdout line by line and builds an Output
// (§4.6 step 3). Unrecognized "cargo:<key>=" lines are ignored, matching
// the permissive behavior real build scripts rely on for forward
// compatibility.
func Parse(stdout string) *Output {
	out := &Output{Env: make(map[string]string)}
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		rest, ok := strings.CutPrefix(line, "cargo:")
		if !ok {
			continue
		}
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}
		switch key {
		case "rustc-cfg":
			out.Cfgs = append(out.Cfgs, value)
		case "rustc-check-cfg":
			out.CheckCfgs = append(out.CheckCfgs, value)
		case "rustc-link-lib":
			out.Libs = append(out.Libs, value)
		case "rustc-link-search":
			out.LibraryPaths = append(out.LibraryPaths, value)
		case "rustc-env":
			if k, v, ok := strings.Cut(value, "="); ok {
				out.Env[k] = v
			}
		case "rustc-flags":
			out.LinkerArgs = append(out.LinkerArgs, strings.Fields(value)...)
		case "rerun-if-changed":
			out.RerunIfChanged = append(out.RerunIfChanged, value)
		case "rerun-if-env-changed":
			out.RerunIfEnvChanged = append(out.RerunIfEnvChanged, value)
		case "warning":
			out.Warnings = append(out.Warnings, value)
		}
	}
	return out
}

// Store is the shared, mutex-guarded build_script_outputs map of §4.8/§5:
// written for each finished RunCustomBuild unit, read by every subsequent
// compile command that depends on it. Both writers (the build-script
// executor and the compile-command builder) and all readers run on the
// scheduler's per-unit worker goroutines; Set and Get each take the mutex,
// so either may be called from any goroutine.
type Store struct {
	mu      sync.RWMutex
	outputs Outputs
}

// Set records unit metaHex's parsed output. Safe to call from any
// goroutine.
func (s *Store) Set(metaHex string, out *Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outputs == nil {
		s.outputs = make(Outputs)
	}
	s.outputs[metaHex] = out
}

// Get returns the previously stored output for metaHex, if any.
func (s *Store) Get(metaHex string) (*Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[metaHex]
	return out, ok
}
