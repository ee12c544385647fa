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

// Package forgeerr defines the engine's error kinds (§7 of the design).
//
// Every kind is a struct safe to use with errors.As. The kinds that wrap an
// underlying cause (Prepare, Probe, Jobserver, Config) also implement
// Unwrap.
package forgeerr

import "fmt"

// Prepare wraps a filesystem failure while preparing build directories.
type Prepare struct {
	Dir string
	Err error
}

func (e *Prepare) Error() string {
	return fmt.Sprintf("couldn't prepare build directories at %s: %v", e.Dir, e.Err)
}

func (e *Prepare) Unwrap() error { return e.Err }

// Probe wraps a failure invoking the compiler to learn target-specific
// information (sysroot, cfg lines, crate-type filenames).
type Probe struct {
	Kind string // host or target triple being probed
	Err  error
}

func (e *Probe) Error() string {
	return fmt.Sprintf("failed to run compiler to learn about %s: %v", e.Kind, e.Err)
}

func (e *Probe) Unwrap() error { return e.Err }

// Compile is a per-unit compiler failure. The first one encountered in a
// build is retained; later failures are dropped by the scheduler.
type Compile struct {
	UnitID    string
	ExitCode  int
	Stderr    string
	CrateName string
}

func (e *Compile) Error() string {
	return fmt.Sprintf("could not compile %s (unit %s), exit code %d", e.CrateName, e.UnitID, e.ExitCode)
}

// DocCollision is fatal: two primary packages expose a library target with
// the same crate name under the same compile kind in doc mode.
type DocCollision struct {
	Path  string
	UnitA string
	UnitB string
}

func (e *DocCollision) Error() string {
	return fmt.Sprintf("document output %q is shared between %s and %s; rename one of the targets or set doc = false", e.Path, e.UnitA, e.UnitB)
}

// Jobserver indicates the token pipe could not be created or a token could
// not be acquired. Always fatal.
type Jobserver struct {
	Err error
}

func (e *Jobserver) Error() string {
	return fmt.Sprintf("failed to create jobserver: %v", e.Err)
}

func (e *Jobserver) Unwrap() error { return e.Err }

// Cycle reports the exact edge that closes a cycle in a UnitGraph. Graphs
// built by this engine are acyclic by construction, but misresolved
// build/dev dependencies supplied by the external resolver can still close
// one; this is how the builder reports it precisely.
type Cycle struct {
	From string
	To   string
}

func (e *Cycle) Error() string {
	return fmt.Sprintf("dependency cycle: %s depends on %s which (transitively) depends back on %s", e.From, e.To, e.From)
}

// LockContention is reported, not fatal: a build waited on the package-cache
// lock held by another actor.
type LockContention struct {
	HeldBy string
	Waited string
}

func (e *LockContention) Error() string {
	return fmt.Sprintf("waiting on package cache lock held by %s (waited %s)", e.HeldBy, e.Waited)
}

// Config wraps a failure loading or evaluating build configuration: a
// malformed override file, or a Starlark per-package profile-override
// script that failed to evaluate.
type Config struct {
	Package string
	Err     error
}

func (e *Config) Error() string {
	if e.Package == "" {
		return fmt.Sprintf("invalid build configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid profile override for package %s: %v", e.Package, e.Err)
}

func (e *Config) Unwrap() error { return e.Err }
