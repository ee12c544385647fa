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

// Package buildrunner is the mutable orchestrator that owns every other
// component for the duration of one compile() (§4.8): it builds the
// per-kind Layouts, prepares CompilationFiles, checks output collisions,
// schedules the JobQueue, and assembles the Compilation result. Everything
// agnostic of a single build (the Config, the compiler path, the target
// probe table) lives on BuildRunner the way Soong's ui/build.Context holds
// what every subsystem in one invocation needs, reused across calls.
package buildrunner

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"forgecore/buildscript"
	"forgecore/collision"
	"forgecore/compfiles"
	"forgecore/config"
	"forgecore/fingerprint"
	"forgecore/forgeerr"
	"forgecore/forgelog"
	"forgecore/jobqueue"
	"forgecore/jobserver"
	"forgecore/layout"
	"forgecore/pkglock"
	"forgecore/sbom"
	"forgecore/target"
	"forgecore/unit"
)

// BuildRunner owns everything one compile() invocation needs: the resolved
// Config, the compiler to invoke, per-(profile, kind) Layouts, the shared
// CompilationFiles cache, the fingerprint sidecar reader/writer, the
// build-script output store, and the jobserver token pool (§4.8).
type BuildRunner struct {
	Cfg           *config.Config
	Compiler      string
	WorkspaceRoot string
	Rustc         sbom.Rustc

	// CacheLockPath, when non-empty, names the package-cache advisory lock
	// file held shared for the duration of Compile (§5 "Locking").
	CacheLockPath string

	Targets      *target.Table
	Files        *compfiles.Files
	Fingerprints fingerprint.Store
	Mtimes       *fingerprint.MtimeCache
	BuildScripts *buildscript.Store

	pool jobserver.Pool

	// Exec is the real process-running Executor; callers (and tests) may
	// replace it with a double before calling Compile.
	Exec jobqueue.Executor

	layouts   map[string]*layout.Layout
	layoutsMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*pendingFingerprint
}

// New builds a BuildRunner ready to run Compile. The caller owns the
// returned jobserver.Pool's lifetime indirectly: Close is called by
// Shutdown.
func New(cfg *config.Config, compiler, workspaceRoot string, rustc sbom.Rustc) (*BuildRunner, error) {
	pool, err := jobserver.Open(cfg.Jobs)
	if err != nil {
		return nil, err
	}
	targets := &target.Table{Compiler: compiler}
	return &BuildRunner{
		Cfg:           cfg,
		Compiler:      compiler,
		WorkspaceRoot: workspaceRoot,
		Rustc:         rustc,
		Targets:       targets,
		Files:         &compfiles.Files{RustcVersion: rustc.Version, Targets: targets},
		Mtimes:        &fingerprint.MtimeCache{},
		BuildScripts:  &buildscript.Store{},
		pool:          pool,
		Exec:          jobqueue.DefaultExecutor{},
	}, nil
}

// Shutdown releases the jobserver pool's OS resources. Safe to call once,
// after the BuildRunner is done with every Compile it will run.
func (r *BuildRunner) Shutdown() error {
	return r.pool.Close()
}

func (r *BuildRunner) layoutFor(kind unit.CompileKind) *layout.Layout {
	r.layoutsMu.Lock()
	defer r.layoutsMu.Unlock()
	if r.layouts == nil {
		r.layouts = make(map[string]*layout.Layout)
	}
	if l, ok := r.layouts[kind.String()]; ok {
		return l
	}
	profileDir := r.Cfg.DefaultProfile
	if profileDir == "" {
		profileDir = "debug"
	}
	l := layout.New(r.WorkspaceRoot, profileDir, kind)
	r.layouts[kind.String()] = l
	return l
}

// Compile runs the sequence of §4.8 against a frozen UnitGraph and returns
// the assembled Compilation, or the first fatal error encountered.
func (r *BuildRunner) Compile(ctx context.Context, graph *unit.UnitGraph, primary map[unit.PackageID]bool) (*Compilation, error) {
	// sessionID correlates every log line this call emits, and the SBOM
	// sidecar it writes, back to the one compile() invocation that produced
	// them (forgelog.WithSession's doc comment).
	sessionID := uuid.New().String()
	log := forgelog.WithSession(forgelog.For("buildrunner"), sessionID)
	r.Files.Graph = graph

	// Step 1: acquire the package-cache shared lock for the duration of
	// this call (§5 "Locking").
	if r.CacheLockPath != "" {
		lock, err := pkglock.Acquire(ctx, r.CacheLockPath, "buildrunner", pkglock.Shared, func(c forgeerr.LockContention) {
			log.WithField("held_by", c.HeldBy).Warn(c.Error())
		})
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	units := unitSlice(graph.Units())

	// Step 3 (prepare_units) + step 4 (prepare): every distinct kind a unit
	// in this graph uses gets its Layout created.
	seenKinds := map[string]bool{}
	for _, u := range units {
		if seenKinds[u.Kind.String()] {
			continue
		}
		seenKinds[u.Kind.String()] = true
		l := r.layoutFor(u.Kind)
		if err := l.Prepare(); err != nil {
			return nil, err
		}
	}

	// Step 6: output collisions, before anything is scheduled.
	outputsOf := func(u *unit.Unit) ([]compfiles.OutputFile, error) {
		return r.Files.Outputs(ctx, u, r.layoutFor(u.Kind))
	}
	warnings, docCollision, err := collision.Check(units, outputsOf, primary)
	if err != nil {
		return nil, err
	}
	if docCollision != nil {
		return nil, docCollision
	}
	var warningStrings []string
	for _, w := range warnings {
		warningStrings = append(warningStrings, w.String())
		log.Warn(w.String())
	}

	// Step 7: doc fingerprint check. A mismatch invalidates doc/ wholesale
	// rather than risk rustdoc reusing another compiler's stale output.
	for _, u := range units {
		if !u.Mode.IsDocLike() {
			continue
		}
		l := r.layoutFor(u.Kind)
		if err := r.verifyDocFingerprint(l); err != nil {
			return nil, err
		}
		if err := l.PrepareDoc(); err != nil {
			return nil, err
		}
		break
	}

	// Decorate the configured Executor in three layers, innermost first:
	// the real process runner; a layer that persists each unit's
	// fingerprint sidecar once its compile succeeds; a layer that parses a
	// finished RunCustomBuild unit's stdout into BuildScripts, independent
	// of scheduling order (§4.8 step 5 "build the build-script dependency
	// map", §5 "build_script_outputs ... written by the scheduler on each
	// finished RunCustomBuild unit"); and an outermost layer that
	// short-circuits units buildCommand already found Fresh without
	// touching the inner layers at all (§4.5).
	exec := &freshSkipExecutor{inner: &buildScriptExecutor{
		inner:     &fingerprintExecutor{inner: r.Exec, r: r},
		units:     graph.Units(),
		files:     r.Files,
		store:     r.BuildScripts,
		layoutFor: r.layoutFor,
	}}

	cmdFn := func(u *unit.Unit) (jobqueue.Command, error) {
		return r.buildCommand(ctx, u, graph)
	}

	// Step 9: clear memoized mtimes so this call observes each tracked
	// source's current state rather than one memoized by an earlier,
	// now-stale call to Compile on the same BuildRunner. This engine
	// evaluates each unit's CommandFunc lazily as the scheduler spawns it
	// rather than eagerly pre-populating job closures, so clearing up
	// front (instead of between queue-population and queue.Execute, as in
	// the original two-phase sequence) has the same effect: every
	// Mtime lookup during this Compile call is a fresh stat.
	r.Mtimes.Clear()

	queue := jobqueue.Build(r.pool, exec, cmdFn, graph, primary)
	queue.OnMessage = func(m jobqueue.Message) {
		field := "stdout"
		if m.Stderr {
			field = "stderr"
		}
		log.WithField("unit", m.UnitID).WithField("stream", field).Debug(m.Line)
	}

	// Step 10.
	if err := queue.Execute(ctx); err != nil {
		return nil, err
	}

	// Step 11: assemble the Compilation.
	return r.assemble(ctx, graph, units, warningStrings, sessionID)
}

// verifyDocFingerprint compares the persisted rustdoc fingerprint's rustc
// version against the BuildRunner's; on mismatch it wipes doc/ so stale
// output from a different compiler is never mixed with fresh output.
func (r *BuildRunner) verifyDocFingerprint(l *layout.Layout) error {
	const docMarker = "rustdoc-version"
	stored, _, ok, err := r.Fingerprints.Load(l.Fingerprint, docMarker)
	if err != nil {
		return err
	}
	fresh := fingerprint.Compute(r.Rustc.Version, "", "", "", nil, nil, nil, nil)
	if ok && stored.RustcVersion == fresh.RustcVersion {
		return nil
	}
	if err := os.RemoveAll(l.Doc); err != nil && !os.IsNotExist(err) {
		return err
	}
	return r.Fingerprints.Write(l.Fingerprint, docMarker, fresh)
}

// unitSlice renders a UnitGraph's unit map into a slice sorted by unit ID,
// so every caller sees the same deterministic order.
func unitSlice(m map[string]*unit.Unit) []*unit.Unit {
	out := make([]*unit.Unit, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func externPath(u *unit.Unit, files *compfiles.Files, l *layout.Layout, ctx context.Context) (string, error) {
	outs, err := files.Outputs(ctx, u, l)
	if err != nil {
		return "", err
	}
	for _, o := range outs {
		if o.Flavor != target.FlavorDebugInfo && o.Flavor != target.FlavorAuxiliary {
			return o.Path, nil
		}
	}
	if len(outs) == 0 {
		return "", fmt.Errorf("unit %s produced no outputs to extern-link against", u.String())
	}
	return outs[0].Path, nil
}

func trackedSources(u *unit.Unit) []string {
	if u.Target.SrcPath == "" {
		return nil
	}
	return []string{u.Target.SrcPath}
}

func featureList(u *unit.Unit) []string {
	var names []string
	for name, on := range u.Features {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
