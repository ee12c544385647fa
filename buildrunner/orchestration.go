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

package buildrunner

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"

	"forgecore/buildscript"
	"forgecore/compfiles"
	"forgecore/depinfo"
	"forgecore/fingerprint"
	"forgecore/forgepb"
	"forgecore/jobqueue"
	"forgecore/layout"
	"forgecore/sbom"
	"forgecore/unit"
)

// freshSentinel marks a Command that buildCommand already determined is
// Fresh (§4.5): no process needs to run, but the unit must still pass
// through the scheduler so its dependents unblock in the usual way.
const freshSentinel = "\x00forge-fresh\x00"

const fingerprintName = "fingerprint"

// pendingFingerprint is the fingerprint buildCommand computed for a unit
// that turned out Dirty; fingerprintExecutor persists it once that unit's
// compile succeeds, never before (§4.5: a failed compile must not be
// mistaken for Fresh on the next call).
type pendingFingerprint struct {
	dir string
	fp  *fingerprint.Fingerprint
}

// buildCommand renders u's compiler invocation (or, for a RunCustomBuild
// unit, its build-script invocation), after deciding whether it can be
// skipped as Fresh.
func (r *BuildRunner) buildCommand(ctx context.Context, u *unit.Unit, graph *unit.UnitGraph) (jobqueue.Command, error) {
	l := r.layoutFor(u.Kind)
	meta := r.Files.Metadata(u)
	fpDir := r.Files.FingerprintDir(u, l)

	sources := trackedSources(u)
	var childEnv map[string]string
	externs := map[string]string{}
	var buildScriptArgs []string

	if u.Mode.IsRunCustomBuild() {
		prev, ok, err := buildscript.ReadSidecar(r.Files.BuildScriptOutputSidecar(u, l))
		if err != nil {
			return jobqueue.Command{}, err
		}
		if ok {
			// A previous run's cargo: output survives being judged Fresh on
			// this one, even against a freshly constructed BuildRunner in a
			// new process, rather than being silently dropped from any
			// dependent's compiler flags (§4.6 step 5, §5).
			r.BuildScripts.Set(meta.Hex(), prev)
			if len(prev.RerunIfChanged) > 0 || len(prev.RerunIfEnvChanged) > 0 {
				sources = append([]string(nil), prev.RerunIfChanged...)
				if len(prev.RerunIfEnvChanged) > 0 {
					childEnv = make(map[string]string, len(prev.RerunIfEnvChanged))
					for _, name := range prev.RerunIfEnvChanged {
						childEnv[name] = os.Getenv(name)
					}
				}
			}
		}
	}

	for _, dep := range graph.Deps(u) {
		if dep.ExternCrateName == "build_script_output" {
			if out, ok := r.BuildScripts.Get(r.Files.Metadata(dep.Child).Hex()); ok {
				buildScriptArgs = append(buildScriptArgs, out.RustcArgs()...)
				if childEnv == nil {
					childEnv = map[string]string{}
				}
				for k, v := range out.Env {
					childEnv[k] = v
				}
				sources = append(sources, out.RerunIfChanged...)
			}
			continue
		}
		if dep.ExternCrateName == "build_script" {
			continue
		}
		path, err := externPath(dep.Child, r.Files, r.layoutFor(dep.Child.Kind), ctx)
		if err != nil {
			return jobqueue.Command{}, err
		}
		externs[dep.ExternCrateName] = path
		sources = append(sources, path)
	}

	fresh := fingerprint.Compute(
		r.Rustc.Version, u.Kind.String(), profileHash(u.Profile), u.Features.Key(),
		childEnv, buildScriptArgs, dedupSorted(sources), childIDs(u, graph),
	)

	stored, invoked, ok, err := r.Fingerprints.Load(fpDir, fingerprintName)
	if err != nil {
		return jobqueue.Command{}, err
	}
	if ok {
		same, err := fingerprint.Decision(stored, fresh, invoked, r.Mtimes, true)
		if err != nil {
			return jobqueue.Command{}, err
		}
		if same {
			return jobqueue.Command{UnitID: u.ID(), Path: freshSentinel}, nil
		}
	}

	r.pendingMu.Lock()
	if r.pending == nil {
		r.pending = make(map[string]*pendingFingerprint)
	}
	r.pending[u.ID()] = &pendingFingerprint{dir: fpDir, fp: fresh}
	r.pendingMu.Unlock()

	if u.Mode.IsRunCustomBuild() {
		return r.buildScriptCommand(ctx, u, l, graph)
	}

	outDir := l.Deps
	ab := &argvBuilder{
		u: u, metaHex: meta.Hex(), depsDir: outDir, incrDir: l.Incremental,
		externs: externs, buildScriptArgs: buildScriptArgs,
	}
	env := envSlice(childEnv)
	return jobqueue.Command{
		UnitID: u.ID(),
		Path:   r.Compiler,
		Args:   ab.Build(),
		Env:    env,
		Dir:    r.WorkspaceRoot,
	}, nil
}

// buildScriptCommand invokes an already-built build-script executable:
// u's sole dependency edge (ExternCrateName "build_script") points at the
// Build-mode Unit whose compiled binary this RunCustomBuild unit actually
// runs (§4.6 step 1-2).
func (r *BuildRunner) buildScriptCommand(ctx context.Context, u *unit.Unit, l *layout.Layout, graph *unit.UnitGraph) (jobqueue.Command, error) {
	outDir := r.Files.BuildScriptOutDir(u, l)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return jobqueue.Command{}, err
	}

	var scriptUnit *unit.Unit
	for _, d := range graph.Deps(u) {
		if d.ExternCrateName == "build_script" {
			scriptUnit = d.Child
			break
		}
	}
	if scriptUnit == nil {
		return jobqueue.Command{}, fmt.Errorf("run-custom-build unit %s has no build_script dependency", u.String())
	}
	scriptPath, err := externPath(scriptUnit, r.Files, r.layoutFor(scriptUnit.Kind), ctx)
	if err != nil {
		return jobqueue.Command{}, err
	}

	info, err := r.Targets.Probe(ctx, u.Kind)
	if err != nil {
		return jobqueue.Command{}, err
	}
	env := buildscript.Env(outDir, u.Kind.Triple(), r.Cfg.HostTriple, u.Profile.Name, u.Profile.OptLevel, featureList(u), info.Cfg)

	return jobqueue.Command{
		UnitID: u.ID(),
		Path:   scriptPath,
		Env:    envSlice(env),
		Dir:    outDir,
	}, nil
}

func envSlice(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func profileHash(p unit.Profile) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%s|%v|%v|%s|%v|%v|%v",
		p.Name, p.OptLevel, p.Lto, p.CodegenUnits, p.Debuginfo, p.SplitDebuginfo,
		p.DebugAssertions, p.OverflowChecks, p.Panic, p.Incremental, p.Rpath, p.Rustflags)
	return fmt.Sprintf("%016x", h.Sum64())
}

func dedupSorted(ss []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func childIDs(u *unit.Unit, graph *unit.UnitGraph) []string {
	var ids []string
	for _, d := range graph.Deps(u) {
		ids = append(ids, d.Child.ID())
	}
	sort.Strings(ids)
	return ids
}

// freshSkipExecutor short-circuits a Command buildCommand already found
// Fresh: no inner layer (fingerprint persistence, build-script parsing,
// the real process) is ever invoked for it.
type freshSkipExecutor struct {
	inner jobqueue.Executor
}

func (e *freshSkipExecutor) Run(ctx context.Context, cmd jobqueue.Command, cb jobqueue.Callbacks) (jobqueue.Result, error) {
	if cmd.Path == freshSentinel {
		if cb.OnRmeta != nil {
			cb.OnRmeta()
		}
		return jobqueue.Result{ExitCode: 0}, nil
	}
	return e.inner.Run(ctx, cmd, cb)
}

// fingerprintExecutor persists the fingerprint buildCommand computed for a
// unit once (and only once) that unit's compile succeeds.
type fingerprintExecutor struct {
	inner jobqueue.Executor
	r     *BuildRunner
}

func (e *fingerprintExecutor) Run(ctx context.Context, cmd jobqueue.Command, cb jobqueue.Callbacks) (jobqueue.Result, error) {
	res, err := e.inner.Run(ctx, cmd, cb)
	if err != nil || res.ExitCode != 0 {
		return res, err
	}
	e.r.pendingMu.Lock()
	pending, ok := e.r.pending[cmd.UnitID]
	if ok {
		delete(e.r.pending, cmd.UnitID)
	}
	e.r.pendingMu.Unlock()
	if ok {
		if werr := e.r.Fingerprints.Write(pending.dir, fingerprintName, pending.fp); werr != nil {
			return res, werr
		}
	}
	return res, nil
}

// buildScriptExecutor parses a finished RunCustomBuild unit's stdout into
// the shared build-script output Store, as soon as its own Run call
// returns, independent of however the scheduler orders the rest of the
// graph (§5).
type buildScriptExecutor struct {
	inner     jobqueue.Executor
	units     map[string]*unit.Unit
	files     *compfiles.Files
	store     *buildscript.Store
	layoutFor func(unit.CompileKind) *layout.Layout
}

func (e *buildScriptExecutor) Run(ctx context.Context, cmd jobqueue.Command, cb jobqueue.Callbacks) (jobqueue.Result, error) {
	u, ok := e.units[cmd.UnitID]
	if !ok || !u.Mode.IsRunCustomBuild() {
		return e.inner.Run(ctx, cmd, cb)
	}

	var stdout []string
	wrapped := jobqueue.Callbacks{
		OnStdoutLine: func(line string) {
			stdout = append(stdout, line)
			if cb.OnStdoutLine != nil {
				cb.OnStdoutLine(line)
			}
		},
		OnStderrLine: cb.OnStderrLine,
		OnRmeta:      cb.OnRmeta,
	}

	res, err := e.inner.Run(ctx, cmd, wrapped)
	if err == nil && res.ExitCode == 0 {
		out := buildscript.Parse(joinLines(stdout))
		e.store.Set(e.files.Metadata(u).Hex(), out)
		l := e.layoutFor(u.Kind)
		if werr := buildscript.WriteSidecar(e.files.BuildScriptOutputSidecar(u, l), out); werr != nil {
			return res, werr
		}
	}
	return res, err
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

// assemble builds the Compilation result from the graph's roots once every
// unit has finished (§4.8 step 11).
func (r *BuildRunner) assemble(ctx context.Context, graph *unit.UnitGraph, units []*unit.Unit, warnings []string, sessionID string) (*Compilation, error) {
	c := &Compilation{
		RootOutputs: map[string][]compfiles.OutputFile{},
		Warnings:    warnings,
	}

	for _, root := range graph.Roots() {
		l := r.layoutFor(root.Kind)
		outs, err := r.Files.Outputs(ctx, root, l)
		if err != nil {
			return nil, err
		}
		c.RootOutputs[root.ID()] = outs
		c.DepsOutput = l.Deps
		c.RootOutput = l.Dest

		var primaryPath string
		for _, o := range outs {
			if o.Hardlink != "" {
				c.Binaries = append(c.Binaries, o.Hardlink)
				primaryPath = o.Hardlink
			}
		}
		if primaryPath == "" && len(outs) > 0 {
			primaryPath = outs[0].Path
		}

		switch root.Mode {
		case unit.ModeTest, unit.ModeBench:
			kind := "test"
			if root.Mode == unit.ModeBench {
				kind = "bench"
			}
			c.Tests = append(c.Tests, TestBinary{UnitID: root.ID(), CrateName: root.CrateName(), Path: primaryPath, Kind: kind})
		case unit.ModeDoctest:
			c.Doctests = append(c.Doctests, Doctest{
				UnitID: root.ID(), CrateName: root.CrateName(),
				FeatureArgs: featureList(root),
			})
		}

		if primaryPath != "" {
			depPath := primaryPath + ".d"
			if werr := depinfo.WriteFile(depPath, []depinfo.Unit{{Output: primaryPath, Sources: trackedSources(root)}}); werr != nil {
				return nil, werr
			}
			c.DepInfoPaths = append(c.DepInfoPaths, depPath)
		}

		if r.Cfg.EnableSBOM && primaryPath != "" {
			rustc := r.Rustc
			rustc.BuildSession = sessionID
			doc := sbom.Build(root, graph, rustc)
			sbomPath := primaryPath + ".cargo-sbom.json"
			f, cerr := os.Create(sbomPath)
			if cerr != nil {
				return nil, cerr
			}
			werr := sbom.WriteTo(f, doc)
			f.Close()
			if werr != nil {
				return nil, werr
			}
			c.SBOMPaths = append(c.SBOMPaths, sbomPath)
		}
	}

	sort.Strings(c.Binaries)

	if r.Cfg.EnableProtoSummary && c.RootOutput != "" {
		if err := os.WriteFile(filepath.Join(c.RootOutput, "compilation.pb"), c.toProto().Marshal(), 0o644); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// toProto renders c's summary fields as a forgepb.Compilation, leaving
// RootOutputs/DepsOutput/RootOutput out: those are local filesystem
// layout, not part of the wire summary a downstream consumer wants (§6).
func (c *Compilation) toProto() *forgepb.Compilation {
	p := &forgepb.Compilation{
		Binaries:     c.Binaries,
		Cdylibs:      c.Cdylibs,
		Warnings:     c.Warnings,
		SBOMPaths:    c.SBOMPaths,
		DepInfoPaths: c.DepInfoPaths,
	}
	for _, t := range c.Tests {
		p.Tests = append(p.Tests, &forgepb.TestBinary{UnitID: t.UnitID, CrateName: t.CrateName, Path: t.Path, Kind: t.Kind})
	}
	for _, d := range c.Doctests {
		p.Doctests = append(p.Doctests, &forgepb.Doctest{
			UnitID: d.UnitID, CrateName: d.CrateName,
			ExternArgs: d.ExternArgs, CfgArgs: d.CfgArgs, FeatureArgs: d.FeatureArgs,
		})
	}
	return p
}
