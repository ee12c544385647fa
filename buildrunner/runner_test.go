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

package buildrunner_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"forgecore/buildrunner"
	"forgecore/config"
	"forgecore/forgepb"
	"forgecore/jobqueue"
	"forgecore/jobqueue/jobqueuetest"
	"forgecore/sbom"
	"forgecore/unit"
)

// stubProber answers every target.Table.Probe call with a fixed, minimal
// --print=sysroot/--print=cfg/--print=file-names transcript, avoiding a
// real compiler invocation the way jobqueuetest.Executor avoids a real
// process per unit.
type stubProber struct{}

func (stubProber) Probe(ctx context.Context, compiler string, args []string) (string, string, error) {
	lines := []string{
		"/usr/lib/rustlib",
		"debug_assertions",
		"libforge_probe.rlib",
		"libforge_probe.so",
		"libforge_probe.so",
		"libforge_probe.a",
		"forge_probe",
		"libforge_probe.so",
	}
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out, "", nil
}

func writeSrc(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("fn main() {}"), 0o644))
}

func libGraph(t *testing.T, root string) (*unit.UnitGraph, map[unit.PackageID]bool) {
	t.Helper()
	leafID := unit.PackageID{Name: "leaf", Version: "1.0.0"}
	rootID := unit.PackageID{Name: "demo", Version: "0.1.0"}

	leafSrc := filepath.Join(root, "leaf", "src", "lib.rs")
	writeSrc(t, leafSrc)
	rootSrc := filepath.Join(root, "demo", "src", "main.rs")
	writeSrc(t, rootSrc)

	leaf := &unit.Package{
		ID: leafID,
		Targets: []unit.Target{{
			Name: "leaf", Kind: unit.TargetLib, CrateTypes: []unit.CrateType{unit.CrateRlib},
			SrcPath: leafSrc, Edition: "2021",
		}},
	}
	demo := &unit.Package{
		ID: rootID,
		Targets: []unit.Target{{
			Name: "demo", Kind: unit.TargetBin, CrateTypes: []unit.CrateType{unit.CrateBin},
			SrcPath: rootSrc, Edition: "2021", IsUserVisible: true,
		}},
	}

	resolved := &unit.ResolvedGraph{
		Packages: map[unit.PackageID]*unit.Package{leafID: leaf, rootID: demo},
		Edges:    []unit.PackageEdge{{From: rootID, To: leafID, Kind: unit.DepNormal}},
	}
	profile := unit.Profile{Name: "dev", OptLevel: "0", Panic: unit.PanicUnwind}
	b := &unit.Builder{
		Graph:    resolved,
		Features: func(unit.PackageID, unit.CompileKind) unit.FeatureSet { return nil },
		Profiles: func(unit.PackageID) unit.Profile { return profile },
	}
	graph, err := b.Build([]unit.RootSelection{{Pkg: rootID, Mode: unit.ModeBuild, Kind: unit.Host}})
	require.NoError(t, err)
	return graph, map[unit.PackageID]bool{rootID: true}
}

func newTestRunner(t *testing.T, root string) *buildrunner.BuildRunner {
	t.Helper()
	cfg := &config.Config{Jobs: 2, DefaultProfile: "debug"}
	r, err := buildrunner.New(cfg, "rustc", root, sbom.Rustc{Version: "1.80.0"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Shutdown()) })
	r.Targets.Prober = stubProber{}
	return r
}

func TestCompile_BuildsRootAndDependencyAndProducesOutputs(t *testing.T) {
	root := t.TempDir()
	graph, primary := libGraph(t, root)
	r := newTestRunner(t, root)

	mock := &jobqueuetest.Executor{Default: jobqueuetest.Behavior{ExitCode: 0}}
	r.Exec = mock

	comp, err := r.Compile(context.Background(), graph, primary)
	require.NoError(t, err)
	require.NotEmpty(t, comp.Binaries)
	require.Len(t, mock.Started, 2, "both the root bin and its lib dependency must be scheduled")
}

func TestCompile_WritesProtoSummaryWhenEnabled(t *testing.T) {
	root := t.TempDir()
	graph, primary := libGraph(t, root)
	r := newTestRunner(t, root)
	r.Cfg.EnableProtoSummary = true

	mock := &jobqueuetest.Executor{Default: jobqueuetest.Behavior{ExitCode: 0}}
	r.Exec = mock

	comp, err := r.Compile(context.Background(), graph, primary)
	require.NoError(t, err)
	require.NotEmpty(t, comp.RootOutput)

	data, err := os.ReadFile(filepath.Join(comp.RootOutput, "compilation.pb"))
	require.NoError(t, err)

	parsed, err := forgepb.UnmarshalCompilation(data)
	require.NoError(t, err)
	require.Equal(t, comp.Binaries, parsed.Binaries)
}

func TestCompile_SecondCallSkipsFreshUnits(t *testing.T) {
	root := t.TempDir()
	graph, primary := libGraph(t, root)
	r := newTestRunner(t, root)

	mock := &jobqueuetest.Executor{Default: jobqueuetest.Behavior{ExitCode: 0}}
	r.Exec = mock
	_, err := r.Compile(context.Background(), graph, primary)
	require.NoError(t, err)
	require.Len(t, mock.Started, 2)

	graph2, primary2 := graph, primary
	mock2 := &jobqueuetest.Executor{Default: jobqueuetest.Behavior{ExitCode: 0}}
	r.Exec = mock2
	_, err = r.Compile(context.Background(), graph2, primary2)
	require.NoError(t, err)
	require.Empty(t, mock2.Started, "unchanged sources must be Fresh and never spawn a process")
}

func TestCompile_FailedCompileIsNotFreshOnNextCall(t *testing.T) {
	root := t.TempDir()
	graph, primary := libGraph(t, root)
	r := newTestRunner(t, root)

	mock := &jobqueuetest.Executor{Behaviors: map[string]jobqueuetest.Behavior{}}
	for id, u := range graph.Units() {
		if u.Target.Kind == unit.TargetBin {
			mock.Behaviors[id] = jobqueuetest.Behavior{ExitCode: 1, Stderr: "boom"}
		} else {
			mock.Behaviors[id] = jobqueuetest.Behavior{ExitCode: 0}
		}
	}
	r.Exec = mock

	_, err := r.Compile(context.Background(), graph, primary)
	require.Error(t, err)

	graph2, primary2 := libGraph(t, root)
	mock2 := &jobqueuetest.Executor{Default: jobqueuetest.Behavior{ExitCode: 0}}
	r.Exec = mock2
	_, err = r.Compile(context.Background(), graph2, primary2)
	require.NoError(t, err)
	require.NotEmpty(t, mock2.Started, "the previously failed unit must not be mistaken for Fresh")
}

// buildScriptGraph builds a one-package graph (withbs) whose lib target has
// a build.rs, returning the graph alongside the RunCustomBuild and lib unit
// ids so tests can script their behavior and assert on what each receives.
func buildScriptGraph(t *testing.T, root string) (graph *unit.UnitGraph, primary map[unit.PackageID]bool, runCustomBuildID, libID string) {
	t.Helper()
	buildSrc := filepath.Join(root, "withbs", "build.rs")
	writeSrc(t, buildSrc)
	libSrc := filepath.Join(root, "withbs", "src", "lib.rs")
	writeSrc(t, libSrc)

	pkgID := unit.PackageID{Name: "withbs", Version: "1.0.0"}
	pkg := &unit.Package{
		ID: pkgID,
		Targets: []unit.Target{{
			Name: "withbs", Kind: unit.TargetLib, CrateTypes: []unit.CrateType{unit.CrateRlib},
			SrcPath: libSrc, Edition: "2021",
		}},
		BuildScript: &unit.Target{
			Name: "build-script-build", Kind: unit.TargetCustomBuild, CrateTypes: []unit.CrateType{unit.CrateBin},
			SrcPath: buildSrc, Edition: "2021",
		},
	}
	resolved := &unit.ResolvedGraph{Packages: map[unit.PackageID]*unit.Package{pkgID: pkg}}
	profile := unit.Profile{Name: "dev", OptLevel: "0", Panic: unit.PanicUnwind}
	b := &unit.Builder{
		Graph:    resolved,
		Features: func(unit.PackageID, unit.CompileKind) unit.FeatureSet { return nil },
		Profiles: func(unit.PackageID) unit.Profile { return profile },
	}
	g, err := b.Build([]unit.RootSelection{{Pkg: pkgID, Mode: unit.ModeBuild, Kind: unit.Host}})
	require.NoError(t, err)

	for id, u := range g.Units() {
		switch {
		case u.Mode.IsRunCustomBuild():
			runCustomBuildID = id
		case u.Target.Kind == unit.TargetLib:
			libID = id
		}
	}
	require.NotEmpty(t, runCustomBuildID)
	require.NotEmpty(t, libID)
	return g, map[unit.PackageID]bool{pkgID: true}, runCustomBuildID, libID
}

func TestCompile_RunCustomBuildOutputReachesDependent(t *testing.T) {
	root := t.TempDir()
	graph, primary, runCustomBuildID, libID := buildScriptGraph(t, root)
	r := newTestRunner(t, root)

	capture := &argvCapturingExecutor{
		inner: &jobqueuetest.Executor{
			Default: jobqueuetest.Behavior{ExitCode: 0},
			Behaviors: map[string]jobqueuetest.Behavior{
				runCustomBuildID: {ExitCode: 0, Stdout: []string{
					`cargo:rustc-cfg=has_foo`,
					`cargo:rustc-link-lib=foo`,
				}},
			},
		},
		args: map[string][]string{},
	}
	r.Exec = capture

	_, err := r.Compile(context.Background(), graph, primary)
	require.NoError(t, err)

	libArgs := capture.args[libID]
	require.Contains(t, libArgs, "has_foo")
	require.Contains(t, libArgs, "-l")
	require.Contains(t, libArgs, "foo")
}

// stabilizeWithDirectives runs the withbs build script twice, emitting the
// given cargo: stdout lines both times, and returns a BuildRunner whose
// on-disk fingerprint already reflects the declared directives. The first
// run has no sidecar yet, so its own fingerprint still tracks the default
// package source (build.rs); only from the second run onward does
// buildCommand find the sidecar and switch to tracking the declared
// rerun-if-changed/rerun-if-env-changed set — exactly mirroring real
// cargo's "must run once before its own declarations take effect" behavior
// (§4.6 step 5). Callers that want to test a rerun decision make their
// environment change, then issue one more Compile call themselves.
func stabilizeWithDirectives(t *testing.T, root string, stdout []string) (graph *unit.UnitGraph, primary map[unit.PackageID]bool, runCustomBuildID, libID string, r *buildrunner.BuildRunner) {
	t.Helper()
	for i := 0; i < 2; i++ {
		graph, primary, runCustomBuildID, libID = buildScriptGraph(t, root)
		if r == nil {
			r = newTestRunner(t, root)
		}
		r.Exec = &jobqueuetest.Executor{
			Default: jobqueuetest.Behavior{ExitCode: 0},
			Behaviors: map[string]jobqueuetest.Behavior{
				runCustomBuildID: {ExitCode: 0, Stdout: stdout},
			},
		}
		_, err := r.Compile(context.Background(), graph, primary)
		require.NoError(t, err)
	}
	return graph, primary, runCustomBuildID, libID, r
}

func TestCompile_RunCustomBuildNotRerunWhenOnlyUnrelatedSourceChanges(t *testing.T) {
	root := t.TempDir()
	tracked := filepath.Join(root, "withbs", "tracked.txt")
	writeSrc(t, tracked)
	_, _, runCustomBuildID, _, r := stabilizeWithDirectives(t, root, []string{
		`cargo:rerun-if-changed=` + tracked,
	})

	// build.rs itself is no longer the default tracked source once the
	// script declares its own rerun-if-changed paths; touching it must not
	// force a rerun.
	require.NoError(t, os.Chtimes(filepath.Join(root, "withbs", "build.rs"), laterTime(), laterTime()))

	graph2, primary2, _, _ := buildScriptGraph(t, root)
	mock2 := &jobqueuetest.Executor{Default: jobqueuetest.Behavior{ExitCode: 0}}
	r.Exec = mock2
	_, err := r.Compile(context.Background(), graph2, primary2)
	require.NoError(t, err)
	require.NotContains(t, mock2.Started, runCustomBuildID, "an unrelated source change must not rerun a build script that declared its own rerun-if-changed paths")
}

func TestCompile_RunCustomBuildRerunsWhenDeclaredPathChanges(t *testing.T) {
	root := t.TempDir()
	tracked := filepath.Join(root, "withbs", "tracked.txt")
	writeSrc(t, tracked)
	_, _, runCustomBuildID, _, r := stabilizeWithDirectives(t, root, []string{
		`cargo:rerun-if-changed=` + tracked,
	})

	require.NoError(t, os.Chtimes(tracked, laterTime(), laterTime()))

	graph2, primary2, _, _ := buildScriptGraph(t, root)
	mock2 := &jobqueuetest.Executor{Default: jobqueuetest.Behavior{ExitCode: 0}}
	r.Exec = mock2
	_, err := r.Compile(context.Background(), graph2, primary2)
	require.NoError(t, err)
	require.Contains(t, mock2.Started, runCustomBuildID, "a declared rerun-if-changed path advancing must force a rerun")
}

func TestCompile_RunCustomBuildRerunsWhenDeclaredEnvVarChanges(t *testing.T) {
	root := t.TempDir()
	t.Setenv("FORGE_TEST_RERUN_VAR", "before")
	_, _, runCustomBuildID, _, r := stabilizeWithDirectives(t, root, []string{
		`cargo:rerun-if-env-changed=FORGE_TEST_RERUN_VAR`,
	})

	t.Setenv("FORGE_TEST_RERUN_VAR", "after")

	graph2, primary2, _, _ := buildScriptGraph(t, root)
	mock2 := &jobqueuetest.Executor{Default: jobqueuetest.Behavior{ExitCode: 0}}
	r.Exec = mock2
	_, err := r.Compile(context.Background(), graph2, primary2)
	require.NoError(t, err)
	require.Contains(t, mock2.Started, runCustomBuildID, "a declared rerun-if-env-changed variable changing must force a rerun")
}

func TestCompile_RunCustomBuildOutputSurvivesNewBuildRunnerInstance(t *testing.T) {
	root := t.TempDir()
	_, _, runCustomBuildID, libID, _ := stabilizeWithDirectives(t, root, []string{
		`cargo:rustc-cfg=has_foo`,
		`cargo:rustc-link-lib=foo`,
	})

	// A brand-new BuildRunner, as cmd/forgecore-build constructs on every
	// invocation, starts with an empty in-memory BuildScripts.Store; the
	// dependent must still see the build script's flags via the persisted
	// sidecar rather than silently losing them.
	graph2, primary2, _, _ := buildScriptGraph(t, root)
	r2 := newTestRunner(t, root)
	capture := &argvCapturingExecutor{
		inner: &jobqueuetest.Executor{
			Default:   jobqueuetest.Behavior{ExitCode: 0},
			Behaviors: map[string]jobqueuetest.Behavior{runCustomBuildID: {ExitCode: 0}},
		},
		args: map[string][]string{},
	}
	r2.Exec = capture

	_, err := r2.Compile(context.Background(), graph2, primary2)
	require.NoError(t, err)

	libArgs := capture.args[libID]
	require.Contains(t, libArgs, "has_foo")
	require.Contains(t, libArgs, "-l")
	require.Contains(t, libArgs, "foo")
}

// laterTime returns a timestamp comfortably after "now", so a touched
// file's new mtime is unambiguously past any earlier invoked timestamp
// even on filesystems with coarse mtime resolution.
func laterTime() time.Time {
	return time.Now().Add(time.Hour)
}

// argvCapturingExecutor records each unit's final argv so a test can assert
// on it, the way jobqueuetest.Executor records start/finish order.
type argvCapturingExecutor struct {
	inner jobqueue.Executor
	mu    sync.Mutex
	args  map[string][]string
}

func (e *argvCapturingExecutor) Run(ctx context.Context, cmd jobqueue.Command, cb jobqueue.Callbacks) (jobqueue.Result, error) {
	e.mu.Lock()
	e.args[cmd.UnitID] = cmd.Args
	e.mu.Unlock()
	return e.inner.Run(ctx, cmd, cb)
}
