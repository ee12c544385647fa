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

// Command forgecore-build is the thin CLI front end: it reads an
// already-resolved package graph (package resolution itself is out of
// scope, §1) from a JSON file, builds the UnitGraph, and runs one
// BuildRunner.Compile. Everything else — manifest parsing, dependency
// resolution, feature unification — is an external concern this command
// only ever consumes the output of.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"forgecore/buildrunner"
	"forgecore/config"
	"forgecore/forgelog"
	"forgecore/sbom"
	"forgecore/unit"
)

var (
	jobsFlag      int
	targetsFlag   []string
	workspaceFlag string
	profileFlag   string
	compilerFlag  string
	graphFlag     string
	sbomFlag      bool
	protoFlag     bool
	docScrapeFlag bool
	verboseFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "forgecore-build",
	Short: "Build a resolved Rust package graph (the cargo build engine core)",
	Long: `forgecore-build drives a unit graph through fingerprint-checked,
jobserver-cooperating parallel compilation.

It does not resolve packages itself: point --graph at a JSON file
describing an already-resolved package graph and the roots to build.`,
	RunE: runBuild,
}

func init() {
	rootCmd.Flags().IntVarP(&jobsFlag, "jobs", "j", 0, "max parallel rustc invocations (0 = jobserver/GOMAXPROCS default)")
	rootCmd.Flags().StringSliceVar(&targetsFlag, "target", nil, "cross-compilation target triple(s); may be repeated. Recorded in the config only: each root's compile kind comes from the --graph file")
	rootCmd.Flags().StringVar(&workspaceFlag, "workspace", ".", "workspace root (target/ is created beneath it)")
	rootCmd.Flags().StringVar(&profileFlag, "profile", "dev", "named profile to build (dev, release, ...)")
	rootCmd.Flags().StringVar(&compilerFlag, "rustc", "rustc", "compiler binary to invoke")
	rootCmd.Flags().StringVar(&graphFlag, "graph", "", "path to the resolved-graph JSON file (required)")
	rootCmd.Flags().BoolVar(&sbomFlag, "sbom", false, "write a cargo-sbom.json sidecar per root")
	rootCmd.Flags().BoolVar(&protoFlag, "proto-summary", false, "write one compilation.pb summary for the whole build")
	rootCmd.Flags().BoolVar(&docScrapeFlag, "doc-scrape", false, "set Config.EnableDocScrape; doc-scrape units come only from --graph roots with mode doc-scrape")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug-level logging")
	_ = rootCmd.MarkFlagRequired("graph")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	if verboseFlag {
		forgelog.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	data, err := os.ReadFile(graphFlag)
	if err != nil {
		return fmt.Errorf("reading graph file: %w", err)
	}
	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return fmt.Errorf("parsing graph file: %w", err)
	}

	resolved, roots, features, err := gf.toUnitInputs()
	if err != nil {
		return err
	}

	profile := unit.Profile{Name: profileFlag, OptLevel: "0", Panic: unit.PanicUnwind}
	if profileFlag == "release" {
		profile = unit.Profile{Name: "release", OptLevel: "3", Panic: unit.PanicUnwind, CodegenUnits: 16}
	}

	cfg := &config.Config{
		Jobs:               jobsFlag,
		Targets:            targetsFlag,
		DefaultProfile:     profileFlag,
		BaseProfiles:       map[string]unit.Profile{profile.Name: profile},
		EnableSBOM:         sbomFlag,
		EnableProtoSummary: protoFlag,
		EnableDocScrape:    docScrapeFlag,
	}
	resolver := config.Resolver{Cfg: cfg}

	builder := &unit.Builder{
		Graph:    resolved,
		Features: func(pkg unit.PackageID, kind unit.CompileKind) unit.FeatureSet { return features[pkg.String()] },
		Profiles: resolver.Resolve,
	}
	graph, err := builder.Build(roots)
	if err != nil {
		return fmt.Errorf("building unit graph: %w", err)
	}

	primary := map[unit.PackageID]bool{}
	for _, r := range roots {
		primary[r.Pkg] = true
	}

	rustc, err := probeRustc(ctx, compilerFlag)
	if err != nil {
		return fmt.Errorf("probing compiler: %w", err)
	}
	cfg.HostTriple = rustc.Host

	runner, err := buildrunner.New(cfg, compilerFlag, workspaceFlag, rustc)
	if err != nil {
		return fmt.Errorf("starting build runner: %w", err)
	}
	defer runner.Shutdown()

	comp, err := runner.Compile(ctx, graph, primary)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(comp)
}

// probeRustc shells out to `rustc --version --verbose` the way cargo's own
// build-runner identifies the exact toolchain an SBOM or fingerprint binds
// to (§6).
func probeRustc(ctx context.Context, compiler string) (sbom.Rustc, error) {
	out, err := exec.CommandContext(ctx, compiler, "--version", "--verbose").Output()
	if err != nil {
		return sbom.Rustc{}, err
	}
	verbose := string(out)
	r := sbom.Rustc{VerboseVersion: verbose}
	for _, line := range strings.Split(verbose, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "release:"):
			r.Version = strings.TrimSpace(strings.TrimPrefix(line, "release:"))
		case strings.HasPrefix(line, "host:"):
			r.Host = strings.TrimSpace(strings.TrimPrefix(line, "host:"))
		case strings.HasPrefix(line, "commit-hash:"):
			r.CommitHash = strings.TrimSpace(strings.TrimPrefix(line, "commit-hash:"))
		}
	}
	return r, nil
}

// graphFile is the on-disk JSON shape a resolver hands this command: a
// flattened package list plus edges and the roots to build, the minimal
// external input §1 assumes already exists.
type graphFile struct {
	Packages []packageJSON       `json:"packages"`
	Edges    []edgeJSON          `json:"edges"`
	Roots    []rootJSON          `json:"roots"`
	Features map[string][]string `json:"features"`
}

type packageJSON struct {
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Source      string        `json:"source"`
	Targets     []unit.Target `json:"targets"`
	BuildScript *unit.Target  `json:"build_script,omitempty"`
}

type edgeJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"` // "normal", "build", or "dev"
}

type rootJSON struct {
	Pkg  string `json:"pkg"`
	Mode string `json:"mode"` // "build", "check", "doc", "test", "bench", "doctest"
	Kind string `json:"kind"` // "host" or a target triple
}

func (gf *graphFile) toUnitInputs() (*unit.ResolvedGraph, []unit.RootSelection, map[string]unit.FeatureSet, error) {
	ids := map[string]unit.PackageID{}
	packages := map[unit.PackageID]*unit.Package{}
	for _, p := range gf.Packages {
		id := unit.PackageID{Name: p.Name, Version: p.Version, Source: p.Source}
		ids[p.Name] = id
		packages[id] = &unit.Package{ID: id, Targets: p.Targets, BuildScript: p.BuildScript}
	}

	var edges []unit.PackageEdge
	for _, e := range gf.Edges {
		from, ok := ids[e.From]
		if !ok {
			return nil, nil, nil, fmt.Errorf("edge references unknown package %q", e.From)
		}
		to, ok := ids[e.To]
		if !ok {
			return nil, nil, nil, fmt.Errorf("edge references unknown package %q", e.To)
		}
		edges = append(edges, unit.PackageEdge{From: from, To: to, Kind: parseDepKind(e.Kind)})
	}

	var roots []unit.RootSelection
	for _, r := range gf.Roots {
		pkg, ok := ids[r.Pkg]
		if !ok {
			return nil, nil, nil, fmt.Errorf("root references unknown package %q", r.Pkg)
		}
		kind := unit.Host
		if r.Kind != "" && r.Kind != "host" {
			kind = unit.ForTarget(r.Kind)
		}
		roots = append(roots, unit.RootSelection{Pkg: pkg, Mode: parseMode(r.Mode), Kind: kind})
	}

	features := map[string]unit.FeatureSet{}
	for name, enabled := range gf.Features {
		id, ok := ids[name]
		if !ok {
			continue
		}
		fs := unit.FeatureSet{}
		for _, f := range enabled {
			fs[f] = true
		}
		features[id.String()] = fs
	}

	return &unit.ResolvedGraph{Packages: packages, Edges: edges}, roots, features, nil
}

func parseDepKind(s string) unit.DepKind {
	switch s {
	case "build":
		return unit.DepBuild
	case "dev":
		return unit.DepDev
	default:
		return unit.DepNormal
	}
}

func parseMode(s string) unit.CompileMode {
	switch s {
	case "check":
		return unit.ModeCheck
	case "doc":
		return unit.ModeDoc
	case "doc-scrape":
		return unit.ModeDocScrape
	case "doctest":
		return unit.ModeDoctest
	case "test":
		return unit.ModeTest
	case "bench":
		return unit.ModeBench
	default:
		return unit.ModeBuild
	}
}
