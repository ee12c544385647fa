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

package sbom_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"forgecore/sbom"
	"forgecore/unit"
)

func libPkg(name string) *unit.Package {
	return &unit.Package{
		ID: unit.PackageID{Name: name, Version: "1.0.0"},
		Targets: []unit.Target{{
			Name: name, Kind: unit.TargetLib, CrateTypes: []unit.CrateType{unit.CrateRlib}, Edition: "2021",
		}},
	}
}

func noFeatures(unit.PackageID, unit.CompileKind) unit.FeatureSet { return nil }

func devProfile(unit.PackageID) unit.Profile {
	return unit.Profile{Name: "dev", OptLevel: "0", Panic: unit.PanicUnwind}
}

// releaseOverride gives package "b" a distinct profile so the SBOM writer's
// "only emit a per-package profile when it differs from root" rule has
// something to exercise.
func releaseOverride(pkg unit.PackageID) unit.Profile {
	if pkg.Name == "b" {
		return unit.Profile{Name: "release", OptLevel: "3", Panic: unit.PanicAbort}
	}
	return devProfile(pkg)
}

func TestBuild_DiamondDependencyAppearsOnce(t *testing.T) {
	a, b, c, d := libPkg("a"), libPkg("b"), libPkg("c"), libPkg("d")
	g := &unit.ResolvedGraph{
		Packages: map[unit.PackageID]*unit.Package{a.ID: a, b.ID: b, c.ID: c, d.ID: d},
		Edges: []unit.PackageEdge{
			{From: a.ID, To: b.ID, Kind: unit.DepNormal},
			{From: a.ID, To: c.ID, Kind: unit.DepNormal},
			{From: b.ID, To: d.ID, Kind: unit.DepNormal},
			{From: c.ID, To: d.ID, Kind: unit.DepNormal},
		},
	}
	builder := &unit.Builder{Graph: g, Features: noFeatures, Profiles: devProfile}
	graph, err := builder.Build([]unit.RootSelection{{Pkg: a.ID, Mode: unit.ModeBuild, Kind: unit.Host}})
	require.NoError(t, err)

	root := graph.Roots()[0]
	doc := sbom.Build(root, graph, sbom.Rustc{Version: "1.80.0", Host: "x86_64-unknown-linux-gnu"})

	require.Equal(t, sbom.FormatVersion, doc.FormatVersion)
	require.Equal(t, "a", doc.Name)
	require.Len(t, doc.Packages, 3, "b, c and d each appear exactly once despite d being reachable through both b and c")

	names := map[string]bool{}
	for _, p := range doc.Packages {
		names[p.Package] = true
	}
	require.True(t, names["b"])
	require.True(t, names["c"])
	require.True(t, names["d"])
}

func TestBuild_DependencyIndicesPointBackIntoPackagesSlice(t *testing.T) {
	a, b, c := libPkg("a"), libPkg("b"), libPkg("c")
	g := &unit.ResolvedGraph{
		Packages: map[unit.PackageID]*unit.Package{a.ID: a, b.ID: b, c.ID: c},
		Edges: []unit.PackageEdge{
			{From: a.ID, To: b.ID, Kind: unit.DepNormal},
			{From: b.ID, To: c.ID, Kind: unit.DepNormal},
		},
	}
	builder := &unit.Builder{Graph: g, Features: noFeatures, Profiles: devProfile}
	graph, err := builder.Build([]unit.RootSelection{{Pkg: a.ID, Mode: unit.ModeBuild, Kind: unit.Host}})
	require.NoError(t, err)

	root := graph.Roots()[0]
	doc := sbom.Build(root, graph, sbom.Rustc{Version: "1.80.0", Host: "x86_64-unknown-linux-gnu"})
	require.Len(t, doc.Packages, 2)

	var bIdx, cIdx = -1, -1
	for i, p := range doc.Packages {
		switch p.Package {
		case "b":
			bIdx = i
		case "c":
			cIdx = i
		}
	}
	require.GreaterOrEqual(t, bIdx, 0)
	require.GreaterOrEqual(t, cIdx, 0)
	require.Equal(t, []int{cIdx}, doc.Packages[bIdx].Dependencies)
	require.Empty(t, doc.Packages[cIdx].Dependencies)
}

func TestBuild_PerPackageProfileOnlySetWhenItDiffersFromRoot(t *testing.T) {
	a, b, c := libPkg("a"), libPkg("b"), libPkg("c")
	g := &unit.ResolvedGraph{
		Packages: map[unit.PackageID]*unit.Package{a.ID: a, b.ID: b, c.ID: c},
		Edges: []unit.PackageEdge{
			{From: a.ID, To: b.ID, Kind: unit.DepNormal},
			{From: a.ID, To: c.ID, Kind: unit.DepNormal},
		},
	}
	builder := &unit.Builder{Graph: g, Features: noFeatures, Profiles: releaseOverride}
	graph, err := builder.Build([]unit.RootSelection{{Pkg: a.ID, Mode: unit.ModeBuild, Kind: unit.Host}})
	require.NoError(t, err)

	root := graph.Roots()[0]
	doc := sbom.Build(root, graph, sbom.Rustc{Version: "1.80.0", Host: "x86_64-unknown-linux-gnu"})

	var bPkg, cPkg *sbom.Package
	for i := range doc.Packages {
		switch doc.Packages[i].Package {
		case "b":
			bPkg = &doc.Packages[i]
		case "c":
			cPkg = &doc.Packages[i]
		}
	}
	require.NotNil(t, bPkg)
	require.NotNil(t, cPkg)
	require.NotNil(t, bPkg.Profile, "b was resolved with a release profile distinct from root's dev profile")
	require.Equal(t, "release", bPkg.Profile.Name)
	require.Nil(t, cPkg.Profile, "c shares root's profile so no override is emitted")
}

func TestBuild_BuildScriptDependencyIsTaggedBuildType(t *testing.T) {
	a := libPkg("a")
	a.BuildScript = &unit.Target{Name: "build-script-build", Kind: unit.TargetCustomBuild}
	g := &unit.ResolvedGraph{
		Packages: map[unit.PackageID]*unit.Package{a.ID: a},
	}
	builder := &unit.Builder{Graph: g, Features: noFeatures, Profiles: devProfile}
	graph, err := builder.Build([]unit.RootSelection{{Pkg: a.ID, Mode: unit.ModeBuild, Kind: unit.Host}})
	require.NoError(t, err)

	root := graph.Roots()[0]
	doc := sbom.Build(root, graph, sbom.Rustc{Version: "1.80.0", Host: "x86_64-unknown-linux-gnu"})
	require.Len(t, doc.Packages, 2, "the run-custom-build unit and the build script's own Build unit both join the closure")

	var runPkg *sbom.Package
	for i := range doc.Packages {
		if doc.Packages[i].ExternCrateName == "build_script_output" {
			runPkg = &doc.Packages[i]
		}
	}
	require.NotNil(t, runPkg)
	require.Equal(t, sbom.BuildTypeBuild, runPkg.BuildType)
}

func TestWriteTo_EncodesValidJSON(t *testing.T) {
	doc := &sbom.Document{
		FormatVersion: sbom.FormatVersion,
		PackageID:     "a@1.0.0",
		Name:          "a",
		Version:       "1.0.0",
		Target:        sbom.Target{Kind: "lib", CrateTypes: []string{"rlib"}, Name: "a", Edition: "2021"},
		Profile:       sbom.Profile{Name: "dev", OptLevel: "0", Panic: "unwind"},
		Rustc:         sbom.Rustc{Version: "1.80.0", Host: "x86_64-unknown-linux-gnu"},
	}

	var buf bytes.Buffer
	require.NoError(t, sbom.WriteTo(&buf, doc))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, float64(1), decoded["format_version"])
	require.Equal(t, "a", decoded["name"])
}
