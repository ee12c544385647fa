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

package collision_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forgecore/collision"
	"forgecore/compfiles"
	"forgecore/unit"
)

func libPkg(pkgName, crateName string) *unit.Package {
	return &unit.Package{
		ID: unit.PackageID{Name: pkgName, Version: "1.0.0"},
		Targets: []unit.Target{{
			Name: crateName, Kind: unit.TargetLib, CrateTypes: []unit.CrateType{unit.CrateRlib}, IsUserVisible: true,
		}},
	}
}

func noFeatures(unit.PackageID, unit.CompileKind) unit.FeatureSet { return nil }
func devProfile(unit.PackageID) unit.Profile {
	return unit.Profile{Name: "dev", OptLevel: "0", Panic: unit.PanicUnwind}
}

func TestCheck_DocCollisionBetweenTwoPrimaryPackagesIsFatal(t *testing.T) {
	a := libPkg("crate-a", "foo")
	b := libPkg("crate-b", "foo")
	g := &unit.ResolvedGraph{Packages: map[unit.PackageID]*unit.Package{a.ID: a, b.ID: b}}
	builder := &unit.Builder{Graph: g, Features: noFeatures, Profiles: devProfile}
	graph, err := builder.Build([]unit.RootSelection{
		{Pkg: a.ID, Mode: unit.ModeDoc, Kind: unit.Host},
		{Pkg: b.ID, Mode: unit.ModeDoc, Kind: unit.Host},
	})
	require.NoError(t, err)

	var units []*unit.Unit
	for _, u := range graph.Units() {
		units = append(units, u)
	}
	primary := map[unit.PackageID]bool{a.ID: true, b.ID: true}

	warnings, fatal, err := collision.Check(units, func(u *unit.Unit) ([]compfiles.OutputFile, error) {
		t.Fatal("outputsOf must not be called once a fatal doc collision is found")
		return nil, nil
	}, primary)
	require.NoError(t, err)
	require.Nil(t, warnings)
	require.NotNil(t, fatal)
	require.Contains(t, fatal.Error(), "foo")
}

func TestCheck_NonDocPathCollisionWarnsAndDoesNotFail(t *testing.T) {
	a := libPkg("crate-a", "shared")
	b := libPkg("crate-b", "shared")
	g := &unit.ResolvedGraph{Packages: map[unit.PackageID]*unit.Package{a.ID: a, b.ID: b}}
	builder := &unit.Builder{Graph: g, Features: noFeatures, Profiles: devProfile}
	graph, err := builder.Build([]unit.RootSelection{
		{Pkg: a.ID, Mode: unit.ModeBuild, Kind: unit.Host},
		{Pkg: b.ID, Mode: unit.ModeBuild, Kind: unit.Host},
	})
	require.NoError(t, err)

	var units []*unit.Unit
	for _, u := range graph.Units() {
		units = append(units, u)
	}

	warnings, fatal, err := collision.Check(units, func(u *unit.Unit) ([]compfiles.OutputFile, error) {
		return []compfiles.OutputFile{{Hardlink: "target/debug/libshared.rlib"}}, nil
	}, nil)
	require.NoError(t, err)
	require.Nil(t, fatal)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].String(), "libshared.rlib")
}

func TestCheck_NoCollisionsIsClean(t *testing.T) {
	a := libPkg("crate-a", "alpha")
	b := libPkg("crate-b", "beta")
	g := &unit.ResolvedGraph{Packages: map[unit.PackageID]*unit.Package{a.ID: a, b.ID: b}}
	builder := &unit.Builder{Graph: g, Features: noFeatures, Profiles: devProfile}
	graph, err := builder.Build([]unit.RootSelection{
		{Pkg: a.ID, Mode: unit.ModeBuild, Kind: unit.Host},
		{Pkg: b.ID, Mode: unit.ModeBuild, Kind: unit.Host},
	})
	require.NoError(t, err)

	var units []*unit.Unit
	for _, u := range graph.Units() {
		units = append(units, u)
	}

	warnings, fatal, err := collision.Check(units, func(u *unit.Unit) ([]compfiles.OutputFile, error) {
		return []compfiles.OutputFile{{Hardlink: "target/debug/lib" + u.CrateName() + ".rlib"}}, nil
	}, nil)
	require.NoError(t, err)
	require.Nil(t, fatal)
	require.Empty(t, warnings)
}
