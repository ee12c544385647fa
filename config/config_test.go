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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forgecore/config"
	"forgecore/unit"
)

func baseConfig() *config.Config {
	return &config.Config{
		BaseProfiles: map[string]unit.Profile{
			"dev": {Name: "dev", OptLevel: "0", Panic: unit.PanicUnwind},
		},
		DefaultProfile: "dev",
		Rustflags:      []string{"-Dwarnings"},
	}
}

func TestResolver_NoOverrideReturnsBaseProfileWithGlobalRustflags(t *testing.T) {
	cfg := baseConfig()
	r := config.Resolver{Cfg: cfg}

	p := r.Resolve(unit.PackageID{Name: "foo", Version: "1.0.0"})
	require.Equal(t, "dev", p.Name)
	require.Equal(t, "0", p.OptLevel)
	require.Equal(t, []string{"-Dwarnings"}, p.Rustflags)
}

func TestResolver_OverrideAppliesOnlySetFields(t *testing.T) {
	cfg := baseConfig()
	opt := "3"
	incremental := false
	cfg.Overrides = map[string]config.PackageOverride{
		"foo": {OptLevel: &opt, Incremental: &incremental},
	}
	r := config.Resolver{Cfg: cfg}

	p := r.Resolve(unit.PackageID{Name: "foo", Version: "1.0.0"})
	require.Equal(t, "3", p.OptLevel, "overridden field takes the new value")
	require.False(t, p.Incremental)
	require.Equal(t, unit.PanicUnwind, p.Panic, "fields the override didn't touch still inherit from the base profile")
}

func TestResolver_DifferentPackagesGetIndependentOverrides(t *testing.T) {
	cfg := baseConfig()
	opt := "3"
	cfg.Overrides = map[string]config.PackageOverride{
		"foo": {OptLevel: &opt},
	}
	r := config.Resolver{Cfg: cfg}

	foo := r.Resolve(unit.PackageID{Name: "foo", Version: "1.0.0"})
	bar := r.Resolve(unit.PackageID{Name: "bar", Version: "1.0.0"})
	require.Equal(t, "3", foo.OptLevel)
	require.Equal(t, "0", bar.OptLevel)
}
