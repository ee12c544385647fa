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

// Package depinfo writes the Make-style dep-info sidecar the engine emits
// per unit (§6): one line naming the unit's output path followed by every
// absolute source path that fed it, the format rustc itself writes with
// `--emit dep-info` and the format rust/builder.go's Depfile rule consumes
// on the ninja side.
package depinfo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
)

// Line renders one dep-info line: "<output>: <src> <src> ...", with spaces
// inside a path escaped as "\ " the way Make (and rustc's own dep-info
// writer) requires so a single line stays parseable by whitespace-splitting
// tools (§6).
func Line(output string, sources []string) string {
	escaped := make([]string, len(sources))
	for i, s := range sources {
		escaped[i] = escapeSpaces(s)
	}
	if len(escaped) == 0 {
		return escapeSpaces(output) + ":"
	}
	return fmt.Sprintf("%s: %s", escapeSpaces(output), strings.Join(escaped, " "))
}

func escapeSpaces(p string) string {
	return strings.ReplaceAll(p, " ", `\ `)
}

// Unit pairs one unit's output path with the absolute source paths that
// produced it, the minimal input WriteFile needs.
type Unit struct {
	Output  string
	Sources []string
}

// WriteFile writes one dep-info file at path containing one line per unit,
// sorted by output path for deterministic output across runs. Each unit's
// own source list is written in the order given; callers that need a
// canonical order should sort before calling. The write is atomic (via
// renameio, the same crash-safety idiom the fingerprint sidecar uses) so a
// reader never observes a torn file.
func WriteFile(path string, units []Unit) error {
	sorted := append([]Unit(nil), units...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Output < sorted[j].Output })

	var b strings.Builder
	for _, u := range sorted {
		b.WriteString(Line(u.Output, u.Sources))
		b.WriteByte('\n')
	}
	return renameio.WriteFile(path, []byte(b.String()), 0o644)
}
