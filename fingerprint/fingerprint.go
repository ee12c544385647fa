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

// Package fingerprint computes the per-unit composite hash that decides
// Fresh vs Dirty (§3, §4.5) and persists it to the .fingerprint/ sidecar.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio/v2"
)

// schemaVersion is prefixed to every serialized Fingerprint. Bumping it
// invalidates every sidecar written by an older engine outright, rather
// than risking a misread of an incompatible schema (§9 design note).
const schemaVersion = 1

// Fingerprint is the composite value of §3: rustc version, target triple,
// profile hash, feature set, the environment variables the unit depends
// on, command-line flags, tracked source paths, and child fingerprint
// hashes.
type Fingerprint struct {
	SchemaVersion int               `json:"schema_version"`
	RustcVersion  string            `json:"rustc_version"`
	TargetTriple  string            `json:"target_triple"`
	ProfileHash   string            `json:"profile_hash"`
	FeaturesKey   string            `json:"features"`
	Env           map[string]string `json:"env,omitempty"`
	Flags         []string          `json:"flags,omitempty"`
	Sources       []string          `json:"sources"`
	Children      []string          `json:"children,omitempty"`
}

// Compute builds a Fingerprint value. Sources and children are expected to
// already be in a deterministic order (the caller controls that); Compute
// does not re-sort them so that source-order-as-declared is preserved for
// diagnostics, but it DOES sort Env keys internally via Marshal so map
// iteration order never leaks into the serialized form.
func Compute(rustcVersion, targetTriple, profileHash, featuresKey string, env map[string]string, flags, sources, children []string) *Fingerprint {
	return &Fingerprint{
		SchemaVersion: schemaVersion,
		RustcVersion:  rustcVersion,
		TargetTriple:  targetTriple,
		ProfileHash:   profileHash,
		FeaturesKey:   featuresKey,
		Env:           env,
		Flags:         flags,
		Sources:       sources,
		Children:      children,
	}
}

// Marshal renders the stable, field-ordered textual form used for both the
// on-disk sidecar and the freshness byte-equality comparison.
func (f *Fingerprint) Marshal() ([]byte, error) {
	// encoding/json always emits struct fields in declaration order and map
	// keys sorted lexicographically, which together give us the "stable
	// field-ordered textual form" §9 asks for without extra bookkeeping.
	return json.Marshal(f)
}

// Equal reports whether two fingerprints serialize byte-for-byte
// identically.
func Equal(a, b *Fingerprint) (bool, error) {
	ab, err := a.Marshal()
	if err != nil {
		return false, err
	}
	bb, err := b.Marshal()
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

// Store reads and writes a unit's fingerprint sidecar: <dir>/<name>.json
// and <dir>/invoked.timestamp (§4.5, §6).
type Store struct{}

func jsonPath(dir, name string) string    { return filepath.Join(dir, name+".json") }
func timestampPath(dir string) string     { return filepath.Join(dir, "invoked.timestamp") }
func depfilePath(dir, name string) string { return filepath.Join(dir, "dep-"+name) }

// Load reads the previously persisted fingerprint and its invoked
// timestamp for (dir, name). ok is false if no sidecar exists yet, or if
// its schema_version doesn't match this engine's (§9: treat a schema bump
// as invalidation, not misreading).
func (Store) Load(dir, name string) (fp *Fingerprint, invoked time.Time, ok bool, err error) {
	raw, err := os.ReadFile(jsonPath(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}
	var parsed Fingerprint
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, time.Time{}, false, nil // unreadable sidecar == Dirty, not an error
	}
	if parsed.SchemaVersion != schemaVersion {
		return nil, time.Time{}, false, nil
	}
	info, err := os.Stat(timestampPath(dir))
	if err != nil {
		return nil, time.Time{}, false, nil
	}
	return &parsed, info.ModTime(), true, nil
}

// Write persists fp and touches invoked.timestamp, atomically (via
// renameio) so a crash mid-write can never leave a torn sidecar that would
// later be misread as Fresh.
func (Store) Write(dir, name string, fp *Fingerprint) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := fp.Marshal()
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(jsonPath(dir, name), raw, 0o644); err != nil {
		return err
	}
	return renameio.WriteFile(timestampPath(dir), []byte(time.Now().UTC().Format(time.RFC3339Nano)), 0o644)
}

// WriteDepInfo persists the dep-<name> sidecar used to record a unit's
// tracked source set independent of the JSON fingerprint (kept separately
// so depinfo tooling can read it without parsing the fingerprint schema).
func (Store) WriteDepInfo(dir, name string, sources []string) error {
	sorted := append([]string(nil), sources...)
	sort.Strings(sorted)
	return renameio.WriteFile(depfilePath(dir, name), []byte(joinLines(sorted)), 0o644)
}

func joinLines(ss []string) string {
	var b bytes.Buffer
	for _, s := range ss {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String()
}

// Decision reports whether a unit is Fresh (§3, §4.5): the stored
// serialization equals the freshly computed one, every tracked source
// file's mtime is not newer than the stored invoked timestamp, and every
// child fingerprint is itself Fresh.
func Decision(stored, fresh *Fingerprint, invoked time.Time, mtimes *MtimeCache, childrenFresh bool) (bool, error) {
	if stored == nil || !childrenFresh {
		return false, nil
	}
	eq, err := Equal(stored, fresh)
	if err != nil {
		return false, err
	}
	if !eq {
		return false, nil
	}
	for _, src := range fresh.Sources {
		mtime, ok := mtimes.Mtime(src)
		if !ok {
			// A tracked source that vanished makes the unit Dirty, not an
			// error: the next compile() will surface the real failure if
			// the source is genuinely gone.
			return false, nil
		}
		if mtime.After(invoked) {
			return false, nil
		}
	}
	return true, nil
}
