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

package compfiles

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"forgecore/unit"
)

// Metadata is the 64-bit hash used both as the -Cmetadata compiler flag
// and embedded in filenames to disambiguate identically-named crates (§3).
type Metadata uint64

// Hex renders the canonical 16-hex-digit form used in filenames
// (<prefix><name>-<hex16><suffix>, §4.3, §6).
func (m Metadata) Hex() string {
	return fmt.Sprintf("%016x", uint64(m))
}

// Compute derives the 64-bit metadata hash from a Unit's identity,
// resolved feature set, profile, rustc version, and target data (§3).
//
// Unlike Unit.ID (a 256-bit digest used for map-key identity), Metadata is
// deliberately narrowed to 64 bits because it must fit in a filename
// component the way rustc's own -Cmetadata does.
func Compute(u *unit.Unit, rustcVersion, targetTriple string) Metadata {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s",
		u.Pkg.ID.String(), u.Target.Name, u.Mode.String(), u.Kind.String(),
		u.Features.Key(), rustcVersion, targetTriple, u.Profile.Name)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return Metadata(binary.BigEndian.Uint64(buf[:]))
}
