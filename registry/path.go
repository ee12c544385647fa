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

// Package registry derives the sharded on-disk path a registry index
// entry lives at (§6), the same sharding rule crates.io's own index and a
// filesystem-backed registry index use: a 1- or 2-character name gets its
// own top-level shard, a 3-character name is sharded by its first
// character, and everything else is sharded by its first two and next two
// characters.
package registry

// MakeDepPath derives the shard path for depName. When prefixOnly is true,
// the result is just the shard directory (used to probe whether the shard
// exists); otherwise depName itself is appended as the final path segment.
//
// Sharding is counted in runes, not bytes: a name containing multi-byte
// UTF-8 characters still shards the same way a human reading the name
// character-by-character would expect.
func MakeDepPath(depName string, prefixOnly bool) string {
	runes := []rune(depName)
	n := len(runes)
	if n > 4 {
		n = 4
	}

	slash, name := "/", depName
	if prefixOnly {
		slash, name = "", ""
	}

	switch n {
	case 1:
		return "1" + slash + name
	case 2:
		return "2" + slash + name
	case 3:
		return "3/" + string(runes[0:1]) + slash + name
	default:
		return string(runes[0:2]) + "/" + string(runes[2:4]) + slash + name
	}
}
