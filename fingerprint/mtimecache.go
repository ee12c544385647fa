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

package fingerprint

import (
	"os"
	"sync"
	"time"
)

// MtimeCache memoizes file mtimes for the duration of one compile()
// invocation (§4.8: "owned by BuildRunner, accessed from the scheduler
// thread only"). Cleared between builds so each compile() observes fresh
// values (§4.8 step 9).
type MtimeCache struct {
	mu    sync.Mutex
	times map[string]time.Time
	miss  map[string]bool
}

// Mtime returns path's modification time, memoized. A missing file is
// memoized too (as a miss) so a repeatedly-probed absent path doesn't hit
// the filesystem every time.
func (c *MtimeCache) Mtime(path string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.times == nil {
		c.times = make(map[string]time.Time)
		c.miss = make(map[string]bool)
	}
	if t, ok := c.times[path]; ok {
		return t, true
	}
	if c.miss[path] {
		return time.Time{}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		c.miss[path] = true
		return time.Time{}, false
	}
	t := info.ModTime()
	c.times[path] = t
	return t, true
}

// Clear drops all memoized values, forcing the next Mtime call for any
// path to re-stat it. Called once per compile() so in-build values observe
// fresh inputs (§4.8 step 9).
func (c *MtimeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.times = nil
	c.miss = nil
}
