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

// Package diskusage estimates the total byte size of a directory tree
// (§6, "used by pack/verify paths"), gitignore-style include/exclude
// patterns and all. A primitive estimator: it sums actual file sizes
// rather than block counts and makes no attempt to detect hard links,
// the same tradeoffs the estimator it's grounded on accepts.
package diskusage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"
)

// walkers is the fixed number of stat-ing goroutines fed by the single
// directory-walking producer.
const walkers = 8

// Matcher compiles a set of gitignore-style patterns relative to a walked
// root. A pattern prefixed with "!" excludes; everything else includes.
type Matcher struct {
	includes []glob.Glob
	excludes []glob.Glob
}

// NewMatcher compiles patterns. An empty pattern set matches everything.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		exclude := strings.HasPrefix(p, "!")
		pat := strings.TrimPrefix(p, "!")
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", p, err)
		}
		if exclude {
			m.excludes = append(m.excludes, g)
		} else {
			m.includes = append(m.includes, g)
		}
	}
	return m, nil
}

// Match reports whether rel, a slash-separated path relative to the walked
// root, should be counted. If there are no include patterns, everything
// matches unless an exclude pattern hits; once at least one include
// pattern is present, a path must match one of them to count at all (it
// will only count things matching that pattern).
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return true
	}
	for _, g := range m.excludes {
		if g.Match(rel) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, g := range m.includes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Usage walks root and sums the size of every matching regular file. The
// walk itself is single-threaded (directory order must stay deterministic
// for the walk to terminate predictably); the stat calls that read each
// file's size fan out across a bounded worker pool, mirroring the
// original estimator's parallel-walker-plus-shared-counter shape with an
// errgroup in place of a raw thread pool.
func Usage(ctx context.Context, root string, patterns []string) (uint64, error) {
	matcher, err := NewMatcher(patterns)
	if err != nil {
		return 0, err
	}

	var total atomic.Uint64
	paths := make(chan string, walkers*4)

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < walkers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case p, ok := <-paths:
					if !ok {
						return nil
					}
					info, err := os.Stat(p)
					if err != nil {
						return err
					}
					if info.Mode().IsRegular() {
						total.Add(uint64(info.Size()))
					}
				}
			}
		})
	}

	g.Go(func() error {
		defer close(paths)
		return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				rel = p
			}
			if !matcher.Match(filepath.ToSlash(rel)) {
				return nil
			}
			select {
			case paths <- p:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to walk %q: %w", root, err)
	}
	return total.Load(), nil
}
