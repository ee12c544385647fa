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

// Package jobserver implements the GNU-make-compatible token pipe the
// scheduler acquires one token per concurrent compiler process from (§4.7,
// §5). A process either inherits the pipe from a parent make/cargo
// invocation via MAKEFLAGS, or creates its own with a fixed token count.
package jobserver

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"forgecore/forgeerr"

	"golang.org/x/sync/semaphore"
)

// immediatePast and noDeadline implement the non-blocking read TryAcquire
// needs: setting a deadline already in the past makes the next Read return
// immediately if no byte is pending, without the platform-specific
// nonblocking-fd dance.
var (
	immediatePast = time.Unix(0, 1)
	noDeadline    = time.Time{}
)

// Pool hands out tokens bounding the number of concurrently running
// compiler processes. The scheduler itself holds one implicit token for
// its own lifetime and never puts it back into the pool (§4: "the
// scheduler itself counts as one running process").
type Pool interface {
	// Acquire blocks until a token is available or ctx is done.
	Acquire(ctx context.Context) error
	// TryAcquire acquires a token without blocking, reporting whether one
	// was available.
	TryAcquire() bool
	// Release returns a token to the pool.
	Release()
	// Close releases any OS resources the pool holds.
	Close() error
}

// Open inherits a token pipe from the environment (MAKEFLAGS /
// CARGO_MAKEFLAGS carrying --jobserver-auth= or --jobserver-fds=) if one is
// present, otherwise creates a fresh pool sized to jobs. A jobs value below
// 1 selects runtime.GOMAXPROCS(0); the scheduler's own implicit token is not
// drawn from the returned pool.
func Open(jobs int) (Pool, error) {
	if jobs < 1 {
		jobs = runtime.GOMAXPROCS(0)
	}
	if p, ok, err := inherit(); ok || err != nil {
		if err != nil {
			return nil, &forgeerr.Jobserver{Err: err}
		}
		return p, nil
	}
	return newPipePool(jobs)
}

// inherit looks for a jobserver advertised by a parent process via
// MAKEFLAGS or CARGO_MAKEFLAGS, in either the modern "--jobserver-auth=R,W"
// or legacy "--jobserver-fds=R,W" form. ok is false (with a nil error) when
// no such flag is present, which is the common case when forge is invoked
// directly rather than as a make/cargo subprocess.
func inherit() (Pool, bool, error) {
	for _, env := range []string{"CARGO_MAKEFLAGS", "MAKEFLAGS"} {
		flags, present := os.LookupEnv(env)
		if !present {
			continue
		}
		for _, field := range strings.Fields(flags) {
			auth, ok := cutPrefixAny(field, "--jobserver-auth=", "--jobserver-fds=")
			if !ok {
				continue
			}
			r, w, err := parseAuth(auth)
			if err != nil {
				return nil, true, err
			}
			return &pipePool{
				r: os.NewFile(uintptr(r), "jobserver-r"),
				w: os.NewFile(uintptr(w), "jobserver-w"),
			}, true, nil
		}
	}
	return nil, false, nil
}

func cutPrefixAny(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return s[len(p):], true
		}
	}
	return "", false
}

func parseAuth(auth string) (r, w int, err error) {
	parts := strings.SplitN(auth, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed jobserver auth %q", auth)
	}
	r, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed jobserver read fd %q: %w", parts[0], err)
	}
	w, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed jobserver write fd %q: %w", parts[1], err)
	}
	return r, w, nil
}

// pipePool is the real GNU make protocol: the pool holds N bytes in a pipe,
// one per available token. Acquiring a token reads one byte; releasing it
// writes one back.
type pipePool struct {
	r, w *os.File
}

func newPipePool(jobs int) (*pipePool, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, &forgeerr.Jobserver{Err: err}
	}
	// The calling process holds one implicit token; the pipe carries the
	// rest (§4: "immediately acquires one").
	tokens := jobs - 1
	if tokens > 0 {
		if _, err := w.Write(make([]byte, tokens)); err != nil {
			r.Close()
			w.Close()
			return nil, &forgeerr.Jobserver{Err: err}
		}
	}
	return &pipePool{r: r, w: w}, nil
}

func (p *pipePool) Acquire(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := p.r.Read(buf)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return &forgeerr.Jobserver{Err: err}
		}
		return nil
	}
}

func (p *pipePool) TryAcquire() bool {
	if err := p.r.SetReadDeadline(immediatePast); err != nil {
		// Platforms where pipes don't support deadlines (rare): fall back
		// to treating every TryAcquire as unavailable rather than risking
		// a blocking read on the scheduler's hot path.
		return false
	}
	defer p.r.SetReadDeadline(noDeadline)
	buf := make([]byte, 1)
	_, err := p.r.Read(buf)
	return err == nil
}

func (p *pipePool) Release() {
	p.w.Write([]byte{0})
}

func (p *pipePool) Close() error {
	rerr := p.r.Close()
	werr := p.w.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// semaphorePool is the non-cooperating fallback: a weighted semaphore local
// to this process, used when MAKEFLAGS advertises no jobserver and the
// caller prefers not to spawn a pipe-backed one (e.g. tests, or platforms
// without pipe read deadlines).
type semaphorePool struct {
	sem *semaphore.Weighted
	mu  sync.Mutex
}

// NewLocal builds a Pool that never cooperates with an external make/cargo
// process, bounding concurrency to jobs within this process only.
func NewLocal(jobs int) Pool {
	if jobs < 1 {
		jobs = 1
	}
	return &semaphorePool{sem: semaphore.NewWeighted(int64(jobs))}
}

func (s *semaphorePool) Acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return &forgeerr.Jobserver{Err: err}
	}
	return nil
}

func (s *semaphorePool) TryAcquire() bool {
	return s.sem.TryAcquire(1)
}

func (s *semaphorePool) Release() {
	s.sem.Release(1)
}

func (s *semaphorePool) Close() error { return nil }
