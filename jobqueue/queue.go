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

package jobqueue

import (
	"context"
	"sort"
	"sync"

	"forgecore/forgeerr"
	"forgecore/jobserver"
	"forgecore/unit"
)

// CommandFunc builds the compiler invocation for u. Supplied by the caller
// (BuildRunner) because assembling the actual rustc argv depends on
// CompilationFiles, BuildScript outputs and Layout, none of which the
// scheduler itself knows about (§6).
type CommandFunc func(u *unit.Unit) (Command, error)

// Message is one line of captured compiler output, forwarded in receipt
// order (§4.7 "Ordering guarantees").
type Message struct {
	UnitID string
	Stderr bool
	Line   string
}

type parentEdge struct {
	parentID string
	rmetaOK  bool
}

// Queue is the topological parallel executor of §4.7. Its bookkeeping maps
// (remaining, state) are owned exclusively by the goroutine running
// Execute; worker goroutines only ever send events back to it (§9 "model
// them as message-passing").
type Queue struct {
	pool  jobserver.Pool
	exec  Executor
	build CommandFunc

	units     map[string]*unit.Unit
	remaining map[string]int
	parents   map[string][]parentEdge
	primary   map[string]bool
	depth     map[string]int
	state     map[string]State

	msgMu     sync.Mutex
	OnMessage func(Message)
}

type eventKind int

const (
	eventRmeta eventKind = iota
	eventFinished
)

type event struct {
	kind   eventKind
	unitID string
	ok     bool
	err    error
}

// Build assembles a Queue from a frozen UnitGraph. primary names the
// package ids the user selected explicitly; units belonging to those
// packages are scheduled ahead of transitive dependencies with equal
// readiness (§4.7 "primary-package first, then by topological depth").
func Build(pool jobserver.Pool, exec Executor, cmdFn CommandFunc, g *unit.UnitGraph, primary map[unit.PackageID]bool) *Queue {
	q := &Queue{
		pool:      pool,
		exec:      exec,
		build:     cmdFn,
		units:     g.Units(),
		remaining: make(map[string]int),
		parents:   make(map[string][]parentEdge),
		primary:   make(map[string]bool),
		depth:     make(map[string]int),
		state:     make(map[string]State),
	}

	for id, u := range q.units {
		deps := g.Deps(u)
		q.remaining[id] = len(deps)
		q.state[id] = StatePending
		q.primary[id] = primary[u.Pkg.ID]
		for _, d := range deps {
			childID := d.Child.ID()
			q.parents[childID] = append(q.parents[childID], parentEdge{
				parentID: id,
				rmetaOK:  !d.RequiresUpstreamObjects(),
			})
		}
	}

	var depthOf func(id string) int
	memo := make(map[string]int)
	depthOf = func(id string) int {
		if d, ok := memo[id]; ok {
			return d
		}
		memo[id] = 0 // break cycles defensively; graphs are acyclic by construction (§3)
		max := 0
		for _, d := range g.Deps(q.units[id]) {
			if cd := depthOf(d.Child.ID()) + 1; cd > max {
				max = cd
			}
		}
		memo[id] = max
		return max
	}
	for id := range q.units {
		q.depth[id] = depthOf(id)
	}

	return q
}

func (q *Queue) emit(msg Message) {
	if q.OnMessage == nil {
		return
	}
	q.msgMu.Lock()
	defer q.msgMu.Unlock()
	q.OnMessage(msg)
}

// readySorted returns the ids with zero remaining unresolved deps, in scheduling
// priority order: primary packages first, then deeper units (more
// downstream work depends on them) first, tie-broken by id for
// determinism.
func (q *Queue) readySorted(readySet map[string]bool) []string {
	ids := make([]string, 0, len(readySet))
	for id := range readySet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if q.primary[a] != q.primary[b] {
			return q.primary[a]
		}
		if q.depth[a] != q.depth[b] {
			return q.depth[a] > q.depth[b]
		}
		return a < b
	})
	return ids
}

// Execute runs the main scheduling loop (§4.7) and returns the first
// compile failure encountered, or nil if every unit finished successfully.
// On ctx cancellation it stops spawning new jobs, waits for in-flight ones
// to exit, and returns ctx.Err().
func (q *Queue) Execute(ctx context.Context) error {
	ready := make(map[string]bool)
	for id, n := range q.remaining {
		if n == 0 {
			ready[id] = true
		}
	}

	events := make(chan event, len(q.units)+1)
	running := 0
	draining := false
	cancelling := false
	var firstErr error

	spawn := func(id string) {
		running++
		q.state[id] = StateRunning
		u := q.units[id]
		go func() {
			cmd, err := q.build(u)
			if err != nil {
				events <- event{kind: eventFinished, unitID: id, ok: false, err: err}
				return
			}
			cb := Callbacks{
				OnStdoutLine: func(line string) { q.emit(Message{UnitID: id, Line: line}) },
				OnStderrLine: func(line string) { q.emit(Message{UnitID: id, Stderr: true, Line: line}) },
				OnRmeta:      func() { events <- event{kind: eventRmeta, unitID: id} },
			}
			res, runErr := q.exec.Run(ctx, cmd, cb)
			if runErr != nil || res.ExitCode != 0 {
				events <- event{kind: eventFinished, unitID: id, ok: false, err: &forgeerr.Compile{
					UnitID:    id,
					ExitCode:  res.ExitCode,
					Stderr:    res.Stderr,
					CrateName: u.CrateName(),
				}}
				return
			}
			events <- event{kind: eventFinished, unitID: id, ok: true}
		}()
	}

	cancelDependents := func(id string) {
		var walk func(string)
		seen := map[string]bool{}
		walk = func(cur string) {
			for _, p := range q.parents[cur] {
				if seen[p.parentID] {
					continue
				}
				seen[p.parentID] = true
				if q.state[p.parentID] == StatePending {
					q.state[p.parentID] = StateCancelled
				}
				walk(p.parentID)
			}
		}
		walk(id)
	}

	for {
		if !draining && !cancelling {
			for len(ready) > 0 && q.pool.TryAcquire() {
				ids := q.readySorted(ready)
				id := ids[0]
				delete(ready, id)
				q.state[id] = StateQueued
				spawn(id)
			}
		}

		if running == 0 && len(ready) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			if !cancelling {
				cancelling = true
			}
			if running == 0 {
				return ctx.Err()
			}
			// keep draining events until in-flight jobs exit
		case ev := <-events:
			switch ev.kind {
			case eventRmeta:
				for _, p := range q.parents[ev.unitID] {
					if !p.rmetaOK {
						continue
					}
					if q.state[p.parentID] != StatePending {
						continue
					}
					q.remaining[p.parentID]--
					if q.remaining[p.parentID] <= 0 {
						ready[p.parentID] = true
					}
				}
			case eventFinished:
				running--
				q.pool.Release()
				if ev.ok {
					q.state[ev.unitID] = StateFinished
					for _, p := range q.parents[ev.unitID] {
						if p.rmetaOK {
							continue // already satisfied by this unit's rmeta event
						}
						if q.state[p.parentID] != StatePending {
							continue
						}
						q.remaining[p.parentID]--
						if q.remaining[p.parentID] <= 0 {
							ready[p.parentID] = true
						}
					}
				} else {
					q.state[ev.unitID] = StateFailed
					if firstErr == nil {
						firstErr = ev.err
					}
					draining = true
					cancelDependents(ev.unitID)
				}
			}
		}
	}

	if cancelling {
		// Cancellation supersedes any compile failure it provoked: a unit
		// whose Executor.Run returned because ctx was done is not a real
		// compiler failure, it's the cancellation surfacing (§4.7 "On
		// interrupt... return a cancellation error").
		return ctx.Err()
	}
	return firstErr
}

// State reports a unit's current scheduling state. Safe to call only after
// Execute returns; while Execute is running, state belongs to its owning
// goroutine (§9).
func (q *Queue) State(unitID string) State {
	return q.state[unitID]
}
