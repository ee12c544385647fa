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

// Package jobqueuetest provides a deterministic Executor double for testing
// the scheduler without spawning real compiler processes (§6 "tests can
// substitute a mock").
package jobqueuetest

import (
	"context"
	"sync"
	"time"

	"forgecore/jobqueue"
)

// Behavior describes how the mock should handle one unit's invocation.
type Behavior struct {
	// Sleep is how long Run waits before completing, simulating compile
	// time.
	Sleep time.Duration
	// RmetaAfter, if non-zero, fires OnRmeta this long after Run starts
	// (before the final Sleep completes), simulating the rmeta-produced
	// event of §4.5.
	RmetaAfter time.Duration
	ExitCode   int
	Stderr     string
	Stdout     []string
}

// Executor is a scripted Executor: callers register a Behavior per unit id
// up front, then Run replays it.
type Executor struct {
	mu sync.Mutex

	Default   Behavior
	Behaviors map[string]Behavior

	// Started and Finished record, in observed start and completion order
	// respectively, which unit ids actually ran — useful for asserting peak concurrency and
	// ordering properties (§8 scenario 2).
	Started  []string
	Finished []string

	// StartTimes and FinishTimes record wall-clock timestamps per unit id,
	// used by pipelining tests to assert a parent started before its
	// child's full artifact was ready (§8 scenario 3).
	StartTimes  map[string]time.Time
	FinishTimes map[string]time.Time

	// Concurrent tracks the current and peak number of simultaneously
	// running commands.
	current int
	Peak    int
}

func (e *Executor) behaviorFor(unitID string) Behavior {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.Behaviors[unitID]; ok {
		return b
	}
	return e.Default
}

func (e *Executor) Run(ctx context.Context, cmd jobqueue.Command, cb jobqueue.Callbacks) (jobqueue.Result, error) {
	e.mu.Lock()
	e.Started = append(e.Started, cmd.UnitID)
	e.current++
	if e.current > e.Peak {
		e.Peak = e.current
	}
	if e.StartTimes == nil {
		e.StartTimes = make(map[string]time.Time)
	}
	e.StartTimes[cmd.UnitID] = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.current--
		e.Finished = append(e.Finished, cmd.UnitID)
		if e.FinishTimes == nil {
			e.FinishTimes = make(map[string]time.Time)
		}
		e.FinishTimes[cmd.UnitID] = time.Now()
		e.mu.Unlock()
	}()

	b := e.behaviorFor(cmd.UnitID)

	for _, line := range b.Stdout {
		if cb.OnStdoutLine != nil {
			cb.OnStdoutLine(line)
		}
	}

	var rmetaC <-chan time.Time
	if b.RmetaAfter > 0 {
		rmetaTimer := time.NewTimer(maxDuration(b.RmetaAfter, 0))
		defer rmetaTimer.Stop()
		rmetaC = rmetaTimer.C
	}
	doneTimer := time.NewTimer(b.Sleep)
	defer doneTimer.Stop()

	rmetaFired := cb.OnRmeta == nil

	for {
		select {
		case <-ctx.Done():
			return jobqueue.Result{}, ctx.Err()
		case <-rmetaC:
			if !rmetaFired && cb.OnRmeta != nil && b.ExitCode == 0 {
				cb.OnRmeta()
				rmetaFired = true
			}
		case <-doneTimer.C:
			if !rmetaFired && cb.OnRmeta != nil && b.ExitCode == 0 {
				cb.OnRmeta()
			}
			if b.ExitCode != 0 && cb.OnStderrLine != nil && b.Stderr != "" {
				cb.OnStderrLine(b.Stderr)
			}
			return jobqueue.Result{ExitCode: b.ExitCode, Stderr: b.Stderr}, nil
		}
	}
}

func maxDuration(d, floor time.Duration) time.Duration {
	if d <= floor {
		return floor
	}
	return d
}
