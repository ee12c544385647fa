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

// Package pkglock guards a shared resource (the package/registry cache)
// against concurrent mutation across separate engine invocations (§C.1):
// a shared/exclusive advisory lock over a lock file, with non-fatal
// contention reporting so a caller can surface who is holding the lock
// and how long it has been waiting, the way Cargo's own package-cache
// lock does.
package pkglock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"forgecore/forgeerr"
)

// Kind selects whether the lock is held for reading (Shared, many holders
// allowed) or writing (Exclusive, one holder at a time).
type Kind int

const (
	Shared Kind = iota
	Exclusive
)

func (k Kind) flockFlag() int {
	if k == Exclusive {
		return syscall.LOCK_EX
	}
	return syscall.LOCK_SH
}

// Metadata identifies the current lock holder, written into the lock file
// itself so a blocked caller can report who it is waiting on.
type Metadata struct {
	Actor      string    `json:"actor"`
	PID        int       `json:"pid"`
	Kind       Kind      `json:"kind"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a held advisory lock. Release must be called exactly once.
type Lock struct {
	file *os.File
	path string
}

// pollInterval is how often a blocked Acquire retries the non-blocking
// flock call and recomputes wait time for its contention callback.
const pollInterval = 200 * time.Millisecond

// Acquire takes a lock on path, identifying the caller as actor in the
// lock file's metadata. It tries a non-blocking flock every pollInterval
// until the lock is free or ctx is done; each time an attempt fails because
// another actor holds an incompatible lock, onContention (if non-nil) is
// invoked with the holder's identity and the time waited so far.
func Acquire(ctx context.Context, path, actor string, kind Kind, onContention func(forgeerr.LockContention)) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %q: %w", path, err)
	}

	start := time.Now()

	for {
		err := syscall.Flock(int(file.Fd()), kind.flockFlag()|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			file.Close()
			return nil, fmt.Errorf("locking %q: %w", path, err)
		}

		if onContention != nil {
			holder := readHolder(file)
			onContention(forgeerr.LockContention{HeldBy: holder, Waited: time.Since(start).Round(time.Millisecond).String()})
		}

		select {
		case <-ctx.Done():
			file.Close()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	meta := Metadata{Actor: actor, PID: os.Getpid(), Kind: kind, AcquiredAt: time.Now()}
	if kind == Exclusive {
		if err := writeMetadata(file, meta); err != nil {
			syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
			file.Close()
			return nil, err
		}
	}

	return &Lock{file: file, path: path}, nil
}

// Release unlocks and closes the underlying file. The lock file itself is
// left in place: other actors may still be waiting on it, and removing it
// out from under a concurrent non-blocking flock attempt would let two
// exclusive holders believe they both succeeded.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("unlocking %q: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing lock file %q: %w", l.path, closeErr)
	}
	return nil
}

func writeMetadata(f *os.File, m Metadata) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seeking lock file: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("writing lock metadata: %w", err)
	}
	return f.Sync()
}

// readHolder best-effort reads the current holder's actor name out of the
// lock file. Any failure (empty file mid-write, another actor about to
// overwrite it) just yields "unknown" rather than failing the caller's
// contention report.
func readHolder(f *os.File) string {
	var m Metadata
	if _, err := f.Seek(0, 0); err != nil {
		return "unknown"
	}
	dec := json.NewDecoder(f)
	if err := dec.Decode(&m); err != nil || m.Actor == "" {
		return "unknown"
	}
	return m.Actor
}
