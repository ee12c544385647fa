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

package jobserver

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipePool_TokenBudgetIsJobsMinusOne(t *testing.T) {
	p, err := newPipePool(3)
	require.NoError(t, err)
	defer p.Close()

	require.True(t, p.TryAcquire())
	require.True(t, p.TryAcquire())
	require.False(t, p.TryAcquire(), "only jobs-1 tokens are in the pipe, the caller holds the implicit one")

	p.Release()
	require.True(t, p.TryAcquire())
}

func TestPipePool_AcquireBlocksUntilRelease(t *testing.T) {
	p, err := newPipePool(1)
	require.NoError(t, err)
	defer p.Close()

	require.False(t, p.TryAcquire(), "jobs=1 leaves zero spare tokens in the pipe")

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(released)
		p.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, p.Acquire(ctx))
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	select {
	case <-released:
	default:
		t.Fatal("Acquire returned before Release was called")
	}
}

func TestPipePool_AcquireRespectsContextCancellation(t *testing.T) {
	p, err := newPipePool(1)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSemaphorePool_BoundsConcurrency(t *testing.T) {
	p := NewLocal(2)
	ctx := context.Background()
	require.NoError(t, p.Acquire(ctx))
	require.NoError(t, p.Acquire(ctx))
	require.False(t, p.TryAcquire())
	p.Release()
	require.True(t, p.TryAcquire())
}

func TestInherit_NoJobserverFlagsYieldsNoPool(t *testing.T) {
	os.Unsetenv("MAKEFLAGS")
	os.Unsetenv("CARGO_MAKEFLAGS")
	_, ok, err := inherit()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInherit_ParsesJobserverAuthFlag(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	t.Setenv("MAKEFLAGS", "-j --jobserver-auth="+strconv.Itoa(int(r.Fd()))+","+strconv.Itoa(int(w.Fd())))
	pool, ok, err := inherit()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, pool)
}
