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

package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"forgecore/unit"
)

func TestLayout_HostVsTargetAreDistinctSubtrees(t *testing.T) {
	host := New("/ws", "debug", unit.Host)
	tgt := New("/ws", "debug", unit.ForTarget("x86_64-unknown-forge"))

	require.NotEqual(t, host.Root, tgt.Root)
	require.Equal(t, filepath.Join("/ws", "target", "debug"), host.Root)
	require.Equal(t, filepath.Join("/ws", "target", "debug", "x86_64-unknown-forge"), tgt.Root)
}

func TestLayout_PrepareIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "debug", unit.Host)

	require.NoError(t, l.Prepare())
	require.NoError(t, l.Prepare())

	for _, d := range []string{l.Dest, l.Deps, l.Build, l.Examples, l.Fingerprint, l.Incremental} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
	_, err := os.Stat(l.Doc)
	require.True(t, os.IsNotExist(err), "doc/ is only created by PrepareDoc")
}
