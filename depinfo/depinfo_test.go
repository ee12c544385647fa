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

package depinfo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"forgecore/depinfo"
)

func TestLine_JoinsOutputAndSources(t *testing.T) {
	line := depinfo.Line("/target/debug/libfoo.rlib", []string{"/src/lib.rs", "/src/util.rs"})
	require.Equal(t, "/target/debug/libfoo.rlib: /src/lib.rs /src/util.rs", line)
}

func TestLine_EscapesSpacesInPaths(t *testing.T) {
	line := depinfo.Line("/target/debug/libfoo.rlib", []string{"/src/my file.rs"})
	require.Equal(t, `/target/debug/libfoo.rlib: /src/my\ file.rs`, line)
}

func TestLine_NoSourcesStillEmitsBareOutputLine(t *testing.T) {
	line := depinfo.Line("/target/debug/libfoo.rlib", nil)
	require.Equal(t, "/target/debug/libfoo.rlib:", line)
}

func TestWriteFile_SortsUnitsByOutputAndWritesOneLineEach(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.d")

	err := depinfo.WriteFile(path, []depinfo.Unit{
		{Output: "/target/debug/libb.rlib", Sources: []string{"/src/b.rs"}},
		{Output: "/target/debug/liba.rlib", Sources: []string{"/src/a.rs"}},
	})
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t,
		"/target/debug/liba.rlib: /src/a.rs\n/target/debug/libb.rlib: /src/b.rs\n",
		string(contents),
	)
}
