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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forgecore/config"
	"forgecore/unit"
)

func TestEvalStarlarkOverride_ReadsRecognizedGlobals(t *testing.T) {
	script := `
opt_level = "2"
lto = "thin"
codegen_units = 4
debug_assertions = False
panic = "abort"
`
	o, err := config.EvalStarlarkOverride("foo", script)
	require.NoError(t, err)
	require.NotNil(t, o.OptLevel)
	require.Equal(t, "2", *o.OptLevel)
	require.NotNil(t, o.Lto)
	require.Equal(t, unit.LtoThin, *o.Lto)
	require.NotNil(t, o.CodegenUnits)
	require.Equal(t, 4, *o.CodegenUnits)
	require.NotNil(t, o.DebugAssertions)
	require.False(t, *o.DebugAssertions)
	require.NotNil(t, o.Panic)
	require.Equal(t, unit.PanicAbort, *o.Panic)
}

func TestEvalStarlarkOverride_IgnoresUnrecognizedGlobals(t *testing.T) {
	o, err := config.EvalStarlarkOverride("foo", `something_else = 42`)
	require.NoError(t, err)
	require.Nil(t, o.OptLevel)
	require.Nil(t, o.CodegenUnits)
}

func TestEvalStarlarkOverride_SyntaxErrorIsReportedAsConfigError(t *testing.T) {
	_, err := config.EvalStarlarkOverride("foo", `this is not valid starlark +++`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "foo")
}

func TestEvalStarlarkOverride_WrongFieldTypeIsRejected(t *testing.T) {
	_, err := config.EvalStarlarkOverride("foo", `opt_level = 2`)
	require.Error(t, err)
}

func TestParseKeyValueOverride_ParsesAllRecognizedKeys(t *testing.T) {
	text := `
# a comment
opt-level = 2
lto = fat
codegen-units = 16
debug-assertions = true
overflow-checks = false
panic = unwind
incremental = true
rpath = false
`
	o, err := config.ParseKeyValueOverride("foo", text)
	require.NoError(t, err)
	require.Equal(t, "2", *o.OptLevel)
	require.Equal(t, unit.LtoFat, *o.Lto)
	require.Equal(t, 16, *o.CodegenUnits)
	require.True(t, *o.DebugAssertions)
	require.False(t, *o.OverflowChecks)
	require.Equal(t, unit.PanicUnwind, *o.Panic)
	require.True(t, *o.Incremental)
	require.False(t, *o.Rpath)
}

func TestParseKeyValueOverride_UnknownKeyIsRejected(t *testing.T) {
	_, err := config.ParseKeyValueOverride("foo", "bogus-key = 1")
	require.Error(t, err)
}

func TestParseKeyValueOverride_MalformedLineIsRejected(t *testing.T) {
	_, err := config.ParseKeyValueOverride("foo", "not-an-assignment")
	require.Error(t, err)
}

func TestParseKeyValueOverride_BlankAndCommentLinesAreSkipped(t *testing.T) {
	o, err := config.ParseKeyValueOverride("foo", "\n# comment\n\nopt-level = 1\n")
	require.NoError(t, err)
	require.Equal(t, "1", *o.OptLevel)
}
