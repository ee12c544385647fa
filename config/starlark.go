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

package config

import (
	"bufio"
	"strconv"
	"strings"

	"go.starlark.net/starlark"

	"forgecore/forgeerr"
	"forgecore/unit"
)

// EvalStarlarkOverride runs a small Starlark snippet for one package and
// turns its top-level assignments into a PackageOverride, mirroring
// Soong's per-variant product config: the script is not a general-purpose
// build file, just a handful of "does package X override profile field Y"
// assignments evaluated once (§A.3). Recognized globals: opt_level (str),
// lto ("off"|"thin"|"fat"), codegen_units (int), debug_assertions (bool),
// overflow_checks (bool), panic ("unwind"|"abort"), incremental (bool),
// rpath (bool).
func EvalStarlarkOverride(pkgName, script string) (PackageOverride, error) {
	thread := &starlark.Thread{Name: "profile-override:" + pkgName}
	globals, err := starlark.ExecFile(thread, pkgName+".star", script, nil)
	if err != nil {
		return PackageOverride{}, &forgeerr.Config{Package: pkgName, Err: err}
	}

	var o PackageOverride
	if v, ok := globals["opt_level"]; ok {
		s, ok := starlark.AsString(v)
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errNotString("opt_level")}
		}
		o.OptLevel = &s
	}
	if v, ok := globals["lto"]; ok {
		s, ok := starlark.AsString(v)
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errNotString("lto")}
		}
		mode := unit.LtoMode(s)
		o.Lto = &mode
	}
	if v, ok := globals["codegen_units"]; ok {
		n, ok := v.(starlark.Int)
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errNotInt("codegen_units")}
		}
		i, _ := n.Int64()
		cu := int(i)
		o.CodegenUnits = &cu
	}
	if v, ok := globals["debug_assertions"]; ok {
		b, ok := v.(starlark.Bool)
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errNotBool("debug_assertions")}
		}
		bv := bool(b)
		o.DebugAssertions = &bv
	}
	if v, ok := globals["overflow_checks"]; ok {
		b, ok := v.(starlark.Bool)
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errNotBool("overflow_checks")}
		}
		bv := bool(b)
		o.OverflowChecks = &bv
	}
	if v, ok := globals["panic"]; ok {
		s, ok := starlark.AsString(v)
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errNotString("panic")}
		}
		strategy := unit.PanicStrategy(s)
		o.Panic = &strategy
	}
	if v, ok := globals["incremental"]; ok {
		b, ok := v.(starlark.Bool)
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errNotBool("incremental")}
		}
		bv := bool(b)
		o.Incremental = &bv
	}
	if v, ok := globals["rpath"]; ok {
		b, ok := v.(starlark.Bool)
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errNotBool("rpath")}
		}
		bv := bool(b)
		o.Rpath = &bv
	}
	return o, nil
}

type fieldTypeError struct {
	field, want string
}

func (e *fieldTypeError) Error() string { return e.field + " must be a " + e.want }

func errNotString(field string) error { return &fieldTypeError{field, "string"} }
func errNotInt(field string) error    { return &fieldTypeError{field, "int"} }
func errNotBool(field string) error   { return &fieldTypeError{field, "bool"} }

// ParseKeyValueOverride parses the plain "key = value" override format
// used by the common case: a package with no Starlark script at all
// (§A.3 "falls back to plain TOML-like key/value overrides"). One
// assignment per line, '#' starts a comment, blank lines ignored.
func ParseKeyValueOverride(pkgName, text string) (PackageOverride, error) {
	var o PackageOverride
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return o, &forgeerr.Config{Package: pkgName, Err: errMalformedLine(line)}
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		var err error
		switch key {
		case "opt-level":
			o.OptLevel = &val
		case "lto":
			mode := unit.LtoMode(val)
			o.Lto = &mode
		case "codegen-units":
			var n int
			n, err = strconv.Atoi(val)
			o.CodegenUnits = &n
		case "debug-assertions":
			var b bool
			b, err = strconv.ParseBool(val)
			o.DebugAssertions = &b
		case "overflow-checks":
			var b bool
			b, err = strconv.ParseBool(val)
			o.OverflowChecks = &b
		case "panic":
			strategy := unit.PanicStrategy(val)
			o.Panic = &strategy
		case "incremental":
			var b bool
			b, err = strconv.ParseBool(val)
			o.Incremental = &b
		case "rpath":
			var b bool
			b, err = strconv.ParseBool(val)
			o.Rpath = &b
		default:
			err = errUnknownKey(key)
		}
		if err != nil {
			return PackageOverride{}, &forgeerr.Config{Package: pkgName, Err: err}
		}
	}
	return o, nil
}

type malformedLineError struct{ line string }

func (e *malformedLineError) Error() string { return "malformed override line: " + e.line }

func errMalformedLine(line string) error { return &malformedLineError{line} }

type unknownKeyError struct{ key string }

func (e *unknownKeyError) Error() string { return "unknown profile override key: " + e.key }

func errUnknownKey(key string) error { return &unknownKeyError{key} }
