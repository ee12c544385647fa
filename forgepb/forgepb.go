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

// Package forgepb is the wire format BuildScriptOutput and Compilation are
// optionally emitted in alongside their JSON forms (§6), the way Soong's
// ui/metrics writes soong_metrics_proto next to its human-readable build
// summary. The two messages here are small and fixed enough that encoding
// them directly against google.golang.org/protobuf/encoding/protowire is
// simpler than carrying generated code for a .proto file this module
// doesn't otherwise need to share; protowire is the same package every
// generated message's MarshalAppend eventually bottoms out in, so this is
// the library's own documented low-level entry point, not a workaround.
package forgepb

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// BuildScriptOutput mirrors buildscript.Output's fields (§3
// BuildScriptOutput, §4.6).
type BuildScriptOutput struct {
	Cfgs              []string
	CheckCfgs         []string
	Env               map[string]string
	LinkerArgs        []string
	LibraryPaths      []string
	Libs              []string
	Warnings          []string
	RerunIfChanged    []string
	RerunIfEnvChanged []string
}

const (
	fieldCfgs = protowire.Number(iota + 1)
	fieldCheckCfgs
	fieldEnv
	fieldLinkerArgs
	fieldLibraryPaths
	fieldLibs
	fieldWarnings
	fieldRerunIfChanged
	fieldRerunIfEnvChanged
)

// Marshal renders b in protobuf wire format.
func (b *BuildScriptOutput) Marshal() []byte {
	var out []byte
	out = appendStrings(out, fieldCfgs, b.Cfgs)
	out = appendStrings(out, fieldCheckCfgs, b.CheckCfgs)
	out = appendStringMap(out, fieldEnv, b.Env)
	out = appendStrings(out, fieldLinkerArgs, b.LinkerArgs)
	out = appendStrings(out, fieldLibraryPaths, b.LibraryPaths)
	out = appendStrings(out, fieldLibs, b.Libs)
	out = appendStrings(out, fieldWarnings, b.Warnings)
	out = appendStrings(out, fieldRerunIfChanged, b.RerunIfChanged)
	out = appendStrings(out, fieldRerunIfEnvChanged, b.RerunIfEnvChanged)
	return out
}

// UnmarshalBuildScriptOutput parses the wire format Marshal produces.
func UnmarshalBuildScriptOutput(data []byte) (*BuildScriptOutput, error) {
	m := &BuildScriptOutput{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldCfgs, fieldCheckCfgs, fieldLinkerArgs, fieldLibraryPaths,
			fieldLibs, fieldWarnings, fieldRerunIfChanged, fieldRerunIfEnvChanged:
			v, n, err := consumeString(b)
			if err != nil {
				return 0, err
			}
			switch num {
			case fieldCfgs:
				m.Cfgs = append(m.Cfgs, v)
			case fieldCheckCfgs:
				m.CheckCfgs = append(m.CheckCfgs, v)
			case fieldLinkerArgs:
				m.LinkerArgs = append(m.LinkerArgs, v)
			case fieldLibraryPaths:
				m.LibraryPaths = append(m.LibraryPaths, v)
			case fieldLibs:
				m.Libs = append(m.Libs, v)
			case fieldWarnings:
				m.Warnings = append(m.Warnings, v)
			case fieldRerunIfChanged:
				m.RerunIfChanged = append(m.RerunIfChanged, v)
			case fieldRerunIfEnvChanged:
				m.RerunIfEnvChanged = append(m.RerunIfEnvChanged, v)
			}
			return n, nil
		case fieldEnv:
			entry, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			k, v, err := parseMapEntry(entry)
			if err != nil {
				return 0, err
			}
			if m.Env == nil {
				m.Env = map[string]string{}
			}
			m.Env[k] = v
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// TestBinary mirrors buildrunner.TestBinary.
type TestBinary struct {
	UnitID    string
	CrateName string
	Path      string
	Kind      string
}

func (t *TestBinary) marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendString(out, t.UnitID)
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendString(out, t.CrateName)
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendString(out, t.Path)
	out = protowire.AppendTag(out, 4, protowire.BytesType)
	out = protowire.AppendString(out, t.Kind)
	return out
}

func unmarshalTestBinary(data []byte) (*TestBinary, error) {
	t := &TestBinary{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		v, n, err := consumeString(b)
		if err != nil {
			return 0, err
		}
		switch num {
		case 1:
			t.UnitID = v
		case 2:
			t.CrateName = v
		case 3:
			t.Path = v
		case 4:
			t.Kind = v
		default:
			return skipField(num, typ, b)
		}
		return n, nil
	})
	return t, err
}

// Doctest mirrors buildrunner.Doctest.
type Doctest struct {
	UnitID      string
	CrateName   string
	ExternArgs  []string
	CfgArgs     []string
	FeatureArgs []string
}

func (d *Doctest) marshal() []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendString(out, d.UnitID)
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendString(out, d.CrateName)
	out = appendStrings(out, 3, d.ExternArgs)
	out = appendStrings(out, 4, d.CfgArgs)
	out = appendStrings(out, 5, d.FeatureArgs)
	return out
}

func unmarshalDoctest(data []byte) (*Doctest, error) {
	d := &Doctest{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2, 3, 4, 5:
			v, n, err := consumeString(b)
			if err != nil {
				return 0, err
			}
			switch num {
			case 1:
				d.UnitID = v
			case 2:
				d.CrateName = v
			case 3:
				d.ExternArgs = append(d.ExternArgs, v)
			case 4:
				d.CfgArgs = append(d.CfgArgs, v)
			case 5:
				d.FeatureArgs = append(d.FeatureArgs, v)
			}
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	return d, err
}

// Compilation mirrors buildrunner.Compilation's summary fields — the
// artifact lists a caller needs without re-deriving them from OutputFile
// sets (§4.8 step 11).
type Compilation struct {
	Binaries     []string
	Cdylibs      []string
	Tests        []*TestBinary
	Doctests     []*Doctest
	Warnings     []string
	SBOMPaths    []string
	DepInfoPaths []string
}

const (
	fieldBinaries = protowire.Number(iota + 1)
	fieldCdylibs
	fieldTests
	fieldDoctests
	fieldCompileWarnings
	fieldSBOMPaths
	fieldDepInfoPaths
)

// Marshal renders c in protobuf wire format.
func (c *Compilation) Marshal() []byte {
	var out []byte
	out = appendStrings(out, fieldBinaries, c.Binaries)
	out = appendStrings(out, fieldCdylibs, c.Cdylibs)
	for _, t := range c.Tests {
		out = protowire.AppendTag(out, fieldTests, protowire.BytesType)
		out = protowire.AppendBytes(out, t.marshal())
	}
	for _, d := range c.Doctests {
		out = protowire.AppendTag(out, fieldDoctests, protowire.BytesType)
		out = protowire.AppendBytes(out, d.marshal())
	}
	out = appendStrings(out, fieldCompileWarnings, c.Warnings)
	out = appendStrings(out, fieldSBOMPaths, c.SBOMPaths)
	out = appendStrings(out, fieldDepInfoPaths, c.DepInfoPaths)
	return out
}

// UnmarshalCompilation parses the wire format Marshal produces.
func UnmarshalCompilation(data []byte) (*Compilation, error) {
	c := &Compilation{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldBinaries, fieldCdylibs, fieldCompileWarnings, fieldSBOMPaths, fieldDepInfoPaths:
			v, n, err := consumeString(b)
			if err != nil {
				return 0, err
			}
			switch num {
			case fieldBinaries:
				c.Binaries = append(c.Binaries, v)
			case fieldCdylibs:
				c.Cdylibs = append(c.Cdylibs, v)
			case fieldCompileWarnings:
				c.Warnings = append(c.Warnings, v)
			case fieldSBOMPaths:
				c.SBOMPaths = append(c.SBOMPaths, v)
			case fieldDepInfoPaths:
				c.DepInfoPaths = append(c.DepInfoPaths, v)
			}
			return n, nil
		case fieldTests:
			entry, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			t, err := unmarshalTestBinary(entry)
			if err != nil {
				return 0, err
			}
			c.Tests = append(c.Tests, t)
			return n, nil
		case fieldDoctests:
			entry, n, err := consumeBytes(b)
			if err != nil {
				return 0, err
			}
			d, err := unmarshalDoctest(entry)
			if err != nil {
				return 0, err
			}
			c.Doctests = append(c.Doctests, d)
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func appendStrings(b []byte, num protowire.Number, vals []string) []byte {
	for _, v := range vals {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

// appendStringMap encodes m as repeated map-entry submessages ({1: key,
// 2: value}, the shape protoc-gen-go itself generates for map<string,
// string>), sorted by key so Marshal's output is deterministic.
func appendStringMap(b []byte, num protowire.Number, m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendString(entry, m[k])
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func parseMapEntry(data []byte) (key, value string, err error) {
	err = consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		v, n, err := consumeString(b)
		if err != nil {
			return 0, err
		}
		switch num {
		case 1:
			key = v
		case 2:
			value = v
		default:
			return skipField(num, typ, b)
		}
		return n, nil
	})
	return key, value, err
}

// fieldFn consumes one field's value (b starts right after the tag) and
// returns the number of bytes it consumed.
type fieldFn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// consumeFields walks every (tag, value) pair in data, handing each to fn.
func consumeFields(data []byte, fn fieldFn) error {
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		consumed, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[consumed:]
	}
	return nil
}

func consumeString(b []byte) (string, int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(b []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
