// Copyright 2024 The tydb Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nameparse

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opendebug/tydb/config"
	"github.com/opendebug/tydb/tygraph"
)

func TestMakeParseToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foo", "____tydb_parse_Foo$$3_"},
		{"ns::Foo<int>", "____tydb_parse_ns$$2_Foo$ltint$gt$$8_"},
		{"a b", "____tydb_parse_a$spb$$3_"},
	}
	for _, tt := range tests {
		if got := makeParseToken(tt.in); got != tt.want {
			t.Errorf("makeParseToken(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
	// distinct inputs must produce distinct tokens
	if makeParseToken("a::b") == makeParseToken("a:b") {
		t.Errorf("distinct names mapped to the same token")
	}
}

func TestCleanNameSource(t *testing.T) {
	in := "ns::(anonymous namespace)::Foo<int>"
	want := "ns::Foo<int>"
	if got := cleanNameSource(in); got != want {
		t.Errorf("cleanNameSource: got %q, want %q", got, want)
	}
}

func TestSplitNamespace(t *testing.T) {
	tests := []struct {
		in         string
		wantNS     string
		wantBase   string
		wantErr    bool
	}{
		{"Foo", "", "Foo", false},
		{"ns::Foo", "ns", "Foo", false},
		{"a::b::Foo", "a::b", "Foo", false},
		{"a::Foo<int>", "", "", true},
	}
	for _, tt := range tests {
		ns, base, err := splitNamespace(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitNamespace(%q): error %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if ns != tt.wantNS || base != tt.wantBase {
			t.Errorf("splitNamespace(%q): got (%q, %q), want (%q, %q)", tt.in, ns, base, tt.wantNS, tt.wantBase)
		}
	}
}

func TestParseDepfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.d")
	content := "out.cpp: /usr/include/a.h \\\n  /src/b.h /src/c.h\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing depfile: %v", err)
	}
	deps, err := parseDepfile(path, "out.cpp")
	if err != nil {
		t.Fatalf("parseDepfile: %v", err)
	}
	want := []string{"/usr/include/a.h", "/src/b.h", "/src/c.h"}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("deps: (-want, +got):\n%s", diff)
	}
	if _, err := parseDepfile(path, "missing.cpp"); err == nil {
		t.Errorf("parseDepfile for missing target: got nil error, want error")
	}
}

func testParseConfig() *config.Config {
	return &config.Config{
		Extract: config.Extract{
			CharRepr:  tygraph.PrimI8,
			WcharRepr: tygraph.PrimU16,
		},
	}
}

// astJSON mirrors the shape clang emits for
// typedef std::vector<int*> token;
const vectorOfIntPtrJSON = `{
  "kind": "TypedefDecl",
  "name": "____tydb_parse_token",
  "inner": [{
    "kind": "ElaboratedType",
    "qualifier": "std::",
    "type": {"qualType": "std::vector<int *>"},
    "inner": [{
      "kind": "TemplateSpecializationType",
      "templateName": "std::vector",
      "inner": [{
        "kind": "TemplateArgument",
        "inner": [{
          "kind": "PointerType",
          "inner": [{
            "kind": "BuiltinType",
            "type": {"qualType": "int"}
          }]
        }]
      }]
    }]
  }]
}`

func TestParseTypedefAST(t *testing.T) {
	var node astNode
	if err := json.Unmarshal([]byte(vectorOfIntPtrJSON), &node); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	ns := tygraph.NewNamespaceMaps()
	enclosing := tygraph.Namespace{{Kind: tygraph.SegName, Name: "std"}}
	got, err := parseTypedefAST(&node, enclosing, ns, testParseConfig())
	if err != nil {
		t.Fatalf("parseTypedefAST: %v", err)
	}
	if got.Base.Base != "vector" {
		t.Errorf("base name: got %q, want %q", got.Base.Base, "vector")
	}
	if len(got.Templates) != 1 {
		t.Fatalf("template args: got %d, want 1", len(got.Templates))
	}
	arg := got.Templates[0]
	if arg.Kind != tygraph.ArgType || arg.Type.Kind != tygraph.TreePtr {
		t.Fatalf("template arg: got %v, want a pointer type", arg)
	}
	inner := arg.Type.Elem
	if inner.Kind != tygraph.TreeBase || inner.Base.Base.Base != "i32" {
		t.Errorf("pointee: got %v, want i32", inner)
	}
}

func TestParseTemplateArg(t *testing.T) {
	ns := tygraph.NewNamespaceMaps()
	ns.BySrc["ksys::act"] = tygraph.Namespace{
		{Kind: tygraph.SegName, Name: "ksys"},
		{Kind: tygraph.SegName, Name: "act"},
	}
	cfg := testParseConfig()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{{
		name: "boolean constant",
		in:   `{"kind": "ConstantExpr", "value": "true"}`,
		want: "1",
	}, {
		name: "integer constant",
		in:   `{"kind": "ConstantExpr", "value": "-3"}`,
		want: "-3",
	}, {
		name: "char uses the configured representation",
		in:   `{"kind": "BuiltinType", "type": {"qualType": "char"}}`,
		want: "i8",
	}, {
		name:    "unknown builtin",
		in:      `{"kind": "BuiltinType", "type": {"qualType": "__int128_t"}}`,
		wantErr: "unexpected builtin",
	}, {
		name: "record resolves against the namespace index",
		in:   `{"kind": "RecordType", "type": {"qualType": "ksys::act::Actor"}}`,
		want: "ksys::act::Actor",
	}, {
		name: "member pointer to data",
		in: `{"kind": "MemberPointerType", "inner": [
			{"kind": "RecordType", "type": {"qualType": "Foo"}},
			{"kind": "BuiltinType", "type": {"qualType": "int"}}
		]}`,
		want: "i32 Foo::*",
	}, {
		name: "member pointer to function",
		in: `{"kind": "MemberPointerType", "inner": [
			{"kind": "RecordType", "type": {"qualType": "Foo"}},
			{"kind": "FunctionProtoType", "inner": [
				{"kind": "BuiltinType", "type": {"qualType": "void"}},
				{"kind": "BuiltinType", "type": {"qualType": "int"}}
			]}
		]}`,
		want: "void (Foo::*)(i32)",
	}, {
		name: "function pointer through ParenType",
		in: `{"kind": "PointerType", "inner": [
			{"kind": "ParenType", "inner": [
				{"kind": "FunctionProtoType", "inner": [
					{"kind": "BuiltinType", "type": {"qualType": "int"}}
				]}
			]}
		]}`,
		want: "i32 (*)()",
	}, {
		name: "qualifiers are discarded",
		in: `{"kind": "QualType", "inner": [
			{"kind": "BuiltinType", "type": {"qualType": "int"}}
		]}`,
		want: "i32",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var node astNode
			if err := json.Unmarshal([]byte(tt.in), &node); err != nil {
				t.Fatalf("unmarshal fixture: %v", err)
			}
			got, err := parseTemplateArg(&node, ns, cfg, "", "")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("got error %v, want error containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTemplateArg: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("arg: got %q, want %q", got.String(), tt.want)
			}
		})
	}
}
