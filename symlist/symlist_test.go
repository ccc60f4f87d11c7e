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

package symlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opendebug/tydb/config"
)

// fakeDemangler maps mangled names to demangled forms; unknown names
// pass through unchanged, like a real demangler treating non-mangled
// input.
type fakeDemangler map[string]string

func (f fakeDemangler) Demangle(symbol string) (string, error) {
	if d, ok := f[symbol]; ok {
		return d, nil
	}
	return symbol, nil
}

func writeCSV(t *testing.T, lines ...string) *config.SymListFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("writing CSV: %v", err)
	}
	return &config.SymListFile{
		Path:          path,
		BaseAddress:   0x7100000000,
		AddressColumn: 0,
		SymbolColumn:  1,
	}
}

func TestLoadData(t *testing.T) {
	cfg := writeCSV(t,
		"0x7100000100,gValue",
		"0x7100000200,gOther",
		"0x7100000300,", // blank symbols are skipped
	)
	l := New()
	if err := l.LoadData(cfg); err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if l.Len() != 2 {
		t.Errorf("Len: got %d, want 2", l.Len())
	}
	if addr, ok := l.Address("gValue"); !ok || addr != 0x100 {
		t.Errorf("Address(gValue): got (0x%x, %v), want (0x100, true)", addr, ok)
	}
}

func TestLoadDataErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"below base", "0x100,gValue", "below the base address"},
		{"bad address", "xyz,gValue", "parsing address"},
		{"missing column", "0x7100000100", "no symbol column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := writeCSV(t, tt.line)
			err := New().LoadData(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadDataSkipRows(t *testing.T) {
	cfg := writeCSV(t,
		"Address,Symbol",
		"0x7100000100,gValue",
	)
	cfg.SkipRows = 1
	l := New()
	if err := l.LoadData(cfg); err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len: got %d, want 1", l.Len())
	}
}

func TestSiblingSymbols(t *testing.T) {
	// _ZN3FooD1Ev / D2 / D0 demangle identically for position checks
	d := fakeDemangler{
		"_ZN3FooD0Ev": "Foo::~Foo()",
		"_ZN3FooD1Ev": "Foo::~Foo()",
		"_ZN3FooD2Ev": "Foo::~Foo()",
		"_ZN3FooC1Ev": "Foo::Foo()",
		"_ZN3FooC2Ev": "Foo::Foo()",
		"_ZN3FooC3Ev": "Foo::Foo()",
		"_ZN3Foo4stepEv": "Foo::step()",
	}
	tests := []struct {
		name   string
		symbol string
		wantA  string
		wantB  string
	}{{
		name:   "destructor yields D1 and D2",
		symbol: "_ZN3FooD1Ev",
		wantA:  "_ZN3FooD1Ev",
		wantB:  "_ZN3FooD2Ev",
	}, {
		name:   "deleting destructor yields nothing",
		symbol: "_ZN3FooD0Ev",
	}, {
		name:   "constructor yields C1 and C2",
		symbol: "_ZN3FooC2Ev",
		wantA:  "_ZN3FooC1Ev",
		wantB:  "_ZN3FooC2Ev",
	}, {
		name:   "regular function yields nothing",
		symbol: "_ZN3Foo4stepEv",
	}, {
		name:   "unmangled symbol yields nothing",
		symbol: "main",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, err := siblingSymbols(tt.symbol, d)
			if err != nil {
				t.Fatalf("siblingSymbols: %v", err)
			}
			if a != tt.wantA || b != tt.wantB {
				t.Errorf("siblingSymbols(%q): got (%q, %q), want (%q, %q)", tt.symbol, a, b, tt.wantA, tt.wantB)
			}
		})
	}
}

func TestLoadFuncFabricatesSiblings(t *testing.T) {
	d := fakeDemangler{
		"_ZN3FooD0Ev": "Foo::~Foo()",
		"_ZN3FooD1Ev": "Foo::~Foo()",
		"_ZN3FooD2Ev": "Foo::~Foo()",
	}
	cfg := writeCSV(t, "0x7100000400,_ZN3FooD1Ev")
	l := New()
	if err := l.LoadFunc(cfg, d, 2); err != nil {
		t.Fatalf("LoadFunc: %v", err)
	}
	for _, sym := range []string{"_ZN3FooD1Ev", "_ZN3FooD2Ev"} {
		if addr, ok := l.Address(sym); !ok || addr != 0x400 {
			t.Errorf("Address(%s): got (0x%x, %v), want (0x400, true)", sym, addr, ok)
		}
	}
	if _, ok := l.Address("_ZN3FooD0Ev"); ok {
		t.Errorf("deleting destructor was fabricated")
	}
}
