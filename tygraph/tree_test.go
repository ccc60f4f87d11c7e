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

package tygraph

import (
	"strings"
	"testing"
)

func TestTreeString(t *testing.T) {
	i32 := PrimGoff(PrimI32)
	tests := []struct {
		name string
		in   *Tree[Goff]
		want string
	}{
		{"base", NewBase(Goff(0x10)), "0x00000010"},
		{"array", NewArray(NewBase(Goff(0x10)), 4), "0x00000010[4]"},
		{"pointer", NewPtr(NewBase(Goff(0x10))), "0x00000010*"},
		{"function pointer", NewPtr(NewSub([]*Tree[Goff]{NewBase(i32), NewBase(i32)})), "0x1ffff0204 (*)(0x1ffff0204)"},
		{"ptmd", NewPtmd(Goff(0x10), NewBase(i32)), "0x1ffff0204 0x00000010::*"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("%s: String: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestReplaceTreeGoff(t *testing.T) {
	i32 := PrimGoff(PrimI32)
	tests := []struct {
		name        string
		in          *Tree[Goff]
		k           Goff
		repl        *Tree[Goff]
		want        string
		wantChanged bool
		wantErr     bool
	}{{
		name:        "base replaced by tree",
		in:          NewBase(Goff(0x10)),
		k:           0x10,
		repl:        NewPtr(NewBase(i32)),
		want:        "0x1ffff0204*",
		wantChanged: true,
	}, {
		name: "no occurrence",
		in:   NewBase(Goff(0x20)),
		k:    0x10,
		repl: NewBase(i32),
	}, {
		name:        "nested in subroutine",
		in:          NewSub([]*Tree[Goff]{NewBase(Goff(0x10)), NewBase(Goff(0x20))}),
		k:           0x20,
		repl:        NewBase(i32),
		want:        "0x00000010(0x1ffff0204)",
		wantChanged: true,
	}, {
		name:        "ptm base replaced by base",
		in:          NewPtmd(Goff(0x10), NewBase(i32)),
		k:           0x10,
		repl:        NewBase(Goff(0x30)),
		want:        "0x1ffff0204 0x00000030::*",
		wantChanged: true,
	}, {
		name:    "ptm base cannot take a composite",
		in:      NewPtmd(Goff(0x10), NewBase(i32)),
		k:       0x10,
		repl:    NewPtr(NewBase(i32)),
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := ReplaceTreeGoff(tt.in, tt.k, tt.repl)
			if (err != nil) != tt.wantErr {
				t.Fatalf("got error %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if changed != tt.wantChanged {
				t.Fatalf("changed: got %v, want %v", changed, tt.wantChanged)
			}
			if changed && got.String() != tt.want {
				t.Errorf("replaced tree: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTreeContainsGoff(t *testing.T) {
	tree := NewPtmf(Goff(0x10), []*Tree[Goff]{NewBase(Goff(0x20))})
	if !TreeContainsGoff(tree, 0x10) {
		t.Errorf("ptm base position not found")
	}
	if !TreeContainsGoff(tree, 0x20) {
		t.Errorf("subroutine component not found")
	}
	if TreeContainsGoff(tree, 0x30) {
		t.Errorf("absent goff reported present")
	}
}

func TestNameGraph(t *testing.T) {
	g := NewNameGraph()
	a := simpleName("U")
	b := simpleName("i32")
	changed, err := g.AddDerived(a, b)
	if err != nil || !changed {
		t.Fatalf("AddDerived: got (%v, %v), want (true, nil)", changed, err)
	}
	// repeated edges are no-ops
	changed, err = g.AddDerived(a, b)
	if err != nil || changed {
		t.Fatalf("repeated AddDerived: got (%v, %v), want (false, nil)", changed, err)
	}
	// the inverse edge is rejected
	if _, err := g.AddDerived(b, a); err == nil || !strings.Contains(err.Error(), "opposite direction") {
		t.Errorf("inverse AddDerived: got error %v, want opposite-direction error", err)
	}
	// a self edge is a no-op
	if changed, err := g.AddDerived(a, a); err != nil || changed {
		t.Errorf("self AddDerived: got (%v, %v), want (false, nil)", changed, err)
	}
}
