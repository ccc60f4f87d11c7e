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

package tygen

import (
	"strings"
	"testing"

	"github.com/opendebug/tydb/tygraph"
)

func testMStage(name string, types map[tygraph.Goff]*tygraph.MType) *MStage {
	for _, p := range tygraph.Prims {
		if _, ok := types[tygraph.PrimGoff(p)]; !ok {
			types[tygraph.PrimGoff(p)] = tygraph.NewMPrim(p)
		}
	}
	return &MStage{
		Name:    name,
		Types:   types,
		Symbols: map[string]*tygraph.SymbolInfo{},
		Config:  testConfig(),
	}
}

func namedMStruct(name string, data *tygraph.Struct) *tygraph.MType {
	n := tygraph.UnnamespacedName(name)
	return &tygraph.MType{Kind: tygraph.MStruct, Name: &n, Struct: data}
}

// Two units define struct Point identically; the merged catalog holds
// exactly one.
func TestLinkMergeByName(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	point := func() *tygraph.Struct {
		return &tygraph.Struct{ByteSize: 8, Members: []tygraph.Member{
			{Offset: 0, Name: "x", Ty: tygraph.NewBase(i32)},
			{Offset: 4, Name: "y", Ty: tygraph.NewBase(i32)},
		}}
	}
	a := testMStage("a.cpp", map[tygraph.Goff]*tygraph.MType{
		0x1000: namedMStruct("Point", point()),
	})
	b := testMStage("b.cpp", map[tygraph.Goff]*tygraph.MType{
		0x2000: namedMStruct("Point", point()),
	})
	merged, err := LinkMerge(a, b)
	if err != nil {
		t.Fatalf("LinkMerge: %v", err)
	}
	count := 0
	for _, ty := range merged.Types {
		if ty.Kind == tygraph.MStruct {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d structs after merging, want 1", count)
	}
}

// Two units each define struct Node { Node* next; }. The merge task
// for the pair depends on the pair itself through the pointer member;
// the cycle is severed and the merge completes.
func TestLinkMergeSelfReferentialCycle(t *testing.T) {
	node := func(self tygraph.Goff) *tygraph.Struct {
		return &tygraph.Struct{ByteSize: 8, Members: []tygraph.Member{
			{Offset: 0, Name: "next", Ty: tygraph.NewPtr(tygraph.NewBase(self))},
		}}
	}
	a := testMStage("a.cpp", map[tygraph.Goff]*tygraph.MType{
		0x1000: namedMStruct("Node", node(0x1000)),
	})
	b := testMStage("b.cpp", map[tygraph.Goff]*tygraph.MType{
		0x2000: namedMStruct("Node", node(0x2000)),
	})
	merged, err := LinkMerge(a, b)
	if err != nil {
		t.Fatalf("LinkMerge: %v", err)
	}
	var nodes []tygraph.Goff
	for g, ty := range merged.Types {
		if ty.Kind == tygraph.MStruct {
			nodes = append(nodes, g)
		}
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d Node structs after merging, want 1", len(nodes))
	}
	got := merged.Types[nodes[0]]
	member := got.Struct.Members[0].Ty
	if member.Kind != tygraph.TreePtr || member.Elem.Kind != tygraph.TreeBase || member.Elem.Base != nodes[0] {
		t.Errorf("Node member: got %s, want pointer to %s", member, nodes[0])
	}
}

// Mutually recursive structs across units merge through the SCC
// collapse.
func TestLinkMergeMutualRecursion(t *testing.T) {
	build := func(aGoff, bGoff tygraph.Goff) map[tygraph.Goff]*tygraph.MType {
		return map[tygraph.Goff]*tygraph.MType{
			aGoff: namedMStruct("A", &tygraph.Struct{ByteSize: 8, Members: []tygraph.Member{
				{Offset: 0, Name: "b", Ty: tygraph.NewPtr(tygraph.NewBase(bGoff))},
			}}),
			bGoff: namedMStruct("B", &tygraph.Struct{ByteSize: 8, Members: []tygraph.Member{
				{Offset: 0, Name: "a", Ty: tygraph.NewPtr(tygraph.NewBase(aGoff))},
			}}),
		}
	}
	a := testMStage("a.cpp", build(0x1000, 0x1100))
	b := testMStage("b.cpp", build(0x2000, 0x2100))
	merged, err := LinkMerge(a, b)
	if err != nil {
		t.Fatalf("LinkMerge: %v", err)
	}
	count := 0
	for _, ty := range merged.Types {
		if ty.Kind == tygraph.MStruct {
			count++
		}
	}
	if count != 2 {
		t.Errorf("got %d structs after merging, want 2 (A and B)", count)
	}
}

// A definition and a declaration sharing a name merge with the
// declaration's name absorbed.
func TestLinkMergeDefWithDecl(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	a := testMStage("a.cpp", map[tygraph.Goff]*tygraph.MType{
		0x1000: namedMStruct("Widget", &tygraph.Struct{ByteSize: 4, Members: []tygraph.Member{
			{Name: "x", Ty: tygraph.NewBase(i32)},
		}}),
	})
	b := testMStage("b.cpp", map[tygraph.Goff]*tygraph.MType{
		0x2000: {Kind: tygraph.MStructDecl, Decl: &tygraph.MDecl{
			Name: tygraph.NewTemplatedName(tygraph.UnnamespacedName("Widget")),
		}},
	})
	merged, err := LinkMerge(a, b)
	if err != nil {
		t.Fatalf("LinkMerge: %v", err)
	}
	for _, ty := range merged.Types {
		if ty.Kind == tygraph.MStructDecl {
			t.Errorf("declaration survived a merge with its definition")
		}
	}
}

// Symbols with conflicting addresses fail the link.
func TestLinkSymbolAddressConflict(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	a := testMStage("a.cpp", map[tygraph.Goff]*tygraph.MType{})
	sa := tygraph.NewDataSymbol("gValue", i32)
	sa.Address = 0x100
	a.Symbols["gValue"] = sa
	b := testMStage("b.cpp", map[tygraph.Goff]*tygraph.MType{})
	sb := tygraph.NewDataSymbol("gValue", i32)
	sb.Address = 0x200
	b.Symbols["gValue"] = sb
	_, err := LinkMerge(a, b)
	if err == nil || !strings.Contains(err.Error(), "addresses differ") {
		t.Errorf("got %v, want address conflict error", err)
	}
}
