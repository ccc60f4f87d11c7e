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
	"testing"

	"github.com/opendebug/tydb/tygraph"
)

func testHStage(types map[tygraph.Goff]*tygraph.HType) *HStage {
	for _, p := range tygraph.Prims {
		if _, ok := types[tygraph.PrimGoff(p)]; !ok {
			types[tygraph.PrimGoff(p)] = &tygraph.HType{Kind: tygraph.HPrim, Prim: p}
		}
	}
	sizes := map[tygraph.Goff]uint32{}
	unsized := tygraph.GoffSet{}
	for g, t := range types {
		if s, ok := t.ByteSize(); ok {
			sizes[g] = s
		} else {
			unsized.Add(g)
		}
	}
	return &HStage{
		Types:     types,
		Sizes:     tygraph.NewSizeMap(sizes, unsized, 8, 8, 16),
		Symbols:   map[string]*tygraph.SymbolInfo{},
		NameGraph: tygraph.NewNameGraph(),
		Config:    testConfig(),
	}
}

func hUnion(names []string, members ...tygraph.Member) *tygraph.HType {
	var fqnames []tygraph.FullQualName
	for _, n := range names {
		fqnames = append(fqnames, tygraph.FullQualFromName(tygraph.NewTemplatedName(tygraph.UnnamespacedName(n))))
	}
	var size uint32 = 1
	if len(members) > 0 {
		size = 4
	}
	return &tygraph.HType{
		Kind:    tygraph.HUnion,
		FQNames: tygraph.SortFullQualNames(fqnames),
		Union:   &tygraph.Union{ByteSize: size, Members: members},
	}
}

// union U { int x; } is eliminated: every reference becomes the member
// type, and U's names land in the name graph as derived of i32.
func TestOptimizeSingleMemberUnion(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	stage := testHStage(map[tygraph.Goff]*tygraph.HType{
		0x10: hUnion([]string{"U"}, tygraph.Member{Name: "x", Ty: tygraph.NewBase(i32)}),
		0x20: {
			Kind:    tygraph.HStruct,
			FQNames: []tygraph.FullQualName{tygraph.FullQualFromName(tygraph.NewTemplatedName(tygraph.UnnamespacedName("Holder")))},
			Struct: &tygraph.Struct{ByteSize: 4, Members: []tygraph.Member{
				{Name: "u", Ty: tygraph.NewBase(tygraph.Goff(0x10))},
			}},
		},
	})
	if err := OptimizeLayout(stage); err != nil {
		t.Fatalf("OptimizeLayout: %v", err)
	}
	if _, ok := stage.Types[0x10]; ok {
		t.Errorf("single-member union survived optimization")
	}
	holder := stage.Types[0x20]
	m := holder.Struct.Members[0].Ty
	if m.Kind != tygraph.TreeBase || m.Base != i32 {
		t.Errorf("holder member: got %s, want %s", m, i32)
	}
	// the union's name must be recorded as derived of the member type
	found := false
	for _, n := range stage.NameGraph.Names() {
		if n.String() == "U" {
			found = true
		}
	}
	if !found {
		t.Errorf("union name missing from the name graph")
	}
}

// An empty union becomes a zero-sized struct keeping its names.
func TestOptimizeEmptyUnion(t *testing.T) {
	stage := testHStage(map[tygraph.Goff]*tygraph.HType{
		0x10: hUnion([]string{"Empty"}),
	})
	if err := OptimizeLayout(stage); err != nil {
		t.Fatalf("OptimizeLayout: %v", err)
	}
	got, ok := stage.Types[0x10]
	if !ok {
		t.Fatalf("empty union disappeared instead of becoming a struct")
	}
	if got.Kind != tygraph.HStruct || len(got.Struct.Members) != 0 || got.Struct.ByteSize != 1 {
		t.Errorf("empty union lowered to %s (size %d), want an empty size-1 struct", got, got.Struct.ByteSize)
	}
	if len(got.FQNames) != 1 || got.FQNames[0].String() != "Empty" {
		t.Errorf("names not preserved: %v", got.FQNames)
	}
}

// An empty union of the wrong size is an error.
func TestOptimizeEmptyUnionWrongSize(t *testing.T) {
	u := hUnion([]string{"Bad"})
	u.Union.ByteSize = 8
	stage := testHStage(map[tygraph.Goff]*tygraph.HType{0x10: u})
	if err := OptimizeLayout(stage); err == nil {
		t.Errorf("OptimizeLayout: got nil error for empty union of size 8, want error")
	}
}

// A self-referential union keeps its identity.
func TestOptimizeSelfReferentialUnionKept(t *testing.T) {
	stage := testHStage(map[tygraph.Goff]*tygraph.HType{
		0x10: hUnion([]string{"Selfish"}, tygraph.Member{Name: "p", Ty: tygraph.NewPtr(tygraph.NewBase(tygraph.Goff(0x10)))}),
	})
	u := stage.Types[0x10]
	u.Union.ByteSize = 8
	if err := OptimizeLayout(stage); err != nil {
		t.Fatalf("OptimizeLayout: %v", err)
	}
	if _, ok := stage.Types[0x10]; !ok {
		t.Errorf("self-referential union was eliminated")
	}
}

// Surviving types keep their byte size through optimization.
func TestOptimizePreservesSizes(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	stage := testHStage(map[tygraph.Goff]*tygraph.HType{
		0x10: hUnion([]string{"U"}, tygraph.Member{Name: "x", Ty: tygraph.NewBase(i32)}),
		0x20: {
			Kind:    tygraph.HStruct,
			FQNames: []tygraph.FullQualName{tygraph.FullQualFromName(tygraph.NewTemplatedName(tygraph.UnnamespacedName("Big")))},
			Struct: &tygraph.Struct{ByteSize: 24, Members: []tygraph.Member{
				{Offset: 0, Name: "u", Ty: tygraph.NewBase(tygraph.Goff(0x10))},
				{Offset: 8, Name: "rest", Ty: tygraph.NewArray(tygraph.NewBase(i32), 4)},
			}},
		},
	})
	before := map[tygraph.Goff]uint32{}
	for g, t := range stage.Types {
		if s, ok := t.ByteSize(); ok {
			before[g] = s
		}
	}
	if err := OptimizeLayout(stage); err != nil {
		t.Fatalf("OptimizeLayout: %v", err)
	}
	for g, ty := range stage.Types {
		want, ok := before[g]
		if !ok {
			continue
		}
		if got, _ := ty.ByteSize(); got != want {
			t.Errorf("type %s changed size: %d -> %d", g, want, got)
		}
	}
}
