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
	"testing"
)

func structWithMember(memberTy Goff, size uint32) *MType {
	name := NamespacedName{Base: "S"}
	return &MType{
		Kind: MStruct,
		Name: &name,
		Struct: &Struct{
			ByteSize: size,
			Members:  []Member{{Name: "x", Ty: NewBase(memberTy)}},
		},
	}
}

// Two units both reference int: after dedupe exactly one primitive
// entity exists and every reference resolves to its canonical
// identity.
func TestDedupePrimitives(t *testing.T) {
	i32 := PrimGoff(PrimI32)
	types := map[Goff]*MType{
		i32:  NewMPrim(PrimI32),
		0x10: NewMPrim(PrimI32),
		0x20: NewMPrim(PrimI32),
		0x30: structWithMember(0x10, 4),
		0x40: structWithMember(0x20, 4),
	}
	symbols := map[string]*SymbolInfo{
		"sym": NewDataSymbol("sym", 0x10),
	}
	got, err := Dedupe(types, NewGoffBuckets(), symbols, nil)
	if err != nil {
		t.Fatalf("Dedupe: %v", err)
	}
	primCount := 0
	for _, ty := range got {
		if ty.Kind == MPrim {
			primCount++
		}
	}
	if primCount != 1 {
		t.Errorf("got %d primitive entries, want 1", primCount)
	}
	if _, ok := got[i32]; !ok {
		t.Errorf("canonical primitive identity %s missing from catalog", i32)
	}
	// the two structs become one entry whose member points at the
	// primitive identity
	structCount := 0
	for g, ty := range got {
		if ty.Kind != MStruct {
			continue
		}
		structCount++
		if m := ty.Struct.Members[0].Ty; m.Kind != TreeBase || m.Base != i32 {
			t.Errorf("struct %s member type: got %s, want %s", g, m, i32)
		}
	}
	if structCount != 1 {
		t.Errorf("got %d struct entries, want 1", structCount)
	}
	if sym := symbols["sym"]; sym.Ty.Base != i32 {
		t.Errorf("symbol type: got %s, want %s", sym.Ty, i32)
	}
}

// Dedupe is a fixpoint: a second run changes nothing.
func TestDedupeFixpoint(t *testing.T) {
	types := map[Goff]*MType{
		PrimGoff(PrimI32): NewMPrim(PrimI32),
		0x10:              NewMPrim(PrimI32),
		0x30:              structWithMember(0x10, 4),
		0x40:              structWithMember(0x10, 4),
	}
	symbols := map[string]*SymbolInfo{}
	once, err := Dedupe(types, NewGoffBuckets(), symbols, nil)
	if err != nil {
		t.Fatalf("first Dedupe: %v", err)
	}
	onceKeys := map[Goff]string{}
	for g, ty := range once {
		onceKeys[g] = ty.Key()
	}
	twice, err := Dedupe(once, NewGoffBuckets(), symbols, nil)
	if err != nil {
		t.Fatalf("second Dedupe: %v", err)
	}
	if len(twice) != len(onceKeys) {
		t.Fatalf("second run changed entry count: %d -> %d", len(onceKeys), len(twice))
	}
	for g, ty := range twice {
		if want, ok := onceKeys[g]; !ok || ty.Key() != want {
			t.Errorf("second run changed entry %s", g)
		}
	}
}

// Unequal values on the same canonical key need a merger.
func TestDedupeRequiresMerger(t *testing.T) {
	buckets := NewGoffBuckets()
	if err := buckets.Merge(0x30, 0x40); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	types := map[Goff]*MType{
		0x30: structWithMember(PrimGoff(PrimI32), 4),
		0x40: structWithMember(PrimGoff(PrimI32), 8),
	}
	if _, err := Dedupe(types, buckets, map[string]*SymbolInfo{}, nil); err == nil {
		t.Errorf("Dedupe of unequal merged values without merger: got nil error, want error")
	}
}

func TestMarkAndSweep(t *testing.T) {
	types := map[Goff]*MType{
		0x10: structWithMember(0x20, 4),
		0x20: structWithMember(PrimGoff(PrimI32), 4),
		0x30: structWithMember(PrimGoff(PrimI32), 4), // unreachable
	}
	marked := GoffSet{}
	marked.Add(0x10)
	MarkAndSweep(marked, types, func(ty *MType, g Goff, m GoffSet) {
		ty.Mark(g, m)
	})
	if _, ok := types[0x30]; ok {
		t.Errorf("unreachable type 0x30 survived the sweep")
	}
	for _, g := range []Goff{0x10, 0x20} {
		if _, ok := types[g]; !ok {
			t.Errorf("reachable type %s was swept", g)
		}
	}
}
