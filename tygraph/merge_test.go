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

	"github.com/google/go-cmp/cmp"
)

func namedEnum(name string, size uint32, values ...int64) *MType {
	n := UnnamespacedName(name)
	e := &Enum{ByteSize: size}
	for i, v := range values {
		e.Enumerators = append(e.Enumerators, Enumerator{Name: string(rune('A' + i)), Value: v})
	}
	return &MType{Kind: MEnum, Name: &n, Enum: e}
}

func TestAddMergeDeps(t *testing.T) {
	tests := []struct {
		name     string
		a, b     *MType
		wantDeps []GoffPair
		wantErr  string
	}{{
		name: "identical enums",
		a:    namedEnum("E", 4, 0, 1),
		b:    namedEnum("E", 4, 0, 1),
	}, {
		name:    "enums with different widths",
		a:       namedEnum("E", 4, 0),
		b:       namedEnum("E", 8, 0),
		wantErr: "different enumerators or sizes",
	}, {
		name: "structs record member type pairs",
		a:    structWithMember(0x100, 4),
		b:    structWithMember(0x200, 4),
		wantDeps: []GoffPair{
			NewGoffPair(0x100, 0x200),
		},
	}, {
		name:    "structs with different sizes",
		a:       structWithMember(0x100, 4),
		b:       structWithMember(0x200, 8),
		wantErr: "different sizes",
	}, {
		name:    "struct cannot merge with enum",
		a:       structWithMember(0x100, 4),
		b:       namedEnum("E", 4, 0),
		wantErr: "different type kinds",
	}, {
		name: "definition and declaration are compatible",
		a:    structWithMember(0x100, 4),
		b:    &MType{Kind: MStructDecl, Decl: &MDecl{Name: NewTemplatedName(UnnamespacedName("S"))}},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewMergeTask(1, 2)
			err := tt.a.AddMergeDeps(tt.b, task)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("got error %v, want error containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AddMergeDeps: %v", err)
			}
			if diff := cmp.Diff(tt.wantDeps, task.Deps); diff != "" {
				t.Errorf("deps: (-want, +got):\n%s", diff)
			}
		})
	}
}

// A dependency on the merging pair itself, or on an already-equal
// pair, is trivially satisfied.
func TestMergeTaskTrivialDeps(t *testing.T) {
	task := NewMergeTask(0x10, 0x20)
	task.AddDep(0x20, 0x10)
	task.AddDep(0x30, 0x30)
	if len(task.Deps) != 0 {
		t.Errorf("trivial deps recorded: %v", task.Deps)
	}
}

func TestMergeTaskUpdateDeps(t *testing.T) {
	task := NewMergeTask(0x10, 0x20)
	task.AddDep(0x100, 0x200)
	buckets := NewGoffBuckets()
	if task.UpdateDeps(buckets) {
		t.Fatalf("task ready before dependency merged")
	}
	if err := buckets.Merge(0x100, 0x200); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !task.UpdateDeps(buckets) {
		t.Errorf("task not ready after dependency merged")
	}
}

func TestMergeDataKindLadder(t *testing.T) {
	prim := NewMPrim(PrimI32)
	enum := namedEnum("E", 4, 0)
	st := structWithMember(PrimGoff(PrimI32), 4)
	un := &MType{Kind: MUnion, Union: &Union{ByteSize: 4, Members: []Member{{Ty: NewBase(PrimGoff(PrimI32))}}}}

	tests := []struct {
		name     string
		a, b     *MType
		wantKind MTypeKind
	}{
		{"primitive absorbs enum", prim, enum, MPrim},
		{"primitive absorbs struct", st, prim, MPrim},
		{"enum beats struct", enum, st, MEnum},
		{"enum beats union", un, enum, MEnum},
		{"struct beats union", st, un, MStruct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.MergeData(tt.b)
			if err != nil {
				t.Fatalf("MergeData: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("merged kind: got %d, want %d", got.Kind, tt.wantKind)
			}
		})
	}
}

func TestMergeDataDeclAbsorption(t *testing.T) {
	def := structWithMember(PrimGoff(PrimI32), 4)
	declName := NewTemplatedName(UnnamespacedName("Alias"))
	decl := &MType{Kind: MStructDecl, Decl: &MDecl{Name: declName}}
	got, err := def.MergeData(decl)
	if err != nil {
		t.Fatalf("MergeData: %v", err)
	}
	if got.Kind != MStruct {
		t.Fatalf("merged kind: got %d, want MStruct", got.Kind)
	}
	found := false
	for _, n := range got.DeclNames {
		if n.Equal(declName) {
			found = true
		}
	}
	if !found {
		t.Errorf("declaration name %s not absorbed into decl names %v", declName, got.DeclNames)
	}
}

func TestMergeDataTwoDecls(t *testing.T) {
	a := &MType{Kind: MStructDecl, Decl: &MDecl{Name: NewTemplatedName(UnnamespacedName("Zed"))}}
	b := &MType{Kind: MStructDecl, Decl: &MDecl{Name: NewTemplatedName(UnnamespacedName("Abc"))}}
	got, err := a.MergeData(b)
	if err != nil {
		t.Fatalf("MergeData: %v", err)
	}
	if got.Kind != MStructDecl {
		t.Fatalf("merged kind: got %d, want MStructDecl", got.Kind)
	}
	if got.Decl.Name.Base.Base != "Abc" {
		t.Errorf("primary decl name: got %s, want Abc", got.Decl.Name)
	}
	if len(got.Decl.TypedefNames) != 1 || got.Decl.TypedefNames[0].Base.Base != "Zed" {
		t.Errorf("typedef names: got %v, want [Zed]", got.Decl.TypedefNames)
	}
}

func TestStructMergeDataVtables(t *testing.T) {
	i32 := PrimGoff(PrimI32)
	fn := []*Tree[Goff]{NewBase(i32)}
	a := &Struct{ByteSize: 8, Vtable: []VtableSlot{
		{Index: 0, Entry: VtableEntry{Name: "~Foo", FunctionTypes: cloneTrees(fn)}},
		{Index: 2, Entry: VtableEntry{Name: "update", FunctionTypes: cloneTrees(fn)}},
	}}
	b := &Struct{ByteSize: 8, Vtable: []VtableSlot{
		{Index: 3, Entry: VtableEntry{Name: "render", FunctionTypes: cloneTrees(fn)}},
	}}
	got, err := a.MergeData(b)
	if err != nil {
		t.Fatalf("MergeData: %v", err)
	}
	var names []string
	for _, v := range got.Vtable {
		names = append(names, v.Entry.Name)
	}
	want := []string{"~Foo", "update", "render"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("merged vtable: (-want, +got):\n%s", diff)
	}
}
