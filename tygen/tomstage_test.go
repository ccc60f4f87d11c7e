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

	"github.com/kylelemons/godebug/pretty"

	"github.com/opendebug/tydb/compdb"
	"github.com/opendebug/tydb/tygraph"
)

func testCompileCommand() *compdb.CompileCommand {
	return &compdb.CompileCommand{File: "/src/test.cpp", Args: []string{"-std=c++17", "/src/test.cpp"}}
}

// A typedef to a nominal type folds into an alias name on the target.
func TestToMStageFoldsTypedefs(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	stage := testLStage(map[tygraph.Goff]*tygraph.LType{
		0x10: namedLStruct("Widget", &tygraph.Struct{ByteSize: 4, Members: []tygraph.Member{
			{Name: "x", Ty: tygraph.NewBase(i32)},
		}}),
		0x20: tygraph.NewLTypedef(tygraph.UnnamespacedName("WidgetAlias"), 0x10),
	})
	// keep the struct alive through a symbol referencing the typedef
	stage.Symbols["gWidget"] = tygraph.NewDataSymbol("gWidget", 0x20)

	m, err := ToMStage(stage, testCompileCommand())
	if err != nil {
		t.Fatalf("ToMStage: %v", err)
	}
	var structs []*tygraph.MType
	for _, ty := range m.Types {
		switch ty.Kind {
		case tygraph.MStruct:
			structs = append(structs, ty)
		case tygraph.MEnumDecl, tygraph.MUnionDecl, tygraph.MStructDecl:
			t.Errorf("unexpected declaration in converted catalog: %s", ty)
		}
	}
	if len(structs) != 1 {
		t.Fatalf("got %d structs, want 1", len(structs))
	}
	got := structs[0]
	if got.Name == nil || got.Name.Base != "Widget" {
		t.Errorf("primary name: got %v, want Widget", got.Name)
	}
	wantDecls := []*tygraph.TemplatedName{tygraph.NewTemplatedName(tygraph.UnnamespacedName("WidgetAlias"))}
	if diff := pretty.Compare(got.DeclNames, wantDecls); diff != "" {
		t.Errorf("decl names diff (-got +want):\n%s", diff)
	}
	// the typedef identity must keep resolving to the struct
	sym := m.Symbols["gWidget"]
	target, ok := m.Types[sym.Ty.Base]
	if !ok || target.Kind != tygraph.MStruct {
		t.Errorf("symbol no longer resolves to the struct: %v", sym.Ty)
	}
}

// An untemplated declaration resolves its name without the external
// parser.
func TestToMStageDeclarations(t *testing.T) {
	stage := testLStage(map[tygraph.Goff]*tygraph.LType{
		0x10: {Kind: tygraph.LStructDecl, Decl: &tygraph.LDecl{
			Name: tygraph.UnnamespacedName("Forward"),
		}},
	})
	// reference the declaration from a symbol so GC keeps it
	stage.Symbols["gFwd"] = tygraph.NewDataSymbol("gFwd", 0x10)

	m, err := ToMStage(stage, testCompileCommand())
	if err != nil {
		t.Fatalf("ToMStage: %v", err)
	}
	var decl *tygraph.MType
	for _, ty := range m.Types {
		if ty.Kind == tygraph.MStructDecl {
			decl = ty
		}
	}
	if decl == nil {
		t.Fatalf("declaration missing from converted catalog")
	}
	if decl.Decl.Name.Base.Base != "Forward" {
		t.Errorf("declaration name: got %s, want Forward", decl.Decl.Name)
	}
}

// Unreferenced types are garbage-collected during conversion.
func TestToMStageGarbageCollects(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	stage := testLStage(map[tygraph.Goff]*tygraph.LType{
		0x10: namedLStruct("Kept", &tygraph.Struct{ByteSize: 4, Members: []tygraph.Member{
			{Name: "x", Ty: tygraph.NewBase(i32)},
		}}),
		0x20: tygraph.NewLTree(tygraph.NewPtr(tygraph.NewBase(i32))),
	})
	stage.Symbols["gKept"] = tygraph.NewDataSymbol("gKept", 0x10)

	m, err := ToMStage(stage, testCompileCommand())
	if err != nil {
		t.Fatalf("ToMStage: %v", err)
	}
	if _, ok := m.Types[0x20]; ok {
		t.Errorf("unreferenced composite tree survived conversion")
	}
}
