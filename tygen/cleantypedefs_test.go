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

// typedef int (*Fn)(int, int): the typedef name is dropped and the
// surviving type is the composite tree itself.
func TestCleanTypedefsToComposite(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	fnTree := tygraph.NewPtr(tygraph.NewSub([]*tygraph.Tree[tygraph.Goff]{
		tygraph.NewBase(i32), tygraph.NewBase(i32), tygraph.NewBase(i32),
	}))
	stage := testLStage(map[tygraph.Goff]*tygraph.LType{
		0x10: tygraph.NewLTree(fnTree),
		0x20: tygraph.NewLTypedef(tygraph.UnnamespacedName("Fn"), 0x10),
	})
	if err := CleanTypedefs(stage); err != nil {
		t.Fatalf("CleanTypedefs: %v", err)
	}
	for g, ty := range stage.Types {
		if ty.Kind == tygraph.LTypedef {
			t.Errorf("typedef %s survived cleaning", g)
		}
	}
	got, ok := stage.Types[0x10]
	if !ok {
		t.Fatalf("composite tree identity 0x10 missing after cleaning")
	}
	if got.Kind != tygraph.LTree || got.Tree.String() != fnTree.String() {
		t.Errorf("cleaned type: got %s, want tree %s", got, fnTree)
	}
}

// A typedef whose target is a nominal type keeps its name.
func TestCleanTypedefsToNominalKept(t *testing.T) {
	stage := testLStage(map[tygraph.Goff]*tygraph.LType{
		0x10: namedLStruct("S", &tygraph.Struct{ByteSize: 4, Members: []tygraph.Member{
			{Name: "x", Ty: tygraph.NewBase(tygraph.PrimGoff(tygraph.PrimI32))},
		}}),
		0x20: tygraph.NewLTypedef(tygraph.UnnamespacedName("Alias"), 0x10),
	})
	if err := CleanTypedefs(stage); err != nil {
		t.Fatalf("CleanTypedefs: %v", err)
	}
	got, ok := stage.Types[0x20]
	if !ok || got.Kind != tygraph.LTypedef {
		t.Fatalf("typedef to nominal type did not survive: %v", got)
	}
	if got.Target != 0x10 {
		t.Errorf("typedef target: got %s, want 0x10", got.Target)
	}
}

// A typedef pointing at an alias retargets to the alias's resolution.
func TestCleanTypedefsRetargetsThroughAlias(t *testing.T) {
	stage := testLStage(map[tygraph.Goff]*tygraph.LType{
		0x10: namedLStruct("S", &tygraph.Struct{ByteSize: 4, Members: []tygraph.Member{
			{Name: "x", Ty: tygraph.NewBase(tygraph.PrimGoff(tygraph.PrimI32))},
		}}),
		0x18: tygraph.NewLAlias(0x10), // const S
		0x20: tygraph.NewLTypedef(tygraph.UnnamespacedName("Alias"), 0x18),
	})
	if err := CleanTypedefs(stage); err != nil {
		t.Fatalf("CleanTypedefs: %v", err)
	}
	got, ok := stage.Types[0x20]
	if !ok || got.Kind != tygraph.LTypedef {
		t.Fatalf("typedef did not survive: %v", got)
	}
	if got.Target != 0x10 {
		t.Errorf("typedef target: got %s, want 0x10", got.Target)
	}
	for g, ty := range stage.Types {
		if ty.Kind == tygraph.LAlias {
			t.Errorf("alias %s survived cleaning", g)
		}
	}
}

// Typedefs to primitives collapse entirely.
func TestCleanTypedefsToPrimitive(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	stage := testLStage(map[tygraph.Goff]*tygraph.LType{
		0x20: tygraph.NewLTypedef(tygraph.UnnamespacedName("MyInt"), i32),
	})
	if err := CleanTypedefs(stage); err != nil {
		t.Fatalf("CleanTypedefs: %v", err)
	}
	for g, ty := range stage.Types {
		if ty.Kind == tygraph.LTypedef {
			t.Errorf("typedef %s to primitive survived cleaning", g)
		}
	}
}

func TestCleanTypedefsDepthLimit(t *testing.T) {
	types := map[tygraph.Goff]*tygraph.LType{}
	// a cycle of aliases can never resolve
	types[0x10] = tygraph.NewLAlias(0x20)
	types[0x20] = tygraph.NewLAlias(0x10)
	stage := testLStage(types)
	err := CleanTypedefs(stage)
	if err == nil || !strings.Contains(err.Error(), "depth limit") {
		t.Errorf("CleanTypedefs on alias cycle: got %v, want depth limit error", err)
	}
}
