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
	"fmt"
	"strings"
)

// HTypeKind discriminates the high-level type variants.
type HTypeKind int

// The high-level type kinds. Declarations no longer exist: any that
// were never paired with a definition have been lowered to zero-sized
// structs carrying their names.
const (
	// HPrim is a primitive.
	HPrim HTypeKind = iota
	// HEnum is an enum.
	HEnum
	// HUnion is a union.
	HUnion
	// HStruct is a struct or class.
	HStruct
)

// HType is a high-level type: the final catalog entry. Every
// non-primitive carries a fixed byte size and at least one
// fully-qualified name, except an anonymous type referenced by another
// type or a symbol, whose name set is empty.
type HType struct {
	Kind HTypeKind
	Prim Prim
	// FQNames is the resolved set of fully-qualified names, sorted by
	// canonical key.
	FQNames []FullQualName
	Enum    *Enum
	Union   *Union
	Struct  *Struct
}

// ByteSize returns the type's byte size; ok is false only for void.
func (t *HType) ByteSize() (uint32, bool) {
	switch t.Kind {
	case HPrim:
		return t.Prim.ByteSize()
	case HEnum:
		return t.Enum.ByteSize, true
	case HUnion:
		return t.Union.ByteSize, true
	case HStruct:
		return t.Struct.ByteSize, true
	}
	return 0, false
}

// AddFQNames unions names into the type's fully-qualified name set.
// Primitives take no names.
func (t *HType) AddFQNames(names []FullQualName) {
	if t.Kind == HPrim {
		return
	}
	t.FQNames = SortFullQualNames(append(t.FQNames, names...))
}

// String implements fmt.Stringer with a short form for diagnostics.
func (t *HType) String() string {
	switch t.Kind {
	case HPrim:
		return t.Prim.String()
	case HEnum:
		return fmt.Sprintf("enum %s", firstFQName(t.FQNames))
	case HUnion:
		return fmt.Sprintf("union %s", firstFQName(t.FQNames))
	case HStruct:
		return fmt.Sprintf("struct %s", firstFQName(t.FQNames))
	}
	return fmt.Sprintf("HType(kind=%d)", t.Kind)
}

func firstFQName(names []FullQualName) string {
	if len(names) == 0 {
		return "<anonymous>"
	}
	return names[0].String()
}

// MapGoff rewrites every identity referenced by the type.
func (t *HType) MapGoff(f GoffMapFn) error {
	for i := range t.FQNames {
		if err := mapFullQualName(&t.FQNames[i], f); err != nil {
			return err
		}
	}
	switch t.Kind {
	case HUnion:
		return t.Union.MapGoff(f)
	case HStruct:
		return t.Struct.MapGoff(f)
	}
	return nil
}

func mapFullQualName(n *FullQualName, f GoffMapFn) error {
	switch n.Kind {
	case FQName:
		return n.Name.MapGoff(f)
	case FQGoff:
		if err := n.Base.MapGoff(f); err != nil {
			return err
		}
		for i := range n.Templates {
			if err := MapGoffArg(&n.Templates[i], f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Mark adds self and every referenced identity to marked.
func (t *HType) Mark(self Goff, marked GoffSet) {
	switch t.Kind {
	case HPrim:
		marked.Add(PrimGoff(t.Prim))
		return
	case HUnion:
		t.Union.Mark(marked)
	case HStruct:
		t.Struct.Mark(marked)
	}
	marked.Add(self)
	for _, n := range t.FQNames {
		markFullQualName(n, marked)
	}
}

func markFullQualName(n FullQualName, marked GoffSet) {
	switch n.Kind {
	case FQName:
		n.Name.Mark(marked)
	case FQGoff:
		n.Base.Mark(marked)
		for _, a := range n.Templates {
			MarkArg(a, marked)
		}
	}
}

// MarkNonEliminatable adds to marked the identities that must never be
// substituted by a composite tree.
func (t *HType) MarkNonEliminatable(self Goff, marked GoffSet) {
	switch t.Kind {
	case HUnion:
		for _, m := range t.Union.Members {
			if m.TypeContains(self) {
				marked.Add(self)
			}
			m.Ty.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
		}
		for _, a := range t.Union.TemplateArgs {
			markArgPtmBases(a, marked)
		}
	case HStruct:
		if len(t.Struct.Vtable) > 0 {
			marked.Add(self)
		}
		for _, m := range t.Struct.Members {
			if m.TypeContains(self) {
				marked.Add(self)
			}
			m.Ty.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
		}
		for _, a := range t.Struct.TemplateArgs {
			markArgPtmBases(a, marked)
		}
		for _, v := range t.Struct.Vtable {
			for _, ft := range v.Entry.FunctionTypes {
				ft.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
			}
		}
	}
}

// Replace substitutes every occurrence of k in the type's layout data
// with repl. Reports whether anything changed.
func (t *HType) Replace(k Goff, repl *Tree[Goff]) (bool, error) {
	switch t.Kind {
	case HUnion:
		return replaceUnion(t.Union, k, repl)
	case HStruct:
		return replaceStruct(t.Struct, k, repl)
	}
	return false, nil
}

// Key returns a deterministic canonical encoding of the type, used as
// the structural-equality key during deduplication.
func (t *HType) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "H%d:", t.Kind)
	switch t.Kind {
	case HPrim:
		b.WriteString(t.Prim.String())
		return b.String()
	case HEnum:
		t.Enum.appendKey(&b)
	case HUnion:
		t.Union.appendKey(&b)
	case HStruct:
		t.Struct.appendKey(&b)
	}
	b.WriteByte('[')
	for _, n := range t.FQNames {
		b.WriteString(n.Key())
		b.WriteByte(';')
	}
	b.WriteByte(']')
	return b.String()
}
