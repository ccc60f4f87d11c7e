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

// MTypeKind discriminates the mid-level type variants.
type MTypeKind int

// The mid-level type kinds. At this stage aliases are eliminated,
// trees are flattened so that every Base reference resolves to a
// primitive or nominal type, and typedefs survive only as alias names
// attached to their targets.
const (
	// MPrim is a primitive.
	MPrim MTypeKind = iota
	// MEnum is an enum definition.
	MEnum
	// MEnumDecl is an enum declaration never seen defined so far.
	MEnumDecl
	// MUnion is a union definition.
	MUnion
	// MUnionDecl is a union declaration.
	MUnionDecl
	// MStruct is a struct or class definition.
	MStruct
	// MStructDecl is a struct or class declaration.
	MStructDecl
)

// MDecl is the payload of a mid-level declaration.
type MDecl struct {
	// Name is the primary structured name, template args included.
	Name *TemplatedName
	// TypedefNames are additional names contributed by typedefs.
	TypedefNames []*TemplatedName
}

// MType is a mid-level type: the representation used for cross-unit
// merging and layout optimization.
type MType struct {
	Kind MTypeKind
	Prim Prim
	// Name is the definition's primary name; nil when anonymous.
	Name *NamespacedName
	// DeclNames are names absorbed from typedefs and merged
	// declarations.
	DeclNames []*TemplatedName
	Enum      *Enum
	Union     *Union
	Struct    *Struct
	Decl      *MDecl
}

// NewMPrim returns a primitive M-type.
func NewMPrim(p Prim) *MType {
	return &MType{Kind: MPrim, Prim: p}
}

// IsDecl reports whether the type is a declaration variant.
func (t *MType) IsDecl() bool {
	switch t.Kind {
	case MEnumDecl, MUnionDecl, MStructDecl:
		return true
	}
	return false
}

// String implements fmt.Stringer with a short form for diagnostics.
func (t *MType) String() string {
	switch t.Kind {
	case MPrim:
		return t.Prim.String()
	case MEnum:
		return fmt.Sprintf("enum %s", nameOrAnon(t.Name))
	case MEnumDecl:
		return fmt.Sprintf("enum decl %s", t.Decl.Name)
	case MUnion:
		return fmt.Sprintf("union %s", nameOrAnon(t.Name))
	case MUnionDecl:
		return fmt.Sprintf("union decl %s", t.Decl.Name)
	case MStruct:
		return fmt.Sprintf("struct %s", nameOrAnon(t.Name))
	case MStructDecl:
		return fmt.Sprintf("struct decl %s", t.Decl.Name)
	}
	return fmt.Sprintf("MType(kind=%d)", t.Kind)
}

// MapGoff rewrites every identity referenced by the type.
func (t *MType) MapGoff(f GoffMapFn) error {
	switch t.Kind {
	case MPrim:
		return nil
	case MEnum:
		if t.Name != nil {
			if err := t.Name.MapGoff(f); err != nil {
				return fmt.Errorf("enum name: %w", err)
			}
		}
		return mapDeclNames(t.DeclNames, f)
	case MUnion:
		if t.Name != nil {
			if err := t.Name.MapGoff(f); err != nil {
				return fmt.Errorf("union name: %w", err)
			}
		}
		if err := mapDeclNames(t.DeclNames, f); err != nil {
			return err
		}
		return t.Union.MapGoff(f)
	case MStruct:
		if t.Name != nil {
			if err := t.Name.MapGoff(f); err != nil {
				return fmt.Errorf("struct name: %w", err)
			}
		}
		if err := mapDeclNames(t.DeclNames, f); err != nil {
			return err
		}
		return t.Struct.MapGoff(f)
	case MEnumDecl, MUnionDecl, MStructDecl:
		if err := t.Decl.Name.MapGoff(f); err != nil {
			return fmt.Errorf("decl name: %w", err)
		}
		return mapDeclNames(t.Decl.TypedefNames, f)
	}
	return fmt.Errorf("unknown M-type kind %d", t.Kind)
}

func mapDeclNames(names []*TemplatedName, f GoffMapFn) error {
	for _, n := range names {
		if err := n.MapGoff(f); err != nil {
			return fmt.Errorf("decl name: %w", err)
		}
	}
	return nil
}

// Mark adds self and every referenced identity to marked. Declarations
// do not mark themselves: an unreferenced declaration is garbage.
func (t *MType) Mark(self Goff, marked GoffSet) {
	switch t.Kind {
	case MPrim:
		marked.Add(PrimGoff(t.Prim))
	case MEnum:
		marked.Add(self)
		if t.Name != nil {
			t.Name.Mark(marked)
		}
		markNames(t.DeclNames, marked)
	case MUnion:
		marked.Add(self)
		if t.Name != nil {
			t.Name.Mark(marked)
		}
		markNames(t.DeclNames, marked)
		t.Union.Mark(marked)
	case MStruct:
		marked.Add(self)
		if t.Name != nil {
			t.Name.Mark(marked)
		}
		markNames(t.DeclNames, marked)
		t.Struct.Mark(marked)
	case MEnumDecl, MUnionDecl, MStructDecl:
		t.Decl.Name.Mark(marked)
		markNames(t.Decl.TypedefNames, marked)
	}
}

func markNames(names []*TemplatedName, marked GoffSet) {
	for _, n := range names {
		n.Mark(marked)
	}
}

// MarkNonEliminatable adds to marked the identities that must never be
// substituted by a composite tree: self-referential layouts, structs
// with vtables, and PTM base positions.
func (t *MType) MarkNonEliminatable(self Goff, marked GoffSet) {
	switch t.Kind {
	case MUnion:
		if t.unionContainsSelf(self) {
			marked.Add(self)
		}
		for _, a := range t.Union.TemplateArgs {
			markArgPtmBases(a, marked)
		}
		for _, m := range t.Union.Members {
			m.Ty.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
		}
	case MStruct:
		if t.structContainsSelf(self) {
			marked.Add(self)
		}
		if len(t.Struct.Vtable) > 0 {
			marked.Add(self)
		}
		for _, a := range t.Struct.TemplateArgs {
			markArgPtmBases(a, marked)
		}
		for _, v := range t.Struct.Vtable {
			for _, ft := range v.Entry.FunctionTypes {
				ft.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
			}
		}
		for _, m := range t.Struct.Members {
			m.Ty.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
		}
	}
}

func markArgPtmBases(a TemplateArg[Goff], marked GoffSet) {
	if a.Kind == ArgType {
		a.Type.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
	}
}

func (t *MType) unionContainsSelf(self Goff) bool {
	for _, m := range t.Union.Members {
		if m.TypeContains(self) {
			return true
		}
	}
	return false
}

func (t *MType) structContainsSelf(self Goff) bool {
	for _, m := range t.Struct.Members {
		if m.TypeContains(self) {
			return true
		}
	}
	return false
}

// IsLayoutDirectlyRecursive reports whether any member's type tree
// references self. Declarations and enums are never recursive.
func (t *MType) IsLayoutDirectlyRecursive(self Goff) bool {
	switch t.Kind {
	case MUnion:
		return t.unionContainsSelf(self)
	case MStruct:
		return t.structContainsSelf(self)
	}
	return false
}

// Replace substitutes every occurrence of k in the type's layout data
// with repl. Reports whether anything changed.
func (t *MType) Replace(k Goff, repl *Tree[Goff]) (bool, error) {
	switch t.Kind {
	case MUnion:
		return replaceUnion(t.Union, k, repl)
	case MStruct:
		return replaceStruct(t.Struct, k, repl)
	}
	return false, nil
}

func replaceUnion(u *Union, k Goff, repl *Tree[Goff]) (bool, error) {
	changed := false
	for i := range u.Members {
		nt, ok, err := ReplaceTreeGoff(u.Members[i].Ty, k, repl)
		if err != nil {
			return false, fmt.Errorf("union member: %w", err)
		}
		if ok {
			u.Members[i].Ty = nt
			changed = true
		}
	}
	for i := range u.TemplateArgs {
		ok, err := replaceArg(&u.TemplateArgs[i], k, repl)
		if err != nil {
			return false, fmt.Errorf("union template arg: %w", err)
		}
		changed = changed || ok
	}
	return changed, nil
}

func replaceStruct(s *Struct, k Goff, repl *Tree[Goff]) (bool, error) {
	changed := false
	for i := range s.Vtable {
		for j := range s.Vtable[i].Entry.FunctionTypes {
			nt, ok, err := ReplaceTreeGoff(s.Vtable[i].Entry.FunctionTypes[j], k, repl)
			if err != nil {
				return false, fmt.Errorf("vtable entry %q: %w", s.Vtable[i].Entry.Name, err)
			}
			if ok {
				s.Vtable[i].Entry.FunctionTypes[j] = nt
				changed = true
			}
		}
	}
	for i := range s.Members {
		nt, ok, err := ReplaceTreeGoff(s.Members[i].Ty, k, repl)
		if err != nil {
			return false, fmt.Errorf("struct member: %w", err)
		}
		if ok {
			s.Members[i].Ty = nt
			changed = true
		}
	}
	for i := range s.TemplateArgs {
		ok, err := replaceArg(&s.TemplateArgs[i], k, repl)
		if err != nil {
			return false, fmt.Errorf("struct template arg: %w", err)
		}
		changed = changed || ok
	}
	return changed, nil
}

func replaceArg(a *TemplateArg[Goff], k Goff, repl *Tree[Goff]) (bool, error) {
	if a.Kind != ArgType {
		return false, nil
	}
	nt, ok, err := ReplaceTreeGoff(a.Type, k, repl)
	if err != nil {
		return false, err
	}
	if ok {
		a.Type = nt
	}
	return ok, nil
}

// FullQualNames returns the structured fully-qualified names of the
// type: the definition name (with structural template args) plus all
// absorbed declaration and typedef names.
func (t *MType) FullQualNames() []FullQualName {
	switch t.Kind {
	case MPrim:
		return []FullQualName{FullQualFromName(NewTemplatedName(PrimName(t.Prim)))}
	case MEnum:
		return dataFullQualNames(t.Name, nil, t.DeclNames)
	case MUnion:
		return dataFullQualNames(t.Name, t.Union.TemplateArgs, t.DeclNames)
	case MStruct:
		return dataFullQualNames(t.Name, t.Struct.TemplateArgs, t.DeclNames)
	case MEnumDecl, MUnionDecl, MStructDecl:
		names := make([]FullQualName, 0, 1+len(t.Decl.TypedefNames))
		names = append(names, FullQualFromName(t.Decl.Name))
		for _, n := range t.Decl.TypedefNames {
			names = append(names, FullQualFromName(n))
		}
		return names
	}
	return nil
}

func dataFullQualNames(name *NamespacedName, templates []TemplateArg[Goff], declNames []*TemplatedName) []FullQualName {
	var names []FullQualName
	if name != nil {
		names = append(names, FullQualFromGoff(*name, templates))
	}
	for _, n := range declNames {
		names = append(names, FullQualFromName(n))
	}
	return names
}

// Key returns a deterministic canonical encoding of the type, used as
// the structural-equality key during deduplication.
func (t *MType) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "M%d:", t.Kind)
	switch t.Kind {
	case MPrim:
		b.WriteString(t.Prim.String())
	case MEnum:
		appendOptNameKey(&b, t.Name)
		appendDeclNamesKey(&b, t.DeclNames)
		t.Enum.appendKey(&b)
	case MUnion:
		appendOptNameKey(&b, t.Name)
		appendDeclNamesKey(&b, t.DeclNames)
		t.Union.appendKey(&b)
	case MStruct:
		appendOptNameKey(&b, t.Name)
		appendDeclNamesKey(&b, t.DeclNames)
		t.Struct.appendKey(&b)
	case MEnumDecl, MUnionDecl, MStructDecl:
		t.Decl.Name.appendKey(&b)
		appendDeclNamesKey(&b, t.Decl.TypedefNames)
	}
	return b.String()
}

func appendDeclNamesKey(b *strings.Builder, names []*TemplatedName) {
	b.WriteByte('[')
	for _, n := range names {
		n.appendKey(b)
		b.WriteByte(';')
	}
	b.WriteByte(']')
}

// Clone returns a deep copy of the type.
func (t *MType) Clone() *MType {
	out := &MType{Kind: t.Kind, Prim: t.Prim}
	if t.Name != nil {
		n := t.Name.Clone()
		out.Name = &n
	}
	for _, n := range t.DeclNames {
		out.DeclNames = append(out.DeclNames, n.Clone())
	}
	if t.Enum != nil {
		out.Enum = t.Enum.Clone()
	}
	if t.Union != nil {
		out.Union = t.Union.Clone()
	}
	if t.Struct != nil {
		out.Struct = t.Struct.Clone()
	}
	if t.Decl != nil {
		d := &MDecl{Name: t.Decl.Name.Clone()}
		for _, n := range t.Decl.TypedefNames {
			d.TypedefNames = append(d.TypedefNames, n.Clone())
		}
		out.Decl = d
	}
	return out
}
