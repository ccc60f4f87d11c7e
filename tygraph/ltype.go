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

// LTypeKind discriminates the low-level type variants.
type LTypeKind int

// The low-level type kinds, mapping closely onto raw DWARF. Trees are
// not yet flattened and declaration/typedef names may still embed
// template syntax.
const (
	// LPrim is a primitive.
	LPrim LTypeKind = iota
	// LTypedef is a named typedef to another identity.
	LTypedef
	// LEnum is an enum definition, size possibly unresolved.
	LEnum
	// LEnumDecl is a forward declaration of an enum.
	LEnumDecl
	// LUnion is a union definition.
	LUnion
	// LUnionDecl is a forward declaration of a union.
	LUnionDecl
	// LStruct is a struct or class definition.
	LStruct
	// LStructDecl is a forward declaration of a struct or class.
	LStructDecl
	// LTree is an anonymous composite type.
	LTree
	// LAlias is an unnamed collapsible edge to another identity.
	LAlias
)

// LDecl is the payload of a forward declaration. Declarations keep
// template syntax in their raw name; it is re-parsed later.
type LDecl struct {
	// Enclosing is the namespace-only path needed to resolve names in
	// the template arguments.
	Enclosing Namespace
	// Name is the qualified name, possibly with template syntax.
	Name NamespacedName
}

// LType is a low-level type: one per type-tagged DWARF entry.
type LType struct {
	Kind LTypeKind
	Prim Prim
	// Name is the definition name for LEnum/LUnion/LStruct (nil when
	// anonymous) and the typedef name for LTypedef. Definition names
	// never include template arguments, which DWARF supplies
	// structurally.
	Name *NamespacedName
	// Target is the referenced identity for LTypedef and LAlias.
	Target Goff
	Enum   *EnumUnsized
	Union  *Union
	Struct *Struct
	Decl   *LDecl
	Tree   *Tree[Goff]
}

// NewLPrim returns a primitive L-type.
func NewLPrim(p Prim) *LType {
	return &LType{Kind: LPrim, Prim: p}
}

// NewLAlias returns an alias L-type.
func NewLAlias(target Goff) *LType {
	return &LType{Kind: LAlias, Target: target}
}

// NewLTree returns a composite L-type.
func NewLTree(t *Tree[Goff]) *LType {
	return &LType{Kind: LTree, Tree: t}
}

// NewLTypedef returns a typedef L-type.
func NewLTypedef(name NamespacedName, target Goff) *LType {
	return &LType{Kind: LTypedef, Name: &name, Target: target}
}

// String implements fmt.Stringer with a short form for diagnostics.
func (t *LType) String() string {
	switch t.Kind {
	case LPrim:
		return t.Prim.String()
	case LTypedef:
		return fmt.Sprintf("typedef %s -> %s", t.Name, t.Target)
	case LEnum:
		return fmt.Sprintf("enum %s", nameOrAnon(t.Name))
	case LEnumDecl:
		return fmt.Sprintf("enum decl %s", t.Decl.Name)
	case LUnion:
		return fmt.Sprintf("union %s", nameOrAnon(t.Name))
	case LUnionDecl:
		return fmt.Sprintf("union decl %s", t.Decl.Name)
	case LStruct:
		return fmt.Sprintf("struct %s", nameOrAnon(t.Name))
	case LStructDecl:
		return fmt.Sprintf("struct decl %s", t.Decl.Name)
	case LTree:
		return fmt.Sprintf("tree %s", t.Tree)
	case LAlias:
		return fmt.Sprintf("alias -> %s", t.Target)
	}
	return fmt.Sprintf("LType(kind=%d)", t.Kind)
}

func nameOrAnon(n *NamespacedName) string {
	if n == nil {
		return "<anonymous>"
	}
	return n.String()
}

// MapGoff rewrites every identity referenced by the type.
func (t *LType) MapGoff(f GoffMapFn) error {
	switch t.Kind {
	case LPrim:
		return nil
	case LTypedef:
		if err := t.Name.MapGoff(f); err != nil {
			return fmt.Errorf("typedef name: %w", err)
		}
		g, err := f(t.Target)
		if err != nil {
			return fmt.Errorf("typedef target %s: %w", t.Target, err)
		}
		t.Target = g
		return nil
	case LAlias:
		g, err := f(t.Target)
		if err != nil {
			return fmt.Errorf("alias target %s: %w", t.Target, err)
		}
		t.Target = g
		return nil
	case LEnum:
		if t.Name != nil {
			if err := t.Name.MapGoff(f); err != nil {
				return fmt.Errorf("enum name: %w", err)
			}
		}
		if !t.Enum.HasSize {
			g, err := f(t.Enum.SizeBase)
			if err != nil {
				return fmt.Errorf("enum size base: %w", err)
			}
			t.Enum.SizeBase = g
		}
		return nil
	case LUnion:
		if t.Name != nil {
			if err := t.Name.MapGoff(f); err != nil {
				return fmt.Errorf("union name: %w", err)
			}
		}
		return t.Union.MapGoff(f)
	case LStruct:
		if t.Name != nil {
			if err := t.Name.MapGoff(f); err != nil {
				return fmt.Errorf("struct name: %w", err)
			}
		}
		return t.Struct.MapGoff(f)
	case LEnumDecl, LUnionDecl, LStructDecl:
		if err := t.Decl.Enclosing.MapGoff(f); err != nil {
			return fmt.Errorf("decl enclosing namespace: %w", err)
		}
		if err := t.Decl.Name.MapGoff(f); err != nil {
			return fmt.Errorf("decl name: %w", err)
		}
		return nil
	case LTree:
		return MapTreeGoff(t.Tree, f)
	}
	return fmt.Errorf("unknown L-type kind %d", t.Kind)
}

// Mark adds self (where self is a strong root) and every referenced
// identity to marked.
func (t *LType) Mark(self Goff, marked GoffSet) {
	switch t.Kind {
	case LPrim:
		marked.Add(PrimGoff(t.Prim))
	case LTypedef:
		marked.Add(self)
		marked.Add(t.Target)
		t.Name.Mark(marked)
	case LAlias:
		marked.Add(self)
		marked.Add(t.Target)
	case LEnum:
		marked.Add(self)
		if t.Name != nil {
			t.Name.Mark(marked)
		}
		if !t.Enum.HasSize {
			marked.Add(t.Enum.SizeBase)
		}
	case LUnion:
		marked.Add(self)
		if t.Name != nil {
			t.Name.Mark(marked)
		}
		t.Union.Mark(marked)
	case LStruct:
		marked.Add(self)
		if t.Name != nil {
			t.Name.Mark(marked)
		}
		t.Struct.Mark(marked)
	case LEnumDecl, LUnionDecl, LStructDecl:
		marked.Add(self)
		t.Decl.Enclosing.Mark(marked)
		t.Decl.Name.Mark(marked)
	case LTree:
		t.Tree.ForEach(func(g *Goff) error {
			marked.Add(*g)
			return nil
		})
	}
}

// Key returns a deterministic canonical encoding of the type, used as
// the structural-equality key during deduplication.
func (t *LType) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "L%d:", t.Kind)
	switch t.Kind {
	case LPrim:
		b.WriteString(t.Prim.String())
	case LTypedef:
		appendNamespacedNameKey(&b, *t.Name)
		fmt.Fprintf(&b, "->%d", t.Target)
	case LAlias:
		fmt.Fprintf(&b, "->%d", t.Target)
	case LEnum:
		appendOptNameKey(&b, t.Name)
		t.Enum.appendKey(&b)
	case LUnion:
		appendOptNameKey(&b, t.Name)
		t.Union.appendKey(&b)
	case LStruct:
		appendOptNameKey(&b, t.Name)
		t.Struct.appendKey(&b)
	case LEnumDecl, LUnionDecl, LStructDecl:
		for _, s := range t.Decl.Enclosing {
			fmt.Fprintf(&b, "%d|%s|%d;", s.Kind, s.Name, s.Goff)
		}
		b.WriteByte('/')
		appendNamespacedNameKey(&b, t.Decl.Name)
	case LTree:
		appendTreeKey(&b, t.Tree, appendGoffKey)
	}
	return b.String()
}

func appendOptNameKey(b *strings.Builder, n *NamespacedName) {
	if n == nil {
		b.WriteString("~;")
		return
	}
	appendNamespacedNameKey(b, *n)
	b.WriteByte(';')
}
