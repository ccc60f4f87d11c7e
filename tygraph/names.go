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
	"sort"
	"strings"
)

// TemplateArgKind discriminates the variants of a TemplateArg.
type TemplateArgKind int

// The template argument kinds.
const (
	// ArgConst is an integer constant argument; booleans are 0/1.
	ArgConst TemplateArgKind = iota
	// ArgType is a type argument, held as a composite tree.
	ArgType
	// ArgStaticConst is a compiler-assigned constant such as a
	// function address; its value is opaque.
	ArgStaticConst
)

// TemplateArg is one template argument over an identity type R.
type TemplateArg[R any] struct {
	Kind  TemplateArgKind
	Const int64
	Type  *Tree[R]
}

// ConstArg returns a constant template argument.
func ConstArg[R any](v int64) TemplateArg[R] {
	return TemplateArg[R]{Kind: ArgConst, Const: v}
}

// TypeArg returns a type template argument.
func TypeArg[R any](t *Tree[R]) TemplateArg[R] {
	return TemplateArg[R]{Kind: ArgType, Type: t}
}

// StaticConstArg returns an opaque compiler-assigned constant argument.
func StaticConstArg[R any]() TemplateArg[R] {
	return TemplateArg[R]{Kind: ArgStaticConst}
}

// String implements fmt.Stringer.
func (a TemplateArg[R]) String() string {
	switch a.Kind {
	case ArgConst:
		return fmt.Sprint(a.Const)
	case ArgType:
		return a.Type.String()
	case ArgStaticConst:
		return "[static]"
	}
	return fmt.Sprintf("TemplateArg(kind=%d)", a.Kind)
}

// mapGoffTree applies f to the argument's type tree, if it has one.
func (a *TemplateArg[R]) mapGoffTree(f func(*Tree[R]) error) error {
	if a.Kind != ArgType {
		return nil
	}
	return f(a.Type)
}

// MapGoffArg rewrites the identities of a Goff template argument.
func MapGoffArg(a *TemplateArg[Goff], f GoffMapFn) error {
	return a.mapGoffTree(func(t *Tree[Goff]) error { return MapTreeGoff(t, f) })
}

// MarkArg adds the identities of a Goff template argument to marked.
func MarkArg(a TemplateArg[Goff], marked GoffSet) {
	if a.Kind != ArgType {
		return
	}
	a.Type.ForEach(func(g *Goff) error {
		marked.Add(*g)
		return nil
	})
}

// CloneArg returns a deep copy of a template argument.
func CloneArg[R any](a TemplateArg[R]) TemplateArg[R] {
	out := a
	if a.Type != nil {
		out.Type = a.Type.Clone()
	}
	return out
}

// CloneArgs returns a deep copy of a template argument list.
func CloneArgs[R any](args []TemplateArg[R]) []TemplateArg[R] {
	if args == nil {
		return nil
	}
	out := make([]TemplateArg[R], len(args))
	for i, a := range args {
		out[i] = CloneArg(a)
	}
	return out
}

// TemplatedName is a fully qualified name with structured template
// arguments, recursive through the arguments.
type TemplatedName struct {
	// Base is the untemplated qualified name.
	Base NamespacedName
	// Templates are the structured template arguments, empty for
	// untemplated names.
	Templates []TemplateArg[*TemplatedName]
}

// NewTemplatedName returns an untemplated name.
func NewTemplatedName(base NamespacedName) *TemplatedName {
	return &TemplatedName{Base: base}
}

// String implements fmt.Stringer.
func (n *TemplatedName) String() string {
	if len(n.Templates) == 0 {
		return n.Base.String()
	}
	parts := make([]string, len(n.Templates))
	for i, t := range n.Templates {
		parts[i] = t.String()
	}
	return fmt.Sprintf("%s<%s>", n.Base, strings.Join(parts, ", "))
}

// MapGoff rewrites every identity reachable through the name, including
// identities inside qualifier segments of nested template arguments.
func (n *TemplatedName) MapGoff(f GoffMapFn) error {
	if err := n.Base.MapGoff(f); err != nil {
		return err
	}
	for i := range n.Templates {
		a := &n.Templates[i]
		if a.Kind != ArgType {
			continue
		}
		if err := a.Type.ForEach(func(inner **TemplatedName) error {
			return (*inner).MapGoff(f)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Mark adds every identity reachable through the name to marked.
func (n *TemplatedName) Mark(marked GoffSet) {
	n.Base.Mark(marked)
	for _, a := range n.Templates {
		if a.Kind != ArgType {
			continue
		}
		a.Type.ForEach(func(inner **TemplatedName) error {
			(*inner).Mark(marked)
			return nil
		})
	}
}

// Key returns a deterministic canonical encoding of the name, used for
// ordering and set membership. Identities inside qualifier segments
// participate, so names over merged identities key equal only after
// rewriting.
func (n *TemplatedName) Key() string {
	var b strings.Builder
	n.appendKey(&b)
	return b.String()
}

func (n *TemplatedName) appendKey(b *strings.Builder) {
	appendNamespacedNameKey(b, n.Base)
	if len(n.Templates) == 0 {
		return
	}
	b.WriteByte('<')
	for i, a := range n.Templates {
		if i > 0 {
			b.WriteByte(',')
		}
		appendArgKey(b, a, func(b *strings.Builder, inner *TemplatedName) {
			inner.appendKey(b)
		})
	}
	b.WriteByte('>')
}

func appendNamespacedNameKey(b *strings.Builder, n NamespacedName) {
	for _, s := range n.NS {
		fmt.Fprintf(b, "%d|%s|%d|%t;", s.Kind, s.Name, s.Goff, s.IsLinkage)
	}
	b.WriteByte('!')
	b.WriteString(n.Base)
}

func appendArgKey[R any](b *strings.Builder, a TemplateArg[R], base func(*strings.Builder, R)) {
	switch a.Kind {
	case ArgConst:
		fmt.Fprintf(b, "c%d", a.Const)
	case ArgStaticConst:
		b.WriteString("s")
	case ArgType:
		appendTreeKey(b, a.Type, base)
	}
}

func appendTreeKey[R any](b *strings.Builder, t *Tree[R], base func(*strings.Builder, R)) {
	switch t.Kind {
	case TreeBase:
		b.WriteString("b(")
		base(b, t.Base)
		b.WriteByte(')')
	case TreeArray:
		b.WriteString("a(")
		appendTreeKey(b, t.Elem, base)
		fmt.Fprintf(b, ",%d)", t.Len)
	case TreePtr:
		b.WriteString("p(")
		appendTreeKey(b, t.Elem, base)
		b.WriteByte(')')
	case TreeSub:
		b.WriteString("f(")
		for i, s := range t.Sub {
			if i > 0 {
				b.WriteByte(',')
			}
			appendTreeKey(b, s, base)
		}
		b.WriteByte(')')
	case TreePtmd:
		b.WriteString("md(")
		base(b, t.Base)
		b.WriteByte(',')
		appendTreeKey(b, t.Elem, base)
		b.WriteByte(')')
	case TreePtmf:
		b.WriteString("mf(")
		base(b, t.Base)
		for _, s := range t.Sub {
			b.WriteByte(',')
			appendTreeKey(b, s, base)
		}
		b.WriteByte(')')
	}
}

// Equal reports structural equality of two templated names.
func (n *TemplatedName) Equal(o *TemplatedName) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.Key() == o.Key()
}

// Clone returns a deep copy of the name.
func (n *TemplatedName) Clone() *TemplatedName {
	out := &TemplatedName{Base: n.Base.Clone()}
	if n.Templates != nil {
		out.Templates = make([]TemplateArg[*TemplatedName], len(n.Templates))
		for i, a := range n.Templates {
			na := a
			if a.Type != nil {
				na.Type = a.Type.Clone()
				na.Type.ForEach(func(inner **TemplatedName) error {
					*inner = (*inner).Clone()
					return nil
				})
			}
			out.Templates[i] = na
		}
	}
	return out
}

// SortTemplatedNames orders names by canonical key and removes
// duplicates.
func SortTemplatedNames(names []*TemplatedName) []*TemplatedName {
	sort.Slice(names, func(i, j int) bool { return names[i].Key() < names[j].Key() })
	out := names[:0]
	var prev string
	for i, n := range names {
		k := n.Key()
		if i > 0 && k == prev {
			continue
		}
		out = append(out, n)
		prev = k
	}
	return out
}

// FQKind discriminates the variants of a FullQualName.
type FQKind int

// The fully-qualified name kinds.
const (
	// FQName is a fully structured name obtained from the name parser.
	FQName FQKind = iota
	// FQGoff is a definition name whose template arguments are still
	// identity trees from DWARF.
	FQGoff
)

// FullQualName is one fully-qualified name of a type: either a fully
// structured templated name, or a base name plus identity-typed
// template arguments still awaiting name resolution.
type FullQualName struct {
	Kind FQKind
	// Name is set for FQName.
	Name *TemplatedName
	// Base and Templates are set for FQGoff.
	Base      NamespacedName
	Templates []TemplateArg[Goff]
}

// FullQualFromName wraps a structured name.
func FullQualFromName(n *TemplatedName) FullQualName {
	return FullQualName{Kind: FQName, Name: n}
}

// FullQualFromGoff wraps a definition name with identity-typed
// template arguments.
func FullQualFromGoff(base NamespacedName, templates []TemplateArg[Goff]) FullQualName {
	return FullQualName{Kind: FQGoff, Base: base, Templates: templates}
}

// Key returns a deterministic canonical encoding.
func (f FullQualName) Key() string {
	var b strings.Builder
	switch f.Kind {
	case FQName:
		b.WriteString("n:")
		f.Name.appendKey(&b)
	case FQGoff:
		b.WriteString("g:")
		appendNamespacedNameKey(&b, f.Base)
		b.WriteByte('<')
		for i, a := range f.Templates {
			if i > 0 {
				b.WriteByte(',')
			}
			appendArgKey(&b, a, func(b *strings.Builder, g Goff) {
				fmt.Fprintf(b, "%d", g)
			})
		}
		b.WriteByte('>')
	}
	return b.String()
}

// Equal reports structural equality.
func (f FullQualName) Equal(o FullQualName) bool {
	return f.Key() == o.Key()
}

// String implements fmt.Stringer.
func (f FullQualName) String() string {
	switch f.Kind {
	case FQName:
		return f.Name.String()
	case FQGoff:
		if len(f.Templates) == 0 {
			return f.Base.String()
		}
		parts := make([]string, len(f.Templates))
		for i, a := range f.Templates {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s<%s>", f.Base, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("FullQualName(kind=%d)", f.Kind)
}

// SortFullQualNames orders names by canonical key and removes
// duplicates.
func SortFullQualNames(names []FullQualName) []FullQualName {
	sort.Slice(names, func(i, j int) bool { return names[i].Key() < names[j].Key() })
	out := names[:0]
	var prev string
	for i, n := range names {
		k := n.Key()
		if i > 0 && k == prev {
			continue
		}
		out = append(out, n)
		prev = k
	}
	return out
}
