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

// Enumerator is one named value of an enum.
type Enumerator struct {
	Name string
	// Value is the signed value. An unsigned enumerator greater than
	// the maximum int64 is stored as its two's-complement
	// reinterpretation; enums wider than 8 bytes are not supported.
	Value int64
}

// Enum is the data of an enum whose width is fully resolved.
type Enum struct {
	ByteSize uint32
	// Enumerators appear in DWARF declaration order.
	Enumerators []Enumerator
}

// Equal reports structural equality.
func (e *Enum) Equal(o *Enum) bool {
	if e.ByteSize != o.ByteSize || len(e.Enumerators) != len(o.Enumerators) {
		return false
	}
	for i := range e.Enumerators {
		if e.Enumerators[i] != o.Enumerators[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the enum data.
func (e *Enum) Clone() *Enum {
	out := &Enum{ByteSize: e.ByteSize}
	out.Enumerators = append(out.Enumerators, e.Enumerators...)
	return out
}

func (e *Enum) appendKey(b *strings.Builder) {
	fmt.Fprintf(b, "E%d[", e.ByteSize)
	for _, en := range e.Enumerators {
		fmt.Fprintf(b, "%s=%d;", en.Name, en.Value)
	}
	b.WriteByte(']')
}

// EnumUnsized is enum data whose width may still be expressed as a
// reference to a base type, pending size resolution.
type EnumUnsized struct {
	// ByteSize is valid when HasSize is true.
	ByteSize uint32
	HasSize  bool
	// SizeBase is the base-type identity the width comes from, when
	// HasSize is false.
	SizeBase    Goff
	Enumerators []Enumerator
}

// Sized converts to an Enum; the size must already be resolved.
func (e *EnumUnsized) Sized() (*Enum, error) {
	if !e.HasSize {
		return nil, fmt.Errorf("enum size still unresolved (base %s)", e.SizeBase)
	}
	return &Enum{ByteSize: e.ByteSize, Enumerators: append([]Enumerator(nil), e.Enumerators...)}, nil
}

// Clone returns a copy of the enum data.
func (e *EnumUnsized) Clone() *EnumUnsized {
	out := *e
	out.Enumerators = append([]Enumerator(nil), e.Enumerators...)
	return &out
}

func (e *EnumUnsized) appendKey(b *strings.Builder) {
	if e.HasSize {
		fmt.Fprintf(b, "E%d[", e.ByteSize)
	} else {
		fmt.Fprintf(b, "E@%d[", e.SizeBase)
	}
	for _, en := range e.Enumerators {
		fmt.Fprintf(b, "%s=%d;", en.Name, en.Value)
	}
	b.WriteByte(']')
}

// SpecialKind marks a member that needs special layout handling.
type SpecialKind int

// The special member kinds.
const (
	// SpecialNone is a plain data member.
	SpecialNone SpecialKind = iota
	// SpecialBase is an inherited base-class subobject.
	SpecialBase
	// SpecialVfptr is the virtual function table pointer.
	SpecialVfptr
	// SpecialBitfield is one or more coalesced bitfields; the member
	// carries the container byte size.
	SpecialBitfield
)

// Member is one member of a struct or union.
type Member struct {
	// Offset is the byte offset within the struct; always 0 in unions.
	Offset uint32
	// Name is empty for anonymous members.
	Name string
	// Ty is the member type, possibly unflattened depending on stage.
	Ty *Tree[Goff]
	// Special is SpecialNone for plain members.
	Special SpecialKind
	// BitfieldSize is the container byte size for SpecialBitfield.
	BitfieldSize uint32
}

// IsBase reports whether the member is a base-class subobject.
func (m *Member) IsBase() bool {
	return m.Special == SpecialBase
}

// Equal reports structural equality.
func (m *Member) Equal(o *Member) bool {
	return m.Offset == o.Offset && m.Name == o.Name && m.Special == o.Special &&
		m.BitfieldSize == o.BitfieldSize && treeGoffEqual(m.Ty, o.Ty)
}

// Clone returns a copy of the member.
func (m *Member) Clone() Member {
	out := *m
	out.Ty = m.Ty.Clone()
	return out
}

// TypeContains reports whether the member's type tree references k.
func (m *Member) TypeContains(k Goff) bool {
	return TreeContainsGoff(m.Ty, k)
}

func (m *Member) appendKey(b *strings.Builder) {
	fmt.Fprintf(b, "m%d|%s|%d|%d|", m.Offset, m.Name, m.Special, m.BitfieldSize)
	appendTreeKey(b, m.Ty, appendGoffKey)
}

func appendGoffKey(b *strings.Builder, g Goff) {
	fmt.Fprintf(b, "%d", g)
}

func treeGoffEqual(a, b *Tree[Goff]) bool {
	var ka, kb strings.Builder
	appendTreeKey(&ka, a, appendGoffKey)
	appendTreeKey(&kb, b, appendGoffKey)
	return ka.String() == kb.String()
}

// VtableEntry is one virtual function.
type VtableEntry struct {
	Name string
	// FunctionTypes holds [return, args...] of the subroutine type.
	FunctionTypes []*Tree[Goff]
}

// IsDtor reports whether the entry is a destructor. Destructor entries
// always carry vtable index 0.
func (v *VtableEntry) IsDtor() bool {
	return strings.HasPrefix(v.Name, "~")
}

// Clone returns a copy of the entry.
func (v *VtableEntry) Clone() VtableEntry {
	return VtableEntry{Name: v.Name, FunctionTypes: cloneTrees(v.FunctionTypes)}
}

func (v *VtableEntry) appendKey(b *strings.Builder) {
	fmt.Fprintf(b, "v%s(", v.Name)
	for i, t := range v.FunctionTypes {
		if i > 0 {
			b.WriteByte(',')
		}
		appendTreeKey(b, t, appendGoffKey)
	}
	b.WriteByte(')')
}

// VtableSlot is a vtable entry at a fixed index.
type VtableSlot struct {
	Index int
	Entry VtableEntry
}

// Union is the data of a union type. Members all sit at offset 0 with
// SpecialNone; duplicate-typed members are merged at load time.
type Union struct {
	TemplateArgs []TemplateArg[Goff]
	// ByteSize equals the size of the largest member.
	ByteSize uint32
	Members  []Member
}

// Clone returns a deep copy.
func (u *Union) Clone() *Union {
	out := &Union{TemplateArgs: CloneArgs(u.TemplateArgs), ByteSize: u.ByteSize}
	for _, m := range u.Members {
		out.Members = append(out.Members, m.Clone())
	}
	return out
}

// MapGoff rewrites every identity in the union data.
func (u *Union) MapGoff(f GoffMapFn) error {
	for i := range u.TemplateArgs {
		if err := MapGoffArg(&u.TemplateArgs[i], f); err != nil {
			return fmt.Errorf("union template arg: %w", err)
		}
	}
	for i := range u.Members {
		if err := MapTreeGoff(u.Members[i].Ty, f); err != nil {
			return fmt.Errorf("union member: %w", err)
		}
	}
	return nil
}

// Mark adds every referenced identity to marked.
func (u *Union) Mark(marked GoffSet) {
	for _, a := range u.TemplateArgs {
		MarkArg(a, marked)
	}
	for _, m := range u.Members {
		m.Ty.ForEach(func(g *Goff) error {
			marked.Add(*g)
			return nil
		})
	}
}

func (u *Union) appendKey(b *strings.Builder) {
	fmt.Fprintf(b, "U%d<", u.ByteSize)
	for i, a := range u.TemplateArgs {
		if i > 0 {
			b.WriteByte(',')
		}
		appendArgKey(b, a, appendGoffKey)
	}
	b.WriteString(">{")
	for _, m := range u.Members {
		m.appendKey(b)
		b.WriteByte(';')
	}
	b.WriteByte('}')
}

// Struct is the data of a struct or class type.
type Struct struct {
	TemplateArgs []TemplateArg[Goff]
	ByteSize     uint32
	// Vtable holds virtual functions by index; destructors sit at 0.
	Vtable []VtableSlot
	// Members are sorted by offset, base subobjects after plain
	// members at equal offsets.
	Members []Member
}

// ZSTStruct returns an empty zero-sized struct (sizeof 1) carrying the
// given template args.
func ZSTStruct(templateArgs []TemplateArg[Goff]) *Struct {
	return &Struct{TemplateArgs: templateArgs, ByteSize: 1}
}

// Clone returns a deep copy.
func (s *Struct) Clone() *Struct {
	out := &Struct{TemplateArgs: CloneArgs(s.TemplateArgs), ByteSize: s.ByteSize}
	for _, v := range s.Vtable {
		out.Vtable = append(out.Vtable, VtableSlot{Index: v.Index, Entry: v.Entry.Clone()})
	}
	for _, m := range s.Members {
		out.Members = append(out.Members, m.Clone())
	}
	return out
}

// MapGoff rewrites every identity in the struct data.
func (s *Struct) MapGoff(f GoffMapFn) error {
	for i := range s.TemplateArgs {
		if err := MapGoffArg(&s.TemplateArgs[i], f); err != nil {
			return fmt.Errorf("struct template arg: %w", err)
		}
	}
	for i := range s.Vtable {
		for _, t := range s.Vtable[i].Entry.FunctionTypes {
			if err := MapTreeGoff(t, f); err != nil {
				return fmt.Errorf("vtable entry %q: %w", s.Vtable[i].Entry.Name, err)
			}
		}
	}
	for i := range s.Members {
		if err := MapTreeGoff(s.Members[i].Ty, f); err != nil {
			return fmt.Errorf("struct member: %w", err)
		}
	}
	return nil
}

// Mark adds every referenced identity to marked.
func (s *Struct) Mark(marked GoffSet) {
	for _, a := range s.TemplateArgs {
		MarkArg(a, marked)
	}
	for _, v := range s.Vtable {
		for _, t := range v.Entry.FunctionTypes {
			t.ForEach(func(g *Goff) error {
				marked.Add(*g)
				return nil
			})
		}
	}
	for _, m := range s.Members {
		m.Ty.ForEach(func(g *Goff) error {
			marked.Add(*g)
			return nil
		})
	}
}

func (s *Struct) appendKey(b *strings.Builder) {
	fmt.Fprintf(b, "S%d<", s.ByteSize)
	for i, a := range s.TemplateArgs {
		if i > 0 {
			b.WriteByte(',')
		}
		appendArgKey(b, a, appendGoffKey)
	}
	b.WriteString(">[")
	for _, v := range s.Vtable {
		fmt.Fprintf(b, "%d:", v.Index)
		v.Entry.appendKey(b)
		b.WriteByte(';')
	}
	b.WriteString("]{")
	for _, m := range s.Members {
		m.appendKey(b)
		b.WriteByte(';')
	}
	b.WriteByte('}')
}

// SortMembers orders members by offset ascending, and at equal offsets
// puts base subobjects last.
func SortMembers(members []Member) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Offset != members[j].Offset {
			return members[i].Offset < members[j].Offset
		}
		return !members[i].IsBase() && members[j].IsBase()
	})
}
