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

import "fmt"

// MergeTask is one pending merge of two identities. The merge may only
// execute once every dependency pair has itself been merged.
type MergeTask struct {
	// Merge is the pair to merge.
	Merge GoffPair
	// Deps are the unresolved identity pairs arising from structurally
	// matching positions of the two types.
	Deps []GoffPair
}

// NewMergeTask returns a task merging k1 and k2.
func NewMergeTask(k1, k2 Goff) *MergeTask {
	return &MergeTask{Merge: NewGoffPair(k1, k2)}
}

// AddDep records a dependency pair. Pairs that are trivially satisfied
// (equal identities, or the task's own pair) are dropped.
func (t *MergeTask) AddDep(k1, k2 Goff) {
	if k1 == k2 {
		return
	}
	p := NewGoffPair(k1, k2)
	if p == t.Merge {
		return
	}
	t.Deps = append(t.Deps, p)
}

// UpdateDeps drops dependencies already satisfied in buckets and
// reports whether the task is ready to execute.
func (t *MergeTask) UpdateDeps(buckets *GoffBuckets) bool {
	kept := t.Deps[:0]
	for _, p := range t.Deps {
		if buckets.PrimaryFallback(p.A) != buckets.PrimaryFallback(p.B) {
			kept = append(kept, p)
		}
	}
	t.Deps = kept
	return len(t.Deps) == 0
}

// TrackDeps adds the task's dependencies into depmap keyed by the
// task's own pair.
func (t *MergeTask) TrackDeps(depmap map[GoffPair]map[GoffPair]struct{}) {
	set, ok := depmap[t.Merge]
	if !ok {
		set = map[GoffPair]struct{}{}
		depmap[t.Merge] = set
	}
	for _, p := range t.Deps {
		set[p] = struct{}{}
	}
}

// RemoveDeps drops the dependencies listed for this task in depmap;
// used to sever circular dependencies after SCC detection.
func (t *MergeTask) RemoveDeps(depmap map[GoffPair]map[GoffPair]struct{}) {
	toRemove, ok := depmap[t.Merge]
	if !ok {
		return
	}
	kept := t.Deps[:0]
	for _, p := range t.Deps {
		if _, drop := toRemove[p]; !drop {
			kept = append(kept, p)
		}
	}
	t.Deps = kept
}

// Execute merges the two types in the catalog and unions their
// identities in buckets.
func (t *MergeTask) Execute(types map[Goff]*MType, buckets *GoffBuckets) error {
	t1, ok := types[t.Merge.A]
	if !ok {
		return fmt.Errorf("merge %s: %s not in catalog", t.Merge, t.Merge.A)
	}
	t2, ok := types[t.Merge.B]
	if !ok {
		return fmt.Errorf("merge %s: %s not in catalog", t.Merge, t.Merge.B)
	}
	merged, err := t1.MergeData(t2)
	if err != nil {
		return fmt.Errorf("merging types %s and %s: %w", t.Merge.A, t.Merge.B, err)
	}
	types[t.Merge.A] = merged
	types[t.Merge.B] = merged.Clone()
	if err := buckets.Merge(t.Merge.A, t.Merge.B); err != nil {
		return fmt.Errorf("bucket merge of %s and %s: %w", t.Merge.A, t.Merge.B, err)
	}
	return nil
}

// AddMergeDeps checks that t and o are compatible for merging, and
// records the identity pairs that must merge first into task. A
// definition and a declaration of the same kind are always compatible.
func (t *MType) AddMergeDeps(o *MType, task *MergeTask) error {
	switch {
	case t.Kind == MPrim && o.Kind == MPrim:
		if t.Prim != o.Prim {
			return fmt.Errorf("cannot merge primitives %s and %s", t.Prim, o.Prim)
		}
		return nil
	case t.Kind == MEnum && o.Kind == MEnum:
		if !t.Enum.Equal(o.Enum) {
			return fmt.Errorf("cannot merge two enums of different enumerators or sizes")
		}
		return nil
	case (t.Kind == MEnum || t.Kind == MEnumDecl) && (o.Kind == MEnum || o.Kind == MEnumDecl):
		return nil
	case t.Kind == MUnion && o.Kind == MUnion:
		return t.Union.AddMergeDeps(o.Union, task)
	case (t.Kind == MUnion || t.Kind == MUnionDecl) && (o.Kind == MUnion || o.Kind == MUnionDecl):
		return nil
	case t.Kind == MStruct && o.Kind == MStruct:
		return t.Struct.AddMergeDeps(o.Struct, task)
	case (t.Kind == MStruct || t.Kind == MStructDecl) && (o.Kind == MStruct || o.Kind == MStructDecl):
		return nil
	}
	return fmt.Errorf("cannot merge two different type kinds (%s and %s)", t, o)
}

// AddMergeDeps records the member and template pair dependencies of two
// unions. Size, template-arg count and member count must match.
func (u *Union) AddMergeDeps(o *Union, task *MergeTask) error {
	if u.ByteSize != o.ByteSize {
		return fmt.Errorf("unions of different sizes cannot be merged")
	}
	if len(u.TemplateArgs) != len(o.TemplateArgs) {
		return fmt.Errorf("unions of different template arg count cannot be merged")
	}
	for i := range u.TemplateArgs {
		if err := addArgMergeDeps(u.TemplateArgs[i], o.TemplateArgs[i], task); err != nil {
			return fmt.Errorf("union template arg %d: %w", i, err)
		}
	}
	if len(u.Members) != len(o.Members) {
		return fmt.Errorf("unions of different member count cannot be merged")
	}
	for i := range u.Members {
		if err := addMemberMergeDeps(&u.Members[i], &o.Members[i], task); err != nil {
			return fmt.Errorf("union member %d: %w", i, err)
		}
	}
	return nil
}

// AddMergeDeps records member, vtable and template pair dependencies
// of two structs. A unit may see only part of a vtable, so vtable
// entries are matched by index (destructors match each other) and only
// conflicting matches fail.
func (s *Struct) AddMergeDeps(o *Struct, task *MergeTask) error {
	if s.ByteSize != o.ByteSize {
		return fmt.Errorf("structs of different sizes cannot be merged (0x%x != 0x%x)", s.ByteSize, o.ByteSize)
	}
	if len(s.TemplateArgs) != len(o.TemplateArgs) {
		return fmt.Errorf("structs of different template arg count cannot be merged")
	}
	for i := range s.TemplateArgs {
		if err := addArgMergeDeps(s.TemplateArgs[i], o.TemplateArgs[i], task); err != nil {
			return fmt.Errorf("struct template arg %d: %w", i, err)
		}
	}
	for _, slot := range s.Vtable {
		other, ok := findVtableMatch(o.Vtable, slot)
		if !ok {
			continue
		}
		if err := addVtableMergeDeps(&slot.Entry, other, task); err != nil {
			return fmt.Errorf("vtable entry %d (%q): %w", slot.Index, slot.Entry.Name, err)
		}
	}
	if len(s.Members) != len(o.Members) {
		return fmt.Errorf("structs of different member count cannot be merged")
	}
	for i := range s.Members {
		if err := addMemberMergeDeps(&s.Members[i], &o.Members[i], task); err != nil {
			return fmt.Errorf("struct member %d: %w", i, err)
		}
	}
	return nil
}

func findVtableMatch(vtable []VtableSlot, slot VtableSlot) (*VtableEntry, bool) {
	if slot.Entry.IsDtor() {
		for i := range vtable {
			if vtable[i].Entry.IsDtor() {
				return &vtable[i].Entry, true
			}
		}
		return nil, false
	}
	for i := range vtable {
		if !vtable[i].Entry.IsDtor() && vtable[i].Index == slot.Index {
			return &vtable[i].Entry, true
		}
	}
	return nil, false
}

func addMemberMergeDeps(a, b *Member, task *MergeTask) error {
	if a.Offset != b.Offset {
		return fmt.Errorf("members of different offsets cannot be merged")
	}
	if a.Name != b.Name {
		return fmt.Errorf("members of different names cannot be merged (%q and %q)", a.Name, b.Name)
	}
	if a.Special != b.Special || a.BitfieldSize != b.BitfieldSize {
		return fmt.Errorf("members of different special kinds cannot be merged")
	}
	return addTreeMergeDeps(a.Ty, b.Ty, task)
}

func addVtableMergeDeps(a, b *VtableEntry, task *MergeTask) error {
	if a.Name != b.Name {
		return fmt.Errorf("vtable entries of different names cannot be merged (%q and %q)", a.Name, b.Name)
	}
	if len(a.FunctionTypes) != len(b.FunctionTypes) {
		return fmt.Errorf("vtable entries of different arity cannot be merged")
	}
	for i := range a.FunctionTypes {
		if err := addTreeMergeDeps(a.FunctionTypes[i], b.FunctionTypes[i], task); err != nil {
			return fmt.Errorf("vtable function type %d: %w", i, err)
		}
	}
	return nil
}

func addArgMergeDeps(a, b TemplateArg[Goff], task *MergeTask) error {
	if a.Kind != b.Kind {
		return fmt.Errorf("different template arg kinds cannot be merged")
	}
	switch a.Kind {
	case ArgConst:
		if a.Const != b.Const {
			return fmt.Errorf("constant template args of different value cannot be merged")
		}
	case ArgType:
		return addTreeMergeDeps(a.Type, b.Type, task)
	}
	return nil
}

// addTreeMergeDeps records the identity pairs at structurally matching
// positions of two trees. Shape, arity and array-length mismatches are
// hard errors.
func addTreeMergeDeps(a, b *Tree[Goff], task *MergeTask) error {
	if a.Kind != b.Kind {
		return fmt.Errorf("tree shapes differ and cannot be merged")
	}
	switch a.Kind {
	case TreeBase:
		task.AddDep(a.Base, b.Base)
		return nil
	case TreeArray:
		if a.Len != b.Len {
			return fmt.Errorf("array types of different length cannot be merged")
		}
		return addTreeMergeDeps(a.Elem, b.Elem, task)
	case TreePtr:
		return addTreeMergeDeps(a.Elem, b.Elem, task)
	case TreeSub:
		if len(a.Sub) != len(b.Sub) {
			return fmt.Errorf("subroutine types of different arity cannot be merged")
		}
		for i := range a.Sub {
			if err := addTreeMergeDeps(a.Sub[i], b.Sub[i], task); err != nil {
				return err
			}
		}
		return nil
	case TreePtmd:
		task.AddDep(a.Base, b.Base)
		return addTreeMergeDeps(a.Elem, b.Elem, task)
	case TreePtmf:
		if len(a.Sub) != len(b.Sub) {
			return fmt.Errorf("pointer-to-member-function types of different arity cannot be merged")
		}
		task.AddDep(a.Base, b.Base)
		for i := range a.Sub {
			if err := addTreeMergeDeps(a.Sub[i], b.Sub[i], task); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown tree kind %d", a.Kind)
}

// MergeData merges two compatible types into one. Primitives absorb
// everything; an enum beats a struct or union; a struct beats a union;
// a definition absorbs a declaration's names; two declarations keep
// the lexicographically least name as primary.
func (t *MType) MergeData(o *MType) (*MType, error) {
	switch {
	case t.Kind == MPrim && o.Kind == MPrim:
		if t.Prim != o.Prim {
			return nil, fmt.Errorf("cannot merge primitives %s and %s", t.Prim, o.Prim)
		}
		return NewMPrim(t.Prim), nil
	case t.Kind == MPrim:
		return NewMPrim(t.Prim), nil
	case o.Kind == MPrim:
		return NewMPrim(o.Prim), nil

	case t.Kind == MEnum && o.Kind == MEnum:
		if !t.Enum.Equal(o.Enum) {
			return nil, fmt.Errorf("cannot merge two enums of different enumerators or sizes")
		}
		return &MType{
			Kind:      MEnum,
			Name:      selectName(t.Name, o.Name),
			DeclNames: mergeNameSets(t.DeclNames, o.DeclNames),
			Enum:      t.Enum.Clone(),
		}, nil
	case t.Kind == MEnum && o.Kind == MEnumDecl:
		return mergeDataWithDecl(t, o.Decl), nil
	case t.Kind == MEnumDecl && o.Kind == MEnum:
		return mergeDataWithDecl(o, t.Decl), nil
	case t.Kind == MEnumDecl && o.Kind == MEnumDecl:
		return &MType{Kind: MEnumDecl, Decl: mergeDecls(t.Decl, o.Decl)}, nil
	// prefer enums over struct or union
	case t.Kind == MEnum:
		return t.Clone(), nil
	case o.Kind == MEnum:
		return o.Clone(), nil
	case t.Kind == MEnumDecl || o.Kind == MEnumDecl:
		return nil, fmt.Errorf("enum declaration cannot be merged with non-enum")

	case t.Kind == MStruct && o.Kind == MStruct:
		data, err := t.Struct.MergeData(o.Struct)
		if err != nil {
			return nil, fmt.Errorf("merging struct data: %w", err)
		}
		return &MType{
			Kind:      MStruct,
			Name:      selectName(t.Name, o.Name),
			DeclNames: mergeNameSets(t.DeclNames, o.DeclNames),
			Struct:    data,
		}, nil
	case t.Kind == MStruct && o.Kind == MStructDecl:
		return mergeDataWithDecl(t, o.Decl), nil
	case t.Kind == MStructDecl && o.Kind == MStruct:
		return mergeDataWithDecl(o, t.Decl), nil
	case t.Kind == MStructDecl && o.Kind == MStructDecl:
		return &MType{Kind: MStructDecl, Decl: mergeDecls(t.Decl, o.Decl)}, nil
	// prefer struct over union
	case t.Kind == MStruct:
		return t.Clone(), nil
	case o.Kind == MStruct:
		return o.Clone(), nil
	case t.Kind == MStructDecl || o.Kind == MStructDecl:
		return nil, fmt.Errorf("struct declaration cannot be merged with union")

	case t.Kind == MUnion && o.Kind == MUnion:
		return &MType{
			Kind:      MUnion,
			Name:      selectName(t.Name, o.Name),
			DeclNames: mergeNameSets(t.DeclNames, o.DeclNames),
			Union:     t.Union.Clone(),
		}, nil
	case t.Kind == MUnion && o.Kind == MUnionDecl:
		return mergeDataWithDecl(t, o.Decl), nil
	case t.Kind == MUnionDecl && o.Kind == MUnion:
		return mergeDataWithDecl(o, t.Decl), nil
	case t.Kind == MUnionDecl && o.Kind == MUnionDecl:
		return &MType{Kind: MUnionDecl, Decl: mergeDecls(t.Decl, o.Decl)}, nil
	}
	return nil, fmt.Errorf("cannot merge type kinds %d and %d", t.Kind, o.Kind)
}

// MergeData merges two struct layouts. Members and template args were
// already proven compatible pairwise; only vtables need combining,
// since each unit may see a different subset.
func (s *Struct) MergeData(o *Struct) (*Struct, error) {
	out := s.Clone()
	for _, oslot := range o.Vtable {
		self, ok := findVtableMatch(s.Vtable, oslot)
		if !ok {
			out.Vtable = append(out.Vtable, VtableSlot{Index: oslot.Index, Entry: oslot.Entry.Clone()})
			continue
		}
		if self.Name != oslot.Entry.Name {
			return nil, fmt.Errorf("cannot merge vtable entries of different names at index %d: %q and %q", oslot.Index, self.Name, oslot.Entry.Name)
		}
	}
	sortVtable(out.Vtable)
	return out, nil
}

func sortVtable(vtable []VtableSlot) {
	for i := 1; i < len(vtable); i++ {
		for j := i; j > 0 && vtable[j].Index < vtable[j-1].Index; j-- {
			vtable[j], vtable[j-1] = vtable[j-1], vtable[j]
		}
	}
}

func selectName(a, b *NamespacedName) *NamespacedName {
	if a != nil {
		n := a.Clone()
		return &n
	}
	if b != nil {
		n := b.Clone()
		return &n
	}
	return nil
}

func mergeNameSets(a, b []*TemplatedName) []*TemplatedName {
	all := make([]*TemplatedName, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return SortTemplatedNames(all)
}

// mergeDataWithDecl absorbs a declaration's names into a definition.
func mergeDataWithDecl(def *MType, decl *MDecl) *MType {
	out := def.Clone()
	names := append(mergeNameSets(out.DeclNames, decl.TypedefNames), decl.Name)
	out.DeclNames = SortTemplatedNames(names)
	return out
}

// mergeDecls merges two declarations; the lexicographically least name
// becomes primary and the other joins the typedef names.
func mergeDecls(a, b *MDecl) *MDecl {
	primary, secondary := a.Name, b.Name
	if secondary.Key() < primary.Key() {
		primary, secondary = secondary, primary
	}
	names := append(mergeNameSets(a.TypedefNames, b.TypedefNames), secondary)
	names = SortTemplatedNames(names)
	kept := names[:0]
	for _, n := range names {
		if !n.Equal(primary) {
			kept = append(kept, n)
		}
	}
	return &MDecl{Name: primary, TypedefNames: kept}
}
