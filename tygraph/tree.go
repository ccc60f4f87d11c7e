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

// TreeKind discriminates the variants of a Tree.
type TreeKind int

// The composite type shapes.
const (
	// TreeBase is a reference to a named or primitive type.
	TreeBase TreeKind = iota
	// TreeArray is a fixed-length array; Elem is the element type.
	TreeArray
	// TreePtr is a pointer (or reference); Elem is the pointee.
	TreePtr
	// TreeSub is a subroutine; Sub holds [return, args...].
	TreeSub
	// TreePtmd is a pointer-to-member-data; Base is the containing
	// type identity, Elem the pointee.
	TreePtmd
	// TreePtmf is a pointer-to-member-function; Base is the containing
	// type identity, Sub holds [return, args...].
	TreePtmf
)

// Tree is a recursive composite-type shape over an identity type R.
// For R = Goff the tree references types in a catalog; for
// R = *TemplatedName it references types by structured name. In Ptmd
// and Ptmf shapes, Base must resolve to a nominal (struct/union)
// identity, never to a composite.
type Tree[R any] struct {
	Kind TreeKind
	// Base is the referenced identity for TreeBase, and the containing
	// type for TreePtmd/TreePtmf.
	Base R
	// Elem is the element for TreeArray, the pointee for TreePtr and
	// TreePtmd.
	Elem *Tree[R]
	// Len is the element count for TreeArray.
	Len uint32
	// Sub holds [return, args...] for TreeSub and TreePtmf.
	Sub []*Tree[R]
}

// NewBase returns a Base tree referencing r.
func NewBase[R any](r R) *Tree[R] {
	return &Tree[R]{Kind: TreeBase, Base: r}
}

// NewArray returns an Array tree of length n over elem.
func NewArray[R any](elem *Tree[R], n uint32) *Tree[R] {
	return &Tree[R]{Kind: TreeArray, Elem: elem, Len: n}
}

// NewPtr returns a Ptr tree over pointee.
func NewPtr[R any](pointee *Tree[R]) *Tree[R] {
	return &Tree[R]{Kind: TreePtr, Elem: pointee}
}

// NewSub returns a Sub tree over [return, args...].
func NewSub[R any](types []*Tree[R]) *Tree[R] {
	return &Tree[R]{Kind: TreeSub, Sub: types}
}

// NewPtmd returns a Ptmd tree with containing type base and pointee.
func NewPtmd[R any](base R, pointee *Tree[R]) *Tree[R] {
	return &Tree[R]{Kind: TreePtmd, Base: base, Elem: pointee}
}

// NewPtmf returns a Ptmf tree with containing type base over
// [return, args...].
func NewPtmf[R any](base R, types []*Tree[R]) *Tree[R] {
	return &Tree[R]{Kind: TreePtmf, Base: base, Sub: types}
}

// ForEach calls f on every identity in the tree, including PTM bases,
// stopping at the first error.
func (t *Tree[R]) ForEach(f func(*R) error) error {
	switch t.Kind {
	case TreeBase:
		return f(&t.Base)
	case TreeArray, TreePtr:
		return t.Elem.ForEach(f)
	case TreeSub:
		for _, s := range t.Sub {
			if err := s.ForEach(f); err != nil {
				return err
			}
		}
		return nil
	case TreePtmd:
		if err := f(&t.Base); err != nil {
			return err
		}
		return t.Elem.ForEach(f)
	case TreePtmf:
		if err := f(&t.Base); err != nil {
			return err
		}
		for _, s := range t.Sub {
			if err := s.ForEach(f); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown tree kind %d", t.Kind)
}

// ForEachPtmBase calls f on every identity that sits in the base
// position of a Ptmd or Ptmf anywhere in the tree.
func (t *Tree[R]) ForEachPtmBase(f func(*R)) {
	switch t.Kind {
	case TreeBase:
	case TreeArray, TreePtr:
		t.Elem.ForEachPtmBase(f)
	case TreeSub:
		for _, s := range t.Sub {
			s.ForEachPtmBase(f)
		}
	case TreePtmd:
		f(&t.Base)
		t.Elem.ForEachPtmBase(f)
	case TreePtmf:
		f(&t.Base)
		for _, s := range t.Sub {
			s.ForEachPtmBase(f)
		}
	}
}

// Clone returns a deep copy of the tree structure. Identities are
// copied by value.
func (t *Tree[R]) Clone() *Tree[R] {
	if t == nil {
		return nil
	}
	out := &Tree[R]{Kind: t.Kind, Base: t.Base, Len: t.Len}
	if t.Elem != nil {
		out.Elem = t.Elem.Clone()
	}
	if t.Sub != nil {
		out.Sub = make([]*Tree[R], len(t.Sub))
		for i, s := range t.Sub {
			out.Sub[i] = s.Clone()
		}
	}
	return out
}

// String implements fmt.Stringer using a C-like rendering.
func (t *Tree[R]) String() string {
	switch t.Kind {
	case TreeBase:
		return fmt.Sprint(t.Base)
	case TreeArray:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
	case TreePtr:
		if t.Elem.Kind == TreeSub {
			return fmt.Sprintf("%s (*)(%s)", t.Elem.Sub[0], joinTrees(t.Elem.Sub[1:]))
		}
		return t.Elem.String() + "*"
	case TreeSub:
		return fmt.Sprintf("%s(%s)", t.Sub[0], joinTrees(t.Sub[1:]))
	case TreePtmd:
		return fmt.Sprintf("%s %v::*", t.Elem, t.Base)
	case TreePtmf:
		return fmt.Sprintf("%s (%v::*)(%s)", t.Sub[0], t.Base, joinTrees(t.Sub[1:]))
	}
	return fmt.Sprintf("Tree(kind=%d)", t.Kind)
}

func joinTrees[R any](ts []*Tree[R]) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// MapTreeGoff rewrites every identity in t through f, in place.
func MapTreeGoff(t *Tree[Goff], f GoffMapFn) error {
	return t.ForEach(func(g *Goff) error {
		ng, err := f(*g)
		if err != nil {
			return err
		}
		*g = ng
		return nil
	})
}

// TreeContainsGoff reports whether k appears anywhere in t, including
// PTM base positions.
func TreeContainsGoff(t *Tree[Goff], k Goff) bool {
	found := false
	t.ForEach(func(g *Goff) error {
		if *g == k {
			found = true
		}
		return nil
	})
	return found
}

// ReplaceTreeGoff returns a copy of t with every Base reference to k
// substituted by repl, or (nil, false) when k does not occur. A PTM
// base position may only be replaced when repl is itself a Base tree;
// callers must consult the non-eliminatable set before attempting a
// composite replacement.
func ReplaceTreeGoff(t *Tree[Goff], k Goff, repl *Tree[Goff]) (*Tree[Goff], bool, error) {
	switch t.Kind {
	case TreeBase:
		if t.Base != k {
			return nil, false, nil
		}
		return repl.Clone(), true, nil
	case TreeArray:
		elem, changed, err := ReplaceTreeGoff(t.Elem, k, repl)
		if err != nil || !changed {
			return nil, false, err
		}
		return NewArray(elem, t.Len), true, nil
	case TreePtr:
		elem, changed, err := ReplaceTreeGoff(t.Elem, k, repl)
		if err != nil || !changed {
			return nil, false, err
		}
		return NewPtr(elem), true, nil
	case TreeSub:
		sub, changed, err := replaceTreeGoffs(t.Sub, k, repl)
		if err != nil || !changed {
			return nil, false, err
		}
		return NewSub(sub), true, nil
	case TreePtmd, TreePtmf:
		base := t.Base
		baseChanged := false
		if base == k {
			if repl.Kind != TreeBase {
				return nil, false, fmt.Errorf("pointer-to-member base %s cannot be replaced with a composite tree", k)
			}
			base = repl.Base
			baseChanged = true
		}
		if t.Kind == TreePtmd {
			elem, changed, err := ReplaceTreeGoff(t.Elem, k, repl)
			if err != nil {
				return nil, false, err
			}
			if !changed && !baseChanged {
				return nil, false, nil
			}
			if !changed {
				elem = t.Elem.Clone()
			}
			return NewPtmd(base, elem), true, nil
		}
		sub, changed, err := replaceTreeGoffs(t.Sub, k, repl)
		if err != nil {
			return nil, false, err
		}
		if !changed && !baseChanged {
			return nil, false, nil
		}
		if !changed {
			sub = cloneTrees(t.Sub)
		}
		return NewPtmf(base, sub), true, nil
	}
	return nil, false, fmt.Errorf("unknown tree kind %d", t.Kind)
}

func replaceTreeGoffs(ts []*Tree[Goff], k Goff, repl *Tree[Goff]) ([]*Tree[Goff], bool, error) {
	var out []*Tree[Goff]
	for i, t := range ts {
		nt, changed, err := ReplaceTreeGoff(t, k, repl)
		if err != nil {
			return nil, false, err
		}
		if changed && out == nil {
			out = make([]*Tree[Goff], 0, len(ts))
			for _, prev := range ts[:i] {
				out = append(out, prev.Clone())
			}
		}
		if out != nil {
			if changed {
				out = append(out, nt)
			} else {
				out = append(out, t.Clone())
			}
		}
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

func cloneTrees[R any](ts []*Tree[R]) []*Tree[R] {
	out := make([]*Tree[R], len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
