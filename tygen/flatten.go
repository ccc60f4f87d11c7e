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
	"fmt"

	"github.com/opendebug/tydb/tygraph"
)

// maxFlattenDepth bounds tree inlining.
const maxFlattenDepth = 1000

// FlattenTrees inlines every tree-base reference that points at
// another composite tree, so that after the pass every Base node
// resolves directly to a primitive or nominal type. Along the way
// single-element arrays collapse into their element, and a
// pointer-to-member-data whose pointee is a subroutine normalizes into
// a pointer-to-member-function. Member, template-arg, vtable and
// symbol types are rewritten in place, then the catalog is deduped.
func FlattenTrees(stage *LStage) error {
	changes := map[tygraph.Goff]*tygraph.LType{}
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		flattened, changed, err := flattenByGoff(g, stage.Types, 0)
		if err != nil {
			return fmt.Errorf("flattening type %s: %w", g, err)
		}
		if changed {
			changes[g] = tygraph.NewLTree(flattened)
		}
	}
	for g, t := range changes {
		stage.Types[g] = t
	}

	for _, g := range tygraph.SortedGoffs(stage.Types) {
		t := stage.Types[g]
		switch t.Kind {
		case tygraph.LUnion:
			if err := flattenUnion(g, t.Union, stage.Types); err != nil {
				return err
			}
		case tygraph.LStruct:
			if err := flattenStruct(g, t.Struct, stage.Types); err != nil {
				return err
			}
		}
	}

	for name, sym := range stage.Symbols {
		if flattened, changed, err := flattenByTree(sym.Ty, stage.Types, 0); err != nil {
			return fmt.Errorf("flattening type of symbol %q: %w", name, err)
		} else if changed {
			sym.Ty = flattened
		}
		for i := range sym.TemplateArgs {
			if err := flattenArg(&sym.TemplateArgs[i], stage.Types); err != nil {
				return fmt.Errorf("flattening template arg of symbol %q: %w", name, err)
			}
		}
	}

	deduped, err := tygraph.Dedupe(stage.Types, tygraph.NewGoffBuckets(), stage.Symbols, stage.NS)
	if err != nil {
		return fmt.Errorf("dedupe after tree flattening: %w", err)
	}
	stage.Types = deduped
	return nil
}

func flattenUnion(g tygraph.Goff, u *tygraph.Union, types map[tygraph.Goff]*tygraph.LType) error {
	for i := range u.TemplateArgs {
		if err := flattenArg(&u.TemplateArgs[i], types); err != nil {
			return fmt.Errorf("flattening union %s template arg: %w", g, err)
		}
	}
	for i := range u.Members {
		flattened, changed, err := flattenByTree(u.Members[i].Ty, types, 0)
		if err != nil {
			return fmt.Errorf("flattening union %s member: %w", g, err)
		}
		if changed {
			u.Members[i].Ty = flattened
		}
	}
	return nil
}

func flattenStruct(g tygraph.Goff, s *tygraph.Struct, types map[tygraph.Goff]*tygraph.LType) error {
	for i := range s.TemplateArgs {
		if err := flattenArg(&s.TemplateArgs[i], types); err != nil {
			return fmt.Errorf("flattening struct %s template arg: %w", g, err)
		}
	}
	for i := range s.Vtable {
		for j, ft := range s.Vtable[i].Entry.FunctionTypes {
			flattened, changed, err := flattenByTree(ft, types, 0)
			if err != nil {
				return fmt.Errorf("flattening struct %s vtable type: %w", g, err)
			}
			if changed {
				s.Vtable[i].Entry.FunctionTypes[j] = flattened
			}
		}
	}
	for i := range s.Members {
		flattened, changed, err := flattenByTree(s.Members[i].Ty, types, 0)
		if err != nil {
			return fmt.Errorf("flattening struct %s member: %w", g, err)
		}
		if changed {
			s.Members[i].Ty = flattened
		}
	}
	return nil
}

func flattenArg(a *tygraph.TemplateArg[tygraph.Goff], types map[tygraph.Goff]*tygraph.LType) error {
	if a.Kind != tygraph.ArgType {
		return nil
	}
	flattened, changed, err := flattenByTree(a.Type, types, 0)
	if err != nil {
		return err
	}
	if changed {
		a.Type = flattened
	}
	return nil
}

// flattenByGoff returns the flattened tree an LTree identity denotes.
// Non-tree identities report no change.
func flattenByGoff(g tygraph.Goff, types map[tygraph.Goff]*tygraph.LType, depth int) (*tygraph.Tree[tygraph.Goff], bool, error) {
	t, ok := types[g]
	if !ok {
		return nil, false, fmt.Errorf("unlinked type %s", g)
	}
	switch t.Kind {
	case tygraph.LTree:
		flattened, changed, err := flattenByTree(t.Tree, types, depth)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return t.Tree.Clone(), true, nil
		}
		return flattened, true, nil
	case tygraph.LAlias:
		return nil, false, fmt.Errorf("alias %s present during tree flattening", g)
	}
	return nil, false, nil
}

// flattenByTree returns a flattened copy of tree; changed is false
// when the tree was already flat.
func flattenByTree(tree *tygraph.Tree[tygraph.Goff], types map[tygraph.Goff]*tygraph.LType, depth int) (*tygraph.Tree[tygraph.Goff], bool, error) {
	if depth > maxFlattenDepth {
		return nil, false, fmt.Errorf("tree flatten depth limit reached")
	}
	switch tree.Kind {
	case tygraph.TreeBase:
		inner, changed, err := flattenByGoff(tree.Base, types, depth+1)
		if err != nil {
			return nil, false, fmt.Errorf("flattening base %s: %w", tree.Base, err)
		}
		if changed {
			return inner, true, nil
		}
		return nil, false, nil
	case tygraph.TreePtr:
		inner, changed, err := flattenByTree(tree.Elem, types, depth+1)
		if err != nil {
			return nil, false, err
		}
		if changed {
			return tygraph.NewPtr(inner), true, nil
		}
		return nil, false, nil
	case tygraph.TreeArray:
		inner, changed, err := flattenByTree(tree.Elem, types, depth+1)
		if err != nil {
			return nil, false, err
		}
		// single-element arrays collapse into the element
		if tree.Len == 1 {
			if changed {
				return inner, true, nil
			}
			return tree.Elem.Clone(), true, nil
		}
		if changed {
			return tygraph.NewArray(inner, tree.Len), true, nil
		}
		return nil, false, nil
	case tygraph.TreeSub:
		sub, changed, err := flattenSub(tree.Sub, types, depth)
		if err != nil {
			return nil, false, err
		}
		if changed {
			return tygraph.NewSub(sub), true, nil
		}
		return nil, false, nil
	case tygraph.TreePtmd:
		inner, changed, err := flattenByTree(tree.Elem, types, depth+1)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return nil, false, nil
		}
		// a pointer to member data of subroutine type is really a
		// pointer to member function
		if inner.Kind == tygraph.TreeSub {
			return tygraph.NewPtmf(tree.Base, inner.Sub), true, nil
		}
		return tygraph.NewPtmd(tree.Base, inner), true, nil
	case tygraph.TreePtmf:
		sub, changed, err := flattenSub(tree.Sub, types, depth)
		if err != nil {
			return nil, false, err
		}
		if changed {
			return tygraph.NewPtmf(tree.Base, sub), true, nil
		}
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("unknown tree kind %d", tree.Kind)
}

func flattenSub(sub []*tygraph.Tree[tygraph.Goff], types map[tygraph.Goff]*tygraph.LType, depth int) ([]*tygraph.Tree[tygraph.Goff], bool, error) {
	var out []*tygraph.Tree[tygraph.Goff]
	for i, s := range sub {
		flattened, changed, err := flattenByTree(s, types, depth+1)
		if err != nil {
			return nil, false, fmt.Errorf("flattening subroutine component %d: %w", i, err)
		}
		if changed && out == nil {
			out = make([]*tygraph.Tree[tygraph.Goff], 0, len(sub))
			for _, prev := range sub[:i] {
				out = append(out, prev.Clone())
			}
		}
		if out != nil {
			if changed {
				out = append(out, flattened)
			} else {
				out = append(out, s.Clone())
			}
		}
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}
