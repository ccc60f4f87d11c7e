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

// maxAliasDepth bounds alias-chain resolution.
const maxAliasDepth = 1000

// CleanTypedefs collapses aliases, tree-base indirections and typedefs
// whose targets are composite or primitive, then dedupes. After the
// pass no L-type is an alias and no top-level type is a bare tree-base
// reference.
func CleanTypedefs(stage *LStage) error {
	buckets := tygraph.NewGoffBuckets()
	newMap := map[tygraph.Goff]*tygraph.LType{}
	treeCache := map[tygraph.Goff]bool{}
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		resolved, data, err := resolveAlias(g, stage.Types, treeCache, 0)
		if err != nil {
			return fmt.Errorf("resolving alias %s: %w", g, err)
		}
		if err := buckets.Merge(g, resolved); err != nil {
			return fmt.Errorf("merging %s and %s: %w", g, resolved, err)
		}
		newMap[resolved] = data
	}

	for g, t := range newMap {
		switch {
		case t.Kind == tygraph.LAlias:
			return fmt.Errorf("alias %s -> %s survived cleaning", g, t.Target)
		case t.Kind == tygraph.LTree && t.Tree.Kind == tygraph.TreeBase:
			return fmt.Errorf("tree-base alias %s -> %s survived cleaning", g, t.Tree.Base)
		}
	}

	deduped, err := tygraph.Dedupe(newMap, buckets, stage.Symbols, stage.NS)
	if err != nil {
		return fmt.Errorf("dedupe after typedef cleaning: %w", err)
	}
	stage.Types = deduped
	return nil
}

// resolveAlias resolves g to the identity and value it ultimately
// denotes. Typedefs to composite trees or primitives drop their name
// and collapse into the target; typedefs to other aliases retarget
// directly; other typedefs are kept.
func resolveAlias(g tygraph.Goff, types map[tygraph.Goff]*tygraph.LType, treeCache map[tygraph.Goff]bool, depth int) (tygraph.Goff, *tygraph.LType, error) {
	if depth > maxAliasDepth {
		return 0, nil, fmt.Errorf("alias chain depth limit exceeded")
	}
	t, ok := types[g]
	if !ok {
		return 0, nil, fmt.Errorf("unlinked type %s", g)
	}
	switch {
	case t.Kind == tygraph.LAlias:
		rg, rt, err := resolveAlias(t.Target, types, treeCache, depth+1)
		if err != nil {
			return 0, nil, fmt.Errorf("alias %s -> %s: %w", g, t.Target, err)
		}
		return rg, rt, nil
	case t.Kind == tygraph.LTree && t.Tree.Kind == tygraph.TreeBase:
		rg, rt, err := resolveAlias(t.Tree.Base, types, treeCache, depth+1)
		if err != nil {
			return 0, nil, fmt.Errorf("tree-base alias %s -> %s: %w", g, t.Tree.Base, err)
		}
		return rg, rt, nil
	case t.Kind == tygraph.LTypedef:
		resolvedG, _, err := resolveAlias(t.Target, types, treeCache, depth+1)
		if err != nil {
			return 0, nil, fmt.Errorf("typedef %s -> %s: %w", g, t.Target, err)
		}
		if isTree(t.Target, types, treeCache) || isPrimitive(t.Target, types) {
			// the name is dropped; the typedef becomes the resolved
			// target itself
			_, rt, err := resolveAlias(t.Target, types, treeCache, depth+1)
			if err != nil {
				return 0, nil, err
			}
			return resolvedG, rt, nil
		}
		if t.Target != resolvedG {
			// target is another alias; point at the resolution
			return g, tygraph.NewLTypedef(*t.Name, resolvedG), nil
		}
		return g, t, nil
	default:
		return g, t, nil
	}
}

func isTree(g tygraph.Goff, types map[tygraph.Goff]*tygraph.LType, cache map[tygraph.Goff]bool) bool {
	if v, ok := cache[g]; ok {
		return v
	}
	t, ok := types[g]
	if !ok {
		return false
	}
	var v bool
	switch {
	case t.Kind == tygraph.LTypedef || t.Kind == tygraph.LAlias:
		v = isTree(t.Target, types, cache)
	case t.Kind == tygraph.LTree && t.Tree.Kind == tygraph.TreeBase:
		v = isTree(t.Tree.Base, types, cache)
	case t.Kind == tygraph.LTree:
		v = true
	}
	cache[g] = v
	return v
}

func isPrimitive(g tygraph.Goff, types map[tygraph.Goff]*tygraph.LType) bool {
	if g.IsPrim() {
		return true
	}
	t, ok := types[g]
	if !ok {
		return false
	}
	switch {
	case t.Kind == tygraph.LTypedef || t.Kind == tygraph.LAlias:
		return isPrimitive(t.Target, types)
	case t.Kind == tygraph.LTree && t.Tree.Kind == tygraph.TreeBase:
		return isPrimitive(t.Tree.Base, types)
	case t.Kind == tygraph.LPrim:
		return true
	}
	return false
}
