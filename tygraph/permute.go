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

// FullQualPermuter expands the fully-qualified name strings of each
// type. Expansion multiplies because every identity referenced inside
// a name — in qualifier segments, template arguments, and PTM base
// positions — may itself carry several names; every combination is
// enumerated. Results are memoized per identity. Recursion through
// self-referential names is broken by caching an empty set on entry:
// a name that reaches itself contributes nothing to its own outer
// permutations.
type FullQualPermuter struct {
	names map[Goff][]FullQualName
	cache map[Goff][]string
}

// NewFullQualPermuter returns a permuter over the per-identity name
// sets in names.
func NewFullQualPermuter(names map[Goff][]FullQualName) *FullQualPermuter {
	return &FullQualPermuter{names: names, cache: map[Goff][]string{}}
}

// PermutedNames returns the sorted set of fully-qualified name strings
// of g. An anonymous type yields the empty set.
func (p *FullQualPermuter) PermutedNames(g Goff) ([]string, error) {
	if cached, ok := p.cache[g]; ok {
		return cached, nil
	}
	names, ok := p.names[g]
	if !ok {
		return nil, fmt.Errorf("no structured name recorded for type %s", g)
	}
	if len(names) == 0 {
		return nil, nil
	}
	// break self-reference cycles, e.g. struct Foo { using Self = Foo; }
	p.cache[g] = []string{}
	set := map[string]struct{}{}
	for _, n := range names {
		out, err := p.permuteFullQual(n)
		if err != nil {
			return nil, fmt.Errorf("permuting names of %s: %w", g, err)
		}
		for _, s := range out {
			set[s] = struct{}{}
		}
	}
	if len(set) == 0 {
		// discard the in-progress sentinel so a later visit outside
		// the cycle can try again
		delete(p.cache, g)
		return nil, nil
	}
	out := sortedSet(set)
	p.cache[g] = out
	return out, nil
}

func (p *FullQualPermuter) permuteFullQual(n FullQualName) ([]string, error) {
	switch n.Kind {
	case FQName:
		return p.permuteTemplatedName(n.Name)
	case FQGoff:
		baseNames, err := p.permuteNamespacedName(n.Base)
		if err != nil {
			return nil, fmt.Errorf("base of goff-templated name: %w", err)
		}
		if len(n.Templates) == 0 {
			return baseNames, nil
		}
		argSets := make([][]string, len(n.Templates))
		for i, a := range n.Templates {
			s, err := p.permuteArgGoff(a)
			if err != nil {
				return nil, fmt.Errorf("template arg %d: %w", i, err)
			}
			argSets[i] = s
		}
		return combineTemplates(baseNames, argSets), nil
	}
	return nil, fmt.Errorf("unknown fully-qualified name kind %d", n.Kind)
}

func (p *FullQualPermuter) permuteTemplatedName(n *TemplatedName) ([]string, error) {
	baseNames, err := p.permuteNamespacedName(n.Base)
	if err != nil {
		return nil, fmt.Errorf("base of templated name: %w", err)
	}
	if len(n.Templates) == 0 {
		return baseNames, nil
	}
	argSets := make([][]string, len(n.Templates))
	for i, a := range n.Templates {
		s, err := p.permuteArgName(a)
		if err != nil {
			return nil, fmt.Errorf("template arg %d: %w", i, err)
		}
		argSets[i] = s
	}
	return combineTemplates(baseNames, argSets), nil
}

func (p *FullQualPermuter) permuteNamespacedName(n NamespacedName) ([]string, error) {
	if len(n.NS) == 0 {
		return []string{n.Base}, nil
	}
	prefixes, err := p.permuteNamespace(n.NS)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(prefixes))
	for _, pre := range prefixes {
		out = append(out, pre+"::"+n.Base)
	}
	return out, nil
}

func (p *FullQualPermuter) permuteNamespace(ns Namespace) ([]string, error) {
	var out []string
	for _, seg := range ns {
		switch seg.Kind {
		case SegName:
			if len(out) == 0 {
				out = []string{seg.Name}
			} else {
				for i := range out {
					out[i] += "::" + seg.Name
				}
			}
		case SegType:
			// the enclosing type's names already carry their own
			// namespace, so the accumulated prefix is discarded
			names, err := p.PermutedNames(seg.Goff)
			if err != nil {
				return nil, fmt.Errorf("enclosing type %s: %w", seg.Goff, err)
			}
			// an empty set means the enclosing type is being resolved
			// recursively; discard this name entirely
			if len(names) == 0 {
				return nil, nil
			}
			out = append([]string(nil), names...)
		case SegSubprogram:
			if seg.IsLinkage {
				out = []string{seg.Name}
			} else {
				for i := range out {
					out[i] += fmt.Sprintf("::(function %s)", seg.Name)
				}
			}
		case SegAnonymous:
		}
	}
	return out, nil
}

func (p *FullQualPermuter) permuteArgGoff(a TemplateArg[Goff]) ([]string, error) {
	switch a.Kind {
	case ArgConst:
		return []string{fmt.Sprint(a.Const)}, nil
	case ArgStaticConst:
		return []string{"[static]"}, nil
	case ArgType:
		return p.permuteTreeGoff(a.Type)
	}
	return nil, fmt.Errorf("unknown template arg kind %d", a.Kind)
}

func (p *FullQualPermuter) permuteArgName(a TemplateArg[*TemplatedName]) ([]string, error) {
	switch a.Kind {
	case ArgConst:
		return []string{fmt.Sprint(a.Const)}, nil
	case ArgStaticConst:
		return []string{"[static]"}, nil
	case ArgType:
		return p.permuteTreeName(a.Type)
	}
	return nil, fmt.Errorf("unknown template arg kind %d", a.Kind)
}

func (p *FullQualPermuter) permuteTreeGoff(t *Tree[Goff]) ([]string, error) {
	return permuteTree(t,
		func(g Goff) ([]string, error) { return p.PermutedNames(g) },
		func(inner *Tree[Goff]) ([]string, error) { return p.permuteTreeGoff(inner) })
}

func (p *FullQualPermuter) permuteTreeName(t *Tree[*TemplatedName]) ([]string, error) {
	return permuteTree(t,
		func(n *TemplatedName) ([]string, error) { return p.permuteTemplatedName(n) },
		func(inner *Tree[*TemplatedName]) ([]string, error) { return p.permuteTreeName(inner) })
}

// permuteTree renders one composite shape over already-permuted
// component name sets. base resolves identities, recur resolves
// subtrees of the same representation.
func permuteTree[R any](t *Tree[R], base func(R) ([]string, error), recur func(*Tree[R]) ([]string, error)) ([]string, error) {
	switch t.Kind {
	case TreeBase:
		return base(t.Base)
	case TreeArray:
		elems, err := recur(t.Elem)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		out := make([]string, len(elems))
		for i, e := range elems {
			out[i] = fmt.Sprintf("%s[%d]", e, t.Len)
		}
		return out, nil
	case TreePtr:
		if t.Elem.Kind == TreeSub {
			argSets, err := permuteSubArgs(t.Elem.Sub, recur)
			if err != nil {
				return nil, err
			}
			set := map[string]struct{}{}
			for _, args := range cartesian(argSets) {
				set[fmt.Sprintf("%s(*)(%s)", args[0], strings.Join(args[1:], ", "))] = struct{}{}
			}
			return sortedSet(set), nil
		}
		pointees, err := recur(t.Elem)
		if err != nil {
			return nil, fmt.Errorf("pointee: %w", err)
		}
		out := make([]string, len(pointees))
		for i, e := range pointees {
			out[i] = e + "*"
		}
		return out, nil
	case TreeSub:
		argSets, err := permuteSubArgs(t.Sub, recur)
		if err != nil {
			return nil, err
		}
		set := map[string]struct{}{}
		for _, args := range cartesian(argSets) {
			set[fmt.Sprintf("%s(%s)", args[0], strings.Join(args[1:], ", "))] = struct{}{}
		}
		return sortedSet(set), nil
	case TreePtmd:
		baseNames, err := base(t.Base)
		if err != nil {
			return nil, fmt.Errorf("pointer-to-member base: %w", err)
		}
		pointees, err := recur(t.Elem)
		if err != nil {
			return nil, fmt.Errorf("pointer-to-member pointee: %w", err)
		}
		set := map[string]struct{}{}
		for _, b := range baseNames {
			for _, e := range pointees {
				set[fmt.Sprintf("%s %s::*", e, b)] = struct{}{}
			}
		}
		return sortedSet(set), nil
	case TreePtmf:
		baseNames, err := base(t.Base)
		if err != nil {
			return nil, fmt.Errorf("pointer-to-member-function base: %w", err)
		}
		argSets, err := permuteSubArgs(t.Sub, recur)
		if err != nil {
			return nil, err
		}
		set := map[string]struct{}{}
		for _, b := range baseNames {
			for _, args := range cartesian(argSets) {
				set[fmt.Sprintf("%s (%s::*)(%s)", args[0], b, strings.Join(args[1:], ", "))] = struct{}{}
			}
		}
		return sortedSet(set), nil
	}
	return nil, fmt.Errorf("unknown tree kind %d", t.Kind)
}

func permuteSubArgs[R any](sub []*Tree[R], recur func(*Tree[R]) ([]string, error)) ([][]string, error) {
	out := make([][]string, len(sub))
	for i, s := range sub {
		names, err := recur(s)
		if err != nil {
			return nil, fmt.Errorf("subroutine component %d: %w", i, err)
		}
		out[i] = names
	}
	return out, nil
}

func combineTemplates(bases []string, argSets [][]string) []string {
	set := map[string]struct{}{}
	for _, b := range bases {
		for _, args := range cartesian(argSets) {
			set[fmt.Sprintf("%s<%s>", b, strings.Join(args, ", "))] = struct{}{}
		}
	}
	return sortedSet(set)
}

// cartesian enumerates every combination taking one element from each
// input set. An input with an empty set yields no combinations.
func cartesian(sets [][]string) [][]string {
	if len(sets) == 0 {
		return nil
	}
	out := [][]string{nil}
	for _, set := range sets {
		var next [][]string
		for _, prev := range out {
			for _, s := range set {
				row := make([]string, 0, len(prev)+1)
				row = append(row, prev...)
				row = append(row, s)
				next = append(next, row)
			}
		}
		out = next
	}
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
