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

	log "github.com/golang/glog"

	"github.com/opendebug/tydb/tygraph"
)

// OptimizeLayout iteratively simplifies type layouts until a full pass
// over all optimizers changes nothing. After every applied change the
// catalog is deduped so that newly equal types collapse before the
// next pass.
//
// Additional optimizers (single-member struct, same-type union
// collapse, single-base inlining) hang off the optimizers list once
// their interaction with derived names is settled.
func OptimizeLayout(stage *HStage) error {
	optimizers := []func(*HStage, *optimizeContext) (*optimizeOutput, error){
		optimizeUnionFewerThanTwoMembers,
	}
	pass := 1
	for {
		changed := false
		for _, optimize := range optimizers {
			ctx := &optimizeContext{nonEliminatable: tygraph.GoffSet{}}
			for g, t := range stage.Types {
				t.MarkNonEliminatable(g, ctx.nonEliminatable)
			}
			for _, sym := range stage.Symbols {
				sym.MarkNonEliminatable(ctx.nonEliminatable)
			}
			output, err := optimize(stage, ctx)
			if err != nil {
				return err
			}
			applied, err := output.apply(stage)
			if err != nil {
				return err
			}
			if applied {
				changed = true
				// restart the optimizer list when anything changed
				break
			}
		}
		if !changed {
			return nil
		}
		deduped, err := tygraph.Dedupe(stage.Types, tygraph.NewGoffBuckets(), stage.Symbols, nil)
		if err != nil {
			return fmt.Errorf("dedupe after optimization pass %d: %w", pass, err)
		}
		stage.Types = deduped
		pass++
	}
}

type optimizeContext struct {
	// nonEliminatable holds identities that must never be substituted
	// by a composite tree: PTM bases, structs with vtables, and
	// self-referential layouts.
	nonEliminatable tygraph.GoffSet
}

// changeFn rewrites one type in place.
type changeFn func(*tygraph.HType) (*tygraph.HType, error)

// optimizeOutput is what one optimizer pass wants applied: per-type
// change functions, per-type eliminations (substitute a tree for every
// other occurrence of the identity), and derived-name edges for the
// name graph.
type optimizeOutput struct {
	changes      map[tygraph.Goff][]changeFn
	eliminations map[tygraph.Goff]*tygraph.Tree[tygraph.Goff]
	derivedNames [][2]tygraph.FullQualName
}

func newOptimizeOutput() *optimizeOutput {
	return &optimizeOutput{
		changes:      map[tygraph.Goff][]changeFn{},
		eliminations: map[tygraph.Goff]*tygraph.Tree[tygraph.Goff]{},
	}
}

func (o *optimizeOutput) change(g tygraph.Goff, fn changeFn) {
	o.changes[g] = append(o.changes[g], fn)
}

// eliminate schedules g's replacement by tree. Composite replacements
// of non-eliminatable identities are silently skipped; conflicting
// replacement trees for one identity are an error.
func (o *optimizeOutput) eliminate(g tygraph.Goff, tree *tygraph.Tree[tygraph.Goff], ctx *optimizeContext) error {
	if tree.Kind != tygraph.TreeBase && ctx.nonEliminatable.Contains(g) {
		return nil
	}
	if old, ok := o.eliminations[g]; ok {
		if old.String() != tree.String() {
			return fmt.Errorf("conflicting eliminations for %s: %s and %s", g, old, tree)
		}
		return nil
	}
	o.eliminations[g] = tree
	return nil
}

// apply runs the output against the catalog; reports whether anything
// changed.
func (o *optimizeOutput) apply(stage *HStage) (bool, error) {
	log.V(1).Infof("applying optimizations: changes=%d eliminations=%d", len(o.changes), len(o.eliminations))
	changed := false
	for _, g := range tygraph.SortedGoffs(o.changes) {
		t, ok := stage.Types[g]
		if !ok {
			return false, fmt.Errorf("unlinked type %s during optimization change", g)
		}
		tmp := t
		for _, fn := range o.changes[g] {
			next, err := fn(tmp)
			if err != nil {
				return false, fmt.Errorf("change function for %s: %w", g, err)
			}
			tmp = next
		}
		if tmp.Key() != t.Key() {
			stage.Types[g] = tmp
			changed = true
		}
	}
	for _, g := range tygraph.SortedGoffs(o.eliminations) {
		repl := o.eliminations[g]
		if tygraph.TreeContainsGoff(repl, g) {
			return false, fmt.Errorf("replacement for %s recursively contains the eliminated type", g)
		}
		for other, t := range stage.Types {
			if other == g {
				continue
			}
			ok, err := t.Replace(g, repl)
			if err != nil {
				return false, fmt.Errorf("substituting %s with %s in type %s: %w", g, repl, other, err)
			}
			changed = changed || ok
		}
		for _, sym := range stage.Symbols {
			ok, err := sym.Replace(g, repl)
			if err != nil {
				return false, fmt.Errorf("substituting %s in symbol: %w", g, err)
			}
			changed = changed || ok
		}
	}
	for g := range o.eliminations {
		delete(stage.Types, g)
		changed = true
	}
	for _, edge := range o.derivedNames {
		ok, err := stage.NameGraph.AddDerived(edge[0], edge[1])
		if err != nil {
			return false, err
		}
		changed = changed || ok
	}
	return changed, nil
}

// optimizeUnionFewerThanTwoMembers handles degenerate unions: an empty
// union is a zero-sized struct, and a single-member union is its
// member, with the union's names propagated onto the surviving type
// and recorded as derived names.
func optimizeUnionFewerThanTwoMembers(stage *HStage, ctx *optimizeContext) (*optimizeOutput, error) {
	output := newOptimizeOutput()
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		t := stage.Types[g]
		if t.Kind != tygraph.HUnion {
			continue
		}
		switch len(t.Union.Members) {
		case 0:
			output.change(g, func(t *tygraph.HType) (*tygraph.HType, error) {
				if t.Kind != tygraph.HUnion {
					return nil, fmt.Errorf("expected a union, got %s", t)
				}
				// an empty union, like an empty struct, is a ZST with
				// sizeof 1
				if t.Union.ByteSize != 1 {
					return nil, fmt.Errorf("empty union has size %d, expected a ZST", t.Union.ByteSize)
				}
				return &tygraph.HType{
					Kind:    tygraph.HStruct,
					FQNames: t.FQNames,
					Struct:  tygraph.ZSTStruct(t.Union.TemplateArgs),
				}, nil
			})
		case 1:
			// a union with one member is equivalent to that member
			member := t.Union.Members[0]
			if member.Ty.Kind == tygraph.TreeBase {
				memberGoff := member.Ty.Base
				if inner, ok := stage.Types[memberGoff]; ok {
					baseNames := inner.FQNames
					if inner.Kind == tygraph.HPrim {
						baseNames = []tygraph.FullQualName{tygraph.FullQualFromName(tygraph.NewTemplatedName(tygraph.PrimName(inner.Prim)))}
					}
					for _, base := range baseNames {
						for _, derived := range t.FQNames {
							output.derivedNames = append(output.derivedNames, [2]tygraph.FullQualName{derived, base})
						}
					}
					names := tygraph.SortFullQualNames(append([]tygraph.FullQualName(nil), t.FQNames...))
					output.change(memberGoff, func(inner *tygraph.HType) (*tygraph.HType, error) {
						inner.AddFQNames(names)
						return inner, nil
					})
				}
			}
			if err := output.eliminate(g, member.Ty, ctx); err != nil {
				return nil, err
			}
		}
	}
	return output, nil
}
