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

	"github.com/opendebug/tydb/compdb"
	"github.com/opendebug/tydb/tygen/nameparse"
	"github.com/opendebug/tydb/tygraph"
)

// ToMStage runs the per-unit canonicalization passes — enum size
// resolution, typedef cleaning, tree flattening, name parsing — then
// converts the unit to its mid-level catalog: typedefs fold into alias
// names on their targets, declarations take their parsed structured
// names, and the result is garbage-collected and deduped.
func ToMStage(stage *LStage, command *compdb.CompileCommand) (*MStage, error) {
	if err := ResolveEnumSizes(stage); err != nil {
		return nil, fmt.Errorf("unit %s: enum size resolution failed: %w", stage.Name, err)
	}
	if err := CleanTypedefs(stage); err != nil {
		return nil, fmt.Errorf("unit %s: typedef cleaning failed: %w", stage.Name, err)
	}
	if err := FlattenTrees(stage); err != nil {
		return nil, fmt.Errorf("unit %s: tree flattening failed: %w", stage.Name, err)
	}

	names, err := nameparse.ParseNames(stage.Name, stage.Types, stage.NS, stage.Config, command)
	if err != nil {
		return nil, fmt.Errorf("unit %s: name parsing failed: %w", stage.Name, err)
	}

	// GC so that leftover composite trees disappear. This must come
	// after name parsing: some types are referenced only through
	// namespaces, which only surface once the raw names are parsed.
	marked := tygraph.GoffSet{}
	for _, sym := range stage.Symbols {
		sym.Mark(marked)
	}
	for _, n := range names {
		n.Mark(marked)
	}
	tygraph.MarkAndSweep(marked, stage.Types, func(t *tygraph.LType, g tygraph.Goff, m tygraph.GoffSet) {
		t.Mark(g, m)
	})
	for g, t := range stage.Types {
		if t.Kind == tygraph.LTree {
			return nil, fmt.Errorf("unit %s: composite tree %s survived garbage collection: %s", stage.Name, g, t.Tree)
		}
	}

	types := map[tygraph.Goff]*tygraph.MType{}
	typedefNames := map[tygraph.Goff][]*tygraph.TemplatedName{}
	type dupe struct{ from, to tygraph.Goff }
	var dupes []dupe

	for _, g := range tygraph.SortedGoffs(stage.Types) {
		t := stage.Types[g]
		switch t.Kind {
		case tygraph.LPrim:
			types[g] = tygraph.NewMPrim(t.Prim)
		case tygraph.LTypedef:
			// chase typedef-of-typedef chains to the nominal target
			target := t.Target
			for {
				tt, ok := stage.Types[target]
				if !ok {
					return nil, fmt.Errorf("unit %s: typedef %s has unlinked target %s", stage.Name, g, target)
				}
				if tt.Kind != tygraph.LTypedef {
					break
				}
				target = tt.Target
			}
			dupes = append(dupes, dupe{from: g, to: target})
			if name, ok := names[g]; ok {
				typedefNames[target] = append(typedefNames[target], name)
			}
			// an unresolved name means a private or local using
			// declaration; the name is simply dropped
		case tygraph.LEnum:
			data, err := t.Enum.Sized()
			if err != nil {
				return nil, fmt.Errorf("unit %s: enum %s: %w", stage.Name, g, err)
			}
			types[g] = &tygraph.MType{Kind: tygraph.MEnum, Name: t.Name, Enum: data}
		case tygraph.LUnion:
			types[g] = &tygraph.MType{Kind: tygraph.MUnion, Name: t.Name, Union: t.Union}
		case tygraph.LStruct:
			types[g] = &tygraph.MType{Kind: tygraph.MStruct, Name: t.Name, Struct: t.Struct}
		case tygraph.LEnumDecl, tygraph.LUnionDecl, tygraph.LStructDecl:
			name, ok := names[g]
			if !ok {
				return nil, fmt.Errorf("unit %s: no resolved name for declaration %s (%s)", stage.Name, g, t)
			}
			kind := tygraph.MEnumDecl
			switch t.Kind {
			case tygraph.LUnionDecl:
				kind = tygraph.MUnionDecl
			case tygraph.LStructDecl:
				kind = tygraph.MStructDecl
			}
			types[g] = &tygraph.MType{Kind: kind, Decl: &tygraph.MDecl{Name: name}}
		case tygraph.LTree:
			return nil, fmt.Errorf("unit %s: leftover composite tree %s", stage.Name, g)
		case tygraph.LAlias:
			return nil, fmt.Errorf("unit %s: leftover alias %s -> %s", stage.Name, g, t.Target)
		default:
			return nil, fmt.Errorf("unit %s: unknown L-type kind %d for %s", stage.Name, t.Kind, g)
		}
	}

	// attach the folded typedef names to their targets
	for _, target := range tygraph.SortedGoffs(typedefNames) {
		collected := tygraph.SortTemplatedNames(typedefNames[target])
		t, ok := types[target]
		if !ok {
			return nil, fmt.Errorf("unit %s: typedef target %s missing from catalog", stage.Name, target)
		}
		switch t.Kind {
		case tygraph.MPrim:
			return nil, fmt.Errorf("unit %s: typedef to primitive %s survived cleaning", stage.Name, target)
		case tygraph.MEnum, tygraph.MUnion, tygraph.MStruct:
			t.DeclNames = collected
		case tygraph.MEnumDecl, tygraph.MUnionDecl, tygraph.MStructDecl:
			t.Decl.TypedefNames = collected
		}
	}
	// typedef identities become additional keys of their targets so
	// that references through them keep resolving
	for _, d := range dupes {
		target, ok := types[d.to]
		if !ok {
			return nil, fmt.Errorf("unit %s: typedef target %s missing from catalog", stage.Name, d.to)
		}
		types[d.from] = target.Clone()
	}

	deduped, err := tygraph.Dedupe(types, tygraph.NewGoffBuckets(), stage.Symbols, nil)
	if err != nil {
		return nil, fmt.Errorf("unit %s: dedupe after conversion failed: %w", stage.Name, err)
	}

	return &MStage{
		Offset:  stage.Offset,
		Name:    stage.Name,
		Types:   deduped,
		Symbols: stage.Symbols,
		Config:  stage.Config,
	}, nil
}
