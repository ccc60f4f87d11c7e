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

// ToHStage lowers the fully merged mid-level catalog to the high-level
// catalog — every type with its resolved fully-qualified name set and
// fixed byte size — and then runs the layout optimizer to a fixpoint.
func ToHStage(stage *MStage) (*HStage, error) {
	h, err := materialize(stage)
	if err != nil {
		return nil, err
	}
	if err := OptimizeLayout(h); err != nil {
		return nil, fmt.Errorf("layout optimization failed: %w", err)
	}
	return h, nil
}

func materialize(stage *MStage) (*HStage, error) {
	pointerSize, err := stage.Config.Extract.PointerSize()
	if err != nil {
		return nil, err
	}
	ptmdSize, err := stage.Config.Extract.PtmdRepr.Size()
	if err != nil {
		return nil, err
	}
	ptmfSize, err := stage.Config.Extract.PtmfRepr.Size()
	if err != nil {
		return nil, err
	}

	types := map[tygraph.Goff]*tygraph.HType{}
	sizes := map[tygraph.Goff]uint32{}
	unsized := tygraph.GoffSet{}
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		t := stage.Types[g]
		fqnames := tygraph.SortFullQualNames(t.FullQualNames())
		var h *tygraph.HType
		switch t.Kind {
		case tygraph.MPrim:
			h = &tygraph.HType{Kind: tygraph.HPrim, Prim: t.Prim}
		case tygraph.MEnum:
			h = &tygraph.HType{Kind: tygraph.HEnum, FQNames: fqnames, Enum: t.Enum}
		case tygraph.MUnion:
			h = &tygraph.HType{Kind: tygraph.HUnion, FQNames: fqnames, Union: t.Union}
		case tygraph.MStruct:
			h = &tygraph.HType{Kind: tygraph.HStruct, FQNames: fqnames, Struct: t.Struct}
		case tygraph.MEnumDecl, tygraph.MUnionDecl, tygraph.MStructDecl:
			// a declaration never paired with a definition becomes a
			// zero-sized struct carrying the declared names
			h = &tygraph.HType{Kind: tygraph.HStruct, FQNames: fqnames, Struct: tygraph.ZSTStruct(nil)}
		default:
			return nil, fmt.Errorf("unknown M-type kind %d for %s", t.Kind, g)
		}
		if t.Kind != tygraph.MPrim && len(h.FQNames) == 0 {
			// a type without names is kept, with an empty name set,
			// only when another type or a symbol references it
			if !anonymousReachable(stage, g) {
				return nil, fmt.Errorf("type %s has no fully-qualified name after merging", g)
			}
		}
		if s, ok := h.ByteSize(); ok {
			sizes[g] = s
		} else {
			unsized.Add(g)
		}
		types[g] = h
	}
	return &HStage{
		Types:     types,
		Sizes:     tygraph.NewSizeMap(sizes, unsized, pointerSize, ptmdSize, ptmfSize),
		Symbols:   stage.Symbols,
		NameGraph: tygraph.NewNameGraph(),
		Config:    stage.Config,
	}, nil
}

// anonymousReachable reports whether an anonymous type is referenced
// by another type (its layout or its names) or by a symbol, which keeps
// it legitimate without a name of its own.
func anonymousReachable(stage *MStage, g tygraph.Goff) bool {
	for other, t := range stage.Types {
		if other == g {
			continue
		}
		marked := tygraph.GoffSet{}
		t.Mark(other, marked)
		if marked.Contains(g) {
			return true
		}
	}
	for _, sym := range stage.Symbols {
		marked := tygraph.GoffSet{}
		sym.Mark(marked)
		if marked.Contains(g) {
			return true
		}
	}
	return false
}
