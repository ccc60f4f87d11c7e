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

// Package tygen implements the type-extraction pipeline: the per-unit
// DWARF walks producing low-level catalogs, the canonicalization
// passes, the cross-unit linker and merger, the layout optimizer and
// the final high-level materialization.
package tygen

import (
	"fmt"

	"github.com/opendebug/tydb/config"
	"github.com/opendebug/tydb/tygraph"
)

// LStage is one unit's low-level catalog.
type LStage struct {
	// Offset is the unit's section offset, used to restore
	// deterministic ordering across parallel loads.
	Offset uint64
	// Name is the unit's source file name.
	Name string
	// Types is the catalog, keyed by identity.
	Types map[tygraph.Goff]*tygraph.LType
	// NS is the unit's namespace maps.
	NS *tygraph.NamespaceMaps
	// Symbols maps linkage names to symbols kept by the address
	// listing.
	Symbols map[string]*tygraph.SymbolInfo
	// Config is the extraction configuration.
	Config *config.Config
}

// MStage is a mid-level catalog; per unit after conversion, then
// progressively merged across units.
type MStage struct {
	Offset  uint64
	Name    string
	Types   map[tygraph.Goff]*tygraph.MType
	Symbols map[string]*tygraph.SymbolInfo
	Config  *config.Config
}

// Link concatenates two catalogs. Identities are globally unique by
// construction so the type maps merge disjointly; symbols link by
// linkage name, which must agree on address and parameter names.
func (s *MStage) Link(o *MStage) (*MStage, error) {
	for g, t := range o.Types {
		s.Types[g] = t
	}
	for name, sym := range o.Symbols {
		old, ok := s.Symbols[name]
		if !ok {
			s.Symbols[name] = sym
			continue
		}
		if err := old.Link(sym); err != nil {
			return nil, fmt.Errorf("linking symbol across units (%s): %w", o.Name, err)
		}
	}
	return &MStage{Types: s.Types, Symbols: s.Symbols, Config: s.Config}, nil
}

// HStage is the final high-level catalog.
type HStage struct {
	Types   map[tygraph.Goff]*tygraph.HType
	Sizes   *tygraph.SizeMap
	Symbols map[string]*tygraph.SymbolInfo
	// NameGraph records derived-of name edges produced by the layout
	// optimizer.
	NameGraph *tygraph.NameGraph
	Config    *config.Config
}
