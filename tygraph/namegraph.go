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

// NameGraph is a directed graph over fully-qualified names with
// "derived-of" edges. When the layout optimizer eliminates a type in
// favor of an inner one, the eliminated outer names are recorded here
// as derived names of the survivor.
type NameGraph struct {
	names     []FullQualName
	indices   map[string]int
	isDerived map[int]map[int]struct{}
}

// NewNameGraph returns an empty graph.
func NewNameGraph() *NameGraph {
	return &NameGraph{
		indices:   map[string]int{},
		isDerived: map[int]map[int]struct{}{},
	}
}

// AddDerived records that derived is a strictly derived name of base.
// An existing edge in the opposite direction is an error. Reports
// whether the graph changed.
func (g *NameGraph) AddDerived(derived, base FullQualName) (bool, error) {
	if derived.Equal(base) {
		return false, nil
	}
	di := g.index(derived)
	bi := g.index(base)
	if g.contains(bi, di) {
		return false, fmt.Errorf("derived edge %s -> %s: edge in the opposite direction exists", derived, base)
	}
	if g.contains(di, bi) {
		return false, nil
	}
	set, ok := g.isDerived[di]
	if !ok {
		set = map[int]struct{}{}
		g.isDerived[di] = set
	}
	set[bi] = struct{}{}
	return true, nil
}

// Names returns every name known to the graph, in insertion order.
func (g *NameGraph) Names() []FullQualName {
	return g.names
}

func (g *NameGraph) contains(from, to int) bool {
	set, ok := g.isDerived[from]
	if !ok {
		return false
	}
	_, ok = set[to]
	return ok
}

func (g *NameGraph) index(n FullQualName) int {
	k := n.Key()
	if i, ok := g.indices[k]; ok {
		return i
	}
	i := len(g.names)
	g.names = append(g.names, n)
	g.indices[k] = i
	return i
}
