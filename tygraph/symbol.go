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

// SymbolInfo is one global data or function symbol.
type SymbolInfo struct {
	// Address is the symbol's offset in the original binary, taken
	// from the external address listing.
	Address uint32
	// LinkName is the mangled linkage name.
	LinkName string
	// Ty is the symbol type; a Sub tree for functions.
	Ty *Tree[Goff]
	// ParamNames are the function parameter names; missing names are
	// filled with a0, a1, ... at construction.
	ParamNames []string
	// TemplateArgs is the function template instantiation, if any.
	TemplateArgs []TemplateArg[Goff]
}

// NewDataSymbol returns the symbol of a global variable.
func NewDataSymbol(linkName string, ty Goff) *SymbolInfo {
	return &SymbolInfo{LinkName: linkName, Ty: NewBase(ty)}
}

// NewFuncSymbol returns the symbol of a function definition. types
// holds [return, args...]. Empty parameter names are filled with
// generated a<N> names, skipping collisions with real names.
func NewFuncSymbol(linkName string, types []*Tree[Goff], paramNames []string, templateArgs []TemplateArg[Goff]) *SymbolInfo {
	names := append([]string(nil), paramNames...)
	for i, name := range names {
		if name != "" {
			continue
		}
		j := i
		candidate := fmt.Sprintf("a%d", j)
		for hasName(names, candidate) {
			j++
			candidate = fmt.Sprintf("a%d", j)
		}
		names[i] = candidate
	}
	return &SymbolInfo{
		LinkName:     linkName,
		Ty:           NewSub(types),
		ParamNames:   names,
		TemplateArgs: templateArgs,
	}
}

func hasName(names []string, s string) bool {
	for _, n := range names {
		if n == s {
			return true
		}
	}
	return false
}

// Merge combines a second sighting of the same symbol within one unit.
// Types and parameter names must match; template args fill in when one
// side lacks them.
func (s *SymbolInfo) Merge(o *SymbolInfo) error {
	if s.LinkName != o.LinkName {
		return fmt.Errorf("cannot merge symbols with different linkage names: %s != %s", s.LinkName, o.LinkName)
	}
	if !treeGoffEqual(s.Ty, o.Ty) {
		return fmt.Errorf("symbol %s: types differ between sightings", s.LinkName)
	}
	if !stringsEqual(s.ParamNames, o.ParamNames) {
		return fmt.Errorf("symbol %s: parameter names differ between sightings", s.LinkName)
	}
	switch {
	case len(o.TemplateArgs) == 0:
	case len(s.TemplateArgs) == 0:
		s.TemplateArgs = o.TemplateArgs
	default:
		if !argsGoffEqual(s.TemplateArgs, o.TemplateArgs) {
			return fmt.Errorf("symbol %s: template args differ between sightings", s.LinkName)
		}
	}
	return nil
}

// Link combines the same symbol seen in two different units. Type
// identities differ across units and are not compared; address and
// parameter names must match.
func (s *SymbolInfo) Link(o *SymbolInfo) error {
	if s.LinkName != o.LinkName {
		return fmt.Errorf("cannot link symbols with different linkage names: %s != %s", s.LinkName, o.LinkName)
	}
	if s.Address != o.Address {
		return fmt.Errorf("symbol %s: addresses differ across units: 0x%x != 0x%x", s.LinkName, s.Address, o.Address)
	}
	if !stringsEqual(s.ParamNames, o.ParamNames) {
		return fmt.Errorf("symbol %s: parameter names differ across units", s.LinkName)
	}
	return nil
}

// MapGoff rewrites every identity in the symbol.
func (s *SymbolInfo) MapGoff(f GoffMapFn) error {
	if err := MapTreeGoff(s.Ty, f); err != nil {
		return fmt.Errorf("symbol %s type: %w", s.LinkName, err)
	}
	for i := range s.TemplateArgs {
		if err := MapGoffArg(&s.TemplateArgs[i], f); err != nil {
			return fmt.Errorf("symbol %s template arg: %w", s.LinkName, err)
		}
	}
	return nil
}

// Mark adds every referenced identity to marked.
func (s *SymbolInfo) Mark(marked GoffSet) {
	s.Ty.ForEach(func(g *Goff) error {
		marked.Add(*g)
		return nil
	})
	for _, a := range s.TemplateArgs {
		MarkArg(a, marked)
	}
}

// MarkNonEliminatable adds PTM base identities of the symbol to marked.
func (s *SymbolInfo) MarkNonEliminatable(marked GoffSet) {
	s.Ty.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
	for _, a := range s.TemplateArgs {
		if a.Kind == ArgType {
			a.Type.ForEachPtmBase(func(g *Goff) { marked.Add(*g) })
		}
	}
}

// Replace substitutes every occurrence of k in the symbol's types with
// repl. Reports whether anything changed.
func (s *SymbolInfo) Replace(k Goff, repl *Tree[Goff]) (bool, error) {
	changed := false
	nt, ok, err := ReplaceTreeGoff(s.Ty, k, repl)
	if err != nil {
		return false, fmt.Errorf("symbol %s type: %w", s.LinkName, err)
	}
	if ok {
		s.Ty = nt
		changed = true
	}
	for i := range s.TemplateArgs {
		a := &s.TemplateArgs[i]
		if a.Kind != ArgType {
			continue
		}
		nt, ok, err := ReplaceTreeGoff(a.Type, k, repl)
		if err != nil {
			return false, fmt.Errorf("symbol %s template arg: %w", s.LinkName, err)
		}
		if ok {
			a.Type = nt
			changed = true
		}
	}
	return changed, nil
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func argsGoffEqual(a, b []TemplateArg[Goff]) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !argGoffEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func argGoffEqual(a, b TemplateArg[Goff]) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ArgConst:
		return a.Const == b.Const
	case ArgType:
		return treeGoffEqual(a.Type, b.Type)
	}
	return true
}
