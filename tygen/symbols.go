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
	"debug/dwarf"
	"fmt"

	"github.com/opendebug/tydb/dwarfio"
	"github.com/opendebug/tydb/symlist"
	"github.com/opendebug/tydb/tygraph"
)

type symbolLoadCtx struct {
	list   *symlist.List
	loaded map[string]*tygraph.SymbolInfo
}

func (c *symbolLoadCtx) walk(node *dwarfio.Node) error {
	switch node.Tag() {
	case dwarf.TagSubprogram:
		if err := c.loadFuncSymbol(node); err != nil {
			return err
		}
	case dwarf.TagVariable:
		if err := c.loadDataSymbol(node); err != nil {
			return err
		}
	}
	for _, child := range node.Children {
		if err := c.walk(child); err != nil {
			return err
		}
	}
	return nil
}

func (c *symbolLoadCtx) loadDataSymbol(node *dwarfio.Node) error {
	off := tygraph.Goff(node.Offset())
	linkName, ok := node.StrOpt(dwarf.AttrLinkageName)
	if !ok {
		// variables without a linkage name are not global symbols
		return nil
	}
	ty, ok := node.RefOpt(dwarf.AttrType)
	if !ok {
		// fall back to the specification's type
		spec, err := node.Ref(dwarf.AttrSpecification)
		if err != nil {
			return fmt.Errorf("data symbol at %s has neither type nor specification: %w", off, err)
		}
		specNode, err := node.Unit().EntryAt(spec)
		if err != nil {
			return fmt.Errorf("data symbol at %s: %w", off, err)
		}
		ty, err = specNode.Ref(dwarf.AttrType)
		if err != nil {
			return fmt.Errorf("data symbol at %s: specification has no type: %w", off, err)
		}
	}
	sym := tygraph.NewDataSymbol(linkName, tygraph.Goff(ty))
	if err := c.mergeSymbol(linkName, sym); err != nil {
		return fmt.Errorf("data symbol at %s: %w", off, err)
	}
	return nil
}

func (c *symbolLoadCtx) loadFuncSymbol(node *dwarfio.Node) error {
	off := tygraph.Goff(node.Offset())
	if node.Flag(dwarf.AttrDeclaration) {
		return nil
	}
	linkName, err := funcLinkageName(node)
	if err != nil {
		return fmt.Errorf("function at %s: %w", off, err)
	}
	if linkName == "" {
		// functions without a linkage name are not global symbols
		return nil
	}
	// a definition must have a low pc, or be inlined
	if _, hasLowPC, err := node.UintOpt(dwarf.AttrLowpc); err != nil {
		return fmt.Errorf("function at %s low_pc: %w", off, err)
	} else if !hasLowPC {
		if !funcIsInlined(node) {
			return fmt.Errorf("function at %s is not inlined and has no low_pc", off)
		}
	}

	retty := tygraph.PrimGoff(tygraph.PrimVoid)
	if r, ok := resolveRef(node, dwarf.AttrType); ok {
		retty = tygraph.Goff(r)
	}
	types := []*tygraph.Tree[tygraph.Goff]{tygraph.NewBase(retty)}
	var paramNames []string
	var templateArgs []tygraph.TemplateArg[tygraph.Goff]
	for _, child := range node.Children {
		switch child.Tag() {
		case dwarf.TagTemplateTypeParameter, dwarf.TagTemplateValueParameter, dwarfio.TagGNUTemplateParameterPack:
			if err := loadTemplateParameter(child, &templateArgs); err != nil {
				return fmt.Errorf("function at %s template parameter: %w", off, err)
			}
		case dwarf.TagFormalParameter:
			name := ""
			if n, ok := resolveStr(child, dwarf.AttrName); ok {
				name = n
			}
			ty, ok := resolveRef(child, dwarf.AttrType)
			if !ok {
				return fmt.Errorf("function at %s: parameter at %#x has no type", off, uint64(child.Offset()))
			}
			types = append(types, tygraph.NewBase(tygraph.Goff(ty)))
			paramNames = append(paramNames, name)
		default:
			// inlined subroutines and local variables are not part of
			// the symbol's signature
		}
	}

	sym := tygraph.NewFuncSymbol(linkName, types, paramNames, templateArgs)
	if err := c.mergeSymbol(linkName, sym); err != nil {
		return fmt.Errorf("function at %s: %w", off, err)
	}
	return nil
}

func (c *symbolLoadCtx) mergeSymbol(linkName string, sym *tygraph.SymbolInfo) error {
	if old, ok := c.loaded[linkName]; ok {
		return old.Merge(sym)
	}
	addr, listed := c.list.Address(linkName)
	if !listed {
		// symbols absent from the address listing are discarded
		return nil
	}
	sym.Address = addr
	c.loaded[linkName] = sym
	return nil
}

// originChain visits the entry itself, then its abstract origin, then
// its specification, returning the first hit of get.
func originChain[T any](node *dwarfio.Node, get func(*dwarfio.Node) (T, bool)) (T, bool) {
	if v, ok := get(node); ok {
		return v, true
	}
	for _, attr := range []dwarf.Attr{dwarf.AttrAbstractOrigin, dwarf.AttrSpecification} {
		ref, ok := node.RefOpt(attr)
		if !ok {
			continue
		}
		target, err := node.Unit().EntryAt(ref)
		if err != nil {
			continue
		}
		if v, ok := originChain(target, get); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func resolveStr(node *dwarfio.Node, attr dwarf.Attr) (string, bool) {
	return originChain(node, func(n *dwarfio.Node) (string, bool) {
		return n.StrOpt(attr)
	})
}

func resolveRef(node *dwarfio.Node, attr dwarf.Attr) (dwarf.Offset, bool) {
	return originChain(node, func(n *dwarfio.Node) (dwarf.Offset, bool) {
		return n.RefOpt(attr)
	})
}

// funcLinkageName resolves a subprogram's linkage name through its
// abstract origin and specification. Empty means none found.
func funcLinkageName(node *dwarfio.Node) (string, error) {
	name, _ := resolveStr(node, dwarf.AttrLinkageName)
	return name, nil
}

// funcName resolves a subprogram's plain name through its abstract
// origin and specification. Empty means none found.
func funcName(node *dwarfio.Node) (string, error) {
	name, _ := resolveStr(node, dwarf.AttrName)
	return name, nil
}

// funcIsInlined reports whether the subprogram, its abstract origin or
// its specification carries an inline marker.
func funcIsInlined(node *dwarfio.Node) bool {
	_, ok := originChain(node, func(n *dwarfio.Node) (struct{}, bool) {
		if n.IsInlined() {
			return struct{}{}, true
		}
		return struct{}{}, false
	})
	return ok
}
