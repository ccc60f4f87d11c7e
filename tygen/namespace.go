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

	log "github.com/golang/glog"

	"github.com/opendebug/tydb/dwarfio"
	"github.com/opendebug/tydb/tygraph"
)

// isTypeTag reports whether the tag introduces a type entry.
func isTypeTag(tag dwarf.Tag) bool {
	switch tag {
	case dwarf.TagBaseType, dwarf.TagTypedef, dwarf.TagPointerType,
		dwarf.TagReferenceType, dwarf.TagConstType, dwarf.TagVolatileType,
		dwarf.TagRestrictType, dwarf.TagArrayType, dwarf.TagSubroutineType,
		dwarf.TagPtrToMemberType, dwarf.TagEnumerationType,
		dwarf.TagUnionType, dwarf.TagStructType, dwarf.TagClassType,
		dwarf.TagUnspecifiedType:
		return true
	}
	return false
}

// LoadNamespaces walks the unit's entry tree assigning every relevant
// entry its qualifier path (namespaces, enclosing types and enclosing
// subprograms) and its namespace-only path, and builds the
// source-string index over qualifier paths.
func LoadNamespaces(unit *dwarfio.Unit) (*tygraph.NamespaceMaps, error) {
	log.V(1).Infof("loading namespaces for %s", unit)
	ctx := &nsWalk{maps: tygraph.NewNamespaceMaps()}
	if err := ctx.walk(unit.Root); err != nil {
		return nil, fmt.Errorf("loading namespaces for %s: %w", unit, err)
	}
	for _, ns := range ctx.maps.Qualifiers {
		if ns.ContainsAnonymous() {
			continue
		}
		src, err := ns.CppSource()
		if err != nil {
			continue
		}
		existing, ok := ctx.maps.BySrc[src]
		if !ok {
			ctx.maps.BySrc[src] = ns.Clone()
			continue
		}
		if !existing.SourceEqual(ns) {
			return nil, fmt.Errorf("unit %s: namespaces sharing source %q have different segments: %v and %v", unit, src, existing, ns)
		}
	}
	return ctx.maps, nil
}

type nsWalk struct {
	maps      *tygraph.NamespaceMaps
	qualifier tygraph.Namespace
	namespace tygraph.Namespace
}

func (w *nsWalk) register(off tygraph.Goff) {
	w.maps.Qualifiers[off] = w.qualifier.Clone()
	w.maps.Namespaces[off] = w.namespace.Clone()
}

func (w *nsWalk) walk(node *dwarfio.Node) error {
	off := tygraph.Goff(node.Offset())
	tag := node.Tag()
	if isTypeTag(tag) {
		// types can be defined inside a type
		w.register(off)
		seg := tygraph.NameSeg{Kind: tygraph.SegAnonymous}
		if name, ok := node.NameOpt(); ok {
			seg = tygraph.NameSeg{Kind: tygraph.SegType, Name: name, Goff: off}
		}
		w.qualifier = append(w.qualifier, seg)
		err := w.walkChildren(node)
		w.qualifier = w.qualifier[:len(w.qualifier)-1]
		return err
	}
	switch tag {
	case dwarf.TagCompileUnit:
		return w.walkChildren(node)
	case dwarf.TagVariable:
		w.register(off)
		return w.walkChildren(node)
	case dwarf.TagSubprogram:
		// types can be defined inside a function
		w.register(off)
		seg := tygraph.NameSeg{Kind: tygraph.SegSubprogram, Goff: off}
		if linkName, err := funcLinkageName(node); err != nil {
			return err
		} else if linkName != "" {
			seg.Name = linkName
			seg.IsLinkage = true
		} else if name, err := funcName(node); err != nil {
			return err
		} else if name != "" {
			seg.Name = name
		} else {
			seg.Name = "anonymous"
		}
		w.qualifier = append(w.qualifier, seg)
		err := w.walkChildren(node)
		w.qualifier = w.qualifier[:len(w.qualifier)-1]
		return err
	case dwarf.TagNamespace:
		w.register(off)
		seg := tygraph.NameSeg{Kind: tygraph.SegAnonymous}
		if name, ok := node.NameOpt(); ok {
			seg = tygraph.NameSeg{Kind: tygraph.SegName, Name: name}
		}
		w.qualifier = append(w.qualifier, seg)
		w.namespace = append(w.namespace, seg)
		err := w.walkChildren(node)
		w.qualifier = w.qualifier[:len(w.qualifier)-1]
		w.namespace = w.namespace[:len(w.namespace)-1]
		return err
	}
	return nil
}

func (w *nsWalk) walkChildren(node *dwarfio.Node) error {
	for _, child := range node.Children {
		if err := w.walk(child); err != nil {
			return err
		}
	}
	return nil
}

// qualName returns the entry's name prefixed by its qualifier path.
func qualName(node *dwarfio.Node, maps *tygraph.NamespaceMaps) (tygraph.NamespacedName, error) {
	name, err := node.Name()
	if err != nil {
		return tygraph.NamespacedName{}, err
	}
	return makeQualName(node, maps, name)
}

// untemplatedQualNameOpt returns the entry's qualified name with any
// template suffix stripped; definitions record template parameters
// structurally, so the raw suffix is redundant.
func untemplatedQualNameOpt(node *dwarfio.Node, maps *tygraph.NamespaceMaps) (*tygraph.NamespacedName, error) {
	name, ok := node.NameOpt()
	if !ok {
		return nil, nil
	}
	if i := indexTemplateStart(name); i >= 0 {
		name = name[:i]
	}
	n, err := makeQualName(node, maps, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func indexTemplateStart(name string) int {
	for i := 0; i < len(name); i++ {
		if name[i] != '<' {
			continue
		}
		// operator< and operator<< are not template markers
		if i >= 8 && name[i-8:i] == "operator" {
			continue
		}
		if i >= 9 && name[i-9:i-1] == "operator" && name[i-1] == '<' {
			continue
		}
		return i
	}
	return -1
}

func makeQualName(node *dwarfio.Node, maps *tygraph.NamespaceMaps, name string) (tygraph.NamespacedName, error) {
	off := tygraph.Goff(node.Offset())
	ns, ok := maps.Qualifiers[off]
	if !ok {
		return tygraph.NamespacedName{}, fmt.Errorf("no namespace recorded for entry %s named %q", off, name)
	}
	return tygraph.NamespacedName{NS: ns, Base: name}, nil
}
