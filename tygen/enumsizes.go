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

// Sentinel sizes used by the resolver. Zero doubles as the in-progress
// marker since sizeof never yields zero; the maximum marks types with
// no size at all.
const (
	sizeResolving uint32 = 0
	sizeUnsized   uint32 = 0xFFFFFFFF
)

// ResolveEnumSizes resolves the width of every enum whose size is
// given indirectly through a base-type reference. Recursion through
// the referenced types is memoized; a cycle means an infinite-size
// type and fails.
func ResolveEnumSizes(stage *LStage) error {
	r, err := newSizeResolver(stage)
	if err != nil {
		return fmt.Errorf("creating size resolver: %w", err)
	}
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		t := stage.Types[g]
		if t.Kind != tygraph.LEnum || t.Enum.HasSize {
			continue
		}
		size, err := r.sizeOf(g, stage)
		if err != nil {
			return fmt.Errorf("resolving size of enum %s: %w", g, err)
		}
		t.Enum.ByteSize = size
		t.Enum.HasSize = true
		t.Enum.SizeBase = 0
	}
	return nil
}

type sizeResolver struct {
	sizes map[tygraph.Goff]uint32
}

func newSizeResolver(stage *LStage) (*sizeResolver, error) {
	r := &sizeResolver{sizes: map[tygraph.Goff]uint32{}}
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
	r.sizes[tygraph.GoffPointer] = pointerSize
	r.sizes[tygraph.GoffPtmd] = ptmdSize
	r.sizes[tygraph.GoffPtmf] = ptmfSize
	for _, p := range tygraph.Prims {
		if s, ok := p.ByteSize(); ok {
			r.sizes[tygraph.PrimGoff(p)] = s
		} else {
			r.sizes[tygraph.PrimGoff(p)] = sizeUnsized
		}
	}
	return r, nil
}

func (r *sizeResolver) sizeOf(g tygraph.Goff, stage *LStage) (uint32, error) {
	if s, ok := r.sizes[g]; ok {
		if s == sizeResolving {
			return 0, fmt.Errorf("infinite-size type cycle through %s", g)
		}
		return s, nil
	}
	t, ok := stage.Types[g]
	if !ok {
		return 0, fmt.Errorf("unlinked type %s", g)
	}
	var size uint32
	switch t.Kind {
	case tygraph.LPrim:
		if s, ok := t.Prim.ByteSize(); ok {
			size = s
		} else {
			size = sizeUnsized
		}
	case tygraph.LTypedef:
		r.sizes[g] = sizeResolving
		s, err := r.sizeOf(t.Target, stage)
		if err != nil {
			return 0, fmt.Errorf("typedef %s -> %s: %w", g, t.Target, err)
		}
		size = s
	case tygraph.LAlias:
		r.sizes[g] = sizeResolving
		s, err := r.sizeOf(t.Target, stage)
		if err != nil {
			return 0, fmt.Errorf("alias %s -> %s: %w", g, t.Target, err)
		}
		size = s
	case tygraph.LEnum:
		if t.Enum.HasSize {
			size = t.Enum.ByteSize
		} else {
			r.sizes[g] = sizeResolving
			s, err := r.sizeOf(t.Enum.SizeBase, stage)
			if err != nil {
				return 0, fmt.Errorf("enum base type %s -> %s: %w", g, t.Enum.SizeBase, err)
			}
			size = s
		}
		if size == 0 {
			return 0, fmt.Errorf("zero-sized enum %s", g)
		}
		if size == sizeUnsized {
			return 0, fmt.Errorf("unsized enum %s", g)
		}
	case tygraph.LUnion:
		// cross-check the recorded size against the largest member
		r.sizes[g] = sizeResolving
		size = t.Union.ByteSize
		var maxMember uint32
		for _, m := range t.Union.Members {
			s, err := r.treeSize(m.Ty, stage)
			if err != nil {
				return 0, fmt.Errorf("union member of %s: %w", g, err)
			}
			if s > maxMember {
				maxMember = s
			}
		}
		if maxMember != size {
			return 0, fmt.Errorf("union %s size mismatch: largest member is 0x%x but recorded size is 0x%x", g, maxMember, size)
		}
		if size == 0 {
			return 0, fmt.Errorf("zero-sized union %s", g)
		}
		if size == sizeUnsized {
			return 0, fmt.Errorf("unsized union %s", g)
		}
	case tygraph.LStruct:
		size = t.Struct.ByteSize
		if size == 0 {
			return 0, fmt.Errorf("zero-sized struct %s", g)
		}
		if size == sizeUnsized {
			return 0, fmt.Errorf("unsized struct %s", g)
		}
	case tygraph.LEnumDecl, tygraph.LUnionDecl, tygraph.LStructDecl:
		return 0, fmt.Errorf("encountered declaration %s while resolving a size", g)
	case tygraph.LTree:
		r.sizes[g] = sizeResolving
		s, err := r.treeSize(t.Tree, stage)
		if err != nil {
			return 0, fmt.Errorf("type tree %s: %w", g, err)
		}
		size = s
	default:
		return 0, fmt.Errorf("unknown L-type kind %d for %s", t.Kind, g)
	}
	if size == sizeResolving {
		return 0, fmt.Errorf("invalid resolved size for %s", g)
	}
	r.sizes[g] = size
	return size, nil
}

func (r *sizeResolver) treeSize(tree *tygraph.Tree[tygraph.Goff], stage *LStage) (uint32, error) {
	switch tree.Kind {
	case tygraph.TreeBase:
		return r.sizeOf(tree.Base, stage)
	case tygraph.TreeArray:
		if tree.Len == 0 {
			return 0, fmt.Errorf("zero-length array")
		}
		elem, err := r.treeSize(tree.Elem, stage)
		if err != nil {
			return 0, fmt.Errorf("array element: %w", err)
		}
		if elem == sizeUnsized {
			return 0, fmt.Errorf("array element must be sized")
		}
		return elem * tree.Len, nil
	case tygraph.TreePtr:
		return r.sizes[tygraph.GoffPointer], nil
	case tygraph.TreeSub:
		return sizeUnsized, nil
	case tygraph.TreePtmd:
		return r.sizes[tygraph.GoffPtmd], nil
	case tygraph.TreePtmf:
		return r.sizes[tygraph.GoffPtmf], nil
	}
	return 0, fmt.Errorf("unknown tree kind %d", tree.Kind)
}
