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

// SizeMap resolves byte sizes of identities and type trees. Subroutine
// shapes are unsized; pointers and pointer-to-member shapes take the
// configured widths.
type SizeMap struct {
	sizes       map[Goff]uint32
	unsized     GoffSet
	pointerSize uint32
	ptmdSize    uint32
	ptmfSize    uint32
}

// NewSizeMap builds a size map. sizes maps identities to their size;
// entries in unsized are known to have no size (e.g. void).
func NewSizeMap(sizes map[Goff]uint32, unsized GoffSet, pointerSize, ptmdSize, ptmfSize uint32) *SizeMap {
	return &SizeMap{
		sizes:       sizes,
		unsized:     unsized,
		pointerSize: pointerSize,
		ptmdSize:    ptmdSize,
		ptmfSize:    ptmfSize,
	}
}

// Get returns the size of g, failing if g is unknown or unsized.
func (m *SizeMap) Get(g Goff) (uint32, error) {
	s, ok := m.GetOptional(g)
	if !ok {
		return 0, fmt.Errorf("unexpected unsized type %s", g)
	}
	return s, nil
}

// GetOptional returns the size of g; ok is false for unknown or
// unsized identities.
func (m *SizeMap) GetOptional(g Goff) (uint32, bool) {
	if m.unsized.Contains(g) {
		return 0, false
	}
	s, ok := m.sizes[g]
	return s, ok
}

// GetTree returns the size of the tree, failing when unsized.
func (m *SizeMap) GetTree(t *Tree[Goff]) (uint32, error) {
	s, ok := m.GetTreeOptional(t)
	if !ok {
		return 0, fmt.Errorf("unexpected unsized type tree %s", t)
	}
	return s, nil
}

// GetTreeOptional returns the size of the tree; ok is false when a
// component is unsized.
func (m *SizeMap) GetTreeOptional(t *Tree[Goff]) (uint32, bool) {
	switch t.Kind {
	case TreeBase:
		return m.GetOptional(t.Base)
	case TreeArray:
		elem, ok := m.GetTreeOptional(t.Elem)
		if !ok {
			return 0, false
		}
		return elem * t.Len, true
	case TreePtr:
		return m.pointerSize, true
	case TreeSub:
		return 0, false
	case TreePtmd:
		return m.ptmdSize, true
	case TreePtmf:
		return m.ptmfSize, true
	}
	return 0, false
}
