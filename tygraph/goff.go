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

// Package tygraph implements the data model of the type extraction
// pipeline: type identities, the equivalence-class partition over them,
// composite type trees, namespaces and structured names, and the
// low/mid/high-level type variants together with the algorithms
// (marking, identity rewriting, deduplication, name permutation and
// merging) that operate on them.
package tygraph

import (
	"fmt"
	"sort"
)

// Goff is a global offset that uniquely identifies one type within one
// extraction run. User-defined types take the section offset of their
// DWARF entry; primitives and the abstract pointer kinds take fabricated
// values from a reserved range above any real section offset. A Goff is
// not stable across different DWARF outputs.
type Goff uint64

const (
	// goffPrimBase is the start of the reserved identity range. Any
	// Goff at or above this value denotes a primitive.
	goffPrimBase Goff = 0x1FFFF0000

	// GoffPointer is the fabricated identity of the abstract pointer.
	GoffPointer Goff = 0x2FFFF0000
	// GoffPtmd is the fabricated identity of the abstract
	// pointer-to-member-data.
	GoffPtmd Goff = 0x2FFFF0001
	// GoffPtmf is the fabricated identity of the abstract
	// pointer-to-member-function.
	GoffPtmf Goff = 0x2FFFF0002
)

// PrimGoff returns the fabricated identity for the primitive p.
func PrimGoff(p Prim) Goff {
	switch p {
	case PrimVoid:
		return goffPrimBase
	case PrimBool:
		return goffPrimBase + 0x001
	case PrimU8:
		return goffPrimBase + 0x101
	case PrimU16:
		return goffPrimBase + 0x102
	case PrimU32:
		return goffPrimBase + 0x104
	case PrimU64:
		return goffPrimBase + 0x108
	case PrimU128:
		return goffPrimBase + 0x110
	case PrimI8:
		return goffPrimBase + 0x201
	case PrimI16:
		return goffPrimBase + 0x202
	case PrimI32:
		return goffPrimBase + 0x204
	case PrimI64:
		return goffPrimBase + 0x208
	case PrimI128:
		return goffPrimBase + 0x210
	case PrimF32:
		return goffPrimBase + 0x304
	case PrimF64:
		return goffPrimBase + 0x308
	case PrimF128:
		return goffPrimBase + 0x310
	}
	panic(fmt.Sprintf("tygraph: unknown primitive %d", p))
}

// IsPrim reports whether g is a fabricated primitive identity.
func (g Goff) IsPrim() bool {
	return g >= goffPrimBase
}

// String implements fmt.Stringer, rendering the offset in hex.
func (g Goff) String() string {
	return fmt.Sprintf("0x%08x", uint64(g))
}

// GoffMapFn rewrites one identity into another, e.g. through the
// canonical representative held by a GoffBuckets.
type GoffMapFn func(Goff) (Goff, error)

// GoffSet is a set of identities.
type GoffSet map[Goff]struct{}

// Add inserts g into the set.
func (s GoffSet) Add(g Goff) {
	s[g] = struct{}{}
}

// Contains reports whether g is in the set.
func (s GoffSet) Contains(g Goff) bool {
	_, ok := s[g]
	return ok
}

// Sorted returns the members of the set in ascending order.
func (s GoffSet) Sorted() []Goff {
	out := make([]Goff, 0, len(s))
	for g := range s {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortedGoffs returns the keys of a map keyed by Goff in ascending
// order. Every iteration over type catalogs goes through this so that
// pipeline results are deterministic.
func SortedGoffs[V any](m map[Goff]V) []Goff {
	out := make([]Goff, 0, len(m))
	for g := range m {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GoffPair is an unordered pair of identities, normalized so that
// A <= B. Used as the key of pending merges and their dependencies.
type GoffPair struct {
	A, B Goff
}

// NewGoffPair returns the normalized pair of a and b.
func NewGoffPair(a, b Goff) GoffPair {
	if a <= b {
		return GoffPair{A: a, B: b}
	}
	return GoffPair{A: b, B: a}
}

// String implements fmt.Stringer.
func (p GoffPair) String() string {
	return fmt.Sprintf("(%s, %s)", p.A, p.B)
}

// Less orders pairs lexicographically, for deterministic scheduling.
func (p GoffPair) Less(q GoffPair) bool {
	if p.A != q.A {
		return p.A < q.A
	}
	return p.B < q.B
}
