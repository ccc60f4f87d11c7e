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

// Deduper is the constraint on catalog values that the dedupe operator
// rewrites and compares.
type Deduper interface {
	// MapGoff rewrites every inner identity.
	MapGoff(GoffMapFn) error
	// Key is a canonical encoding; equal keys mean equal values.
	Key() string
}

// Dedupe runs the convergence step without a merger: values that land
// on the same canonical key must be structurally equal after rewriting.
// See MergingDedupe.
func Dedupe[T Deduper](types map[Goff]T, buckets *GoffBuckets, symbols map[string]*SymbolInfo, ns *NamespaceMaps) (map[Goff]T, error) {
	return MergingDedupe(types, buckets, symbols, ns, func(a, b T) (T, error) {
		var zero T
		return zero, fmt.Errorf("values are not equal after identity rewriting; a merger is required for dedupe-time merging:\na=%v\nb=%v", a, b)
	})
}

// MergingDedupe rewrites every identity in the catalog through the
// canonical representatives in buckets, collapses values that land on
// the same canonical key (invoking merger when they are not equal),
// then merges the identities of any structurally equal values and
// repeats until a fixpoint. On exit every Goff inside symbols and ns
// is rewritten through the final partition.
func MergingDedupe[T Deduper](types map[Goff]T, buckets *GoffBuckets, symbols map[string]*SymbolInfo, ns *NamespaceMaps, merger func(a, b T) (T, error)) (map[Goff]T, error) {
	rewrite := func(g Goff) (Goff, error) { return buckets.PrimaryFallback(g), nil }
	for {
		// rewriting must come first so that the collision check below
		// sees the updated identities
		newMap := make(map[Goff]T, len(types))
		for _, g := range SortedGoffs(types) {
			t := types[g]
			k := buckets.PrimaryFallback(g)
			if err := t.MapGoff(rewrite); err != nil {
				return nil, fmt.Errorf("identity rewrite for %s (canonical %s): %w", g, k, err)
			}
			old, ok := newMap[k]
			if !ok {
				newMap[k] = t
				continue
			}
			if old.Key() == t.Key() {
				continue
			}
			merged, err := merger(old, t)
			if err != nil {
				return nil, fmt.Errorf("dedupe-time merge of %s into %s: %w", g, k, err)
			}
			newMap[k] = merged
		}
		types = newMap

		byKey := map[string][]Goff{}
		for _, g := range SortedGoffs(types) {
			k := types[g].Key()
			byKey[k] = append(byKey[k], g)
		}
		hasMerges := false
		for _, group := range byKey {
			for i := 1; i < len(group); i++ {
				if err := buckets.Merge(group[0], group[i]); err != nil {
					return nil, fmt.Errorf("merging equal values %s and %s: %w", group[0], group[i], err)
				}
				hasMerges = true
			}
		}
		if hasMerges {
			continue
		}

		for _, s := range symbols {
			if err := s.MapGoff(rewrite); err != nil {
				return nil, fmt.Errorf("symbol rewrite during dedupe: %w", err)
			}
		}
		if ns != nil {
			if err := ns.MapGoff(rewrite); err != nil {
				return nil, fmt.Errorf("namespace rewrite during dedupe: %w", err)
			}
		}
		return types, nil
	}
}

// MarkAndSweep expands marked to a reachability fixpoint over types,
// using mark to enumerate each value's references, then deletes every
// unmarked entry.
func MarkAndSweep[T any](marked GoffSet, types map[Goff]T, mark func(T, Goff, GoffSet)) {
	for {
		before := len(marked)
		for g, t := range types {
			if marked.Contains(g) {
				mark(t, g, marked)
			}
		}
		if len(marked) == before {
			break
		}
	}
	for g := range types {
		if !marked.Contains(g) {
			delete(types, g)
		}
	}
}
