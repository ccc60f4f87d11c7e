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
	"sort"
	"strings"

	"github.com/opendebug/tydb/tygraph"
)

// LinkMerge links two mid-level catalogs and merges the types that
// share a fully-qualified name.
func LinkMerge(a, b *MStage) (*MStage, error) {
	merged, err := a.Link(b)
	if err != nil {
		return nil, err
	}
	if err := processMerges(merged); err != nil {
		return nil, fmt.Errorf("name-based merging failed: %w", err)
	}
	return merged, nil
}

// processMerges groups same-kind types by each of their fully-qualified
// name strings, builds a merge task per candidate pair, and runs the
// dependency-ordered scheduler until every task executes.
func processMerges(stage *MStage) error {
	fqnames := map[tygraph.Goff][]tygraph.FullQualName{}
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		fqnames[g] = stage.Types[g].FullQualNames()
	}
	permuter := tygraph.NewFullQualPermuter(fqnames)

	// group by name string, per kind family
	nameToGoffs := map[string][]tygraph.Goff{}
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		t := stage.Types[g]
		var family string
		switch t.Kind {
		case tygraph.MPrim:
			continue
		case tygraph.MEnum, tygraph.MEnumDecl:
			family = "e:"
		case tygraph.MUnion, tygraph.MUnionDecl:
			family = "u:"
		case tygraph.MStruct, tygraph.MStructDecl:
			family = "s:"
		}
		names, err := permuter.PermutedNames(g)
		if err != nil {
			return fmt.Errorf("permuting names of %s: %w", g, err)
		}
		for _, name := range names {
			key := family + name
			nameToGoffs[key] = append(nameToGoffs[key], g)
		}
	}

	tasks := map[tygraph.GoffPair]*tygraph.MergeTask{}
	groupKeys := make([]string, 0, len(nameToGoffs))
	for k := range nameToGoffs {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)
	for _, key := range groupKeys {
		goffs := nameToGoffs[key]
		for i := 0; i < len(goffs); i++ {
			for j := i + 1; j < len(goffs); j++ {
				pair := tygraph.NewGoffPair(goffs[i], goffs[j])
				if _, ok := tasks[pair]; ok {
					continue
				}
				task := tygraph.NewMergeTask(pair.A, pair.B)
				t1 := stage.Types[pair.A]
				t2 := stage.Types[pair.B]
				if err := t1.AddMergeDeps(t2, task); err != nil {
					return fmt.Errorf("adding merge deps for %s and %s (shared name %q; a=%v, b=%v): %w",
						pair.A, pair.B, key[2:], fqnames[pair.A], fqnames[pair.B], err)
				}
				tasks[pair] = task
			}
		}
	}

	if err := adoptOrphanDeps(stage, fqnames, permuter, tasks); err != nil {
		return err
	}

	buckets := tygraph.NewGoffBuckets()
	if err := runTasks(tasks, stage.Types, buckets); err != nil {
		return err
	}
	if len(tasks) > 0 {
		// the remaining tasks depend on each other in cycles; sever
		// the circular dependencies so each component merges as a unit
		severCircularDeps(tasks)
		if err := runTasks(tasks, stage.Types, buckets); err != nil {
			return err
		}
	}
	if len(tasks) > 0 {
		return fmt.Errorf("not all merges completed; %d tasks remain: %v", len(tasks), pendingTaskSummary(tasks))
	}

	deduped, err := tygraph.MergingDedupe(stage.Types, buckets, stage.Symbols, nil,
		func(a, b *tygraph.MType) (*tygraph.MType, error) { return a.MergeData(b) })
	if err != nil {
		return fmt.Errorf("dedupe after merging: %w", err)
	}
	stage.Types = deduped
	return nil
}

// adoptOrphanDeps adds merge tasks for dependency pairs that no name
// grouping produced. This happens for anonymous types — for example an
// anonymous union member — whose enclosing types merge: the pair was
// logically intended, so if either side is nameless a task is created
// for it; a pair where both sides carry names is a hard error, reported
// with its dependency chain.
func adoptOrphanDeps(stage *MStage, fqnames map[tygraph.Goff][]tygraph.FullQualName, permuter *tygraph.FullQualPermuter, tasks map[tygraph.GoffPair]*tygraph.MergeTask) error {
	for {
		depmap := map[tygraph.GoffPair]map[tygraph.GoffPair]struct{}{}
		for _, task := range tasks {
			task.TrackDeps(depmap)
		}
		changed := false
		var orphans []tygraph.GoffPair
		seen := map[tygraph.GoffPair]struct{}{}
		for _, deps := range depmap {
			for dep := range deps {
				if _, ok := tasks[dep]; ok {
					continue
				}
				if _, ok := seen[dep]; ok {
					continue
				}
				seen[dep] = struct{}{}
				orphans = append(orphans, dep)
			}
		}
		sort.Slice(orphans, func(i, j int) bool { return orphans[i].Less(orphans[j]) })
		var realOrphans []tygraph.GoffPair
		for _, dep := range orphans {
			n1, err := permuter.PermutedNames(dep.A)
			if err != nil {
				return fmt.Errorf("permuting names of %s: %w", dep.A, err)
			}
			n2, err := permuter.PermutedNames(dep.B)
			if err != nil {
				return fmt.Errorf("permuting names of %s: %w", dep.B, err)
			}
			// a nameless side means a typedef or using declaration
			// exists in some units but not others
			if len(n1) == 0 || len(n2) == 0 {
				task := tygraph.NewMergeTask(dep.A, dep.B)
				t1, ok1 := stage.Types[dep.A]
				t2, ok2 := stage.Types[dep.B]
				if !ok1 || !ok2 {
					return fmt.Errorf("orphan dependency %s references types missing from the catalog", dep)
				}
				if err := t1.AddMergeDeps(t2, task); err != nil {
					return fmt.Errorf("adding merge deps for orphan pair %s: %w", dep, err)
				}
				tasks[dep] = task
				changed = true
				continue
			}
			realOrphans = append(realOrphans, dep)
		}
		if len(realOrphans) > 0 {
			var b strings.Builder
			fmt.Fprintf(&b, "orphan deps found:\n")
			for _, dep := range realOrphans {
				fmt.Fprintf(&b, "- a: %s names=%v\n", dep.A, fqnames[dep.A])
				fmt.Fprintf(&b, "  b: %s names=%v\n", dep.B, fqnames[dep.B])
				fmt.Fprintf(&b, "  dep chain: %v\n", dependentChain(depmap, dep))
			}
			return fmt.Errorf("%s%d orphan deps found", b.String(), len(realOrphans))
		}
		if !changed {
			return nil
		}
	}
}

// dependentChain walks upward through depmap collecting the tasks that
// (transitively) require the given pair, for diagnostics.
func dependentChain(depmap map[tygraph.GoffPair]map[tygraph.GoffPair]struct{}, pair tygraph.GoffPair) []tygraph.GoffPair {
	var chain []tygraph.GoffPair
	current := pair
	for range depmap {
		var found []tygraph.GoffPair
		for key, deps := range depmap {
			if _, ok := deps[current]; ok {
				found = append(found, key)
			}
		}
		if len(found) == 0 {
			break
		}
		sort.Slice(found, func(i, j int) bool { return found[i].Less(found[j]) })
		chain = append(chain, found[0])
		if len(found) > 1 {
			break
		}
		current = found[0]
	}
	return chain
}

// runTasks repeatedly executes every task whose dependencies are all
// satisfied, until no task makes progress. Executed tasks are removed.
func runTasks(tasks map[tygraph.GoffPair]*tygraph.MergeTask, types map[tygraph.Goff]*tygraph.MType, buckets *tygraph.GoffBuckets) error {
	for {
		progressed := false
		pairs := make([]tygraph.GoffPair, 0, len(tasks))
		for p := range tasks {
			pairs = append(pairs, p)
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })
		for _, p := range pairs {
			task := tasks[p]
			if !task.UpdateDeps(buckets) {
				continue
			}
			if err := task.Execute(types, buckets); err != nil {
				return err
			}
			delete(tasks, p)
			progressed = true
		}
		if !progressed {
			return nil
		}
	}
}

// severCircularDeps computes the transitive closure of pending
// pair-dependencies, finds the pairs that mutually depend on each
// other, and removes those circular dependencies so each strongly
// connected component can merge as a unit.
func severCircularDeps(tasks map[tygraph.GoffPair]*tygraph.MergeTask) {
	depmap := map[tygraph.GoffPair]map[tygraph.GoffPair]struct{}{}
	for _, task := range tasks {
		task.TrackDeps(depmap)
	}
	// transitive closure
	for {
		changed := false
		for _, deps := range depmap {
			before := len(deps)
			for dep := range deps {
				for transitive := range depmap[dep] {
					deps[transitive] = struct{}{}
				}
			}
			if len(deps) != before {
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	circular := map[tygraph.GoffPair]map[tygraph.GoffPair]struct{}{}
	for merge, deps := range depmap {
		set := map[tygraph.GoffPair]struct{}{}
		for dep := range deps {
			if inverse, ok := depmap[dep]; ok {
				if _, cyclic := inverse[merge]; cyclic {
					set[dep] = struct{}{}
				}
			}
		}
		circular[merge] = set
	}
	for _, task := range tasks {
		task.RemoveDeps(circular)
	}
}

func pendingTaskSummary(tasks map[tygraph.GoffPair]*tygraph.MergeTask) string {
	pairs := make([]tygraph.GoffPair, 0, len(tasks))
	for p := range tasks {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })
	var b strings.Builder
	for i, p := range pairs {
		if i >= 8 {
			fmt.Fprintf(&b, " ...")
			break
		}
		fmt.Fprintf(&b, " %s(deps=%v)", p, tasks[p].Deps)
	}
	return b.String()
}
