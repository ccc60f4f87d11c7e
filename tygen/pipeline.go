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
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	log "github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/opendebug/tydb/compdb"
	"github.com/opendebug/tydb/config"
	"github.com/opendebug/tydb/demangle"
	"github.com/opendebug/tydb/dwarfio"
	"github.com/opendebug/tydb/symlist"
	"github.com/opendebug/tydb/tygraph"
)

// Run executes the full extraction: build the project, read the ELF's
// DWARF units, extract each unit's catalog in parallel, reduce the
// per-unit catalogs into one merged catalog, optimize layouts, and
// write the configured debug dumps. The returned HStage is the final
// catalog.
func Run(cfg *config.Config) (*HStage, error) {
	if err := runBuild(cfg); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Paths.ExtractOutput, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	commands, err := compdb.Parse(cfg.Paths.Compdb)
	if err != nil {
		return nil, err
	}

	workers := runtime.NumCPU()
	demangler := demangle.New(filepath.Join(cfg.Paths.ExtractOutput, "demangler_cache.json"))
	symbols := symlist.New()
	if err := symbols.LoadData(&cfg.Paths.DataCSV); err != nil {
		return nil, err
	}
	if err := symbols.LoadFunc(&cfg.Paths.FunctionsCSV, demangler, workers); err != nil {
		return nil, err
	}
	log.Infof("loaded %d symbols from listing", symbols.Len())
	if err := demangler.Flush(); err != nil {
		log.Warningf("failed to flush demangler cache: %v", err)
	}

	elf, err := dwarfio.Open(cfg.Paths.ELF)
	if err != nil {
		return nil, err
	}
	defer elf.Close()
	units, err := elf.Units()
	if err != nil {
		return nil, fmt.Errorf("collecting units from DWARF: %w", err)
	}
	log.Infof("found %d compilation units", len(units))

	lstages, err := loadLStages(units, cfg, symbols, workers)
	if err != nil {
		return nil, err
	}
	mstages, err := convertMStages(lstages, commands, workers)
	if err != nil {
		return nil, err
	}
	merged, err := reduceMStages(mstages, workers)
	if err != nil {
		return nil, err
	}

	// GC from symbol roots now that every unit is linked
	marked := tygraph.GoffSet{}
	for _, sym := range merged.Symbols {
		sym.Mark(marked)
	}
	tygraph.MarkAndSweep(marked, merged.Types, func(t *tygraph.MType, g tygraph.Goff, m tygraph.GoffSet) {
		t.Mark(g, m)
	})
	log.Infof("merged into %d types", len(merged.Types))

	if cfg.Extract.Debug.MStage {
		if err := dumpMStage(merged, filepath.Join(cfg.Paths.ExtractOutput, "mstage.txt")); err != nil {
			log.Warningf("failed to write mstage dump: %v", err)
		}
	}

	h, err := ToHStage(merged)
	if err != nil {
		return nil, err
	}
	if cfg.Extract.Debug.HStage {
		if err := dumpHStage(h, filepath.Join(cfg.Paths.ExtractOutput, "hstage.txt")); err != nil {
			log.Warningf("failed to write hstage dump: %v", err)
		}
	}
	return h, nil
}

func runBuild(cfg *config.Config) error {
	argv := cfg.Extract.BuildCommand
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.Paths.BuildDir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	log.Infof("building project: %v", argv)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build command failed: %w", err)
	}
	return nil
}

func loadLStages(units []*dwarfio.Unit, cfg *config.Config, symbols *symlist.List, workers int) ([]*LStage, error) {
	out := make([]*LStage, len(units))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, unit := range units {
		i, unit := i, unit
		g.Go(func() error {
			ns, err := LoadNamespaces(unit)
			if err != nil {
				return err
			}
			stage, err := LoadUnit(unit, cfg, ns, symbols)
			if err != nil {
				return err
			}
			out[i] = stage
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := 0
	for _, s := range out {
		total += len(s.Types)
	}
	log.Infof("loaded %d types from %d units", total, len(out))
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

func convertMStages(lstages []*LStage, commands map[string]*compdb.CompileCommand, workers int) ([]*MStage, error) {
	out := make([]*MStage, len(lstages))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, stage := range lstages {
		i, stage := i, stage
		g.Go(func() error {
			command, ok := commands[stage.Name]
			if !ok {
				return fmt.Errorf("no compile command for unit %s", stage.Name)
			}
			m, err := ToMStage(stage, command)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total := 0
	for _, s := range out {
		total += len(s.Types)
	}
	log.Infof("reduced into %d types across %d units", total, len(out))
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

// reduceMStages merges the per-unit catalogs pairwise in a tree
// reduction, each round merging adjacent pairs in parallel.
func reduceMStages(stages []*MStage, workers int) (*MStage, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("no compilation units to merge")
	}
	for len(stages) > 1 {
		next := make([]*MStage, (len(stages)+1)/2)
		var g errgroup.Group
		g.SetLimit(workers)
		for i := 0; i+1 < len(stages); i += 2 {
			i := i
			a, b := stages[i], stages[i+1]
			g.Go(func() error {
				merged, err := LinkMerge(a, b)
				if err != nil {
					return fmt.Errorf("merging catalogs: %w", err)
				}
				next[i/2] = merged
				return nil
			})
		}
		if len(stages)%2 == 1 {
			next[len(next)-1] = stages[len(stages)-1]
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		stages = next
	}
	return stages[0], nil
}
