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
	"regexp"

	"github.com/opendebug/tydb/config"
	"github.com/opendebug/tydb/tygraph"
)

// testConfig returns a configuration with a 64-bit target, suitable
// for the pipeline passes under test.
func testConfig() *config.Config {
	return &config.Config{
		Extract: config.Extract{
			PointerWidth:    64,
			PtmdRepr:        config.Repr{Prim: tygraph.PrimU64, Count: 1},
			PtmfRepr:        config.Repr{Prim: tygraph.PrimU64, Count: 2},
			CharRepr:        tygraph.PrimI8,
			WcharRepr:       tygraph.PrimU16,
			VfptrFieldRegex: regexp.MustCompile(`^_?vfptr`),
		},
	}
}

// testLStage wraps a type catalog into a unit stage with empty
// symbols and namespaces.
func testLStage(types map[tygraph.Goff]*tygraph.LType) *LStage {
	for _, p := range tygraph.Prims {
		if _, ok := types[tygraph.PrimGoff(p)]; !ok {
			types[tygraph.PrimGoff(p)] = tygraph.NewLPrim(p)
		}
	}
	return &LStage{
		Name:    "/src/test.cpp",
		Types:   types,
		NS:      tygraph.NewNamespaceMaps(),
		Symbols: map[string]*tygraph.SymbolInfo{},
		Config:  testConfig(),
	}
}

func namedLStruct(name string, data *tygraph.Struct) *tygraph.LType {
	n := tygraph.UnnamespacedName(name)
	return &tygraph.LType{Kind: tygraph.LStruct, Name: &n, Struct: data}
}
