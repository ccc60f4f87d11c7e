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
	"strings"

	log "github.com/golang/glog"
	"github.com/kr/pretty"

	"github.com/opendebug/tydb/tygraph"
)

// dumpMStage writes a readable dump of the merged mid-level catalog.
func dumpMStage(stage *MStage, path string) error {
	var b strings.Builder
	counts := map[tygraph.MTypeKind]int{}
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		t := stage.Types[g]
		counts[t.Kind]++
		fmt.Fprintf(&b, "%s: %s\n", g, pretty.Sprint(t))
	}
	fmt.Fprintf(&b, "\nenums=%d unions=%d structs=%d enum_decls=%d union_decls=%d struct_decls=%d\n",
		counts[tygraph.MEnum], counts[tygraph.MUnion], counts[tygraph.MStruct],
		counts[tygraph.MEnumDecl], counts[tygraph.MUnionDecl], counts[tygraph.MStructDecl])
	log.Infof("mstage: enums=%d unions=%d structs=%d decls=%d",
		counts[tygraph.MEnum], counts[tygraph.MUnion], counts[tygraph.MStruct],
		counts[tygraph.MEnumDecl]+counts[tygraph.MUnionDecl]+counts[tygraph.MStructDecl])
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// dumpHStage writes a readable dump of the final catalog.
func dumpHStage(stage *HStage, path string) error {
	var b strings.Builder
	for _, g := range tygraph.SortedGoffs(stage.Types) {
		t := stage.Types[g]
		size, ok := t.ByteSize()
		if ok {
			fmt.Fprintf(&b, "%s: size=0x%x %s\n", g, size, pretty.Sprint(t))
		} else {
			fmt.Fprintf(&b, "%s: unsized %s\n", g, pretty.Sprint(t))
		}
	}
	fmt.Fprintf(&b, "\nsymbols=%d\n", len(stage.Symbols))
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
