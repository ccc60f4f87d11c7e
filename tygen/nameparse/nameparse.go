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

// Package nameparse recovers structured template names from the raw
// strings DWARF stores for typedefs and declarations. For every name
// carrying template syntax it emits a synthetic translation unit that
// typedefs the raw name to a unique token, runs the clang JSON AST
// dump over it with the unit's original compile command, and
// interprets the resulting AST into structured names.
package nameparse

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opendebug/tydb/compdb"
	"github.com/opendebug/tydb/config"
	"github.com/opendebug/tydb/tygraph"
)

// tokenPrefix starts every synthetic typedef token.
const tokenPrefix = "____tydb_parse_"

// request asks for one raw name to be parsed.
type request struct {
	goff  tygraph.Goff
	token string
	// namespace qualifies the parsed base name.
	namespace tygraph.Namespace
}

// ParseNames resolves the structured names of every typedef and
// declaration in the catalog. Names without template syntax resolve
// directly; the rest go through the external C++ front-end, with
// results cached on disk under the extract output directory.
func ParseNames(unitName string, types map[tygraph.Goff]*tygraph.LType, ns *tygraph.NamespaceMaps, cfg *config.Config, command *compdb.CompileCommand) (map[tygraph.Goff]*tygraph.TemplatedName, error) {
	if !filepath.IsAbs(unitName) {
		return nil, fmt.Errorf("compilation unit name must be absolute: %s", unitName)
	}

	final := map[tygraph.Goff]*tygraph.TemplatedName{}
	var requests []request
	tokens := map[string]struct{}{}

	// force private declarations visible so member typedefs parse
	var body strings.Builder
	body.WriteString("#define private public\n#define protected public\n")
	fmt.Fprintf(&body, "#include %q\n", unitName)

	for _, g := range tygraph.SortedGoffs(types) {
		t := types[g]
		var name tygraph.NamespacedName
		var enclosing *tygraph.Namespace
		switch t.Kind {
		case tygraph.LTypedef:
			name = *t.Name
		case tygraph.LEnumDecl, tygraph.LUnionDecl, tygraph.LStructDecl:
			name = t.Decl.Name
			enclosing = &t.Decl.Enclosing
		default:
			continue
		}
		if !strings.Contains(name.Base, "<") {
			final[g] = tygraph.NewTemplatedName(name)
			continue
		}
		src, err := name.CppSource()
		if err != nil {
			return nil, fmt.Errorf("rendering name of %s: %w", g, err)
		}
		src = cleanNameSource(src)
		token := makeParseToken(src)
		if enclosing != nil {
			nsSrc, err := enclosing.CppSource()
			if err != nil {
				return nil, fmt.Errorf("rendering enclosing namespace of %s: %w", g, err)
			}
			// anonymous segments render as nothing in CppSource
			fmt.Fprintf(&body, "\nnamespace %s{", nsSrc)
			fmt.Fprintf(&body, "\ntypedef\n%s\n%s;", src, token)
			body.WriteString("\n}")
		} else {
			fmt.Fprintf(&body, "\ntypedef\n%s\n%s;", src, token)
		}
		requests = append(requests, request{goff: g, token: token, namespace: name.NS})
		tokens[token] = struct{}{}
	}

	if len(requests) == 0 {
		return final, nil
	}

	cmd, err := newParseCommand(cfg, command)
	if err != nil {
		return nil, fmt.Errorf("creating type parse command for %s: %w", unitName, err)
	}
	// the command is embedded for debugging
	source := fmt.Sprintf("// clang %s\n\n%s", strings.Join(cmd.args, " "), body.String())

	nodes, ok := cmd.tryReadCachedAST(source, tokens)
	if !ok {
		nodes, err = cmd.invoke(source, tokens)
		if err != nil {
			return nil, fmt.Errorf("invoking AST parse command for %s: %w", unitName, err)
		}
	}
	for _, req := range requests {
		node, ok := nodes[req.token]
		if !ok {
			return nil, fmt.Errorf("token %s was not resolved by the AST dump", req.token)
		}
		parsed, err := parseTypedefAST(node, req.namespace, ns, cfg)
		if err != nil {
			cmd.saveErrorNode(node)
			return nil, fmt.Errorf("parsing AST node for token %s: %w", req.token, err)
		}
		final[req.goff] = parsed
	}
	return final, nil
}

// cleanNameSource scrubs anonymous namespace markers that cannot
// appear in source.
func cleanNameSource(name string) string {
	return strings.ReplaceAll(name, "::(anonymous namespace)::", "::")
}

// makeParseToken derives a deterministic identifier-safe token from a
// raw type name. Each non-identifier byte maps to a short $-escape and
// every segment is terminated by its length to keep distinct names
// distinct.
func makeParseToken(input string) string {
	var out strings.Builder
	out.WriteString(tokenPrefix)
	for _, seg := range strings.Split(input, "::") {
		escapeSegment(seg, &out)
	}
	return out.String()
}

var segmentEscapes = map[rune]string{
	'$': "$$", '<': "$lt", '>': "$gt", '=': "$eq", '+': "$add",
	'-': "$sub", '*': "$mul", '/': "$div", '(': "$l1", ')': "$r1",
	' ': "$sp", '&': "$ap", '^': "$ca", '%': "$per", '[': "$l2",
	']': "$r2", '{': "$l3", '}': "$r3", ':': "$cl", ',': "$cm",
	'.': "$pe", '?': "$qu", ';': "$se", '|': "$or", '~': "$ti",
	'\'': "$q1", '"': "$q2", '!': "$ex", '`': "$bt", '@': "$at",
}

func escapeSegment(seg string, out *strings.Builder) {
	for _, c := range seg {
		if esc, ok := segmentEscapes[c]; ok {
			out.WriteString(esc)
		} else {
			out.WriteRune(c)
		}
	}
	fmt.Fprintf(out, "$$%d_", len(seg))
}

func sortedTokens(tokens map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for t := range tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
