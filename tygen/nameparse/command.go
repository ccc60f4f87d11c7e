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

package nameparse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/golang/glog"

	"github.com/opendebug/tydb/compdb"
	"github.com/opendebug/tydb/config"
)

// cacheSubdir is the directory under the extract output holding the
// synthetic sources, depfiles and AST dumps.
const cacheSubdir = "clang-type-parse"

// parseCommand is the clang invocation for one unit's synthetic
// translation unit, plus its cache file locations.
type parseCommand struct {
	cppFile string
	dFile   string
	outFile string
	args    []string
}

// newParseCommand derives the clang arguments from the unit's original
// compile command: the -c, -o and source-file arguments are dropped,
// and dependency-tracking plus JSON AST dump flags are added, along
// with the configured system header includes.
func newParseCommand(cfg *config.Config, command *compdb.CompileCommand) (*parseCommand, error) {
	h := fnv.New64a()
	h.Write([]byte(command.File))
	base := filepath.Base(command.File)
	outputDir := filepath.Join(cfg.Paths.ExtractOutput, cacheSubdir)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", outputDir, err)
	}
	cppFile := filepath.Join(outputDir, fmt.Sprintf("%s_%016x.cpp", base, h.Sum64()))
	dFile := filepath.Join(outputDir, fmt.Sprintf("%s_%016x.d", base, h.Sum64()))

	args := []string{
		"-MD", "-MT", cppFile, "-MF", dFile,
		"-Xclang", "-ast-dump=json", "-fsyntax-only", cppFile,
	}
	for _, include := range cfg.Paths.SystemHeaderPaths {
		args = append(args, "-I"+include)
	}
	skipNext := false
	for _, arg := range command.Args {
		switch {
		case skipNext:
			skipNext = false
		case arg == "-o":
			skipNext = true
		case arg == "-c" || arg == command.File:
		default:
			args = append(args, arg)
		}
	}
	return &parseCommand{
		cppFile: cppFile,
		dFile:   dFile,
		outFile: cppFile + ".json",
		args:    args,
	}, nil
}

// tryReadCachedAST reuses the cached AST when the synthetic source is
// byte-identical, the cached dump answers exactly the requested
// tokens, and no dependency file is newer than the synthetic source.
func (c *parseCommand) tryReadCachedAST(source string, tokens map[string]struct{}) (map[string]*astNode, bool) {
	oldSource, err := os.ReadFile(c.cppFile)
	if err != nil || string(oldSource) != source {
		return nil, false
	}
	oldOutput, err := os.ReadFile(c.outFile)
	if err != nil {
		return nil, false
	}
	var nodes map[string]*astNode
	if err := json.Unmarshal(oldOutput, &nodes); err != nil {
		log.Errorf("failed to parse cached AST output from %s: %v", c.outFile, err)
		return nil, false
	}
	if len(nodes) != len(tokens) {
		return nil, false
	}
	for t := range tokens {
		if _, ok := nodes[t]; !ok {
			return nil, false
		}
	}
	deps, err := parseDepfile(c.dFile, c.cppFile)
	if err != nil {
		log.Errorf("failed to parse depfile %s: %v", c.dFile, err)
		return nil, false
	}
	targetMtime, err := mtime(c.cppFile)
	if err != nil {
		return nil, false
	}
	for _, dep := range deps {
		if dep == c.cppFile {
			continue
		}
		m, err := mtime(dep)
		if err != nil || m.After(targetMtime) {
			return nil, false
		}
	}
	return nodes, true
}

// invoke writes the synthetic source, runs clang and returns the AST
// nodes of the requested typedef tokens. Only those nodes are cached;
// the full dump is enormous and nothing in it is referenced by id.
func (c *parseCommand) invoke(source string, tokens map[string]struct{}) (map[string]*astNode, error) {
	if err := os.WriteFile(c.cppFile, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("writing synthetic source: %w", err)
	}
	os.Remove(c.outFile)

	clang := os.Getenv("CLANG")
	if clang == "" {
		clang = "clang"
	}
	path, err := exec.LookPath(clang)
	if err != nil {
		return nil, fmt.Errorf("could not find clang (install llvm or set the CLANG environment variable): %w", err)
	}
	cmd := exec.Command(path, c.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Errorf("stderr from clang:\n%s", stderr.String())
		return nil, fmt.Errorf("clang failed; the type expression likely has unparsable syntax — consider excluding the name with extract.type-parser.abandon-typedefs: %w", err)
	}

	var tu astNode
	if err := json.Unmarshal(stdout.Bytes(), &tu); err != nil {
		return nil, fmt.Errorf("parsing clang AST output: %w", err)
	}
	if tu.Kind != "TranslationUnitDecl" {
		return nil, fmt.Errorf("outermost AST node must be TranslationUnitDecl, got %s", tu.Kind)
	}

	remaining := make(map[string]struct{}, len(tokens))
	for t := range tokens {
		remaining[t] = struct{}{}
	}
	output := map[string]*astNode{}
	stack := make([]*astNode, 0, len(tu.Inner))
	for i := len(tu.Inner) - 1; i >= 0; i-- {
		stack = append(stack, tu.Inner[i])
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.Kind == "NamespaceDecl" {
			for i := len(node.Inner) - 1; i >= 0; i-- {
				stack = append(stack, node.Inner[i])
			}
			continue
		}
		if node.Kind != "TypedefDecl" {
			continue
		}
		if _, ok := remaining[node.Name]; !ok {
			continue
		}
		delete(remaining, node.Name)
		output[node.Name] = node
	}
	if len(remaining) > 0 {
		return nil, fmt.Errorf("not all tokens resolved from %s: %v", c.cppFile, sortedTokens(remaining))
	}

	if content, err := json.MarshalIndent(output, "", "  "); err == nil {
		if err := os.WriteFile(c.outFile, content, 0o644); err != nil {
			log.Errorf("failed to save clang AST cache: %v", err)
		}
	}
	return output, nil
}

// saveErrorNode dumps a node that failed interpretation next to the
// synthetic source for inspection.
func (c *parseCommand) saveErrorNode(node *astNode) {
	content, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		log.Errorf("failed to serialize errored AST node: %v", err)
		return
	}
	if err := os.WriteFile(c.cppFile+".err.json", content, 0o644); err != nil {
		log.Errorf("failed to save errored AST node: %v", err)
	}
}

func mtime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// parseDepfile reads a Makefile-style depfile and returns the
// dependencies of target.
func parseDepfile(path, target string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(content), "\\\n", " ")
	for _, rule := range strings.Split(text, "\n") {
		colon := strings.Index(rule, ": ")
		if colon < 0 {
			continue
		}
		if strings.TrimSpace(rule[:colon]) != target {
			continue
		}
		var deps []string
		for _, f := range strings.Fields(rule[colon+1:]) {
			deps = append(deps, strings.ReplaceAll(f, "\\ ", " "))
		}
		return deps, nil
	}
	return nil, fmt.Errorf("target %s not found in depfile %s", target, path)
}
