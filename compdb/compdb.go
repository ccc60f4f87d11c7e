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

// Package compdb reads compile_commands.json compilation databases.
package compdb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/shlex"
)

// CompileCommand is one compilation database entry. Args holds the
// compiler arguments with the leading compiler token removed.
type CompileCommand struct {
	// File is the source file, usually absolute.
	File string
	// Args are the compile arguments, without the compiler itself.
	Args []string
}

// rawEntry is the JSON shape of one compile_commands.json element.
type rawEntry struct {
	File    string `json:"file"`
	Command string `json:"command"`
}

// Parse reads a compile_commands.json file into a map from source file
// to its compile command. Each command string is split as POSIX shell
// words and the compiler token is discarded.
func Parse(path string) (map[string]*CompileCommand, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading compilation database %s: %w", path, err)
	}
	var entries []rawEntry
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("parsing compilation database %s: %w", path, err)
	}
	out := make(map[string]*CompileCommand, len(entries))
	for i, e := range entries {
		cc, err := fromRaw(e)
		if err != nil {
			return nil, fmt.Errorf("compilation database %s entry %d: %w", path, i, err)
		}
		out[cc.File] = cc
	}
	return out, nil
}

func fromRaw(e rawEntry) (*CompileCommand, error) {
	words, err := shlex.Split(e.Command)
	if err != nil {
		return nil, fmt.Errorf("splitting command for %s: %w", e.File, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty command for %s", e.File)
	}
	// the first word is the compiler
	return &CompileCommand{File: e.File, Args: words[1:]}, nil
}
