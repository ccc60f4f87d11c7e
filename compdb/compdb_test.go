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

package compdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	content := `[
  {"file": "/src/a.cpp", "command": "clang++ -O2 -I/inc -DFOO='a b' -c -o a.o /src/a.cpp"},
  {"file": "/src/b.cpp", "command": "g++ -g /src/b.cpp"}
]`
	path := filepath.Join(t.TempDir(), "compile_commands.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing database: %v", err)
	}
	got, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := map[string]*CompileCommand{
		"/src/a.cpp": {
			File: "/src/a.cpp",
			Args: []string{"-O2", "-I/inc", "-DFOO=a b", "-c", "-o", "a.o", "/src/a.cpp"},
		},
		"/src/b.cpp": {
			File: "/src/b.cpp",
			Args: []string{"-g", "/src/b.cpp"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse: (-want, +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty command", `[{"file": "/src/a.cpp", "command": ""}]`},
		{"unbalanced quote", `[{"file": "/src/a.cpp", "command": "clang 'oops"}]`},
		{"not json", `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "compile_commands.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("writing database: %v", err)
			}
			if _, err := Parse(path); err == nil {
				t.Errorf("Parse: got nil error, want error")
			}
		})
	}
}
