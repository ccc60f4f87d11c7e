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

// Package demangle turns mangled linkage names back into C++ source
// names by driving an llvm-cxxfilt-compatible subprocess, with a
// process-wide concurrent cache that is persisted to disk.
package demangle

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	log "github.com/golang/glog"
)

// flushThreshold is the number of cache mutations after which the
// cache is written back to disk.
const flushThreshold = 5000

// Demangler demangles linkage names. It is safe for concurrent use;
// the cache is shared by all workers.
type Demangler struct {
	mu        sync.RWMutex
	cache     map[string]string
	cachePath string
	mutations atomic.Int64
	// CxxfiltPath overrides the llvm-cxxfilt binary; the CXXFILT
	// environment variable and PATH are consulted otherwise.
	CxxfiltPath string
}

// New returns a demangler whose cache is loaded from, and flushed to,
// cachePath. A missing or corrupt cache file starts empty.
func New(cachePath string) *Demangler {
	d := &Demangler{cache: map[string]string{}, cachePath: cachePath}
	content, err := os.ReadFile(cachePath)
	if err != nil {
		return d
	}
	if err := json.Unmarshal(content, &d.cache); err != nil {
		log.Warningf("failed to load demangler cache from %s: %v", cachePath, err)
		d.cache = map[string]string{}
	}
	return d
}

// Demangle returns the demangled form of symbol. Strings that are not
// Itanium or MSVC mangled names are returned unchanged without
// consulting the cache or the subprocess.
func (d *Demangler) Demangle(symbol string) (string, error) {
	if !strings.HasPrefix(symbol, "_Z") && !strings.HasPrefix(symbol, "?") {
		return symbol, nil
	}
	d.mu.RLock()
	cached, ok := d.cache[symbol]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	out, err := d.runCxxfilt(symbol)
	if err != nil {
		return "", fmt.Errorf("demangling %q: %w", symbol, err)
	}
	d.mu.Lock()
	d.cache[symbol] = out
	d.mu.Unlock()

	// a few trailing entries may be lost on exit, which is fine
	if d.mutations.Add(1) >= flushThreshold {
		d.mutations.Store(0)
		if err := d.Flush(); err != nil {
			log.Warningf("failed to flush demangler cache: %v", err)
		}
	}
	return out, nil
}

// Flush writes the cache to disk in key order.
func (d *Demangler) Flush() error {
	d.mu.RLock()
	keys := make([]string, 0, len(d.cache))
	for k := range d.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]string, len(keys))
	for _, k := range keys {
		ordered[k] = d.cache[k]
	}
	d.mu.RUnlock()
	content, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding demangler cache: %w", err)
	}
	if err := os.WriteFile(d.cachePath, content, 0o644); err != nil {
		return fmt.Errorf("writing demangler cache: %w", err)
	}
	return nil
}

func (d *Demangler) runCxxfilt(symbol string) (string, error) {
	bin := d.CxxfiltPath
	if bin == "" {
		bin = os.Getenv("CXXFILT")
	}
	if bin == "" {
		bin = "llvm-cxxfilt"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("could not find llvm-cxxfilt (install llvm or set the CXXFILT environment variable): %w", err)
	}
	out, err := exec.Command(path, symbol).Output()
	if err != nil {
		// a failed demangle is recoverable; use the symbol as-is
		return symbol, nil
	}
	return strings.TrimSpace(string(out)), nil
}
