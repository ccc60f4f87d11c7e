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

// Package symlist loads the CSV symbol-address listings that decide
// which DWARF symbols are kept, and fabricates the sibling
// constructor/destructor mangled names the listings commonly omit.
package symlist

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opendebug/tydb/config"
)

// Demangler resolves mangled linkage names; satisfied by
// *demangle.Demangler.
type Demangler interface {
	Demangle(symbol string) (string, error)
}

// List maps linkage names to their address relative to the configured
// base address.
type List struct {
	addrs map[string]uint32
}

// New returns an empty list.
func New() *List {
	return &List{addrs: map[string]uint32{}}
}

// Len returns the number of listed symbols.
func (l *List) Len() int {
	return len(l.addrs)
}

// Address returns the address of symbol, if listed.
func (l *List) Address(symbol string) (uint32, bool) {
	a, ok := l.addrs[symbol]
	return a, ok
}

// LoadData merges the data-symbol listing at cfg into the list.
func (l *List) LoadData(cfg *config.SymListFile) error {
	m, err := loadCSV(cfg)
	if err != nil {
		return fmt.Errorf("loading data symbols: %w", err)
	}
	for k, v := range m {
		l.addrs[k] = v
	}
	return nil
}

// LoadFunc merges the function-symbol listing at cfg into the list.
// For each mangled constructor or destructor it fabricates the C1/C2
// (D1/D2) sibling names missing from the listing, at the same address:
// the complete and base variants are frequently identical functions
// referred to by either name across units.
func (l *List) LoadFunc(cfg *config.SymListFile, d Demangler, workers int) error {
	m, err := loadCSV(cfg)
	if err != nil {
		return fmt.Errorf("loading function symbols: %w", err)
	}

	type siblingPair struct{ a, b string }
	results := make([]siblingPair, len(m))
	symbols := make([]string, 0, len(m))
	for s := range m {
		symbols = append(symbols, s)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			a, b, err := siblingSymbols(symbol, d)
			if err != nil {
				return fmt.Errorf("computing sibling symbols for %q: %w", symbol, err)
			}
			results[i] = siblingPair{a: a, b: b}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, symbol := range symbols {
		addr := m[symbol]
		for _, sibling := range []string{results[i].a, results[i].b} {
			if sibling == "" {
				continue
			}
			if _, listed := m[sibling]; !listed {
				l.addrs[sibling] = addr
			}
		}
	}
	for k, v := range m {
		l.addrs[k] = v
	}
	return nil
}

func loadCSV(cfg *config.SymListFile) (map[string]uint32, error) {
	content, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", cfg.Path, err)
	}
	out := map[string]uint32{}
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	for i, line := range lines {
		if i < cfg.SkipRows {
			continue
		}
		row := i + 1
		parts := strings.Split(line, ",")
		if cfg.AddressColumn >= len(parts) {
			return nil, fmt.Errorf("row %d: no address column %d", row, cfg.AddressColumn)
		}
		if cfg.SymbolColumn >= len(parts) {
			return nil, fmt.Errorf("row %d: no symbol column %d", row, cfg.SymbolColumn)
		}
		addr, err := parseAddress(strings.TrimSpace(parts[cfg.AddressColumn]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing address: %w", row, err)
		}
		if addr < cfg.BaseAddress {
			return nil, fmt.Errorf("row %d: address 0x%x is below the base address 0x%x", row, addr, cfg.BaseAddress)
		}
		rel := addr - cfg.BaseAddress
		if rel > 0xFFFFFFFF {
			return nil, fmt.Errorf("row %d: relative address 0x%x is too large, this is likely wrong", row, rel)
		}
		symbol := strings.TrimSpace(parts[cfg.SymbolColumn])
		if symbol == "" {
			continue
		}
		out[symbol] = uint32(rel)
	}
	return out, nil
}

func parseAddress(s string) (uint64, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return strconv.ParseUint(rest, 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// siblingSymbols returns the two sibling mangled names of symbol if it
// is an Itanium constructor (C1/C2) or destructor (D1/D2). The
// deleting destructor D0 and allocating constructor C3 have no
// siblings. Candidate positions are validated by re-mangling each
// variant and checking the demangled form is unchanged.
func siblingSymbols(symbol string, d Demangler) (string, string, error) {
	demangled, err := d.Demangle(symbol)
	if err != nil {
		return "", "", err
	}
	if demangled == symbol {
		// not a mangled symbol
		return "", "", nil
	}
	if isDtor(demangled) {
		positions := markerPositions(symbol, 'D', "120")
		if len(positions) == 0 {
			return "", "", fmt.Errorf("no D0, D1 or D2 marker in mangled destructor %q", symbol)
		}
		pos, isD0, err := confirmPosition(symbol, demangled, positions, d, "012")
		if err != nil {
			return "", "", err
		}
		if pos < 0 {
			return "", "", fmt.Errorf("could not classify destructor variant of %q", symbol)
		}
		if isD0 {
			// the deleting destructor is a distinct function
			return "", "", nil
		}
		return withByte(symbol, pos, '1'), withByte(symbol, pos, '2'), nil
	}

	// might be a constructor or a regular function
	positions := markerPositions(symbol, 'C', "123")
	if len(positions) == 0 {
		return "", "", nil
	}
	pos, isC3, err := confirmPosition(symbol, demangled, positions, d, "312")
	if err != nil {
		return "", "", err
	}
	if pos < 0 {
		// false positive, e.g. C1 inside a regular name
		return "", "", nil
	}
	if isC3 {
		// the allocating constructor is a distinct function
		return "", "", nil
	}
	return withByte(symbol, pos, '1'), withByte(symbol, pos, '2'), nil
}

func isDtor(demangled string) bool {
	return strings.HasPrefix(demangled, "~") || strings.Contains(demangled, "::~")
}

// markerPositions returns the indices of digits following the given
// marker letter, restricted to the accepted digit set.
func markerPositions(symbol string, marker byte, digits string) []int {
	var out []int
	for i := 1; i < len(symbol); i++ {
		if symbol[i-1] == marker && strings.IndexByte(digits, symbol[i]) >= 0 {
			out = append(out, i)
		}
	}
	return out
}

// confirmPosition finds the digit position that really encodes the
// ctor/dtor variant: substituting each accepted digit there must keep
// the demangled form unchanged. The first digit in variants marks the
// "distinct" variant (D0 or C3); special reports whether the input
// symbol is that variant.
func confirmPosition(symbol, demangled string, positions []int, d Demangler, variants string) (int, bool, error) {
	for _, pos := range positions {
		ok := true
		isSpecial := false
		for vi := 0; vi < len(variants); vi++ {
			candidate := withByte(symbol, pos, variants[vi])
			dm, err := d.Demangle(candidate)
			if err != nil || dm != demangled {
				ok = false
				break
			}
			if vi == 0 && candidate == symbol {
				isSpecial = true
			}
		}
		if ok {
			return pos, isSpecial, nil
		}
	}
	return -1, false, nil
}

func withByte(s string, i int, b byte) string {
	out := []byte(s)
	out[i] = b
	return string(out)
}
