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

// Package config loads and validates the TOML configuration of the
// extraction toolchain.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/spf13/viper"

	"github.com/opendebug/tydb/tygraph"
)

// Config is the full configuration.
type Config struct {
	Paths   Paths
	Extract Extract
}

// Paths configures project locations. Relative paths resolve against
// the directory containing the config file.
type Paths struct {
	// BuildDir is the working directory for the build command.
	BuildDir string
	// ELF is the executable to extract from.
	ELF string
	// ExtractOutput is the directory for caches and debug output.
	ExtractOutput string
	// Compdb is the path to compile_commands.json.
	Compdb string
	// SystemHeaderPaths are extra include directories passed to the
	// name parser, needed because the AST dump requires a newer clang
	// than the one in the compilation database.
	SystemHeaderPaths []string
	// FunctionsCSV and DataCSV locate the symbol-address listings.
	FunctionsCSV SymListFile
	DataCSV      SymListFile
}

// SymListFile configures one CSV symbol-address listing.
type SymListFile struct {
	Path string
	// BaseAddress is subtracted from every address in the listing.
	BaseAddress uint64
	// AddressColumn and SymbolColumn are 0-indexed.
	AddressColumn int
	SymbolColumn  int
	// SkipRows skips leading header rows.
	SkipRows int
}

// Extract configures the extraction pipeline.
type Extract struct {
	// BuildCommand is the argv run in BuildDir before extraction.
	BuildCommand []string
	// PointerWidth is the target pointer width in bits: 8|16|32|64.
	PointerWidth int
	// PtmdRepr and PtmfRepr define the representation width of
	// pointer-to-member types as (primitive, count).
	PtmdRepr Repr
	PtmfRepr Repr
	// CharRepr and WcharRepr are the primitives substituted when the
	// name parser sees char and wchar_t.
	CharRepr  tygraph.Prim
	WcharRepr tygraph.Prim
	// VfptrFieldRegex matches member names that hold the virtual
	// function table pointer.
	VfptrFieldRegex *regexp.Regexp
	// Debug toggles stage dumps.
	Debug Debug
	// AbandonTypedefs lists name patterns whose typedefs are forced
	// into plain aliases, bypassing the name parser.
	AbandonTypedefs []*regexp.Regexp
	// NameResolution ranks competing type names.
	NameResolution NameResolution
}

// Repr is a representation given as a primitive repeated count times.
type Repr struct {
	Prim  tygraph.Prim
	Count uint32
}

// Size returns the byte size of the representation.
func (r Repr) Size() (uint32, error) {
	s, ok := r.Prim.ByteSize()
	if !ok {
		return 0, fmt.Errorf("unsized representation primitive %s", r.Prim)
	}
	if r.Count == 0 {
		return 0, fmt.Errorf("zero-count representation")
	}
	return s * r.Count, nil
}

// Debug toggles debug dumps per stage.
type Debug struct {
	MStage bool
	HStage bool
}

// PointerType returns the primitive a pointer is represented as.
func (e *Extract) PointerType() (tygraph.Prim, error) {
	switch e.PointerWidth {
	case 8:
		return tygraph.PrimU8, nil
	case 16:
		return tygraph.PrimU16, nil
	case 32:
		return tygraph.PrimU32, nil
	case 64:
		return tygraph.PrimU64, nil
	}
	return tygraph.PrimVoid, fmt.Errorf("invalid pointer width %d", e.PointerWidth)
}

// PointerSize returns the pointer byte size.
func (e *Extract) PointerSize() (uint32, error) {
	p, err := e.PointerType()
	if err != nil {
		return 0, err
	}
	s, _ := p.ByteSize()
	return s, nil
}

// rawConfig is the shape viper unmarshals into before validation.
type rawConfig struct {
	Paths struct {
		BuildDir          string     `mapstructure:"build-dir"`
		ELF               string     `mapstructure:"elf"`
		ExtractOutput     string     `mapstructure:"extract-output"`
		Compdb            string     `mapstructure:"compdb"`
		SystemHeaderPaths []string   `mapstructure:"system-header-paths"`
		FunctionsCSV      rawSymList `mapstructure:"functions-csv"`
		DataCSV           rawSymList `mapstructure:"data-csv"`
	} `mapstructure:"paths"`
	Extract struct {
		BuildCommand   []string      `mapstructure:"build-command"`
		PointerWidth   int           `mapstructure:"pointer-width"`
		PtmdRepr       []interface{} `mapstructure:"ptmd-repr"`
		PtmfRepr       []interface{} `mapstructure:"ptmf-repr"`
		CharRepr       string        `mapstructure:"char-repr"`
		WcharRepr      string        `mapstructure:"wchar-repr"`
		VfptrRegex     string        `mapstructure:"vfptr-field-regex"`
		Debug          struct {
			MStage bool `mapstructure:"mstage"`
			HStage bool `mapstructure:"hstage"`
		} `mapstructure:"debug"`
		TypeParser struct {
			AbandonTypedefs []string `mapstructure:"abandon-typedefs"`
		} `mapstructure:"type-parser"`
		NameResolution struct {
			Rules []string   `mapstructure:"rules"`
			Test  [][]string `mapstructure:"test"`
		} `mapstructure:"name-resolution"`
	} `mapstructure:"extract"`
}

type rawSymList struct {
	Path          string `mapstructure:"path"`
	BaseAddress   uint64 `mapstructure:"base-address"`
	AddressColumn int    `mapstructure:"address-column"`
	SymbolColumn  int    `mapstructure:"symbol-column"`
	SkipRows      int    `mapstructure:"skip-rows"`
}

// Load reads, resolves and validates the configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}

	cfg := &Config{}
	cfg.Paths.BuildDir = resolvePath(base, raw.Paths.BuildDir)
	cfg.Paths.ELF = resolvePath(base, raw.Paths.ELF)
	cfg.Paths.ExtractOutput = resolvePath(base, raw.Paths.ExtractOutput)
	cfg.Paths.Compdb = resolvePath(base, raw.Paths.Compdb)
	for _, p := range raw.Paths.SystemHeaderPaths {
		cfg.Paths.SystemHeaderPaths = append(cfg.Paths.SystemHeaderPaths, resolvePath(base, p))
	}
	cfg.Paths.FunctionsCSV = symListFromRaw(base, raw.Paths.FunctionsCSV)
	cfg.Paths.DataCSV = symListFromRaw(base, raw.Paths.DataCSV)

	e := &cfg.Extract
	e.BuildCommand = raw.Extract.BuildCommand
	if len(e.BuildCommand) == 0 {
		return nil, fmt.Errorf("config extract.build-command must be non-empty")
	}
	e.PointerWidth = raw.Extract.PointerWidth
	switch e.PointerWidth {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("invalid config extract.pointer-width %d: must be 8, 16, 32 or 64", e.PointerWidth)
	}
	if e.PtmdRepr, err = reprFromRaw(raw.Extract.PtmdRepr); err != nil {
		return nil, fmt.Errorf("config extract.ptmd-repr: %w", err)
	}
	if e.PtmfRepr, err = reprFromRaw(raw.Extract.PtmfRepr); err != nil {
		return nil, fmt.Errorf("config extract.ptmf-repr: %w", err)
	}
	if _, err := e.PtmdRepr.Size(); err != nil {
		return nil, fmt.Errorf("config extract.ptmd-repr: %w", err)
	}
	if _, err := e.PtmfRepr.Size(); err != nil {
		return nil, fmt.Errorf("config extract.ptmf-repr: %w", err)
	}
	if e.CharRepr, err = tygraph.ParsePrim(raw.Extract.CharRepr); err != nil {
		return nil, fmt.Errorf("config extract.char-repr: %w", err)
	}
	if e.WcharRepr, err = tygraph.ParsePrim(raw.Extract.WcharRepr); err != nil {
		return nil, fmt.Errorf("config extract.wchar-repr: %w", err)
	}
	if e.VfptrFieldRegex, err = regexp.Compile(raw.Extract.VfptrRegex); err != nil {
		return nil, fmt.Errorf("config extract.vfptr-field-regex: %w", err)
	}
	e.Debug.MStage = raw.Extract.Debug.MStage
	e.Debug.HStage = raw.Extract.Debug.HStage
	for _, pat := range raw.Extract.TypeParser.AbandonTypedefs {
		r, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("config extract.type-parser.abandon-typedefs pattern %q: %v", pat, err)
		}
		e.AbandonTypedefs = append(e.AbandonTypedefs, r)
	}
	if e.NameResolution, err = nameResolutionFromRaw(raw.Extract.NameResolution.Rules, raw.Extract.NameResolution.Test); err != nil {
		return nil, err
	}
	if err := e.NameResolution.TestRules(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

func symListFromRaw(base string, raw rawSymList) SymListFile {
	return SymListFile{
		Path:          resolvePath(base, raw.Path),
		BaseAddress:   raw.BaseAddress,
		AddressColumn: raw.AddressColumn,
		SymbolColumn:  raw.SymbolColumn,
		SkipRows:      raw.SkipRows,
	}
}

func reprFromRaw(raw []interface{}) (Repr, error) {
	if len(raw) != 2 {
		return Repr{}, fmt.Errorf("expected [primitive, count]")
	}
	name, ok := raw[0].(string)
	if !ok {
		return Repr{}, fmt.Errorf("expected primitive name, got %T", raw[0])
	}
	p, err := tygraph.ParsePrim(name)
	if err != nil {
		return Repr{}, err
	}
	var count uint32
	switch v := raw[1].(type) {
	case int64:
		count = uint32(v)
	case int:
		count = uint32(v)
	case float64:
		count = uint32(v)
	default:
		return Repr{}, fmt.Errorf("expected count, got %T", raw[1])
	}
	return Repr{Prim: p, Count: count}, nil
}
