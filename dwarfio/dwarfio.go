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

// Package dwarfio exposes the DWARF debug information of an ELF
// executable as per-unit entry trees. It is the boundary between the
// extraction pipeline and the byte-level DWARF format: the pipeline
// sees units, nodes, tags and typed attribute readers, never section
// bytes.
package dwarfio

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"io"
)

// GNU extension tags not named by debug/dwarf.
const (
	// TagGNUTemplateParameterPack is DW_TAG_GNU_template_parameter_pack.
	TagGNUTemplateParameterPack dwarf.Tag = 0x4107
)

// DWARF attribute encodings for base types (DW_ATE_*).
const (
	EncBoolean      int64 = 0x02
	EncFloat        int64 = 0x04
	EncSigned       int64 = 0x05
	EncSignedChar   int64 = 0x06
	EncUnsigned     int64 = 0x07
	EncUnsignedChar int64 = 0x08
	EncUTF          int64 = 0x10
)

// File is an opened ELF executable with parsed DWARF data.
type File struct {
	elf  *elf.File
	data *dwarf.Data
}

// Open reads the ELF file at path and parses its DWARF sections.
func Open(path string) (*File, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ELF %s: %w", path, err)
	}
	data, err := f.DWARF()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading DWARF from %s: %w", path, err)
	}
	return &File{elf: f, data: data}, nil
}

// Close releases the underlying ELF file.
func (f *File) Close() error {
	return f.elf.Close()
}

// Units reads every compilation unit, building the full entry tree of
// each.
func (f *File) Units() ([]*Unit, error) {
	var units []*Unit
	r := f.data.Reader()
	for {
		entry, err := r.Next()
		if err == io.EOF || entry == nil {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading next DWARF entry: %w", err)
		}
		if entry.Tag != dwarf.TagCompileUnit {
			// skip free-standing entries between units
			continue
		}
		u, err := readUnit(r, entry)
		if err != nil {
			return nil, fmt.Errorf("reading unit at %#x: %w", entry.Offset, err)
		}
		units = append(units, u)
	}
	return units, nil
}

// Unit is one compilation unit with its full entry tree.
type Unit struct {
	// Offset is the section offset of the unit's root entry.
	Offset dwarf.Offset
	// Name is the unit's source file name.
	Name string
	// Root is the compile-unit entry.
	Root *Node
	byOffset map[dwarf.Offset]*Node
}

// String implements fmt.Stringer.
func (u *Unit) String() string {
	return fmt.Sprintf("unit %#x (%s)", uint64(u.Offset), u.Name)
}

// EntryAt returns the node at the given section offset within this
// unit.
func (u *Unit) EntryAt(off dwarf.Offset) (*Node, error) {
	n, ok := u.byOffset[off]
	if !ok {
		return nil, fmt.Errorf("no entry at offset %#x in %s", uint64(off), u)
	}
	return n, nil
}

// Node is one DWARF debugging information entry with its children.
type Node struct {
	entry *dwarf.Entry
	unit  *Unit
	// Children are the child entries in declaration order.
	Children []*Node
}

func readUnit(r *dwarf.Reader, root *dwarf.Entry) (*Unit, error) {
	name, _ := root.Val(dwarf.AttrName).(string)
	u := &Unit{
		Offset:   root.Offset,
		Name:     name,
		byOffset: map[dwarf.Offset]*Node{},
	}
	u.Root = &Node{entry: root, unit: u}
	u.byOffset[root.Offset] = u.Root
	if !root.Children {
		return u, nil
	}
	stack := []*Node{u.Root}
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("reading entry: %w", err)
		}
		if entry == nil {
			return nil, fmt.Errorf("unexpected end of DWARF data inside unit")
		}
		if entry.Tag == 0 {
			// end of the current entry's children
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return u, nil
			}
			continue
		}
		n := &Node{entry: entry, unit: u}
		u.byOffset[entry.Offset] = n
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, n)
		if entry.Children {
			stack = append(stack, n)
		}
	}
}

// Tag returns the entry's tag.
func (n *Node) Tag() dwarf.Tag {
	return n.entry.Tag
}

// Offset returns the entry's section offset, which serves as the
// type's global identity.
func (n *Node) Offset() dwarf.Offset {
	return n.entry.Offset
}

// Unit returns the unit the entry belongs to.
func (n *Node) Unit() *Unit {
	return n.unit
}

// Name returns DW_AT_name, failing when absent.
func (n *Node) Name() (string, error) {
	s, ok := n.NameOpt()
	if !ok {
		return "", fmt.Errorf("entry at %#x (%v) has no name", uint64(n.Offset()), n.Tag())
	}
	return s, nil
}

// NameOpt returns DW_AT_name if present.
func (n *Node) NameOpt() (string, bool) {
	return n.StrOpt(dwarf.AttrName)
}

// StrOpt returns a string attribute if present.
func (n *Node) StrOpt(attr dwarf.Attr) (string, bool) {
	s, ok := n.entry.Val(attr).(string)
	return s, ok
}

// Flag returns a flag attribute; absent means false.
func (n *Node) Flag(attr dwarf.Attr) bool {
	b, ok := n.entry.Val(attr).(bool)
	return ok && b
}

// Ref returns a reference attribute (a section offset), failing when
// absent.
func (n *Node) Ref(attr dwarf.Attr) (dwarf.Offset, error) {
	off, ok := n.RefOpt(attr)
	if !ok {
		return 0, fmt.Errorf("entry at %#x (%v) has no attribute %v", uint64(n.Offset()), n.Tag(), attr)
	}
	return off, nil
}

// RefOpt returns a reference attribute if present.
func (n *Node) RefOpt(attr dwarf.Attr) (dwarf.Offset, bool) {
	off, ok := n.entry.Val(attr).(dwarf.Offset)
	return off, ok
}

// Uint returns an unsigned integer attribute, failing when absent.
// Signed-encoded and expression-location forms are accepted, since
// producers vary in how they encode 64-bit values.
func (n *Node) Uint(attr dwarf.Attr) (uint64, error) {
	v, ok, err := n.UintOpt(attr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("entry at %#x (%v) has no attribute %v", uint64(n.Offset()), n.Tag(), attr)
	}
	return v, nil
}

// UintOpt returns an unsigned integer attribute if present.
func (n *Node) UintOpt(attr dwarf.Attr) (uint64, bool, error) {
	switch v := n.entry.Val(attr).(type) {
	case nil:
		return 0, false, nil
	case int64:
		return uint64(v), true, nil
	case uint64:
		return v, true, nil
	case []byte:
		x, err := evalSingleOp(v)
		if err != nil {
			return 0, false, fmt.Errorf("entry at %#x attribute %v: %w", uint64(n.Offset()), attr, err)
		}
		return uint64(x), true, nil
	default:
		return 0, false, fmt.Errorf("entry at %#x attribute %v has unsupported form %T", uint64(n.Offset()), attr, v)
	}
}

// Int returns a signed integer attribute, failing when absent.
func (n *Node) Int(attr dwarf.Attr) (int64, error) {
	v, ok, err := n.IntOpt(attr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("entry at %#x (%v) has no attribute %v", uint64(n.Offset()), n.Tag(), attr)
	}
	return v, nil
}

// IntOpt returns a signed integer attribute if present. Unsigned
// values beyond the int64 range reinterpret as two's complement.
func (n *Node) IntOpt(attr dwarf.Attr) (int64, bool, error) {
	switch v := n.entry.Val(attr).(type) {
	case nil:
		return 0, false, nil
	case int64:
		return v, true, nil
	case uint64:
		return int64(v), true, nil
	default:
		return 0, false, fmt.Errorf("entry at %#x attribute %v has unsupported form %T", uint64(n.Offset()), attr, v)
	}
}

// VtableIndex returns the entry's vtable slot if the entry is virtual.
// DW_AT_vtable_elem_location is accepted both as a plain integer and
// as a single-operation expression location.
func (n *Node) VtableIndex() (int, bool, error) {
	virt, ok, err := n.IntOpt(dwarf.AttrVirtuality)
	if err != nil {
		return 0, false, err
	}
	if !ok || virt == 0 {
		return 0, false, nil
	}
	switch v := n.entry.Val(dwarf.AttrVtableElemLoc).(type) {
	case nil:
		return 0, false, fmt.Errorf("virtual entry at %#x has no vtable element location", uint64(n.Offset()))
	case int64:
		return int(v), true, nil
	case []byte:
		x, err := evalSingleOp(v)
		if err != nil {
			return 0, false, fmt.Errorf("virtual entry at %#x: %w", uint64(n.Offset()), err)
		}
		return int(x), true, nil
	default:
		return 0, false, fmt.Errorf("virtual entry at %#x has unsupported vtable location form %T", uint64(n.Offset()), v)
	}
}

// IsInlined reports whether DW_AT_inline marks the entry as inlined.
func (n *Node) IsInlined() bool {
	v, ok, err := n.IntOpt(dwarf.AttrInline)
	return err == nil && ok && v != 0
}

// DWARF expression opcodes accepted in single-operation locations.
const (
	opPlusUconst = 0x23
	opConstu     = 0x10
	opLit0       = 0x30
	opLit31      = 0x4f
)

// evalSingleOp evaluates a one-operation DWARF expression block of the
// forms produced for member offsets and vtable indices.
func evalSingleOp(block []byte) (int64, error) {
	if len(block) == 0 {
		return 0, fmt.Errorf("empty expression location")
	}
	op := block[0]
	switch {
	case op >= opLit0 && op <= opLit31:
		if len(block) != 1 {
			return 0, fmt.Errorf("trailing bytes after DW_OP_lit in expression location")
		}
		return int64(op - opLit0), nil
	case op == opPlusUconst || op == opConstu:
		v, n := uleb128(block[1:])
		if n == 0 || n != len(block)-1 {
			return 0, fmt.Errorf("malformed ULEB128 operand in expression location")
		}
		return int64(v), nil
	}
	return 0, fmt.Errorf("unsupported expression opcode %#x", op)
}

func uleb128(b []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, c := range b {
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}
