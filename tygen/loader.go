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
	"debug/dwarf"
	"fmt"

	log "github.com/golang/glog"

	"github.com/opendebug/tydb/config"
	"github.com/opendebug/tydb/dwarfio"
	"github.com/opendebug/tydb/symlist"
	"github.com/opendebug/tydb/tygraph"
)

// nullptrTypeName is the only unspecified-type name accepted; it
// lowers to the abstract pointer primitive.
const nullptrTypeName = "decltype(nullptr)"

// LoadUnit walks one compilation unit producing its low-level catalog:
// one L-type per type-tagged entry, plus the global data and function
// symbols that appear in the address listing.
func LoadUnit(unit *dwarfio.Unit, cfg *config.Config, ns *tygraph.NamespaceMaps, syms *symlist.List) (*LStage, error) {
	pointerType, err := cfg.Extract.PointerType()
	if err != nil {
		return nil, err
	}
	tc := &typeLoadCtx{
		cfg:         cfg,
		pointerType: pointerType,
		ns:          ns,
		types:       map[tygraph.Goff]*tygraph.LType{},
	}
	for _, p := range tygraph.Prims {
		tc.types[tygraph.PrimGoff(p)] = tygraph.NewLPrim(p)
	}
	log.V(1).Infof("loading types for %s", unit)
	if err := tc.walk(unit.Root); err != nil {
		return nil, fmt.Errorf("loading types for %s: %w", unit, err)
	}
	log.V(1).Infof("loaded %d types from %s", len(tc.types), unit)

	sc := &symbolLoadCtx{list: syms, loaded: map[string]*tygraph.SymbolInfo{}}
	log.V(1).Infof("loading symbols for %s", unit)
	if err := sc.walk(unit.Root); err != nil {
		return nil, fmt.Errorf("loading symbols for %s: %w", unit, err)
	}
	log.V(1).Infof("loaded %d symbols from %s", len(sc.loaded), unit)

	return &LStage{
		Offset:  uint64(unit.Offset),
		Name:    unit.Name,
		Types:   tc.types,
		NS:      ns,
		Symbols: sc.loaded,
		Config:  cfg,
	}, nil
}

type typeLoadCtx struct {
	cfg         *config.Config
	pointerType tygraph.Prim
	ns          *tygraph.NamespaceMaps
	types       map[tygraph.Goff]*tygraph.LType
}

func (c *typeLoadCtx) walk(node *dwarfio.Node) error {
	if isTypeTag(node.Tag()) {
		if err := c.loadTypeAt(node); err != nil {
			return err
		}
	}
	for _, child := range node.Children {
		if err := c.walk(child); err != nil {
			return err
		}
	}
	return nil
}

func (c *typeLoadCtx) loadTypeAt(node *dwarfio.Node) error {
	off := tygraph.Goff(node.Offset())
	if _, ok := c.types[off]; ok {
		return fmt.Errorf("type entry at %s visited twice", off)
	}
	var ty *tygraph.LType
	var err error
	switch node.Tag() {
	case dwarf.TagUnspecifiedType:
		name, nerr := node.Name()
		if nerr != nil {
			return fmt.Errorf("unspecified type at %s must have a name: %w", off, nerr)
		}
		if name != nullptrTypeName {
			return fmt.Errorf("unknown unspecified type name %q at %s", name, off)
		}
		ty = tygraph.NewLPrim(c.pointerType)
	case dwarf.TagTypedef:
		ty, err = c.loadTypedef(node)
	case dwarf.TagPointerType, dwarf.TagReferenceType:
		target, ok := node.RefOpt(dwarf.AttrType)
		if !ok {
			ty = makePtrType(tygraph.PrimGoff(tygraph.PrimVoid))
		} else {
			ty = makePtrType(tygraph.Goff(target))
		}
	case dwarf.TagConstType, dwarf.TagVolatileType, dwarf.TagRestrictType:
		target, ok := node.RefOpt(dwarf.AttrType)
		if !ok {
			ty = tygraph.NewLPrim(tygraph.PrimVoid)
		} else {
			ty = tygraph.NewLAlias(tygraph.Goff(target))
		}
	case dwarf.TagArrayType:
		ty, err = c.loadArray(node)
	case dwarf.TagSubroutineType:
		types, serr := loadSubroutineTypes(node)
		if serr != nil {
			return fmt.Errorf("subroutine type at %s: %w", off, serr)
		}
		ty = tygraph.NewLTree(tygraph.NewSub(types))
	case dwarf.TagPtrToMemberType:
		ty, err = c.loadPtrToMember(node)
	case dwarf.TagBaseType:
		var p tygraph.Prim
		p, err = loadBaseType(node)
		if err == nil {
			ty = tygraph.NewLPrim(p)
		}
	case dwarf.TagEnumerationType:
		ty, err = c.loadEnum(node)
	case dwarf.TagUnionType:
		ty, err = c.loadUnion(node)
	case dwarf.TagStructType, dwarf.TagClassType:
		ty, err = c.loadStruct(node)
	default:
		return fmt.Errorf("unexpected tag %v for type at %s", node.Tag(), off)
	}
	if err != nil {
		return fmt.Errorf("type at %s: %w", off, err)
	}
	c.types[off] = ty
	return nil
}

func makePtrType(pointee tygraph.Goff) *tygraph.LType {
	return tygraph.NewLTree(tygraph.NewPtr(tygraph.NewBase(pointee)))
}

func (c *typeLoadCtx) loadTypedef(node *dwarfio.Node) (*tygraph.LType, error) {
	target, ok := node.RefOpt(dwarf.AttrType)
	if !ok {
		// typedef without a target encodes void
		return tygraph.NewLPrim(tygraph.PrimVoid), nil
	}
	name, err := qualName(node, c.ns)
	if err != nil {
		return nil, fmt.Errorf("typedef name: %w", err)
	}
	// the typedef name can itself be templated, e.g.
	// template <bool B> using bool_constant = integral_constant<bool, B>;
	abandon := false
	src, err := name.CppSource()
	if err != nil {
		abandon = true
	} else {
		for _, r := range c.cfg.Extract.AbandonTypedefs {
			if r.MatchString(src) {
				abandon = true
				break
			}
		}
	}
	if abandon {
		return tygraph.NewLAlias(tygraph.Goff(target)), nil
	}
	return tygraph.NewLTypedef(name, tygraph.Goff(target)), nil
}

func (c *typeLoadCtx) loadArray(node *dwarfio.Node) (*tygraph.LType, error) {
	elem, ok := node.RefOpt(dwarf.AttrType)
	if !ok {
		return nil, fmt.Errorf("array of void is not allowed")
	}
	count, hasCount, err := loadArraySubrangeCount(node)
	if err != nil {
		return nil, err
	}
	if !hasCount {
		// arrays without a count decay to a pointer
		return makePtrType(tygraph.Goff(elem)), nil
	}
	return tygraph.NewLTree(tygraph.NewArray(tygraph.NewBase(tygraph.Goff(elem)), count)), nil
}

func loadArraySubrangeCount(node *dwarfio.Node) (uint32, bool, error) {
	foundSubrange := false
	var count uint32
	hasCount := false
	for _, child := range node.Children {
		if child.Tag() != dwarf.TagSubrangeType {
			return 0, false, fmt.Errorf("unexpected tag %v at %#x in array type", child.Tag(), uint64(child.Offset()))
		}
		foundSubrange = true
		v, ok, err := child.UintOpt(dwarf.AttrCount)
		if err != nil {
			return 0, false, fmt.Errorf("subrange count: %w", err)
		}
		if !ok {
			hasCount = false
			continue
		}
		if v >= 0xFFFFFFFF {
			return 0, false, fmt.Errorf("array length %d is too large, this is likely wrong", v)
		}
		count = uint32(v)
		hasCount = true
	}
	if !foundSubrange {
		return 0, false, fmt.Errorf("array type has no subrange child")
	}
	return count, hasCount, nil
}

func (c *typeLoadCtx) loadPtrToMember(node *dwarfio.Node) (*tygraph.LType, error) {
	containing, err := node.Ref(dwarf.AttrContainingType)
	if err != nil {
		return nil, fmt.Errorf("containing type: %w", err)
	}
	base := tygraph.Goff(containing)
	pointee, ok := node.RefOpt(dwarf.AttrType)
	if !ok {
		// pointer to member data of void
		return tygraph.NewLTree(tygraph.NewPtmd(base, tygraph.NewBase(tygraph.PrimGoff(tygraph.PrimVoid)))), nil
	}
	pointeeNode, err := node.Unit().EntryAt(pointee)
	if err != nil {
		return nil, fmt.Errorf("pointee entry: %w", err)
	}
	if pointeeNode.Tag() == dwarf.TagSubroutineType {
		types, err := loadSubroutineTypes(pointeeNode)
		if err != nil {
			return nil, fmt.Errorf("pointee subroutine type: %w", err)
		}
		return tygraph.NewLTree(tygraph.NewPtmf(base, types)), nil
	}
	return tygraph.NewLTree(tygraph.NewPtmd(base, tygraph.NewBase(tygraph.Goff(pointee)))), nil
}

// loadSubroutineTypes reads [return, params...] from a subroutine-like
// entry. A sole void parameter encodes an empty parameter list; a void
// parameter alongside others is a parse error.
func loadSubroutineTypes(node *dwarfio.Node) ([]*tygraph.Tree[tygraph.Goff], error) {
	var retty *tygraph.Tree[tygraph.Goff]
	if ret, ok := node.RefOpt(dwarf.AttrType); ok {
		retty = tygraph.NewBase(tygraph.Goff(ret))
	} else {
		retty = tygraph.NewBase(tygraph.PrimGoff(tygraph.PrimVoid))
	}
	types := []*tygraph.Tree[tygraph.Goff]{retty}
	foundVoid := false
	for _, child := range node.Children {
		if child.Tag() != dwarf.TagFormalParameter {
			return nil, fmt.Errorf("expected only formal parameters under subroutine type, got %v at %#x", child.Tag(), uint64(child.Offset()))
		}
		if p, ok := child.RefOpt(dwarf.AttrType); ok {
			types = append(types, tygraph.NewBase(tygraph.Goff(p)))
		} else {
			foundVoid = true
		}
	}
	if foundVoid && len(types) != 1 {
		return nil, fmt.Errorf("unexpected void parameter in subroutine type")
	}
	return types, nil
}

func loadBaseType(node *dwarfio.Node) (tygraph.Prim, error) {
	enc, err := node.Int(dwarf.AttrEncoding)
	if err != nil {
		return tygraph.PrimVoid, fmt.Errorf("base type encoding: %w", err)
	}
	size, err := node.Uint(dwarf.AttrByteSize)
	if err != nil {
		return tygraph.PrimVoid, fmt.Errorf("base type size: %w", err)
	}
	type key struct {
		enc  int64
		size uint64
	}
	table := map[key]tygraph.Prim{
		{dwarfio.EncBoolean, 1}:       tygraph.PrimBool,
		{dwarfio.EncUnsigned, 1}:      tygraph.PrimU8,
		{dwarfio.EncUnsigned, 2}:      tygraph.PrimU16,
		{dwarfio.EncUnsigned, 4}:      tygraph.PrimU32,
		{dwarfio.EncUnsigned, 8}:      tygraph.PrimU64,
		{dwarfio.EncUnsigned, 16}:     tygraph.PrimU128,
		{dwarfio.EncUnsignedChar, 1}:  tygraph.PrimU8,
		{dwarfio.EncSigned, 1}:        tygraph.PrimI8,
		{dwarfio.EncSigned, 2}:        tygraph.PrimI16,
		{dwarfio.EncSigned, 4}:        tygraph.PrimI32,
		{dwarfio.EncSigned, 8}:        tygraph.PrimI64,
		{dwarfio.EncSigned, 16}:       tygraph.PrimI128,
		{dwarfio.EncSignedChar, 1}:    tygraph.PrimI8,
		{dwarfio.EncFloat, 4}:         tygraph.PrimF32,
		{dwarfio.EncFloat, 8}:         tygraph.PrimF64,
		{dwarfio.EncFloat, 16}:        tygraph.PrimF128,
		{dwarfio.EncUTF, 2}:           tygraph.PrimU16,
		{dwarfio.EncUTF, 4}:           tygraph.PrimU32,
	}
	p, ok := table[key{enc, size}]
	if !ok {
		return tygraph.PrimVoid, fmt.Errorf("unsupported base type encoding %#x with size %d", enc, size)
	}
	return p, nil
}

func (c *typeLoadCtx) loadEnum(node *dwarfio.Node) (*tygraph.LType, error) {
	off := tygraph.Goff(node.Offset())
	if node.Flag(dwarf.AttrDeclaration) {
		return c.loadDecl(node, tygraph.LEnumDecl)
	}
	name, err := untemplatedQualNameOpt(node, c.ns)
	if err != nil {
		return nil, fmt.Errorf("enum name: %w", err)
	}
	data := &tygraph.EnumUnsized{}
	if base, ok := node.RefOpt(dwarf.AttrType); ok {
		data.SizeBase = tygraph.Goff(base)
	} else {
		size, err := node.Uint(dwarf.AttrByteSize)
		if err != nil {
			return nil, fmt.Errorf("enum byte size: %w", err)
		}
		if size > 0xFFFFFFFF {
			return nil, fmt.Errorf("enum byte size %d is too large, this is unlikely to be correct", size)
		}
		data.ByteSize = uint32(size)
		data.HasSize = true
	}
	for _, child := range node.Children {
		if child.Tag() != dwarf.TagEnumerator {
			return nil, fmt.Errorf("expected only enumerators under enum %s, got %v", off, child.Tag())
		}
		ename, err := child.Name()
		if err != nil {
			return nil, fmt.Errorf("enumerator name: %w", err)
		}
		value, err := child.Int(dwarf.AttrConstValue)
		if err != nil {
			return nil, fmt.Errorf("enumerator %q value: %w", ename, err)
		}
		data.Enumerators = append(data.Enumerators, tygraph.Enumerator{Name: ename, Value: value})
	}
	return &tygraph.LType{Kind: tygraph.LEnum, Name: name, Enum: data}, nil
}

// loadDecl builds a declaration L-type; declarations retain template
// syntax in their raw name for the name parser.
func (c *typeLoadCtx) loadDecl(node *dwarfio.Node, kind tygraph.LTypeKind) (*tygraph.LType, error) {
	name, err := qualName(node, c.ns)
	if err != nil {
		return nil, fmt.Errorf("declaration name: %w", err)
	}
	off := tygraph.Goff(node.Offset())
	enclosing, ok := c.ns.Namespaces[off]
	if !ok {
		return nil, fmt.Errorf("no namespace recorded for declaration at %s", off)
	}
	return &tygraph.LType{Kind: kind, Decl: &tygraph.LDecl{Enclosing: enclosing, Name: name}}, nil
}

func (c *typeLoadCtx) loadUnion(node *dwarfio.Node) (*tygraph.LType, error) {
	off := tygraph.Goff(node.Offset())
	if node.Flag(dwarf.AttrDeclaration) {
		return c.loadDecl(node, tygraph.LUnionDecl)
	}
	name, err := untemplatedQualNameOpt(node, c.ns)
	if err != nil {
		return nil, fmt.Errorf("union name: %w", err)
	}
	size, err := node.Uint(dwarf.AttrByteSize)
	if err != nil {
		return nil, fmt.Errorf("union byte size: %w", err)
	}
	if size > 0xFFFFFFFF {
		return nil, fmt.Errorf("union byte size %d is too large, this is unlikely to be correct", size)
	}
	data := &tygraph.Union{ByteSize: uint32(size)}
	for _, child := range node.Children {
		switch child.Tag() {
		case dwarf.TagMember:
			memberName, _ := child.NameOpt()
			typeOff, ok := child.RefOpt(dwarf.AttrType)
			if !ok {
				return nil, fmt.Errorf("void-typed union member at %#x", uint64(child.Offset()))
			}
			ty := tygraph.NewBase(tygraph.Goff(typeOff))
			// duplicate-typed members merge into one slot, adopting a
			// name when the earlier sighting was anonymous
			merged := false
			for i := range data.Members {
				if data.Members[i].Ty.Kind == tygraph.TreeBase && data.Members[i].Ty.Base == tygraph.Goff(typeOff) {
					if data.Members[i].Name == "" {
						data.Members[i].Name = memberName
					}
					merged = true
					break
				}
			}
			if !merged {
				data.Members = append(data.Members, tygraph.Member{Name: memberName, Ty: ty})
			}
		case dwarf.TagTemplateTypeParameter, dwarf.TagTemplateValueParameter, dwarfio.TagGNUTemplateParameterPack:
			if err := loadTemplateParameter(child, &data.TemplateArgs); err != nil {
				return nil, fmt.Errorf("union template parameter: %w", err)
			}
		case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType, dwarf.TagEnumerationType, dwarf.TagTypedef:
			// nested types are visited by the outer walk
		case dwarf.TagSubprogram:
			_, virtual, err := child.VtableIndex()
			if err != nil {
				return nil, fmt.Errorf("union member function: %w", err)
			}
			if virtual {
				return nil, fmt.Errorf("unsupported virtual function in union %s", off)
			}
		default:
			return nil, fmt.Errorf("unexpected tag %v at %#x in union %s", child.Tag(), uint64(child.Offset()), off)
		}
	}
	return &tygraph.LType{Kind: tygraph.LUnion, Name: name, Union: data}, nil
}

func (c *typeLoadCtx) loadStruct(node *dwarfio.Node) (*tygraph.LType, error) {
	off := tygraph.Goff(node.Offset())
	if node.Flag(dwarf.AttrDeclaration) {
		return c.loadDecl(node, tygraph.LStructDecl)
	}
	name, err := untemplatedQualNameOpt(node, c.ns)
	if err != nil {
		return nil, fmt.Errorf("struct name: %w", err)
	}
	size, err := node.Uint(dwarf.AttrByteSize)
	if err != nil {
		return nil, fmt.Errorf("struct byte size: %w", err)
	}
	if size > 0xFFFFFFFF {
		return nil, fmt.Errorf("struct byte size %d is too large, this is unlikely to be correct", size)
	}
	data := &tygraph.Struct{ByteSize: uint32(size)}
	for _, child := range node.Children {
		switch child.Tag() {
		case dwarf.TagMember:
			if err := c.loadStructMember(child, data); err != nil {
				return nil, err
			}
		case dwarf.TagInheritance:
			memberOffset, err := child.Uint(dwarf.AttrDataMemberLoc)
			if err != nil {
				return nil, fmt.Errorf("base class offset at %#x: %w", uint64(child.Offset()), err)
			}
			if memberOffset >= 0xFFFFFFFF {
				return nil, fmt.Errorf("base class offset %d is too large at %#x", memberOffset, uint64(child.Offset()))
			}
			typeOff, ok := child.RefOpt(dwarf.AttrType)
			if !ok {
				return nil, fmt.Errorf("void-typed base class at %#x", uint64(child.Offset()))
			}
			// base members carry no name
			data.Members = append(data.Members, tygraph.Member{
				Offset:  uint32(memberOffset),
				Ty:      tygraph.NewBase(tygraph.Goff(typeOff)),
				Special: tygraph.SpecialBase,
			})
		case dwarf.TagSubprogram:
			index, virtual, err := child.VtableIndex()
			if err != nil {
				return nil, fmt.Errorf("member function at %#x: %w", uint64(child.Offset()), err)
			}
			if !virtual {
				continue
			}
			fname, err := child.Name()
			if err != nil {
				return nil, fmt.Errorf("virtual function name at %#x: %w", uint64(child.Offset()), err)
			}
			types, err := loadSubroutineTypes(child)
			if err != nil {
				return nil, fmt.Errorf("virtual function %q: %w", fname, err)
			}
			data.Vtable = append(data.Vtable, tygraph.VtableSlot{
				Index: index,
				Entry: tygraph.VtableEntry{Name: fname, FunctionTypes: types},
			})
		case dwarf.TagTemplateTypeParameter, dwarf.TagTemplateValueParameter, dwarfio.TagGNUTemplateParameterPack:
			if err := loadTemplateParameter(child, &data.TemplateArgs); err != nil {
				return nil, fmt.Errorf("struct template parameter: %w", err)
			}
		case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType, dwarf.TagEnumerationType, dwarf.TagTypedef:
			// nested types are visited by the outer walk
		default:
			return nil, fmt.Errorf("unexpected tag %v at %#x in struct %s", child.Tag(), uint64(child.Offset()), off)
		}
	}
	if err := normalizeStructMembers(data, off); err != nil {
		return nil, err
	}
	return &tygraph.LType{Kind: tygraph.LStruct, Name: name, Struct: data}, nil
}

func (c *typeLoadCtx) loadStructMember(child *dwarfio.Node, data *tygraph.Struct) error {
	off := uint64(child.Offset())
	if child.Flag(dwarf.AttrExternal) {
		// static member
		return nil
	}
	// the member may be an anonymous union
	memberName, hasName := child.NameOpt()
	typeOff, ok := child.RefOpt(dwarf.AttrType)
	if !ok {
		return fmt.Errorf("void-typed struct member at %#x", off)
	}
	memberOffset, err := child.Uint(dwarf.AttrDataMemberLoc)
	if err != nil {
		return fmt.Errorf("struct member offset at %#x: %w", off, err)
	}
	if memberOffset >= 0xFFFFFFFF {
		return fmt.Errorf("member offset %d is too large at %#x", memberOffset, off)
	}

	var member tygraph.Member
	if hasName && c.cfg.Extract.VfptrFieldRegex.MatchString(memberName) {
		// vfptr fields are rewritten to the pointer primitive; any
		// vptr not at offset 0 belongs to a base class subobject
		if memberOffset != 0 {
			return fmt.Errorf("vfptr field at non-zero offset, member at %#x", off)
		}
		member = tygraph.Member{
			Ty:      tygraph.NewBase(tygraph.PrimGoff(c.pointerType)),
			Special: tygraph.SpecialVfptr,
		}
	} else {
		member = tygraph.Member{
			Offset: uint32(memberOffset),
			Name:   memberName,
			Ty:     tygraph.NewBase(tygraph.Goff(typeOff)),
		}
	}

	if _, isBitfield, err := child.UintOpt(dwarf.AttrBitSize); err != nil {
		return fmt.Errorf("bitfield check at %#x: %w", off, err)
	} else if isBitfield {
		containerSize, err := child.Uint(dwarf.AttrByteSize)
		if err != nil {
			return fmt.Errorf("bitfield container size at %#x: %w", off, err)
		}
		if containerSize >= 0xFFFFFFFF {
			return fmt.Errorf("bitfield container size %d is too large at %#x", containerSize, off)
		}
		member.Special = tygraph.SpecialBitfield
		member.BitfieldSize = uint32(containerSize)
		data.Members = appendBitfieldMember(data.Members, member)
		return nil
	}
	data.Members = append(data.Members, member)
	return nil
}

// appendBitfieldMember adds a bitfield member, merging it into an
// immediately preceding bitfield at the same offset: bitfields sharing
// a container collapse into one member, the later bitfield replacing
// the earlier one with its own name and declared type.
func appendBitfieldMember(members []tygraph.Member, m tygraph.Member) []tygraph.Member {
	if n := len(members); n > 0 {
		prev := &members[n-1]
		if prev.Offset == m.Offset && prev.Special == tygraph.SpecialBitfield {
			*prev = m
			return members
		}
	}
	return append(members, m)
}

// normalizeStructMembers sorts members by offset (bases last at equal
// offsets) and resolves equal-offset collisions: a base colliding with
// another member is the empty-base optimization and is dropped; any
// other collision is an error.
func normalizeStructMembers(data *tygraph.Struct, off tygraph.Goff) error {
	tygraph.SortMembers(data.Members)
	kept := data.Members[:0]
	prevOffset := uint64(1) << 40
	for _, m := range data.Members {
		if uint64(m.Offset) == prevOffset {
			if m.IsBase() {
				// empty-base optimization; an empty base also has no
				// vtable, so dropping the subobject is safe
				continue
			}
			return fmt.Errorf("multiple members at offset 0x%x in struct %s", m.Offset, off)
		}
		prevOffset = uint64(m.Offset)
		kept = append(kept, m)
	}
	data.Members = kept
	return nil
}

// loadTemplateParameter appends the template arguments encoded by a
// template-parameter entry, recursing into GNU parameter packs.
func loadTemplateParameter(node *dwarfio.Node, out *[]tygraph.TemplateArg[tygraph.Goff]) error {
	switch node.Tag() {
	case dwarf.TagTemplateTypeParameter:
		g := tygraph.PrimGoff(tygraph.PrimVoid)
		if ty, ok := node.RefOpt(dwarf.AttrType); ok {
			g = tygraph.Goff(ty)
		}
		*out = append(*out, tygraph.TypeArg(tygraph.NewBase(g)))
	case dwarf.TagTemplateValueParameter:
		v, ok, err := node.IntOpt(dwarf.AttrConstValue)
		if err != nil {
			return fmt.Errorf("template value parameter at %#x: %w", uint64(node.Offset()), err)
		}
		if ok {
			*out = append(*out, tygraph.ConstArg[tygraph.Goff](v))
		} else {
			// no constant value means a compiler-assigned address
			*out = append(*out, tygraph.StaticConstArg[tygraph.Goff]())
		}
	case dwarfio.TagGNUTemplateParameterPack:
		for _, child := range node.Children {
			if err := loadTemplateParameter(child, out); err != nil {
				return fmt.Errorf("template parameter pack at %#x: %w", uint64(node.Offset()), err)
			}
		}
	default:
		return fmt.Errorf("unexpected tag %v for template parameter at %#x", node.Tag(), uint64(node.Offset()))
	}
	return nil
}
