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
	"fmt"
	"strconv"
	"strings"

	"github.com/opendebug/tydb/config"
	"github.com/opendebug/tydb/tygraph"
)

// astNode is the subset of the clang JSON AST shape the interpreter
// reads.
type astNode struct {
	Kind         string     `json:"kind"`
	Name         string     `json:"name,omitempty"`
	Qualifier    string     `json:"qualifier,omitempty"`
	TemplateName string     `json:"templateName,omitempty"`
	Value        string     `json:"value,omitempty"`
	Type         *astType   `json:"type,omitempty"`
	Inner        []*astNode `json:"inner,omitempty"`
}

type astType struct {
	QualType string `json:"qualType"`
}

// parseTypedefAST interprets the TypedefDecl produced for one
// synthetic token: TypedefDecl > ElaboratedType >
// TemplateSpecializationType, whose template arguments recurse.
func parseTypedefAST(node *astNode, namespace tygraph.Namespace, ns *tygraph.NamespaceMaps, cfg *config.Config) (*tygraph.TemplatedName, error) {
	if len(node.Inner) != 1 {
		return nil, fmt.Errorf("TypedefDecl node must have exactly one inner node")
	}
	node = node.Inner[0]
	if node.Kind != "ElaboratedType" {
		return nil, fmt.Errorf("TypedefDecl must contain an ElaboratedType, got %s", node.Kind)
	}
	qualifier := node.Qualifier
	if len(node.Inner) != 1 {
		return nil, fmt.Errorf("ElaboratedType node must have exactly one inner node")
	}
	node = node.Inner[0]
	if node.Kind != "TemplateSpecializationType" {
		return nil, fmt.Errorf("expecting TemplateSpecializationType, got %s", node.Kind)
	}
	baseName, ok := strings.CutPrefix(node.TemplateName, qualifier)
	if !ok {
		return nil, fmt.Errorf("template name %q does not start with qualifier %q", node.TemplateName, qualifier)
	}
	args, err := parseTemplateSpecArgs(node, ns, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing outermost template arguments: %w", err)
	}
	return &tygraph.TemplatedName{
		Base:      tygraph.NamespacedName{NS: namespace, Base: baseName},
		Templates: args,
	}, nil
}

func parseTemplateSpecArgs(node *astNode, ns *tygraph.NamespaceMaps, cfg *config.Config) ([]tygraph.TemplateArg[*tygraph.TemplatedName], error) {
	var args []tygraph.TemplateArg[*tygraph.TemplatedName]
	for _, n := range node.Inner {
		if n.Kind != "TemplateArgument" {
			continue
		}
		if len(n.Inner) != 1 {
			return nil, fmt.Errorf("TemplateArgument node must have exactly one inner node")
		}
		a, err := parseTemplateArg(n.Inner[0], ns, cfg, "", "")
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

// parseTemplateArg interprets one template argument node, accumulating
// the qualifier prefix through ElaboratedType wrappers.
func parseTemplateArg(node *astNode, ns *tygraph.NamespaceMaps, cfg *config.Config, qualifier, elaboratedQualType string) (tygraph.TemplateArg[*tygraph.TemplatedName], error) {
	var zero tygraph.TemplateArg[*tygraph.TemplatedName]
	switch node.Kind {
	case "ConstantExpr":
		switch node.Value {
		case "true":
			return tygraph.ConstArg[*tygraph.TemplatedName](1), nil
		case "false":
			return tygraph.ConstArg[*tygraph.TemplatedName](0), nil
		}
		v, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return zero, fmt.Errorf("parsing ConstantExpr value %q: %w", node.Value, err)
		}
		return tygraph.ConstArg[*tygraph.TemplatedName](v), nil
	case "BuiltinType":
		p, err := builtinPrim(node.Type.QualType, cfg)
		if err != nil {
			return zero, err
		}
		return typeArgOf(tygraph.NewTemplatedName(tygraph.PrimName(p))), nil
	case "ElaboratedType":
		if len(node.Inner) != 1 {
			return zero, fmt.Errorf("ElaboratedType node must have exactly one inner node")
		}
		qualType := ""
		if node.Type != nil {
			qualType = node.Type.QualType
		}
		return parseTemplateArg(node.Inner[0], ns, cfg, qualifier+node.Qualifier, qualType)
	case "TemplateSpecializationType":
		baseName, ok := strings.CutPrefix(node.TemplateName, qualifier)
		if !ok {
			return zero, fmt.Errorf("template name %q does not start with qualifier %q", node.TemplateName, qualifier)
		}
		if strings.Contains(baseName, "<") {
			return zero, fmt.Errorf("template base name %q must not contain templates", baseName)
		}
		if strings.Contains(baseName, ":") {
			return zero, fmt.Errorf("template base name %q must not contain namespaces", baseName)
		}
		args, err := parseTemplateSpecArgs(node, ns, cfg)
		if err != nil {
			return zero, fmt.Errorf("parsing nested templates of %s: %w", baseName, err)
		}
		name, err := toNamespacedName(ns, node.TemplateName)
		if err != nil {
			return zero, fmt.Errorf("resolving template name: %w", err)
		}
		return typeArgOf(&tygraph.TemplatedName{Base: name, Templates: args}), nil
	case "RecordType", "EnumType":
		if len(node.Inner) != 0 {
			return zero, fmt.Errorf("%s node must have no inner nodes", node.Kind)
		}
		name, err := toNamespacedNameWithFallback(ns, node.Type.QualType, elaboratedQualType)
		if err != nil {
			return zero, fmt.Errorf("resolving %s name: %w", node.Kind, err)
		}
		return typeArgOf(tygraph.NewTemplatedName(name)), nil
	case "TypedefType":
		name, err := toNamespacedName(ns, node.Type.QualType)
		if err != nil {
			return zero, fmt.Errorf("resolving typedef name: %w", err)
		}
		return typeArgOf(tygraph.NewTemplatedName(name)), nil
	case "PointerType", "LValueReferenceType", "RValueReferenceType":
		if len(node.Inner) != 1 {
			return zero, fmt.Errorf("%s node must have exactly one inner node", node.Kind)
		}
		pointee, err := parseTemplateArg(node.Inner[0], ns, cfg, qualifier, "")
		if err != nil {
			return zero, fmt.Errorf("parsing pointee type: %w", err)
		}
		if pointee.Kind != tygraph.ArgType {
			return zero, fmt.Errorf("cannot form a pointer or reference to a constant")
		}
		return tygraph.TypeArg(tygraph.NewPtr(pointee.Type)), nil
	case "QualType":
		// const/volatile/restrict qualifiers could in principle pick
		// different specializations, but are treated as the same type
		if len(node.Inner) != 1 {
			return zero, fmt.Errorf("QualType node must have exactly one inner node")
		}
		return parseTemplateArg(node.Inner[0], ns, cfg, qualifier, "")
	case "ParenType":
		if len(node.Inner) != 1 {
			return zero, fmt.Errorf("ParenType node must have exactly one inner node")
		}
		if node.Inner[0].Kind != "FunctionProtoType" {
			return zero, fmt.Errorf("expected FunctionProtoType inside ParenType, got %s", node.Inner[0].Kind)
		}
		return parseTemplateArg(node.Inner[0], ns, cfg, "", "")
	case "FunctionProtoType":
		if len(node.Inner) < 1 {
			return zero, fmt.Errorf("FunctionProtoType must have at least one inner node")
		}
		types := make([]*tygraph.Tree[*tygraph.TemplatedName], 0, len(node.Inner))
		for _, inner := range node.Inner {
			a, err := parseTemplateArg(inner, ns, cfg, "", "")
			if err != nil {
				return zero, fmt.Errorf("parsing function type component: %w", err)
			}
			if a.Kind != tygraph.ArgType {
				return zero, fmt.Errorf("cannot use a constant as a function type component")
			}
			types = append(types, a.Type)
		}
		return tygraph.TypeArg(tygraph.NewSub(types)), nil
	case "MemberPointerType":
		if len(node.Inner) != 2 {
			return zero, fmt.Errorf("MemberPointerType must have exactly two inner nodes")
		}
		class, err := parseTemplateArg(node.Inner[0], ns, cfg, "", "")
		if err != nil {
			return zero, fmt.Errorf("parsing member pointer class type: %w", err)
		}
		if class.Kind != tygraph.ArgType || class.Type.Kind != tygraph.TreeBase {
			return zero, fmt.Errorf("member pointer class type must be a plain type")
		}
		pointee, err := parseTemplateArg(node.Inner[1], ns, cfg, "", "")
		if err != nil {
			return zero, fmt.Errorf("parsing member pointer pointee type: %w", err)
		}
		if pointee.Kind != tygraph.ArgType {
			return zero, fmt.Errorf("member pointer pointee cannot be a constant")
		}
		if pointee.Type.Kind == tygraph.TreeSub {
			return tygraph.TypeArg(tygraph.NewPtmf(class.Type.Base, pointee.Type.Sub)), nil
		}
		return tygraph.TypeArg(tygraph.NewPtmd(class.Type.Base, pointee.Type)), nil
	}
	return zero, fmt.Errorf("unexpected node kind %s while parsing template arguments", node.Kind)
}

func typeArgOf(n *tygraph.TemplatedName) tygraph.TemplateArg[*tygraph.TemplatedName] {
	return tygraph.TypeArg(tygraph.NewBase(n))
}

// builtinPrim maps a clang builtin type name to a primitive. char and
// wchar_t are implementation-defined and come from the configuration.
func builtinPrim(qualType string, cfg *config.Config) (tygraph.Prim, error) {
	switch qualType {
	case "void":
		return tygraph.PrimVoid, nil
	case "bool":
		return tygraph.PrimBool, nil
	case "unsigned char":
		return tygraph.PrimU8, nil
	case "unsigned short":
		return tygraph.PrimU16, nil
	case "unsigned int":
		return tygraph.PrimU32, nil
	case "unsigned long", "unsigned long long":
		return tygraph.PrimU64, nil
	case "short":
		return tygraph.PrimI16, nil
	case "int":
		return tygraph.PrimI32, nil
	case "long", "long long":
		return tygraph.PrimI64, nil
	case "float":
		return tygraph.PrimF32, nil
	case "double":
		return tygraph.PrimF64, nil
	case "char":
		return cfg.Extract.CharRepr, nil
	case "wchar_t":
		return cfg.Extract.WcharRepr, nil
	}
	return tygraph.PrimVoid, fmt.Errorf("unexpected builtin type %q (add it if you need it)", qualType)
}

func toNamespacedNameWithFallback(ns *tygraph.NamespaceMaps, source, fallback string) (tygraph.NamespacedName, error) {
	n, err := toNamespacedName(ns, source)
	if err == nil {
		return n, nil
	}
	if fallback == "" {
		return tygraph.NamespacedName{}, err
	}
	n, err2 := toNamespacedName(ns, fallback)
	if err2 != nil {
		return tygraph.NamespacedName{}, fmt.Errorf("resolving %q failed (%v), fallback %q also failed: %w", source, err, fallback, err2)
	}
	return n, nil
}

// toNamespacedName resolves a qualified source string against the
// unit's namespace index, falling back to a freshly parsed namespace
// when the prefix is template-free.
func toNamespacedName(ns *tygraph.NamespaceMaps, source string) (tygraph.NamespacedName, error) {
	prefix, base, err := splitNamespace(source)
	if err != nil {
		return tygraph.NamespacedName{}, err
	}
	if prefix == "" {
		return tygraph.UnnamespacedName(base), nil
	}
	if namespace, ok := ns.BySrc[prefix]; ok {
		return tygraph.NamespacedName{NS: namespace, Base: base}, nil
	}
	namespace, err := tygraph.ParseUntemplatedNamespace(prefix)
	if err != nil {
		return tygraph.NamespacedName{}, fmt.Errorf("namespace %q is not indexed and cannot be parsed: %w", prefix, err)
	}
	return tygraph.NamespacedName{NS: namespace, Base: base}, nil
}

// splitNamespace splits the final :: of a qualified name. Template
// arguments in the base segment are not allowed here.
func splitNamespace(source string) (string, string, error) {
	i := strings.LastIndex(source, "::")
	if i < 0 {
		return "", source, nil
	}
	base := source[i+2:]
	if strings.Contains(base, ">") {
		return "", "", fmt.Errorf("base name of %q cannot contain templates", source)
	}
	return source[:i], base, nil
}
