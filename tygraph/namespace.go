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

package tygraph

import (
	"fmt"
	"strings"
)

// SegKind discriminates the kinds of namespace segments.
type SegKind int

// The namespace segment kinds.
const (
	// SegName is a plain namespace name.
	SegName SegKind = iota
	// SegType is an enclosing type; it carries the type's identity so
	// that merges propagate into qualified names.
	SegType
	// SegSubprogram is an enclosing function, by linkage name when one
	// exists, else by plain name.
	SegSubprogram
	// SegAnonymous is an anonymous namespace or type.
	SegAnonymous
)

// NameSeg is one segment of a qualifier path.
type NameSeg struct {
	Kind SegKind
	// Name is the segment text; unset for SegAnonymous.
	Name string
	// Goff is the identity of the enclosing type or subprogram.
	Goff Goff
	// IsLinkage is set on a SegSubprogram whose Name is a linkage name.
	IsLinkage bool
}

// String implements fmt.Stringer.
func (s NameSeg) String() string {
	switch s.Kind {
	case SegName:
		return s.Name
	case SegType:
		return fmt.Sprintf("[ty=%s]", s.Name)
	case SegSubprogram:
		return fmt.Sprintf("[subprogram=%s]", s.Name)
	case SegAnonymous:
		return "[anonymous]"
	}
	return fmt.Sprintf("NameSeg(kind=%d)", s.Kind)
}

// SourceEqual reports whether two segments are equal by structural kind
// and nominal content, ignoring identity values for name-bearing kinds.
func (s NameSeg) SourceEqual(o NameSeg) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case SegName, SegType:
		return s.Name == o.Name
	case SegSubprogram:
		return s.Goff == o.Goff
	case SegAnonymous:
		return true
	}
	return false
}

// cppSource renders the segment as it appears in C++ source. ok is
// false for anonymous segments, which render as nothing; subprogram
// segments cannot be rendered and return an error.
func (s NameSeg) cppSource() (string, bool, error) {
	switch s.Kind {
	case SegName, SegType:
		return s.Name, true, nil
	case SegAnonymous:
		return "", false, nil
	case SegSubprogram:
		return "", false, fmt.Errorf("subprogram segment %q cannot be rendered as C++ source", s.Name)
	}
	return "", false, fmt.Errorf("unknown segment kind %d", s.Kind)
}

// MapGoff rewrites the identity carried by the segment, if any.
func (s *NameSeg) MapGoff(f GoffMapFn) error {
	switch s.Kind {
	case SegType, SegSubprogram:
		g, err := f(s.Goff)
		if err != nil {
			return fmt.Errorf("namespace segment %q: %w", s.Name, err)
		}
		s.Goff = g
	}
	return nil
}

// Mark adds the identities referenced by the segment to marked.
func (s NameSeg) Mark(marked GoffSet) {
	if s.Kind == SegType {
		marked.Add(s.Goff)
	}
}

// Namespace is an ordered qualifier path.
type Namespace []NameSeg

// ParseUntemplatedNamespace parses a "::"-separated path of plain
// names. Template syntax is rejected.
func ParseUntemplatedNamespace(s string) (Namespace, error) {
	if strings.ContainsAny(s, "<>*&") {
		return nil, fmt.Errorf("cannot parse templated namespace %q", s)
	}
	parts := strings.Split(s, "::")
	ns := make(Namespace, len(parts))
	for i, p := range parts {
		ns[i] = NameSeg{Kind: SegName, Name: strings.TrimSpace(p)}
	}
	return ns, nil
}

// String implements fmt.Stringer.
func (ns Namespace) String() string {
	parts := make([]string, len(ns))
	for i, s := range ns {
		parts[i] = s.String()
	}
	return strings.Join(parts, "::")
}

// Equal reports full structural equality, including identities.
func (ns Namespace) Equal(o Namespace) bool {
	if len(ns) != len(o) {
		return false
	}
	for i := range ns {
		if ns[i] != o[i] {
			return false
		}
	}
	return true
}

// SourceEqual reports whether the two namespaces match segment-wise by
// kind and nominal content.
func (ns Namespace) SourceEqual(o Namespace) bool {
	if len(ns) != len(o) {
		return false
	}
	for i := range ns {
		if !ns[i].SourceEqual(o[i]) {
			return false
		}
	}
	return true
}

// ContainsAnonymous reports whether any segment is anonymous.
func (ns Namespace) ContainsAnonymous() bool {
	for _, s := range ns {
		if s.Kind == SegAnonymous {
			return true
		}
	}
	return false
}

// CppSource renders the namespace as a C++ qualifier string. It fails
// if a subprogram segment is present.
func (ns Namespace) CppSource() (string, error) {
	var b strings.Builder
	for _, s := range ns {
		text, ok, err := s.cppSource()
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("::")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// MapGoff rewrites every identity carried by the namespace.
func (ns Namespace) MapGoff(f GoffMapFn) error {
	for i := range ns {
		if err := ns[i].MapGoff(f); err != nil {
			return err
		}
	}
	return nil
}

// Mark adds the identities referenced by the namespace to marked.
func (ns Namespace) Mark(marked GoffSet) {
	for _, s := range ns {
		s.Mark(marked)
	}
}

// Clone returns a copy of the namespace.
func (ns Namespace) Clone() Namespace {
	out := make(Namespace, len(ns))
	copy(out, ns)
	return out
}

// NamespacedName is a basename qualified by a namespace path.
type NamespacedName struct {
	NS   Namespace
	Base string
}

// UnnamespacedName returns a NamespacedName with an empty qualifier.
func UnnamespacedName(base string) NamespacedName {
	return NamespacedName{Base: base}
}

// PrimName returns the NamespacedName of a primitive.
func PrimName(p Prim) NamespacedName {
	return UnnamespacedName(p.String())
}

// String implements fmt.Stringer.
func (n NamespacedName) String() string {
	if len(n.NS) == 0 {
		return n.Base
	}
	return n.NS.String() + "::" + n.Base
}

// Equal reports full structural equality.
func (n NamespacedName) Equal(o NamespacedName) bool {
	return n.Base == o.Base && n.NS.Equal(o.NS)
}

// CppSource renders the full name as a C++ type expression.
func (n NamespacedName) CppSource() (string, error) {
	ns, err := n.NS.CppSource()
	if err != nil {
		return "", err
	}
	if ns == "" {
		return n.Base, nil
	}
	return ns + "::" + n.Base, nil
}

// MapGoff rewrites every identity carried by the qualifier.
func (n *NamespacedName) MapGoff(f GoffMapFn) error {
	return n.NS.MapGoff(f)
}

// Mark adds the identities referenced by the qualifier to marked.
func (n NamespacedName) Mark(marked GoffSet) {
	n.NS.Mark(marked)
}

// Clone returns a copy of the name.
func (n NamespacedName) Clone() NamespacedName {
	return NamespacedName{NS: n.NS.Clone(), Base: n.Base}
}

// NamespaceMaps holds the per-unit result of the namespace pass.
type NamespaceMaps struct {
	// Qualifiers maps each entry to its full qualifier path, including
	// enclosing types and subprograms.
	Qualifiers map[Goff]Namespace
	// Namespaces maps each entry to its namespace-only path.
	Namespaces map[Goff]Namespace
	// BySrc indexes namespaces by their rendered C++ source string.
	// Namespaces with anonymous segments are not indexed.
	BySrc map[string]Namespace
}

// NewNamespaceMaps returns empty maps.
func NewNamespaceMaps() *NamespaceMaps {
	return &NamespaceMaps{
		Qualifiers: map[Goff]Namespace{},
		Namespaces: map[Goff]Namespace{},
		BySrc:      map[string]Namespace{},
	}
}

// MapGoff rewrites every identity inside every stored namespace.
func (m *NamespaceMaps) MapGoff(f GoffMapFn) error {
	for _, ns := range m.Qualifiers {
		if err := ns.MapGoff(f); err != nil {
			return fmt.Errorf("qualifier map: %w", err)
		}
	}
	for _, ns := range m.Namespaces {
		if err := ns.MapGoff(f); err != nil {
			return fmt.Errorf("namespace map: %w", err)
		}
	}
	for _, ns := range m.BySrc {
		if err := ns.MapGoff(f); err != nil {
			return fmt.Errorf("by-src map: %w", err)
		}
	}
	return nil
}
