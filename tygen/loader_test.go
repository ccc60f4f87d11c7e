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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opendebug/tydb/tygraph"
)

// struct A {}; struct B : A { int x; }: the empty base collides with x
// at offset 0 and is dropped.
func TestNormalizeMembersEmptyBase(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	data := &tygraph.Struct{ByteSize: 4, Members: []tygraph.Member{
		{Offset: 0, Ty: tygraph.NewBase(tygraph.Goff(0x100)), Special: tygraph.SpecialBase},
		{Offset: 0, Name: "x", Ty: tygraph.NewBase(i32)},
	}}
	if err := normalizeStructMembers(data, 0x10); err != nil {
		t.Fatalf("normalizeStructMembers: %v", err)
	}
	if len(data.Members) != 1 {
		t.Fatalf("got %d members, want 1", len(data.Members))
	}
	m := data.Members[0]
	if m.Name != "x" || m.Special != tygraph.SpecialNone || m.Offset != 0 {
		t.Errorf("surviving member: got %+v, want x at offset 0", m)
	}
}

// Two plain members at the same offset are an error.
func TestNormalizeMembersCollision(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	data := &tygraph.Struct{ByteSize: 8, Members: []tygraph.Member{
		{Offset: 4, Name: "a", Ty: tygraph.NewBase(i32)},
		{Offset: 4, Name: "b", Ty: tygraph.NewBase(i32)},
	}}
	err := normalizeStructMembers(data, 0x10)
	if err == nil || !strings.Contains(err.Error(), "multiple members") {
		t.Errorf("got %v, want member collision error", err)
	}
}

// Members sort by offset; at equal offsets, base subobjects go last.
func TestSortMembers(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	members := []tygraph.Member{
		{Offset: 8, Name: "z", Ty: tygraph.NewBase(i32)},
		{Offset: 0, Ty: tygraph.NewBase(tygraph.Goff(0x100)), Special: tygraph.SpecialBase},
		{Offset: 0, Name: "a", Ty: tygraph.NewBase(i32)},
	}
	tygraph.SortMembers(members)
	var got []string
	for _, m := range members {
		if m.IsBase() {
			got = append(got, "base")
		} else {
			got = append(got, m.Name)
		}
	}
	want := []string{"a", "base", "z"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("member order: (-want, +got):\n%s", diff)
	}
}

func TestIndexTemplateStart(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"Vector<int>", 6},
		{"Plain", -1},
		{"operator<", -1},
		{"operator<<", -1},
	}
	for _, tt := range tests {
		if got := indexTemplateStart(tt.in); got != tt.want {
			t.Errorf("indexTemplateStart(%q): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

// Two adjacent bitfields in one container merge into a single member
// carrying the container byte size.
func TestAppendBitfieldMember(t *testing.T) {
	i32 := tygraph.PrimGoff(tygraph.PrimI32)
	bf := func(offset uint32) tygraph.Member {
		return tygraph.Member{
			Offset:       offset,
			Ty:           tygraph.NewBase(i32),
			Special:      tygraph.SpecialBitfield,
			BitfieldSize: 4,
		}
	}
	var members []tygraph.Member
	members = appendBitfieldMember(members, bf(4))
	members = appendBitfieldMember(members, bf(4))
	if len(members) != 1 {
		t.Fatalf("got %d members, want 1", len(members))
	}
	got := members[0]
	if got.Offset != 4 || got.Special != tygraph.SpecialBitfield || got.BitfieldSize != 4 {
		t.Errorf("coalesced member: got %+v", got)
	}

	// a bitfield in a different container starts a new slot
	members = appendBitfieldMember(members, bf(8))
	if len(members) != 2 {
		t.Errorf("got %d members after second container, want 2", len(members))
	}
}
