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

	"github.com/opendebug/tydb/tygraph"
)

func unsizedEnum(base tygraph.Goff) *tygraph.LType {
	n := tygraph.UnnamespacedName("E")
	return &tygraph.LType{Kind: tygraph.LEnum, Name: &n, Enum: &tygraph.EnumUnsized{
		SizeBase:    base,
		Enumerators: []tygraph.Enumerator{{Name: "A", Value: 0}},
	}}
}

func TestResolveEnumSizes(t *testing.T) {
	tests := []struct {
		name     string
		types    map[tygraph.Goff]*tygraph.LType
		enum     tygraph.Goff
		wantSize uint32
		wantErr  string
	}{{
		name: "base is a primitive",
		types: map[tygraph.Goff]*tygraph.LType{
			0x10: unsizedEnum(tygraph.PrimGoff(tygraph.PrimU8)),
		},
		enum:     0x10,
		wantSize: 1,
	}, {
		name: "base through an alias chain",
		types: map[tygraph.Goff]*tygraph.LType{
			0x10: unsizedEnum(0x20),
			0x20: tygraph.NewLAlias(0x30),
			0x30: tygraph.NewLTypedef(tygraph.UnnamespacedName("T"), tygraph.PrimGoff(tygraph.PrimU32)),
		},
		enum:     0x10,
		wantSize: 4,
	}, {
		name: "base is another sized enum",
		types: map[tygraph.Goff]*tygraph.LType{
			0x10: unsizedEnum(0x20),
			0x20: {Kind: tygraph.LEnum, Enum: &tygraph.EnumUnsized{ByteSize: 2, HasSize: true}},
		},
		enum:     0x10,
		wantSize: 2,
	}, {
		name: "infinite size cycle",
		types: map[tygraph.Goff]*tygraph.LType{
			0x10: unsizedEnum(0x20),
			0x20: tygraph.NewLAlias(0x30),
			0x30: tygraph.NewLAlias(0x20),
		},
		enum:    0x10,
		wantErr: "infinite-size",
	}, {
		name: "void-based enum is unsized",
		types: map[tygraph.Goff]*tygraph.LType{
			0x10: unsizedEnum(tygraph.PrimGoff(tygraph.PrimVoid)),
		},
		enum:    0x10,
		wantErr: "unsized enum",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := testLStage(tt.types)
			err := ResolveEnumSizes(stage)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("got error %v, want error containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveEnumSizes: %v", err)
			}
			got := stage.Types[tt.enum].Enum
			if !got.HasSize || got.ByteSize != tt.wantSize {
				t.Errorf("enum size: got (%d, %v), want (%d, true)", got.ByteSize, got.HasSize, tt.wantSize)
			}
		})
	}
}

// A union's recorded size must equal its largest member.
func TestResolveEnumSizesUnionCrossCheck(t *testing.T) {
	i64 := tygraph.PrimGoff(tygraph.PrimI64)
	stage := testLStage(map[tygraph.Goff]*tygraph.LType{
		0x10: unsizedEnum(0x20),
		0x20: {Kind: tygraph.LUnion, Union: &tygraph.Union{
			ByteSize: 4, // wrong: the member is 8 bytes
			Members:  []tygraph.Member{{Name: "x", Ty: tygraph.NewBase(i64)}},
		}},
	})
	err := ResolveEnumSizes(stage)
	if err == nil || !strings.Contains(err.Error(), "size mismatch") {
		t.Errorf("got %v, want union size mismatch error", err)
	}
}
