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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBucketsInsert(t *testing.T) {
	b := NewGoffBuckets()
	if _, ok := b.Insert(10); ok {
		t.Errorf("Insert(10): got existing bucket, want new")
	}
	got, ok := b.Insert(10)
	if !ok || got != 10 {
		t.Errorf("Insert(10) again: got (%v, %v), want (10, true)", got, ok)
	}
}

func TestBucketsMerge(t *testing.T) {
	tests := []struct {
		name        string
		merges      [][2]Goff
		wantPrimary map[Goff]Goff
		wantErr     bool
	}{{
		name:        "two user types pick the least",
		merges:      [][2]Goff{{0x20, 0x10}},
		wantPrimary: map[Goff]Goff{0x10: 0x10, 0x20: 0x10},
	}, {
		name:        "primitive wins over smaller user offset",
		merges:      [][2]Goff{{0x10, PrimGoff(PrimI32)}},
		wantPrimary: map[Goff]Goff{0x10: PrimGoff(PrimI32), PrimGoff(PrimI32): PrimGoff(PrimI32)},
	}, {
		name:        "transitive merge through a shared member",
		merges:      [][2]Goff{{0x30, 0x20}, {0x20, 0x10}, {0x40, 0x30}},
		wantPrimary: map[Goff]Goff{0x10: 0x10, 0x20: 0x10, 0x30: 0x10, 0x40: 0x10},
	}, {
		name:    "two distinct primitives cannot share a bucket",
		merges:  [][2]Goff{{PrimGoff(PrimI32), 0x10}, {0x10, PrimGoff(PrimU32)}},
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewGoffBuckets()
			var err error
			for _, m := range tt.merges {
				if err = b.Merge(m[0], m[1]); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("got error %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			for g, want := range tt.wantPrimary {
				if got := b.PrimaryFallback(g); got != want {
					t.Errorf("PrimaryFallback(%s): got %s, want %s", g, got, want)
				}
			}
		})
	}
}

func TestBucketsPrimaryFallback(t *testing.T) {
	b := NewGoffBuckets()
	if got := b.PrimaryFallback(0x99); got != 0x99 {
		t.Errorf("PrimaryFallback of unknown goff: got %s, want 0x99", got)
	}
}

// Primary must be stable under inserts that do not merge with the
// queried identity.
func TestBucketsPrimaryStable(t *testing.T) {
	b := NewGoffBuckets()
	if err := b.Merge(0x20, 0x10); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	before := b.PrimaryFallback(0x20)
	for g := Goff(0x100); g < 0x110; g++ {
		b.Insert(g)
	}
	if got := b.PrimaryFallback(0x20); got != before {
		t.Errorf("PrimaryFallback changed from %s to %s after unrelated inserts", before, got)
	}
}

func TestBucketsPrimaries(t *testing.T) {
	b := NewGoffBuckets()
	if err := b.Merge(0x20, 0x10); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := b.Merge(0x40, 0x30); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	// merging the two classes vacates a slot for reuse
	if err := b.Merge(0x10, 0x30); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	b.Insert(0x50)
	want := []Goff{0x10, 0x50}
	if diff := cmp.Diff(want, b.Primaries()); diff != "" {
		t.Errorf("Primaries: (-want, +got):\n%s", diff)
	}
}
