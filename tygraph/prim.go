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

import "fmt"

// Prim is a primitive type. The set is closed: every base type read
// from DWARF maps onto one of these by encoding and byte size.
type Prim int

// The primitive kinds. PrimVoid is the only unsized one.
const (
	PrimVoid Prim = iota
	PrimBool
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimU128
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimI128
	PrimF32
	PrimF64
	PrimF128
)

// Prims lists every primitive kind, in declaration order.
var Prims = []Prim{
	PrimVoid, PrimBool,
	PrimU8, PrimU16, PrimU32, PrimU64, PrimU128,
	PrimI8, PrimI16, PrimI32, PrimI64, PrimI128,
	PrimF32, PrimF64, PrimF128,
}

var primNames = map[Prim]string{
	PrimVoid: "void",
	PrimBool: "bool",
	PrimU8:   "u8",
	PrimU16:  "u16",
	PrimU32:  "u32",
	PrimU64:  "u64",
	PrimU128: "u128",
	PrimI8:   "i8",
	PrimI16:  "i16",
	PrimI32:  "i32",
	PrimI64:  "i64",
	PrimI128: "i128",
	PrimF32:  "f32",
	PrimF64:  "f64",
	PrimF128: "f128",
}

var primByName = func() map[string]Prim {
	m := make(map[string]Prim, len(primNames))
	for p, n := range primNames {
		m[n] = p
	}
	return m
}()

// String implements fmt.Stringer.
func (p Prim) String() string {
	if n, ok := primNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Prim(%d)", int(p))
}

// ParsePrim parses the canonical name of a primitive, e.g. "u32".
func ParsePrim(s string) (Prim, error) {
	p, ok := primByName[s]
	if !ok {
		return PrimVoid, fmt.Errorf("unknown primitive name %q", s)
	}
	return p, nil
}

// ByteSize returns the fixed byte size of the primitive. ok is false
// for PrimVoid, which has no size.
func (p Prim) ByteSize() (size uint32, ok bool) {
	switch p {
	case PrimVoid:
		return 0, false
	case PrimBool, PrimU8, PrimI8:
		return 1, true
	case PrimU16, PrimI16:
		return 2, true
	case PrimU32, PrimI32, PrimF32:
		return 4, true
	case PrimU64, PrimI64, PrimF64:
		return 8, true
	case PrimU128, PrimI128, PrimF128:
		return 16, true
	}
	return 0, false
}
