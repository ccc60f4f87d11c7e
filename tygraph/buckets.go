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

// GoffBuckets partitions known identities into mutually exclusive
// equivalence classes. All identities in one bucket denote the same
// type. The canonical representative of a bucket is its primitive
// identity if one is present (at most one is permitted), otherwise its
// smallest identity.
type GoffBuckets struct {
	index    map[Goff]int
	buckets  []GoffSet
	freeList []int
}

// NewGoffBuckets returns an empty partition.
func NewGoffBuckets() *GoffBuckets {
	return &GoffBuckets{index: map[Goff]int{}}
}

// Contains reports whether g is in any bucket.
func (b *GoffBuckets) Contains(g Goff) bool {
	_, ok := b.Primary(g)
	return ok
}

// Primary returns the canonical representative of the bucket containing
// g. ok is false if g is in no bucket.
func (b *GoffBuckets) Primary(g Goff) (Goff, bool) {
	i, ok := b.index[g]
	if !ok {
		return 0, false
	}
	return bucketPrimary(b.buckets[i])
}

// PrimaryFallback returns the canonical representative of the bucket
// containing g, or g itself if it is in no bucket.
func (b *GoffBuckets) PrimaryFallback(g Goff) Goff {
	if p, ok := b.Primary(g); ok {
		return p
	}
	return g
}

// Primaries returns the canonical representative of every non-empty
// bucket, in ascending order.
func (b *GoffBuckets) Primaries() []Goff {
	set := GoffSet{}
	for _, bucket := range b.buckets {
		if p, ok := bucketPrimary(bucket); ok {
			set.Add(p)
		}
	}
	return set.Sorted()
}

// Insert adds g to the partition. If g is already known, the canonical
// representative of its bucket is returned with ok=true; otherwise a
// new singleton bucket is created and ok is false.
func (b *GoffBuckets) Insert(g Goff) (primary Goff, ok bool) {
	if i, found := b.index[g]; found {
		return bucketPrimary(b.buckets[i])
	}
	i := b.newBucket()
	b.buckets[i].Add(g)
	b.index[g] = i
	return 0, false
}

// Merge unions the buckets containing k1 and k2, inserting either as a
// new bucket first if unknown. Two distinct primitive identities in the
// same bucket are an error.
func (b *GoffBuckets) Merge(k1, k2 Goff) error {
	p1, ok := b.Insert(k1)
	if !ok {
		p1 = k1
	}
	p2, ok := b.Insert(k2)
	if !ok {
		p2 = k2
	}
	if p1 == p2 {
		// already in the same bucket
		return nil
	}
	to, from, err := pickBucketPrimary(p1, p2)
	if err != nil {
		return fmt.Errorf("merge of %s and %s: %w", k1, k2, err)
	}
	iFrom, ok := b.index[from]
	if !ok {
		return fmt.Errorf("merge: key %s not indexed", from)
	}
	iTo, ok := b.index[to]
	if !ok {
		return fmt.Errorf("merge: key %s not indexed", to)
	}
	moved := b.removeBucket(iFrom)
	for g := range moved {
		b.index[g] = iTo
		b.buckets[iTo].Add(g)
	}
	return nil
}

func (b *GoffBuckets) newBucket() int {
	if n := len(b.freeList); n > 0 {
		i := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		b.buckets[i] = GoffSet{}
		return i
	}
	b.buckets = append(b.buckets, GoffSet{})
	return len(b.buckets) - 1
}

func (b *GoffBuckets) removeBucket(i int) GoffSet {
	s := b.buckets[i]
	b.buckets[i] = nil
	b.freeList = append(b.freeList, i)
	return s
}

func bucketPrimary(bucket GoffSet) (Goff, bool) {
	if len(bucket) == 0 {
		return 0, false
	}
	var least, greatest Goff
	first := true
	for g := range bucket {
		if first {
			least, greatest = g, g
			first = false
			continue
		}
		if g < least {
			least = g
		}
		if g > greatest {
			greatest = g
		}
	}
	// a primitive, if present, sorts above all DWARF-derived offsets
	if greatest.IsPrim() {
		return greatest, true
	}
	return least, true
}

// pickBucketPrimary deterministically orders two canonical keys,
// returning (winner, loser). Two distinct primitives cannot share a
// bucket.
func pickBucketPrimary(k1, k2 Goff) (Goff, Goff, error) {
	if k1 == k2 {
		return k1, k2, nil
	}
	switch {
	case k1.IsPrim() && k2.IsPrim():
		return 0, 0, fmt.Errorf("two different primitive identities in one bucket: %s and %s", k1, k2)
	case k1.IsPrim():
		return k1, k2, nil
	case k2.IsPrim():
		return k2, k1, nil
	case k1 < k2:
		return k1, k2, nil
	default:
		return k2, k1, nil
	}
}
