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

package config

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/opendebug/tydb/util"
)

// maxResolutionRules bounds the rule lists against pathological
// configurations.
const maxResolutionRules = 60000

// defaultSentinel separates prefer patterns from dislike patterns in
// the flat rule list.
const defaultSentinel = "<default>"

// NameResolution ranks competing fully-qualified names so that the
// most preferred name is chosen as a type's primary.
type NameResolution struct {
	// Prefer patterns rank from most to least preferred.
	Prefer []*regexp.Regexp
	// Dislike patterns rank from least to most disliked.
	Dislike []*regexp.Regexp
	// Test pairs assert that the first name ranks strictly before the
	// second; validated at load time.
	Test [][2]string
}

func nameResolutionFromRaw(rules []string, tests [][]string) (NameResolution, error) {
	var out NameResolution
	parsingPrefer := true
	for _, s := range rules {
		if s == defaultSentinel {
			parsingPrefer = false
			continue
		}
		r, err := regexp.Compile(s)
		if err != nil {
			return out, fmt.Errorf("config extract.name-resolution.rules pattern %q: %v", s, err)
		}
		if parsingPrefer {
			out.Prefer = append(out.Prefer, r)
		} else {
			out.Dislike = append(out.Dislike, r)
		}
		if len(out.Prefer) > maxResolutionRules || len(out.Dislike) > maxResolutionRules {
			return out, fmt.Errorf("too many name resolution rules")
		}
	}
	for _, t := range tests {
		if len(t) != 2 {
			return out, fmt.Errorf("config extract.name-resolution.test entries must be [more-preferred, less-preferred] pairs")
		}
		out.Test = append(out.Test, [2]string{t[0], t[1]})
	}
	return out, nil
}

// SortKey returns a key ordering names from most preferred (smallest)
// to least preferred.
func (n *NameResolution) SortKey(name string) int {
	preferI := len(n.Prefer)
	for i, r := range n.Prefer {
		if r.MatchString(name) {
			preferI = i
			break
		}
	}
	dislikeI := 0
	for i, r := range n.Dislike {
		if r.MatchString(name) {
			dislikeI = i + 1
			break
		}
	}
	return preferI<<16 | dislikeI
}

// TestRules validates the configured test pairs, reporting every
// failing pair.
func (n *NameResolution) TestRules() error {
	var errs util.Errors
	for _, t := range n.Test {
		k1 := n.SortKey(t[0])
		k2 := n.SortKey(t[1])
		switch {
		case k1 < k2:
		case k1 == k2:
			errs = util.AppendErr(errs, fmt.Errorf("name resolution rule test failed: %q and %q rank equal, expected the first to be preferred", t[0], t[1]))
		default:
			errs = util.AppendErr(errs, fmt.Errorf("name resolution rule test failed: %q ranks after %q, expected the first to be preferred", t[0], t[1]))
		}
	}
	return errs.Err()
}

// NameComparator memoizes name-resolution sort keys. It is safe for
// concurrent use.
type NameComparator struct {
	rules *NameResolution
	mu    sync.RWMutex
	cache map[string]int
}

// NewNameComparator returns a comparator over the given rules.
func NewNameComparator(rules *NameResolution) *NameComparator {
	return &NameComparator{rules: rules, cache: map[string]int{}}
}

// Key returns the memoized sort key of name.
func (c *NameComparator) Key(name string) int {
	c.mu.RLock()
	k, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return k
	}
	k = c.rules.SortKey(name)
	c.mu.Lock()
	c.cache[name] = k
	c.mu.Unlock()
	return k
}

// Compare orders a before b when a is preferred; ties break
// lexicographically so the order is total and deterministic.
func (c *NameComparator) Compare(a, b string) int {
	ka, kb := c.Key(a), c.Key(b)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
