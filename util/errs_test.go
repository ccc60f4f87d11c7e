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

package util

import (
	"errors"
	"testing"
)

func TestAppendErr(t *testing.T) {
	var errs Errors
	errs = AppendErr(errs, nil)
	if len(errs) != 0 {
		t.Errorf("AppendErr(nil): got %d errors, want 0", len(errs))
	}
	errs = AppendErr(errs, errors.New("one"))
	errs = AppendErrs(errs, []error{errors.New("two"), nil})
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2", len(errs))
	}
	if got, want := errs.Error(), "one, two"; got != want {
		t.Errorf("Error: got %q, want %q", got, want)
	}
}

func TestErrsErr(t *testing.T) {
	var errs Errors
	if errs.Err() != nil {
		t.Errorf("empty Errors.Err: got %v, want nil", errs.Err())
	}
	errs = AppendErr(errs, errors.New("boom"))
	if errs.Err() == nil {
		t.Errorf("non-empty Errors.Err: got nil, want error")
	}
}
