// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

// Predicate checks an arbitrary condition on the decoded body and the
// context of the test. Predicates are constructed in Go code only, they
// cannot be read from definition files; use Script or JSONExpr there.
type Predicate struct {
	// Name describes the condition in failure messages.
	Name string

	Func func(body interface{}, s scope.Scope) bool `json:"-"`
}

// Execute implements Check's Execute method.
func (p Predicate) Execute(r *response.Response, s scope.Scope) error {
	if p.Func == nil {
		return MalformedCheck{Err: errMissing("Func")}
	}
	if !p.Func(r.Body, s) {
		name := p.Name
		if name == "" {
			name = "predicate"
		}
		return &Failure{Check: "Predicate", Expected: name + " to hold", Actual: r.Body}
	}
	return nil
}
