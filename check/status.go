// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// status.go provides checks on the status line of a HTTP response.

package check

import (
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

func init() {
	Register(StatusCode{})
	Register(StatusText{})
}

// ----------------------------------------------------------------------------
// StatusCode

// StatusCode checks the HTTP status code.
type StatusCode struct {
	Expect int
}

// Execute implements Check's Execute method.
func (c StatusCode) Execute(r *response.Response, _ scope.Scope) error {
	if r.Status != c.Expect {
		return &Failure{Check: "StatusCode", Expected: c.Expect, Actual: r.Status}
	}
	return nil
}

// ----------------------------------------------------------------------------
// StatusText

// StatusText checks the reason phrase of the status line, e.g. "Not Found".
type StatusText struct {
	Expect string
}

// Execute implements Check's Execute method.
func (c StatusText) Execute(r *response.Response, _ scope.Scope) error {
	if r.StatusText != c.Expect {
		return &Failure{Check: "StatusText", Expected: c.Expect, Actual: r.StatusText}
	}
	return nil
}
