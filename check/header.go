// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"strings"

	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

func init() {
	Register(Header{})
}

// Header checks a response header. Without any condition Header checks
// that the header is present.
type Header struct {
	// Name of the header, case-insensitive.
	Name string

	Equals   string `json:",omitempty"`
	Contains string `json:",omitempty"`

	// Absent checks that the header is not sent.
	Absent bool `json:",omitempty"`
}

// Execute implements Check's Execute method.
func (h Header) Execute(r *response.Response, _ scope.Scope) error {
	name := "Header " + strings.ToLower(h.Name)
	_, present := r.Header[strings.ToLower(h.Name)]
	if h.Absent {
		if present {
			return &Failure{Check: name, Expected: "no header", Actual: r.HeaderValue(h.Name)}
		}
		return nil
	}
	if !present {
		return &Failure{Check: name, Expected: "header", Actual: nil}
	}
	value := r.HeaderValue(h.Name)
	if h.Equals != "" && value != h.Equals {
		return &Failure{Check: name, Expected: h.Equals, Actual: value}
	}
	if h.Contains != "" && !strings.Contains(value, h.Contains) {
		return &Failure{Check: name, Expected: "containing " + h.Contains, Actual: value}
	}
	return nil
}
