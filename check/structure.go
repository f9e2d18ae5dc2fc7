// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"strings"

	"github.com/vdobler/tasty/errorlist"
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/schema"
	"github.com/vdobler/tasty/scope"
)

func init() {
	Register(&Structure{})
}

// Structure checks that the decoded body conforms to a JSON schema.
// See package schema for the draft and the items rule.
type Structure struct {
	Schema *schema.Schema
}

// Prepare implements Preparable.
func (c *Structure) Prepare() error {
	if c.Schema == nil {
		return MalformedCheck{Err: errMissing("Schema")}
	}
	if err := c.Schema.Compile(); err != nil {
		return MalformedCheck{Err: err}
	}
	return nil
}

// Execute implements Check's Execute method.
func (c *Structure) Execute(r *response.Response, _ scope.Scope) error {
	if c.Schema == nil {
		return MalformedCheck{Err: errMissing("Schema")}
	}
	err := c.Schema.Validate(r.Body)
	if err == nil {
		return nil
	}
	return &Failure{
		Check:    "Structure",
		Expected: "body conforming to schema",
		Actual:   r.Body,
		Detail:   strings.Join(errorlist.Lines(err), "; "),
	}
}

type errMissing string

func (e errMissing) Error() string { return "missing " + string(e) }
