// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// json.go contains checks on JSON bodies based on jq queries.

package check

import (
	"fmt"
	"reflect"

	"github.com/itchyny/gojq"
	"github.com/kr/pretty"

	"github.com/vdobler/tasty/capture"
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

func init() {
	Register(&JSONExpr{})
	Register(&JSONEquals{})
}

// ----------------------------------------------------------------------------
// JSONExpr

// JSONExpr allows checking a JSON body with a boolean jq expression.
// The document {"foo": 5, "bar": [1, 2, 3]} passes
//     .foo == 5
//     .bar | length > 2
//     .bar | index(2) != null
// See github.com/itchyny/gojq for the expression syntax.
type JSONExpr struct {
	// Expression is a boolean jq expression whose first result must
	// be true for the check to pass.
	Expression string `json:",omitempty"`

	code *gojq.Code
}

// Prepare implements Preparable.
func (c *JSONExpr) Prepare() (err error) {
	if c.Expression == "" {
		return MalformedCheck{Err: errMissing("Expression")}
	}
	c.code, err = capture.CompileQuery(c.Expression)
	if err != nil {
		return MalformedCheck{Err: err}
	}
	return nil
}

// Execute implements Check's Execute method.
func (c *JSONExpr) Execute(r *response.Response, _ scope.Scope) error {
	if c.code == nil {
		if err := c.Prepare(); err != nil {
			return err
		}
	}
	result, err := capture.EvalPath(c.code, r.Body)
	if err != nil {
		return &Failure{Check: "JSONExpr", Expected: c.Expression, Actual: r.Body,
			Detail: err.Error()}
	}
	if b, ok := result.(bool); !ok {
		return MalformedCheck{Err: fmt.Errorf("expression yields %T (%#v), not a bool", result, result)}
	} else if !b {
		return &Failure{Check: "JSONExpr", Expected: c.Expression, Actual: r.Body}
	}
	return nil
}

// ----------------------------------------------------------------------------
// JSONEquals

// JSONEquals checks that the element of the body selected by the path
// Element equals Expect. Numbers compare by value.
type JSONEquals struct {
	// Element is a path like "$.users[0].name"; "$" is the whole body.
	Element string

	// Expect is the expected value.
	Expect interface{}

	code *gojq.Code
}

// Prepare implements Preparable.
func (c *JSONEquals) Prepare() (err error) {
	if c.Element == "" {
		c.Element = "$"
	}
	c.code, err = capture.CompilePath(c.Element)
	if err != nil {
		return MalformedCheck{Err: err}
	}
	return nil
}

// Execute implements Check's Execute method.
func (c *JSONEquals) Execute(r *response.Response, _ scope.Scope) error {
	if c.code == nil {
		if err := c.Prepare(); err != nil {
			return err
		}
	}
	actual, err := capture.EvalPath(c.code, r.Body)
	if err != nil {
		actual = nil
	}
	if equalJSON(actual, c.Expect) {
		return nil
	}
	return &Failure{
		Check:    "JSONEquals " + c.Element,
		Expected: c.Expect,
		Actual:   actual,
		Detail:   fmt.Sprint(pretty.Diff(actual, c.Expect)),
	}
}

// equalJSON compares a and b treating all numeric types as float64.
func equalJSON(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case float32:
		return float64(x)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}
