// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package template evaluates ${expr} placeholders against a scope.
//
// A template which consists of exactly one placeholder evaluates to the
// referenced value itself, keeping its type:
//     Eval("${id}", scope.Scope{"id": 12345.0})  ==>  12345.0 (a float64)
// Placeholders embedded in text, or several placeholders, produce a string:
//     Eval("/users/${id}", ...)  ==>  "/users/12345"
//
// The load engine uses a different placeholder syntax, {{ expr }}; Mustache
// and MustacheDeep translate between the two.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vdobler/tasty/scope"
)

var (
	placeholderRE = regexp.MustCompile(`\$\{([^{}]*)\}`)
	mustacheRE    = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)
)

// Error is the error returned if a placeholder cannot be evaluated.
type Error struct {
	Template string
	Expr     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("template %q: cannot evaluate ${%s}: %s", e.Template, e.Expr, e.Err)
}

// HasPlaceholder reports whether s contains at least one ${expr}.
func HasPlaceholder(s string) bool {
	return placeholderRE.MatchString(s)
}

// Eval evaluates tpl against s.
func Eval(tpl string, s scope.Scope) (interface{}, error) {
	locs := placeholderRE.FindAllStringSubmatchIndex(tpl, -1)
	if len(locs) == 0 {
		return tpl, nil
	}
	if len(locs) == 1 && locs[0][0] == 0 && locs[0][1] == len(tpl) {
		return lookup(tpl, tpl[locs[0][2]:locs[0][3]], s)
	}

	buf := &strings.Builder{}
	last := 0
	for _, loc := range locs {
		buf.WriteString(tpl[last:loc[0]])
		v, err := lookup(tpl, tpl[loc[2]:loc[3]], s)
		if err != nil {
			return nil, err
		}
		buf.WriteString(Render(v))
		last = loc[1]
	}
	buf.WriteString(tpl[last:])
	return buf.String(), nil
}

// EvalString is like Eval but always renders the result as a string.
func EvalString(tpl string, s scope.Scope) (string, error) {
	v, err := Eval(tpl, s)
	if err != nil {
		return "", err
	}
	return Render(v), nil
}

func lookup(tpl, expr string, s scope.Scope) (interface{}, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, &Error{Template: tpl, Expr: expr, Err: fmt.Errorf("empty expression")}
	}
	v, err := s.Lookup(expr)
	if err != nil {
		return nil, &Error{Template: tpl, Expr: expr, Err: err}
	}
	return v, nil
}

// EvalDeep evaluates every string leaf of the tree v. Maps and slices are
// copied, all other non-string values are returned unchanged.
func EvalDeep(v interface{}, s scope.Scope) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return Eval(x, s)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			ev, err := EvalDeep(e, s)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	case scope.Scope:
		return EvalDeep(map[string]interface{}(x), s)
	case map[string]string:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			ev, err := Eval(e, s)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			ev, err := EvalDeep(e, s)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(x))
		for i, e := range x {
			ev, err := Eval(e, s)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	}
	return v, nil
}

// Evaluator evaluates values against a fixed Scope.
type Evaluator struct {
	Scope scope.Scope
}

// Evaluate implements the evaluator interface of the request pipeline.
func (e Evaluator) Evaluate(v interface{}) (interface{}, error) {
	return EvalDeep(v, e.Scope)
}

// Render formats v the way it appears when embedded in text.
func Render(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case map[string]interface{}, []interface{}, scope.Scope, map[string]string, []string:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
	return fmt.Sprint(v)
}

// ----------------------------------------------------------------------------
// Mustache translation

// Mustache rewrites every ${expr} in s as {{ expr }}.
func Mustache(s string) string {
	return placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		expr := strings.TrimSpace(m[2 : len(m)-1])
		return "{{ " + expr + " }}"
	})
}

// MustacheDeep applies Mustache to every string leaf of v. Subtrees stored
// under one of the keys in skip are copied unchanged.
func MustacheDeep(v interface{}, skip ...string) interface{} {
	switch x := v.(type) {
	case string:
		return Mustache(x)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			if contains(skip, k) {
				out[k] = scope.CloneValue(e)
				continue
			}
			out[k] = MustacheDeep(e, skip...)
		}
		return out
	case scope.Scope:
		return MustacheDeep(map[string]interface{}(x), skip...)
	case map[string]string:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			if contains(skip, k) {
				out[k] = e
				continue
			}
			out[k] = Mustache(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = MustacheDeep(e, skip...)
		}
		return out
	case []string:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = Mustache(e)
		}
		return out
	}
	return v
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// MustacheEvaluator is a pipeline evaluator which translates placeholders
// instead of resolving them.
type MustacheEvaluator struct {
	Skip []string
}

// Evaluate implements the evaluator interface of the request pipeline.
func (m MustacheEvaluator) Evaluate(v interface{}) (interface{}, error) {
	return MustacheDeep(v, m.Skip...), nil
}

// Substitute replaces every {{ name }} in s by the rendered value of name
// in vars. Undefined names are replaced by the empty string, a whole-value
// placeholder keeps the type of its value.
func Substitute(s string, vars scope.Scope) interface{} {
	locs := mustacheRE.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	if len(locs) == 1 && locs[0][0] == 0 && locs[0][1] == len(s) {
		v, _ := vars.Lookup(s[locs[0][2]:locs[0][3]])
		return v
	}
	return mustacheRE.ReplaceAllStringFunc(s, func(m string) string {
		sub := mustacheRE.FindStringSubmatch(m)
		v, err := vars.Lookup(sub[1])
		if err != nil {
			return ""
		}
		return Render(v)
	})
}

// SubstituteDeep applies Substitute to every string leaf of v.
func SubstituteDeep(v interface{}, vars scope.Scope) interface{} {
	switch x := v.(type) {
	case string:
		return Substitute(x, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = SubstituteDeep(e, vars)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = SubstituteDeep(e, vars)
		}
		return out
	}
	return v
}
