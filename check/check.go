// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package check provides the assertions run against a response.
//
// Every check is a (mostly) declarative type implementing Check. Checks
// are registered by type name so that lists of checks can be read from
// JSON, HJSON or YAML files in the form
//     [
//         {Check: "StatusCode", Expect: 200},
//         {Check: "Structure", Schema: {type: "object", required: ["id"]}},
//     ]
package check

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vdobler/tasty/errorlist"
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

// Check is a single check performed on a Response. The scope is the
// context of the test, e.g. containing the captured values.
type Check interface {
	// Execute executes the check.
	Execute(r *response.Response, s scope.Scope) error
}

// Preparable is the type a Check may implement to signal that it needs
// some preparation work to be done before it can be executed, e.g.
// compiling a regular expression.
type Preparable interface {
	Prepare() error
}

// NameOf returns the name of the type of inst.
func NameOf(inst interface{}) string {
	typ := reflect.TypeOf(inst)
	if typ == nil {
		return "<nil>"
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ.Name()
}

// ----------------------------------------------------------------------------
// Registry

// Registry keeps track of all known Checks.
var Registry = make(map[string]reflect.Type)

// Register registers the check. Once a check is registered it may be
// unmarshaled from its name and marshaled data.
func Register(check Check) {
	name := NameOf(check)
	typ := reflect.TypeOf(check)
	if _, ok := Registry[name]; ok {
		panic(fmt.Sprintf("Check with name %q already registered.", name))
	}
	Registry[name] = typ
}

// ----------------------------------------------------------------------------
// Errors

// Failure is the error returned by a check whose expectation is not met.
type Failure struct {
	Check    string
	Expected interface{}
	Actual   interface{}

	// Detail is an optional explanation, e.g. a diff.
	Detail string
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: got %s, want %s", f.Check, show(f.Actual), show(f.Expected))
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

func show(v interface{}) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case nil:
		return "null"
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(x)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", v)
}

// MalformedCheck is the error type returned by checks who are badly
// parametrized, e.g. who try to check against a malformed regular
// expression.
type MalformedCheck struct {
	Err error
}

func (m MalformedCheck) Error() string {
	return fmt.Sprintf("malformed check: %s", m.Err.Error())
}

// ----------------------------------------------------------------------------
// List

// List is a slice of checks with the sole purpose of attaching
// (un)marshaling and execution methods.
type List []Check

// Prepare prepares all checks in l.
func (l List) Prepare() error {
	for i, c := range l {
		if p, ok := c.(Preparable); ok {
			if err := p.Prepare(); err != nil {
				return errors.WithMessagef(err, "check %d %s", i+1, NameOf(c))
			}
		}
	}
	return nil
}

// Execute runs all checks in l and reports all failures.
func (l List) Execute(r *response.Response, s scope.Scope) error {
	var el errorlist.List
	for _, c := range l {
		el = el.Append(c.Execute(r, s))
	}
	return el.AsError()
}

// MarshalJSON produces a JSON array of the checks in l.
// Each check is serialized in the form
//     { "Check": "NameOfCheckAsRegistered",
//         "Field1OfCheck": "Value1", "Field2": "Value2", ... }
func (l List) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteRune('[')
	for i, check := range l {
		raw, err := json.Marshal(check)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`{"Check":"`)
		buf.WriteString(NameOf(check))
		buf.WriteByte('"')
		if string(raw) != "{}" {
			buf.WriteRune(',')
			buf.Write(raw[1 : len(raw)-1])
		}
		buf.WriteRune('}')
		if i < len(l)-1 {
			buf.WriteString(", ")
		}
	}
	buf.WriteRune(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a list of checks. Unknown fields are an error.
func (l *List) UnmarshalJSON(data []byte) error {
	raw := []map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unable to construct list of checks")
	}

	list := make(List, len(raw))
	for i, fields := range raw {
		var name string
		if err := json.Unmarshal(fields["Check"], &name); err != nil || name == "" {
			return errors.Errorf("check %d: cannot determine type of check", i+1)
		}
		typ, ok := Registry[name]
		if !ok {
			return noSuchCheckError(name)
		}
		delete(fields, "Check")
		if typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		rcheck := reflect.New(typ)
		rest, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(rest))
		dec.DisallowUnknownFields()
		if err := dec.Decode(rcheck.Interface()); err != nil {
			return errors.Errorf("problems constructing check %d %s: %s", i+1, name, err)
		}
		list[i] = rcheck.Interface().(Check)
	}
	*l = list
	return nil
}

// UnmarshalYAML decodes a list of checks from YAML.
func (l *List) UnmarshalYAML(node *yaml.Node) error {
	var soup []interface{}
	if err := node.Decode(&soup); err != nil {
		return err
	}
	data, err := json.Marshal(soup)
	if err != nil {
		return err
	}
	return l.UnmarshalJSON(data)
}

// ----------------------------------------------------------------------------
// Handling misspelled checks

func noSuchCheckError(name string) error {
	names := make([]string, 0, len(Registry))
	for cn := range Registry {
		names = append(names, cn)
	}
	if suggestions := possibleNames(name, names); len(suggestions) > 0 {
		return errors.Errorf("no such check %s (did you mean %s?)", name,
			strings.Join(suggestions, ", "))
	}
	return errors.Errorf("no such check %s", name)
}

// possibleNames returns the names from valid which equal orig ignoring
// case or which share a common prefix of at least four letters with it.
func possibleNames(orig string, valid []string) []string {
	ORIG := strings.ToUpper(orig)
	suggestions := []string{}
	for _, name := range valid {
		NAME := strings.ToUpper(name)
		if NAME == ORIG || commonPrefix(NAME, ORIG) >= 4 {
			suggestions = append(suggestions, name)
		}
	}
	sort.Strings(suggestions)
	return suggestions
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
