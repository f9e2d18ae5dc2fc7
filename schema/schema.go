// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package schema validates JSON-like values against a JSON Schema.
//
// Schemas are validated with github.com/santhosh-tekuri/jsonschema using
// draft 7 unless the schema names another draft in "$schema". Formats
// like "email" or "date-time" are asserted, not just annotated.
//
// The keyword items comes in two forms. A single schema applies to every
// element of the array. An array of schemas is a positional tuple: the
// n'th schema validates the n'th element. An array of exactly one schema
// is rewritten to the single schema form before compilation and validates
// every element: lists like [{type: "object"}] are almost always meant as
// homogeneous.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/vdobler/tasty/errorlist"
)

// location is the URL under which schemas are compiled.
const location = "mem:///schema.json"

// Schema is a JSON schema. Its zero value is the empty schema which
// accepts everything.
type Schema struct {
	raw interface{}

	mu       sync.Mutex
	compiled *jsonschema.Schema
}

// Parse takes a schema given as a JSON-like tree (e.g. from a resource
// declaration) and compiles it.
func Parse(v interface{}) (*Schema, error) {
	if s, ok := v.(*Schema); ok {
		return s, s.Compile()
	}
	raw, err := normalize(v)
	if err != nil {
		return nil, errors.Wrap(err, "schema")
	}
	s := &Schema{raw: raw}
	return s, s.Compile()
}

// MustParse is like Parse but panics on errors.
func MustParse(v interface{}) *Schema {
	s, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the schema as read.
func (s *Schema) Raw() interface{} {
	return s.raw
}

// Compile checks s for wellformedness against the meta schema of its
// draft. Validate compiles on first use.
func (s *Schema) Compile() error {
	if s == nil {
		return errors.New("schema: missing schema")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compiled != nil {
		return nil
	}
	raw := s.raw
	if raw == nil {
		raw = map[string]interface{}{}
	}
	data, err := json.Marshal(homogeneousItems(raw))
	if err != nil {
		return errors.Wrap(err, "schema")
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	c.AssertFormat = true
	if err := c.AddResource(location, bytes.NewReader(data)); err != nil {
		return errors.Wrap(err, "schema")
	}
	compiled, err := c.Compile(location)
	if err != nil {
		return errors.Wrap(err, "schema")
	}
	s.compiled = compiled
	return nil
}

// Validate checks v against s and returns all violations as an
// errorlist.List, one entry per violated keyword.
func (s *Schema) Validate(v interface{}) error {
	if err := s.Compile(); err != nil {
		return err
	}
	doc, err := normalize(v)
	if err != nil {
		return errors.Wrap(err, "schema: value is not JSON")
	}
	err = s.compiled.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return errors.Wrap(err, "schema")
	}
	var lines []string
	leaves(ve, &lines)
	sort.Strings(lines)
	var el errorlist.List
	for _, line := range lines {
		el = el.Append(errors.New(line))
	}
	return el.AsError()
}

// leaves collects the messages of the innermost errors below ve.
func leaves(ve *jsonschema.ValidationError, lines *[]string) {
	if len(ve.Causes) == 0 {
		*lines = append(*lines, fmt.Sprintf("element %s: %s", Element(ve.InstanceLocation), ve.Message))
		return
	}
	for _, c := range ve.Causes {
		leaves(c, lines)
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Element turns a JSON pointer like "/users/0/first-name" into the path
// notation $.users[0]["first-name"] used by captures and checks.
func Element(pointer string) string {
	buf := &strings.Builder{}
	buf.WriteString("$")
	if pointer == "" {
		return buf.String()
	}
	for _, tok := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		tok = strings.NewReplacer("~1", "/", "~0", "~").Replace(tok)
		if _, err := strconv.Atoi(tok); err == nil {
			buf.WriteString("[" + tok + "]")
		} else if identifier.MatchString(tok) {
			buf.WriteString("." + tok)
		} else {
			fmt.Fprintf(buf, "[%q]", tok)
		}
	}
	return buf.String()
}

// normalize turns v into a tree of plain JSON values.
func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// valueKeywords hold instance values, not subschemas.
var valueKeywords = map[string]bool{
	"enum": true, "const": true, "default": true, "examples": true,
}

// homogeneousItems returns a copy of the schema tree s where every one
// element items array is replaced by its element.
func homogeneousItems(s interface{}) interface{} {
	switch x := s.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, v := range x {
			if valueKeywords[k] {
				out[k] = v
				continue
			}
			if arr, ok := v.([]interface{}); ok && k == "items" && len(arr) == 1 {
				v = arr[0]
			}
			out[k] = homogeneousItems(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, v := range x {
			out[i] = homogeneousItems(v)
		}
		return out
	}
	return s
}

// ----------------------------------------------------------------------------
// Serialization

// UnmarshalJSON reads the schema tree.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.raw, s.compiled = raw, nil
	return nil
}

// MarshalJSON writes the schema tree as read.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s.raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.raw)
}

// UnmarshalYAML reads the schema tree.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	norm, err := normalize(raw)
	if err != nil {
		return err
	}
	s.raw, s.compiled = norm, nil
	return nil
}

// MarshalYAML writes the schema tree as read.
func (s *Schema) MarshalYAML() (interface{}, error) {
	return s.raw, nil
}
