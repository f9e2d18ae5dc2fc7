// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/vdobler/tasty/errorlist"
)

const userSchema = `{
  "type": "object",
  "required": ["id", "name"],
  "properties": {
    "id":    {"type": "integer", "minimum": 1},
    "name":  {"type": "string", "minLength": 1},
    "role":  {"enum": ["admin", "user"]},
    "email": {"type": ["string", "null"], "pattern": "@"},
    "tags":  {"type": "array", "items": {"type": "string"}, "maxItems": 3}
  },
  "additionalProperties": false
}`

func mustSchema(t *testing.T, src string) *Schema {
	var v interface{}
	if err := json.Unmarshal([]byte(src), &v); err != nil {
		t.Fatalf("Bad schema source: %v", err)
	}
	s, err := Parse(v)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return s
}

func mustJSON(t *testing.T, src string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(src), &v); err != nil {
		t.Fatalf("Bad JSON: %v", err)
	}
	return v
}

var validateTests = []struct {
	doc  string
	errs []string
}{
	{`{"id": 1, "name": "Ann"}`, nil},
	{`{"id": 1, "name": "Ann", "role": "admin", "email": null, "tags": ["a"]}`, nil},
	{`{"id": 1.5, "name": "Ann"}`, []string{"element $.id: expected integer, but got number"}},
	{`{"id": 0, "name": ""}`, []string{
		"element $.id: must be >= 1 but found 0",
		"element $.name: length must be >= 1, but got 0",
	}},
	{`{"name": "Ann"}`, []string{"element $: missing properties: 'id'"}},
	{`{"id": 2, "name": "Ann", "x": 1}`, []string{"element $: additionalProperties 'x' not allowed"}},
	{`{"id": 2, "name": "Ann", "role": "root"}`, []string{`element $.role: value must be one of "admin", "user"`}},
	{`{"id": 2, "name": "Ann", "tags": ["a", 3]}`, []string{"element $.tags[1]: expected string, but got number"}},
	{`{"id": 2, "name": "Ann", "email": "nope"}`, []string{"element $.email: does not match pattern '@'"}},
	{`[1, 2]`, []string{"element $: expected object, but got array"}},
}

func TestValidate(t *testing.T) {
	s := mustSchema(t, userSchema)
	for i, tc := range validateTests {
		err := s.Validate(mustJSON(t, tc.doc))
		got := errorlist.Lines(err)
		if strings.Join(got, "\n") != strings.Join(tc.errs, "\n") {
			t.Errorf("%d. %s:\ngot  %q\nwant %q", i, tc.doc, got, tc.errs)
		}
	}
}

func TestItemsForms(t *testing.T) {
	doc := mustJSON(t, `[{"id": 1}, {"id": "two"}, {"id": 3}]`)

	// A single schema validates all elements.
	single := mustSchema(t, `{"items": {"properties": {"id": {"type": "integer"}}}}`)
	if err := single.Validate(doc); err == nil {
		t.Errorf("single items schema: missing error for second element")
	}

	// A one element array is homogeneous as well.
	homogeneous := mustSchema(t, `{"items": [{"properties": {"id": {"type": "integer"}}}]}`)
	err := homogeneous.Validate(doc)
	if err == nil || !strings.Contains(err.Error(), "$[1].id") {
		t.Errorf("one element items array: got %v, want error on $[1].id", err)
	}

	// Longer arrays are positional tuples.
	tuple := mustSchema(t, `{"items": [{"type": "object"}, {"properties": {"id": {"type": "string"}}}]}`)
	if err := tuple.Validate(doc); err != nil {
		t.Errorf("tuple: unexpected error %v", err)
	}
}

func TestUnknownType(t *testing.T) {
	_, err := Parse(map[string]interface{}{"type": "float"})
	if err == nil {
		t.Errorf("missing error for unknown type")
	}
}

func TestCombinators(t *testing.T) {
	s := mustSchema(t, `{
	  "type": "object",
	  "properties": {
	    "id":    {"oneOf": [{"type": "string"}]},
	    "email": {"type": "string", "format": "email"},
	    "tag":   {"const": "x"},
	    "kind":  {"anyOf": [{"type": "integer"}, {"enum": ["a", "b"]}]},
	    "name":  {"not": {"type": "null"}}
	  }
	}`)
	if err := s.Validate(mustJSON(t, `{"id": "1", "email": "a@example.com", "tag": "x", "kind": "a", "name": "Ann"}`)); err != nil {
		t.Errorf("Unexpected error %v", err)
	}

	err := s.Validate(mustJSON(t, `{"id": 1, "email": "nope", "tag": "y", "kind": true, "name": null}`))
	got := strings.Join(errorlist.Lines(err), "\n")
	for _, elem := range []string{"$.id", "$.email", "$.tag", "$.kind", "$.name"} {
		if !strings.Contains(got, "element "+elem+":") {
			t.Errorf("Missing violation of %s in\n%s", elem, got)
		}
	}
}

func TestMissingSchema(t *testing.T) {
	var s *Schema
	if err := s.Validate(map[string]interface{}{}); err == nil {
		t.Errorf("Got nil, want error for nil schema")
	}
	if err := (&Schema{}).Validate(map[string]interface{}{"any": 1}); err != nil {
		t.Errorf("Empty schema: unexpected error %v", err)
	}
}

func TestSchemaDecoding(t *testing.T) {
	var fromJSON, fromYAML Schema
	if err := json.Unmarshal([]byte(`{"type": "array", "items": [{"type": "integer"}]}`), &fromJSON); err != nil {
		t.Fatal(err)
	}
	if err := yaml.Unmarshal([]byte("type: array\nitems:\n  - type: integer\n"), &fromYAML); err != nil {
		t.Fatal(err)
	}
	for i, s := range []*Schema{&fromJSON, &fromYAML} {
		if err := s.Validate([]interface{}{1, 2}); err != nil {
			t.Errorf("%d. Unexpected error %v", i, err)
		}
		if err := s.Validate([]interface{}{1, "two"}); err == nil {
			t.Errorf("%d. Missing error for second element", i)
		}
	}
	data, err := json.Marshal(&fromJSON)
	if err != nil || string(data) != `{"items":[{"type":"integer"}],"type":"array"}` {
		t.Errorf("Got %s, %v", data, err)
	}
}

var elementTests = []struct {
	pointer, want string
}{
	{"", "$"},
	{"/users/0/name", "$.users[0].name"},
	{"/first-name", `$["first-name"]`},
	{"/a~1b", `$["a/b"]`},
}

func TestElement(t *testing.T) {
	for _, tc := range elementTests {
		if got := Element(tc.pointer); got != tc.want {
			t.Errorf("%q: Got %s, want %s", tc.pointer, got, tc.want)
		}
	}
}
