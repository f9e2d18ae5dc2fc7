// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"encoding/json"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

func body(v interface{}) *response.Response {
	return &response.Response{Status: 200, Body: v}
}

func TestCaptureNil(t *testing.T) {
	got, err := Capture(nil, body(map[string]interface{}{"a": 1.0}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Got %v, want empty scope", got)
	}
}

var captureTests = []struct {
	list List
	doc  *response.Response
	want scope.Scope
}{
	{
		List{{As: "x", JSON: "$.a.b"}},
		body(map[string]interface{}{"a": map[string]interface{}{"b": 7.0}}),
		scope.Scope{"x": 7.0},
	},
	{
		List{{As: "a", JSON: "$.a"}, {As: "b", JSON: "$.bb.b"}},
		body(map[string]interface{}{"a": 1.0, "bb": map[string]interface{}{"b": 3.0}}),
		scope.Scope{"a": 1.0, "b": 3.0},
	},
	{
		List{{As: "ct", JSON: "#content-type"}},
		&response.Response{Header: map[string]interface{}{"content-type": "json"}},
		scope.Scope{"ct": "json"},
	},
	{
		List{{As: "id", JSON: "#X-Request-Id"}},
		&response.Response{Header: map[string]interface{}{"x-request-id": "abc"}},
		scope.Scope{"id": "abc"},
	},
	{
		List{{As: "v", JSON: `#$["x-v"]`}},
		&response.Response{Header: map[string]interface{}{"x-v": "1"}},
		scope.Scope{"v": "1"},
	},
	{
		// Later captures shadow earlier ones.
		List{{As: "x", JSON: "$.a"}, {As: "x", JSON: "$.b"}},
		body(map[string]interface{}{"a": 1.0, "b": 2.0}),
		scope.Scope{"x": 2.0},
	},
	{
		List{{As: "first", JSON: "$.users[0].name"}, {As: "all", JSON: "$"}},
		body(map[string]interface{}{"users": []interface{}{
			map[string]interface{}{"name": "Ann"},
		}}),
		scope.Scope{
			"first": "Ann",
			"all": map[string]interface{}{"users": []interface{}{
				map[string]interface{}{"name": "Ann"},
			}},
		},
	},
	{
		// No match is not an error.
		List{{As: "x", JSON: "$.nope"}},
		body(map[string]interface{}{"a": 1.0}),
		scope.Scope{"x": nil},
	},
	{
		List{{As: "x", JSON: "$.a"}},
		body(nil),
		scope.Scope{"x": nil},
	},
	{
		List{{As: "uid", JSON: "$.user-id"}, {As: "n", JSON: `$.a["b c"][1]`}},
		body(map[string]interface{}{
			"user-id": "u7",
			"a":       map[string]interface{}{"b c": []interface{}{1.0, 2.0}},
		}),
		scope.Scope{"uid": "u7", "n": 2.0},
	},
	{
		// Indexing into a string matches nothing.
		List{{As: "x", JSON: "$.a[0]"}},
		body(map[string]interface{}{"a": "text"}),
		scope.Scope{"x": nil},
	},
}

func TestCapture(t *testing.T) {
	for i, tc := range captureTests {
		got, err := Capture(tc.list, tc.doc)
		if err != nil {
			t.Errorf("%d. Unexpected error: %v", i, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%d. Got %#v, want %#v", i, got, tc.want)
		}
	}
}

func TestCaptureMalformed(t *testing.T) {
	for i, list := range []List{
		{{As: "x", JSON: "a.b"}},
		{{As: "x", JSON: "$a"}},
		{{As: "x", JSON: "$..a"}},
		{{JSON: "$.a"}},
		{{As: "x"}},
		{{As: "x", JSON: "$.a", Regexp: "a"}},
		{{As: "x", Regexp: "("}},
		{{As: "x", Regexp: "a(b)", Submatch: 2}},
	} {
		_, err := Capture(list, body(nil))
		if err == nil {
			t.Errorf("%d. Missing error", i)
			continue
		}
		if _, ok := err.(*MalformedError); !ok {
			t.Errorf("%d. Got %T, want *MalformedError", i, err)
		}
	}
}

func TestCaptureHTMLAndRegexp(t *testing.T) {
	r := &response.Response{
		Raw: []byte(`<html><head><meta name="_csrf" content="tok123"></head>
<body><div class="user"><span>Ann</span> Smith</div>Order #4711</body></html>`),
	}
	list := List{
		{As: "csrf", Selector: `meta[name="_csrf"]`, Attribute: "content"},
		{As: "user", Selector: "div.user"},
		{As: "order", Regexp: `Order #(\d+)`, Submatch: 1},
		{As: "missing", Selector: "p.none"},
	}
	got, err := Capture(list, r)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := scope.Scope{"csrf": "tok123", "user": "Ann Smith", "order": "4711", "missing": nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Got %#v, want %#v", got, want)
	}
}

func TestListDecoding(t *testing.T) {
	var single, multi List
	if err := json.Unmarshal([]byte(`{"as": "id", "json": "$.id"}`), &single); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(single) != 1 || single[0].As != "id" {
		t.Errorf("Got %#v", single)
	}
	if err := yaml.Unmarshal([]byte("- as: a\n  json: $.a\n- as: ct\n  json: '#content-type'\n"), &multi); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(multi) != 2 || !multi[1].IsHeader() {
		t.Errorf("Got %#v", multi)
	}
	if got := multi.WithoutHeaders(); len(got) != 1 || got[0].As != "a" {
		t.Errorf("Got %#v", got)
	}
}
