// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kr/pretty"

	"github.com/vdobler/tasty/scope"
	"github.com/vdobler/tasty/template"
)

func eval(s scope.Scope) Evaluator {
	return template.Evaluator{Scope: s}
}

func TestBodyPrecedence(t *testing.T) {
	src := Sources{
		Method:   "POST",
		Host:     "http://localhost:8080",
		BaseURL:  "users",
		Resource: Layer{Body: map[string]interface{}{"id": 1.0, "name": "x"}},
		Cache:    Layer{Body: map[string]interface{}{"name": "y"}},
		Call:     Layer{Body: map[string]interface{}{"id": 2.0}},
	}
	d, err := Build(Default, src, eval(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := map[string]interface{}{"id": 2.0, "name": "y"}
	if !reflect.DeepEqual(d.Body, want) {
		t.Errorf("Got body %v, want %v", d.Body, want)
	}
	if !d.Structured {
		t.Errorf("Body not structured")
	}
	if d.Method != "post" || d.URL != "http://localhost:8080/users" {
		t.Errorf("Got %s %s", d.Method, d.URL)
	}
	if ct := ContentType(d.Headers); ct != "application/json" {
		t.Errorf("Got content type %q", ct)
	}
}

func TestBodyTemplated(t *testing.T) {
	src := Sources{
		Method:  "post",
		BaseURL: "users",
		Call:    Layer{Body: map[string]interface{}{"name": "${n}"}},
	}
	d, err := Build(Default, src, eval(scope.Scope{"n": "Ann"}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if want := map[string]interface{}{"name": "Ann"}; !reflect.DeepEqual(d.Body, want) {
		t.Errorf("Got %v, want %v", d.Body, want)
	}
	if d.URL != "/users" {
		t.Errorf("Got url %q", d.URL)
	}
}

func TestDeepMergeNested(t *testing.T) {
	src := Sources{
		Method: "put",
		Resource: Layer{
			Headers: map[string]interface{}{"content-type": "application/json"},
			Body: map[string]interface{}{
				"user": map[string]interface{}{"name": "x", "age": 1.0},
				"tags": []interface{}{"a", "b"},
			},
		},
		Call: Layer{Body: map[string]interface{}{
			"user": map[string]interface{}{"age": 2.0},
			"tags": []interface{}{"c"},
		}},
	}
	d, err := Build(Default, src, eval(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := map[string]interface{}{
		"user": map[string]interface{}{"name": "x", "age": 2.0},
		"tags": []interface{}{"c"},
	}
	if !reflect.DeepEqual(d.Body, want) {
		t.Errorf("Mismatch: %v", pretty.Diff(d.Body, want))
	}
}

func TestRawBodyNotEvaluated(t *testing.T) {
	src := Sources{
		Method:   "post",
		BaseURL:  "upload",
		Resource: Layer{Headers: map[string]interface{}{"Content-Type": "text/plain"}, Body: "default"},
		Call:     Layer{Body: "hello ${n}"},
	}
	d, err := Build(Default, src, eval(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.Body != "hello ${n}" || d.Structured {
		t.Errorf("Got %#v (structured=%t)", d.Body, d.Structured)
	}
}

func TestHeaderPrecedence(t *testing.T) {
	src := Sources{
		Method:  "get",
		BaseURL: "users",
		Resource: Layer{Headers: map[string]interface{}{
			"Authorization": "${never}", // resource headers are literal
			"Accept":        "text/html",
			"X-A":           "resource",
		}},
		Cache: Layer{Headers: map[string]interface{}{"accept": "application/json", "X-B": "${b}"}},
		Call:  Layer{Headers: map[string]interface{}{"X-A": "call"}},
	}
	d, err := Build(Default, src, eval(scope.Scope{"b": "cached"}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := map[string]interface{}{
		"Authorization": "${never}",
		"accept":        "application/json",
		"X-A":           "call",
		"X-B":           "cached",
	}
	if !reflect.DeepEqual(d.Headers, want) {
		t.Errorf("Mismatch: %v", pretty.Diff(d.Headers, want))
	}
}

func TestParamsAndPath(t *testing.T) {
	src := Sources{
		Method:   "get",
		Host:     "https://api.example.org/",
		BaseURL:  "/users/",
		Path:     "${id}",
		Resource: Layer{Params: map[string]interface{}{"limit": 10.0, "q": "x"}},
		Call:     Layer{Params: map[string]interface{}{"q": "${q}"}},
	}
	d, err := Build(Default, src, eval(scope.Scope{"id": 7.0, "q": "ann"}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.URL != "https://api.example.org/users/7" {
		t.Errorf("Got url %q", d.URL)
	}
	if want := map[string]interface{}{"limit": 10.0, "q": "ann"}; !reflect.DeepEqual(d.Params, want) {
		t.Errorf("Got params %v", d.Params)
	}
}

func TestJoinURL(t *testing.T) {
	for _, tc := range []struct{ host, base, path, want string }{
		{"", "users", "", "/users"},
		{"", "users", "/7", "/users/7"},
		{"", "users", "7", "/users/7"},
		{"http://h", "users", "?a=b", "http://h/users?a=b"},
		{"http://h/", "/a/b/", "c", "http://h/a/b/c"},
	} {
		if got := JoinURL(tc.host, tc.base, tc.path); got != tc.want {
			t.Errorf("JoinURL(%q, %q, %q) = %q, want %q", tc.host, tc.base, tc.path, got, tc.want)
		}
	}
}

func TestUndefinedVariableFails(t *testing.T) {
	src := Sources{Method: "get", BaseURL: "users", Path: "/${id}"}
	_, err := Build(Default, src, eval(nil))
	if err == nil {
		t.Fatal("missing error")
	}
}

func TestStagesAreReplaceable(t *testing.T) {
	stamp := func(acc Descriptor, src Sources, ev Evaluator) (Descriptor, error) {
		acc.Headers = map[string]interface{}{"X-Stamp": "1"}
		return acc, nil
	}
	fail := func(acc Descriptor, src Sources, ev Evaluator) (Descriptor, error) {
		return acc, errors.New("boom")
	}
	d, err := Build([]Stage{URL, stamp}, Sources{BaseURL: "a"}, nil)
	if err != nil || d.Headers["X-Stamp"] != "1" || d.URL != "/a" {
		t.Errorf("Got %+v, %v", d, err)
	}
	if _, err := Build([]Stage{URL, fail, stamp}, Sources{BaseURL: "a"}, nil); err == nil {
		t.Errorf("missing error")
	}
}

func TestMustacheEvaluator(t *testing.T) {
	src := Sources{
		Method:  "post",
		BaseURL: "users",
		Call:    Layer{Body: map[string]interface{}{"name": "${n}"}},
	}
	d, err := Build(Default, src, template.MustacheEvaluator{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if want := map[string]interface{}{"name": "{{ n }}"}; !reflect.DeepEqual(d.Body, want) {
		t.Errorf("Got %v, want %v", d.Body, want)
	}
}

func TestAux(t *testing.T) {
	src := Sources{
		Method:   "post",
		BaseURL:  "upload",
		Resource: Layer{Form: map[string]interface{}{"kind": "avatar"}},
		Call:     Layer{Files: map[string]string{"file": "testdata/a.png"}},
	}
	d, err := Build(Default, src, eval(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.Files["file"] != "testdata/a.png" || d.Form["kind"] != "avatar" {
		t.Errorf("Got files %v form %v", d.Files, d.Form)
	}
}
