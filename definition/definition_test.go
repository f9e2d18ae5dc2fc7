// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/definition"
	"github.com/vdobler/tasty/functional"
	"github.com/vdobler/tasty/load"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const declarationsYAML = `
resources:
  - url: users
    methods: [get, post]
    mock:
      post: {id: 7, name: "${name}"}
      get: {id: 7, name: "Ann"}
  - url: orders
    alias: order
`

const casesHJSON = `
[
  {
    title: user roundtrip
    steps: [
      { request: "users.post", body: { name: "${name}" },
        capture: [ { as: "id", json: "$.id" } ] }
      { think: 1.5 }
      { test: "read back"
        send: { request: "users.get", path: "${id}" }
        checks: [ { Check: "JSONEquals", Element: "$.name", Expect: "Ann" } ] }
      { log: "created ${id}" }
    ]
  }
]
`

func TestDecodeFormats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, content string
	}{
		{"a.hjson", "{\n  url: users\n  methods: [\"get\"]\n}"},
		{"b.yaml", "url: users\nmethods: [get]\n"},
		{"c.json", `[{"url": "users", "methods": ["get"]}]`},
	}
	for _, tc := range tests {
		f, err := definition.LoadFile(write(t, dir, tc.name, tc.content))
		if err != nil {
			t.Fatal(err)
		}
		ds, err := f.Declarations()
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if len(ds) != 1 || ds[0].URL != "users" || len(ds[0].Methods) != 1 {
			t.Errorf("%s: Got %# v", tc.name, pretty.Formatter(ds))
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	dir := t.TempDir()
	f, err := definition.LoadFile(write(t, dir, "bad.json", "{"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Decode(); err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Errorf("Got %v, want error naming the file", err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "z.yaml", "x: 1")
	write(t, dir, "sub/a.hjson", "{}")
	write(t, dir, "notes.txt", "ignored")

	files, err := definition.Discover(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || !strings.HasSuffix(files[0], "sub/a.hjson") ||
		!strings.HasSuffix(files[1], "z.yaml") {
		t.Errorf("Got %v", files)
	}

	files, err = definition.Discover(filepath.Join(dir, "missing"))
	if err != nil || len(files) != 0 {
		t.Errorf("Got %v, %v for missing directory", files, err)
	}
}

func newTasty(t *testing.T, driver tasty.Driver, dir string) *tasty.Tasty {
	t.Helper()
	env, err := tasty.NewEnv(driver, "test")
	if err != nil {
		t.Fatal(err)
	}
	app, err := tasty.NewApp("shop", &tasty.AppConfig{
		Host: map[string]string{"test": "http://shop.test"},
	}, env)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := definition.Declarations([]string{write(t, dir, "resources.yaml", declarationsYAML)})
	if err != nil {
		t.Fatal(err)
	}
	if err := app.DeclareAll(ds); err != nil {
		t.Fatal(err)
	}
	tt, err := tasty.New(env, app, map[string]interface{}{"name": "Ann"})
	if err != nil {
		t.Fatal(err)
	}
	return tt
}

func TestRunnablesFunctional(t *testing.T) {
	dir := t.TempDir()
	driver := functional.New(functional.Options{})
	tt := newTasty(t, driver, dir)

	runnables, err := driver.Get(tt, []string{write(t, dir, "cases.hjson", casesHJSON)})
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if len(runnables) != 1 || runnables[0].Title() != "user roundtrip" {
		t.Fatalf("Got %# v", pretty.Formatter(runnables))
	}

	buf := &bytes.Buffer{}
	outcome, err := driver.Run(context.Background(), runnables, false, tasty.RunOptions{Log: buf})
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if outcome.Failed() {
		t.Errorf("Got failure %s\n%s", outcome.Summary(), buf.String())
	}
	stats := outcome.(*functional.Stats)
	if stats.Tests != 1 || stats.Passes != 1 {
		t.Errorf("Got %d tests, %d passes, want 1, 1", stats.Tests, stats.Passes)
	}
}

func TestRunnablesLoad(t *testing.T) {
	dir := t.TempDir()
	driver := load.New(load.Options{})
	tt := newTasty(t, driver, dir)

	runnables, err := driver.Get(tt, []string{write(t, dir, "cases.hjson", casesHJSON)})
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	doc, err := driver.Document(runnables)
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if doc.Config.Target != "http://shop.test" {
		t.Errorf("Got target %q", doc.Config.Target)
	}
	flow := doc.Scenarios[0].Flow
	if len(flow) != 3 {
		t.Fatalf("Got %# v, want post, think and log", pretty.Formatter(flow))
	}
	post, ok := flow[0]["post"].(map[string]interface{})
	if !ok || post["url"] != "/users" {
		t.Errorf("Got %# v", pretty.Formatter(flow[0]))
	}
	if got := flow[1]["think"]; got != 1.5 {
		t.Errorf("Got think %v, want 1.5", got)
	}
	if got := flow[2]["log"]; got != "created {{ id }}" {
		t.Errorf("Got log %v", got)
	}
}

func TestSetStep(t *testing.T) {
	dir := t.TempDir()
	driver := load.New(load.Options{})
	tt := newTasty(t, driver, dir)

	steps := []definition.Step{
		{Set: "users", Call: tasty.Call{Headers: map[string]interface{}{"X-Token": "abc"}}},
		{Request: "users.get"},
		{Request: "users.get"},
	}
	actions, err := definition.CompileAll(tt, steps)
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("Got %d actions, want 2", len(actions))
	}
	first := actions[0].(*load.Step).Entry["get"].(map[string]interface{})
	if h, _ := first["headers"].(map[string]interface{}); h["X-Token"] != "abc" {
		t.Errorf("Got %v, want cached header on first request", first)
	}
	second := actions[1].(*load.Step).Entry["get"].(map[string]interface{})
	if _, ok := second["headers"]; ok {
		t.Errorf("Got %v, cache must be consumed", second)
	}
}

func TestCompileErrors(t *testing.T) {
	dir := t.TempDir()
	tt := newTasty(t, load.New(load.Options{}), dir)

	tests := []struct {
		step definition.Step
		want string
	}{
		{definition.Step{}, "empty step"},
		{definition.Step{Request: "users"}, "malformed request"},
		{definition.Step{Request: "nope.get"}, "nope"},
		{definition.Step{Request: "users.delete"}, "delete"},
		{definition.Step{Set: "nope"}, "no resource"},
		{definition.Step{Test: "x"}, "without send"},
	}
	for i, tc := range tests {
		_, err := tc.step.Compile(tt)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%d: Got %v, want error containing %q", i, err, tc.want)
		}
	}
}

func TestCasesRequireTitle(t *testing.T) {
	dir := t.TempDir()
	f, err := definition.LoadFile(write(t, dir, "c.yaml", "cases:\n  - steps: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Cases(); err == nil || !strings.Contains(err.Error(), "no title") {
		t.Errorf("Got %v, want missing title error", err)
	}
}
