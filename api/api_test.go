// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/functional"
	"github.com/vdobler/tasty/history"
	"github.com/vdobler/tasty/load"
	"github.com/vdobler/tasty/logstream"
	"github.com/vdobler/tasty/runner"
)

type nopEngine struct{}

func (nopEngine) Name() string { return "nop" }

func (nopEngine) Run(context.Context, *load.Document, io.Writer) (*load.Report, error) {
	return &load.Report{Engine: "nop"}, nil
}

type fixture struct {
	api     *httptest.Server
	history *history.Store
	stream  *logstream.Stream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	t.Cleanup(app.Close)

	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "func"), 0755)
	ioutil.WriteFile(filepath.Join(dir, "func", "ping.yaml"), []byte(`
title: ping
steps:
  - test: pong
    send: {request: "ping.get"}
    checks: [{Check: StatusCode, Expect: 200}]
`), 0644)

	f := &fixture{}
	var err error
	if f.history, err = history.Open(""); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.history.Close() })
	if f.stream, err = logstream.Open(filepath.Join(t.TempDir(), "wal")); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.stream.Close() })

	r, err := runner.New(runner.Options{
		Dir:          dir,
		Env:          "test",
		App:          tasty.AppConfig{Host: map[string]string{"test": app.URL}},
		Declarations: []tasty.Declaration{{URL: "ping"}},
		Drivers: map[tasty.RunType]tasty.Driver{
			tasty.Functional: functional.New(functional.Options{}),
			tasty.Load:       load.New(load.Options{Engine: nopEngine{}}),
		},
		Stream:  f.stream,
		History: f.history,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.api = httptest.NewServer(New(context.Background(), r, f.history, f.stream).Router())
	t.Cleanup(f.api.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, v interface{}) int {
	t.Helper()
	req, _ := http.NewRequest(method, f.api.URL+path, strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) waitIdle(t *testing.T) StatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var s StatusResponse
		f.do(t, "GET", "/status", "", &s)
		if s.Status != runner.InProcess {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish")
	return StatusResponse{}
}

func TestStatusAndFilters(t *testing.T) {
	f := newFixture(t)

	var s StatusResponse
	if code := f.do(t, "GET", "/status", "", &s); code != 200 || s.Status != runner.Idle || s.Type != "func" {
		t.Errorf("Got %d %+v", code, s)
	}

	var m map[string]bool
	if code := f.do(t, "GET", "/filters/func", "", &m); code != 200 || len(m) != 1 {
		t.Errorf("Got %d %v", code, m)
	}
	if code := f.do(t, "PUT", "/filters/func", `["nothing"]`, nil); code != http.StatusNoContent {
		t.Errorf("Got %d, want 204", code)
	}
	m = nil
	f.do(t, "GET", "/filters/func", "", &m)
	for file, sel := range m {
		if sel {
			t.Errorf("Got %s selected", file)
		}
	}
	if code := f.do(t, "PUT", "/filters/func", `{`, nil); code != http.StatusBadRequest {
		t.Errorf("Got %d, want 400", code)
	}
	if code := f.do(t, "GET", "/filters/smoke", "", nil); code != http.StatusNotFound {
		t.Errorf("Got %d, want 404", code)
	}
}

func TestRunAndHistory(t *testing.T) {
	f := newFixture(t)

	var run history.Run
	if code := f.do(t, "POST", "/run", `{"type": "func"}`, &run); code != http.StatusAccepted || run.ID == "" {
		t.Fatalf("Got %d %+v", code, run)
	}
	s := f.waitIdle(t)
	if s.Status != runner.InPending || s.Last == nil || s.Last.ID != run.ID || s.Last.Failed {
		t.Errorf("Got %+v", s)
	}

	var runs []history.Run
	if code := f.do(t, "GET", "/history?limit=5", "", &runs); code != 200 || len(runs) != 1 {
		t.Errorf("Got %d %+v", code, runs)
	}
	var rec history.Run
	if code := f.do(t, "GET", "/history/"+run.ID, "", &rec); code != 200 || rec.Summary == "" {
		t.Errorf("Got %d %+v", code, rec)
	}
	if code := f.do(t, "GET", "/history/nope", "", nil); code != http.StatusNotFound {
		t.Errorf("Got %d, want 404", code)
	}
	if code := f.do(t, "POST", "/run", `[`, nil); code != http.StatusBadRequest {
		t.Errorf("Got %d, want 400", code)
	}
}

func TestLogStream(t *testing.T) {
	f := newFixture(t)
	f.stream.Write([]byte("before"))

	url := "ws" + strings.TrimPrefix(f.api.URL, "http") + "/log?from=1"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, msg, err := c.ReadMessage()
	if err != nil || string(msg) != "before" {
		t.Fatalf("Got %q, %v, want replayed entry", msg, err)
	}

	// The subscription is registered before the replay is sent.
	f.stream.Write([]byte("after"))
	_, msg, err = c.ReadMessage()
	if err != nil || string(msg) != "after" {
		t.Errorf("Got %q, %v, want live entry", msg, err)
	}
}
