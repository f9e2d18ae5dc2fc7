// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/capture"
	"github.com/vdobler/tasty/check"
	"github.com/vdobler/tasty/scope"
)

func newTasty(t *testing.T, d *Driver, host string) *tasty.Tasty {
	t.Helper()
	env, err := tasty.NewEnv(d, "perf")
	if err != nil {
		t.Fatal(err)
	}
	app, err := tasty.NewApp("shop", &tasty.AppConfig{
		Host: map[string]string{"perf": host},
	}, env)
	if err != nil {
		t.Fatal(err)
	}
	if err := app.DeclareAll([]tasty.Declaration{
		{URL: "users", Methods: []string{"get", "post"}},
		{URL: "orders", Host: map[string]string{"perf": "http://orders.perf"}},
	}); err != nil {
		t.Fatal(err)
	}
	tt, err := tasty.New(env, app, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tt
}

func request(t *testing.T, tt *tasty.Tasty, name, verb string, call tasty.Call) tasty.Action {
	t.Helper()
	a, err := tt.Request(name, verb, call)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestRequestEntry(t *testing.T) {
	g := NewWithT(t)
	tt := newTasty(t, New(Options{}), "http://shop.perf")

	a := request(t, tt, "users", "post", tasty.Call{Body: map[string]interface{}{"name": "${n}"}})
	g.Expect(a).To(BeAssignableToTypeOf(&Step{}))
	g.Expect(a.(*Step).Entry).To(Equal(Entry{
		"post": map[string]interface{}{
			"url":  "/users",
			"json": map[string]interface{}{"name": "{{ n }}"},
		},
	}))

	_, err := a.Run(context.Background(), scope.Scope{"n": "Ann"})
	g.Expect(err).To(Equal(ErrNotExecutable))
}

func TestRequestEntryParts(t *testing.T) {
	g := NewWithT(t)
	tt := newTasty(t, New(Options{}), "http://shop.perf")
	res := tt.App.Resource("users")
	res.SetHeaders(map[string]interface{}{"Authorization": "Bearer ${token}"})

	a := request(t, tt, "users", "get", tasty.Call{
		Path:   "/${id}",
		Params: map[string]interface{}{"page": "${page}"},
		Capture: capture.List{
			{As: "id", JSON: "$.id"},
			{As: "etag", JSON: "#etag"},
		},
	})
	entry := a.(*Step).Entry["get"].(map[string]interface{})
	g.Expect(entry).To(HaveKeyWithValue("url", "/users/{{ id }}"))
	g.Expect(entry).To(HaveKeyWithValue("headers", map[string]interface{}{"Authorization": "Bearer {{ token }}"}))
	g.Expect(entry).To(HaveKeyWithValue("qs", map[string]interface{}{"page": "{{ page }}"}))
	g.Expect(entry).To(HaveKeyWithValue("capture", []interface{}{
		map[string]interface{}{"as": "id", "json": "$.id"},
	}))
	g.Expect(entry).NotTo(HaveKey("json"))

	other := request(t, tt, "orders", "get", tasty.Call{})
	g.Expect(other.(*Step).Entry["get"]).To(HaveKeyWithValue("url", "http://orders.perf/orders"))
}

func TestCaseFlow(t *testing.T) {
	g := NewWithT(t)
	d := New(Options{})
	tt := newTasty(t, d, "http://shop.perf")
	get := request(t, tt, "users", "get", tasty.Call{})
	post := request(t, tt, "users", "post", tasty.Call{Body: map[string]interface{}{"a": 1.0}})

	r, err := tt.Case(context.Background(), "shopping", []tasty.Action{get},
		tasty.Series(get, tt.Think(2)),
		tt.Parallel(get, post),
		tt.Test("ignored", get, check.StatusCode{Expect: 200}),
		tt.Log("done ${id}"),
	)
	g.Expect(err).NotTo(HaveOccurred())
	sc := r.(*Scenario)
	g.Expect(sc.Title()).To(Equal("shopping"))
	g.Expect(sc.Flow).To(HaveLen(4))
	g.Expect(sc.Flow[0]).To(HaveKey("get"))
	g.Expect(sc.Flow[1]).To(Equal(Entry{"think": 2.0}))
	g.Expect(sc.Flow[2]["parallel"]).To(HaveLen(2))
	g.Expect(sc.Flow[3]).To(Equal(Entry{"log": "done {{ id }}"}))
}

func TestNestedSeriesRejected(t *testing.T) {
	g := NewWithT(t)
	tt := newTasty(t, New(Options{}), "http://shop.perf")
	get := request(t, tt, "users", "get", tasty.Call{})
	_, err := tt.Case(context.Background(), "bad", nil, tt.Parallel(get, tt.Series(get, get)))
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring(ErrNestedSeries.Error()))

	foreign := tasty.ActionFunc(func(context.Context, scope.Scope) (scope.Scope, error) { return nil, nil })
	_, err = tt.Case(context.Background(), "bad", nil, foreign)
	g.Expect(err).To(HaveOccurred())
}

func TestConfig(t *testing.T) {
	g := NewWithT(t)

	cfg, err := NewConfig("http://x", nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Target).To(Equal("http://x"))
	g.Expect(cfg.TLS.RejectUnauthorized).To(BeFalse())
	g.Expect(cfg.Phases).To(Equal([]Phase{{Duration: 10, ArrivalRate: 1}}))
	g.Expect(cfg.HTTP.TimeoutDuration().Seconds()).To(BeNumerically("==", 10))

	cfg, err = NewConfig("http://x", map[string]interface{}{
		"http":   map[string]interface{}{"timeout": "2"},
		"phases": []interface{}{map[string]interface{}{"duration": 5, "arrivalRate": 2, "rampTo": 4}},
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Phases[0].Arrivals()).To(Equal(15))
	g.Expect(cfg.HTTP.TimeoutDuration().Seconds()).To(BeNumerically("==", 2))

	// Every phase is validated, not just the first one.
	_, err = NewConfig("http://x", map[string]interface{}{
		"phases": []interface{}{
			map[string]interface{}{"duration": 5, "arrivalRate": 2},
			map[string]interface{}{"duration": 5},
		},
	})
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("arrivalRate"))

	_, err = NewConfig("http://x", map[string]interface{}{
		"tls": map[string]interface{}{"rejectUnauthorized": "no"},
	})
	g.Expect(err).To(HaveOccurred())
}

func TestDocumentJSON(t *testing.T) {
	g := NewWithT(t)
	d := New(Options{Config: map[string]interface{}{"variables": map[string]interface{}{"n": "Ann"}}})
	tt := newTasty(t, d, "http://shop.perf")
	sc, _ := tt.Case(context.Background(), "s", nil, request(t, tt, "users", "get", tasty.Call{}))

	doc, err := d.Document([]tasty.Runnable{sc})
	g.Expect(err).NotTo(HaveOccurred())
	raw, err := json.Marshal(doc)
	g.Expect(err).NotTo(HaveOccurred())

	var back map[string]interface{}
	g.Expect(json.Unmarshal(raw, &back)).To(Succeed())
	g.Expect(back).To(HaveKeyWithValue("config", HaveKeyWithValue("target", "http://shop.perf")))
	g.Expect(back).To(HaveKeyWithValue("scenarios", ConsistOf(
		map[string]interface{}{
			"name": "s",
			"flow": []interface{}{map[string]interface{}{"get": map[string]interface{}{"url": "/users"}}},
		},
	)))
}

func TestArtilleryEngine(t *testing.T) {
	g := NewWithT(t)
	out := filepath.Join(t.TempDir(), "doc.json")
	d := New(Options{
		Engine: Artillery{Binary: "echo", Output: out},
		Config: map[string]interface{}{"phases": []interface{}{map[string]interface{}{"duration": 2, "arrivalRate": 3}}},
	})
	tt := newTasty(t, d, "http://shop.perf")
	sc, _ := tt.Case(context.Background(), "s", nil, request(t, tt, "users", "get", tasty.Call{}))

	buf := &bytes.Buffer{}
	outcome, err := d.Run(context.Background(), []tasty.Runnable{sc}, false, tasty.RunOptions{Log: buf})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(outcome.Failed()).To(BeFalse())
	g.Expect(outcome.(*Report).Scenarios).To(Equal(6))
	g.Expect(buf.String()).To(ContainSubstring("run " + out))

	written, err := ioutil.ReadFile(out)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(written)).To(ContainSubstring(`"url": "/users"`))
}

func TestInProcessCancelled(t *testing.T) {
	g := NewWithT(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := &Document{
		Config: Config{
			HTTP:   HTTP{Timeout: 1},
			Phases: []Phase{{Duration: 100, ArrivalRate: 1}},
		},
		Scenarios: []*Scenario{{Name: "idle"}},
	}
	report, err := InProcess{}.Run(ctx, doc, ioutil.Discard)
	g.Expect(err).To(Equal(context.Canceled))
	g.Expect(report.Scenarios).To(Equal(0))
}

func TestInProcessEngine(t *testing.T) {
	g := NewWithT(t)
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"id": 17}`))
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/17") {
			w.WriteHeader(http.StatusNotFound)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	d := New(Options{
		Engine: InProcess{},
		Config: map[string]interface{}{"phases": []interface{}{map[string]interface{}{"duration": 1, "arrivalRate": 4}}},
	})
	tt := newTasty(t, d, server.URL)
	sc, err := tt.Case(context.Background(), "create and read", nil,
		request(t, tt, "users", "post", tasty.Call{
			Body:    map[string]interface{}{"name": "x"},
			Capture: capture.List{{As: "id", JSON: "$.id"}},
		}),
		tt.Parallel(
			request(t, tt, "users", "get", tasty.Call{Path: "${id}"}),
			request(t, tt, "users", "get", tasty.Call{Path: "${id}"}),
		),
		tt.Log("read ${id}"),
	)
	g.Expect(err).NotTo(HaveOccurred())

	buf := &bytes.Buffer{}
	outcome, err := d.Run(context.Background(), []tasty.Runnable{sc}, false, tasty.RunOptions{Log: buf})
	g.Expect(err).NotTo(HaveOccurred())
	report := outcome.(*Report)
	g.Expect(report.Scenarios).To(Equal(4))
	g.Expect(report.Completed).To(Equal(4))
	g.Expect(report.Requests).To(Equal(12))
	g.Expect(report.Codes).To(Equal(map[int]int{200: 12}))
	g.Expect(report.Latency.Count).To(Equal(12))
	g.Expect(atomic.LoadInt32(&hits)).To(BeNumerically("==", 12))
	g.Expect(strings.Count(buf.String(), "read 17")).To(Equal(4))
	g.Expect(buf.String()).To(ContainSubstring("latency:"))
}
