// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/capture"
	"github.com/vdobler/tasty/pipeline"
	"github.com/vdobler/tasty/scope"
	"github.com/vdobler/tasty/template"
)

var (
	// ErrNotExecutable is returned when a flow step is run directly.
	ErrNotExecutable = errors.New("load flow steps are not executable")

	// ErrNestedSeries is returned for a series inside a parallel group:
	// the entries of a parallel group are single requests.
	ErrNestedSeries = errors.New("series nested in parallel group")
)

// Entry is one entry of a flow, e.g. {"get": {"url": "/users"}},
// {"think": 2} or {"log": "created {{ id }}"}.
type Entry map[string]interface{}

// Step is the action the load driver produces: a declarative flow entry.
type Step struct {
	Entry Entry

	// Err is set if the entry could not be built.
	Err error
}

// Run implements tasty.Action. Steps are collected into flows, never run.
func (s *Step) Run(context.Context, scope.Scope) (scope.Scope, error) {
	return nil, ErrNotExecutable
}

// Scenario is the flow of one case.
type Scenario struct {
	Name string  `json:"name" yaml:"name"`
	Flow []Entry `json:"flow" yaml:"flow"`

	target string
}

// Title implements tasty.Runnable.
func (s *Scenario) Title() string { return s.Name }

// Flatten turns actions into flow entries. Series and Each groups are
// inlined, parallel groups become a single {"parallel": [...]} entry.
// Test actions are dropped.
func Flatten(actions []tasty.Action) ([]Entry, error) {
	return flatten(actions, false)
}

func flatten(actions []tasty.Action, inParallel bool) ([]Entry, error) {
	var flow []Entry
	for i, a := range actions {
		switch x := a.(type) {
		case nil:
		case *Step:
			if x.Err != nil {
				return nil, errors.WithMessagef(x.Err, "step %d", i+1)
			}
			flow = append(flow, x.Entry)
		case *tasty.SeriesNode:
			if inParallel {
				return nil, ErrNestedSeries
			}
			sub, err := flatten(x.Actions, false)
			if err != nil {
				return nil, err
			}
			flow = append(flow, sub...)
		case *tasty.EachNode:
			if inParallel {
				return nil, ErrNestedSeries
			}
			sub, err := flatten(x.Actions, false)
			if err != nil {
				return nil, err
			}
			flow = append(flow, sub...)
		case *tasty.ParallelNode:
			sub, err := flatten(x.Actions, true)
			if err != nil {
				return nil, err
			}
			if inParallel {
				flow = append(flow, sub...)
				continue
			}
			group := make([]interface{}, len(sub))
			for j, e := range sub {
				group[j] = map[string]interface{}(e)
			}
			flow = append(flow, Entry{"parallel": group})
		case tasty.TestAction:
			// Load flows have no assertions.
		default:
			return nil, errors.Errorf("step %d: %T cannot be part of a load flow", i+1, a)
		}
	}
	return flow, nil
}

// requestEntry builds the flow entry of one request. Placeholders are
// translated to {{ expr }} except in capture subtrees. Header captures are
// dropped: the load engines capture from bodies only.
func requestEntry(spec tasty.RequestSpec) (Entry, error) {
	src := spec.Sources
	src.Host = ""
	if spec.Resource != nil {
		if h, ok := spec.Resource.OwnHost(); ok {
			src.Host = h
		}
	}
	d, err := pipeline.Build(pipeline.Default, src, template.MustacheEvaluator{Skip: []string{"capture"}})
	if err != nil {
		return nil, err
	}

	req := map[string]interface{}{"url": d.URL}
	headers := d.Headers
	if d.Structured && !explicitContentType(src) {
		headers = withoutContentType(headers)
	}
	if len(headers) > 0 {
		req["headers"] = headers
	}
	if len(d.Params) > 0 {
		req["qs"] = d.Params
	}
	switch {
	case d.Structured && d.Body != nil:
		req["json"] = d.Body
	case d.Body != nil:
		req["body"] = d.Body
	}
	if len(d.Files) > 0 || len(d.Form) > 0 {
		form := map[string]interface{}{}
		for k, v := range d.Form {
			form[k] = v
		}
		for k, v := range d.Files {
			form[k] = map[string]interface{}{"fromFile": v}
		}
		req["formData"] = form
	}
	if c := captureEntries(spec.Capture.WithoutHeaders()); len(c) > 0 {
		req["capture"] = c
	}

	return Entry{spec.Method(): req}, nil
}

func captureEntries(list capture.List) []interface{} {
	var out []interface{}
	for _, s := range list {
		c := map[string]interface{}{"as": s.As}
		switch {
		case s.JSON != "":
			c["json"] = s.JSON
		case s.Selector != "":
			c["selector"] = s.Selector
			if s.Attribute != "" {
				c["attr"] = s.Attribute
			}
		case s.Regexp != "":
			c["regexp"] = s.Regexp
			if s.Submatch != 0 {
				c["group"] = s.Submatch
			}
		}
		out = append(out, c)
	}
	return out
}

func explicitContentType(src pipeline.Sources) bool {
	for _, l := range []pipeline.Layer{src.Resource, src.Cache, src.Call} {
		for k := range l.Headers {
			if strings.EqualFold(k, "content-type") {
				return true
			}
		}
	}
	return false
}

func withoutContentType(h map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for k, v := range h {
		if !strings.EqualFold(k, "content-type") {
			out[k] = v
		}
	}
	return out
}
