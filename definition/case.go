// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/check"
)

// Case is a declared test case.
type Case struct {
	Title   string `json:"title"`
	Prepare []Step `json:"prepare,omitempty"`
	Steps   []Step `json:"steps"`
}

// Step is one action of a case. Exactly one of Request, Set, Series,
// Parallel, Each, Test, Tests, Think and Log selects the kind of step.
type Step struct {
	// Request invokes a verb of a resource: "users.get" or
	// "user-by-id.delete". The embedded call options apply.
	Request string `json:"request,omitempty"`

	// Set fills the call cache of the named resource from the embedded
	// call options. The cache is consumed by the next request step of
	// that resource.
	Set string `json:"set,omitempty"`

	tasty.Call

	Series   []Step `json:"series,omitempty"`
	Parallel []Step `json:"parallel,omitempty"`
	Each     []Step `json:"each,omitempty"`

	// Test and Tests are titles of tests sending Send and checking
	// Checks. Tests runs once per row of Rows or of the context variable
	// RowsVar.
	Test         string        `json:"test,omitempty"`
	Tests        string        `json:"tests,omitempty"`
	Send         *Step         `json:"send,omitempty"`
	Checks       check.List    `json:"checks,omitempty"`
	Rows         []interface{} `json:"rows,omitempty"`
	RowsVar      string        `json:"rowsVar,omitempty"`
	ParallelRows bool          `json:"parallelRows,omitempty"`

	Think *float64 `json:"think,omitempty"`
	Log   string   `json:"log,omitempty"`
}

// Cases decodes the cases of f.
func (f *File) Cases() ([]Case, error) {
	soup, err := f.Decode()
	if err != nil {
		return nil, err
	}
	if m, ok := soup.(map[string]interface{}); ok {
		if list, ok := m["cases"]; ok {
			soup = list
		} else {
			soup = []interface{}{m}
		}
	}
	var cases []Case
	if err := decodeTo(soup, &cases); err != nil {
		return nil, errors.Wrapf(err, "file %s", f.Name)
	}
	for i, c := range cases {
		if c.Title == "" {
			return nil, errors.Errorf("file %s: case %d has no title", f.Name, i+1)
		}
	}
	return cases, nil
}

// Runnables loads the cases of files and declares them with t.
func Runnables(ctx context.Context, t *tasty.Tasty, files []string) ([]tasty.Runnable, error) {
	var runnables []tasty.Runnable
	for _, name := range files {
		f, err := LoadFile(name)
		if err != nil {
			return nil, err
		}
		cases, err := f.Cases()
		if err != nil {
			return nil, err
		}
		for _, c := range cases {
			r, err := c.Declare(ctx, t)
			if err != nil {
				return nil, errors.WithMessagef(err, "file %s", f.Name)
			}
			runnables = append(runnables, r)
		}
	}
	return runnables, nil
}

// Declare compiles c and declares it as a case of t.
func (c Case) Declare(ctx context.Context, t *tasty.Tasty) (tasty.Runnable, error) {
	prepare, err := CompileAll(t, c.Prepare)
	if err != nil {
		return nil, errors.WithMessagef(err, "case %q prepare", c.Title)
	}
	actions, err := CompileAll(t, c.Steps)
	if err != nil {
		return nil, errors.WithMessagef(err, "case %q", c.Title)
	}
	return t.Case(ctx, c.Title, prepare, actions...)
}

// CompileAll compiles steps in order. Set steps yield no action.
func CompileAll(t *tasty.Tasty, steps []Step) ([]tasty.Action, error) {
	var actions []tasty.Action
	for i, s := range steps {
		a, err := s.Compile(t)
		if err != nil {
			return nil, errors.WithMessagef(err, "step %d", i+1)
		}
		if a != nil {
			actions = append(actions, a)
		}
	}
	return actions, nil
}

// Compile turns s into an action of t.
func (s Step) Compile(t *tasty.Tasty) (tasty.Action, error) {
	switch {
	case s.Request != "":
		name, verb, err := splitRequest(s.Request)
		if err != nil {
			return nil, err
		}
		return t.Request(name, verb, s.Call)
	case s.Set != "":
		res := t.App.Resource(s.Set)
		if res == nil {
			return nil, errors.Errorf("no resource %q", s.Set)
		}
		if s.Headers != nil {
			res.SetHeaders(s.Headers)
		}
		if s.Params != nil {
			res.SetParams(s.Params)
		}
		if s.Body != nil {
			res.SetBody(s.Body)
		}
		if s.Files != nil {
			res.SetFiles(s.Files)
		}
		if s.Mock != nil {
			res.SetMock(s.Mock)
		}
		return nil, nil
	case s.Series != nil:
		actions, err := CompileAll(t, s.Series)
		return t.Series(actions...), err
	case s.Parallel != nil:
		actions, err := CompileAll(t, s.Parallel)
		return t.Parallel(actions...), err
	case s.Each != nil:
		actions, err := CompileAll(t, s.Each)
		return t.Each(actions...), err
	case s.Test != "" || s.Tests != "":
		if s.Send == nil {
			return nil, errors.New("test without send")
		}
		request, err := s.Send.Compile(t)
		if err != nil {
			return nil, errors.WithMessage(err, "send")
		}
		if s.Test != "" {
			return t.Test(s.Test, request, s.Checks...), nil
		}
		rows := tasty.Rows{Var: s.RowsVar, List: s.Rows}
		return t.Tests(s.Tests, rows, request, s.ParallelRows, s.Checks...), nil
	case s.Think != nil:
		return t.Think(*s.Think), nil
	case s.Log != "":
		return t.Log(s.Log), nil
	}
	return nil, errors.New("empty step")
}

// splitRequest splits "resource.verb" at the last dot.
func splitRequest(r string) (string, string, error) {
	i := strings.LastIndex(r, ".")
	if i <= 0 || i == len(r)-1 {
		return "", "", errors.Errorf("malformed request %q, want resource.verb", r)
	}
	return r[:i], strings.ToLower(r[i+1:]), nil
}
