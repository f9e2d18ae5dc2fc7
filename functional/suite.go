// Copyright 2016 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package functional

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/scope"
)

// A Suite is a declared test case: setup, tests and teardown.
type Suite struct {
	Name string
	tasty.Buckets

	t *tasty.Tasty
}

// Title implements tasty.Runnable.
func (s *Suite) Title() string { return s.Name }

// SuiteResult is the outcome of one executed suite.
type SuiteResult struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Results  []tasty.TestResult

	// HookErrors are failures of setup and teardown actions.
	HookErrors []error
}

// Execute runs the suite in a clone of the run context.
//
// Before runs once, then every test runs between its BeforeEach and
// AfterEach groups, then After runs. A failing Before marks all tests as
// pending, After still runs. The captures of setup and of the tests are
// visible to all later actions of the suite.
func (s *Suite) Execute(ctx context.Context, ev tasty.Events, w io.Writer) *SuiteResult {
	sr := &SuiteResult{Name: s.Name, Started: time.Now()}
	ev.FireSuiteStart(s.Name)
	fmt.Fprintf(w, "%s\n", s.Name)

	var cur scope.Scope
	if s.t != nil {
		cur = s.t.Context()
	}
	hook := func(name string, a tasty.Action) error {
		delta, err := a.Run(ctx, cur)
		if err != nil {
			err = errors.WithMessagef(err, "%q hook", name)
			sr.HookErrors = append(sr.HookErrors, err)
			fmt.Fprintf(w, "  FAIL %s\n", err)
			return err
		}
		cur = scope.Merge(cur, delta)
		return nil
	}

	var setupErr error
	for _, a := range s.Before {
		if setupErr = hook("before all", a); setupErr != nil {
			break
		}
	}

	for _, test := range s.Tests {
		var results []tasty.TestResult
		if setupErr != nil {
			results = []tasty.TestResult{pending(s.Name, test.TestTitle(), setupErr)}
		} else {
			results = s.runTest(ctx, test, &cur, hook)
		}
		for _, r := range results {
			report(w, r)
			ev.FireTestEnd(r)
		}
		sr.Results = append(sr.Results, results...)
	}

	for _, a := range s.After {
		hook("after all", a)
	}

	sr.Duration = time.Since(sr.Started)
	ev.FireSuiteEnd(s.Name)
	return sr
}

func (s *Suite) runTest(ctx context.Context, test tasty.TestAction, cur *scope.Scope, hook func(string, tasty.Action) error) []tasty.TestResult {
	for _, each := range s.BeforeEach {
		if err := hook("before each", each); err != nil {
			return []tasty.TestResult{pending(s.Name, test.TestTitle(), err)}
		}
	}

	var results []tasty.TestResult
	var delta scope.Scope
	if x, ok := test.(executor); ok {
		results, delta = x.execute(ctx, s.Name, *cur)
	} else {
		start := time.Now()
		r := tasty.TestResult{Suite: s.Name, Title: test.TestTitle(), Status: tasty.Pass}
		var err error
		if delta, err = test.Run(ctx, *cur); err != nil {
			r.Status, r.Error = tasty.Fail, err
		}
		r.Duration = time.Since(start)
		results = []tasty.TestResult{r}
	}
	*cur = scope.Merge(*cur, delta)

	for _, each := range s.AfterEach {
		hook("after each", each)
	}
	return results
}

func pending(suite, title string, cause error) tasty.TestResult {
	return tasty.TestResult{
		Suite:  suite,
		Title:  title,
		Status: tasty.Pending,
		Error:  cause,
	}
}

func report(w io.Writer, r tasty.TestResult) {
	switch r.Status {
	case tasty.Pass:
		fmt.Fprintf(w, "  PASS %s (%dms)\n", r.Title, r.Duration.Milliseconds())
	case tasty.Pending:
		fmt.Fprintf(w, "  PENDING %s\n", r.Title)
	default:
		fmt.Fprintf(w, "  %s %s (%dms)\n", upper(r.Status), r.Title, r.Duration.Milliseconds())
		if r.Error != nil {
			for _, line := range errorLines(r.Error) {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
		if r.TraceLink != "" {
			fmt.Fprintf(w, "      trace: %s\n", r.TraceLink)
		}
	}
}
