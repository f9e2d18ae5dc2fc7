// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package functional

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/check"
	"github.com/vdobler/tasty/errorlist"
	"github.com/vdobler/tasty/scope"
	"github.com/vdobler/tasty/template"
)

// executor is implemented by the test actions of this driver.
type executor interface {
	tasty.TestAction
	execute(ctx context.Context, suite string, s scope.Scope) ([]tasty.TestResult, scope.Scope)
}

// Test asserts the response of one request.
type Test struct {
	Name    string
	Request tasty.Action
	Checks  check.List

	// Malformed is set if the checks could not be prepared.
	Malformed error
}

var _ executor = (*Test)(nil)

// TestTitle implements tasty.TestAction.
func (t *Test) TestTitle() string { return t.Name }

// Run implements tasty.Action. A failed test yields an error.
func (t *Test) Run(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	results, delta := t.execute(ctx, "", s)
	return delta, resultsError(results)
}

func (t *Test) execute(ctx context.Context, suite string, s scope.Scope) ([]tasty.TestResult, scope.Scope) {
	if t.Malformed != nil {
		return []tasty.TestResult{{
			Suite:  suite,
			Title:  t.Name,
			Status: tasty.Error,
			Error:  t.Malformed,
		}}, nil
	}
	result, ex := send(ctx, suite, t.Name, t.Request, s)
	if ex == nil {
		return []tasty.TestResult{result}, nil
	}
	assert(&result, ex, t.Checks, s)
	return []tasty.TestResult{result}, ex.Captured
}

// Table runs one test per row. Each row is bound as "test" in the
// context of its request; the title and the string fields of the checks
// are templates evaluated in that context.
type Table struct {
	Name     string
	Rows     tasty.Rows
	Request  tasty.Action
	Checks   check.List
	Parallel bool
}

var _ executor = (*Table)(nil)

// TestTitle implements tasty.TestAction.
func (t *Table) TestTitle() string { return t.Name }

// Run implements tasty.Action.
func (t *Table) Run(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	results, delta := t.execute(ctx, "", s)
	return delta, resultsError(results)
}

type row struct {
	title  string
	scope  scope.Scope
	result tasty.TestResult
	ex     *tasty.Exchange
}

func (t *Table) execute(ctx context.Context, suite string, s scope.Scope) ([]tasty.TestResult, scope.Scope) {
	list, err := t.Rows.Resolve(s)
	if err != nil {
		return []tasty.TestResult{{
			Suite:  suite,
			Title:  t.Name,
			Status: tasty.Error,
			Error:  err,
		}}, nil
	}

	rows := make([]*row, len(list))
	for i, data := range list {
		rs := s.With("test", data)
		title, err := template.EvalString(t.Name, rs)
		if err != nil {
			title = t.Name
		}
		rows[i] = &row{title: title, scope: rs}
	}

	sendRow := func(r *row, rs scope.Scope) {
		r.result, r.ex = send(ctx, suite, r.title, t.Request, rs)
	}
	if t.Parallel {
		// All requests go out first, assertions follow.
		var wg sync.WaitGroup
		for _, r := range rows {
			wg.Add(1)
			go func(r *row) {
				defer wg.Done()
				sendRow(r, r.scope.Clone())
			}(r)
		}
		wg.Wait()
	} else {
		for _, r := range rows {
			sendRow(r, r.scope)
		}
	}

	results := make([]tasty.TestResult, len(rows))
	delta := scope.Scope{}
	for i, r := range rows {
		if r.ex != nil {
			checks, err := check.Substitute(t.Checks, r.scope)
			if err != nil {
				r.result.Status, r.result.Error = tasty.Error, err
			} else {
				assert(&r.result, r.ex, checks, r.scope)
			}
			delta = scope.Merge(delta, r.ex.Captured)
		}
		results[i] = r.result
	}
	return results, delta
}

// send performs the request of a test. The returned exchange is nil if
// the request failed, result is set up accordingly.
func send(ctx context.Context, suite, title string, request tasty.Action, s scope.Scope) (tasty.TestResult, *tasty.Exchange) {
	result := tasty.TestResult{Suite: suite, Title: title}
	start := time.Now()
	ex, delta, err := exchange(ctx, request, s)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status, result.Error = tasty.Error, err
		return result, nil
	}
	ex.Captured = delta
	result.RequestID = ex.RequestID
	if ex.Resource != nil {
		result.TraceLink = ex.Resource.TraceLink(ex.RequestID)
	}
	return result, ex
}

// assert executes checks on the response of ex in the context s merged
// with the captures of the request.
func assert(result *tasty.TestResult, ex *tasty.Exchange, checks check.List, s scope.Scope) {
	if err := checks.Execute(ex.Response, scope.Merge(s, ex.Captured)); err != nil {
		result.Status, result.Error = tasty.Fail, err
		return
	}
	result.Status = tasty.Pass
}

func resultsError(results []tasty.TestResult) error {
	var el errorlist.List
	for _, r := range results {
		if r.Status != tasty.Pass {
			err := r.Error
			if err == nil {
				err = errors.New(r.Status.String())
			}
			el = el.Append(errors.WithMessage(err, r.Title))
		}
	}
	return el.AsError()
}
