// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tasty

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty/capture"
	"github.com/vdobler/tasty/check"
	"github.com/vdobler/tasty/pipeline"
	"github.com/vdobler/tasty/scope"
)

// RunType selects the Driver of a run.
type RunType string

// The known run types.
const (
	Functional RunType = "func"
	Load       RunType = "load"
)

// RunTypes lists the known run types.
var RunTypes = []RunType{Functional, Load}

// ErrUnknownRunType is returned by ParseRunType.
var ErrUnknownRunType = errors.New("unknown run type")

// ParseRunType parses s. The empty string is Functional.
func ParseRunType(s string) (RunType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "func", "functional":
		return Functional, nil
	case "load":
		return Load, nil
	}
	return Functional, errors.WithMessagef(ErrUnknownRunType, "%q", s)
}

// Driver is an execution backend. A Driver is selected once per run and
// every Resource and orchestration call of that run goes through it.
type Driver interface {
	// Type of the driver.
	Type() RunType

	// Get loads the definition files into runnable cases.
	Get(t *Tasty, files []string) ([]Runnable, error)

	// Run executes the cases, concurrently if parallel is set.
	Run(ctx context.Context, tests []Runnable, parallel bool, opts RunOptions) (Outcome, error)

	// Request turns one resource verb invocation into an action.
	Request(spec RequestSpec) Action

	// Case declares a test case.
	Case(ctx context.Context, title string, actions []Action, t *Tasty, prepare []Action) (Runnable, error)

	// Test declares a test asserting the response of request.
	Test(title string, request Action, assertions check.List, t *Tasty) Action

	// Tests declares one test per row.
	Tests(title string, rows Rows, request Action, assertions check.List, parallel bool, t *Tasty) Action

	// Think pauses for seconds.
	Think(seconds float64) Action

	// Log logs message which may contain placeholders.
	Log(message string) Action
}

// RequestSpec describes one invocation of a resource verb.
type RequestSpec struct {
	// Build resolves the request descriptor in a given context.
	Build func(s scope.Scope) (pipeline.Descriptor, error)

	// Sources are the unresolved inputs of Build.
	Sources pipeline.Sources

	// Mock, if non-nil, is returned as response body instead of sending
	// the request.
	Mock interface{}

	Capture  capture.List
	Resource *Resource
	Call     Call
	Cache    Cache
}

// Method of the request.
func (rs RequestSpec) Method() string {
	return strings.ToLower(rs.Sources.Method)
}

// Runnable is a declared test case ready to be run by its Driver.
type Runnable interface {
	Title() string
}

// Outcome is the result of Driver.Run.
type Outcome interface {
	// Failed reports whether the run failed.
	Failed() bool

	// Summary is a one-line description of the outcome.
	Summary() string
}

// RunOptions control Driver.Run.
type RunOptions struct {
	// Log receives the human readable log of the run.
	Log io.Writer

	// Events are called during the run.
	Events Events
}

// Events are callbacks invoked during a run. Nil callbacks are skipped.
// Callbacks may be called concurrently for parallel runs.
type Events struct {
	SuiteStart func(title string)
	TestEnd    func(result TestResult)
	SuiteEnd   func(title string)
}

// FireSuiteStart calls SuiteStart if set.
func (e Events) FireSuiteStart(title string) {
	if e.SuiteStart != nil {
		e.SuiteStart(title)
	}
}

// FireTestEnd calls TestEnd if set.
func (e Events) FireTestEnd(r TestResult) {
	if e.TestEnd != nil {
		e.TestEnd(r)
	}
}

// FireSuiteEnd calls SuiteEnd if set.
func (e Events) FireSuiteEnd(title string) {
	if e.SuiteEnd != nil {
		e.SuiteEnd(title)
	}
}

// TestResult is the outcome of one test.
type TestResult struct {
	Suite     string
	Title     string
	Status    Status
	Error     error
	Duration  time.Duration
	RequestID string
	TraceLink string
}

// Rows are the data rows of Tests: either literal rows or the name of a
// context variable holding an array.
type Rows struct {
	Var  string
	List []interface{}
}

// Resolve returns the rows, looking up Var in s if set.
func (r Rows) Resolve(s scope.Scope) ([]interface{}, error) {
	if r.Var == "" {
		return r.List, nil
	}
	v, err := s.Lookup(r.Var)
	if err != nil {
		return nil, errors.WithMessage(err, "rows")
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.Errorf("rows: %s is a %T, not an array", r.Var, v)
	}
	return list, nil
}
