// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tasty

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty/check"
	"github.com/vdobler/tasty/scope"
)

// Tasty is the orchestrator of one run. It holds the execution context,
// the application under test and the run context shared by all cases.
type Tasty struct {
	Env *Env
	App *App

	mu      sync.Mutex
	context scope.Scope
}

// New returns an orchestrator for app. The initial run context is a clone
// of initial.
func New(env *Env, app *App, initial scope.Scope) (*Tasty, error) {
	if env == nil {
		return nil, &DeclarationError{What: "tasty", Reason: "missing execution context"}
	}
	if app == nil {
		return nil, &DeclarationError{What: "tasty", Reason: "missing app"}
	}
	if app.Env != env {
		return nil, &DeclarationError{What: "tasty", Reason: "app belongs to another execution context"}
	}
	c := initial.Clone()
	if c == nil {
		c = scope.Scope{}
	}
	return &Tasty{Env: env, App: app, context: c}, nil
}

// Driver of the run.
func (t *Tasty) Driver() Driver { return t.Env.Driver }

// Context returns a snapshot of the run context.
func (t *Tasty) Context() scope.Scope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.context.Clone()
}

// Update merges delta into the run context.
func (t *Tasty) Update(delta scope.Scope) {
	if len(delta) == 0 {
		return
	}
	t.mu.Lock()
	t.context = scope.Merge(t.context, delta)
	t.mu.Unlock()
}

// Send runs a in the current run context and merges its captures into
// the run context.
func (t *Tasty) Send(ctx context.Context, a Action) (scope.Scope, error) {
	if a == nil {
		return scope.Scope{}, nil
	}
	delta, err := a.Run(ctx, t.Context())
	if err != nil {
		return nil, err
	}
	t.Update(delta)
	return delta, nil
}

// Request invokes verb of the resource declared under name.
func (t *Tasty) Request(name, verb string, call Call) (Action, error) {
	res := t.App.Resource(name)
	if res == nil {
		return nil, errors.Errorf("no resource %q", name)
	}
	return res.Invoke(verb, call)
}

// Series is the package level Series.
func (t *Tasty) Series(actions ...Action) Action { return Series(actions...) }

// Parallel is the package level Parallel.
func (t *Tasty) Parallel(actions ...Action) Action { return Parallel(actions...) }

// Each is the package level Each.
func (t *Tasty) Each(actions ...Action) Action { return Each(actions...) }

// Case declares a test case. The prepare actions run once, before the
// case is registered.
func (t *Tasty) Case(ctx context.Context, title string, prepare []Action, actions ...Action) (Runnable, error) {
	return t.Env.Driver.Case(ctx, title, actions, t, prepare)
}

// Test declares a test asserting the response of request.
func (t *Tasty) Test(title string, request Action, assertions ...check.Check) Action {
	return t.Env.Driver.Test(title, request, check.List(assertions), t)
}

// Tests declares one test per row.
func (t *Tasty) Tests(title string, rows Rows, request Action, parallel bool, assertions ...check.Check) Action {
	return t.Env.Driver.Tests(title, rows, request, check.List(assertions), parallel, t)
}

// Think pauses for seconds.
func (t *Tasty) Think(seconds float64) Action { return t.Env.Driver.Think(seconds) }

// Log logs message.
func (t *Tasty) Log(message string) Action { return t.Env.Driver.Log(message) }
