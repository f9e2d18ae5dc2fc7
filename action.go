// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tasty

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty/errorlist"
	"github.com/vdobler/tasty/pipeline"
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

// Action is one node of a test definition.
//
// Run executes the action in the context s and returns the values the
// action captured. It must not modify s.
type Action interface {
	Run(ctx context.Context, s scope.Scope) (scope.Scope, error)
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, s scope.Scope) (scope.Scope, error)

// Run implements Action.
func (f ActionFunc) Run(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	return f(ctx, s)
}

// TestAction is implemented by actions which are test assertion blocks.
// Case uses it as the marker which separates setup from teardown.
type TestAction interface {
	Action
	TestTitle() string
}

// Exchange is the outcome of one request.
type Exchange struct {
	Request   pipeline.Descriptor
	Response  *response.Response
	Captured  scope.Scope
	RequestID string
	Resource  *Resource
}

// Sender is implemented by actions issuing exactly one request.
type Sender interface {
	Action
	Send(ctx context.Context, s scope.Scope) (*Exchange, error)
}

// ----------------------------------------------------------------------------
// Series

// SeriesNode executes its actions strictly in order.
type SeriesNode struct {
	Actions []Action
}

// Series returns an action executing actions in order. The context of
// action i+1 is the context of action i merged with the captures of
// action i. The first failure aborts the series.
func Series(actions ...Action) *SeriesNode {
	return &SeriesNode{Actions: actions}
}

// Run implements Action. It returns all captures of the series.
func (sn *SeriesNode) Run(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	cur, delta := s, scope.Scope{}
	for i, a := range sn.Actions {
		if a == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := a.Run(ctx, cur)
		if err != nil {
			return nil, errors.WithMessagef(err, "step %d", i+1)
		}
		cur = scope.Merge(cur, out)
		delta = scope.Merge(delta, out)
	}
	return delta, nil
}

// ----------------------------------------------------------------------------
// Parallel

// ParallelNode executes its actions concurrently.
type ParallelNode struct {
	Actions []Action
}

// Parallel returns an action executing actions concurrently. Every action
// runs on its own clone of the same starting context. After all actions
// have settled their captures are merged in declaration order, later
// actions shadowing earlier ones. If any action fails the parallel action
// fails with the list of all failures; requests already issued by the
// other actions are not undone.
func Parallel(actions ...Action) *ParallelNode {
	return &ParallelNode{Actions: actions}
}

// Run implements Action.
func (pn *ParallelNode) Run(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	snapshot := s.Clone()
	results := make([]scope.Scope, len(pn.Actions))
	errs := make([]error, len(pn.Actions))

	var wg sync.WaitGroup
	for i, a := range pn.Actions {
		if a == nil {
			continue
		}
		wg.Add(1)
		go func(i int, a Action) {
			defer wg.Done()
			results[i], errs[i] = a.Run(ctx, snapshot.Clone())
		}(i, a)
	}
	wg.Wait()

	var el errorlist.List
	for i, err := range errs {
		if err != nil {
			el = el.Append(errors.WithMessagef(err, "branch %d", i+1))
		}
	}
	if len(el) > 0 {
		return nil, el.AsError()
	}
	return scope.Merge(results...), nil
}

// ----------------------------------------------------------------------------
// Each

// EachNode is a group of actions executed in series around every test of
// a case: before each test if it precedes the first test, after each test
// otherwise.
type EachNode struct {
	Actions []Action
}

// Each groups actions to run around every test.
func Each(actions ...Action) *EachNode {
	return &EachNode{Actions: actions}
}

// Run implements Action by running the group as a series.
func (en *EachNode) Run(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	return Series(en.Actions...).Run(ctx, s)
}
