// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package functional implements the driver which executes requests
// immediately and asserts their responses.
//
// Cases become suites with before, beforeEach, afterEach and after
// hooks. Every request carries a fresh X-Request-Id header which is
// reported with failures together with a link to the trace UI of the
// environment.
package functional

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/check"
	"github.com/vdobler/tasty/definition"
	"github.com/vdobler/tasty/scope"
)

// Options configure a Driver.
type Options struct {
	// Timeout of a single request. Zero means DefaultClientTimeout.
	Timeout time.Duration

	// Insecure disables TLS certificate verification.
	Insecure bool

	// Client replaces the http client built from Timeout and Insecure.
	Client *http.Client
}

// Driver is the functional tasty.Driver.
type Driver struct {
	client *http.Client
	log    zerolog.Logger
}

var _ tasty.Driver = (*Driver)(nil)

// New returns a functional driver.
func New(opts Options) *Driver {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultClientTimeout
		}
		client = &http.Client{
			Transport: newTransport(opts.Insecure),
			Timeout:   timeout,
		}
	}
	return &Driver{
		client: client,
		log:    logger.With().Str("component", "functional").Logger(),
	}
}

// Type implements tasty.Driver.
func (d *Driver) Type() tasty.RunType { return tasty.Functional }

// Get implements tasty.Driver by loading the case definition files.
func (d *Driver) Get(t *tasty.Tasty, files []string) ([]tasty.Runnable, error) {
	return definition.Runnables(context.Background(), t, files)
}

// Run implements tasty.Driver. Suites of a parallel run execute
// concurrently; the run then has no well-defined end and its duration is
// the duration of the longest suite.
func (d *Driver) Run(ctx context.Context, tests []tasty.Runnable, parallel bool, opts tasty.RunOptions) (tasty.Outcome, error) {
	suites := make([]*Suite, len(tests))
	for i, r := range tests {
		s, ok := r.(*Suite)
		if !ok {
			return nil, errors.Errorf("%q is a %T, not a functional suite", r.Title(), r)
		}
		suites[i] = s
	}
	w := opts.Log
	if w == nil {
		w = ioutil.Discard
	}

	stats := &Stats{Start: time.Now()}
	results := make([]*SuiteResult, len(suites))
	if parallel {
		var wg sync.WaitGroup
		var mu sync.Mutex
		for i, s := range suites {
			wg.Add(1)
			go func(i int, s *Suite) {
				defer wg.Done()
				// Lines of concurrent suites must not interleave.
				buf := &bytes.Buffer{}
				results[i] = s.Execute(ctx, opts.Events, buf)
				mu.Lock()
				io.Copy(w, buf)
				mu.Unlock()
			}(i, s)
		}
		wg.Wait()
		var longest time.Duration
		for _, sr := range results {
			if sr.Duration > longest {
				longest = sr.Duration
			}
		}
		stats.Duration = FormatDuration(longest)
	} else {
		var total time.Duration
		for i, s := range suites {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = s.Execute(ctx, opts.Events, w)
			total += results[i].Duration
		}
		end := time.Now()
		stats.End = &end
		stats.Duration = FormatDuration(total)
	}
	for _, sr := range results {
		if sr != nil {
			stats.account(sr)
		}
	}
	d.log.Info().
		Int("suites", stats.Suites).
		Int("passes", stats.Passes).
		Int("pending", stats.Pending).
		Int("failures", stats.Failures).
		Str("duration", stats.Duration).
		Msg("Run finished")
	return stats, nil
}

// Request implements tasty.Driver.
func (d *Driver) Request(spec tasty.RequestSpec) tasty.Action {
	return &Request{spec: spec, driver: d}
}

// Case implements tasty.Driver. The prepare actions run right away and
// their captures are merged into the run context.
func (d *Driver) Case(ctx context.Context, title string, actions []tasty.Action, t *tasty.Tasty, prepare []tasty.Action) (tasty.Runnable, error) {
	if len(prepare) > 0 {
		if _, err := t.Send(ctx, tasty.Series(prepare...)); err != nil {
			return nil, errors.WithMessagef(err, "prepare %q", title)
		}
	}
	return &Suite{Name: title, Buckets: tasty.Split(actions), t: t}, nil
}

// Test implements tasty.Driver.
func (d *Driver) Test(title string, request tasty.Action, assertions check.List, t *tasty.Tasty) tasty.Action {
	return &Test{
		Name:      title,
		Request:   request,
		Checks:    assertions,
		Malformed: assertions.Prepare(),
	}
}

// Tests implements tasty.Driver.
func (d *Driver) Tests(title string, rows tasty.Rows, request tasty.Action, assertions check.List, parallel bool, t *tasty.Tasty) tasty.Action {
	return &Table{
		Name:     title,
		Rows:     rows,
		Request:  request,
		Checks:   assertions,
		Parallel: parallel,
	}
}

// Think implements tasty.Driver. Functional runs do not pause.
func (d *Driver) Think(seconds float64) tasty.Action { return noop{} }

// Log implements tasty.Driver. Functional runs do not log messages of
// the load flow.
func (d *Driver) Log(message string) tasty.Action { return noop{} }

type noop struct{}

func (noop) Run(context.Context, scope.Scope) (scope.Scope, error) { return nil, nil }
