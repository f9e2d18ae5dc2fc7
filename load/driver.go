// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package load implements the driver which turns cases into the flows of
// a load test document instead of executing them.
//
// A request becomes an entry like
//     {"post": {"url": "/users", "json": {"name": "{{ n }}"}}}
// with ${...} placeholders translated to the {{ ... }} syntax of the load
// engine. The document is executed by an Engine: the external artillery
// process or the InProcess engine.
package load

import (
	"context"
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/check"
	"github.com/vdobler/tasty/definition"
	"github.com/vdobler/tasty/template"
)

// Options configure a Driver.
type Options struct {
	// Engine executing the document, Artillery{} if nil.
	Engine Engine

	// Config is merged over DefaultConfig.
	Config map[string]interface{}
}

// Driver is the load tasty.Driver.
type Driver struct {
	engine Engine
	config map[string]interface{}
	log    zerolog.Logger
}

var _ tasty.Driver = (*Driver)(nil)

// New returns a load driver.
func New(opts Options) *Driver {
	engine := opts.Engine
	if engine == nil {
		engine = Artillery{}
	}
	return &Driver{
		engine: engine,
		config: opts.Config,
		log:    logger.With().Str("component", "load").Logger(),
	}
}

// Type implements tasty.Driver.
func (d *Driver) Type() tasty.RunType { return tasty.Load }

// Get implements tasty.Driver by loading the case definition files.
func (d *Driver) Get(t *tasty.Tasty, files []string) ([]tasty.Runnable, error) {
	return definition.Runnables(context.Background(), t, files)
}

// Document assembles the load document of the scenarios in tests.
func (d *Driver) Document(tests []tasty.Runnable) (*Document, error) {
	doc := &Document{}
	target := ""
	for _, r := range tests {
		sc, ok := r.(*Scenario)
		if !ok {
			return nil, errors.Errorf("%q is a %T, not a load scenario", r.Title(), r)
		}
		if target == "" {
			target = sc.target
		}
		doc.Scenarios = append(doc.Scenarios, sc)
	}
	cfg, err := NewConfig(target, d.config)
	if err != nil {
		return nil, err
	}
	doc.Config = cfg
	return doc, nil
}

// Run implements tasty.Driver. Scenarios always run concurrently in a
// load test, parallel is ignored.
func (d *Driver) Run(ctx context.Context, tests []tasty.Runnable, parallel bool, opts tasty.RunOptions) (tasty.Outcome, error) {
	doc, err := d.Document(tests)
	if err != nil {
		return nil, err
	}
	w := opts.Log
	if w == nil {
		w = ioutil.Discard
	}
	for _, sc := range doc.Scenarios {
		opts.Events.FireSuiteStart(sc.Name)
	}
	d.log.Info().
		Str("engine", d.engine.Name()).
		Str("target", doc.Config.Target).
		Int("scenarios", len(doc.Scenarios)).
		Msg("Starting load test")
	report, err := d.engine.Run(ctx, doc, w)
	for _, sc := range doc.Scenarios {
		opts.Events.FireSuiteEnd(sc.Name)
	}
	if err != nil {
		return report, errors.WithMessage(err, d.engine.Name())
	}
	io.WriteString(w, report.Summary()+"\n")
	return report, nil
}

// Request implements tasty.Driver. No request is sent: the returned
// step carries the flow entry.
func (d *Driver) Request(spec tasty.RequestSpec) tasty.Action {
	entry, err := requestEntry(spec)
	if err != nil {
		err = errors.WithMessagef(err, "%s %s", spec.Method(), spec.Sources.BaseURL)
	}
	return &Step{Entry: entry, Err: err}
}

// Case implements tasty.Driver. Load flows have no lifecycle: prepare
// actions are ignored and tests are dropped from the flow.
func (d *Driver) Case(ctx context.Context, title string, actions []tasty.Action, t *tasty.Tasty, prepare []tasty.Action) (tasty.Runnable, error) {
	if len(prepare) > 0 {
		d.log.Warn().Str("case", title).Msg("Prepare actions are ignored in load tests")
	}
	flow, err := Flatten(actions)
	if err != nil {
		return nil, errors.WithMessagef(err, "case %q", title)
	}
	sc := &Scenario{Name: title, Flow: flow}
	if t != nil {
		sc.target = t.App.Host()
	}
	return sc, nil
}

// Test implements tasty.Driver. Load tests have no assertions.
func (d *Driver) Test(string, tasty.Action, check.List, *tasty.Tasty) tasty.Action {
	return nil
}

// Tests implements tasty.Driver. Load tests have no assertions.
func (d *Driver) Tests(string, tasty.Rows, tasty.Action, check.List, bool, *tasty.Tasty) tasty.Action {
	return nil
}

// Think implements tasty.Driver.
func (d *Driver) Think(seconds float64) tasty.Action {
	return &Step{Entry: Entry{"think": seconds}}
}

// Log implements tasty.Driver.
func (d *Driver) Log(message string) tasty.Action {
	return &Step{Entry: Entry{"log": template.Mustache(message)}}
}
