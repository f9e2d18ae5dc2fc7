// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/fatih/color"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/functional"
	"github.com/vdobler/tasty/load"
)

var (
	pass    = color.New(color.FgGreen).SprintFunc()
	fail    = color.New(color.FgRed, color.Bold).SprintFunc()
	pending = color.New(color.FgYellow).SprintFunc()
)

type runCmd struct {
	parallel bool
	filters  []string
	files    []string
}

func registerRun(app *kingpin.Application) (*kingpin.CmdClause, command) {
	c := &runCmd{}
	cmd := app.Command("run", "Run tests.").Default()
	cmd.Flag("parallel", "Run the test cases in parallel.").Short('p').BoolVar(&c.parallel)
	cmd.Flag("filter", "Run only files containing this substring (repeatable).").StringsVar(&c.filters)
	cmd.Arg("files", "Test files, default are all files of the type's test directory.").StringsVar(&c.files)
	return cmd, c
}

func (c *runCmd) run(g *globals) error {
	e, err := g.setup(true, os.Stdout)
	if err != nil {
		return err
	}
	defer e.Close()

	typ := e.runner.ParseType(e.cfg.Type)
	e.runner.SetFilters(typ, c.filters)
	parallel := c.parallel || (typ == tasty.Functional && e.cfg.Func.Parallel)

	ctx, cancel := interruptible()
	defer cancel()

	var files []string
	if len(c.files) > 0 {
		files = c.files
	}
	run, outcome, err := e.runner.Run(ctx, string(typ), parallel, files)
	if err != nil {
		return err
	}

	summarize(outcome)
	printf("run %s\n", run.ID)
	if outcome.Failed() {
		return errFailed
	}
	return nil
}

// summarize prints the coloured summary of a run.
func summarize(outcome tasty.Outcome) {
	switch o := outcome.(type) {
	case *functional.Stats:
		printf("%s  %s  %s  (%d tests in %d suites, %s)\n",
			pass(o.Passes, " passing"),
			fail(o.Failures, " failing"),
			pending(o.Pending, " pending"),
			o.Tests, o.Suites, o.Duration)
	case *load.Report:
		if o.Failed() {
			printf("%s\n", fail(o.Summary()))
		} else {
			printf("%s\n", pass(o.Summary()))
		}
	default:
		printf("%s\n", outcome.Summary())
	}
}
