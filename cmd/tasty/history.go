// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"time"

	"gopkg.in/alecthomas/kingpin.v2"
)

type historyCmd struct {
	limit int
}

func registerHistory(app *kingpin.Application) (*kingpin.CmdClause, command) {
	c := &historyCmd{}
	cmd := app.Command("history", "List stored runs, newest first.")
	cmd.Flag("limit", "Number of runs to list, 0 lists all.").Short('n').Default("20").IntVar(&c.limit)
	return cmd, c
}

func (c *historyCmd) run(g *globals) error {
	e, err := g.setup(true, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	runs, err := e.history.List(c.limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		mark := pass("PASS")
		if r.Failed {
			mark = fail("FAIL")
		}
		parallel := ""
		if r.Parallel {
			parallel = " parallel"
		}
		printf("%s  %s  %-4s%s  %s  %s\n", mark, r.Start.Format("2006-01-02 15:04:05"),
			r.Type, parallel, r.Duration.Round(time.Millisecond), r.ID)
		if r.Summary != "" {
			printf("      %s\n", r.Summary)
		}
		if r.Error != "" {
			printf("      %s\n", fail(r.Error))
		}
	}
	return nil
}
