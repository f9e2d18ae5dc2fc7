// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/load"
)

type flowCmd struct {
	json  bool
	files []string
}

func registerFlow(app *kingpin.Application) (*kingpin.CmdClause, command) {
	c := &flowCmd{}
	cmd := app.Command("flow", "Print the load test document without running it.")
	cmd.Flag("json", "Print JSON instead of YAML.").BoolVar(&c.json)
	cmd.Arg("files", "Load test files, default are all files of the load test directory.").StringsVar(&c.files)
	return cmd, c
}

func (c *flowCmd) run(g *globals) error {
	e, err := g.setup(false, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	files := c.files
	if len(files) == 0 {
		if files, err = e.runner.Files(tasty.Load); err != nil {
			return err
		}
	}
	t, tests, err := e.runner.Load(tasty.Load, files)
	if err != nil {
		return err
	}
	driver, ok := t.Driver().(*load.Driver)
	if !ok {
		return errors.Errorf("load driver is a %T", t.Driver())
	}
	doc, err := driver.Document(tests)
	if err != nil {
		return err
	}

	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
