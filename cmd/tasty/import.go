// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"

	"github.com/vdobler/tasty/postman"
)

type importCmd struct {
	collection string
}

func registerImport(app *kingpin.Application) (*kingpin.CmdClause, command) {
	c := &importCmd{}
	cmd := app.Command("import", "Print the resource declarations of a Postman v2 collection.")
	cmd.Arg("collection", "Collection file.").Required().StringVar(&c.collection)
	return cmd, c
}

func (c *importCmd) run(g *globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	g.setupLogging(cfg, nil)

	col, err := postman.Load(c.collection)
	if err != nil {
		return err
	}
	ds, err := col.Declarations()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]interface{}{"resources": ds}); err != nil {
		return err
	}
	return enc.Close()
}
