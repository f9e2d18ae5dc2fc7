// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/mock"
)

type mockCmd struct {
	addr string
}

func registerMock(app *kingpin.Application) (*kingpin.CmdClause, command) {
	c := &mockCmd{}
	cmd := app.Command("mock", "Serve the mocked responses of the declared resources.")
	cmd.Flag("addr", "Listen address, default from the configuration.").StringVar(&c.addr)
	return cmd, c
}

func (c *mockCmd) run(g *globals) error {
	e, err := g.setup(false, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	t, err := e.runner.Tasty(tasty.Functional)
	if err != nil {
		return err
	}
	addr := c.addr
	if addr == "" {
		addr = e.cfg.Mock.Addr
	}
	mocks := mock.FromApp(t.App)
	printf("Serving %d mocks on %s\n", len(mocks), addr)

	ctx, cancel := interruptible()
	defer cancel()
	return mock.Serve(ctx, addr, mocks)
}
