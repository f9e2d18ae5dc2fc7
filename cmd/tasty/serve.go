// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vdobler/tasty/api"
)

type serveCmd struct {
	addr string
}

func registerServe(app *kingpin.Application) (*kingpin.CmdClause, command) {
	c := &serveCmd{}
	cmd := app.Command("serve", "Start the control API.")
	cmd.Flag("addr", "Listen address, default from the configuration.").StringVar(&c.addr)
	return cmd, c
}

func (c *serveCmd) run(g *globals) error {
	e, err := g.setup(true, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	addr := c.addr
	if addr == "" {
		addr = e.cfg.Serve.Addr
	}
	ctx, cancel := interruptible()
	defer cancel()

	srv := &http.Server{
		Addr:    addr,
		Handler: api.New(ctx, e.runner, e.history, e.stream).Router(),
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info().Str("addr", addr).Msg("Control API listening")

	select {
	case err := <-errc:
		return errors.Wrap(err, "control API")
	case <-ctx.Done():
	}
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	return srv.Shutdown(sctx)
}
