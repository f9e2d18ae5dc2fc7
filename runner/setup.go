// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runner

import (
	"github.com/pkg/errors"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/config"
	"github.com/vdobler/tasty/definition"
	"github.com/vdobler/tasty/functional"
	"github.com/vdobler/tasty/load"
	"github.com/vdobler/tasty/postman"
)

// Drivers builds the static driver table from cfg.
func Drivers(cfg *config.Config) map[tasty.RunType]tasty.Driver {
	var engine load.Engine
	switch cfg.Load.Engine {
	case "inprocess":
		engine = load.InProcess{}
	default:
		engine = load.Artillery{Binary: cfg.Load.Artillery, Output: cfg.Load.Output}
	}
	return map[tasty.RunType]tasty.Driver{
		tasty.Functional: functional.New(functional.Options{
			Timeout:  cfg.Func.Timeout,
			Insecure: cfg.Func.Insecure,
		}),
		tasty.Load: load.New(load.Options{
			Engine: engine,
			Config: cfg.Load.Config,
		}),
	}
}

// Declarations reads the resource declarations below the application
// directory of cfg followed by those of its Postman collection.
func Declarations(cfg *config.Config) ([]tasty.Declaration, error) {
	files, err := definition.Discover(cfg.App.Dir)
	if err != nil {
		return nil, err
	}
	ds, err := definition.Declarations(files)
	if err != nil {
		return nil, err
	}
	if cfg.App.Postman == "" {
		return ds, nil
	}
	c, err := postman.Load(cfg.App.Postman)
	if err != nil {
		return nil, errors.WithMessage(err, "postman")
	}
	more, err := c.Declarations()
	if err != nil {
		return nil, errors.WithMessage(err, "postman")
	}
	return append(ds, more...), nil
}

// FromConfig returns the options of a runner configured by cfg.
func FromConfig(cfg *config.Config) (Options, error) {
	ds, err := Declarations(cfg)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Dir:     cfg.Dir,
		Env:     cfg.Env,
		AppName: cfg.App.Name,
		App: tasty.AppConfig{
			Name:  cfg.App.Name,
			Host:  cfg.App.Host,
			Trace: cfg.App.Trace,
		},
		Declarations: ds,
		Drivers:      Drivers(cfg),
	}, nil
}
