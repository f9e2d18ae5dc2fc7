// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tasty

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

// DefaultEnvironment is the environment used if none is given.
const DefaultEnvironment = "develop"

// Env is the execution context of one run: the selected driver and the
// target environment. It is created once per run and handed to NewApp
// and New; nothing reads the run type from global state.
type Env struct {
	Driver Driver

	// Name of the environment, e.g. "develop" or "staging". It selects
	// the host and trace URL of an App.
	Name string

	Log zerolog.Logger
}

// NewEnv returns an execution context for driver in environment name.
func NewEnv(driver Driver, name string) (*Env, error) {
	if driver == nil {
		return nil, errors.New("tasty: nil driver")
	}
	if name == "" {
		name = DefaultEnvironment
	}
	return &Env{
		Driver: driver,
		Name:   name,
		Log: logger.With().
			Str("env", name).
			Str("type", string(driver.Type())).
			Logger(),
	}, nil
}

// Type of the run.
func (e *Env) Type() RunType {
	return e.Driver.Type()
}
