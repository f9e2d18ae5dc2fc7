// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// tasty runs declarative functional and load tests against HTTP
// applications.
//
// Usage:
//
//     tasty run [flags] [files...]   run the tests of a type
//     tasty flow [files...]          print the load test document
//     tasty mock                     serve the resource mocks
//     tasty serve                    start the control API
//     tasty history                  list stored runs
//     tasty import <collection>      print declarations of a Postman collection
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vdobler/tasty/config"
	"github.com/vdobler/tasty/history"
	"github.com/vdobler/tasty/logstream"
	"github.com/vdobler/tasty/runner"
)

// Version of tasty.
const Version = "0.4.0"

// globals are the flags shared by all commands.
type globals struct {
	config  string
	verbose int
	env     string
	typ     string
	dir     string
}

// command is one sub-command.
type command interface {
	run(g *globals) error
}

// errFailed is returned by commands whose tests failed after the summary
// has been printed.
var errFailed = errors.New("tests failed")

func main() {
	app := kingpin.New("tasty", "Declarative HTTP API tests.")
	app.Version(Version)

	g := &globals{}
	app.Flag("config", "Configuration file.").Short('c').Default(config.DefaultFile).StringVar(&g.config)
	app.Flag("verbose", "Log more, repeat for trace output.").Short('v').CounterVar(&g.verbose)
	app.Flag("env", "Environment to test.").Short('e').Envar("TASTY_ENV").StringVar(&g.env)
	app.Flag("type", "Type of tests: func or load.").Short('t').Envar("TASTY_TYPE").StringVar(&g.typ)
	app.Flag("dir", "Root of the test directories.").Short('d').StringVar(&g.dir)

	commands := map[string]command{}
	register := func(cmd *kingpin.CmdClause, c command) { commands[cmd.FullCommand()] = c }
	register(registerRun(app))
	register(registerFlow(app))
	register(registerMock(app))
	register(registerServe(app))
	register(registerHistory(app))
	register(registerImport(app))

	selected, err := app.Parse(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("%s, try --help", err)
	}
	if err := commands[selected].run(g); err != nil {
		if errors.Is(err, errFailed) {
			os.Exit(1)
		}
		kingpin.Fatalf("%s", err)
	}
}

// load reads the configuration and applies the global flags.
func (g *globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, err
	}
	if g.env != "" {
		cfg.Env = g.env
	}
	if g.typ != "" {
		cfg.Type = g.typ
	}
	if g.dir != "" {
		cfg.Dir = g.dir
	}
	return cfg, nil
}

// setupLogging sends log output to stderr and, if not nil, to stream.
func (g *globals) setupLogging(cfg *config.Config, stream io.Writer) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	switch {
	case g.verbose >= 2:
		level = zerolog.TraceLevel
	case g.verbose == 1 && level > zerolog.DebugLevel:
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	if stream != nil {
		w = zerolog.MultiLevelWriter(w, stream)
	}
	logger.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// environment is everything a command working with a runner needs.
type environment struct {
	cfg     *config.Config
	stream  *logstream.Stream
	history *history.Store
	runner  *runner.Runner
}

func (e *environment) Close() {
	if e.stream != nil {
		e.stream.Close()
	}
	if e.history != nil {
		e.history.Close()
	}
}

// setup loads the configuration, opens run log and history and creates
// the runner. Output receives the run log if not nil.
func (g *globals) setup(withStores bool, output io.Writer) (*environment, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	e := &environment{cfg: cfg}
	if withStores {
		if e.stream, err = logstream.Open(cfg.Log.WAL); err != nil {
			return nil, err
		}
		if e.history, err = history.Open(cfg.History.Dir); err != nil {
			e.Close()
			return nil, err
		}
		g.setupLogging(cfg, e.stream)
	} else {
		g.setupLogging(cfg, nil)
	}

	opts, err := runner.FromConfig(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	opts.Stream = e.stream
	opts.History = e.history
	opts.Output = output
	if e.runner, err = runner.New(opts); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stdout, format, a...)
}
