// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runner discovers and runs the functional or load tests of an
// application.
//
// The tests of run type "func" live below <dir>/func, the load tests
// below <dir>/load. Only one run is in process at a time.
package runner

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/definition"
	"github.com/vdobler/tasty/history"
	"github.com/vdobler/tasty/logstream"
	"github.com/vdobler/tasty/scope"
)

// Status of a Runner.
type Status string

// Runner states. A finished run leaves the runner InPending.
const (
	Idle      Status = "idle"
	InProcess Status = "inProcess"
	InPending Status = "inPending"
)

// ErrBusy is returned when a run is requested while one is in process.
var ErrBusy = errors.New("a run is in process")

// Options configure a Runner.
type Options struct {
	// Dir is the root of the test directories.
	Dir string

	// Env is the environment the tests run in.
	Env string

	// AppName, App and Declarations describe the application under test.
	AppName      string
	App          tasty.AppConfig
	Declarations []tasty.Declaration

	// Context is the initial context of every run.
	Context scope.Scope

	// Drivers is the static driver table.
	Drivers map[tasty.RunType]tasty.Driver

	// Stream receives the run log if not nil.
	Stream *logstream.Stream

	// Output receives the run log too if not nil.
	Output io.Writer

	// History records every run if not nil.
	History *history.Store
}

// Runner runs tests.
type Runner struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	status  Status
	typ     tasty.RunType
	filters map[tasty.RunType][]string
	last    *history.Run
}

// New returns an idle runner.
func New(opts Options) (*Runner, error) {
	for _, typ := range tasty.RunTypes {
		if opts.Drivers[typ] == nil {
			return nil, errors.Errorf("no driver for run type %s", typ)
		}
	}
	if opts.Env == "" {
		opts.Env = tasty.DefaultEnvironment
	}
	if opts.AppName == "" {
		opts.AppName = "app"
	}
	return &Runner{
		opts:    opts,
		log:     logger.With().Str("component", "runner").Logger(),
		status:  Idle,
		typ:     tasty.Functional,
		filters: map[tasty.RunType][]string{},
	}, nil
}

// Status returns the current status.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// CurrentType is the run type of the current or last run.
func (r *Runner) CurrentType() tasty.RunType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typ
}

// Last returns the record of the last started run or nil.
func (r *Runner) Last() *history.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	return &cp
}

// SetFilters selects the files of run type typ containing one of the
// given substrings. No filters select every file.
func (r *Runner) SetFilters(typ tasty.RunType, filters []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[typ] = append([]string(nil), filters...)
}

// Filters returns the filters of typ.
func (r *Runner) Filters(typ tasty.RunType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.filters[typ]...)
}

// Filter reports for each discovered file of typ whether it is selected.
func (r *Runner) Filter(typ tasty.RunType) (map[string]bool, error) {
	files, err := r.discover(typ)
	if err != nil {
		return nil, err
	}
	filters := r.Filters(typ)
	m := make(map[string]bool, len(files))
	for _, f := range files {
		m[f] = selected(f, filters)
	}
	return m, nil
}

// Files returns the selected test files of typ.
func (r *Runner) Files(typ tasty.RunType) ([]string, error) {
	files, err := r.discover(typ)
	if err != nil {
		return nil, err
	}
	filters := r.Filters(typ)
	var sel []string
	for _, f := range files {
		if selected(f, filters) {
			sel = append(sel, f)
		}
	}
	return sel, nil
}

func (r *Runner) discover(typ tasty.RunType) ([]string, error) {
	dir := strings.TrimSuffix(r.opts.Dir, "/") + "/" + string(typ)
	if r.opts.Dir == "" {
		dir = string(typ)
	}
	return definition.Discover(dir)
}

func selected(file string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.Contains(file, f) {
			return true
		}
	}
	return false
}

// ParseType parses a run type. Unknown types are logged and replaced by
// the functional type.
func (r *Runner) ParseType(s string) tasty.RunType {
	typ, err := tasty.ParseRunType(s)
	if err != nil {
		r.log.Warn().Str("type", s).Msgf("Type %s doesn't exist. Run %s tests.", s, typ)
	}
	return typ
}

// Run runs the tests of type typ. Nil files run the selected files of the
// test directory of typ.
func (r *Runner) Run(ctx context.Context, typ string, parallel bool, files []string) (*history.Run, tasty.Outcome, error) {
	run, err := r.begin(typ, parallel)
	if err != nil {
		return nil, nil, err
	}
	outcome, err := r.execute(ctx, run, files)
	return run, outcome, err
}

// Start is like Run but returns once the run has started. The channel
// receives the error of the run and is closed afterwards.
func (r *Runner) Start(ctx context.Context, typ string, parallel bool, files []string) (*history.Run, <-chan error, error) {
	run, err := r.begin(typ, parallel)
	if err != nil {
		return nil, nil, err
	}
	done := make(chan error, 1)
	cp := *run
	go func() {
		_, err := r.execute(ctx, run, files)
		done <- err
		close(done)
	}()
	return &cp, done, nil
}

func (r *Runner) begin(typ string, parallel bool) (*history.Run, error) {
	rt := r.ParseType(typ)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == InProcess {
		return nil, ErrBusy
	}
	r.status = InProcess
	r.typ = rt
	run := history.NewRun(string(rt), parallel)
	run.Env = r.opts.Env
	cp := *run
	r.last = &cp
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *history.Run, files []string) (outcome tasty.Outcome, err error) {
	log := r.log.With().Str("run", run.ID).Str("type", run.Type).Logger()
	defer func() {
		run.Duration = time.Since(run.Start)
		if err != nil {
			run.Failed = true
			run.Error = err.Error()
			log.Error().Err(err).Msg("Run failed")
		}
		cp := *run
		r.mu.Lock()
		r.status = InPending
		r.last = &cp
		r.mu.Unlock()
		r.record(run)
	}()

	typ := tasty.RunType(run.Type)
	if files == nil {
		if files, err = r.Files(typ); err != nil {
			return nil, err
		}
	}
	run.Files = files

	t, tests, err := r.Load(typ, files)
	if err != nil {
		return nil, err
	}
	log.Info().Int("files", len(files)).Int("tests", len(tests)).Bool("parallel", run.Parallel).Msg("Starting run")

	var outputs []io.Writer
	if r.opts.Stream != nil {
		outputs = append(outputs, r.opts.Stream)
	}
	if r.opts.Output != nil {
		outputs = append(outputs, r.opts.Output)
	}
	w := io.MultiWriter(outputs...)
	outcome, err = t.Driver().Run(ctx, tests, run.Parallel, tasty.RunOptions{
		Log: w,
		Events: tasty.Events{
			TestEnd: func(res tasty.TestResult) {
				log.Debug().
					Str("suite", res.Suite).
					Str("test", res.Title).
					Str("status", res.Status.String()).
					Msg("Test done")
			},
		},
	})
	if outcome != nil {
		run.Failed = outcome.Failed()
		run.Summary = outcome.Summary()
		log.Info().Bool("failed", run.Failed).Msg(run.Summary)
	}
	return outcome, err
}

// Load declares the tests in files with the driver of typ.
func (r *Runner) Load(typ tasty.RunType, files []string) (*tasty.Tasty, []tasty.Runnable, error) {
	t, err := r.Tasty(typ)
	if err != nil {
		return nil, nil, err
	}
	tests, err := t.Driver().Get(t, files)
	if err != nil {
		return nil, nil, err
	}
	return t, tests, nil
}

// Tasty sets up a fresh application with the driver of typ. Every run
// gets its own so that resource caches never leak between runs.
func (r *Runner) Tasty(typ tasty.RunType) (*tasty.Tasty, error) {
	driver := r.opts.Drivers[typ]
	if driver == nil {
		return nil, errors.Errorf("no driver for run type %s", typ)
	}
	env, err := tasty.NewEnv(driver, r.opts.Env)
	if err != nil {
		return nil, err
	}
	cfg := r.opts.App
	app, err := tasty.NewApp(r.opts.AppName, &cfg, env)
	if err != nil {
		return nil, err
	}
	if err := app.DeclareAll(r.opts.Declarations); err != nil {
		return nil, err
	}
	return tasty.New(env, app, r.opts.Context.Clone())
}

func (r *Runner) record(run *history.Run) {
	if r.opts.History == nil {
		return
	}
	if err := r.opts.History.Put(run); err != nil {
		r.log.Error().Err(err).Str("run", run.ID).Msg("Cannot record run")
	}
}
