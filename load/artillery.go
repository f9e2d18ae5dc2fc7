// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"
)

// Engine executes a load document.
type Engine interface {
	Name() string
	Run(ctx context.Context, doc *Document, w io.Writer) (*Report, error)
}

// Artillery hands the document to the external artillery process.
type Artillery struct {
	// Binary is the artillery executable, "artillery" if empty.
	Binary string

	// Output is the file the document is written to. A temporary file
	// is used and removed afterwards if empty.
	Output string
}

// Name implements Engine.
func (Artillery) Name() string { return "artillery" }

// Run implements Engine. The output of the process goes to w.
func (a Artillery) Run(ctx context.Context, doc *Document, w io.Writer) (*Report, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "cannot encode load document")
	}
	file := a.Output
	if file == "" {
		f, err := ioutil.TempFile("", "tasty-load-*.json")
		if err != nil {
			return nil, errors.Wrap(err, "cannot create load document")
		}
		file = f.Name()
		f.Close()
		defer os.Remove(file)
	}
	if err := ioutil.WriteFile(file, data, 0644); err != nil {
		return nil, errors.Wrap(err, "cannot write load document")
	}

	binary := a.Binary
	if binary == "" {
		binary = "artillery"
	}
	cmd := exec.CommandContext(ctx, binary, "run", file)
	cmd.Stdout, cmd.Stderr = w, w
	logger.Debug().Str("component", "artillery").Str("file", file).Msg("Starting engine")

	report := &Report{Engine: a.Name()}
	for _, p := range doc.Config.Phases {
		report.Scenarios += p.Arrivals() * len(doc.Scenarios)
	}
	if err := cmd.Run(); err != nil {
		report.countError(err)
		return report, errors.Wrapf(err, "%s run", binary)
	}
	report.Completed = report.Scenarios
	return report, nil
}
