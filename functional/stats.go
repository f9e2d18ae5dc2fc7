// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package functional

import (
	"fmt"
	"strings"
	"time"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/errorlist"
)

// Stats are the aggregate statistics of a run.
type Stats struct {
	Start time.Time `json:"start"`

	// End is nil for parallel runs.
	End *time.Time `json:"end"`

	Suites   int    `json:"suites"`
	Tests    int    `json:"tests"`
	Passes   int    `json:"passes"`
	Pending  int    `json:"pending"`
	Failures int    `json:"failures"`
	Duration string `json:"duration"`

	Results []*SuiteResult `json:"-"`
}

var _ tasty.Outcome = (*Stats)(nil)

// Failed implements tasty.Outcome.
func (s *Stats) Failed() bool { return s.Failures > 0 }

// Summary implements tasty.Outcome.
func (s *Stats) Summary() string {
	return fmt.Sprintf("%d suites, %d tests: %d passing, %d pending, %d failing (%s)",
		s.Suites, s.Tests, s.Passes, s.Pending, s.Failures, s.Duration)
}

// account adds sr to s.
func (s *Stats) account(sr *SuiteResult) {
	s.Suites++
	s.Results = append(s.Results, sr)
	s.Failures += len(sr.HookErrors)
	for _, r := range sr.Results {
		s.Tests++
		switch r.Status {
		case tasty.Pass:
			s.Passes++
		case tasty.Pending:
			s.Pending++
		default:
			s.Failures++
		}
	}
}

// FormatDuration renders d in milliseconds, e.g. "123ms".
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func upper(s tasty.Status) string {
	return strings.ToUpper(s.String())
}

func errorLines(err error) []string {
	return errorlist.Lines(err)
}
