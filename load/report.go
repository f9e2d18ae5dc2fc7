// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/hist"
)

// Report is the outcome of a load run.
type Report struct {
	Engine string `json:"engine"`

	// Scenarios is the number of scenarios launched, Completed the number
	// which ran their flow without error.
	Scenarios int `json:"scenarios"`
	Completed int `json:"completed"`
	Requests  int `json:"requests"`

	// Codes counts responses per status code, Errors counts failures per
	// error message.
	Codes  map[int]int    `json:"codes,omitempty"`
	Errors map[string]int `json:"errors,omitempty"`

	Latency hist.Summary `json:"latency"`
}

var _ tasty.Outcome = (*Report)(nil)

// Failed implements tasty.Outcome.
func (r *Report) Failed() bool {
	return len(r.Errors) > 0 || r.Completed < r.Scenarios
}

// Summary implements tasty.Outcome.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%s: %d scenarios launched, %d completed, %d requests",
		r.Engine, r.Scenarios, r.Completed, r.Requests)
	if len(r.Codes) > 0 {
		codes := make([]int, 0, len(r.Codes))
		for c := range r.Codes {
			codes = append(codes, c)
		}
		sort.Ints(codes)
		parts := make([]string, len(codes))
		for i, c := range codes {
			parts[i] = fmt.Sprintf("%d: %d", c, r.Codes[c])
		}
		s += " (" + strings.Join(parts, ", ") + ")"
	}
	if r.Latency.Count > 0 {
		s += "; " + r.Latency.String()
	}
	return s
}

func (r *Report) countError(err error) {
	if r.Errors == nil {
		r.Errors = map[string]int{}
	}
	r.Errors[err.Error()]++
}
