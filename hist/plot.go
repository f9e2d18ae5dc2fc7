// Copyright 2017 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hist

import (
	"fmt"
	"io"
	"math"
	"time"
)

// Row is one named line of a Plot.
type Row struct {
	Name    string
	Summary Summary
}

var marks = []struct {
	r rune
	d func(s Summary) time.Duration
}{
	{'*', func(s Summary) time.Duration { return s.Mean }},
	{'M', func(s Summary) time.Duration { return s.P50 }},
	{')', func(s Summary) time.Duration { return s.P95 }},
	{'>', func(s Summary) time.Duration { return s.P99 }},
}

// Plot draws the rows as ASCII art on a logarithmic time axis of the
// given total width:
//
//     latency:  --*--M----------)--->---
//               ---+---------+---------+---------+--
//               1ms        10ms     100ms        1s
//
// Empty rows are skipped.
func Plot(w io.Writer, rows []Row, width int) {
	lo, hi := time.Duration(math.MaxInt64), time.Duration(0)
	labelLen := 0
	for _, r := range rows {
		if r.Summary.Count == 0 {
			continue
		}
		if len(r.Name) > labelLen {
			labelLen = len(r.Name)
		}
		if r.Summary.Min < lo {
			lo = r.Summary.Min
		}
		if r.Summary.Max > hi {
			hi = r.Summary.Max
		}
	}
	if hi == 0 {
		return
	}
	lo, hi = decadeDown(lo), decadeUp(hi)
	if hi <= lo {
		hi = 10 * lo
	}
	dWidth := width - labelLen - 3
	if dWidth < 10 {
		dWidth = 10
	}
	logLo, logRange := math.Log10(float64(lo)), math.Log10(float64(hi))-math.Log10(float64(lo))
	screen := func(d time.Duration) int {
		if d < lo {
			d = lo
		}
		x := (math.Log10(float64(d)) - logLo) / logRange
		return int(x*float64(dWidth-1) + 0.5)
	}

	for _, r := range rows {
		if r.Summary.Count == 0 {
			continue
		}
		b := blank(dWidth, ' ')
		for i := screen(r.Summary.Min); i <= screen(r.Summary.Max); i++ {
			b[i] = '-'
		}
		for _, m := range marks {
			b[screen(m.d(r.Summary))] = m.r
		}
		fmt.Fprintf(w, "%*s:  %s\n", labelLen, r.Name, string(b))
	}

	axis, labels := blank(dWidth, '-'), blank(dWidth+8, ' ')
	for d := lo; d <= hi; d *= 10 {
		i := screen(d)
		axis[i] = '+'
		label := []rune(d.String())
		start := i - len(label)/2
		if start < 0 {
			start = 0
		}
		for j, c := range label {
			labels[start+j] = c
		}
	}
	fmt.Fprintf(w, "%*s   %s\n", labelLen, "", string(axis))
	fmt.Fprintf(w, "%*s   %s\n", labelLen, "", string(labels))
	fmt.Fprintln(w, "Marks:  *=mean,  M=50%,  )=95%,  >=99%")
}

func blank(n int, r rune) []rune {
	b := make([]rune, n)
	for i := range b {
		b[i] = r
	}
	return b
}

// decadeDown rounds d down to a power of ten, at least 1µs.
func decadeDown(d time.Duration) time.Duration {
	p := time.Microsecond
	for p*10 <= d {
		p *= 10
	}
	return p
}

// decadeUp rounds d up to a power of ten above 1µs.
func decadeUp(d time.Duration) time.Duration {
	p := 10 * time.Microsecond
	for p < d {
		p *= 10
	}
	return p
}
