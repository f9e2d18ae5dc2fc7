// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hist provides latency histograms with exponentially growing
// bucket sizes.
package hist

import (
	"fmt"
	"sync"
	"time"
)

// LogHist is a histogram of non-negative integer values whose bin size
// increases exponentially and cover the interval [0,Max].
// The bins are grouped into blocks of N equal-sized bins. The first block
// has a bin size of 1; in each consecutive block the bin size is doubled.
// The resolution of the histogram is 1/N.
type LogHist struct {
	N        int   // Number of equal sized bins before binsize doubles. A power of two.
	Max      int   // Max is the last value which can be counted.
	Count    []int // Count contains the counts for each bucket.
	Overflow int   // Number of added values > Max
}

// NewLogHist returns a new LogHist capable of storing values from 0 to (at
// least) max with a resolution of bits. N will be 1<<bits.
func NewLogHist(bits uint, max int) *LogHist {
	if max < 1 {
		max = 1
	}
	h := &LogHist{N: 1 << bits}
	last := h.Bucket(max)
	_, end := h.Cover(last)
	h.Count = make([]int, last+1)
	h.Max = end - 1
	return h
}

// Bucket returns the bucket index the value v belongs to.
func (h *LogHist) Bucket(v int) int {
	// Block p covers the value range [n*2^p - n, n*2^(p+1) - n).
	n := h.N
	if v < n {
		return v
	}
	p := uint(0)
	for n*(1<<(p+1))-n <= v {
		p++
	}
	low := n*(1<<p) - n
	return n*int(p) + (v-low)>>p
}

// Cover returns the value interval [a,b) covered by bucket.
func (h *LogHist) Cover(bucket int) (a int, b int) {
	// Bucket z is bin u = z%n in block p = z/n and is w = 1<<p values wide.
	n := h.N
	u, p := bucket%n, uint(bucket/n)
	w := 1 << p
	a = n*(1<<p) - n + u*w
	return a, a + w
}

// Add counts the value v. Negative values count as zero.
func (h *LogHist) Add(v int) {
	if v < 0 {
		v = 0
	}
	if v > h.Max {
		h.Overflow++
		return
	}
	h.Count[h.Bucket(v)]++
}

// Total number of values added, overflows included.
func (h *LogHist) Total() int {
	t := h.Overflow
	for _, c := range h.Count {
		t += c
	}
	return t
}

// Percentile returns the center of the bucket containing the p-quantile
// (0 <= p <= 1) of the counted values. Overflows count as Max.
func (h *LogHist) Percentile(p float64) int {
	total := h.Total()
	if total == 0 {
		return 0
	}
	rank := int(p*float64(total) + 0.5)
	if rank < 1 {
		rank = 1
	}
	sum := 0
	for b, c := range h.Count {
		sum += c
		if sum >= rank {
			a, e := h.Cover(b)
			return a + (e-a)/2
		}
	}
	return h.Max
}

// ----------------------------------------------------------------------------
// Latency

// Latency records request durations with millisecond resolution. It is
// safe for concurrent use.
type Latency struct {
	mu       sync.Mutex
	h        *LogHist
	n        int
	sum      time.Duration
	min, max time.Duration
}

// NewLatency returns a Latency recorder resolving durations up to max.
func NewLatency(max time.Duration) *Latency {
	return &Latency{h: NewLogHist(6, int(max/time.Millisecond))}
}

// Record adds one duration.
func (l *Latency) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n == 0 || d < l.min {
		l.min = d
	}
	if d > l.max {
		l.max = d
	}
	l.n++
	l.sum += d
	l.h.Add(int(d / time.Millisecond))
}

// Summary of recorded durations.
type Summary struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// Summary returns the summary of all durations recorded so far.
func (l *Latency) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n == 0 {
		return Summary{}
	}
	ms := func(p float64) time.Duration {
		d := time.Duration(l.h.Percentile(p)) * time.Millisecond
		if d > l.max {
			d = l.max
		}
		if d < l.min {
			d = l.min
		}
		return d
	}
	return Summary{
		Count: l.n,
		Min:   l.min,
		Max:   l.max,
		Mean:  l.sum / time.Duration(l.n),
		P50:   ms(0.50),
		P95:   ms(0.95),
		P99:   ms(0.99),
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("min %s, max %s, mean %s, p50 %s, p95 %s, p99 %s",
		s.Min, s.Max, s.Mean, s.P50, s.P95, s.P99)
}
