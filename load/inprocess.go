// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vdobler/tasty/capture"
	"github.com/vdobler/tasty/hist"
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
	"github.com/vdobler/tasty/template"
)

// InProcess executes load documents in-process: every arrival of a phase
// runs the flow of one scenario, scenarios taken round robin. Arrivals
// are paced by a token bucket limiter at the phase's rate.
type InProcess struct {
	// Client replaces the client built from the document config.
	Client *http.Client

	// Exponential switches from equally spaced arrivals to exponentially
	// distributed ones.
	Exponential bool
}

// Name implements Engine.
func (InProcess) Name() string { return "inprocess" }

// Run implements Engine. Log entries of the flows are written to w.
func (p InProcess) Run(ctx context.Context, doc *Document, w io.Writer) (*Report, error) {
	report := &Report{Engine: p.Name(), Codes: map[int]int{}}
	if len(doc.Scenarios) == 0 {
		return report, nil
	}
	timeout := doc.Config.HTTP.TimeoutDuration()
	client := p.Client
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !doc.Config.TLS.RejectUnauthorized},
			},
		}
	}
	vu := &virtualUser{
		client:  client,
		target:  doc.Config.Target,
		vars:    scope.Scope(doc.Config.Variables),
		w:       w,
		latency: hist.NewLatency(2 * timeout),
		report:  report,
	}
	log := logger.With().Str("component", "inprocess").Logger()

	var wg sync.WaitGroup
phases:
	for i, phase := range doc.Config.Phases {
		n := phase.Arrivals()
		if n <= 0 || phase.Duration <= 0 {
			continue
		}
		perSecond := float64(n) / float64(phase.Duration)
		log.Info().Int("phase", i+1).Int("arrivals", n).Float64("rate", perSecond).Msg("Starting phase")

		limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
		for j := 0; j < n; j++ {
			if err := p.arrival(ctx, limiter, perSecond); err != nil {
				break phases
			}
			wg.Add(1)
			go func(sc *Scenario) {
				defer wg.Done()
				err := vu.run(ctx, sc)
				vu.mu.Lock()
				defer vu.mu.Unlock()
				report.Scenarios++
				if err != nil {
					report.countError(err)
				} else {
					report.Completed++
				}
			}(doc.Scenarios[j%len(doc.Scenarios)])
		}
	}
	wg.Wait()
	report.Latency = vu.latency.Summary()
	hist.Plot(w, []hist.Row{{Name: "latency", Summary: report.Latency}}, 72)
	return report, ctx.Err()
}

// arrival blocks until the next virtual user may start.
func (p InProcess) arrival(ctx context.Context, limiter *rate.Limiter, perSecond float64) error {
	if !p.Exponential {
		return limiter.Wait(ctx)
	}
	d := time.Duration(rand.ExpFloat64() / perSecond * float64(time.Second))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// virtualUser executes flows. The context of a flow starts with the
// config variables and collects the captures of the flow's requests.
type virtualUser struct {
	client  *http.Client
	target  string
	vars    scope.Scope
	w       io.Writer
	latency *hist.Latency

	mu     sync.Mutex
	report *Report
}

func (vu *virtualUser) run(ctx context.Context, sc *Scenario) error {
	vars := vu.vars.Clone()
	for i, e := range sc.Flow {
		delta, err := vu.step(ctx, e, vars)
		if err != nil {
			return errors.WithMessagef(err, "%s step %d", sc.Name, i+1)
		}
		vars = scope.Merge(vars, delta)
	}
	return nil
}

func (vu *virtualUser) step(ctx context.Context, e Entry, vars scope.Scope) (scope.Scope, error) {
	for key, val := range e {
		switch key {
		case "think":
			secs, _ := val.(float64)
			if i, ok := val.(int); ok {
				secs = float64(i)
			}
			select {
			case <-time.After(time.Duration(secs * float64(time.Second))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return nil, nil
		case "log":
			msg := template.Render(template.Substitute(fmt.Sprint(val), vars))
			vu.mu.Lock()
			fmt.Fprintln(vu.w, msg)
			vu.mu.Unlock()
			return nil, nil
		case "parallel":
			return vu.parallel(ctx, val, vars)
		default:
			req, ok := val.(map[string]interface{})
			if !ok {
				return nil, errors.Errorf("bad %s entry %T", key, val)
			}
			return vu.request(ctx, key, req, vars)
		}
	}
	return nil, errors.New("empty flow entry")
}

func (vu *virtualUser) parallel(ctx context.Context, val interface{}, vars scope.Scope) (scope.Scope, error) {
	var group []Entry
	switch g := val.(type) {
	case []interface{}:
		for _, x := range g {
			m, ok := x.(map[string]interface{})
			if !ok {
				return nil, errors.Errorf("bad parallel entry %T", x)
			}
			group = append(group, Entry(m))
		}
	case []Entry:
		group = g
	}
	results := make([]scope.Scope, len(group))
	errs := make([]error, len(group))
	var wg sync.WaitGroup
	for i, e := range group {
		wg.Add(1)
		go func(i int, e Entry) {
			defer wg.Done()
			results[i], errs[i] = vu.step(ctx, e, vars.Clone())
		}(i, e)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return scope.Merge(results...), nil
}

func (vu *virtualUser) request(ctx context.Context, verb string, spec map[string]interface{}, vars scope.Scope) (scope.Scope, error) {
	captures, err := captureList(spec["capture"])
	if err != nil {
		return nil, err
	}
	plain := make(map[string]interface{}, len(spec))
	for k, v := range spec {
		if k != "capture" {
			plain[k] = v
		}
	}
	spec = template.SubstituteDeep(plain, vars).(map[string]interface{})

	req, err := vu.newRequest(ctx, verb, spec)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := vu.client.Do(req)
	if err != nil {
		return nil, err
	}
	r, err := response.FromHTTP(resp, start)
	if err != nil {
		return nil, err
	}
	vu.latency.Record(r.Duration)
	vu.mu.Lock()
	vu.report.Requests++
	vu.report.Codes[r.Status]++
	vu.mu.Unlock()

	return capture.Capture(captures, r)
}

func (vu *virtualUser) newRequest(ctx context.Context, verb string, spec map[string]interface{}) (*http.Request, error) {
	u := template.Render(spec["url"])
	if !strings.Contains(u, "://") {
		u = strings.TrimRight(vu.target, "/") + u
	}
	if qs, ok := spec["qs"].(map[string]interface{}); ok && len(qs) > 0 {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, err
		}
		q := parsed.Query()
		for k, v := range qs {
			q.Set(k, template.Render(v))
		}
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	var body []byte
	contentType := ""
	if j, ok := spec["json"]; ok {
		var err error
		if body, err = json.Marshal(j); err != nil {
			return nil, err
		}
		contentType = "application/json"
	} else if b, ok := spec["body"]; ok {
		body = []byte(template.Render(b))
	}

	req, err := http.NewRequest(strings.ToUpper(verb), u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if h, ok := spec["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			req.Header.Set(k, template.Render(v))
		}
	}
	if req.Header.Get("Content-Type") == "" && len(body) > 0 {
		req.Header.Set("Content-Type", "text/plain")
	}
	return req, nil
}

// captureList reads the capture entries of a flow request back.
func captureList(v interface{}) (capture.List, error) {
	entries, _ := v.([]interface{})
	var list capture.List
	for _, e := range entries {
		m, ok := e.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("bad capture %T", e)
		}
		s := capture.Spec{
			As:        fmt.Sprint(m["as"]),
			JSON:      str(m["json"]),
			Selector:  str(m["selector"]),
			Attribute: str(m["attr"]),
			Regexp:    str(m["regexp"]),
		}
		switch g := m["group"].(type) {
		case int:
			s.Submatch = g
		case float64:
			s.Submatch = int(g)
		}
		list = append(list, s)
	}
	return list, list.Validate()
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
