// Copyright 2016 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mock serves the mocked responses declared on resources.
//
// A resource "users/${group}" with a mock for "get" is served as
//     GET /users/{group}
//     GET /users/{group}/{path:.*}
// The mock body is evaluated against the path variables, the query
// parameters and, for JSON requests, the request body available as "body".
package mock

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/scope"
	"github.com/vdobler/tasty/template"
)

// Mock is the mocked response of one verb of a resource.
type Mock struct {
	// Resource is the name of the resource.
	Resource string

	// Method is the upper case HTTP method.
	Method string

	// Path is the gorilla mux path template.
	Path string

	// Body is evaluated and sent as JSON.
	Body interface{}

	// Status defaults to 200.
	Status int

	// Monitor receives every invocation if not nil.
	Monitor chan<- Invocation
}

// Invocation reports one served request.
type Invocation struct {
	Mock     *Mock
	Method   string
	URL      string
	Vars     scope.Scope
	Status   int
	Body     interface{}
	Error    error
	Started  time.Time
	Duration time.Duration
}

var placeholderRe = regexp.MustCompile(`\$\{\s*([^}]*?)\s*\}`)

// PathTemplate turns the url of a resource into a mux path template.
func PathTemplate(url string) string {
	p := placeholderRe.ReplaceAllStringFunc(url, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		return "{" + strings.Replace(name, ".", "_", -1) + "}"
	})
	return "/" + strings.Trim(p, "/")
}

// FromApp collects the mocks of all resources of app sorted by path and
// method.
func FromApp(app *tasty.App) []*Mock {
	var mocks []*Mock
	for _, r := range app.Resources() {
		for _, verb := range r.Methods() {
			body := r.Mock(verb)
			if body == nil {
				continue
			}
			mocks = append(mocks, &Mock{
				Resource: r.Name(),
				Method:   strings.ToUpper(verb),
				Path:     PathTemplate(r.URL()),
				Body:     body,
			})
		}
	}
	sort.SliceStable(mocks, func(i, j int) bool {
		if mocks[i].Path != mocks[j].Path {
			return mocks[i].Path < mocks[j].Path
		}
		return mocks[i].Method < mocks[j].Method
	})
	return mocks
}

// ServeHTTP implements http.Handler.
func (m *Mock) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	vars := m.vars(r)
	status := m.Status
	if status == 0 {
		status = http.StatusOK
	}
	body, err := template.EvalDeep(m.Body, vars)
	if err != nil {
		status = http.StatusInternalServerError
		body = map[string]interface{}{"error": err.Error()}
		err = errors.WithMessagef(err, "mock %s %s", m.Method, m.Resource)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)

	if m.Monitor == nil {
		return
	}
	m.Monitor <- Invocation{
		Mock:     m,
		Method:   r.Method,
		URL:      r.URL.String(),
		Vars:     vars,
		Status:   status,
		Body:     body,
		Error:    err,
		Started:  started,
		Duration: time.Since(started),
	}
}

// vars collects query parameters, mux variables and the JSON request
// body. Path variables shadow query parameters.
func (m *Mock) vars(r *http.Request) scope.Scope {
	vars := scope.Scope{}
	for key, vals := range r.URL.Query() {
		if len(vals) == 1 {
			vars[key] = vals[0]
		} else {
			list := make([]interface{}, len(vals))
			for i, v := range vals {
				list[i] = v
			}
			vars[key] = list
		}
	}
	for k, v := range mux.Vars(r) {
		vars[k] = v
	}
	if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		raw, _ := ioutil.ReadAll(r.Body)
		var body interface{}
		if json.Unmarshal(raw, &body) == nil {
			vars["body"] = body
		}
	}
	return vars
}

// Router routes the mocks. Each mock also answers below its path.
func Router(mocks []*Mock, notfound http.Handler) *mux.Router {
	r := mux.NewRouter()
	for _, m := range mocks {
		r.Handle(m.Path, m).Methods(m.Method)
		r.Handle(strings.TrimSuffix(m.Path, "/")+"/{path:.*}", m).Methods(m.Method)
	}
	if notfound != nil {
		r.NotFoundHandler = notfound
	}
	return r
}

// ServerShutdownGraceperiode is the time given the mock server to shut
// down.
var ServerShutdownGraceperiode = 250 * time.Millisecond

// Serve serves mocks on addr until ctx is done.
func Serve(ctx context.Context, addr string, mocks []*Mock) error {
	log := logger.With().Str("component", "mock").Logger()
	for _, m := range mocks {
		log.Info().Str("method", m.Method).Str("path", m.Path).Msg("Will handle")
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: logged(log, Router(mocks, nil)),
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return errors.Wrap(err, "mock server")
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), ServerShutdownGraceperiode)
	defer cancel()
	return srv.Shutdown(sctx)
}

func logged(log zerolog.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Dur("duration", time.Since(start)).
			Msg("Served")
	})
}
