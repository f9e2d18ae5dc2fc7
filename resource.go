// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tasty

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty/capture"
	"github.com/vdobler/tasty/pipeline"
	"github.com/vdobler/tasty/schema"
	"github.com/vdobler/tasty/scope"
	"github.com/vdobler/tasty/template"
)

// Call are the options of one verb invocation. Path, Headers, Params and
// Body may contain ${...} placeholders resolved against the context the
// resulting action runs in.
type Call struct {
	Path    string                 `json:"path,omitempty" yaml:"path,omitempty"`
	Headers map[string]interface{} `json:"headers,omitempty" yaml:"headers,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Body    interface{}            `json:"body,omitempty" yaml:"body,omitempty"`
	Files   map[string]string      `json:"files,omitempty" yaml:"files,omitempty"`
	Form    map[string]interface{} `json:"form,omitempty" yaml:"form,omitempty"`
	Mock    interface{}            `json:"mock,omitempty" yaml:"mock,omitempty"`
	Capture capture.List           `json:"capture,omitempty" yaml:"capture,omitempty"`
}

func (c Call) layer() pipeline.Layer {
	return pipeline.Layer{
		Headers: c.Headers,
		Params:  c.Params,
		Body:    c.Body,
		Files:   c.Files,
		Form:    c.Form,
	}
}

// Cache is the one-shot override of a Resource filled by the Set methods
// and consumed by the next verb invocation.
type Cache struct {
	Headers map[string]interface{}
	Params  map[string]interface{}
	Body    interface{}
	Files   map[string]string
	Mock    interface{}
}

func (c Cache) layer() pipeline.Layer {
	return pipeline.Layer{
		Headers: c.Headers,
		Params:  c.Params,
		Body:    c.Body,
		Files:   c.Files,
	}
}

// IsZero reports whether nothing is cached.
func (c Cache) IsZero() bool {
	return c.layer().IsZero() && c.Mock == nil
}

// VerbFunc invokes one verb of a Resource.
type VerbFunc func(call Call) (Action, error)

// Resource is a declared HTTP endpoint.
//
// A Resource is safe for concurrent invocation as long as the Set methods
// are not used concurrently: the pending Cache is shared by all callers.
type Resource struct {
	app  *App
	decl Declaration

	mu    sync.Mutex
	cache Cache
}

func newResource(app *App, d Declaration) *Resource {
	methods := make([]string, 0, len(d.Methods))
	for _, m := range d.Methods {
		methods = append(methods, strings.ToLower(m))
	}
	if len(methods) == 0 {
		methods = []string{"get"}
	}
	d.Methods = methods
	return &Resource{app: app, decl: d}
}

// Name of the resource: its alias or its url.
func (r *Resource) Name() string { return r.decl.Name() }

// URL of the resource relative to its host.
func (r *Resource) URL() string { return r.decl.URL }

// Methods lists the declared verbs.
func (r *Resource) Methods() []string {
	return append([]string(nil), r.decl.Methods...)
}

// Declaration returns the declaration of r.
func (r *Resource) Declaration() Declaration { return r.decl }

// App the resource belongs to.
func (r *Resource) App() *App { return r.app }

// Host is the base URL of r in the current environment.
func (r *Resource) Host() string {
	if h, ok := r.OwnHost(); ok {
		return h
	}
	return r.app.Host()
}

// OwnHost returns the host of r if it overrides the app host.
func (r *Resource) OwnHost() (string, bool) {
	h, ok := r.decl.Host[r.app.Env.Name]
	return h, ok && h != ""
}

// Schema returns the response schema declared for verb or nil.
func (r *Resource) Schema(verb string) *schema.Schema {
	return r.decl.Schemas[strings.ToLower(verb)]
}

// Mock returns the mock body declared for verb or nil.
func (r *Resource) Mock(verb string) interface{} {
	return r.decl.Mock[strings.ToLower(verb)]
}

// TraceLink returns the trace UI link for a request id.
func (r *Resource) TraceLink(requestID string) string {
	return r.app.TraceLink(requestID)
}

// ----------------------------------------------------------------------------
// Call cache

// SetHeaders sets the headers of the next invocation.
func (r *Resource) SetHeaders(h map[string]interface{}) *Resource {
	r.mu.Lock()
	r.cache.Headers = h
	r.mu.Unlock()
	return r
}

// SetParams sets the query parameters of the next invocation.
func (r *Resource) SetParams(p map[string]interface{}) *Resource {
	r.mu.Lock()
	r.cache.Params = p
	r.mu.Unlock()
	return r
}

// SetBody sets the body of the next invocation.
func (r *Resource) SetBody(b interface{}) *Resource {
	r.mu.Lock()
	r.cache.Body = b
	r.mu.Unlock()
	return r
}

// SetFiles sets the files uploaded by the next invocation.
func (r *Resource) SetFiles(f map[string]string) *Resource {
	r.mu.Lock()
	r.cache.Files = f
	r.mu.Unlock()
	return r
}

// SetMock makes the next invocation return body without a request.
func (r *Resource) SetMock(body interface{}) *Resource {
	r.mu.Lock()
	r.cache.Mock = body
	r.mu.Unlock()
	return r
}

// Pending returns the cache the next invocation will consume.
func (r *Resource) Pending() Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache
}

func (r *Resource) takeCache() Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cache
	r.cache = Cache{}
	return c
}

// ----------------------------------------------------------------------------
// Verbs

// Verbs returns the capability map of r: one VerbFunc per declared verb.
func (r *Resource) Verbs() map[string]VerbFunc {
	m := make(map[string]VerbFunc, len(r.decl.Methods))
	for _, v := range r.decl.Methods {
		verb := v
		m[verb] = func(call Call) (Action, error) {
			return r.invoke(verb, call)
		}
	}
	return m
}

// Invoke invokes verb with the given call options. The pending cache is
// consumed even if building the action fails.
func (r *Resource) Invoke(verb string, call Call) (Action, error) {
	verb = strings.ToLower(verb)
	if !r.has(verb) {
		r.takeCache()
		return nil, errors.Errorf("resource %s has no method %s (have %s)",
			r.Name(), verb, strings.Join(r.decl.Methods, ", "))
	}
	return r.invoke(verb, call)
}

// Invoke invokes verb on res.
func Invoke(res *Resource, verb string, call Call) (Action, error) {
	if res == nil {
		return nil, errors.New("invoke on nil resource")
	}
	return res.Invoke(verb, call)
}

func (r *Resource) has(verb string) bool {
	for _, m := range r.decl.Methods {
		if m == verb {
			return true
		}
	}
	return false
}

func (r *Resource) invoke(verb string, call Call) (Action, error) {
	cache := r.takeCache()
	if err := call.Capture.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "%s %s", verb, r.Name())
	}

	mock := call.Mock
	if mock == nil {
		mock = cache.Mock
	}
	if mock == nil {
		mock = r.Mock(verb)
	}

	src := pipeline.Sources{
		Method:  verb,
		Host:    r.Host(),
		BaseURL: r.decl.URL,
		Path:    call.Path,
		Resource: pipeline.Layer{
			Headers: r.decl.Headers,
			Params:  r.decl.Params,
			Body:    r.decl.Body,
		},
		Cache: cache.layer(),
		Call:  call.layer(),
	}
	build := func(s scope.Scope) (pipeline.Descriptor, error) {
		return pipeline.Build(pipeline.Default, src, template.Evaluator{Scope: s})
	}

	spec := RequestSpec{
		Build:    build,
		Sources:  src,
		Mock:     mock,
		Capture:  call.Capture,
		Resource: r,
		Call:     call,
		Cache:    cache,
	}
	return r.app.Env.Driver.Request(spec), nil
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s %s", strings.Join(r.decl.Methods, "|"), r.Name())
}
