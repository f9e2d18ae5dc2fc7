// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline builds request descriptors.
//
// A Descriptor is built by reducing a list of stages left to right. Each
// stage is a pure function of the descriptor built so far, the three
// layers of request configuration (resource defaults, the one-shot call
// cache and the options of the call) and an Evaluator which resolves
// placeholders. The Default stages run in a fixed order:
//     URL  Headers  Params  Body  Aux
// Body depends on the content type resolved by Headers.
//
// Within each stage the call layer wins over the cache layer which wins
// over the resource layer.
package pipeline

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty/template"
)

// Descriptor is a fully resolved request.
type Descriptor struct {
	Method  string
	URL     string
	Headers map[string]interface{}
	Params  map[string]interface{}

	// Body is a JSON tree if Structured, the raw body otherwise.
	Body       interface{}
	Structured bool

	// Files maps form field names to file names, Form holds additional
	// multipart form fields.
	Files map[string]string
	Form  map[string]interface{}
}

// Layer is one layer of request configuration.
type Layer struct {
	Headers map[string]interface{}
	Params  map[string]interface{}
	Body    interface{}
	Files   map[string]string
	Form    map[string]interface{}
}

// IsZero reports whether l carries no configuration at all.
func (l Layer) IsZero() bool {
	return len(l.Headers) == 0 && len(l.Params) == 0 && l.Body == nil &&
		len(l.Files) == 0 && len(l.Form) == 0
}

// Sources are the inputs of the pipeline.
type Sources struct {
	Method string

	// Host is the host selected by the environment, e.g.
	// "https://api.example.org". It is empty for relative URLs.
	Host string

	// BaseURL is the URL of the resource, e.g. "users", and Path the
	// path template of the call, e.g. "/${id}".
	BaseURL string
	Path    string

	Resource Layer
	Cache    Layer
	Call     Layer
}

// Evaluator resolves placeholders in a (JSON-like) value.
type Evaluator interface {
	Evaluate(v interface{}) (interface{}, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(v interface{}) (interface{}, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(v interface{}) (interface{}, error) { return f(v) }

// Literal is the Evaluator which returns values unchanged.
var Literal Evaluator = EvaluatorFunc(func(v interface{}) (interface{}, error) { return v, nil })

// Stage is one step of the pipeline.
type Stage func(acc Descriptor, src Sources, ev Evaluator) (Descriptor, error)

// Default is the standard sequence of stages.
var Default = []Stage{URL, Headers, Params, Body, Aux}

// Build reduces stages left to right starting from an empty descriptor
// carrying the method of src.
func Build(stages []Stage, src Sources, ev Evaluator) (Descriptor, error) {
	if ev == nil {
		ev = Literal
	}
	acc := Descriptor{Method: strings.ToLower(src.Method)}
	for _, stage := range stages {
		var err error
		acc, err = stage(acc, src, ev)
		if err != nil {
			return Descriptor{}, err
		}
	}
	return acc, nil
}

// ----------------------------------------------------------------------------
// Stages

// URL resolves {host}/{resource url}{path}.
func URL(acc Descriptor, src Sources, ev Evaluator) (Descriptor, error) {
	path := ""
	if src.Path != "" {
		p, err := ev.Evaluate(src.Path)
		if err != nil {
			return acc, errors.WithMessage(err, "url")
		}
		path = template.Render(p)
	}
	acc.URL = JoinURL(src.Host, src.BaseURL, path)
	return acc, nil
}

// JoinURL joins host, base and path with single slashes. A path starting
// with '?' or '#' is appended without slash.
func JoinURL(host, base, path string) string {
	u := strings.TrimRight(host, "/") + "/" + strings.Trim(base, "/")
	switch {
	case path == "":
	case strings.HasPrefix(path, "?"), strings.HasPrefix(path, "#"):
		u += path
	case strings.HasPrefix(path, "/"):
		u = strings.TrimRight(u, "/") + path
	default:
		u = strings.TrimRight(u, "/") + "/" + path
	}
	return u
}

// Headers merges the header layers. Resource headers are literal values,
// cache and call headers are evaluated. Header names merge
// case-insensitively.
func Headers(acc Descriptor, src Sources, ev Evaluator) (Descriptor, error) {
	merged := map[string]interface{}{}
	mergeFold(merged, src.Resource.Headers)
	for _, layer := range []map[string]interface{}{src.Cache.Headers, src.Call.Headers} {
		evaluated, err := evalMap(layer, ev)
		if err != nil {
			return acc, errors.WithMessage(err, "headers")
		}
		mergeFold(merged, evaluated)
	}
	acc.Headers = merged
	return acc, nil
}

// Params merges the query parameter layers like Headers but with
// case-sensitive names.
func Params(acc Descriptor, src Sources, ev Evaluator) (Descriptor, error) {
	merged := map[string]interface{}{}
	for k, v := range src.Resource.Params {
		merged[k] = v
	}
	for _, layer := range []map[string]interface{}{src.Cache.Params, src.Call.Params} {
		evaluated, err := evalMap(layer, ev)
		if err != nil {
			return acc, errors.WithMessage(err, "params")
		}
		for k, v := range evaluated {
			merged[k] = v
		}
	}
	acc.Params = merged
	return acc, nil
}

// Body builds the body. If the resolved content type is JSON, or if no
// content type is set and one of the bodies is an object or array, the
// evaluated bodies are deep merged and Content-Type is defaulted to
// application/json. Otherwise the first body set in call, cache and
// resource is used as is.
func Body(acc Descriptor, src Sources, ev Evaluator) (Descriptor, error) {
	layers := []interface{}{src.Resource.Body, src.Cache.Body, src.Call.Body}
	ct := ContentType(acc.Headers)

	structured := strings.Contains(ct, "json")
	if ct == "" {
		for _, b := range layers {
			if isTree(b) {
				structured = true
				break
			}
		}
	}

	if !structured {
		acc.Body = nil
		for i := len(layers) - 1; i >= 0; i-- {
			if layers[i] != nil {
				acc.Body = layers[i]
				break
			}
		}
		return acc, nil
	}

	var merged interface{}
	for _, b := range layers {
		if b == nil {
			continue
		}
		eb, err := ev.Evaluate(b)
		if err != nil {
			return acc, errors.WithMessage(err, "body")
		}
		merged = DeepMerge(merged, eb)
	}
	acc.Body, acc.Structured = merged, true
	if ct == "" && merged != nil {
		headers := make(map[string]interface{}, len(acc.Headers)+1)
		for k, v := range acc.Headers {
			headers[k] = v
		}
		headers["Content-Type"] = "application/json"
		acc.Headers = headers
	}
	return acc, nil
}

// Aux attaches files and form fields verbatim.
func Aux(acc Descriptor, src Sources, _ Evaluator) (Descriptor, error) {
	for _, layer := range []Layer{src.Resource, src.Cache, src.Call} {
		if len(layer.Files) > 0 {
			if acc.Files == nil {
				acc.Files = map[string]string{}
			}
			for k, v := range layer.Files {
				acc.Files[k] = v
			}
		}
		if len(layer.Form) > 0 {
			if acc.Form == nil {
				acc.Form = map[string]interface{}{}
			}
			for k, v := range layer.Form {
				acc.Form[k] = v
			}
		}
	}
	return acc, nil
}

// ----------------------------------------------------------------------------
// Helpers

// ContentType returns the lower-cased value of the content-type header,
// whatever the capitalization of its name.
func ContentType(headers map[string]interface{}) string {
	for k, v := range headers {
		if strings.EqualFold(k, "content-type") {
			return strings.ToLower(template.Render(v))
		}
	}
	return ""
}

func mergeFold(dst, src map[string]interface{}) {
	for k, v := range src {
		for existing := range dst {
			if existing != k && strings.EqualFold(existing, k) {
				delete(dst, existing)
			}
		}
		dst[k] = v
	}
}

func evalMap(m map[string]interface{}, ev Evaluator) (map[string]interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	v, err := ev.Evaluate(m)
	if err != nil {
		return nil, err
	}
	em, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("evaluated to %T, not an object", v)
	}
	return em, nil
}

func isTree(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

// DeepMerge merges src into dst and returns the result without modifying
// either. Objects merge key by key recursively; any other src value,
// arrays included, replaces dst.
func DeepMerge(dst, src interface{}) interface{} {
	dm, dok := dst.(map[string]interface{})
	sm, sok := src.(map[string]interface{})
	if !dok || !sok {
		return src
	}
	out := make(map[string]interface{}, len(dm)+len(sm))
	for k, v := range dm {
		out[k] = v
	}
	for k, v := range sm {
		if cur, ok := out[k]; ok {
			out[k] = DeepMerge(cur, v)
		} else {
			out[k] = v
		}
	}
	return out
}
