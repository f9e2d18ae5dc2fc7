// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package functional

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vdobler/tasty"
	"github.com/vdobler/tasty/capture"
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
	"github.com/vdobler/tasty/template"
)

// Request is the action of one resource verb invocation. Running it
// performs the request, or returns the mock if one is configured, and
// captures values from the response.
type Request struct {
	spec   tasty.RequestSpec
	driver *Driver
}

var _ tasty.Sender = (*Request)(nil)

// Spec of the request.
func (r *Request) Spec() tasty.RequestSpec { return r.spec }

// Run implements tasty.Action. It returns the captured values.
func (r *Request) Run(ctx context.Context, s scope.Scope) (scope.Scope, error) {
	ex, err := r.Send(ctx, s)
	if err != nil {
		return nil, err
	}
	return ex.Captured, nil
}

// Send implements tasty.Sender.
func (r *Request) Send(ctx context.Context, s scope.Scope) (*tasty.Exchange, error) {
	desc, err := r.spec.Build(s)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s %s", r.spec.Method(), r.name())
	}
	ex := &tasty.Exchange{
		Request:   desc,
		RequestID: uuid.New().String(),
		Resource:  r.spec.Resource,
	}
	log := r.driver.log.With().
		Str("method", desc.Method).
		Str("url", desc.URL).
		Str("id", ex.RequestID).
		Logger()

	if r.spec.Mock != nil {
		body, err := template.EvalDeep(r.spec.Mock, s)
		if err != nil {
			return nil, errors.WithMessage(err, "mock")
		}
		ex.Response = response.Mock(body)
		log.Debug().Msg("Mocked")
	} else {
		req, err := newHTTPRequest(ctx, desc)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s %s", desc.Method, desc.URL)
		}
		req.Header.Set(RequestIDHeader, ex.RequestID)
		start := time.Now()
		resp, err := r.driver.client.Do(req)
		if err != nil {
			log.Warn().Err(err).Str("trace", r.traceLink(ex.RequestID)).Msg("Request failed")
			return nil, errors.Wrapf(err, "%s %s", desc.Method, desc.URL)
		}
		ex.Response, err = response.FromHTTP(resp, start)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s %s", desc.Method, desc.URL)
		}
		log.Debug().
			Int("status", ex.Response.Status).
			Dur("duration", ex.Response.Duration).
			Str("trace", r.traceLink(ex.RequestID)).
			Msg("Request")
	}

	ex.Captured, err = capture.Capture(r.spec.Capture, ex.Response)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s %s", desc.Method, desc.URL)
	}
	return ex, nil
}

func (r *Request) name() string {
	if r.spec.Resource == nil {
		return r.spec.Sources.BaseURL
	}
	return r.spec.Resource.Name()
}

func (r *Request) traceLink(id string) string {
	if r.spec.Resource == nil {
		return ""
	}
	return r.spec.Resource.TraceLink(id)
}

// exchange runs a and returns the exchange of its last request. A series
// runs all but its last action first, in order, threading the context.
func exchange(ctx context.Context, a tasty.Action, s scope.Scope) (*tasty.Exchange, scope.Scope, error) {
	switch x := a.(type) {
	case tasty.Sender:
		ex, err := x.Send(ctx, s)
		if err != nil {
			return nil, nil, err
		}
		return ex, ex.Captured, nil
	case *tasty.SeriesNode:
		if len(x.Actions) == 0 {
			return nil, nil, errors.New("empty series yields no response")
		}
		n := len(x.Actions) - 1
		delta, err := tasty.Series(x.Actions[:n]...).Run(ctx, s)
		if err != nil {
			return nil, nil, err
		}
		ex, last, err := exchange(ctx, x.Actions[n], scope.Merge(s, delta))
		if err != nil {
			return nil, nil, err
		}
		return ex, scope.Merge(delta, last), nil
	case nil:
		return nil, nil, errors.New("missing request")
	}
	return nil, nil, errors.Errorf("%T yields no response", a)
}
