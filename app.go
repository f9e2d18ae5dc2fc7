// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tasty

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vdobler/tasty/schema"
)

// DeclarationError reports a malformed App or Resource declaration.
type DeclarationError struct {
	What   string // "app" or the resource name
	Reason string
}

func (e *DeclarationError) Error() string {
	return fmt.Sprintf("bad declaration of %s: %s", e.What, e.Reason)
}

// Verbs lists the HTTP verbs a Resource may declare.
var Verbs = []string{"get", "head", "post", "put", "patch", "delete", "options"}

func knownVerb(v string) bool {
	for _, k := range Verbs {
		if k == v {
			return true
		}
	}
	return false
}

// AppConfig configures the application under test.
type AppConfig struct {
	// Name of the application, used in trace links.
	Name string `json:"name" yaml:"name"`

	// Host and Trace map environment names to the base URL of the
	// application and of its tracing UI.
	Host  map[string]string `json:"host" yaml:"host"`
	Trace map[string]string `json:"trace,omitempty" yaml:"trace,omitempty"`
}

// App is the application under test: a set of declared resources bound
// to an execution context.
type App struct {
	Name string
	Env  *Env

	cfg       AppConfig
	mu        sync.RWMutex
	resources map[string]*Resource
	log       zerolog.Logger
}

// NewApp returns the application configured by cfg, running in env.
func NewApp(name string, cfg *AppConfig, env *Env) (*App, error) {
	if cfg == nil {
		return nil, &DeclarationError{What: "app", Reason: "missing configuration"}
	}
	if env == nil {
		return nil, &DeclarationError{What: "app", Reason: "missing execution context"}
	}
	if name == "" {
		name = cfg.Name
	}
	if name == "" {
		return nil, &DeclarationError{What: "app", Reason: "missing name"}
	}
	return &App{
		Name:      name,
		Env:       env,
		cfg:       *cfg,
		resources: make(map[string]*Resource),
		log:       env.Log.With().Str("app", name).Logger(),
	}, nil
}

// Host is the base URL of the app in the current environment.
func (a *App) Host() string {
	return a.cfg.Host[a.Env.Name]
}

// TraceLink returns the link to the trace of the request with the given
// id or the empty string if no trace UI is configured for the environment.
func (a *App) TraceLink(requestID string) string {
	base := a.cfg.Trace[a.Env.Name]
	if base == "" || requestID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("service", a.Name)
	q.Set("tags", fmt.Sprintf(`{"x-request-id":%q}`, requestID))
	return strings.TrimRight(base, "/") + "/search?" + q.Encode()
}

// Declaration declares one resource.
type Declaration struct {
	URL     string   `json:"url" yaml:"url"`
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	Alias   string   `json:"alias,omitempty" yaml:"alias,omitempty"`

	// Host overrides the app host per environment for resources served
	// by another service.
	Host map[string]string `json:"host,omitempty" yaml:"host,omitempty"`

	Headers map[string]interface{} `json:"headers,omitempty" yaml:"headers,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Body    interface{}            `json:"body,omitempty" yaml:"body,omitempty"`

	// Mock and Schemas are keyed by verb.
	Mock    map[string]interface{}    `json:"mock,omitempty" yaml:"mock,omitempty"`
	Schemas map[string]*schema.Schema `json:"schemas,omitempty" yaml:"schemas,omitempty"`
}

// Name under which the resource is registered.
func (d Declaration) Name() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.URL
}

func (d Declaration) validate() error {
	if strings.TrimSpace(d.URL) == "" {
		return &DeclarationError{What: "resource " + d.Alias, Reason: "missing url"}
	}
	for _, m := range d.Methods {
		if !knownVerb(strings.ToLower(m)) {
			return &DeclarationError{What: d.Name(), Reason: fmt.Sprintf("unknown method %q", m)}
		}
	}
	for v, s := range d.Schemas {
		if s == nil {
			continue
		}
		if err := s.Compile(); err != nil {
			return &DeclarationError{What: d.Name(), Reason: fmt.Sprintf("schema for %s: %s", v, err)}
		}
	}
	return nil
}

// Declare registers a resource. A resource declared twice under the same
// name replaces the first one.
func (a *App) Declare(d Declaration) (*Resource, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	res := newResource(a, d)
	a.mu.Lock()
	if _, dup := a.resources[res.Name()]; dup {
		a.log.Warn().Str("resource", res.Name()).Msg("Redeclared resource")
	}
	a.resources[res.Name()] = res
	a.mu.Unlock()
	return res, nil
}

// DeclareAll declares all ds, stopping at the first error.
func (a *App) DeclareAll(ds []Declaration) error {
	for _, d := range ds {
		if _, err := a.Declare(d); err != nil {
			return err
		}
	}
	return nil
}

// Resource returns the resource declared under name or nil.
func (a *App) Resource(name string) *Resource {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.resources[name]
}

// Resources returns all declared resources sorted by name.
func (a *App) Resources() []*Resource {
	a.mu.RLock()
	list := make([]*Resource, 0, len(a.resources))
	for _, r := range a.resources {
		list = append(list, r)
	}
	a.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}
