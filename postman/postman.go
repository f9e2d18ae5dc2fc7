// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package postman turns the requests of a Postman v2 collection into
// resource declarations.
package postman

import (
	"encoding/json"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	logger "github.com/rs/zerolog/log"

	"github.com/vdobler/tasty"
)

// ErrNotACollection is returned for JSON documents without a Postman id.
var ErrNotACollection = errors.New("not a Postman collection")

// Collection is the subset of a Postman v2 collection used here.
type Collection struct {
	Info struct {
		ID   string `json:"_postman_id"`
		Name string `json:"name"`
	} `json:"info"`
	Item []Item `json:"item"`
}

// Item is a folder (with Item) or a single request.
type Item struct {
	Name    string   `json:"name"`
	Item    []Item   `json:"item,omitempty"`
	Request *Request `json:"request,omitempty"`
}

// Request of an Item.
type Request struct {
	Method string     `json:"method"`
	Header []KeyValue `json:"header"`
	URL    URL        `json:"url"`
	Body   *Body      `json:"body,omitempty"`
}

// URL of a Request, only path and query are used.
type URL struct {
	Raw   string     `json:"raw"`
	Path  []string   `json:"path"`
	Query []KeyValue `json:"query"`
}

// KeyValue is a header or query parameter.
type KeyValue struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Body of a Request.
type Body struct {
	Mode string `json:"mode"`
	Raw  string `json:"raw"`
}

// Parse decodes a collection.
func Parse(data []byte) (*Collection, error) {
	c := &Collection{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "cannot decode collection")
	}
	if c.Info.ID == "" {
		return nil, ErrNotACollection
	}
	return c, nil
}

// Load reads and parses the collection in filename.
func Load(filename string) (*Collection, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessage(err, filename)
	}
	return c, nil
}

// Declarations walks the items of c depth first. A request is declared
// under the alias "<folder>:<name>" where folder is the name of the
// enclosing item (the collection name for top-level requests).
func (c *Collection) Declarations() ([]tasty.Declaration, error) {
	var ds []tasty.Declaration
	err := walk(c.Item, c.Info.Name, &ds)
	return ds, err
}

func walk(items []Item, parent string, ds *[]tasty.Declaration) error {
	for _, it := range items {
		if it.Item != nil {
			if err := walk(it.Item, it.Name, ds); err != nil {
				return err
			}
			continue
		}
		if it.Request == nil {
			continue
		}
		d, err := declaration(it, parent)
		if err != nil {
			return errors.WithMessagef(err, "item %q", it.Name)
		}
		logger.Info().
			Str("component", "postman").
			Str("url", d.URL).
			Str("method", d.Methods[0]).
			Msg("Declared resource from collection")
		*ds = append(*ds, d)
	}
	return nil
}

func declaration(it Item, parent string) (tasty.Declaration, error) {
	r := it.Request
	d := tasty.Declaration{
		URL:     strings.Join(r.URL.Path, "/"),
		Methods: []string{strings.ToLower(r.Method)},
		Alias:   parent + ":" + it.Name,
		Headers: keyed(r.Header),
		Params:  keyed(r.URL.Query),
	}
	if d.Methods[0] == "" {
		d.Methods[0] = "get"
	}
	if r.Body != nil && r.Body.Raw != "" {
		raw := strings.TrimSpace(r.Body.Raw)
		if strings.HasPrefix(raw, "{") {
			var body interface{}
			if err := json.Unmarshal([]byte(raw), &body); err != nil {
				return d, errors.Wrap(err, "body")
			}
			d.Body = body
		} else {
			d.Body = r.Body.Raw
		}
	}
	return d, nil
}

// keyed maps the enabled pairs by key, a later pair wins.
func keyed(kvs []KeyValue) map[string]interface{} {
	if len(kvs) == 0 {
		return nil
	}
	m := make(map[string]interface{}, len(kvs))
	for _, kv := range kvs {
		if kv.Disabled {
			continue
		}
		m[kv.Key] = kv.Value
	}
	return m
}
