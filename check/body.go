// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/vdobler/tasty/capture"
	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

func init() {
	Register(&Body{})
	Register(&HTMLContains{})
}

// ----------------------------------------------------------------------------
// Body

// Body checks the raw response body.
type Body struct {
	Equals   string `json:",omitempty"`
	Contains string `json:",omitempty"`
	Regexp   string `json:",omitempty"`

	re *regexp.Regexp
}

// Prepare implements Preparable.
func (b *Body) Prepare() (err error) {
	if b.Regexp != "" {
		b.re, err = regexp.Compile(b.Regexp)
		if err != nil {
			return MalformedCheck{Err: err}
		}
	}
	return nil
}

// Execute implements Check's Execute method.
func (b *Body) Execute(r *response.Response, _ scope.Scope) error {
	body := string(r.Raw)
	if b.Equals != "" && body != b.Equals {
		return &Failure{Check: "Body", Expected: b.Equals, Actual: body}
	}
	if b.Contains != "" && !strings.Contains(body, b.Contains) {
		return &Failure{Check: "Body", Expected: "containing " + b.Contains, Actual: body}
	}
	if b.Regexp != "" {
		if b.re == nil {
			if err := b.Prepare(); err != nil {
				return err
			}
		}
		if !b.re.MatchString(body) {
			return &Failure{Check: "Body", Expected: "matching " + b.Regexp, Actual: body}
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// HTMLContains

// HTMLContains checks the HTML elements selected by a CSS selector.
type HTMLContains struct {
	// Selector is the CSS selector of the elements, e.g. "ul.users li".
	Selector string

	// Text, if set, is the text content (trimmed) expected in the
	// selected elements, in order.
	Text []string `json:",omitempty"`

	// Count, if positive, is the number of elements expected.
	// A negative value checks that no element matches.
	Count int `json:",omitempty"`

	sel cascadia.Selector
}

// Prepare implements Preparable.
func (c *HTMLContains) Prepare() (err error) {
	c.sel, err = cascadia.Compile(c.Selector)
	if err != nil {
		return MalformedCheck{Err: err}
	}
	return nil
}

// Execute implements Check's Execute method.
func (c *HTMLContains) Execute(r *response.Response, _ scope.Scope) error {
	if c.sel == nil {
		if err := c.Prepare(); err != nil {
			return err
		}
	}
	doc, err := html.Parse(r.BodyReader())
	if err != nil {
		return &Failure{Check: "HTMLContains", Expected: "HTML", Actual: err.Error()}
	}
	nodes := c.sel.MatchAll(doc)
	name := "HTMLContains " + c.Selector
	switch {
	case c.Count < 0 && len(nodes) > 0:
		return &Failure{Check: name, Expected: 0, Actual: len(nodes)}
	case c.Count > 0 && len(nodes) != c.Count:
		return &Failure{Check: name, Expected: c.Count, Actual: len(nodes)}
	case c.Count == 0 && len(c.Text) == 0 && len(nodes) == 0:
		return &Failure{Check: name, Expected: "some element", Actual: 0}
	}
	if len(c.Text) > 0 {
		got := make([]string, len(nodes))
		for i, n := range nodes {
			got[i] = strings.TrimSpace(capture.TextContent(n))
		}
		if strings.Join(got, "\x00") != strings.Join(c.Text, "\x00") {
			return &Failure{Check: name, Expected: c.Text, Actual: got}
		}
	}
	return nil
}
