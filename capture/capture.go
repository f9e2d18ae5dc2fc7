// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capture extracts named values from a response.
//
// A capture is specified as
//     {as: "id", json: "$.data.id"}
// and yields the mapping {"id": <value>} which is merged into the
// context of subsequent actions. A json path starting with '#' addresses
// the response headers instead of the body:
//     {as: "ct", json: "#content-type"}
//
// JSON paths are translated to jq queries and evaluated with gojq: "$"
// denotes the root of the document, followed by dotted members ".name",
// quoted members ["a-b"] and indices [3]. Additionally a value may be captured from HTML
// documents with a CSS selector or from the raw body with a regular
// expression.
package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/itchyny/gojq"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

// HeaderPrefix marks json paths which address the response headers.
const HeaderPrefix = "#"

// Spec specifies one captured value.
type Spec struct {
	// As is the name under which the value is captured.
	As string `json:"as" yaml:"as"`

	// JSON is the path into the body, or into the headers if prefixed
	// with HeaderPrefix.
	JSON string `json:"json,omitempty" yaml:"json,omitempty"`

	// Selector is a CSS selector of an HTML element. The text content
	// of the first matching element is captured, or the value of its
	// Attribute if set.
	Selector  string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Attribute string `json:"attribute,omitempty" yaml:"attribute,omitempty"`

	// Regexp is matched against the raw body and Submatch selects the
	// captured group, 0 being the whole match.
	Regexp   string `json:"regexp,omitempty" yaml:"regexp,omitempty"`
	Submatch int    `json:"submatch,omitempty" yaml:"submatch,omitempty"`
}

// IsHeader reports whether s addresses the response headers.
func (s Spec) IsHeader() bool {
	return strings.HasPrefix(s.JSON, HeaderPrefix)
}

// MalformedError is returned for captures which cannot be evaluated at all,
// e.g. because their path is syntactically wrong.
type MalformedError struct {
	Spec Spec
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed capture %q: %s", e.Spec.As, e.Err)
}

// ----------------------------------------------------------------------------
// List

// List of captures. Later captures shadow earlier ones with the same name.
type List []Spec

// UnmarshalJSON accepts a single capture object or an array of them.
func (l *List) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var s Spec
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = List{s}
		return nil
	}
	var list []Spec
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = List(list)
	return nil
}

// UnmarshalYAML accepts a single capture mapping or a sequence of them.
func (l *List) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var s Spec
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = List{s}
		return nil
	}
	var list []Spec
	if err := node.Decode(&list); err != nil {
		return err
	}
	*l = List(list)
	return nil
}

// Validate checks that every capture in l is well-formed.
func (l List) Validate() error {
	for _, s := range l {
		if _, err := compile(s); err != nil {
			return err
		}
	}
	return nil
}

// WithoutHeaders returns the captures of l which address the body.
func (l List) WithoutHeaders() List {
	var body List
	for _, s := range l {
		if !s.IsHeader() {
			body = append(body, s)
		}
	}
	return body
}

// Capture evaluates all captures in list against r. A nil list yields an
// empty scope; a path which matches nothing yields a nil value.
func Capture(list List, r *response.Response) (scope.Scope, error) {
	captured := scope.Scope{}
	for _, spec := range list {
		ex, err := compile(spec)
		if err != nil {
			return nil, err
		}
		if r == nil {
			captured[spec.As] = nil
			continue
		}
		v, err := ex.extract(r)
		if err != nil {
			return nil, errors.WithMessagef(err, "capture %q", spec.As)
		}
		captured[spec.As] = v
	}
	return captured, nil
}

// ----------------------------------------------------------------------------
// Extractors

type extractor interface {
	extract(r *response.Response) (interface{}, error)
}

func compile(s Spec) (extractor, error) {
	if s.As == "" {
		return nil, &MalformedError{Spec: s, Err: errors.New("missing name (as)")}
	}
	n := 0
	for _, set := range []bool{s.JSON != "", s.Selector != "", s.Regexp != ""} {
		if set {
			n++
		}
	}
	if n != 1 {
		return nil, &MalformedError{Spec: s, Err: errors.New("exactly one of json, selector or regexp is required")}
	}

	switch {
	case s.Selector != "":
		sel, err := cascadia.Compile(s.Selector)
		if err != nil {
			return nil, &MalformedError{Spec: s, Err: err}
		}
		return htmlExtractor{sel: sel, attr: s.Attribute}, nil
	case s.Regexp != "":
		re, err := regexp.Compile(s.Regexp)
		if err != nil {
			return nil, &MalformedError{Spec: s, Err: err}
		}
		if s.Submatch < 0 || s.Submatch > re.NumSubexp() {
			return nil, &MalformedError{Spec: s,
				Err: errors.Errorf("submatch %d out of range", s.Submatch)}
		}
		return bodyExtractor{re: re, submatch: s.Submatch}, nil
	}

	path, headers := s.JSON, false
	if s.IsHeader() {
		path, headers = headerPath(strings.TrimPrefix(s.JSON, HeaderPrefix)), true
	}
	code, err := CompilePath(path)
	if err != nil {
		return nil, &MalformedError{Spec: s, Err: err}
	}
	return jsonExtractor{code: code, headers: headers}, nil
}

// headerPath turns a header name into a path; paths are kept.
func headerPath(name string) string {
	switch {
	case strings.HasPrefix(name, "$"):
		return name
	case strings.HasPrefix(name, ".") || strings.HasPrefix(name, "["):
		return "$" + name
	}
	return fmt.Sprintf("$[%q]", strings.ToLower(name))
}

// CompilePath translates the path into a jq query and compiles it.
// Every member is quoted so names like "user-id" address a member.
func CompilePath(path string) (*gojq.Code, error) {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "$") {
		return nil, errors.Errorf("path %q does not start with $", path)
	}
	rest := path[1:]
	if rest != "" && rest[0] != '.' && rest[0] != '[' {
		return nil, errors.Errorf("path %q: unexpected %q after $", path, rest[:1])
	}
	if strings.HasPrefix(rest, "..") {
		return nil, errors.Errorf("path %q: recursive descent is not supported", path)
	}
	segs, err := scope.Split(path)
	if err != nil {
		return nil, err
	}
	q := &strings.Builder{}
	q.WriteString(".")
	for _, seg := range segs[1:] {
		if seg.IsIndex {
			fmt.Fprintf(q, "[%d]", seg.Index)
			continue
		}
		name, _ := json.Marshal(seg.Name)
		fmt.Fprintf(q, "[%s]", name)
	}
	return CompileQuery(q.String())
}

// CompileQuery parses and compiles a jq query.
func CompileQuery(src string) (*gojq.Code, error) {
	query, err := gojq.Parse(src)
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", src)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", src)
	}
	return code, nil
}

// EvalPath evaluates a compiled path or query against doc and returns
// its first result. A query without results yields nil.
func EvalPath(code *gojq.Code, doc interface{}) (interface{}, error) {
	iter := code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, err
	}
	return v, nil
}

type jsonExtractor struct {
	code    *gojq.Code
	headers bool
}

func (e jsonExtractor) extract(r *response.Response) (interface{}, error) {
	var doc interface{} = r.Body
	if e.headers {
		doc = r.Header
	}
	if doc == nil {
		return nil, nil
	}
	v, err := EvalPath(e.code, doc)
	if err != nil {
		// Indexing a string or number fails in jq; a path which
		// matches nothing captures nil.
		return nil, nil
	}
	return v, nil
}

type htmlExtractor struct {
	sel  cascadia.Selector
	attr string
}

func (e htmlExtractor) extract(r *response.Response) (interface{}, error) {
	doc, err := html.Parse(r.BodyReader())
	if err != nil {
		return nil, err
	}
	node := e.sel.MatchFirst(doc)
	if node == nil {
		return nil, nil
	}
	if e.attr == "" {
		return strings.TrimSpace(TextContent(node)), nil
	}
	for _, a := range node.Attr {
		if a.Key == e.attr {
			return a.Val, nil
		}
	}
	return nil, nil
}

type bodyExtractor struct {
	re       *regexp.Regexp
	submatch int
}

func (e bodyExtractor) extract(r *response.Response) (interface{}, error) {
	m := e.re.FindSubmatch(r.Raw)
	if m == nil {
		return nil, nil
	}
	return string(m[e.submatch]), nil
}

// TextContent returns the concatenated text nodes below n.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode, html.DocumentNode:
		buf := &strings.Builder{}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			buf.WriteString(TextContent(child))
		}
		return buf.String()
	}
	return ""
}
