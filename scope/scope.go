// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scope provides the variable context threaded through a chain
// of actions.
//
// A Scope maps variable names to arbitrary (JSON-like) values. Scopes are
// never modified in place once handed to an action: new values are
// produced by Merge which returns a fresh Scope in which later arguments
// shadow earlier ones.
package scope

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scope is a mapping from variable name to value.
type Scope map[string]interface{}

// New merges all scopes into a fresh one.
func New(scopes ...Scope) Scope {
	return Merge(scopes...)
}

// Merge returns a new Scope containing all keys of scopes. Keys of later
// scopes shadow keys of earlier ones. Nil scopes are ignored. The values
// are not copied, use Clone for that.
func Merge(scopes ...Scope) Scope {
	n := 0
	for _, s := range scopes {
		n += len(s)
	}
	merged := make(Scope, n)
	for _, s := range scopes {
		for k, v := range s {
			merged[k] = v
		}
	}
	return merged
}

// With returns a copy of s with name set to value.
func (s Scope) With(name string, value interface{}) Scope {
	return Merge(s, Scope{name: value})
}

// Clone returns a structural deep copy of s: nested maps and slices are
// copied so that the clone shares no mutable state with s.
func (s Scope) Clone() Scope {
	if s == nil {
		return nil
	}
	c := make(Scope, len(s))
	for k, v := range s {
		c[k] = CloneValue(v)
	}
	return c
}

// CloneValue returns a deep copy of the JSON-like value v.
func CloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case Scope:
		return x.Clone()
	case map[string]interface{}:
		c := make(map[string]interface{}, len(x))
		for k, e := range x {
			c[k] = CloneValue(e)
		}
		return c
	case map[string]string:
		c := make(map[string]string, len(x))
		for k, e := range x {
			c[k] = e
		}
		return c
	case []interface{}:
		c := make([]interface{}, len(x))
		for i, e := range x {
			c[i] = CloneValue(e)
		}
		return c
	case []string:
		return append([]string(nil), x...)
	case []byte:
		return append([]byte(nil), x...)
	}
	return v
}

// Keys returns the names defined in s.
func (s Scope) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// ----------------------------------------------------------------------------
// Property paths

// UndefinedError is returned by Lookup if a path does not resolve.
type UndefinedError struct {
	Path string // the full path
	At   string // the segment which could not be resolved
}

func (e *UndefinedError) Error() string {
	if e.At == e.Path {
		return fmt.Sprintf("%s is not defined", e.Path)
	}
	return fmt.Sprintf("%s is not defined (no %s)", e.Path, e.At)
}

// Lookup resolves the property path in s. A path consists of a variable
// name followed by any number of member accesses ".name", index accesses
// "[3]" or quoted member accesses ["some-key"]:
//     user.address.city
//     users[0].name
//     headers["x-request-id"]
// A path which does not resolve yields an *UndefinedError. Values which
// exist but are nil are returned without error.
func (s Scope) Lookup(path string) (interface{}, error) {
	segs, err := Split(path)
	if err != nil {
		return nil, err
	}
	var cur interface{} = map[string]interface{}(s)
	for i, seg := range segs {
		next, ok := step(cur, seg)
		if !ok {
			at := path
			if i > 0 {
				at = seg.String()
			}
			return nil, &UndefinedError{Path: path, At: at}
		}
		cur = next
	}
	return cur, nil
}

// Has reports whether path resolves in s.
func (s Scope) Has(path string) bool {
	_, err := s.Lookup(path)
	return err == nil
}

// Segment is one step of a property path: either a member Name or an Index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

func (seg Segment) String() string {
	if seg.IsIndex {
		return "[" + strconv.Itoa(seg.Index) + "]"
	}
	return seg.Name
}

// Split parses path into its segments.
func Split(path string) ([]Segment, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty property path")
	}
	segs := []Segment{}
	for i := 0; i < len(p); {
		switch c := p[i]; {
		case c == '.':
			if i == 0 || i+1 == len(p) || p[i+1] == '.' || p[i+1] == '[' {
				return nil, errors.Errorf("malformed property path %q", path)
			}
			i++
		case c == '[':
			end := strings.IndexByte(p[i:], ']')
			if end < 0 {
				return nil, errors.Errorf("malformed property path %q: missing ]", path)
			}
			inner := strings.TrimSpace(p[i+1 : i+end])
			if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
				segs = append(segs, Segment{Name: inner[1 : len(inner)-1]})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil {
					return nil, errors.Errorf("malformed index %q in property path %q", inner, path)
				}
				segs = append(segs, Segment{Index: n, IsIndex: true})
			}
			i += end + 1
		default:
			j := i
			for j < len(p) && p[j] != '.' && p[j] != '[' {
				j++
			}
			segs = append(segs, Segment{Name: strings.TrimSpace(p[i:j])})
			i = j
		}
	}
	return segs, nil
}

func step(cur interface{}, seg Segment) (interface{}, bool) {
	switch x := cur.(type) {
	case map[string]interface{}:
		if seg.IsIndex {
			v, ok := x[strconv.Itoa(seg.Index)]
			return v, ok
		}
		v, ok := x[seg.Name]
		return v, ok
	case Scope:
		return step(map[string]interface{}(x), seg)
	case map[string]string:
		v, ok := x[seg.Name]
		return v, ok
	case []interface{}:
		if !seg.IsIndex {
			if seg.Name == "length" {
				return float64(len(x)), true
			}
			return nil, false
		}
		if seg.Index < 0 || seg.Index >= len(x) {
			return nil, false
		}
		return x[seg.Index], true
	case []string:
		if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(x) {
			return nil, false
		}
		return x[seg.Index], true
	}
	return nil, false
}
