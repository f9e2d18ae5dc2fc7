// Copyright 2017 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errorlist contains a type to collect errors, e.g. the failures
// of all branches of a parallel group or of all checks of one test.
package errorlist

import (
	"fmt"
	"io"
	"strings"
)

// List is a collection of errors.
type List []error

// Append err to el. Nil errors are dropped and nested Lists are flattened.
func (el List) Append(err error) List {
	if err == nil {
		return el
	}
	if list, ok := err.(List); ok {
		for _, e := range list {
			el = el.Append(e)
		}
		return el
	}
	return append(el, err)
}

// Error implements the Error method of error.
func (el List) Error() string {
	return strings.Join(el.AsStrings(), ";  ")
}

// AsError returns el properly returning nil for a empty el.
func (el List) AsError() error {
	if len(el) == 0 {
		return nil
	}
	if len(el) == 1 {
		return el[0]
	}
	return el
}

// AsStrings returns the error list as as string slice.
func (el List) AsStrings() []string {
	s := []string{}
	for _, e := range el {
		if nel, ok := e.(List); ok {
			s = append(s, nel.AsStrings()...)
		} else {
			s = append(s, e.Error())
		}
	}
	return s
}

// Fprint prints err to w. If err is a List it prints one line per error.
func Fprint(w io.Writer, err error) {
	if err == nil {
		return
	}
	if el, ok := err.(List); ok {
		for _, msg := range el.AsStrings() {
			fmt.Fprintln(w, msg)
		}
	} else {
		fmt.Fprintln(w, err.Error())
	}
}

// Lines returns the messages of err, one per element if err is a List.
func Lines(err error) []string {
	if err == nil {
		return nil
	}
	if el, ok := err.(List); ok {
		return el.AsStrings()
	}
	return []string{err.Error()}
}
