// Copyright 2016 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// script.go contains checks based on otto, a JavaScript interpreter.

package check

import (
	"errors"
	"io/ioutil"
	"strings"
	"sync"

	"github.com/robertkrimen/otto"

	"github.com/vdobler/tasty/response"
	"github.com/vdobler/tasty/scope"
)

func init() {
	Register(&Script{})
}

// Script executes the provided JavaScript.
//
// The response is bound to the top-level name "response" as
//     {status: 200, statusText: "OK", headers: {...}, data: <body>}
// and the context of the test to the name "context".
//
// The script's last value indicates success or failure:
//   - Success: true, 0, ""
//   - Failure: false, any number != 0, any string != ""
// A failing string value is used as the failure message.
//
// The JavaScript code is interpreted by otto. See the documentation at
// https://godoc.org/github.com/robertkrimen/otto for details.
type Script struct {
	// Source is JavaScript code to be evaluated.
	//
	// The script may be read from disk with the following syntax:
	//     @file:/path/to/script
	Source string `json:",omitempty"`

	mu     sync.Mutex
	vm     *otto.Otto
	script *otto.Script
}

// Prepare implements Preparable.
func (s *Script) Prepare() error {
	source, name := s.Source, "<inline>"
	if strings.HasPrefix(source, "@file:") {
		name = source[len("@file:"):]
		data, err := ioutil.ReadFile(name)
		if err != nil {
			return MalformedCheck{Err: err}
		}
		source = string(data)
	}
	if strings.TrimSpace(source) == "" {
		return MalformedCheck{Err: errMissing("Source")}
	}

	s.vm = otto.New()
	script, err := s.vm.Compile(name, source)
	if err != nil {
		return MalformedCheck{Err: err}
	}
	s.script = script
	return nil
}

// Execute implements Check's Execute method.
func (s *Script) Execute(r *response.Response, sc scope.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script == nil {
		if err := s.Prepare(); err != nil {
			return err
		}
	}

	if err := s.vm.Set("response", r.Document()); err != nil {
		return err
	}
	if err := s.vm.Set("context", map[string]interface{}(sc)); err != nil {
		return err
	}
	val, err := s.vm.Run(s.script)
	if err != nil {
		return &Failure{Check: "Script", Expected: "script to run", Actual: err.Error()}
	}

	str, err := val.ToString()
	if err != nil {
		return err
	}
	if str == "0" || str == "true" || str == "" {
		return nil
	}
	if str == "false" {
		return errors.New("Script: script returned false")
	}
	return errors.New("Script: " + str)
}
