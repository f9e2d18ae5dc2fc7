// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tasty provides a declarative DSL for HTTP tests which can be
// executed either as functional tests or compiled into a load test.
//
// Resources
//
// An App groups the Resources of one service. A Resource is declared once
// with its URL, the HTTP verbs it supports and default headers, query
// parameters and body:
//     app, _ := tasty.NewApp("users", &tasty.AppConfig{
//         Host: map[string]string{"develop": "http://localhost:8080"},
//     }, env)
//     users, _ := app.Declare(tasty.Declaration{URL: "users", Methods: []string{"get", "post"}})
// Invoking a verb yields an Action:
//     create, _ := users.Invoke("post", tasty.Call{
//         Body:    map[string]interface{}{"name": "${name}"},
//         Capture: capture.List{{As: "id", JSON: "$.id"}},
//     })
// Strings in headers, params, body and path of a call may contain
// ${expr} placeholders which are resolved against the context the action
// runs in. Values captured from the response are merged into the context
// of subsequent actions.
//
// Orchestration
//
// Actions are combined with Series (sequential, each action sees the
// captures of its predecessors) and Parallel (concurrent, all actions see
// the same context, captures are merged in declaration order). A Case
// groups actions into a suite: actions before the first test are setup,
// actions after the last test are teardown, Each groups run around every
// test.
//
// Drivers
//
// What an Action does is decided by the Driver of the Env: the functional
// driver (package functional) executes requests immediately and asserts
// on the responses, the load driver (package load) turns the same
// definitions into a flow/scenario document for a load generator.
package tasty
