// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tasty

// Buckets are the actions of a case partitioned by their role.
type Buckets struct {
	Before     []Action
	BeforeEach []*EachNode
	Tests      []TestAction
	AfterEach  []*EachNode
	After      []Action
}

// Split partitions actions of a case. TestActions are tests. Every other
// action preceding the first test is setup, every action following it is
// teardown. Each groups go to the BeforeEach or AfterEach bucket, the
// rest to Before or After. Nil actions are dropped.
func Split(actions []Action) Buckets {
	var b Buckets
	seenTest := false
	for _, a := range actions {
		switch x := a.(type) {
		case nil:
		case TestAction:
			seenTest = true
			b.Tests = append(b.Tests, x)
		case *EachNode:
			if seenTest {
				b.AfterEach = append(b.AfterEach, x)
			} else {
				b.BeforeEach = append(b.BeforeEach, x)
			}
		default:
			if seenTest {
				b.After = append(b.After, x)
			} else {
				b.Before = append(b.Before, x)
			}
		}
	}
	return b
}

// Empty reports whether no bucket holds an action.
func (b Buckets) Empty() bool {
	return len(b.Before) == 0 && len(b.BeforeEach) == 0 && len(b.Tests) == 0 &&
		len(b.AfterEach) == 0 && len(b.After) == 0
}
