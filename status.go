// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tasty

import (
	"fmt"
)

// ----------------------------------------------------------------------------
// Status

// Status describes the outcome of a test.
type Status int

const (
	NotRun  Status = iota // Not yet executed
	Pending               // Skipped because its setup failed
	Pass                  // That's what we want
	Fail                  // One or more assertions failed
	Error                 // Request or capture failed
)

var statusNames = []string{"NotRun", "Pending", "Pass", "Fail", "Error"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || s > Error {
		return []byte(""), fmt.Errorf("no such status %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for i, n := range statusNames {
		if n == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("no such status %q", text)
}
