// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"testing"
	"time"

	"github.com/kr/pretty"
)

func TestStore(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	base := time.Date(2019, 5, 1, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i, typ := range []string{"func", "load", "func"} {
		r := NewRun(typ, i == 1)
		r.Start = base.Add(time.Duration(i) * time.Minute)
		r.Summary = "ok"
		if err := s.Put(r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}

	runs, err := s.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 || runs[0].ID != ids[2] || runs[2].ID != ids[0] {
		t.Fatalf("Got %# v, want newest first", pretty.Formatter(runs))
	}
	if !runs[1].Parallel || runs[1].Type != "load" {
		t.Errorf("Got %# v", pretty.Formatter(runs[1]))
	}

	runs, _ = s.List(2)
	if len(runs) != 2 {
		t.Errorf("Got %d runs, want 2", len(runs))
	}

	r, err := s.Get(ids[1])
	if err != nil {
		t.Fatal(err)
	}
	r.Failed, r.Summary, r.Duration = true, "1 failure", 3*time.Second
	if err := s.Put(r); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if !got.Failed || got.Summary != "1 failure" || got.Duration != 3*time.Second {
		t.Errorf("Got %# v", pretty.Formatter(got))
	}
	if runs, _ := s.List(0); len(runs) != 3 {
		t.Errorf("Got %d runs after update, want 3", len(runs))
	}

	if _, err := s.Get("nope"); err != ErrNotFound {
		t.Errorf("Got %v, want %v", err, ErrNotFound)
	}
	if err := s.Put(&Run{}); err == nil {
		t.Errorf("Got nil, want error for run without id")
	}
}
