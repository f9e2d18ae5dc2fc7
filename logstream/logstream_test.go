// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logstream

import (
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFanOut(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	a, cancelA := s.Subscribe(10)
	b, cancelB := s.Subscribe(1)
	defer cancelB()

	fmt.Fprint(s, "one")
	fmt.Fprint(s, "two")
	cancelA()
	cancelA()

	var got []string
	for e := range a {
		got = append(got, string(e))
	}
	if want := []string{"one", "two"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Got %v, want %v", got, want)
	}

	// b has room for one entry, the second is dropped.
	if len(b) != 1 || string(<-b) != "one" {
		t.Errorf("Slow subscriber must keep the first entry only")
	}
	if n := s.Subscribers(); n != 1 {
		t.Errorf("Got %d subscribers, want 1", n)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-b; ok {
		t.Errorf("Channel must be closed with the stream")
	}
	if _, err := s.Write([]byte("late")); err == nil {
		t.Errorf("Write after close must fail")
	}
}

func TestReplay(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wal")
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	buf := []byte("first")
	s.Write(buf)
	copy(buf, "xxxxx")
	s.Write([]byte("second"))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.Write([]byte("third"))
	if got := s.LastIndex(); got != 3 {
		t.Errorf("Got last index %d, want 3", got)
	}

	var got []string
	err = s.Replay(2, func(i uint64, e []byte) {
		got = append(got, fmt.Sprintf("%d:%s", i, e))
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"2:second", "3:third"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Got %v, want %v", got, want)
	}

	got = nil
	s.Replay(0, func(i uint64, e []byte) { got = append(got, string(e)) })
	if len(got) != 3 || got[0] != "first" {
		t.Errorf("Got %v, want all three entries", got)
	}
}
