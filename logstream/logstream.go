// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logstream fans the log of a test run out to subscribers and
// keeps it in a write-ahead log so that it can be replayed later.
package logstream

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/wal"
)

// DefaultBuffer is the channel capacity of a subscription.
const DefaultBuffer = 256

// Stream is an io.Writer. Every Write is one entry.
type Stream struct {
	mu     sync.Mutex
	log    *wal.Log
	idx    uint64
	nextID int
	subs   map[int]chan []byte
	closed bool
}

// Open returns a stream persisting its entries in the WAL directory dir.
// An empty dir keeps nothing.
func Open(dir string) (*Stream, error) {
	s := &Stream{subs: map[int]chan []byte{}}
	if dir == "" {
		return s, nil
	}
	log, err := wal.Open(dir, &wal.Options{NoSync: true})
	if err != nil {
		return nil, errors.WithMessage(err, "could not open run log")
	}
	idx, err := log.LastIndex()
	if err != nil {
		log.Close()
		return nil, errors.WithMessage(err, "could not read last index")
	}
	s.log, s.idx = log, idx
	return s, nil
}

// Write appends a copy of p to the log and hands it to every subscriber.
// Slow subscribers lose entries instead of blocking the writer.
func (s *Stream) Write(p []byte) (int, error) {
	entry := make([]byte, len(p))
	copy(entry, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("write on closed stream")
	}
	if s.log != nil {
		if err := s.log.Write(s.idx+1, entry); err != nil {
			return 0, errors.WithMessagef(err, "could not append entry %d", s.idx+1)
		}
		s.idx++
	}
	for _, c := range s.subs {
		select {
		case c <- entry:
		default:
		}
	}
	return len(p), nil
}

// Subscribe returns a channel receiving all entries written from now on
// and a function ending the subscription. The channel is closed when the
// subscription ends or the stream is closed.
func (s *Stream) Subscribe(buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	c := make(chan []byte, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(c)
		return c, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = c

	var once sync.Once
	return c, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Replay calls fn for every persisted entry starting at index from
// (1 is the first entry). Without WAL nothing is replayed.
func (s *Stream) Replay(from uint64, fn func(index uint64, entry []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	first, err := s.log.FirstIndex()
	if err != nil {
		return errors.WithMessage(err, "could not read first index")
	}
	if first == 0 {
		return nil
	}
	if from < first {
		from = first
	}
	for i := from; i <= s.idx; i++ {
		data, err := s.log.Read(i)
		if err != nil {
			return errors.WithMessagef(err, "could not read index %d", i)
		}
		fn(i, data)
	}
	return nil
}

// LastIndex is the index of the last persisted entry, 0 if there is none.
func (s *Stream) LastIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

// Sync flushes the WAL to disk.
func (s *Stream) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	return s.log.Sync()
}

// Close ends all subscriptions and closes the WAL.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, c := range s.subs {
		delete(s.subs, id)
		close(c)
	}
	if s.log == nil {
		return nil
	}
	return s.log.Close()
}
