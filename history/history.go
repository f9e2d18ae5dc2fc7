// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package history stores one record per test run.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("no such run")

// Run is the record of one test run.
type Run struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Env      string        `json:"env,omitempty"`
	Files    []string      `json:"files,omitempty"`
	Parallel bool          `json:"parallel"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed"`
	Summary  string        `json:"summary"`
	Error    string        `json:"error,omitempty"`
}

// NewRun returns a run of the given type started now with a fresh id.
func NewRun(typ string, parallel bool) *Run {
	return &Run{
		ID:       uuid.New().String(),
		Type:     typ,
		Parallel: parallel,
		Start:    time.Now(),
	}
}

// Store is a badger backed run history.
type Store struct {
	db *badger.DB
}

// Open opens the history in dir. An empty dir keeps the history in
// memory.
func Open(dir string) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir).WithSyncWrites(false).WithTruncate(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WithMessage(err, "could not open history")
	}
	return &Store{db: db}, nil
}

// runKey orders runs by start time.
func runKey(r *Run) []byte {
	return []byte(fmt.Sprintf("run-%020d-%s", r.Start.UnixNano(), r.ID))
}

func idKey(id string) []byte {
	return []byte("id-" + id)
}

var runPrefix = []byte("run-")

// Put stores r, replacing an earlier record with the same id.
func (s *Store) Put(r *Run) error {
	if r.ID == "" {
		return errors.New("run without id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(r.ID))
		switch err {
		case nil:
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(old); err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
		default:
			return err
		}
		key := runKey(r)
		if err := txn.Set(idKey(r.ID), key); err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Get returns the run with the given id.
func (s *Store) Get(id string) (*Run, error) {
	r := &Run{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, r)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "run %s", id)
	}
	return r, nil
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]*Run, error) {
	var runs []*Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		seek := append(append([]byte{}, runPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(runPrefix); it.Next() {
			r := &Run{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, r)
			}); err != nil {
				return err
			}
			runs = append(runs, r)
			if limit > 0 && len(runs) == limit {
				break
			}
		}
		return nil
	})
	return runs, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
