// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// buntdbstate implements signup.Store using BuntDB
// (https://github.com/tidwall/buntdb).
package buntdbstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/cocodb/waitlist/pkg/signup"
)

var (
	// DefaultTTL is the value used as TTL on buntdb.SetOptions
	DefaultTTL time.Duration = 24 * time.Hour
)

// New opens (or creates) the BuntDB file at path. Use ":memory:" for a
// database which isn't persisted.
func New(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		db: db,
	}, nil
}

type Store struct {
	db *buntdb.DB
}

var _ signup.Store = (*Store)(nil)

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database still accepts reads.
func (s *Store) Ping() error {
	return s.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Len()
		return err
	})
}

func stateKey(formID string) string {
	return fmt.Sprintf("%s-state", formID)
}

func (s *Store) Load(_ context.Context, formID string) (signup.State, error) {
	state := signup.Idle()
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		state, err = get(tx, formID)
		return err
	})
	if err != nil {
		return signup.Idle(), fmt.Errorf("problem reading %s: %v", formID, err)
	}
	return state, nil
}

func (s *Store) Transition(_ context.Context, formID string, fn func(signup.State) (signup.State, error)) (signup.State, error) {
	var cur, next signup.State
	var rejected error

	err := s.db.Update(func(tx *buntdb.Tx) error {
		var err error
		cur, err = get(tx, formID)
		if err != nil {
			return err
		}
		next, rejected = fn(cur)
		if rejected != nil {
			return rejected
		}

		bs, err := json.Marshal(next)
		if err != nil {
			return err
		}
		opts := &buntdb.SetOptions{
			Expires: DefaultTTL > 0,
			TTL:     DefaultTTL,
		}
		_, _, err = tx.Set(stateKey(formID), string(bs), opts)
		return err
	})
	if rejected != nil {
		return cur, rejected
	}
	if err != nil {
		return cur, fmt.Errorf("problem updating %s: %v", formID, err)
	}
	return next, nil
}

func get(tx *buntdb.Tx, formID string) (signup.State, error) {
	v, err := tx.Get(stateKey(formID))
	if err == buntdb.ErrNotFound {
		return signup.Idle(), nil
	}
	if err != nil {
		return signup.Idle(), err
	}
	var state signup.State
	if err := json.Unmarshal([]byte(v), &state); err != nil {
		return signup.Idle(), err
	}
	return state, nil
}
