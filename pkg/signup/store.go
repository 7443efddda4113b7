// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package signup

import (
	"context"
	"sync"
)

// Store holds the State of each form.
type Store interface {
	// Load returns the State of formID. Unknown forms are Idle.
	Load(ctx context.Context, formID string) (State, error)

	// Transition replaces the State of formID with the result of fn.
	// fn sees the current State and runs atomically with the write.
	// When fn returns an error nothing is written and the current
	// State is returned along with that error.
	Transition(ctx context.Context, formID string, fn func(State) (State, error)) (State, error)
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]State),
	}
}

func (m *MemoryStore) Load(_ context.Context, formID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.states[formID]; ok {
		return s, nil
	}
	return Idle(), nil
}

func (m *MemoryStore) Transition(_ context.Context, formID string, fn func(State) (State, error)) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.states[formID]
	if !ok {
		cur = Idle()
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	m.states[formID] = next
	return next, nil
}
