package convo

import (
	"context"
	"sync"
)

// Memory is a process-local Tracker. State is lost on restart.
type Memory struct {
	mu     sync.Mutex
	states map[int64]State
}

var _ Tracker = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{states: make(map[int64]State)}
}

func (m *Memory) Begin(_ context.Context, actorID int64, flow Flow, payload Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[actorID] = State{Flow: flow, Payload: payload}
	return nil
}

func (m *Memory) Current(_ context.Context, actorID int64) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[actorID]
	return st, ok, nil
}

func (m *Memory) Advance(_ context.Context, actorID int64, expected, next Flow, patch func(*Payload)) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[actorID]
	if err := mismatch(expected, st, ok); err != nil {
		return State{}, err
	}
	st.Flow = next
	if patch != nil {
		patch(&st.Payload)
	}
	m.states[actorID] = st
	return st, nil
}

func (m *Memory) End(_ context.Context, actorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, actorID)
	return nil
}
