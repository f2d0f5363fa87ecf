package form

import (
	"context"
	"errors"
	"sync"
)

type DeleteState string

const (
	DeleteIdle       DeleteState = "idle"
	DeleteConfirming DeleteState = "confirming"
	DeleteDeleting   DeleteState = "deleting"
)

var ErrNotConfirming = errors.New("delete was not requested")

// DeleteFlow runs Idle -> Confirming -> Deleting -> Idle per record id. A delete
// only reaches the backend after an explicit Confirm.
type DeleteFlow struct {
	mu     sync.Mutex
	states map[string]DeleteState
}

func NewDeleteFlow() *DeleteFlow {
	return &DeleteFlow{states: make(map[string]DeleteState)}
}

// Request asks for confirmation. Requesting twice is a no-op.
func (f *DeleteFlow) Request(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states[id] == DeleteDeleting {
		return ErrBusy
	}
	f.states[id] = DeleteConfirming
	return nil
}

// Abort returns a confirming record to Idle.
func (f *DeleteFlow) Abort(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.states[id] {
	case DeleteDeleting:
		return ErrBusy
	case DeleteConfirming:
		delete(f.states, id)
	}
	return nil
}

// Confirm runs fn for a confirming record. The record is back to Idle when
// Confirm returns, whatever fn did.
func (f *DeleteFlow) Confirm(ctx context.Context, id string, fn func(ctx context.Context, id string) error) error {
	f.mu.Lock()
	switch f.states[id] {
	case DeleteDeleting:
		f.mu.Unlock()
		return ErrBusy
	case DeleteConfirming:
	default:
		f.mu.Unlock()
		return ErrNotConfirming
	}
	f.states[id] = DeleteDeleting
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.states, id)
		f.mu.Unlock()
	}()
	return fn(ctx, id)
}

func (f *DeleteFlow) State(id string) DeleteState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[id]; ok {
		return s
	}
	return DeleteIdle
}

// Pending returns the ids that are confirming or deleting.
func (f *DeleteFlow) Pending() map[string]DeleteState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]DeleteState, len(f.states))
	for id, s := range f.states {
		out[id] = s
	}
	return out
}

// Reset drops every confirmation that has not started deleting.
func (f *DeleteFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.states {
		if s == DeleteConfirming {
			delete(f.states, id)
		}
	}
}
