// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"context"
	"sync"
	"time"
)

// outcome is what a task's worker eventually reports: either a value, or a
// typed failure. Exactly one of the two is ever the "real" one (err nil
// means success).
type outcome struct {
	value any
	err   *Error
}

// slot holds one task's eventual outcome. It is created at Submit time and
// destroyed the moment its result is read, or when the dispatcher stops,
// whichever comes first. A timed-out GetResult does not touch the slot at
// all, so a later call can still collect the real outcome.
type slot struct {
	mu    sync.Mutex
	done  chan struct{}
	ready bool
	out   outcome
}

// Registry is the dispatcher's result-slot table: a concurrent map from
// task id to its eventual outcome, read exactly once. This mirrors the
// deep-copy-on-read discipline the daemon's run state keeps between its
// internal mutable state and the snapshot it hands back to callers; here
// there is no mutable state to copy, just a value handed across a channel
// once and then forgotten.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

// Create opens a new pending slot for id. It must be called before any
// Post or Get for that id.
func (r *Registry) Create(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[id] = &slot{done: make(chan struct{})}
}

// Discard removes id's slot without ever posting to it, for the case where
// a task was created but never successfully placed.
func (r *Registry) Discard(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, id)
}

// Post resolves id's slot with value (on success) or err (on failure).
// Posting to an unknown or already-resolved slot is a silent no-op: the
// former means the dispatcher already stopped and cleared the table, the
// latter would violate the "resolved exactly once" invariant if allowed.
func (r *Registry) Post(id string, value any, err *Error) {
	r.mu.Lock()
	s, ok := r.slots[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return
	}
	s.out = outcome{value: value, err: err}
	s.ready = true
	close(s.done)
}

// Get retrieves id's outcome. If block is false, it returns immediately:
// ErrPending if the task has not completed, ErrUnknownTask if id has no
// slot. If block is true, it waits up to timeout (zero meaning
// indefinitely, bounded only by ctx) for the slot to resolve; on timeout it
// returns ErrTimeout and leaves the slot untouched. A successful read
// consumes the slot.
func (r *Registry) Get(ctx context.Context, id string, block bool, timeout time.Duration) (any, *Error) {
	r.mu.Lock()
	s, ok := r.slots[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownTask(id)
	}

	if !block {
		s.mu.Lock()
		ready := s.ready
		out := s.out
		s.mu.Unlock()
		if !ready {
			return nil, ErrPending(id)
		}
		r.remove(id)
		return out.value, out.err
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-s.done:
		s.mu.Lock()
		out := s.out
		s.mu.Unlock()
		r.remove(id)
		return out.value, out.err
	case <-waitCtx.Done():
		return nil, ErrTimeout(id)
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, id)
}

// FailAll resolves every still-pending slot with err and clears the table.
// It is called once, when the dispatcher stops.
func (r *Registry) FailAll(err *Error) {
	r.mu.Lock()
	slots := r.slots
	r.slots = make(map[string]*slot)
	r.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		if !s.ready {
			s.out = outcome{err: err}
			s.ready = true
			close(s.done)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of slots currently tracked, mostly useful for
// tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
