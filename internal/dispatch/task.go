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
	"sync"
	"time"
)

// Lane partitions the worker pool into two independently sized groups.
// Priority-lane tasks are placed against priority-lane workers only, and
// vice versa; the two never compete for the same capacity.
type Lane int

const (
	// LaneNormal is the default lane.
	LaneNormal Lane = iota
	// LanePriority is reserved for latency-sensitive callers. It has no
	// standby partition: activating a priority worker always creates a
	// fresh one synchronously.
	LanePriority
)

// String renders the lane the way it appears in logs and metric labels.
func (l Lane) String() string {
	if l == LanePriority {
		return "priority"
	}
	return "normal"
}

// SubmitOptions configures one Submit call.
type SubmitOptions struct {
	// Priority routes the task to the priority lane.
	Priority bool
	// WeightOverride, if positive, is used in place of the tool's entry in
	// the weight table for this one task.
	WeightOverride int
	// Deadline, if non-zero, is stored on the task for the caller's own
	// bookkeeping. The dispatcher does not enforce it; GetResult's timeout
	// parameter is the actual wait-time control.
	Deadline time.Time
}

// Task is a single unit of work bound to at most one worker at a time.
type Task struct {
	ID       string
	Tool     string
	Args     map[string]any
	Weight   int
	Lane     Lane
	Deadline time.Time

	mu        sync.Mutex
	workerID  string
	salvaged  bool
}

// bindWorker records which worker currently owns this task.
func (t *Task) bindWorker(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workerID = id
}

// boundWorker returns the id of the worker currently holding this task, or
// "" if unbound.
func (t *Task) boundWorker() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.workerID
}

// markSalvaged reports whether this task had already been through one
// salvage attempt, and records that it has now been through this one. A
// task that dies with its second worker is not retried again.
func (t *Task) markSalvaged() (alreadySalvaged bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	alreadySalvaged = t.salvaged
	t.salvaged = true
	return alreadySalvaged
}
