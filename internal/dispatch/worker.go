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
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/mcpdispatch/internal/log"
	"github.com/tombee/mcpdispatch/internal/mcpsession"
)

// partition is a worker's current place in the pool.
type partition int

const (
	partitionStandby partition = iota
	partitionActive
	partitionRetiring
)

// Worker owns exactly one Session and runs tasks bound to it through its
// own private FIFO, one at a time. Its lock guards current_load, the
// in-flight set, and last_activity (everything the pool and the
// supervisor need to read without touching the FIFO itself).
type Worker struct {
	id      string
	lane    Lane
	session mcpsession.Session
	logger  *slog.Logger

	registry *Registry
	metrics  Metrics

	mu           sync.Mutex
	partition    partition
	currentLoad  int
	inFlight     map[string]*Task
	lastActivity time.Time
	fifo         []*Task
	signal       chan struct{}
	closed       bool
}

func newWorker(id string, lane Lane, session mcpsession.Session, registry *Registry, metrics Metrics, logger *slog.Logger) *Worker {
	w := &Worker{
		id:           id,
		lane:         lane,
		session:      session,
		logger:       log.WithWorker(logger, id, lane.String()),
		registry:     registry,
		metrics:      metrics,
		partition:    partitionStandby,
		inFlight:     make(map[string]*Task),
		lastActivity: time.Now(),
		signal:       make(chan struct{}, 1),
	}
	return w
}

// start launches the worker's FIFO loop. It must be called once, before the
// worker is ever enqueued against.
func (w *Worker) start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	for {
		w.mu.Lock()
		if len(w.fifo) == 0 {
			if w.closed {
				w.mu.Unlock()
				return
			}
			w.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-w.signal:
			}
			continue
		}
		task := w.fifo[0]
		w.fifo = w.fifo[1:]
		w.mu.Unlock()

		w.execute(ctx, task)
	}
}

// enqueue appends task to the worker's FIFO. The caller is responsible for
// having already bound load to the worker under the pool lock; enqueue
// itself never fails due to capacity, only because the worker is retiring
// or closed.
func (w *Worker) enqueue(task *Task) error {
	w.mu.Lock()
	if w.partition == partitionRetiring || w.closed {
		w.mu.Unlock()
		return errWorkerUnavailable
	}
	w.fifo = append(w.fifo, task)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
	return nil
}

func (w *Worker) execute(ctx context.Context, task *Task) {
	start := time.Now()
	res, err := w.session.Invoke(ctx, task.Tool, task.Args)

	w.mu.Lock()
	w.currentLoad -= task.Weight
	if w.currentLoad < 0 {
		w.currentLoad = 0
	}
	delete(w.inFlight, task.ID)
	w.lastActivity = time.Now()
	w.mu.Unlock()

	elapsed := time.Since(start)
	w.metrics.RecordTaskDuration(elapsed.Seconds())

	switch {
	case err != nil:
		w.logger.Warn("task failed: session transport error", log.Error(err), slog.String(log.TaskIDKey, task.ID))
		w.registry.Post(task.ID, nil, ErrTransportFailed(w.id, err))
		w.metrics.RecordOutcome(string(KindTransportFailed))
	case res.IsError:
		w.logger.Debug("task completed with a tool-reported error", slog.String(log.TaskIDKey, task.ID))
		w.registry.Post(task.ID, nil, ErrToolError(task.Tool, res.Text()))
		w.metrics.RecordOutcome(string(KindToolError))
	default:
		w.registry.Post(task.ID, res, nil)
		w.metrics.RecordOutcome("ok")
	}
}

// bindLocked adds task to this worker's load and in-flight set. The caller
// must already hold the pool lock; this increments load atomically with
// the pool's own pick/activate decision.
func (w *Worker) bindLocked(task *Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currentLoad += task.Weight
	w.inFlight[task.ID] = task
	w.lastActivity = time.Now()
}

// unbindLocked reverses bindLocked, for the case where enqueue failed after
// bind succeeded.
func (w *Worker) unbindLocked(task *Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currentLoad -= task.Weight
	if w.currentLoad < 0 {
		w.currentLoad = 0
	}
	delete(w.inFlight, task.ID)
}

func (w *Worker) load() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentLoad
}

func (w *Worker) inFlightCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight)
}

func (w *Worker) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActivity
}

func (w *Worker) isIdle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inFlight) == 0 && len(w.fifo) == 0
}

// alive probes the underlying session. It does not hold the worker lock
// while doing so (a session probe can be slow, and nothing else about the
// worker depends on it).
func (w *Worker) alive(ctx context.Context) bool {
	return w.session.Alive(ctx)
}

// drainInFlight returns every task currently bound to this worker (running
// or still queued) and clears the worker's own bookkeeping. It is called
// exactly once, by the supervisor, right before the worker is destroyed.
// inFlight already holds every bound task, queued ones included (bindLocked
// records a task before enqueue ever puts it on the FIFO, and run only
// removes it from the FIFO once execution starts), so the FIFO itself is
// not a separate source of tasks here.
func (w *Worker) drainInFlight() []*Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	tasks := make([]*Task, 0, len(w.inFlight))
	for _, t := range w.inFlight {
		tasks = append(tasks, t)
	}

	w.inFlight = make(map[string]*Task)
	w.fifo = nil
	w.currentLoad = 0
	return tasks
}

// retire marks the worker as no longer accepting new tasks. Its current
// FIFO is still allowed to drain.
func (w *Worker) retire() {
	w.mu.Lock()
	w.partition = partitionRetiring
	w.mu.Unlock()
}

// destroy stops the worker's run loop and closes its session. It is safe
// to call even if the worker still has in-flight tasks; callers that care
// about those tasks must call drainInFlight first.
func (w *Worker) destroy() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}

	return w.session.Close()
}

type workerError struct{ message string }

func (e *workerError) Error() string { return e.message }

var errWorkerUnavailable = &workerError{message: "worker is retiring or closed"}
