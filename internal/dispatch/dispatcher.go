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
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tombee/mcpdispatch/internal/log"
)

// Stats is the point-in-time snapshot returned by Dispatcher.Stats.
type Stats struct {
	ActiveNormal   int
	ActivePriority int
	Standby        int
	AvgLoadPct     float64
	QueueDepth     int
}

// Dispatcher is the public façade: the one type callers construct, start,
// submit work to, and stop. It composes a Pool, a Registry, a
// WeightTable, and a supervisor the same way the daemon's Runner composes
// its state manager, lifecycle manager, and log aggregator behind one
// Submit/Get/List API.
type Dispatcher struct {
	cfg      Config
	weights  *WeightTable
	pool     *Pool
	registry *Registry
	salvage  *salvageQueue
	sup      *supervisor
	metrics  Metrics
	logger   *slog.Logger

	running atomic.Bool
}

// New constructs a Dispatcher. factory is called by the pool every time it
// needs a new worker's Session; metrics may be nil, in which case
// dispatcher events are simply not recorded anywhere.
func New(cfg Config, weights *WeightTable, factory SessionFactory, metrics Metrics, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = log.WithComponent(logger, "dispatch")

	registry := NewRegistry()
	pool := newPool(cfg, factory, registry, metrics, logger)

	d := &Dispatcher{
		cfg:      cfg,
		weights:  weights,
		pool:     pool,
		registry: registry,
		salvage:  newSalvageQueue(),
		metrics:  metrics,
		logger:   logger,
	}
	d.sup = newSupervisor(cfg.SupervisorPeriod, logger, d.superviseTick)
	return d
}

// Start brings the pool up to its configured minimums and begins the
// supervisor's periodic health/scaling tick. Start is idempotent: calling
// it again on an already-running dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return nil
	}

	if err := d.pool.start(ctx); err != nil {
		d.running.Store(false)
		return fmt.Errorf("starting worker pool: %w", err)
	}

	d.sup.Start(ctx)
	go d.salvageLoop(ctx)

	d.logger.Info("dispatcher started",
		slog.Int("min_active", d.cfg.MinActive),
		slog.Int("standby_count", d.cfg.StandbyCount),
		slog.Int("priority_min_active", d.cfg.PriorityMinActive),
	)
	return nil
}

// Stop halts the supervisor, destroys every worker without waiting for
// in-flight tasks to finish, fails every result slot still pending with
// dispatcher-stopped, and removes all slots. It blocks until the
// supervisor's current tick, if any, has finished; ctx is not consulted.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if !d.running.CompareAndSwap(true, false) {
		return nil
	}

	d.sup.Stop()
	d.salvage.close()
	d.pool.shutdown()
	d.registry.FailAll(ErrDispatcherStopped())

	d.logger.Info("dispatcher stopped")
	return nil
}

// Submit places a new task for tool and returns its id immediately,
// without waiting for the tool to run. Call GetResult with the returned id
// to collect the eventual outcome.
func (d *Dispatcher) Submit(ctx context.Context, tool string, args map[string]any, opts SubmitOptions) (string, error) {
	if !d.running.Load() {
		return "", ErrDispatcherStopped()
	}

	weight := resolveWeight(d.weights, tool, opts.WeightOverride)
	lane := laneFor(opts)
	id := uuid.NewString()

	task := &Task{
		ID:       id,
		Tool:     tool,
		Args:     args,
		Weight:   weight,
		Lane:     lane,
		Deadline: opts.Deadline,
	}

	d.registry.Create(id)
	d.metrics.RecordSubmitted()

	if err := d.place(ctx, task); err != nil {
		d.registry.Discard(id)
		d.metrics.RecordPlacementFailure()
		return "", ErrPlacementFailed(tool, err)
	}

	return id, nil
}

// place binds task to a worker, trying first to pick an existing worker
// with spare capacity and falling back to activating a standby or freshly
// created one. It retries once if the chosen worker refuses the task
// between bind and enqueue (e.g. it started retiring in that instant).
func (d *Dispatcher) place(ctx context.Context, task *Task) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		w, ok := d.pool.pickAndBind(task)
		if !ok {
			var err error
			w, err = d.pool.activateStandbyAndBind(ctx, task)
			if err != nil {
				lastErr = err
				continue
			}
		}

		if err := w.enqueue(task); err != nil {
			d.pool.unbind(w, task)
			lastErr = err
			continue
		}

		task.bindWorker(w.id)
		return nil
	}
	return fmt.Errorf("no worker accepted the task after retrying: %w", lastErr)
}

// GetResult retrieves id's outcome. If block is false it returns
// immediately, failing with a pending error if the task has not finished.
// If block is true it waits up to timeout (zero meaning wait indefinitely,
// bounded only by ctx) for the task to finish; on timeout the result slot
// is left untouched so a later call can still collect the real outcome.
func (d *Dispatcher) GetResult(ctx context.Context, id string, block bool, timeout time.Duration) (any, error) {
	value, err := d.registry.Get(ctx, id, block, timeout)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Stats returns a point-in-time snapshot of the pool's shape.
func (d *Dispatcher) Stats() Stats {
	snap := d.pool.snapshot()

	var totalLoad, capacity int
	for _, w := range snap.activeNormal {
		totalLoad += w.load()
		capacity += d.cfg.MaxLoadPerWorker
	}
	for _, w := range snap.activePriority {
		totalLoad += w.load()
		capacity += d.cfg.MaxLoadPerWorker
	}

	var avgLoadPct float64
	if capacity > 0 {
		avgLoadPct = 100 * float64(totalLoad) / float64(capacity)
	}

	depth := d.salvage.len()

	stats := Stats{
		ActiveNormal:   len(snap.activeNormal),
		ActivePriority: len(snap.activePriority),
		Standby:        len(snap.standby),
		AvgLoadPct:     avgLoadPct,
		QueueDepth:     depth,
	}

	d.metrics.SetGauges(stats.ActiveNormal+stats.ActivePriority, stats.Standby, stats.AvgLoadPct, stats.QueueDepth)
	return stats
}
