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
	"time"

	"github.com/tombee/mcpdispatch/internal/log"
)

// superviseTick is the supervisor's per-period body: probe every worker's
// session, salvage whatever a dead one was holding, then scale the active
// set to match load, then top the standby partition back up. Each step
// only acts on what the previous step left behind, so a tick that finds
// nothing wrong does almost no work.
func (d *Dispatcher) superviseTick(ctx context.Context) {
	d.healthProbe(ctx)
	d.scaleUp(ctx)
	d.scaleDown(ctx)
	go d.pool.refillStandby(ctx)

	log.Trace(d.logger, "supervisor tick complete")
}

// healthProbe pings every worker's session. A worker that fails its probe
// is pulled out of the pool immediately and its in-flight tasks are queued
// for salvage.
func (d *Dispatcher) healthProbe(ctx context.Context) {
	for _, w := range d.pool.allWorkers() {
		if w.alive(ctx) {
			continue
		}

		d.logger.Warn("worker failed health probe, salvaging", slog.String(log.WorkerIDKey, w.id))
		tasks := d.pool.removeDead(w)
		d.metrics.RecordSalvage()

		for _, t := range tasks {
			if err := d.salvage.push(&salvageItem{task: t}); err != nil {
				d.registry.Post(t.ID, nil, ErrSalvageFailed(t.ID))
				d.metrics.RecordOutcome(string(KindSalvageFailed))
			}
		}
	}
}

// salvageLoop consumes the salvage queue and attempts to re-place each
// task on a new worker. It runs for the dispatcher's lifetime, started
// alongside the supervisor.
func (d *Dispatcher) salvageLoop(ctx context.Context) {
	for {
		item, err := d.salvage.pop(ctx)
		if err != nil {
			return
		}
		d.replaceTask(ctx, item.task)
	}
}

// replaceTask attempts to re-place task on a fresh worker. A task is
// salvaged at most once: if it was already through one salvage attempt and
// loses its second worker too, it fails permanently with
// salvage-failed rather than looping forever.
func (d *Dispatcher) replaceTask(ctx context.Context, task *Task) {
	if task.markSalvaged() {
		d.registry.Post(task.ID, nil, ErrSalvageFailed(task.ID))
		d.metrics.RecordOutcome(string(KindSalvageFailed))
		return
	}

	if err := d.place(ctx, task); err != nil {
		d.logger.Warn("salvage re-placement failed", slog.String(log.TaskIDKey, task.ID), log.Error(err))
		d.registry.Post(task.ID, nil, ErrSalvageFailed(task.ID))
		d.metrics.RecordOutcome(string(KindSalvageFailed))
	}
}

// scaleUp activates more workers in a lane once its active set's average
// load crosses scale_up_pct of max_load_per_worker, up to that lane's
// max_active.
func (d *Dispatcher) scaleUp(ctx context.Context) {
	d.scaleUpLane(ctx, LaneNormal)
	d.scaleUpLane(ctx, LanePriority)
}

func (d *Dispatcher) scaleUpLane(ctx context.Context, lane Lane) {
	snap := d.pool.snapshot()
	workers := snap.activeNormal
	maxActive := d.cfg.MaxActive
	if lane == LanePriority {
		workers = snap.activePriority
		maxActive = d.cfg.PriorityMaxActive
	}

	if len(workers) == 0 || len(workers) >= maxActive {
		return
	}

	var totalLoad int
	for _, w := range workers {
		totalLoad += w.load()
	}
	capacity := len(workers) * d.cfg.MaxLoadPerWorker
	if capacity == 0 {
		return
	}
	loadPct := 100 * float64(totalLoad) / float64(capacity)
	if loadPct < float64(d.cfg.ScaleUpPct) {
		return
	}

	if _, err := d.pool.activateStandby(ctx, lane); err != nil {
		d.logger.Warn("scale-up failed to activate a worker", log.Error(err), slog.String(log.LaneKey, lane.String()))
		return
	}
	d.logger.Info("scaled up", slog.String(log.LaneKey, lane.String()), slog.Float64("load_pct", loadPct))
}

// scaleDown releases idle, over-minimum active workers. Normal-lane
// workers are demoted back to standby; priority-lane workers, which have
// no standby partition, are retired and destroyed outright.
func (d *Dispatcher) scaleDown(ctx context.Context) {
	idleCutoff := time.Now().Add(-d.cfg.ScaleDownIdle)
	snap := d.pool.snapshot()

	normalCount := len(snap.activeNormal)
	for _, w := range snap.activeNormal {
		if normalCount <= d.cfg.MinActive {
			break
		}
		if w.isIdle() && w.idleSince().Before(idleCutoff) {
			d.pool.demote(w)
			normalCount--
			d.logger.Info("scaled down: demoted idle worker to standby", slog.String(log.WorkerIDKey, w.id))
		}
	}

	priorityCount := len(snap.activePriority)
	for _, w := range snap.activePriority {
		if priorityCount <= d.cfg.PriorityMinActive {
			break
		}
		if w.isIdle() && w.idleSince().Before(idleCutoff) {
			d.pool.retireAndDestroy(w)
			priorityCount--
			d.logger.Info("scaled down: retired idle priority worker", slog.String(log.WorkerIDKey, w.id))
		}
	}
}
