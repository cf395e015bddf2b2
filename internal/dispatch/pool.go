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
	"sync"

	"github.com/google/uuid"
	"github.com/tombee/mcpdispatch/internal/mcpsession"
)

// SessionFactory creates a fresh Session for a new worker in the given
// lane. The pool never inspects the sessions it creates beyond the Session
// interface; swapping in a Fake-backed factory is how tests exercise the
// pool without spawning real subprocesses.
type SessionFactory func(ctx context.Context, lane Lane) (mcpsession.Session, error)

// Pool is the elastic collection of workers a dispatcher places tasks
// against. It keeps three groups: active-normal, active-priority, and
// standby (normal lane only, since the priority lane has no standby
// partition per this dispatcher's scaling policy). A fourth map, retiring,
// is consulted by allWorkers and removeDead; no pool operation adds a
// worker to it (retireAndDestroy retires and destroys a worker directly).
type Pool struct {
	mu sync.Mutex

	cfg     Config
	factory SessionFactory

	activeNormal   map[string]*Worker
	activePriority map[string]*Worker
	standby        map[string]*Worker
	retiring       map[string]*Worker

	registry *Registry
	metrics  Metrics
	logger   *slog.Logger
}

func newPool(cfg Config, factory SessionFactory, registry *Registry, metrics Metrics, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:            cfg,
		factory:        factory,
		activeNormal:   make(map[string]*Worker),
		activePriority: make(map[string]*Worker),
		standby:        make(map[string]*Worker),
		retiring:       make(map[string]*Worker),
		registry:       registry,
		metrics:        metrics,
		logger:         logger,
	}
}

// start brings the pool up to its configured minimums: min_active normal
// workers, priority_min_active priority workers, and standby_count standby
// workers.
func (p *Pool) start(ctx context.Context) error {
	for i := 0; i < p.cfg.MinActive; i++ {
		w, err := p.newWorkerLocked(ctx, LaneNormal)
		if err != nil {
			return fmt.Errorf("starting normal-lane worker %d/%d: %w", i+1, p.cfg.MinActive, err)
		}
		p.mu.Lock()
		p.activeNormal[w.id] = w
		w.mu.Lock()
		w.partition = partitionActive
		w.mu.Unlock()
		p.mu.Unlock()
	}

	for i := 0; i < p.cfg.PriorityMinActive; i++ {
		w, err := p.newWorkerLocked(ctx, LanePriority)
		if err != nil {
			return fmt.Errorf("starting priority-lane worker %d/%d: %w", i+1, p.cfg.PriorityMinActive, err)
		}
		p.mu.Lock()
		p.activePriority[w.id] = w
		w.mu.Lock()
		w.partition = partitionActive
		w.mu.Unlock()
		p.mu.Unlock()
	}

	for i := 0; i < p.cfg.StandbyCount; i++ {
		w, err := p.newWorkerLocked(ctx, LaneNormal)
		if err != nil {
			return fmt.Errorf("starting standby worker %d/%d: %w", i+1, p.cfg.StandbyCount, err)
		}
		p.mu.Lock()
		p.standby[w.id] = w
		p.mu.Unlock()
	}

	return nil
}

// newWorkerLocked creates and starts a worker without registering it in
// any partition map; the caller decides where it lands.
func (p *Pool) newWorkerLocked(ctx context.Context, lane Lane) (*Worker, error) {
	session, err := p.factory(ctx, lane)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	w := newWorker(id, lane, session, p.registry, p.metrics, p.logger)
	w.start(ctx)
	return w, nil
}

func (p *Pool) activeMap(lane Lane) map[string]*Worker {
	if lane == LanePriority {
		return p.activePriority
	}
	return p.activeNormal
}

// pickAndBind picks the least-loaded worker in task's lane whose current
// load is still below max_load_per_worker, and binds task to it in the same
// critical section as the pick (the bind must be atomic with the pick, or
// two concurrent submissions could both pick the same worker before either
// one's load is visible to the other).
func (p *Pool) pickAndBind(task *Task) (*Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := p.activeMap(task.Lane)

	var best *Worker
	var bestLoad int
	var bestInFlight int

	for _, w := range active {
		load := w.load()
		if load >= p.cfg.MaxLoadPerWorker {
			continue
		}
		inFlight := w.inFlightCount()

		switch {
		case best == nil:
		case load < bestLoad:
		case load == bestLoad && inFlight < bestInFlight:
		case load == bestLoad && inFlight == bestInFlight && w.idleSince().Before(best.idleSince()):
		default:
			continue
		}
		best, bestLoad, bestInFlight = w, load, inFlight
	}

	if best == nil {
		return nil, false
	}
	best.bindLocked(task)
	return best, true
}

// activateStandby brings one worker into lane's active group. For the
// normal lane this prefers promoting an existing standby worker; if none
// is available (or the lane is priority, which has no standby partition)
// it creates a fresh worker synchronously. Every normal-lane activation
// triggers an asynchronous standby refill so the pool does not run dry.
func (p *Pool) activateStandby(ctx context.Context, lane Lane) (*Worker, error) {
	p.mu.Lock()

	active := p.activeMap(lane)
	if len(active) >= p.maxActiveLocked(lane) {
		p.mu.Unlock()
		return nil, fmt.Errorf("lane %s is already at max_active", lane)
	}

	var w *Worker

	if lane == LaneNormal {
		for id, standby := range p.standby {
			w = standby
			delete(p.standby, id)
			break
		}
	}

	if w == nil {
		var err error
		w, err = p.newWorkerLocked(ctx, lane)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}

	active[w.id] = w
	w.mu.Lock()
	w.partition = partitionActive
	w.mu.Unlock()

	p.mu.Unlock()

	if lane == LaneNormal {
		go p.refillStandby(ctx)
	}

	return w, nil
}

// activateStandbyAndBind is activateStandby followed by binding task to
// the activated worker, in the same critical section as the activation
// (the bind must be atomic with the activation, or a concurrent pick could
// see a worker that looks idle when it is actually about to receive task).
func (p *Pool) activateStandbyAndBind(ctx context.Context, task *Task) (*Worker, error) {
	p.mu.Lock()

	active := p.activeMap(task.Lane)
	if len(active) >= p.maxActiveLocked(task.Lane) {
		p.mu.Unlock()
		return nil, fmt.Errorf("lane %s is already at max_active", task.Lane)
	}

	var w *Worker

	if task.Lane == LaneNormal {
		for id, standby := range p.standby {
			w = standby
			delete(p.standby, id)
			break
		}
	}

	if w == nil {
		var err error
		w, err = p.newWorkerLocked(ctx, task.Lane)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}

	active[w.id] = w
	w.mu.Lock()
	w.partition = partitionActive
	w.mu.Unlock()
	w.bindLocked(task)

	p.mu.Unlock()

	if task.Lane == LaneNormal {
		go p.refillStandby(ctx)
	}

	return w, nil
}

func (p *Pool) maxActiveLocked(lane Lane) int {
	if lane == LanePriority {
		return p.cfg.PriorityMaxActive
	}
	return p.cfg.MaxActive
}

// unbind reverses a bind that was never followed by a successful enqueue.
func (p *Pool) unbind(w *Worker, task *Task) {
	w.unbindLocked(task)
}

// refillStandby tops the standby pool back up to standby_count. It never
// trims an over-full standby pool; demotions from scale-down are the only
// path that adds workers beyond the configured count, and that is
// considered acceptable slack rather than a bug.
func (p *Pool) refillStandby(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.standby) >= p.cfg.StandbyCount {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		w, err := p.newWorkerLocked(ctx, LaneNormal)
		if err != nil {
			p.logger.Warn("failed to refill standby worker", slog.Any("error", err))
			return
		}

		p.mu.Lock()
		if len(p.standby) >= p.cfg.StandbyCount {
			p.mu.Unlock()
			_ = w.destroy()
			return
		}
		p.standby[w.id] = w
		p.mu.Unlock()
	}
}

// snapshot describes the pool's current shape for stats() and the scaling
// decisions in supervisor.go.
type poolSnapshot struct {
	activeNormal   []*Worker
	activePriority []*Worker
	standby        []*Worker
}

func (p *Pool) snapshot() poolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := poolSnapshot{}
	for _, w := range p.activeNormal {
		s.activeNormal = append(s.activeNormal, w)
	}
	for _, w := range p.activePriority {
		s.activePriority = append(s.activePriority, w)
	}
	for _, w := range p.standby {
		s.standby = append(s.standby, w)
	}
	return s
}

// demote moves an idle, over-minimum active worker back to standby.
// It is used by scale-down; the priority lane has no standby partition, so
// priority workers are retired and destroyed instead of demoted.
func (p *Pool) demote(w *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeNormal, w.id)
	p.standby[w.id] = w
}

// retireAndDestroy moves w out of whichever active map it is in, drains
// and destroys it. Used for priority-lane scale-down, where there is no
// standby partition to demote into.
func (p *Pool) retireAndDestroy(w *Worker) []*Task {
	p.mu.Lock()
	delete(p.activePriority, w.id)
	delete(p.activeNormal, w.id)
	delete(p.standby, w.id)
	p.mu.Unlock()

	w.retire()
	tasks := w.drainInFlight()
	_ = w.destroy()
	return tasks
}

// removeDead removes w from whichever map currently holds it, without
// assuming it is still alive enough to drain gracefully. The caller has
// already confirmed the session is dead and is responsible for handling
// whatever drainInFlight returns.
func (p *Pool) removeDead(w *Worker) []*Task {
	p.mu.Lock()
	delete(p.activeNormal, w.id)
	delete(p.activePriority, w.id)
	delete(p.standby, w.id)
	delete(p.retiring, w.id)
	p.mu.Unlock()

	tasks := w.drainInFlight()
	_ = w.destroy()
	return tasks
}

// allWorkers returns every worker the pool currently tracks, across every
// partition, for the supervisor's health probe.
func (p *Pool) allWorkers() []*Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make([]*Worker, 0, len(p.activeNormal)+len(p.activePriority)+len(p.standby)+len(p.retiring))
	for _, w := range p.activeNormal {
		all = append(all, w)
	}
	for _, w := range p.activePriority {
		all = append(all, w)
	}
	for _, w := range p.standby {
		all = append(all, w)
	}
	for _, w := range p.retiring {
		all = append(all, w)
	}
	return all
}

// shutdown destroys every worker the pool holds, closing each session at
// once. It does not wait for in-flight tasks to finish.
func (p *Pool) shutdown() {
	for _, w := range p.allWorkers() {
		_ = w.destroy()
	}
}
