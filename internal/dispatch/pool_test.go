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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpdispatch/internal/mcpsession"
)

func newTestPool(t *testing.T, cfg Config) (*Pool, *[]*mcpsession.Fake) {
	t.Helper()
	var fakes []*mcpsession.Fake
	p := newPool(cfg, fakeFactory(&fakes), NewRegistry(), noopMetrics{}, testLogger())
	return p, &fakes
}

func TestPool_StartCreatesConfiguredShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 2
	cfg.StandbyCount = 3
	cfg.PriorityMinActive = 1

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	snap := p.snapshot()
	assert.Len(t, snap.activeNormal, 2)
	assert.Len(t, snap.activePriority, 1)
	assert.Len(t, snap.standby, 3)
}

func TestPool_PickAndBindChoosesLeastLoaded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 3
	cfg.StandbyCount = 0
	cfg.MaxLoadPerWorker = 100

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	snap := p.snapshot()
	loads := []int{20, 5, 50}
	for i, w := range snap.activeNormal {
		w.mu.Lock()
		w.currentLoad = loads[i]
		w.mu.Unlock()
	}

	task := &Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LaneNormal}
	chosen, ok := p.pickAndBind(task)
	require.True(t, ok)
	assert.Equal(t, snap.activeNormal[1].id, chosen.id)
}

func TestPool_PickAndBindSkipsWorkersAtCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 1
	cfg.StandbyCount = 0
	cfg.MaxLoadPerWorker = 5

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	snap := p.snapshot()
	snap.activeNormal[0].mu.Lock()
	snap.activeNormal[0].currentLoad = 5
	snap.activeNormal[0].mu.Unlock()

	task := &Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LaneNormal}
	_, ok := p.pickAndBind(task)
	assert.False(t, ok, "no worker has spare capacity under max_load_per_worker")
}

func TestPool_PickAndBindRespectsLane(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 1
	cfg.StandbyCount = 0
	cfg.PriorityMinActive = 1
	cfg.MaxLoadPerWorker = 100

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	snap := p.snapshot()
	task := &Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LanePriority}
	chosen, ok := p.pickAndBind(task)
	require.True(t, ok)
	assert.Equal(t, snap.activePriority[0].id, chosen.id)
}

func TestPool_ActivateStandbyPromotesExistingStandbyWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 0
	cfg.StandbyCount = 1
	cfg.MaxActive = 5

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	before := p.snapshot()
	require.Len(t, before.standby, 1)
	standbyID := before.standby[0].id

	w, err := p.activateStandby(context.Background(), LaneNormal)
	require.NoError(t, err)
	assert.Equal(t, standbyID, w.id, "activation should promote the existing standby worker, not create a new one")
}

func TestPool_ActivateStandbyCreatesFreshWorkerWhenNoneStandby(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 0
	cfg.StandbyCount = 0
	cfg.MaxActive = 5

	p, fakes := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	w, err := p.activateStandby(context.Background(), LaneNormal)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Len(t, *fakes, 1)
}

func TestPool_ActivateStandbyFailsAtMaxActive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 1
	cfg.MaxActive = 1
	cfg.StandbyCount = 0

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	_, err := p.activateStandby(context.Background(), LaneNormal)
	assert.Error(t, err)
}

func TestPool_ActivateStandbyPriorityNeverPromotesFromStandby(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 0
	cfg.StandbyCount = 1
	cfg.PriorityMinActive = 0
	cfg.PriorityMaxActive = 2

	p, fakes := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))
	require.Len(t, *fakes, 1, "only the one normal-lane standby worker exists so far")

	_, err := p.activateStandby(context.Background(), LanePriority)
	require.NoError(t, err)

	snap := p.snapshot()
	assert.Len(t, snap.standby, 1, "the normal-lane standby worker must be untouched by a priority activation")
	assert.Len(t, *fakes, 2, "priority activation must create a fresh worker rather than steal the normal standby")
}

func TestPool_DemoteMovesWorkerFromActiveToStandby(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 1
	cfg.StandbyCount = 0

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	snap := p.snapshot()
	w := snap.activeNormal[0]

	p.demote(w)

	after := p.snapshot()
	assert.Empty(t, after.activeNormal)
	assert.Len(t, after.standby, 1)
	assert.Equal(t, w.id, after.standby[0].id)
}

func TestPool_RetireAndDestroyDrainsAndRemovesWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 0
	cfg.PriorityMinActive = 1

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	snap := p.snapshot()
	w := snap.activePriority[0]

	task := &Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LanePriority}
	w.bindLocked(task)

	drained := p.retireAndDestroy(w)
	assert.Len(t, drained, 1)
	assert.Equal(t, "t1", drained[0].ID)

	after := p.snapshot()
	assert.Empty(t, after.activePriority)
}

func TestPool_RemoveDeadDrainsAndRemovesFromWhicheverMapHoldsIt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 1
	cfg.StandbyCount = 1

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	snap := p.snapshot()
	standbyWorker := snap.standby[0]

	drained := p.removeDead(standbyWorker)
	assert.Empty(t, drained)

	after := p.snapshot()
	assert.Empty(t, after.standby)
}

func TestPool_RefillStandbyTopsBackUpToConfiguredCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 0
	cfg.StandbyCount = 2

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	snap := p.snapshot()
	p.removeDead(snap.standby[0])

	require.Len(t, p.snapshot().standby, 1)
	p.refillStandby(context.Background())

	assert.Len(t, p.snapshot().standby, 2)
}

func TestPool_AllWorkersCoversEveryPartition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 1
	cfg.StandbyCount = 1
	cfg.PriorityMinActive = 1

	p, _ := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	assert.Len(t, p.allWorkers(), 3)
}

func TestPool_ShutdownDestroysEveryWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinActive = 2
	cfg.StandbyCount = 1

	p, fakes := newTestPool(t, cfg)
	require.NoError(t, p.start(context.Background()))

	p.shutdown()

	for _, f := range *fakes {
		assert.False(t, f.Alive(context.Background()))
	}
}
