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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mcpdispatch/internal/mcpsession"
)

func newTestWorker(session mcpsession.Session) (*Worker, *Registry) {
	reg := NewRegistry()
	w := newWorker("w1", LaneNormal, session, reg, noopMetrics{}, testLogger())
	return w, reg
}

func TestWorker_BindLockedTracksLoadAndInFlight(t *testing.T) {
	w, _ := newTestWorker(mcpsession.NewFake())
	task := &Task{ID: "t1", Tool: "noop", Weight: 7, Lane: LaneNormal}

	w.bindLocked(task)

	assert.Equal(t, 7, w.load())
	assert.Equal(t, 1, w.inFlightCount())
}

func TestWorker_UnbindLockedReversesBind(t *testing.T) {
	w, _ := newTestWorker(mcpsession.NewFake())
	task := &Task{ID: "t1", Tool: "noop", Weight: 7, Lane: LaneNormal}

	w.bindLocked(task)
	w.unbindLocked(task)

	assert.Equal(t, 0, w.load())
	assert.Equal(t, 0, w.inFlightCount())
}

func TestWorker_UnbindLockedNeverGoesNegative(t *testing.T) {
	w, _ := newTestWorker(mcpsession.NewFake())
	task := &Task{ID: "t1", Tool: "noop", Weight: 7, Lane: LaneNormal}

	w.unbindLocked(task)

	assert.Equal(t, 0, w.load())
}

func TestWorker_EnqueueRunsTaskAndPostsResult(t *testing.T) {
	fake := mcpsession.NewFake()
	fake.InvokeFn = func(ctx context.Context, tool string, args map[string]any) (*mcpsession.Result, error) {
		return &mcpsession.Result{Content: []mcpsession.ContentItem{{Type: "text", Text: "done"}}}, nil
	}
	w, reg := newTestWorker(fake)
	ctx := context.Background()
	w.start(ctx)

	task := &Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LaneNormal}
	reg.Create(task.ID)
	w.bindLocked(task)
	require.NoError(t, w.enqueue(task))

	val, derr := reg.Get(ctx, task.ID, true, time.Second)
	require.Nil(t, derr)
	res := val.(*mcpsession.Result)
	assert.Equal(t, "done", res.Text())

	assert.Equal(t, 0, w.load())
	assert.Equal(t, 0, w.inFlightCount())
}

func TestWorker_ExecuteTransportErrorPostsTransportFailed(t *testing.T) {
	fake := mcpsession.NewFake()
	fake.Kill()
	w, reg := newTestWorker(fake)
	ctx := context.Background()
	w.start(ctx)

	task := &Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LaneNormal}
	reg.Create(task.ID)
	w.bindLocked(task)
	require.NoError(t, w.enqueue(task))

	_, derr := reg.Get(ctx, task.ID, true, time.Second)
	require.NotNil(t, derr)
	assert.Equal(t, KindTransportFailed, derr.Kind)
}

func TestWorker_ExecuteToolErrorPostsToolError(t *testing.T) {
	fake := mcpsession.NewFake()
	fake.InvokeFn = func(ctx context.Context, tool string, args map[string]any) (*mcpsession.Result, error) {
		return &mcpsession.Result{IsError: true, Content: []mcpsession.ContentItem{{Type: "text", Text: "bad input"}}}, nil
	}
	w, reg := newTestWorker(fake)
	ctx := context.Background()
	w.start(ctx)

	task := &Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LaneNormal}
	reg.Create(task.ID)
	w.bindLocked(task)
	require.NoError(t, w.enqueue(task))

	_, derr := reg.Get(ctx, task.ID, true, time.Second)
	require.NotNil(t, derr)
	assert.Equal(t, KindToolError, derr.Kind)
}

func TestWorker_FIFOOrderPreserved(t *testing.T) {
	var order []string
	fake := mcpsession.NewFake()
	fake.InvokeFn = func(ctx context.Context, tool string, args map[string]any) (*mcpsession.Result, error) {
		order = append(order, tool)
		return &mcpsession.Result{Content: []mcpsession.ContentItem{{Type: "text", Text: "ok"}}}, nil
	}
	w, reg := newTestWorker(fake)
	ctx := context.Background()
	w.start(ctx)

	for _, tool := range []string{"first", "second", "third"} {
		task := &Task{ID: tool, Tool: tool, Weight: 1, Lane: LaneNormal}
		reg.Create(task.ID)
		w.bindLocked(task)
		require.NoError(t, w.enqueue(task))
	}

	for _, tool := range []string{"first", "second", "third"} {
		_, derr := reg.Get(ctx, tool, true, time.Second)
		require.Nil(t, derr)
	}

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestWorker_EnqueueFailsOnceRetiring(t *testing.T) {
	w, _ := newTestWorker(mcpsession.NewFake())
	w.retire()

	err := w.enqueue(&Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LaneNormal})
	assert.ErrorIs(t, err, errWorkerUnavailable)
}

func TestWorker_EnqueueFailsOnceClosed(t *testing.T) {
	w, _ := newTestWorker(mcpsession.NewFake())
	require.NoError(t, w.destroy())

	err := w.enqueue(&Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LaneNormal})
	assert.ErrorIs(t, err, errWorkerUnavailable)
}

func TestWorker_DrainInFlightReturnsBothRunningAndQueuedTasksWithoutDuplicates(t *testing.T) {
	w, _ := newTestWorker(mcpsession.NewFake())

	running := &Task{ID: "running", Tool: "noop", Weight: 1, Lane: LaneNormal}
	queued := &Task{ID: "queued", Tool: "noop", Weight: 1, Lane: LaneNormal}

	// bindLocked runs for every task before it is ever placed on the FIFO,
	// so a queued-but-unstarted task is already in inFlight by the time it
	// sits in fifo too; drainInFlight must not count it twice.
	w.bindLocked(running)
	w.bindLocked(queued)
	w.mu.Lock()
	w.fifo = append(w.fifo, queued)
	w.mu.Unlock()

	drained := w.drainInFlight()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, w.load())
	assert.Equal(t, 0, w.inFlightCount())
}

func TestWorker_IsIdleReflectsFifoAndInFlight(t *testing.T) {
	w, _ := newTestWorker(mcpsession.NewFake())
	assert.True(t, w.isIdle())

	task := &Task{ID: "t1", Tool: "noop", Weight: 1, Lane: LaneNormal}
	w.bindLocked(task)
	assert.False(t, w.isIdle())
}

func TestWorker_AliveDelegatesToSession(t *testing.T) {
	fake := mcpsession.NewFake()
	w, _ := newTestWorker(fake)
	ctx := context.Background()

	assert.True(t, w.alive(ctx))
	fake.Kill()
	assert.False(t, w.alive(ctx))
}
