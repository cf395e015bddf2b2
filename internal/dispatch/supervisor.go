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
)

// supervisor runs the periodic tick that keeps the pool's shape matching
// its load: probe every worker's session for liveness, salvage whatever
// a dead worker was holding, scale the active set up or down, and top the
// standby partition back up. It is structured the same way the daemon's
// own scheduler loop is: a ticker plus a stopCh/doneCh pair for a clean,
// synchronous Stop.
type supervisor struct {
	mu      sync.Mutex
	period  time.Duration
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	logger  *slog.Logger

	tick func(ctx context.Context)
}

func newSupervisor(period time.Duration, logger *slog.Logger, tick func(ctx context.Context)) *supervisor {
	return &supervisor{period: period, logger: logger, tick: tick}
}

// Start begins the ticker loop. Calling Start on an already-running
// supervisor is a no-op.
func (s *supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop halts the ticker loop and waits for the current tick, if any, to
// finish.
func (s *supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

func (s *supervisor) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}
