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

// Package dispatch implements a weighted-load task dispatcher over an
// elastic pool of MCP tool sessions.
//
// A caller constructs a Dispatcher with a WeightTable and a
// SessionFactory, starts it, and then calls Submit to hand off work and
// GetResult to collect it later. Submit never blocks on the tool running,
// only on finding it a worker. Internally, the pool keeps active and
// standby workers, each owning one Session and running its own private
// FIFO; a supervisor goroutine periodically probes every worker's session,
// re-places whatever a dead worker was holding, and scales the active set
// to match load.
//
// There is no hidden global dispatcher: every caller constructs and owns
// its own value, and no package-level state is shared between them.
package dispatch
