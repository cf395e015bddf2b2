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
	"fmt"
	"sync"
)

// defaultWeightKey is the reserved key in a weight table that supplies the
// weight for any tool not otherwise listed.
const defaultWeightKey = "default"

// WeightTable maps a tool name to the load it contributes to whichever
// worker runs it. It is built once at startup and never mutated afterward;
// the embedded mutex exists only so concurrent readers never race with a
// hypothetical future reload, not because writes happen today.
type WeightTable struct {
	mu      sync.RWMutex
	weights map[string]int
	def     int
}

// NewWeightTable validates raw and returns an immutable WeightTable. raw
// must contain a "default" key with a positive value; every other entry
// must also be positive.
func NewWeightTable(raw map[string]int) (*WeightTable, error) {
	def, ok := raw[defaultWeightKey]
	if !ok {
		return nil, fmt.Errorf("weight table missing required %q key", defaultWeightKey)
	}
	if def <= 0 {
		return nil, fmt.Errorf("default weight must be positive, got %d", def)
	}

	weights := make(map[string]int, len(raw)-1)
	for tool, w := range raw {
		if tool == defaultWeightKey {
			continue
		}
		if w <= 0 {
			return nil, fmt.Errorf("weight for %q must be positive, got %d", tool, w)
		}
		weights[tool] = w
	}

	return &WeightTable{weights: weights, def: def}, nil
}

// Weight returns tool's configured weight, or the table's default if tool
// has no entry.
func (t *WeightTable) Weight(tool string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if w, ok := t.weights[tool]; ok {
		return w
	}
	return t.def
}
