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

import "time"

// Config is the pool sizing and scaling policy the dispatcher enforces.
// internal/config loads this from YAML and environment overrides; this
// package only knows the resolved values.
type Config struct {
	MinActive        int
	MaxActive        int
	StandbyCount     int
	ScaleUpPct       int
	ScaleDownIdle    time.Duration
	MaxLoadPerWorker int
	SupervisorPeriod time.Duration

	PriorityMinActive int
	PriorityMaxActive int
}

// DefaultConfig returns conservative defaults suitable for a single-node
// deployment with light load.
func DefaultConfig() Config {
	return Config{
		MinActive:        1,
		MaxActive:        10,
		StandbyCount:     2,
		ScaleUpPct:       80,
		ScaleDownIdle:    5 * time.Minute,
		MaxLoadPerWorker: 100,
		SupervisorPeriod: time.Second,
	}
}
