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

/*
Package tracing exposes the dispatcher's operational metrics over
OpenTelemetry, backed by a Prometheus exporter.

# Quick Start

	provider, err := tracing.NewProvider("mcpdispatch", "0.1.0")
	...
	d := dispatch.New(cfg, weights, factory, provider.Collector(), logger)
	...
	http.Handle("/metrics", provider.MetricsHandler())

# Metrics Exposed

  - mcpdispatch_tasks_submitted_total
  - mcpdispatch_tasks_completed_total{outcome}
  - mcpdispatch_salvages_total
  - mcpdispatch_placement_failures_total
  - mcpdispatch_task_duration_seconds
  - mcpdispatch_active_workers
  - mcpdispatch_standby_workers
  - mcpdispatch_avg_load_pct
  - mcpdispatch_salvage_queue_depth
*/
package tracing
