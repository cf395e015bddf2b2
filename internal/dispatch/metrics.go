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

// Metrics receives dispatcher events for export. internal/tracing's
// MetricsCollector implements this interface; the dispatcher itself only
// knows this shape, the same way the daemon's runner is handed a
// MetricsCollector interface without depending on how it is wired to
// OpenTelemetry.
type Metrics interface {
	RecordSubmitted()
	RecordOutcome(outcome string)
	RecordSalvage()
	RecordPlacementFailure()
	RecordTaskDuration(seconds float64)
	SetGauges(activeCount, standbyCount int, avgLoadPct float64, queueDepth int)
}

// noopMetrics is used when the caller does not wire a Metrics
// implementation. It keeps Dispatcher free of nil checks on every call
// site.
type noopMetrics struct{}

func (noopMetrics) RecordSubmitted()                                              {}
func (noopMetrics) RecordOutcome(outcome string)                                  {}
func (noopMetrics) RecordSalvage()                                                {}
func (noopMetrics) RecordPlacementFailure()                                       {}
func (noopMetrics) RecordTaskDuration(seconds float64)                            {}
func (noopMetrics) SetGauges(activeCount, standbyCount int, avgLoadPct float64, queueDepth int) {}
