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

// laneFor resolves which lane a submission belongs to.
func laneFor(opts SubmitOptions) Lane {
	if opts.Priority {
		return LanePriority
	}
	return LaneNormal
}

// resolveWeight returns the weight a task should carry: the submission's
// own override if positive, otherwise the tool's entry in the weight
// table.
func resolveWeight(weights *WeightTable, tool string, override int) int {
	if override > 0 {
		return override
	}
	return weights.Weight(tool)
}
