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

import "fmt"

// ErrorKind identifies the category of a dispatcher-level failure.
type ErrorKind string

const (
	// KindDispatcherStopped means Submit was called on a dispatcher that is
	// not running, or a blocking GetResult was still waiting when the
	// dispatcher stopped. A GetResult issued after Stop finds no slot and
	// reports unknown-task.
	KindDispatcherStopped ErrorKind = "dispatcher-stopped"
	// KindUnknownTask means the task id does not correspond to any result
	// slot (either it never existed, or the slot was already consumed).
	KindUnknownTask ErrorKind = "unknown-task"
	// KindPending means a non-blocking GetResult found the task still
	// running.
	KindPending ErrorKind = "pending"
	// KindTimeout means a blocking GetResult's deadline elapsed before the
	// task completed. The slot is left in place; a later call can still
	// collect the real outcome.
	KindTimeout ErrorKind = "timeout"
	// KindPlacementFailed means Submit could not bind the task to any
	// worker, new or existing.
	KindPlacementFailed ErrorKind = "placement-failed"
	// KindTransportFailed means the session backing a worker broke down
	// while running the task.
	KindTransportFailed ErrorKind = "transport-failed"
	// KindToolError means the tool ran and reported its own failure. This
	// is a normal completion from the worker's point of view.
	KindToolError ErrorKind = "tool-error"
	// KindSalvageFailed means a task survived one dead worker, was
	// re-placed, and then lost its second worker too (or could not be
	// re-placed at all).
	KindSalvageFailed ErrorKind = "salvage-failed"
)

// Numeric codes mirror the ErrorKind taxonomy for callers that prefer
// switching on an int over a string.
const (
	CodeTimeout    = -1001
	CodeClientDead = -1002
	CodeTaskFailed = -1003
	CodePlacement  = -1004
)

// Error is the typed failure returned from the dispatcher's public API. It
// implements pkg/errors.ErrorClassifier so callers can use the same
// retry/reporting machinery as the rest of the codebase.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType implements pkg/errors.ErrorClassifier.
func (e *Error) ErrorType() string {
	return string(e.Kind)
}

// IsRetryable implements pkg/errors.ErrorClassifier. Transport failures and
// timeouts describe transient conditions a caller can reasonably retry;
// the rest describe conditions that will not change on retry.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindTransportFailed, KindTimeout:
		return true
	default:
		return false
	}
}

// Code returns the numeric code associated with this error's kind, for
// callers that want one (spec's "resultCode" style API surface).
func (e *Error) Code() int {
	switch e.Kind {
	case KindTimeout:
		return CodeTimeout
	case KindTransportFailed, KindSalvageFailed:
		return CodeClientDead
	case KindPlacementFailed:
		return CodePlacement
	default:
		return CodeTaskFailed
	}
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ErrDispatcherStopped reports that the dispatcher is not running.
func ErrDispatcherStopped() *Error {
	return newError(KindDispatcherStopped, "dispatcher is stopped", nil)
}

// ErrUnknownTask reports that id has no result slot.
func ErrUnknownTask(id string) *Error {
	return newError(KindUnknownTask, fmt.Sprintf("unknown task %q", id), nil)
}

// ErrPending reports that id's task has not completed yet.
func ErrPending(id string) *Error {
	return newError(KindPending, fmt.Sprintf("task %q has not completed", id), nil)
}

// ErrTimeout reports that a blocking wait on id timed out.
func ErrTimeout(id string) *Error {
	return newError(KindTimeout, fmt.Sprintf("waiting for task %q timed out", id), nil)
}

// ErrPlacementFailed reports that a task for tool could not be bound to a
// worker.
func ErrPlacementFailed(tool string, cause error) *Error {
	return newError(KindPlacementFailed, fmt.Sprintf("failed to place task for tool %q", tool), cause)
}

// ErrTransportFailed reports that workerID's session broke down.
func ErrTransportFailed(workerID string, cause error) *Error {
	return newError(KindTransportFailed, fmt.Sprintf("worker %q transport failed", workerID), cause)
}

// ErrToolError reports a tool-level failure. message is the tool's own
// error text, if any.
func ErrToolError(tool string, message string) *Error {
	return newError(KindToolError, fmt.Sprintf("tool %q reported an error: %s", tool, message), nil)
}

// ErrSalvageFailed reports that id could not be re-placed after its worker
// died.
func ErrSalvageFailed(id string) *Error {
	return newError(KindSalvageFailed, fmt.Sprintf("task %q could not be salvaged", id), nil)
}
