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

package mcpsession

import "fmt"

// Kind identifies the category of a session-level failure. A tool reporting
// its own failure is not one of these; that is a normal Result with
// IsError set, not a Go error.
type Kind string

const (
	// KindTransportClosed means the underlying process or connection is
	// gone: a closed pipe, a dead subprocess, a failed Ping.
	KindTransportClosed Kind = "transport-closed"

	// KindDecodeError means the server answered but the response could not
	// be decoded into the expected shape.
	KindDecodeError Kind = "decode-error"
)

// Error is a session-level failure: the connection to a tool server broke
// down, as opposed to the tool itself reporting a failure.
type Error struct {
	Kind    Kind
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

// ErrTransportClosed wraps cause as a transport-closed session error.
func ErrTransportClosed(message string, cause error) *Error {
	return &Error{Kind: KindTransportClosed, Message: message, Cause: cause}
}

// ErrDecodeError wraps cause as a decode-error session error.
func ErrDecodeError(message string, cause error) *Error {
	return &Error{Kind: KindDecodeError, Message: message, Cause: cause}
}
