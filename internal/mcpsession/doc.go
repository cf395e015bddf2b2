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

// Package mcpsession provides the transport-level Session abstraction used by the
// dispatcher to talk to MCP tool servers. A Session wraps exactly one
// underlying client connection; it knows nothing about pools, weights, or
// queues, which live in internal/dispatch and treat a Session as an
// interchangeable resource.
//
// Process is the production implementation, backed by mark3labs/mcp-go's
// stdio client. Fake is an in-process test double used by internal/dispatch's
// own test suite and by callers who want to exercise the dispatcher without
// spawning real subprocesses.
package mcpsession
