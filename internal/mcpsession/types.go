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

// ContentItem is one piece of a tool result. MCP tool results are a list of
// content items; most tools return exactly one text item, but image and
// mixed results are valid.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// MimeType and Data are populated for image content items.
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Result is the outcome of a tool call that completed at the protocol
// level. IsError distinguishes a structured tool-reported failure (the
// server answered, but the tool itself failed) from a transport failure,
// which surfaces as a Go error from Invoke instead.
type Result struct {
	Content []ContentItem
	IsError bool
}

// Text concatenates the text of every text content item in the result.
// Most tools return a single text item, so this is usually the whole
// result.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, item := range r.Content {
		if item.Type == "text" {
			out += item.Text
		}
	}
	return out
}
