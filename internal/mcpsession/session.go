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

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Session is one connection to a tool server. A worker owns exactly one
// Session for its entire lifetime; the session is never shared between
// workers and never outlives the worker that created it.
type Session interface {
	// Invoke calls tool with args and waits for the result. A non-nil error
	// means the session itself failed (transport-closed or decode-error);
	// a tool that ran and reported its own failure returns a nil error with
	// Result.IsError set.
	Invoke(ctx context.Context, tool string, args map[string]any) (*Result, error)

	// Alive reports whether the session still looks usable. It is used by
	// the supervisor's health probe; a false result marks the worker for
	// salvage.
	Alive(ctx context.Context) bool

	// Close tears down the underlying connection. It is called exactly
	// once, when the worker that owns the session is destroyed.
	Close() error
}

// ProcessConfig describes how to launch the subprocess backing a Process
// session.
type ProcessConfig struct {
	// Command is the executable to run.
	Command string
	// Args are the arguments passed to Command.
	Args []string
	// Env is additional environment, in "KEY=VALUE" form, appended to the
	// subprocess's inherited environment.
	Env []string
}

// Process is a Session backed by a real MCP server subprocess, speaking the
// protocol over stdio via mark3labs/mcp-go.
type Process struct {
	client     *client.Client
	serverName string
}

// NewProcess launches cfg.Command and performs the MCP initialize handshake.
// The returned Process is ready to Invoke immediately.
func NewProcess(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("starting mcp server %q: %w", cfg.Command, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "mcpdispatch",
		Version: "0.1.0",
	}
	initReq.Params.Capabilities = mcp.ClientCapabilities{}

	initRes, err := c.Initialize(ctx, initReq)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initializing mcp server %q: %w", cfg.Command, err)
	}

	return &Process{client: c, serverName: initRes.ServerInfo.Name}, nil
}

// Invoke implements Session.
func (p *Process) Invoke(ctx context.Context, tool string, args map[string]any) (*Result, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := p.client.CallTool(ctx, req)
	if err != nil {
		return nil, ErrTransportClosed(fmt.Sprintf("calling tool %q", tool), err)
	}

	result := &Result{IsError: res.IsError}
	for _, c := range res.Content {
		switch item := c.(type) {
		case mcp.TextContent:
			result.Content = append(result.Content, ContentItem{Type: "text", Text: item.Text})
		case mcp.ImageContent:
			result.Content = append(result.Content, ContentItem{Type: "image", MimeType: item.MIMEType, Data: item.Data})
		default:
			if text, ok := mcp.AsTextContent(c); ok {
				result.Content = append(result.Content, ContentItem{Type: "text", Text: text.Text})
				continue
			}
			return nil, ErrDecodeError(fmt.Sprintf("unrecognized content item from tool %q", tool), nil)
		}
	}

	return result, nil
}

// Alive implements Session.
func (p *Process) Alive(ctx context.Context) bool {
	return p.client.Ping(ctx) == nil
}

// Close implements Session.
func (p *Process) Close() error {
	return p.client.Close()
}

// ServerName returns the name reported by the server during the initialize
// handshake.
func (p *Process) ServerName() string {
	return p.serverName
}
