// Package mcpclient imports the tools of a remote MCP server into a ToolBox.
//
// Imported tools keep their remote name and input schema, so arguments are
// validated locally by the ToolBox before a request leaves the process.
// A result the server flags as an error surfaces as a *RemoteToolError; a
// failure to reach the server at all surfaces as a *CallError. Both end up
// wrapped in a toolbox.ToolExecutionError when invoked through a ToolBox.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ClientName and ClientVersion identify this client to MCP servers.
const (
	ClientName    = "shopagents"
	ClientVersion = "0.1.0"
)

// RemoteToolError is a tool result the server marked with isError.
type RemoteToolError struct {
	Tool string
	Text string
}

func (e *RemoteToolError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("mcpclient: remote tool %s reported an error", e.Tool)
	}
	return fmt.Sprintf("mcpclient: remote tool %s: %s", e.Tool, e.Text)
}

// CallError is returned when a tool call could not be completed over the
// session, for example because the server went away.
type CallError struct {
	Tool string
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("mcpclient: call %s: %v", e.Tool, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Client is a connected session with one MCP server.
type Client struct {
	session *mcp.ClientSession
	server  string
}

// New starts command as an MCP server speaking over stdio and connects to it.
func New(ctx context.Context, command string, args ...string) (*Client, error) {
	cmd := exec.Command(command, args...) //nolint:gosec // command comes from operator config
	return Connect(ctx, &mcp.CommandTransport{Command: cmd})
}

// NewHTTP connects to a streamable-HTTP MCP server at url.
func NewHTTP(ctx context.Context, url string) (*Client, error) {
	return Connect(ctx, &mcp.StreamableClientTransport{Endpoint: url})
}

// Connect opens a session over any SDK transport, such as one half of
// mcp.NewInMemoryTransports. The initialize handshake runs before it returns.
func Connect(ctx context.Context, transport mcp.Transport) (*Client, error) {
	impl := &mcp.Implementation{Name: ClientName, Version: ClientVersion}

	session, err := mcp.NewClient(impl, nil).Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect: %w", err)
	}

	c := &Client{session: session}
	if res := session.InitializeResult(); res != nil && res.ServerInfo != nil {
		c.server = res.ServerInfo.Name
	}

	return c, nil
}

// Server returns the name the server announced during initialization.
func (c *Client) Server() string { return c.server }

// ListTools returns the server's tools. Calling a returned tool's Handler
// forwards to CallTool.
func (c *Client) ListTools(ctx context.Context) ([]toolbox.Tool, error) {
	var tools []toolbox.Tool

	for remote, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcpclient: list tools: %w", err)
		}

		t, err := c.importTool(remote)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}

	return tools, nil
}

// ToolBox registers the server's tools in a new ToolBox.
func (c *Client) ToolBox(ctx context.Context) (*toolbox.ToolBox, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tb := toolbox.New()
	if err := tb.Register(tools...); err != nil {
		return nil, fmt.Errorf("mcpclient: %w", err)
	}

	return tb, nil
}

// CallTool invokes the named tool with JSON object arguments and returns the
// text of its result.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	params := &mcp.CallToolParams{Name: name}
	if len(arguments) > 0 {
		var args map[string]any
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("mcpclient: %s: arguments are not a JSON object: %w", name, err)
		}
		params.Arguments = args
	}

	res, err := c.session.CallTool(ctx, params)
	if err != nil {
		return "", &CallError{Tool: name, Err: err}
	}

	text := resultText(res)
	if res.IsError {
		return "", &RemoteToolError{Tool: name, Text: text}
	}

	return text, nil
}

// Close ends the session. A server started by New is shut down and waited
// for.
func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) importTool(remote *mcp.Tool) (toolbox.Tool, error) {
	schema, err := json.Marshal(remote.InputSchema)
	if err != nil {
		return toolbox.Tool{}, fmt.Errorf("mcpclient: tool %q: encode input schema: %w", remote.Name, err)
	}

	name := remote.Name

	return toolbox.Tool{
		Name:        name,
		Description: remote.Description,
		InputSchema: schema,
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			return c.CallTool(ctx, name, input)
		},
	}, nil
}

// resultText joins the text items of res with newlines. A result carrying
// only structured content is rendered as its JSON encoding.
func resultText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, item := range res.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}

	if len(parts) == 0 && res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			return string(raw)
		}
	}

	return strings.Join(parts, "\n")
}
