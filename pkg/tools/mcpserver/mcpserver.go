// Package mcpserver exposes a ToolBox over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// MCPServer serves the tools of a ToolBox over the MCP protocol using the
// official MCP Go SDK. Calls go through ToolBox.Call, so argument validation
// and error reporting match in-process invocation.
type MCPServer struct {
	server *mcp.Server
	tools  *toolbox.ToolBox
}

// New creates a new MCPServer with the given name and version serving every
// tool registered in tb at the time of the call.
func New(name, version string, tb *toolbox.ToolBox) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	s := &MCPServer{server: server, tools: tb}
	for _, t := range tb.Tools() {
		server.AddTool(toSDKTool(t), s.handler(t.Name))
	}

	return s
}

// Serve starts serving MCP requests. It reads requests from in and writes
// responses to out. It blocks until ctx is cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.Run(ctx, transport)
}

// Run serves MCP requests over an arbitrary SDK transport, such as one half
// of mcp.NewInMemoryTransports.
func (s *MCPServer) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = emptyObjectSchema
	}

	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

func (s *MCPServer) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := s.tools.Call(ctx, content.ToolCall{
			Name:      name,
			Arguments: string(req.Params.Arguments),
		})

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result.Content}},
			IsError: result.IsError,
		}, nil
	}
}

// nopWriteCloser wraps an io.Writer as an io.WriteCloser with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
