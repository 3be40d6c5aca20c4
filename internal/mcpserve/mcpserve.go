// Package mcpserve exposes a [tools.Registry] as a Model Context Protocol
// server, so other MCP hosts can draw diagrams with the tutor's tools.
//
// Each registry tool becomes one MCP tool with the same name, description and
// input schema. A successful call returns the result text and the produced
// PNG as image content; a failed call returns the failure text with IsError
// set.
package mcpserve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/chalkboard/internal/tools"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// ServerName is the implementation name announced to MCP clients.
const ServerName = "chalkboard"

// New returns an MCP server with every tool of reg registered.
func New(reg *tools.Registry, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: version}, nil)
	for _, def := range reg.Definitions() {
		server.AddTool(&mcpsdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def.Parameters),
		}, handler(reg))
	}
	return server
}

// Serve runs an MCP server for reg over stdin/stdout until ctx is done or the
// client disconnects.
func Serve(ctx context.Context, reg *tools.Registry, version string) error {
	slog.Info("mcp server starting on stdio", "tools", len(reg.Definitions()))
	if err := New(reg, version).Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcpserve: %w", err)
	}
	return nil
}

func handler(reg *tools.Registry) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args string
		if req.Params.Arguments != nil {
			args = string(req.Params.Arguments)
		}
		res := reg.Invoke(ctx, llm.ToolCall{ID: "mcp", Name: req.Params.Name, Arguments: args})

		out := &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Text}},
			IsError: !res.OK(),
		}
		if res.Artifact != "" {
			data, err := os.ReadFile(res.Artifact)
			if err != nil {
				slog.Warn("mcp: read diagram", "path", res.Artifact, "err", err)
			} else if strings.HasSuffix(strings.ToLower(res.Artifact), ".png") {
				out.Content = append(out.Content, &mcpsdk.ImageContent{Data: data, MIMEType: "image/png"})
			}
		}
		return out, nil
	}
}

// inputSchema guarantees the object type MCP requires of tool inputs.
func inputSchema(params map[string]any) map[string]any {
	schema := make(map[string]any, len(params)+1)
	for k, v := range params {
		schema[k] = v
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}
