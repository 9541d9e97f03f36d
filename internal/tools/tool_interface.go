// Package tools provides the MCP tool implementations for Azure DevOps work items.
package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool defines the interface that all MCP tools must implement.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	InputSchema() interface{}

	// Execute runs the tool with the given arguments and returns the result
	Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error)

	// Annotations returns optional hints about tool behavior for LLMs.
	Annotations() *mcp.ToolAnnotations

	// DefaultTimeout returns the recommended timeout for this tool type.
	// Returns 0 to use the server default.
	DefaultTimeout() time.Duration
}

// Tool timeouts by category
const (
	// QueryTimeout covers a WIQL query plus batched fetches of up to a few
	// thousand items.
	QueryTimeout = 60 * time.Second
	// WriteTimeout covers a single create, update or comment call.
	WriteTimeout = 30 * time.Second
)
