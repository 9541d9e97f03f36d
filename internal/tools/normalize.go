package tools

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
)

// NormalizeWIQLTool previews field reference corrections without running a query.
type NormalizeWIQLTool struct {
	*BaseTool
}

// NewNormalizeWIQLTool creates a new tool instance
func NewNormalizeWIQLTool(deps Dependencies) *NormalizeWIQLTool {
	return &NormalizeWIQLTool{BaseTool: NewBaseTool(deps)}
}

// Name returns the tool name
func (t *NormalizeWIQLTool) Name() string {
	return "normalize_wiql"
}

// Annotations returns tool hints for LLMs
func (t *NormalizeWIQLTool) Annotations() *mcp.ToolAnnotations {
	return LocalAnnotations("Normalize WIQL")
}

// DefaultTimeout returns the timeout
func (t *NormalizeWIQLTool) DefaultTimeout() time.Duration {
	return 0
}

// Description returns the tool description
func (t *NormalizeWIQLTool) Description() string {
	return `Rewrite bare or mis-namespaced field references in a WIQL query to their reference
names and report each correction. Text inside quoted literals is never changed.
No request is sent to Azure DevOps.`
}

// InputSchema returns the input schema
func (t *NormalizeWIQLTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "WIQL query text",
				"minLength":   1,
			},
		},
		"required": []string{"query"},
	}
}

// Execute executes the tool
func (t *NormalizeWIQLTool) Execute(_ context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	query, err := GetStringParam(arguments, "query", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return HandleError(mcperrors.NewMissingParameter("query"), t.Name()), nil
	}
	return t.FormatResponse(t.normalize(query))
}
