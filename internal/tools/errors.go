package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
	"github.com/sirforce/devops-mcp/internal/security"
)

// NewToolResultError creates a new tool result with an error message
func NewToolResultError(message string) *mcp.CallToolResult {
	if message == "" {
		message = "An unknown error occurred"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: message,
			},
		},
		IsError: true,
	}
}

// NewToolResultErrorWithSuggestion creates a tool result with an error and recovery guidance
func NewToolResultErrorWithSuggestion(message, suggestion string) *mcp.CallToolResult {
	fullMessage := fmt.Sprintf("%s\n\n💡 **Suggestion:** %s", message, suggestion)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fullMessage,
			},
		},
		IsError: true,
	}
}

// defaultSuggestions fill in guidance for codes raised without one.
var defaultSuggestions = map[mcperrors.ErrorCode]string{
	mcperrors.CodeUnauthorized:       "Check that AZDO_PAT is set and has not expired, and that it grants Work Items (Read) scope.",
	mcperrors.CodeForbidden:          "The token is valid but lacks permission for this project. Ask a project administrator for access.",
	mcperrors.CodeResourceNotFound:   "Verify the project name and work item id. Use query_work_items to list available items.",
	mcperrors.CodeRateLimitExceeded:  "Wait a few seconds and retry, or narrow the query with page_size or aggregate_work_items.",
	mcperrors.CodeServiceUnavailable: "Azure DevOps is temporarily unavailable. Try again in a few moments.",
	mcperrors.CodeInvalidQuery:       "Check field references with normalize_wiql, or read fields://aliases for canonical names.",
}

// HandleError converts an error from a tool's collaborators into a tool result.
// Structured errors keep their code and suggestion; timeouts point at cheaper
// alternatives.
func HandleError(err error, operation string) *mcp.CallToolResult {
	if err == nil {
		return nil
	}

	if se, ok := mcperrors.As(err); ok {
		message := fmt.Sprintf("[%s] %s", se.Code, se.Message)
		suggestion := se.Suggestion
		if suggestion == "" {
			suggestion = defaultSuggestions[se.Code]
		}
		if suggestion != "" {
			return NewToolResultErrorWithSuggestion(message, suggestion)
		}
		return NewToolResultError(message)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return HandleError(mcperrors.NewTimeout(operation).
			WithSuggestion("Use page and page_size to fetch fewer items, or aggregate_work_items for statistics."), operation)
	}

	return NewToolResultError(fmt.Sprintf("%s failed: %s", operation, security.SanitizeError(err)))
}
