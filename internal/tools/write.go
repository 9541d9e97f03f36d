package tools

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
	"github.com/sirforce/devops-mcp/internal/shaping"
)

// shortcutFields map convenience arguments onto reference names.
var shortcutFields = map[string]string{
	"title":       shaping.FieldTitle,
	"description": "System.Description",
	"state":       shaping.FieldState,
	"assigned_to": shaping.FieldAssignedTo,
	"tags":        shaping.FieldTags,
}

// collectFields merges the "fields" object with the shortcut arguments. Field
// names in the object are resolved the same way WIQL references are.
func collectFields(arguments map[string]interface{}) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	extra, err := GetObjectParam(arguments, "fields", false)
	if err != nil {
		return nil, err
	}
	for name, value := range extra {
		if canonical := shaping.CanonicalField(name); canonical != "" {
			fields[canonical] = value
		}
	}
	for arg, field := range shortcutFields {
		v, err := GetStringParam(arguments, arg, false)
		if err != nil {
			return nil, err
		}
		if v != "" {
			fields[field] = v
		}
	}
	return fields, nil
}

func writeFieldProperties() map[string]interface{} {
	return map[string]interface{}{
		"project": map[string]interface{}{
			"type":        "string",
			"description": "Project name. Defaults to AZDO_PROJECT.",
		},
		"title":       map[string]interface{}{"type": "string"},
		"description": map[string]interface{}{"type": "string", "description": "HTML description"},
		"state":       map[string]interface{}{"type": "string"},
		"assigned_to": map[string]interface{}{"type": "string", "description": "Display name or email of the assignee"},
		"tags":        map[string]interface{}{"type": "string", "description": "Semicolon-separated tags"},
		"fields": map[string]interface{}{
			"type":                 "object",
			"additionalProperties": true,
			"description":          `Any other fields, e.g. {"StoryPoints": 3, "Priority": 1}`,
		},
	}
}

// formatWorkItem returns a single item with identities reduced to names.
func (t *BaseTool) formatWorkItem(item *shaping.WorkItem) (*mcp.CallToolResult, error) {
	return t.FormatResponse(shaping.Compact([]shaping.WorkItem{*item}, true)[0])
}

// CreateWorkItemTool creates a work item.
type CreateWorkItemTool struct {
	*BaseTool
}

// NewCreateWorkItemTool creates a new tool instance
func NewCreateWorkItemTool(deps Dependencies) *CreateWorkItemTool {
	return &CreateWorkItemTool{BaseTool: NewBaseTool(deps)}
}

// Name returns the tool name
func (t *CreateWorkItemTool) Name() string {
	return "create_work_item"
}

// Annotations returns tool hints for LLMs
func (t *CreateWorkItemTool) Annotations() *mcp.ToolAnnotations {
	return CreateAnnotations("Create Work Item")
}

// DefaultTimeout returns the timeout
func (t *CreateWorkItemTool) DefaultTimeout() time.Duration {
	return WriteTimeout
}

// Description returns the tool description
func (t *CreateWorkItemTool) Description() string {
	return "Create a work item (User Story, Bug, Task, ...) with a title and optional fields."
}

// InputSchema returns the input schema
func (t *CreateWorkItemTool) InputSchema() interface{} {
	props := writeFieldProperties()
	props["type"] = map[string]interface{}{
		"type":        "string",
		"description": "Work item type, e.g. User Story, Bug, Task",
		"examples":    []string{"User Story", "Bug", "Task"},
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"type", "title"},
	}
}

// Execute executes the tool
func (t *CreateWorkItemTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	workItemType, err := GetStringParam(arguments, "type", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(workItemType) == "" {
		return HandleError(mcperrors.NewMissingParameter("type"), t.Name()), nil
	}
	project, err := t.project(arguments)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	fields, err := collectFields(arguments)
	if err != nil {
		return HandleError(asInputError(err), t.Name()), nil
	}
	if _, ok := fields[shaping.FieldTitle]; !ok {
		return HandleError(mcperrors.NewMissingParameter("title"), t.Name()), nil
	}

	item, err := t.client.CreateWorkItem(ctx, project, workItemType, fields)
	if err != nil {
		return HandleError(err, t.Name()), nil
	}
	return t.formatWorkItem(item)
}

// UpdateWorkItemTool sets fields on an existing work item.
type UpdateWorkItemTool struct {
	*BaseTool
}

// NewUpdateWorkItemTool creates a new tool instance
func NewUpdateWorkItemTool(deps Dependencies) *UpdateWorkItemTool {
	return &UpdateWorkItemTool{BaseTool: NewBaseTool(deps)}
}

// Name returns the tool name
func (t *UpdateWorkItemTool) Name() string {
	return "update_work_item"
}

// Annotations returns tool hints for LLMs
func (t *UpdateWorkItemTool) Annotations() *mcp.ToolAnnotations {
	return UpdateAnnotations("Update Work Item")
}

// DefaultTimeout returns the timeout
func (t *UpdateWorkItemTool) DefaultTimeout() time.Duration {
	return WriteTimeout
}

// Description returns the tool description
func (t *UpdateWorkItemTool) Description() string {
	return "Update fields of a work item, for example its state, assignee or story points."
}

// InputSchema returns the input schema
func (t *UpdateWorkItemTool) InputSchema() interface{} {
	props := writeFieldProperties()
	props["id"] = map[string]interface{}{
		"type":        "integer",
		"description": "Work item id",
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"id"},
	}
}

// Execute executes the tool
func (t *UpdateWorkItemTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	id, err := GetIntParam(arguments, "id", true)
	if err != nil {
		return HandleError(asInputError(err), t.Name()), nil
	}
	project, err := t.project(arguments)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	fields, err := collectFields(arguments)
	if err != nil {
		return HandleError(asInputError(err), t.Name()), nil
	}
	if len(fields) == 0 {
		return HandleError(mcperrors.NewInvalidInput("no fields to update").
			WithSuggestion("Pass title, state, assigned_to, description, tags or a fields object"), t.Name()), nil
	}

	item, err := t.client.UpdateWorkItem(ctx, project, id, fields)
	if err != nil {
		return HandleError(err, t.Name()), nil
	}
	return t.formatWorkItem(item)
}

// AddWorkItemCommentTool appends a comment to a work item.
type AddWorkItemCommentTool struct {
	*BaseTool
}

// NewAddWorkItemCommentTool creates a new tool instance
func NewAddWorkItemCommentTool(deps Dependencies) *AddWorkItemCommentTool {
	return &AddWorkItemCommentTool{BaseTool: NewBaseTool(deps)}
}

// Name returns the tool name
func (t *AddWorkItemCommentTool) Name() string {
	return "add_work_item_comment"
}

// Annotations returns tool hints for LLMs
func (t *AddWorkItemCommentTool) Annotations() *mcp.ToolAnnotations {
	return CreateAnnotations("Add Work Item Comment")
}

// DefaultTimeout returns the timeout
func (t *AddWorkItemCommentTool) DefaultTimeout() time.Duration {
	return WriteTimeout
}

// Description returns the tool description
func (t *AddWorkItemCommentTool) Description() string {
	return "Add a comment to a work item's discussion. Markdown and HTML are rendered by Azure DevOps."
}

// InputSchema returns the input schema
func (t *AddWorkItemCommentTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "integer",
				"description": "Work item id",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"minLength":   1,
				"description": "Comment text",
			},
			"project": map[string]interface{}{
				"type":        "string",
				"description": "Project name. Defaults to AZDO_PROJECT.",
			},
		},
		"required": []string{"id", "text"},
	}
}

// Execute executes the tool
func (t *AddWorkItemCommentTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	id, err := GetIntParam(arguments, "id", true)
	if err != nil {
		return HandleError(asInputError(err), t.Name()), nil
	}
	text, err := GetStringParam(arguments, "text", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(text) == "" {
		return HandleError(mcperrors.NewMissingParameter("text"), t.Name()), nil
	}
	project, err := t.project(arguments)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	comment, err := t.client.AddComment(ctx, project, id, text)
	if err != nil {
		return HandleError(err, t.Name()), nil
	}
	return t.FormatResponse(comment)
}
