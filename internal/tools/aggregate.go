package tools

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
	"github.com/sirforce/devops-mcp/internal/shaping"
)

var aggregationKinds = []string{
	string(shaping.AggregateContributorsKind),
	string(shaping.AggregateByState),
	string(shaping.AggregateByType),
	string(shaping.AggregateByAssignee),
	string(shaping.AggregateByArea),
	string(shaping.AggregateByIteration),
	string(shaping.AggregateByField),
}

// AggregateWorkItemsTool returns statistics over a WIQL result instead of the
// records themselves.
type AggregateWorkItemsTool struct {
	*BaseTool
}

// NewAggregateWorkItemsTool creates a new tool instance
func NewAggregateWorkItemsTool(deps Dependencies) *AggregateWorkItemsTool {
	return &AggregateWorkItemsTool{BaseTool: NewBaseTool(deps)}
}

// Name returns the tool name
func (t *AggregateWorkItemsTool) Name() string {
	return "aggregate_work_items"
}

// Annotations returns tool hints for LLMs
func (t *AggregateWorkItemsTool) Annotations() *mcp.ToolAnnotations {
	return QueryAnnotations("Aggregate Work Items")
}

// DefaultTimeout returns the timeout
func (t *AggregateWorkItemsTool) DefaultTimeout() time.Duration {
	return t.queryTimeout()
}

// Description returns the tool description
func (t *AggregateWorkItemsTool) Description() string {
	return `Compute statistics over the work items a WIQL query matches. Only the fields the
statistic needs are fetched, so this stays small for thousands of items.

Types:
- contributors: unique people across assignee, creator and last modifier, with per-role counts
- by_state, by_type, by_assignee, by_area, by_iteration: counts and story point totals per group
- by_field: same, grouped on any field given in "field"

Use this before query_work_items when the question is "how many" or "who".`
}

// InputSchema returns the input schema
func (t *AggregateWorkItemsTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "WIQL query selecting the work items to aggregate",
				"minLength":   1,
			},
			"type": map[string]interface{}{
				"type":        "string",
				"enum":        aggregationKinds,
				"default":     string(shaping.AggregateByState),
				"description": "Statistic to compute. Unknown values fall back to by_state.",
			},
			"field": map[string]interface{}{
				"type":        "string",
				"description": "Field to group on when type is by_field, e.g. Priority or System.Tags",
			},
			"project": map[string]interface{}{
				"type":        "string",
				"description": "Project name. Defaults to AZDO_PROJECT.",
			},
			"top": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"description": "Maximum number of work items to include (default and ceiling: AZDO_MAX_QUERY_RESULTS)",
			},
		},
		"required": []string{"query"},
	}
}

// Execute executes the tool
func (t *AggregateWorkItemsTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	query, err := GetStringParam(arguments, "query", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return HandleError(mcperrors.NewMissingParameter("query").
			WithSuggestion("Pass a WIQL query such as SELECT [System.Id] FROM WorkItems WHERE [System.IterationPath] = @CurrentIteration"), t.Name()), nil
	}

	project, err := t.project(arguments)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	token, err := GetStringParam(arguments, "type", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(token) == "" {
		token = string(shaping.AggregateByState)
	}
	kind, known := shaping.ParseAggregationKind(token)
	if !known {
		t.logger.Warn("Unknown aggregation type, using by_state", zap.String("type", token))
	}

	fields := shaping.FieldsForAggregation(token)
	var groupField string
	if kind == shaping.AggregateByField {
		raw, err := GetStringParam(arguments, "field", false)
		if err != nil {
			return NewToolResultError(err.Error()), nil
		}
		if groupField = shaping.CanonicalField(raw); groupField == "" {
			return HandleError(mcperrors.NewMissingParameter("field"), t.Name()), nil
		}
		fields = append(fields, groupField)
	}

	top, err := GetIntParam(arguments, "top", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if limit := t.defaults.MaxQueryResults; limit > 0 && (top <= 0 || top > limit) {
		top = limit
	}

	normalized := t.normalize(query)
	result, err := t.client.RunQuery(ctx, project, normalized.Query, top)
	if err != nil {
		return HandleError(err, t.Name()), nil
	}

	batch, err := t.client.FetchWorkItems(ctx, project, result.IDs, fields)
	if err != nil {
		return HandleError(err, t.Name()), nil
	}

	shaped, err := t.arbiter.ShapeAggregation(batch.Value, kind, groupField)
	if err != nil {
		return HandleError(err, t.Name()), nil
	}

	out, err := t.FormatShaped(shaped)
	if err != nil {
		return nil, err
	}
	if normalized.Corrections > 0 {
		out.Content = append(out.Content, &mcp.TextContent{Text: describeCorrections(normalized)})
	}
	return out, nil
}
