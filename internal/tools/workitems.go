package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
	"github.com/sirforce/devops-mcp/internal/shaping"
	"github.com/sirforce/devops-mcp/internal/tracing"
)

// maxWIQLLength is the longest query text the WIQL endpoint accepts.
const maxWIQLLength = 32000

// shapingProperties are the schema entries shared by tools that return records.
func shapingProperties() map[string]interface{} {
	return map[string]interface{}{
		"project": map[string]interface{}{
			"type":        "string",
			"description": "Project name. Defaults to AZDO_PROJECT.",
		},
		"fields": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Fields to fetch. Bare names like StoryPoints are resolved to their reference names. Omit for all fields.",
		},
		"compact": map[string]interface{}{
			"type":        "boolean",
			"description": "Reduce identity fields to display names and drop _links (default: true)",
		},
		"format": map[string]interface{}{
			"type":        "string",
			"enum":        []string{string(shaping.FormatAuto), string(shaping.FormatJSON), string(shaping.FormatSummary)},
			"default":     string(shaping.FormatAuto),
			"description": "auto picks JSON or a grouped summary by size; json forces raw records unless the hard size limit is exceeded",
		},
		"force": map[string]interface{}{
			"type":        "boolean",
			"description": "Acknowledge a large response. The hard size limit still applies.",
		},
		"group_by": map[string]interface{}{
			"type":        "string",
			"description": "Field used to group summary output (default: System.State)",
		},
	}
}

// shapingArgs are the caller flags that steer the arbiter.
type shapingArgs struct {
	project string
	fields  []string
	compact bool
	format  shaping.Format
	force   bool
	groupBy string
}

func (t *BaseTool) parseShapingArgs(arguments map[string]interface{}) (*shapingArgs, error) {
	var (
		args shapingArgs
		err  error
	)
	if args.project, err = t.project(arguments); err != nil {
		return nil, err
	}
	fields, err := GetStringArrayParam(arguments, "fields", false)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f = shaping.CanonicalField(f); f != "" {
			args.fields = append(args.fields, f)
		}
	}
	if args.compact, err = t.compactFlag(arguments); err != nil {
		return nil, err
	}
	format, err := GetStringParam(arguments, "format", false)
	if err != nil {
		return nil, err
	}
	if args.format, err = shaping.ParseFormat(format); err != nil {
		return nil, err
	}
	if args.force, err = GetBoolParam(arguments, "force", false); err != nil {
		return nil, err
	}
	groupBy, err := GetStringParam(arguments, "group_by", false)
	if err != nil {
		return nil, err
	}
	args.groupBy = shaping.CanonicalField(groupBy)
	return &args, nil
}

// fetchAndShape fetches ids, compacts them if asked and lets the arbiter
// choose the response shape.
func (t *BaseTool) fetchAndShape(ctx context.Context, ids []int, page *shaping.Page, args *shapingArgs) (*shaping.Response, error) {
	batch, err := t.client.FetchWorkItems(ctx, args.project, ids, args.fields)
	if err != nil {
		return nil, err
	}

	_, span := tracing.ShapingSpan(ctx, len(batch.Value))
	defer span.End()

	items := shaping.Compact(batch.Value, args.compact)
	resp, err := t.arbiter.ShapeWorkItems(shaping.ShapeRequest{
		Items:   items,
		Format:  args.format,
		Force:   args.force,
		GroupBy: args.groupBy,
		Page:    page,
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	mode, size := shaping.ModeRaw, len(resp.Text)
	if resp.Metadata != nil {
		mode, size = resp.Metadata.Mode, resp.Metadata.EstimatedBytes
	}
	tracing.SetShapingResult(span, string(mode), size)
	return resp, nil
}

// QueryWorkItemsTool runs a WIQL query and returns the matching work items.
type QueryWorkItemsTool struct {
	*BaseTool
}

// NewQueryWorkItemsTool creates a new tool instance
func NewQueryWorkItemsTool(deps Dependencies) *QueryWorkItemsTool {
	return &QueryWorkItemsTool{BaseTool: NewBaseTool(deps)}
}

// Name returns the tool name
func (t *QueryWorkItemsTool) Name() string {
	return "query_work_items"
}

// Annotations returns tool hints for LLMs
func (t *QueryWorkItemsTool) Annotations() *mcp.ToolAnnotations {
	return QueryAnnotations("Query Work Items")
}

// DefaultTimeout returns the timeout
func (t *QueryWorkItemsTool) DefaultTimeout() time.Duration {
	return t.queryTimeout()
}

// Description returns the tool description
func (t *QueryWorkItemsTool) Description() string {
	return `Run a WIQL query and return the matching work items.

Field references are repaired before the query is sent: [StoryPoints] becomes
[Microsoft.VSTS.Scheduling.StoryPoints], [System.StoryPoints] is moved to its real namespace.

**Response size:** large results are returned as a summary grouped by state (or group_by).
Use page/page_size to walk the result in windows, or format=json to request raw records.

**Related tools:**
- aggregate_work_items: counts, contributors and story point totals without raw records
- normalize_wiql: preview field corrections without running the query`
}

// InputSchema returns the input schema
func (t *QueryWorkItemsTool) InputSchema() interface{} {
	props := shapingProperties()
	props["query"] = map[string]interface{}{
		"type":        "string",
		"description": "WIQL query text",
		"minLength":   1,
		"examples": []string{
			"SELECT [System.Id] FROM WorkItems WHERE [System.IterationPath] = @CurrentIteration",
			"SELECT [System.Id] FROM WorkItems WHERE [State] = 'Active' AND [AssignedTo] = @Me",
		},
	}
	props["top"] = map[string]interface{}{
		"type":        "integer",
		"minimum":     1,
		"description": "Maximum number of ids the query may return (default and ceiling: AZDO_MAX_QUERY_RESULTS)",
	}
	props["page"] = map[string]interface{}{
		"type":        "integer",
		"minimum":     1,
		"description": "1-based page of the id list to fetch. Omit to fetch every matched item.",
	}
	props["page_size"] = map[string]interface{}{
		"type":        "integer",
		"minimum":     1,
		"description": "Items per page (default: AZDO_PAGE_SIZE)",
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"query"},
	}
}

// Execute executes the tool
func (t *QueryWorkItemsTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	query, err := GetStringParam(arguments, "query", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return HandleError(mcperrors.NewMissingParameter("query"), t.Name()), nil
	}
	if len(query) > maxWIQLLength {
		return NewToolResultError(fmt.Sprintf("Query too long: %d characters (max %d)", len(query), maxWIQLLength)), nil
	}

	args, err := t.parseShapingArgs(arguments)
	if err != nil {
		return HandleError(asInputError(err), t.Name()), nil
	}

	top, err := GetIntParam(arguments, "top", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if limit := t.defaults.MaxQueryResults; limit > 0 && (top <= 0 || top > limit) {
		top = limit
	}

	normalized := t.normalize(query)
	result, err := t.client.RunQuery(ctx, args.project, normalized.Query, top)
	if err != nil {
		return HandleError(err, t.Name()), nil
	}

	ids := result.IDs
	var page *shaping.Page
	if _, ok := arguments["page"]; ok {
		pageNum, err := GetIntParam(arguments, "page", false)
		if err != nil {
			return NewToolResultError(err.Error()), nil
		}
		pageSize := t.defaults.PageSize
		if _, ok := arguments["page_size"]; ok {
			if pageSize, err = GetIntParam(arguments, "page_size", false); err != nil {
				return NewToolResultError(err.Error()), nil
			}
		}
		if page, err = shaping.Paginate(ids, pageNum, pageSize); err != nil {
			return HandleError(err, t.Name()), nil
		}
		ids = page.IDs
	}

	t.logger.Debug("WIQL query matched work items",
		zap.String("project", args.project),
		zap.Int("matched", len(result.IDs)),
		zap.Int("fetching", len(ids)),
		zap.Int("corrections", normalized.Corrections),
	)

	shaped, err := t.fetchAndShape(ctx, ids, page, args)
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

// GetWorkItemsTool fetches work items by id.
type GetWorkItemsTool struct {
	*BaseTool
}

// NewGetWorkItemsTool creates a new tool instance
func NewGetWorkItemsTool(deps Dependencies) *GetWorkItemsTool {
	return &GetWorkItemsTool{BaseTool: NewBaseTool(deps)}
}

// Name returns the tool name
func (t *GetWorkItemsTool) Name() string {
	return "get_work_items"
}

// Annotations returns tool hints for LLMs
func (t *GetWorkItemsTool) Annotations() *mcp.ToolAnnotations {
	return QueryAnnotations("Get Work Items")
}

// DefaultTimeout returns the timeout
func (t *GetWorkItemsTool) DefaultTimeout() time.Duration {
	return t.queryTimeout()
}

// Description returns the tool description
func (t *GetWorkItemsTool) Description() string {
	return `Fetch work items by id. Ids are fetched in batches of 200 and returned in the order given.
Large results are summarized the same way as query_work_items.`
}

// InputSchema returns the input schema
func (t *GetWorkItemsTool) InputSchema() interface{} {
	props := shapingProperties()
	props["ids"] = map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "integer"},
		"minItems":    1,
		"description": "Work item ids",
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"ids"},
	}
}

// Execute executes the tool
func (t *GetWorkItemsTool) Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	ids, err := GetIntArrayParam(arguments, "ids", true)
	if err != nil {
		return HandleError(asInputError(err), t.Name()), nil
	}
	if len(ids) == 0 {
		return HandleError(mcperrors.NewMissingParameter("ids"), t.Name()), nil
	}

	args, err := t.parseShapingArgs(arguments)
	if err != nil {
		return HandleError(asInputError(err), t.Name()), nil
	}

	shaped, err := t.fetchAndShape(ctx, ids, nil, args)
	if err != nil {
		return HandleError(err, t.Name()), nil
	}
	return t.FormatShaped(shaped)
}

// asInputError wraps plain argument errors as invalid input. Structured errors
// pass through.
func asInputError(err error) error {
	if _, ok := mcperrors.As(err); ok {
		return err
	}
	return mcperrors.NewInvalidInput(err.Error())
}

func describeCorrections(r shaping.NormalizeResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Normalized %d field reference(s):", r.Corrections)
	for _, c := range r.Changes {
		fmt.Fprintf(&sb, "\n- [%s] -> [%s]", c.From, c.To)
		if c.Count > 1 {
			fmt.Fprintf(&sb, " (x%d)", c.Count)
		}
	}
	return sb.String()
}
