// Package prompts provides pre-built prompts for common Azure DevOps work item tasks.
//
// Every prompt steers the client toward aggregate_work_items and paginated queries
// before raw records, so large backlogs stay within the context budget.
package prompts

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// PromptDefinition represents a prompt with its metadata and handler
type PromptDefinition struct {
	// Prompt is the MCP prompt metadata
	Prompt *mcp.Prompt
	// Handler is the function that generates the prompt content
	Handler mcp.PromptHandler
}

// Registry holds all registered prompts
type Registry struct {
	logger         *zap.Logger
	defaultProject string
	prompts        []*PromptDefinition
}

// NewRegistry creates a new prompt registry with all available prompts.
// defaultProject is shown when a prompt's project argument is omitted.
func NewRegistry(logger *zap.Logger, defaultProject string) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		logger:         logger,
		defaultProject: defaultProject,
	}
	r.registerPrompts()
	return r
}

// GetPrompts returns all registered prompt definitions
func (r *Registry) GetPrompts() []*PromptDefinition {
	return r.prompts
}

func (r *Registry) registerPrompts() {
	r.prompts = []*PromptDefinition{
		r.triageBacklogPrompt(),
		r.sprintContributorsPrompt(),
		r.exploreLargeQueryPrompt(),
	}
}

// Helper to create a prompt result with user role
func createPromptResult(description, content string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: content,
				},
			},
		},
	}
}

// getStringArg safely extracts a string argument with a default value
func getStringArg(args map[string]string, key, defaultVal string) string {
	if val, ok := args[key]; ok && val != "" {
		return val
	}
	return defaultVal
}

func (r *Registry) projectArg(args map[string]string) string {
	fallback := r.defaultProject
	if fallback == "" {
		fallback = "the default project"
	}
	return getStringArg(args, "project", fallback)
}

// triageBacklogPrompt creates the "triage_backlog" prompt definition
func (r *Registry) triageBacklogPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "triage_backlog",
			Title:       "Triage Backlog",
			Description: "Review unassigned and stale work items in an area of the backlog",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "project",
					Description: "Project to triage (defaults to the configured project)",
					Required:    false,
				},
				{
					Name:        "area_path",
					Description: "Area path to limit the triage to, e.g. 'Fabrikam\\Web'",
					Required:    false,
				},
				{
					Name:        "work_item_type",
					Description: "Work item type to triage (default: Bug)",
					Required:    false,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			project := r.projectArg(req.Params.Arguments)
			workItemType := getStringArg(req.Params.Arguments, "work_item_type", "Bug")
			areaClause := ""
			if area := getStringArg(req.Params.Arguments, "area_path", ""); area != "" {
				areaClause = fmt.Sprintf(" AND [System.AreaPath] UNDER '%s'", area)
			}
			wiql := fmt.Sprintf("SELECT [System.Id] FROM WorkItems WHERE [System.WorkItemType] = '%s' AND [System.State] <> 'Closed'%s",
				workItemType, areaClause)

			content := fmt.Sprintf(`Let's triage open %s items in %s.

**Step 1: Size the backlog**
Run aggregate_work_items with type "by_state" and this query:
  %s
This returns counts and story points per state without fetching every record.

**Step 2: Find unowned work**
Run aggregate_work_items with type "by_assignee" on the same query. The "Unassigned"
group is the triage queue.

**Step 3: Review the queue**
Run query_work_items with the query above plus AND [System.AssignedTo] = '' and
page_size 25. Walk further pages only if needed; the pagination block tells you
whether more exist.

**Step 4: Act**
For each item, suggest an owner and priority. Apply agreed changes with
update_work_item (assigned_to, state, or fields {"Priority": 1}) and leave a note with
add_work_item_comment.

If a query is rejected, run normalize_wiql on it or read fields://aliases to check
field reference names.`, workItemType, project, wiql)

			return createPromptResult("Backlog triage workflow", content), nil
		},
	}
}

// sprintContributorsPrompt creates the "sprint_contributors" prompt definition
func (r *Registry) sprintContributorsPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "sprint_contributors",
			Title:       "Sprint Contributors",
			Description: "Summarize who worked on an iteration and how the story points are distributed",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "project",
					Description: "Project to report on (defaults to the configured project)",
					Required:    false,
				},
				{
					Name:        "iteration",
					Description: "Iteration path, or @CurrentIteration (default)",
					Required:    false,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			project := r.projectArg(req.Params.Arguments)
			iteration := getStringArg(req.Params.Arguments, "iteration", "@CurrentIteration")
			if iteration != "@CurrentIteration" {
				iteration = "'" + iteration + "'"
			}
			wiql := fmt.Sprintf("SELECT [System.Id] FROM WorkItems WHERE [System.IterationPath] = %s", iteration)

			content := fmt.Sprintf(`Let's summarize contributions to the sprint in %s.

1. Run aggregate_work_items with type "contributors" and query:
   %s
   This lists every assignee, creator and last modifier with per-role counts.

2. Run aggregate_work_items with type "by_assignee" on the same query for story
   points per person, then type "by_state" to see how much is done.

3. Only if a specific item needs discussion, fetch it with get_work_items.

Report: contributors, points per person, completed vs remaining work, and any
unassigned items. Avoid query_work_items with format "json" for the full sprint;
the aggregates already hold the numbers.`, project, wiql)

			return createPromptResult("Sprint contributor report", content), nil
		},
	}
}

// exploreLargeQueryPrompt creates the "explore_large_query" prompt definition
func (r *Registry) exploreLargeQueryPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "explore_large_query",
			Title:       "Explore a Large Query",
			Description: "Work through a WIQL query that matches too many items to read at once",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "query",
					Description: "WIQL query to explore",
					Required:    true,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			query := getStringArg(req.Params.Arguments, "query", "SELECT [System.Id] FROM WorkItems")

			content := fmt.Sprintf(`This query may return more work items than fit in one response:
  %s

1. Run normalize_wiql to confirm the field references.
2. Run aggregate_work_items (type "by_state", then "by_type") to learn the shape of
   the result.
3. Run query_work_items with page 1 and page_size 50. If the response carries a
   _shaping block with mode "summary" or "truncated_summary", you are reading a
   grouped summary rather than records: narrow the query, reduce page_size, or pass
   fields to fetch fewer columns.
4. Continue with page 2, 3, ... while has_next is true and the question still needs
   more records.`, query)

			return createPromptResult("Large query exploration", content), nil
		},
	}
}
