package tools

// GetAllTools returns all available MCP tools. Read tools come first so that
// clients listing tools see the query path before the write wrappers.
func GetAllTools(deps Dependencies) []Tool {
	return []Tool{
		// Read and shaping tools
		NewQueryWorkItemsTool(deps),
		NewGetWorkItemsTool(deps),
		NewAggregateWorkItemsTool(deps),
		NewNormalizeWIQLTool(deps),

		// Write tools
		NewCreateWorkItemTool(deps),
		NewUpdateWorkItemTool(deps),
		NewAddWorkItemCommentTool(deps),
	}
}
