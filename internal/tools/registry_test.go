package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAllTools(t *testing.T) {
	tools := GetAllTools(testDeps(newFakeClient(0)))

	t.Run("all tools have required methods", func(t *testing.T) {
		for _, tool := range tools {
			assert.NotEmpty(t, tool.Name(), "Tool should have a name")
			assert.NotEmpty(t, tool.Description(), "Tool %s should have a description", tool.Name())
			assert.NotNil(t, tool.InputSchema(), "Tool %s should have an input schema", tool.Name())
			assert.NotNil(t, tool.Annotations(), "Tool %s should have annotations", tool.Name())
			assert.GreaterOrEqual(t, tool.DefaultTimeout(), time.Duration(0),
				"Tool %s should have non-negative timeout", tool.Name())
		}
	})

	t.Run("no duplicate tool names", func(t *testing.T) {
		names := make(map[string]bool)
		for _, tool := range tools {
			name := tool.Name()
			assert.False(t, names[name], "Duplicate tool name: %s", name)
			names[name] = true
		}
	})

	t.Run("expected tools", func(t *testing.T) {
		names := make(map[string]bool)
		for _, tool := range tools {
			names[tool.Name()] = true
		}
		require.Len(t, tools, 7)
		for _, name := range []string{
			"query_work_items",
			"get_work_items",
			"aggregate_work_items",
			"normalize_wiql",
			"create_work_item",
			"update_work_item",
			"add_work_item_comment",
		} {
			assert.True(t, names[name], "missing tool %s", name)
		}
	})

	t.Run("read tools are read only", func(t *testing.T) {
		for _, tool := range tools[:4] {
			assert.True(t, tool.Annotations().ReadOnlyHint, tool.Name())
		}
		for _, tool := range tools[4:] {
			assert.False(t, tool.Annotations().ReadOnlyHint, tool.Name())
		}
	})
}

func TestToolTimeouts(t *testing.T) {
	t.Run("read tools use the configured query timeout", func(t *testing.T) {
		deps := testDeps(nil)
		deps.Defaults.QueryTimeout = 5 * time.Second
		assert.Equal(t, 5*time.Second, NewQueryWorkItemsTool(deps).DefaultTimeout())
		assert.Equal(t, 5*time.Second, NewAggregateWorkItemsTool(deps).DefaultTimeout())
	})

	t.Run("read tools fall back to QueryTimeout", func(t *testing.T) {
		assert.Equal(t, QueryTimeout, NewGetWorkItemsTool(testDeps(nil)).DefaultTimeout())
	})

	t.Run("write tools", func(t *testing.T) {
		assert.Equal(t, WriteTimeout, NewCreateWorkItemTool(testDeps(nil)).DefaultTimeout())
		assert.Equal(t, WriteTimeout, NewUpdateWorkItemTool(testDeps(nil)).DefaultTimeout())
	})

	t.Run("local tool uses the server default", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), NewNormalizeWIQLTool(testDeps(nil)).DefaultTimeout())
	})
}
