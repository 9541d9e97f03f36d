package shaping

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSummary(t *testing.T) {
	items := []WorkItem{
		workItem(101, map[string]interface{}{
			FieldState: "Active", FieldWorkItemType: "Bug", FieldTitle: "Crash on save", FieldStoryPoints: 5.0,
		}),
		workItem(102, map[string]interface{}{
			FieldState: "Active", FieldWorkItemType: "User Story", FieldTitle: "Export to CSV", FieldStoryPoints: 3.0,
		}),
		workItem(103, map[string]interface{}{
			FieldState: "Closed", FieldTitle: "Old task",
		}),
	}

	got := RenderSummary(items, "")

	banner := strings.Repeat("=", 80)
	rule := strings.Repeat("-", 80)
	want := banner + "\n" +
		"WORK ITEMS SUMMARY: 3 items, 8 story points (grouped by System.State)\n" +
		banner + "\n" +
		"\n" +
		"ACTIVE (2 items, 8 pts)\n" +
		rule + "\n" +
		"  #101 [Bug] 5 pts  Crash on save\n" +
		"  #102 [User Story] 3 pts  Export to CSV\n" +
		"\n" +
		"CLOSED (1 items, 0 pts)\n" +
		rule + "\n" +
		"  #103 [Unknown] - pts  Old task\n"
	assert.Equal(t, want, got)
}

func TestRenderSummaryCapsGroup(t *testing.T) {
	items := backlog(15)

	got := RenderSummary(items, FieldState)

	assert.True(t, strings.HasSuffix(got, "  ... and 5 more\n"), got)
	assert.Equal(t, MaxSummaryItemsPerGroup, strings.Count(got, "  #"))
	assert.Contains(t, got, "#10 ")
	assert.NotContains(t, got, "#11 ")
}

func TestRenderSummaryNoTrailerAtCap(t *testing.T) {
	got := RenderSummary(backlog(MaxSummaryItemsPerGroup), FieldState)
	assert.NotContains(t, got, "more")
}

func TestRenderSummaryTruncatesTitles(t *testing.T) {
	long := strings.Repeat("é", 75)
	items := []WorkItem{workItem(1, map[string]interface{}{FieldState: "New", FieldTitle: long})}

	got := RenderSummary(items, FieldState)

	lines := strings.Split(got, "\n")
	var line string
	for _, l := range lines {
		if strings.HasPrefix(l, "  #1 ") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.True(t, strings.HasSuffix(line, strings.Repeat("é", MaxSummaryTitleLength)+"..."))
}

func TestRenderSummaryFlattensMultilineTitles(t *testing.T) {
	items := []WorkItem{
		workItem(1, map[string]interface{}{FieldState: "New", FieldTitle: "Login fails\r\nafter reset\non Safari\rmobile"}),
		workItem(2, map[string]interface{}{FieldState: "New", FieldTitle: "Second"}),
	}

	got := RenderSummary(items, FieldState)

	assert.Contains(t, got, "  #1 [Unknown] - pts  Login fails after reset on Safari mobile\n")
	assert.NotContains(t, got, "\r")
	for _, fragment := range []string{"after reset", "on Safari", "mobile"} {
		assert.NotContains(t, got, "\n"+fragment)
	}
	assert.Equal(t, "a b", truncateTitle("a\nb"))
	assert.Equal(t, strings.Repeat("x", 30)+" "+strings.Repeat("x", 29)+"...", truncateTitle(strings.Repeat("x", 30)+"\n"+strings.Repeat("x", 40)))
}

func TestRenderSummaryIsDeterministic(t *testing.T) {
	items := backlog(42, "New", "Active", "Closed")
	assert.Equal(t, RenderSummary(items, FieldState), RenderSummary(items, FieldState))
}

func TestRenderSummaryGroupsByIdentity(t *testing.T) {
	items := []WorkItem{
		workItem(1, map[string]interface{}{FieldAssignedTo: identity("Ada Lovelace")}),
		workItem(2, map[string]interface{}{}),
	}

	got := RenderSummary(items, FieldAssignedTo)

	assert.Contains(t, got, "ADA LOVELACE (1 items, 0 pts)")
	assert.Contains(t, got, "UNASSIGNED (1 items, 0 pts)")
}
