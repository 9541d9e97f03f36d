package shaping

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateContributors(t *testing.T) {
	items := []WorkItem{
		workItem(1, map[string]interface{}{
			FieldAssignedTo: identity("Ada Lovelace"),
			FieldCreatedBy:  identity("Grace Hopper"),
			FieldChangedBy:  identity("Ada Lovelace"),
		}),
		workItem(2, map[string]interface{}{
			FieldCreatedBy: identity("Grace Hopper"),
			FieldChangedBy: identity("Alan Turing"),
		}),
		workItem(3, map[string]interface{}{
			FieldAssignedTo: "Alan Turing",
			FieldCreatedBy:  identity("Ada Lovelace"),
		}),
	}

	got := AggregateContributors(items)

	assert.Equal(t, AggregateContributorsKind, got.Type)
	assert.Equal(t, 3, got.TotalRecords)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing", "Grace Hopper", "Unassigned", "Unknown"}, got.UniqueContributors)
	assert.Equal(t, len(got.UniqueContributors), got.ContributorCount)

	want := map[string][]NameCount{
		RoleAssignedTo: {{"Ada Lovelace", 1}, {"Unassigned", 1}, {"Alan Turing", 1}},
		RoleCreatedBy:  {{"Grace Hopper", 2}, {"Ada Lovelace", 1}},
		RoleChangedBy:  {{"Ada Lovelace", 1}, {"Alan Turing", 1}, {"Unknown", 1}},
	}
	if diff := cmp.Diff(want, got.ByRole); diff != "" {
		t.Errorf("ByRole mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateContributorsUniqueness(t *testing.T) {
	items := backlog(20)
	items[3].Fields[FieldAssignedTo] = identity("Grace Hopper")
	items[4].Fields[FieldChangedBy] = identity("Alan Turing")

	got := AggregateContributors(items)

	unique := make(map[string]bool, len(got.UniqueContributors))
	for _, name := range got.UniqueContributors {
		unique[name] = true
	}
	assert.Equal(t, got.ContributorCount, len(got.UniqueContributors))
	for role, counts := range got.ByRole {
		total := 0
		for _, c := range counts {
			assert.True(t, unique[c.Name], "%s: %s missing from unique set", role, c.Name)
			total += c.Count
		}
		assert.Equal(t, len(items), total, role)
	}
}

func TestAggregateContributorsEmpty(t *testing.T) {
	got := AggregateContributors(nil)
	assert.Zero(t, got.ContributorCount)
	assert.Empty(t, got.UniqueContributors)
	for _, role := range []string{RoleAssignedTo, RoleCreatedBy, RoleChangedBy} {
		assert.NotNil(t, got.ByRole[role])
	}
}

func TestAggregateByFieldValue(t *testing.T) {
	items := backlog(12, "Active", "Active", "Closed")

	got := AggregateByFieldValue(items, FieldState)

	assert.Equal(t, 12, got.TotalRecords)
	assert.Equal(t, 12.0, got.TotalStoryPoints)
	assert.Equal(t, FieldState, got.GroupedBy)
	require.Len(t, got.Groups, 2)

	active := got.Groups[0]
	assert.Equal(t, "Active", active.Name)
	assert.Equal(t, 8, active.Count)
	assert.Equal(t, 8.0, active.StoryPoints)
	require.Len(t, active.SampleItems, MaxAggregationSamples)
	assert.Equal(t, SampleItem{ID: 1, Title: "Work item 1", State: "Active"}, active.SampleItems[0])
	assert.Equal(t, 2, active.SampleItems[1].ID)
	assert.Equal(t, 4, active.SampleItems[2].ID)

	closed := got.Groups[1]
	assert.Equal(t, "Closed", closed.Name)
	assert.Len(t, closed.SampleItems, 4)
}

func TestAggregateByFieldValueDefaultsToState(t *testing.T) {
	got := AggregateByFieldValue(backlog(2), "")
	assert.Equal(t, DefaultGroupField, got.GroupedBy)
}

func TestParseAggregationKind(t *testing.T) {
	tests := []struct {
		token string
		want  AggregationKind
		ok    bool
	}{
		{"contributors", AggregateContributorsKind, true},
		{"BY_TYPE", AggregateByType, true},
		{" by_iteration ", AggregateByIteration, true},
		{"by_field", AggregateByField, true},
		{"velocity", AggregateByState, false},
		{"", AggregateByState, false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := ParseAggregationKind(tt.token)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestFieldsForAggregation(t *testing.T) {
	assert.Equal(t,
		[]string{FieldID, FieldTitle, FieldAssignedTo, FieldCreatedBy, FieldChangedBy},
		FieldsForAggregation("contributors"))
	assert.Contains(t, FieldsForAggregation("by_assignee"), FieldAssignedTo)
	assert.Equal(t, []string{FieldID, FieldTitle, FieldState}, FieldsForAggregation("no_such_kind"))

	// Callers may append to the returned list.
	fields := FieldsForAggregation("no_such_kind")
	fields[0] = "mutated"
	assert.Equal(t, FieldID, FieldsForAggregation("no_such_kind")[0])
}

func TestGroupFieldForKind(t *testing.T) {
	assert.Equal(t, FieldIteration, GroupFieldForKind(AggregateByIteration))
	assert.Equal(t, FieldAreaPath, GroupFieldForKind(AggregateByArea))
	assert.Empty(t, GroupFieldForKind(AggregateContributorsKind))
}
