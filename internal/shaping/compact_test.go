package shaping

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactDisabledReturnsInput(t *testing.T) {
	items := backlog(3)

	out := Compact(items, false)

	require.Len(t, out, 3)
	assert.Same(t, &items[0], &out[0])
	if diff := cmp.Diff(items, out); diff != "" {
		t.Errorf("Compact(false) changed items (-want +got):\n%s", diff)
	}
}

func TestCompactEnabled(t *testing.T) {
	items := []WorkItem{
		workItem(1, map[string]interface{}{
			FieldTitle:      "Login fails",
			FieldAssignedTo: identity("Ada Lovelace"),
			FieldCreatedBy:  identity("Grace Hopper"),
			FieldClosedBy:   nil,
			FieldState:      "Active",
		}),
		workItem(2, map[string]interface{}{
			FieldTitle: "No people",
		}),
	}

	out := Compact(items, true)

	require.Len(t, out, 2)
	assert.Equal(t, "Ada Lovelace", out[0].Fields[FieldAssignedTo])
	assert.Equal(t, "Grace Hopper", out[0].Fields[FieldCreatedBy])
	assert.Nil(t, out[0].Fields[FieldClosedBy])
	assert.Equal(t, "Active", out[0].Fields[FieldState])

	for _, item := range out {
		assert.Nil(t, item.Links)
		assert.Nil(t, item.CommentVersionRef)
		assert.NotEmpty(t, item.URL)
	}

	// The input is not mutated.
	_, stillMap := items[0].Fields[FieldAssignedTo].(map[string]interface{})
	assert.True(t, stillMap)
	assert.NotNil(t, items[1].Links)
}

func TestCompactLeavesNonIdentityValues(t *testing.T) {
	items := []WorkItem{workItem(7, map[string]interface{}{
		FieldAssignedTo: "already compact",
		FieldChangedBy:  map[string]interface{}{"uniqueName": "no display name"},
		FieldCreatedBy:  42.0,
	})}

	out := Compact(items, true)

	assert.Equal(t, "already compact", out[0].Fields[FieldAssignedTo])
	assert.Equal(t, map[string]interface{}{"uniqueName": "no display name"}, out[0].Fields[FieldChangedBy])
	assert.Equal(t, 42.0, out[0].Fields[FieldCreatedBy])
}

func TestCompactReducesSize(t *testing.T) {
	for _, item := range backlog(5) {
		raw, err := json.Marshal(item)
		require.NoError(t, err)
		compacted, err := json.Marshal(Compact([]WorkItem{item}, true)[0])
		require.NoError(t, err)
		assert.Less(t, len(compacted), len(raw))
	}
}

func TestCompactNilFields(t *testing.T) {
	out := Compact([]WorkItem{{ID: 9, Links: map[string]interface{}{"x": 1}}}, true)
	require.Len(t, out, 1)
	assert.Equal(t, 9, out[0].ID)
	assert.Nil(t, out[0].Fields)
	assert.Nil(t, out[0].Links)
}
