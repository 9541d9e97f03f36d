package shaping

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mcperrors "github.com/sirforce/devops-mcp/internal/errors"
)

type fakeRecorder struct {
	modes []string
	bytes []int
}

func (f *fakeRecorder) RecordShaping(mode string, bytes int) {
	f.modes = append(f.modes, mode)
	f.bytes = append(f.bytes, bytes)
}

// sizedBacklog returns n items whose canonical serialization is exactly size bytes.
func sizedBacklog(t *testing.T, n, size int) []WorkItem {
	t.Helper()
	items := backlog(n)
	for i := range items {
		items[i].Fields["System.Description"] = strings.Repeat("d", 1500)
	}
	body, err := MeasureItems(items, nil)
	require.NoError(t, err)
	pad := size - len(body)
	require.GreaterOrEqual(t, pad, 0, "base payload already %d bytes", len(body))
	items[0].Fields["System.Description"] = items[0].Fields["System.Description"].(string) + strings.Repeat("d", pad)

	body, err = MeasureItems(items, nil)
	require.NoError(t, err)
	require.Len(t, body, size)
	return items
}

func TestShapeWorkItemsHardLimitTruncates(t *testing.T) {
	rec := &fakeRecorder{}
	a := NewArbiter(DefaultLimits(), rec, zap.NewNop())
	items := sizedBacklog(t, 95, 260_000)

	resp, err := a.ShapeWorkItems(ShapeRequest{Items: items})
	require.NoError(t, err)

	require.NotNil(t, resp.Metadata)
	assert.Equal(t, ModeTruncatedSummary, resp.Metadata.Mode)
	assert.True(t, resp.Metadata.Truncated)
	assert.Equal(t, 260_000, resp.Metadata.EstimatedBytes)
	assert.Equal(t, 95, resp.Metadata.ItemCount)
	assert.Len(t, resp.Metadata.Hints, 3)
	assert.Equal(t, RenderSummary(items, ""), resp.Text)
	assert.Equal(t, []string{"truncated_summary"}, rec.modes)
	assert.Equal(t, []int{260_000}, rec.bytes)
}

func TestShapeWorkItemsForceAndFormat(t *testing.T) {
	a := NewArbiter(DefaultLimits(), nil, nil)
	items := sizedBacklog(t, 95, 260_000)

	t.Run("force alone still summarizes", func(t *testing.T) {
		resp, err := a.ShapeWorkItems(ShapeRequest{Items: items, Force: true})
		require.NoError(t, err)
		assert.Equal(t, ModeSummary, resp.Metadata.Mode)
		assert.False(t, resp.Metadata.Truncated)
	})

	t.Run("json format above hard limit is warned not replaced", func(t *testing.T) {
		resp, err := a.ShapeWorkItems(ShapeRequest{Items: items, Format: FormatJSON})
		require.NoError(t, err)
		assert.Equal(t, ModeSizeWarning, resp.Metadata.Mode)
		assert.Len(t, resp.Text, 260_000)
		assert.NotEmpty(t, resp.Metadata.Hints)
	})
}

func TestShapeWorkItemsSummaryTriggers(t *testing.T) {
	a := NewArbiter(DefaultLimits(), nil, nil)

	t.Run("item threshold", func(t *testing.T) {
		resp, err := a.ShapeWorkItems(ShapeRequest{Items: backlog(60)})
		require.NoError(t, err)
		assert.Equal(t, ModeSummary, resp.Metadata.Mode)
		assert.Contains(t, resp.Metadata.Reason, "60 items")
		assert.Greater(t, resp.Metadata.EstimatedBytes, 0)
	})

	t.Run("explicit summary", func(t *testing.T) {
		resp, err := a.ShapeWorkItems(ShapeRequest{Items: backlog(3), Format: FormatSummary})
		require.NoError(t, err)
		assert.Equal(t, ModeSummary, resp.Metadata.Mode)
		assert.True(t, strings.HasPrefix(resp.Text, strings.Repeat("=", 80)))
	})

	t.Run("json overrides item threshold", func(t *testing.T) {
		resp, err := a.ShapeWorkItems(ShapeRequest{Items: backlog(60), Format: FormatJSON})
		require.NoError(t, err)
		assert.Nil(t, resp.Metadata)
	})

	t.Run("soft limit", func(t *testing.T) {
		resp, err := a.ShapeWorkItems(ShapeRequest{Items: sizedBacklog(t, 40, 150_000)})
		require.NoError(t, err)
		assert.Equal(t, ModeSummary, resp.Metadata.Mode)
		assert.Contains(t, resp.Metadata.Reason, "soft limit")
	})
}

func TestShapeWorkItemsRaw(t *testing.T) {
	a := NewArbiter(DefaultLimits(), nil, nil)
	page := &Page{Page: 2, PageSize: 5, TotalItems: 12, TotalPages: 3, HasNext: true, HasPrevious: true}

	resp, err := a.ShapeWorkItems(ShapeRequest{Items: Compact(backlog(5), true), Page: page})
	require.NoError(t, err)
	assert.Nil(t, resp.Metadata)

	var decoded struct {
		Count      int        `json:"count"`
		Value      []WorkItem `json:"value"`
		Pagination *Page      `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &decoded))
	assert.Equal(t, 5, decoded.Count)
	assert.Len(t, decoded.Value, 5)
	require.NotNil(t, decoded.Pagination)
	assert.True(t, decoded.Pagination.HasNext)
	assert.Equal(t, "Ada Lovelace", decoded.Value[0].Fields[FieldAssignedTo])
}

func TestShapeWorkItemsEmpty(t *testing.T) {
	a := NewArbiter(DefaultLimits(), nil, nil)

	resp, err := a.ShapeWorkItems(ShapeRequest{})
	require.NoError(t, err)
	assert.Nil(t, resp.Metadata)
	assert.JSONEq(t, `{"count":0,"value":[]}`, resp.Text)
}

func TestShapingRuleOrder(t *testing.T) {
	limits := Limits{ItemThreshold: 10, SoftLimitBytes: 100, HardLimitBytes: 200}

	tests := []struct {
		name   string
		format Format
		force  bool
		size   int
		count  int
		want   Mode
	}{
		{"hard limit, no flags", FormatAuto, false, 250, 1, ModeTruncatedSummary},
		{"hard limit, summary format", FormatSummary, false, 250, 1, ModeTruncatedSummary},
		{"hard limit, force", FormatAuto, true, 250, 1, ModeSummary},
		{"hard limit, json", FormatJSON, false, 250, 1, ModeSizeWarning},
		{"hard limit, json and force", FormatJSON, true, 250, 1, ModeSizeWarning},
		{"soft limit", FormatAuto, false, 150, 1, ModeSummary},
		{"soft limit, json", FormatJSON, false, 150, 1, ModeSizeWarning},
		{"item threshold", FormatAuto, false, 50, 11, ModeSummary},
		{"item threshold, json", FormatJSON, false, 50, 11, ModeRaw},
		{"summary requested", FormatSummary, false, 50, 1, ModeSummary},
		{"at thresholds", FormatAuto, false, 100, 10, ModeRaw},
		{"small", FormatAuto, false, 50, 1, ModeRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decisionInput{
				req:    ShapeRequest{Format: tt.format, Force: tt.force},
				limits: limits,
				size:   tt.size,
				count:  tt.count,
			}
			var got Mode
			for _, rule := range shapingRules {
				if rule.matches(in) {
					got = rule.mode
					break
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShapeAggregation(t *testing.T) {
	rec := &fakeRecorder{}
	a := NewArbiter(DefaultLimits(), rec, nil)
	items := backlog(6, "Active", "Closed")
	items[0].Fields[FieldWorkItemType] = "Bug"

	t.Run("contributors", func(t *testing.T) {
		resp, err := a.ShapeAggregation(items, AggregateContributorsKind, "")
		require.NoError(t, err)
		var got ContributorsResult
		require.NoError(t, json.Unmarshal([]byte(resp.Text), &got))
		assert.Equal(t, 6, got.TotalRecords)
		assert.Contains(t, got.UniqueContributors, "Ada Lovelace")
	})

	t.Run("by type", func(t *testing.T) {
		resp, err := a.ShapeAggregation(items, AggregateByType, "")
		require.NoError(t, err)
		var got ByFieldResult
		require.NoError(t, json.Unmarshal([]byte(resp.Text), &got))
		assert.Equal(t, AggregateByType, got.Type)
		assert.Equal(t, FieldWorkItemType, got.GroupedBy)
		require.Len(t, got.Groups, 2)
		assert.Equal(t, "User Story", got.Groups[0].Name)
	})

	t.Run("by field", func(t *testing.T) {
		resp, err := a.ShapeAggregation(items, AggregateByField, FieldTitle)
		require.NoError(t, err)
		var got ByFieldResult
		require.NoError(t, json.Unmarshal([]byte(resp.Text), &got))
		assert.Len(t, got.Groups, 6)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := a.ShapeAggregation(items, AggregationKind("velocity"), "")
		require.Error(t, err)
		assert.True(t, mcperrors.IsClientError(err))
	})

	assert.Equal(t, []string{"aggregation", "aggregation", "aggregation"}, rec.modes)
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())
	assert.Error(t, Limits{ItemThreshold: 0, SoftLimitBytes: 1, HardLimitBytes: 2}.Validate())
	assert.Error(t, Limits{ItemThreshold: 1, SoftLimitBytes: 0, HardLimitBytes: 2}.Validate())
	assert.Error(t, Limits{ItemThreshold: 1, SoftLimitBytes: 3, HardLimitBytes: 2}.Validate())
}

func TestParseFormat(t *testing.T) {
	for token, want := range map[string]Format{"": FormatAuto, "AUTO": FormatAuto, "json": FormatJSON, " summary ": FormatSummary} {
		got, err := ParseFormat(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got, token)
	}
	_, err := ParseFormat("xml")
	assert.True(t, mcperrors.IsClientError(err))
}

func TestShapeWorkItemsUnserializableValue(t *testing.T) {
	a := NewArbiter(DefaultLimits(), nil, zap.NewNop())
	items := []WorkItem{workItem(1, map[string]interface{}{"Custom.Score": math.Inf(1)})}

	resp, err := a.ShapeWorkItems(ShapeRequest{Items: items})
	require.Error(t, err)
	assert.Nil(t, resp)

	se, ok := mcperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, mcperrors.CodeInternalError, se.Code)
	assert.False(t, mcperrors.IsClientError(err))
}
