package shaping

import (
	"sort"
	"strings"
)

// MaxAggregationSamples caps the member records kept per aggregation group. It is
// deliberately smaller than MaxSummaryItemsPerGroup: samples only prove group
// membership.
const MaxAggregationSamples = 5

// AggregationKind selects the statistics computed by aggregate_work_items.
type AggregationKind string

// Supported aggregation kinds.
const (
	AggregateContributorsKind AggregationKind = "contributors"
	AggregateByState          AggregationKind = "by_state"
	AggregateByType           AggregationKind = "by_type"
	AggregateByAssignee       AggregationKind = "by_assignee"
	AggregateByArea           AggregationKind = "by_area"
	AggregateByIteration      AggregationKind = "by_iteration"
	AggregateByField          AggregationKind = "by_field"
)

// Contributor roles reported by AggregateContributors.
const (
	RoleAssignedTo = "assignedTo"
	RoleCreatedBy  = "createdBy"
	RoleChangedBy  = "changedBy"
)

type contributorRole struct {
	name     string
	field    string
	sentinel string
}

var contributorRoles = []contributorRole{
	{RoleAssignedTo, FieldAssignedTo, UnassignedKey},
	{RoleCreatedBy, FieldCreatedBy, UnknownKey},
	{RoleChangedBy, FieldChangedBy, UnknownKey},
}

var kindGroupFields = map[AggregationKind]string{
	AggregateByState:     FieldState,
	AggregateByType:      FieldWorkItemType,
	AggregateByAssignee:  FieldAssignedTo,
	AggregateByArea:      FieldAreaPath,
	AggregateByIteration: FieldIteration,
}

var kindFetchFields = map[AggregationKind][]string{
	AggregateContributorsKind: {FieldID, FieldTitle, FieldAssignedTo, FieldCreatedBy, FieldChangedBy},
	AggregateByState:          {FieldID, FieldTitle, FieldState, FieldStoryPoints},
	AggregateByType:           {FieldID, FieldTitle, FieldState, FieldWorkItemType, FieldStoryPoints},
	AggregateByAssignee:       {FieldID, FieldTitle, FieldState, FieldAssignedTo, FieldStoryPoints},
	AggregateByArea:           {FieldID, FieldTitle, FieldState, FieldAreaPath, FieldStoryPoints},
	AggregateByIteration:      {FieldID, FieldTitle, FieldState, FieldIteration, FieldStoryPoints},
	AggregateByField:          {FieldID, FieldTitle, FieldState, FieldStoryPoints},
}

var defaultFetchFields = []string{FieldID, FieldTitle, FieldState}

// ParseAggregationKind maps a caller-supplied token to a kind. Unknown tokens
// fall back to by_state and report false.
func ParseAggregationKind(token string) (AggregationKind, bool) {
	kind := AggregationKind(strings.ToLower(strings.TrimSpace(token)))
	if _, ok := kindFetchFields[kind]; ok {
		return kind, true
	}
	return AggregateByState, false
}

// FieldsForAggregation returns the minimal field list to fetch for an
// aggregation token. Unrecognized tokens get a small default list.
func FieldsForAggregation(token string) []string {
	fields, ok := kindFetchFields[AggregationKind(strings.ToLower(strings.TrimSpace(token)))]
	if !ok {
		fields = defaultFetchFields
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// GroupFieldForKind returns the field a by_* kind groups on. by_field and
// contributors return "".
func GroupFieldForKind(kind AggregationKind) string {
	return kindGroupFields[kind]
}

// NameCount is a contributor and the number of items they hold in a role.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ContributorsResult summarizes who touched a set of work items.
type ContributorsResult struct {
	Type               AggregationKind        `json:"type"`
	TotalRecords       int                    `json:"total_records"`
	UniqueContributors []string               `json:"unique_contributors"`
	ContributorCount   int                    `json:"contributor_count"`
	ByRole             map[string][]NameCount `json:"by_role"`
}

// SampleItem is a minimal reference to a group member.
type SampleItem struct {
	ID    int    `json:"id"`
	Title string `json:"title,omitempty"`
	State string `json:"state,omitempty"`
}

// FieldGroup is one distinct value of the aggregated field.
type FieldGroup struct {
	Name        string       `json:"name"`
	Count       int          `json:"count"`
	StoryPoints float64      `json:"story_points"`
	SampleItems []SampleItem `json:"sample_items"`
}

// ByFieldResult holds per-value counts and story point totals.
type ByFieldResult struct {
	Type             AggregationKind `json:"type"`
	TotalRecords     int             `json:"total_records"`
	TotalStoryPoints float64         `json:"total_story_points"`
	GroupedBy        string          `json:"grouped_by"`
	Groups           []FieldGroup    `json:"groups"`
}

// AggregateContributors counts assignees, creators and last modifiers.
func AggregateContributors(items []WorkItem) ContributorsResult {
	unique := make(map[string]struct{})
	byRole := make(map[string][]NameCount, len(contributorRoles))

	for _, role := range contributorRoles {
		index := make(map[string]int)
		var counts []NameCount
		for _, item := range items {
			v, _ := item.Field(role.field)
			name, ok := identityDisplayName(v)
			if !ok {
				name = role.sentinel
			}
			unique[name] = struct{}{}
			i, seen := index[name]
			if !seen {
				i = len(counts)
				index[name] = i
				counts = append(counts, NameCount{Name: name})
			}
			counts[i].Count++
		}
		sort.SliceStable(counts, func(i, j int) bool {
			return counts[i].Count > counts[j].Count
		})
		if counts == nil {
			counts = []NameCount{}
		}
		byRole[role.name] = counts
	}

	names := make([]string, 0, len(unique))
	for name := range unique {
		names = append(names, name)
	}
	sort.Strings(names)

	return ContributorsResult{
		Type:               AggregateContributorsKind,
		TotalRecords:       len(items),
		UniqueContributors: names,
		ContributorCount:   len(names),
		ByRole:             byRole,
	}
}

// AggregateByFieldValue groups items by field and keeps a bounded sample of
// each group's members in encounter order.
func AggregateByFieldValue(items []WorkItem, field string) ByFieldResult {
	if field == "" {
		field = DefaultGroupField
	}

	groups := GroupBy(items, field)
	result := ByFieldResult{
		Type:             AggregateByField,
		TotalRecords:     len(items),
		TotalStoryPoints: totalStoryPoints(items),
		GroupedBy:        field,
		Groups:           make([]FieldGroup, 0, len(groups)),
	}
	for _, g := range groups {
		fg := FieldGroup{
			Name:        g.Key,
			Count:       g.Count,
			StoryPoints: g.StoryPoints,
		}
		members := g.Items
		if len(members) > MaxAggregationSamples {
			members = members[:MaxAggregationSamples]
		}
		fg.SampleItems = make([]SampleItem, 0, len(members))
		for _, m := range members {
			fg.SampleItems = append(fg.SampleItems, SampleItem{
				ID:    m.ID,
				Title: m.StringField(FieldTitle),
				State: m.StringField(FieldState),
			})
		}
		result.Groups = append(result.Groups, fg)
	}
	return result
}
