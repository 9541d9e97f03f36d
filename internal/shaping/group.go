package shaping

import "sort"

// Sentinel group keys for records where the grouping field is absent.
const (
	UnassignedKey = "Unassigned"
	UnknownKey    = "Unknown"
)

// Group is a partition of work items sharing one grouping-field value.
type Group struct {
	Key         string     `json:"key"`
	Items       []WorkItem `json:"items"`
	Count       int        `json:"count"`
	StoryPoints float64    `json:"story_points"`
}

// GroupBy partitions items by the display value of field. Groups are ordered by
// count descending; equal counts keep the order in which the groups were first
// seen.
func GroupBy(items []WorkItem, field string) []Group {
	if field == "" {
		field = DefaultGroupField
	}

	index := make(map[string]int)
	var groups []Group
	for _, item := range items {
		key := groupKey(item, field)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		g := &groups[i]
		g.Items = append(g.Items, item)
		g.Count++
		if points, ok := item.StoryPoints(); ok {
			g.StoryPoints += points
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups
}

// groupKey derives the grouping key for one item.
func groupKey(item WorkItem, field string) string {
	v, _ := item.Field(field)
	if IsIdentityField(field) {
		if name, ok := identityDisplayName(v); ok {
			return name
		}
		return UnassignedKey
	}
	if s, ok := scalarString(v); ok {
		return s
	}
	return UnknownKey
}

// totalStoryPoints sums numeric story points across items.
func totalStoryPoints(items []WorkItem) float64 {
	var total float64
	for _, item := range items {
		if points, ok := item.StoryPoints(); ok {
			total += points
		}
	}
	return total
}
