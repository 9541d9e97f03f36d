// Package shaping decides how much work item data reaches the MCP client and in
// what shape. It normalizes WIQL field references before a query is sent, and
// after fetch it compacts, groups, summarizes, aggregates and paginates records.
//
// Every function in this package is a pure function of its inputs. The only
// shared state is the read-only field alias table.
package shaping

import (
	"fmt"
	"strconv"
)

// WorkItem is a single Azure DevOps work item as returned by the work items API.
type WorkItem struct {
	ID                int                    `json:"id"`
	Rev               int                    `json:"rev,omitempty"`
	Fields            map[string]interface{} `json:"fields"`
	Links             map[string]interface{} `json:"_links,omitempty"`
	CommentVersionRef map[string]interface{} `json:"commentVersionRef,omitempty"`
	URL               string                 `json:"url,omitempty"`
}

// Field returns the raw value of a field and whether it is present.
func (w WorkItem) Field(name string) (interface{}, bool) {
	if w.Fields == nil {
		return nil, false
	}
	v, ok := w.Fields[name]
	return v, ok
}

// StringField returns a field as a string, or "" when absent or not a string.
func (w WorkItem) StringField(name string) string {
	v, _ := w.Field(name)
	s, _ := v.(string)
	return s
}

// StoryPoints returns the numeric scheduling effort and whether it was numeric.
func (w WorkItem) StoryPoints() (float64, bool) {
	v, _ := w.Field(FieldStoryPoints)
	return toNumber(v)
}

// identityDisplayName extracts the display name from an identity value. A value
// that has already been compacted to a string is returned unchanged.
func identityDisplayName(v interface{}) (string, bool) {
	switch id := v.(type) {
	case map[string]interface{}:
		name, ok := id["displayName"].(string)
		if !ok || name == "" {
			return "", false
		}
		return name, true
	case string:
		if id == "" {
			return "", false
		}
		return id, true
	default:
		return "", false
	}
}

// toNumber converts JSON-decoded numeric values. Strings are not coerced: the
// backend is untyped and a string in a numeric field counts as zero.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// scalarString renders a non-identity field value as a grouping key.
func scalarString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		if s == "" {
			return "", false
		}
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return fmt.Sprintf("%v", s), true
	}
}

// formatPoints renders a story point total without trailing zeros.
func formatPoints(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
