package shaping

// Compact reduces identity objects to their display names and drops link and
// comment-version metadata from every work item. When enabled is false the input
// slice is returned as is.
//
// Compaction never fails: values that are not identity objects are copied through
// unchanged, and a nil identity value stays nil.
func Compact(items []WorkItem, enabled bool) []WorkItem {
	if !enabled {
		return items
	}

	out := make([]WorkItem, len(items))
	for i, item := range items {
		out[i] = compactItem(item)
	}
	return out
}

func compactItem(item WorkItem) WorkItem {
	compacted := WorkItem{
		ID:  item.ID,
		Rev: item.Rev,
		URL: item.URL,
	}
	if item.Fields == nil {
		return compacted
	}

	compacted.Fields = make(map[string]interface{}, len(item.Fields))
	for k, v := range item.Fields {
		compacted.Fields[k] = v
	}
	for _, field := range identityFields {
		v, ok := compacted.Fields[field]
		if !ok || v == nil {
			continue
		}
		if obj, ok := v.(map[string]interface{}); ok {
			if name, ok := obj["displayName"].(string); ok && name != "" {
				compacted.Fields[field] = name
			}
		}
	}
	return compacted
}
