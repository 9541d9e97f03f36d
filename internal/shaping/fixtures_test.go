package shaping

import (
	"fmt"
	"strings"
)

func identity(name string) map[string]interface{} {
	return map[string]interface{}{
		"displayName": name,
		"uniqueName":  strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@contoso.com",
		"id":          "6f1c2b9e-0d3a-4e6b-8f27-" + fmt.Sprintf("%012d", len(name)),
		"imageUrl":    "https://dev.azure.com/contoso/_apis/GraphProfile/MemberAvatars/aad.abc",
		"descriptor":  "aad.MDAwMDAwMDAtMDAwMC0wMDAwLTAwMDAtMDAwMDAwMDAwMDAw",
		"_links": map[string]interface{}{
			"avatar": map[string]interface{}{"href": "https://dev.azure.com/contoso/_apis/avatar"},
		},
	}
}

func workItem(id int, fields map[string]interface{}) WorkItem {
	return WorkItem{
		ID:     id,
		Rev:    1,
		Fields: fields,
		Links: map[string]interface{}{
			"self": map[string]interface{}{"href": fmt.Sprintf("https://dev.azure.com/contoso/_apis/wit/workItems/%d", id)},
		},
		CommentVersionRef: map[string]interface{}{"commentId": 1, "version": 1},
		URL:               fmt.Sprintf("https://dev.azure.com/contoso/_apis/wit/workItems/%d", id),
	}
}

// backlog builds n items cycling through states with one story point each.
func backlog(n int, states ...string) []WorkItem {
	if len(states) == 0 {
		states = []string{"Active"}
	}
	items := make([]WorkItem, n)
	for i := range items {
		items[i] = workItem(i+1, map[string]interface{}{
			FieldTitle:        fmt.Sprintf("Work item %d", i+1),
			FieldState:        states[i%len(states)],
			FieldWorkItemType: "User Story",
			FieldStoryPoints:  float64(1),
			FieldAssignedTo:   identity("Ada Lovelace"),
		})
	}
	return items
}
