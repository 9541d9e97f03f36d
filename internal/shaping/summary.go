package shaping

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Summary rendering limits.
const (
	// MaxSummaryItemsPerGroup caps the work item lines printed under a group.
	MaxSummaryItemsPerGroup = 10

	// MaxSummaryTitleLength caps a title, in runes, before the ellipsis.
	MaxSummaryTitleLength = 60

	summaryWidth      = 80
	pointsPlaceholder = "-"
	ellipsis          = "..."
)

// RenderSummary renders items grouped by field as plain text. Output is a pure
// function of the input: the same items always produce the same bytes.
func RenderSummary(items []WorkItem, field string) string {
	if field == "" {
		field = DefaultGroupField
	}
	groups := GroupBy(items, field)
	banner := strings.Repeat("=", summaryWidth)
	rule := strings.Repeat("-", summaryWidth)
	// A Caser carries state and is not shared across calls.
	upper := cases.Upper(language.Und)

	var b strings.Builder
	b.WriteString(banner)
	b.WriteString("\n")
	fmt.Fprintf(&b, "WORK ITEMS SUMMARY: %d items, %s story points (grouped by %s)\n",
		len(items), formatPoints(totalStoryPoints(items)), field)
	b.WriteString(banner)
	b.WriteString("\n")

	for _, g := range groups {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s (%d items, %s pts)\n", upper.String(g.Key), g.Count, formatPoints(g.StoryPoints))
		b.WriteString(rule)
		b.WriteString("\n")

		shown := g.Items
		if len(shown) > MaxSummaryItemsPerGroup {
			shown = shown[:MaxSummaryItemsPerGroup]
		}
		for _, item := range shown {
			b.WriteString(summaryLine(item))
			b.WriteString("\n")
		}
		if remaining := len(g.Items) - len(shown); remaining > 0 {
			fmt.Fprintf(&b, "  ... and %d more\n", remaining)
		}
	}

	return b.String()
}

func summaryLine(item WorkItem) string {
	itemType := item.StringField(FieldWorkItemType)
	if itemType == "" {
		itemType = UnknownKey
	}
	points := pointsPlaceholder
	if p, ok := item.StoryPoints(); ok {
		points = formatPoints(p)
	}
	return fmt.Sprintf("  #%d [%s] %s pts  %s", item.ID, itemType, points, truncateTitle(item.StringField(FieldTitle)))
}

// lineBreaks keeps every work item on a single summary line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// truncateTitle flattens line breaks and shortens a title to
// MaxSummaryTitleLength runes plus an ellipsis.
func truncateTitle(title string) string {
	title = lineBreaks.Replace(title)
	if utf8.RuneCountInString(title) <= MaxSummaryTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:MaxSummaryTitleLength]) + ellipsis
}
