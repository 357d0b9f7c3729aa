package constants

import (
	"strings"
)

type Category string

const (
	Before     Category = "before"
	After      Category = "after"
	Progress   Category = "progress"
	Damage     Category = "damage"
	Inspection Category = "inspection"
	Materials  Category = "materials"
	Safety     Category = "safety"
	Other      Category = "other"
)

var allCategories = []Category{
	Before,
	After,
	Progress,
	Damage,
	Inspection,
	Materials,
	Safety,
	Other,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps a user-typed category onto a known one. Unknown input
// reports false; callers keep the free text in that case.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	// synonyms map
	synonyms := map[string]Category{
		"pre":           Before,
		"pre-work":      Before,
		"start":         Before,
		"post":          After,
		"post-work":     After,
		"finished":      After,
		"complete":      After,
		"wip":           Progress,
		"in progress":   Progress,
		"in-progress":   Progress,
		"defect":        Damage,
		"issue":         Damage,
		"punch":         Inspection,
		"punch list":    Inspection,
		"walkthrough":   Inspection,
		"supplies":      Materials,
		"delivery":      Materials,
		"hazard":        Safety,
		"miscellaneous": Other,
		"misc":          Other,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == string(cat) {
			return cat, true
		}
	}

	return "", false
}
