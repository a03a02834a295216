// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  R-0042 ", "0042", "R-0042", "", "  "})
//	// Returns: []string{"R-0042", "0042"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// CollapseSpaces trims s and folds every run of whitespace into one space.
//
//	CollapseSpaces("  Kinshasa \t Centre ") // "Kinshasa Centre"
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
