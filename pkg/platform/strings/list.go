// Package strings parses list-valued settings.
package strings

import (
	"strings"
)

// SplitList expands comma-separated entries, trims each item and drops
// empties and repeats. Order of first appearance is kept.
//
//	SplitList([]string{"kafka-1:9092, kafka-2:9092", "kafka-1:9092"})
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(values []string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, strings.Split(v, ",")...)
	}
	return dedupe(parts, strings.TrimSpace)
}

// SplitListFold is SplitList with case-insensitive matching; items are
// lowercased.
func SplitListFold(values []string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, strings.Split(v, ",")...)
	}
	return dedupe(parts, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}
