// Package strings holds list helpers for query and body parameters.
package strings

import (
	"strings"
)

// SplitCodes flattens repeated and comma-separated enum codes (event types,
// severities) into one list. Elements are trimmed and upper-cased, empties
// dropped and duplicates removed, so "warning" and "WARNING" collapse into
// one; order is kept.
//
//	SplitCodes([]string{"info, warning", "INFO", " "}) // []string{"INFO", "WARNING"}
func SplitCodes(values []string) []string {
	return splitList(values, strings.ToUpper)
}

// splitList does the flattening; fold, when set, normalizes each element
// before deduplication.
func splitList(values []string, fold func(string) string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			part = strings.TrimSpace(part)
			if fold != nil {
				part = fold(part)
			}
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
