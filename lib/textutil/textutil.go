package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CollapseWhitespace folds runs of whitespace into single spaces and
// trims the ends.
func CollapseWhitespace(s string) string {
	s = strings.Trim(s, " \n\t")
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// ContainsFold reports whether title contains query, ignoring case.
// This is deliberately an exact-substring match, the same matching the
// sites' own search boxes perform.
func ContainsFold(title, query string) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(query))
}
