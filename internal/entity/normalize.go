package entity

import (
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize normalizes an identity or tag string:
// 1. Trim leading/trailing whitespace
// 2. Lowercase
// 3. Collapse internal whitespace to single spaces
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return s
}
