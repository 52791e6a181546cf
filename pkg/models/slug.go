package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var hyphenRun = regexp.MustCompile(`-{2,}`)

// Slugify turns a highlight title into a directory name. Letters outside
// ASCII and emoji are kept; only separators, control characters and
// whitespace become hyphens.
func Slugify(text string) string {
	text = norm.NFC.String(text)
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '-'
		case unicode.IsControl(r) || unicode.IsSpace(r):
			return '-'
		}
		return r
	}, text)
	text = hyphenRun.ReplaceAllString(text, "-")
	text = strings.Trim(text, "-.")
	if text == "" {
		return "untitled"
	}
	return text
}

// DedupeSlug returns slug, or slug_2, slug_3, ... if already in used, and
// marks the result as used.
func DedupeSlug(slug string, used map[string]bool) string {
	candidate := slug
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", slug, n)
	}
	used[candidate] = true
	return candidate
}
