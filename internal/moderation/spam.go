// Package moderation provides cheap local heuristics that annotate messages
// forwarded from the monitored channel before the classifier scores arrive.
package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Compiled once and safe for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs, and bare domains on common
	// TLDs. Bare domains need a trailing "/" so "v2.0" and "3.14" stay clean.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches +1-555-123-4567, (555) 123-4567, 555.123.4567 and
	// similar, anchored to whitespace so short numbers do not match.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// Flag names.
const (
	FlagURL       = "url"
	FlagPhone     = "phone"
	FlagCharFlood = "char_flood"
	FlagWordFlood = "word_flood"
)

type heuristic struct {
	name  string
	match func(string) bool
}

// heuristics run in this order; Flags reports every match.
var heuristics = []heuristic{
	{name: FlagURL, match: urlPattern.MatchString},
	{name: FlagPhone, match: phonePattern.MatchString},
	{name: FlagCharFlood, match: hasCharFlood},
	{name: FlagWordFlood, match: hasWordFlood},
}

// Flags returns the names of all heuristics that match text.
func Flags(text string) []string {
	var flags []string
	for _, h := range heuristics {
		if h.match(text) {
			flags = append(flags, h.name)
		}
	}
	return flags
}

// Describe renders flags for the moderator channel, or "" when there are none.
func Describe(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	return "Local heuristics flagged: " + strings.Join(flags, ", ")
}

// hasCharFlood reports 5 or more consecutive identical characters. RE2 has no
// backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports the same word 3 or more times in a row,
// case-insensitively.
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}
